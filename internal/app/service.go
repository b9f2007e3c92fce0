package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/agokrani/moltbook-api/internal/domain"
)

// AssignmentEngine draws treatments and runs nudge timers.
type AssignmentEngine interface {
	Assign(ctx context.Context, postID uuid.UUID, isWorld bool) (*domain.TreatmentAssignment, error)
	PendingCount() int
	ArmCounts(ctx context.Context) (map[domain.Arm]int, error)
	Shutdown()
}

// WorldFeed drip-feeds pre-authored content.
type WorldFeed interface {
	Start() error
	Stop()
	Status() domain.WorldFeedStatus
}

// ResultsProvider builds the experiment report.
type ResultsProvider interface {
	Results(ctx context.Context, experimentName string) ([]domain.ReportRow, error)
}

// ExperimentConfig is the slice of configuration the service needs to
// describe and gate the experiment.
type ExperimentConfig struct {
	Enabled bool
	Name    string
	Mode    string
	RunID   *int
}

// Service is the application layer. It orchestrates all use cases.
type Service struct {
	agents      domain.AgentRepository
	posts       domain.PostRepository
	votes       domain.VoteRepository
	assignments domain.AssignmentRepository
	activity    domain.ActivityLog
	engine      AssignmentEngine
	results     ResultsProvider
	cfg         ExperimentConfig
	publisher   *domain.Agent
	clock       clockwork.Clock

	worldFeed WorldFeed
	stopOnce  sync.Once
}

// NewService creates the application layer service. The world feed is
// attached separately because its publish function points back at the
// service.
func NewService(
	agents domain.AgentRepository,
	posts domain.PostRepository,
	votes domain.VoteRepository,
	assignments domain.AssignmentRepository,
	activity domain.ActivityLog,
	engine AssignmentEngine,
	results ResultsProvider,
	cfg ExperimentConfig,
	publisher *domain.Agent,
	clock clockwork.Clock,
) *Service {
	return &Service{
		agents:      agents,
		posts:       posts,
		votes:       votes,
		assignments: assignments,
		activity:    activity,
		engine:      engine,
		results:     results,
		cfg:         cfg,
		publisher:   publisher,
		clock:       clock,
	}
}

// AttachWorldFeed wires the scheduler in after construction.
func (s *Service) AttachWorldFeed(feed WorldFeed) {
	s.worldFeed = feed
}

// RegisterAgent creates an agent, or returns the existing one with that name.
func (s *Service) RegisterAgent(ctx context.Context, name, description string) (*domain.Agent, error) {
	return s.agents.RegisterIfAbsent(ctx, name, description)
}

// GetAgent retrieves an agent by id.
func (s *Service) GetAgent(ctx context.Context, agentID uuid.UUID) (*domain.Agent, error) {
	return s.agents.GetByID(ctx, agentID)
}

// CreatePost stores the post and, when the experiment is enabled, draws its
// treatment assignment. An assignment failure is reported to the caller; the
// post itself stays created.
func (s *Service) CreatePost(ctx context.Context, authorID uuid.UUID, title, body string) (*domain.Post, *domain.TreatmentAssignment, error) {
	post, err := s.posts.Create(ctx, authorID, title, body, false)
	if err != nil {
		return nil, nil, err
	}

	if !s.cfg.Enabled {
		return post, nil, nil
	}

	assignment, err := s.engine.Assign(ctx, post.ID, false)
	if err != nil {
		return post, nil, fmt.Errorf("post %s created but assignment failed: %w", post.ID, err)
	}
	return post, assignment, nil
}

// GetPost retrieves a post by id.
func (s *Service) GetPost(ctx context.Context, postID uuid.UUID) (*domain.Post, error) {
	return s.posts.GetByID(ctx, postID)
}

// Upvote casts a +1 vote on the post.
func (s *Service) Upvote(ctx context.Context, postID, agentID uuid.UUID) (*domain.Vote, error) {
	return s.votes.Cast(ctx, postID, agentID, 1)
}

// Downvote casts a -1 vote on the post.
func (s *Service) Downvote(ctx context.Context, postID, agentID uuid.UUID) (*domain.Vote, error) {
	return s.votes.Cast(ctx, postID, agentID, -1)
}

// RecordFeedView logs a feed impression event for each shown post.
func (s *Service) RecordFeedView(ctx context.Context, agentID uuid.UUID, postIDs []uuid.UUID) error {
	if len(postIDs) == 0 {
		return fmt.Errorf("feed view needs at least one post id")
	}
	return s.activity.RecordFeedView(ctx, domain.FeedView{
		AgentID:  agentID,
		PostIDs:  postIDs,
		ViewedAt: s.clock.Now().UTC(),
	})
}

// RecentFeedViews returns the newest feed-view events, most recent first.
func (s *Service) RecentFeedViews(ctx context.Context, limit int64) ([]domain.FeedView, error) {
	return s.activity.RecentFeedViews(ctx, limit)
}

// GetResults builds the experiment report.
func (s *Service) GetResults(ctx context.Context) ([]domain.ReportRow, error) {
	return s.results.Results(ctx, s.cfg.Name)
}

// ListTreatments pages through the raw assignment rows, oldest first.
func (s *Service) ListTreatments(ctx context.Context, limit, offset int) ([]domain.TreatmentAssignment, error) {
	return s.assignments.List(ctx, s.cfg.Name, limit, offset)
}

// GetTreatment retrieves the assignment for a post.
func (s *Service) GetTreatment(ctx context.Context, postID uuid.UUID) (*domain.TreatmentAssignment, error) {
	return s.assignments.GetByPostID(ctx, postID)
}

// ExperimentStatus reports the live state of the experiment subsystem.
func (s *Service) ExperimentStatus(ctx context.Context) (*domain.ExperimentStatus, error) {
	status := &domain.ExperimentStatus{
		Enabled: s.cfg.Enabled,
		Name:    s.cfg.Name,
		Mode:    s.cfg.Mode,
		RunID:   s.cfg.RunID,
	}
	if !s.cfg.Enabled {
		return status, nil
	}

	counts, err := s.engine.ArmCounts(ctx)
	if err != nil {
		return nil, err
	}
	status.ArmCounts = counts
	status.PendingNudges = s.engine.PendingCount()

	if s.worldFeed != nil {
		feedStatus := s.worldFeed.Status()
		status.WorldFeed = &feedStatus
	}
	return status, nil
}

// PublishWorldItem creates a post under the world publisher account and
// assigns its treatment. This is the world feed's publish function.
func (s *Service) PublishWorldItem(ctx context.Context, item domain.WorldItem) error {
	post, err := s.posts.Create(ctx, s.publisher.ID, item.Title, item.Body, true)
	if err != nil {
		return fmt.Errorf("failed to create world post: %w", err)
	}

	if !s.cfg.Enabled {
		return nil
	}
	if _, err := s.engine.Assign(ctx, post.ID, true); err != nil {
		return fmt.Errorf("world post %s created but assignment failed: %w", post.ID, err)
	}
	return nil
}

// StartWorldFeed starts the content drip.
func (s *Service) StartWorldFeed() error {
	if s.worldFeed == nil {
		return fmt.Errorf("world feed not configured")
	}
	return s.worldFeed.Start()
}

// StopWorldFeed pauses the content drip.
func (s *Service) StopWorldFeed() error {
	if s.worldFeed == nil {
		return fmt.Errorf("world feed not configured")
	}
	s.worldFeed.Stop()
	return nil
}

// WorldFeedStatus reports the scheduler position.
func (s *Service) WorldFeedStatus() (domain.WorldFeedStatus, error) {
	if s.worldFeed == nil {
		return domain.WorldFeedStatus{}, fmt.Errorf("world feed not configured")
	}
	return s.worldFeed.Status(), nil
}

// Stop shuts the experiment side down: pending nudge timers are cancelled,
// the world feed stops ticking. Safe to call more than once.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		if s.worldFeed != nil {
			s.worldFeed.Stop()
		}
		s.engine.Shutdown()
		slog.Info("Application service stopped")
	})
}
