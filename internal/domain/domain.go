package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// --- Model types ---

// Agent is an account on the network. System agents (the world-content
// publisher and the nudge bot) live in the same table as ordinary agents and
// are distinguished only by their fixed names.
type Agent struct {
	ID          uuid.UUID `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// Post is a content item. Score is maintained by atomic increments on vote
// casts, never by read-modify-write.
type Post struct {
	ID        uuid.UUID `db:"id"`
	AuthorID  uuid.UUID `db:"author_id"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	Score     int       `db:"score"`
	IsWorld   bool      `db:"is_world"`
	CreatedAt time.Time `db:"created_at"`
}

// Vote is a single agent's vote on a post. Value is +1 or -1; one vote per
// (post, agent) pair.
type Vote struct {
	ID        uuid.UUID `db:"id"`
	PostID    uuid.UUID `db:"post_id"`
	AgentID   uuid.UUID `db:"agent_id"`
	Value     int       `db:"value"`
	CreatedAt time.Time `db:"created_at"`
}

// Arm is the experimental treatment assigned to a post.
type Arm string

const (
	ArmNudgeUp   Arm = "nudge_up"
	ArmNudgeDown Arm = "nudge_down"
	ArmControl   Arm = "control"
)

// Arms lists all arms in draw order.
var Arms = []Arm{ArmNudgeUp, ArmNudgeDown, ArmControl}

// TreatmentAssignment records the arm drawn for a post, exactly one per post.
//
// Invariants:
//   - arm == control implies NudgeDelayMinutes, NudgeAppliedAt and
//     NudgeVoteID stay nil for the lifetime of the record.
//   - NudgeAppliedAt transitions nil -> timestamp at most once and never
//     reverts; NudgeVoteID is set in the same update.
//
// A non-control assignment with a nil NudgeAppliedAt is either still waiting
// for its timer or had its nudge fail (or the process restarted before the
// timer fired). The record alone does not distinguish these; process logs do.
type TreatmentAssignment struct {
	ID                uuid.UUID  `db:"id"`
	ExperimentName    string     `db:"experiment_name"`
	ExperimentMode    string     `db:"experiment_mode"`
	RunID             *int       `db:"run_id"`
	PostID            uuid.UUID  `db:"post_id"`
	IsWorldContent    bool       `db:"is_world_content"`
	Arm               Arm        `db:"arm"`
	NudgeDelayMinutes *int       `db:"nudge_delay_minutes"`
	NudgeAppliedAt    *time.Time `db:"nudge_applied_at"`
	NudgeVoteID       *uuid.UUID `db:"nudge_vote_id"`
	CreatedAt         time.Time  `db:"created_at"`
}

// NudgeApplied reports whether the synthetic vote has been cast and recorded.
func (a *TreatmentAssignment) NudgeApplied() bool {
	return a.NudgeAppliedAt != nil
}

// AssignmentScore is an assignment joined with the post's current state,
// as read by the reporting side.
type AssignmentScore struct {
	Assignment   TreatmentAssignment
	Score        int
	OrganicVotes int
}

// ReportRow is one line of the experiment report.
type ReportRow struct {
	AssignmentID   uuid.UUID  `json:"assignment_id"`
	PostID         uuid.UUID  `json:"post_id"`
	Arm            Arm        `json:"arm"`
	IsWorldContent bool       `json:"is_world_content"`
	RunID          *int       `json:"run_id,omitempty"`
	NudgeApplied   bool       `json:"nudge_applied"`
	NudgeAppliedAt *time.Time `json:"nudge_applied_at,omitempty"`
	Score          int        `json:"score"`
	AdjustedScore  int        `json:"adjusted_score"`
	OrganicVotes   int        `json:"organic_votes"`
	Impressions    int64      `json:"impressions"`
	CreatedAt      time.Time  `json:"created_at"`
}

// FeedView is one feed-impression event: an agent saw a page of post ids.
type FeedView struct {
	AgentID  uuid.UUID   `json:"agent_id"`
	PostIDs  []uuid.UUID `json:"post_ids"`
	ViewedAt time.Time   `json:"viewed_at"`
}

// WorldItem is one pre-authored piece of world content, loaded from a
// JSONL source file.
type WorldItem struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// WorldFeedStatus describes the world-content scheduler.
type WorldFeedStatus struct {
	State     string        `json:"state"`
	Running   bool          `json:"running"`
	Published int           `json:"published"`
	Remaining int           `json:"remaining"`
	Total     int           `json:"total"`
	Interval  time.Duration `json:"interval"`
}

// ExperimentStatus is the status-endpoint payload.
type ExperimentStatus struct {
	Enabled       bool             `json:"enabled"`
	Name          string           `json:"name"`
	Mode          string           `json:"mode"`
	RunID         *int             `json:"run_id,omitempty"`
	PendingNudges int              `json:"pending_nudges"`
	ArmCounts     map[Arm]int      `json:"arm_counts"`
	WorldFeed     *WorldFeedStatus `json:"world_feed,omitempty"`
}

// --- Collaborator interfaces ---

// AgentRepository abstracts agent persistence and doubles as the actor
// registry for system agents.
type AgentRepository interface {
	RegisterIfAbsent(ctx context.Context, name, description string) (*Agent, error)
	FindByName(ctx context.Context, name string) (*Agent, error)
	GetByID(ctx context.Context, agentID uuid.UUID) (*Agent, error)
}

// PostRepository abstracts content persistence.
type PostRepository interface {
	Create(ctx context.Context, authorID uuid.UUID, title, body string, isWorld bool) (*Post, error)
	GetByID(ctx context.Context, postID uuid.UUID) (*Post, error)
}

// VoteRepository abstracts vote persistence. Cast inserts the vote and
// adjusts the post score in one transaction; a second vote by the same agent
// on the same post returns ErrAlreadyVoted.
type VoteRepository interface {
	Cast(ctx context.Context, postID, agentID uuid.UUID, value int) (*Vote, error)
	Find(ctx context.Context, agentID, postID uuid.UUID) (*Vote, error)
}

// AssignmentRepository abstracts treatment-assignment persistence.
type AssignmentRepository interface {
	Insert(ctx context.Context, a *TreatmentAssignment) error
	// MarkNudgeApplied transitions nudge_applied_at/nudge_vote_id from null
	// to set in a single guarded update. Returns ErrNudgeAlreadyApplied if
	// the row was already applied.
	MarkNudgeApplied(ctx context.Context, assignmentID, voteID uuid.UUID, appliedAt time.Time) error
	GetByPostID(ctx context.Context, postID uuid.UUID) (*TreatmentAssignment, error)
	List(ctx context.Context, experimentName string, limit, offset int) ([]TreatmentAssignment, error)
	// ListWithScores joins assignments with current post scores and organic
	// vote counts (votes excluding excludeAgentID), ordered by assignment
	// creation time ascending.
	ListWithScores(ctx context.Context, experimentName string, excludeAgentID uuid.UUID) ([]AssignmentScore, error)
	CountByArm(ctx context.Context, experimentName string) (map[Arm]int, error)
}

// ActivityLog is the append-only feed-impression event log.
type ActivityLog interface {
	RecordFeedView(ctx context.Context, view FeedView) error
	ImpressionCount(ctx context.Context, postID uuid.UUID) (int64, error)
	// RecentFeedViews returns up to limit events, newest first.
	RecentFeedViews(ctx context.Context, limit int64) ([]FeedView, error)
}
