package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/agokrani/moltbook-api/internal/domain"
	"github.com/agokrani/moltbook-api/internal/metrics"
)

// Config carries the experiment parameters resolved at startup.
type Config struct {
	Name          string
	Mode          string
	RunID         *int
	DelaysMinutes []int
}

// Engine draws treatment assignments and schedules nudge execution. The
// assignment row is written before any timer is registered; if the write
// fails no nudge is ever scheduled.
type Engine struct {
	cfg         Config
	assignments domain.AssignmentRepository
	votes       domain.VoteRepository
	nudgeBot    *domain.Agent
	clock       clockwork.Clock
	registry    *pendingRegistry
	stopOnce    sync.Once

	// Draw functions, swappable in tests.
	pickArm   func() domain.Arm
	pickDelay func() int
}

// NewEngine creates an Engine. cfg.DelaysMinutes must be non-empty; config
// validation guarantees that before we get here.
func NewEngine(cfg Config, assignments domain.AssignmentRepository, votes domain.VoteRepository, nudgeBot *domain.Agent, clock clockwork.Clock) *Engine {
	e := &Engine{
		cfg:         cfg,
		assignments: assignments,
		votes:       votes,
		nudgeBot:    nudgeBot,
		clock:       clock,
		registry:    newPendingRegistry(),
	}
	e.pickArm = func() domain.Arm { return domain.Arms[rand.IntN(len(domain.Arms))] }
	e.pickDelay = func() int { return cfg.DelaysMinutes[rand.IntN(len(cfg.DelaysMinutes))] }
	return e
}

// Assign draws an arm for the post, persists the assignment, and schedules
// the nudge timer for non-control arms. A post that already has an
// assignment returns domain.ErrAssignmentExists and the original row is left
// untouched.
func (e *Engine) Assign(ctx context.Context, postID uuid.UUID, isWorld bool) (*domain.TreatmentAssignment, error) {
	arm := e.pickArm()

	assignment := &domain.TreatmentAssignment{
		ExperimentName: e.cfg.Name,
		ExperimentMode: e.cfg.Mode,
		RunID:          e.cfg.RunID,
		PostID:         postID,
		IsWorldContent: isWorld,
		Arm:            arm,
	}
	if arm != domain.ArmControl {
		delay := e.pickDelay()
		assignment.NudgeDelayMinutes = &delay
	}

	if err := e.assignments.Insert(ctx, assignment); err != nil {
		return nil, fmt.Errorf("failed to persist assignment: %w", err)
	}
	metrics.AssignmentsTotal.WithLabelValues(string(arm)).Inc()

	if arm != domain.ArmControl {
		e.schedule(assignment)
	}

	slog.InfoContext(ctx, "Treatment assigned",
		"assignment_id", assignment.ID.String(),
		"post_id", postID.String(),
		"arm", string(arm),
		"delay_minutes", assignment.NudgeDelayMinutes)

	return assignment, nil
}

func (e *Engine) schedule(a *domain.TreatmentAssignment) {
	delay := time.Duration(*a.NudgeDelayMinutes) * time.Minute
	assignmentID, postID, arm := a.ID, a.PostID, a.Arm

	timer := e.clock.AfterFunc(delay, func() {
		e.applyNudge(assignmentID, postID, arm)
	})
	e.registry.add(assignmentID, timer)
	metrics.NudgesScheduledTotal.Inc()
}

// PendingCount reports how many nudge timers are waiting in this process.
func (e *Engine) PendingCount() int {
	return e.registry.len()
}

// ArmCounts returns persisted assignment counts per arm.
func (e *Engine) ArmCounts(ctx context.Context) (map[domain.Arm]int, error) {
	return e.assignments.CountByArm(ctx, e.cfg.Name)
}

// Shutdown cancels every pending nudge timer. Safe to call more than once.
// The assignments stay in the database with their nudge columns null; a
// restarted process does not resurrect the timers.
func (e *Engine) Shutdown() {
	e.stopOnce.Do(func() {
		cancelled := e.registry.cancelAll()
		metrics.NudgesCancelledTotal.Add(float64(cancelled))
		if cancelled > 0 {
			slog.Info("Cancelled pending nudges", "count", cancelled)
		}
	})
}
