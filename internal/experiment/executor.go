package experiment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/agokrani/moltbook-api/internal/domain"
	"github.com/agokrani/moltbook-api/internal/metrics"
	"github.com/agokrani/moltbook-api/internal/platform/correlation"
)

// applyNudge runs when an assignment's timer fires. It casts the bot's vote
// and records the application in a guarded update. Any failure is logged and
// counted, never retried; the assignment keeps its null nudge columns.
func (e *Engine) applyNudge(assignmentID, postID uuid.UUID, arm domain.Arm) {
	// Timer callbacks have no request context; give the attempt its own id.
	ctx := correlation.NewContext(context.Background())

	if !e.registry.remove(assignmentID) {
		// Cancelled by shutdown between fire and execution.
		return
	}

	value := 1
	if arm == domain.ArmNudgeDown {
		value = -1
	}

	vote, err := e.votes.Cast(ctx, postID, e.nudgeBot.ID, value)
	if err != nil {
		reason := "vote_failed"
		if errors.Is(err, domain.ErrAlreadyVoted) {
			reason = "already_voted"
		}
		metrics.NudgesFailedTotal.WithLabelValues(reason).Inc()
		slog.ErrorContext(ctx, "Nudge vote failed, abandoning",
			"assignment_id", assignmentID.String(),
			"post_id", postID.String(),
			"arm", string(arm),
			"error", err)
		return
	}

	if err := e.assignments.MarkNudgeApplied(ctx, assignmentID, vote.ID, e.clock.Now().UTC()); err != nil {
		reason := "mark_failed"
		if errors.Is(err, domain.ErrNudgeAlreadyApplied) {
			reason = "already_applied"
		}
		metrics.NudgesFailedTotal.WithLabelValues(reason).Inc()
		slog.ErrorContext(ctx, "Failed to record nudge application",
			"assignment_id", assignmentID.String(),
			"vote_id", vote.ID.String(),
			"error", err)
		return
	}

	metrics.NudgesAppliedTotal.WithLabelValues(string(arm)).Inc()
	slog.InfoContext(ctx, "Nudge applied",
		"assignment_id", assignmentID.String(),
		"post_id", postID.String(),
		"arm", string(arm),
		"vote_id", vote.ID.String())
}
