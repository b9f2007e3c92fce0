// Package report builds the experiment results view: every assignment joined
// with its post's score, the organic vote count, and feed impressions.
package report

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/agokrani/moltbook-api/internal/domain"
)

// Aggregator assembles report rows. Concurrent requests for the same
// experiment are collapsed with singleflight since the underlying join is
// the most expensive query in the system.
type Aggregator struct {
	assignments domain.AssignmentRepository
	activity    domain.ActivityLog
	nudgeBotID  uuid.UUID
	group       singleflight.Group
}

// NewAggregator creates an Aggregator. nudgeBotID identifies the bot whose
// votes are excluded from organic counts and backed out of adjusted scores.
func NewAggregator(assignments domain.AssignmentRepository, activity domain.ActivityLog, nudgeBotID uuid.UUID) *Aggregator {
	return &Aggregator{
		assignments: assignments,
		activity:    activity,
		nudgeBotID:  nudgeBotID,
	}
}

// Results returns one row per assignment, ordered by assignment creation
// time ascending.
func (a *Aggregator) Results(ctx context.Context, experimentName string) ([]domain.ReportRow, error) {
	rows, err, _ := a.group.Do(experimentName, func() (any, error) {
		return a.build(ctx, experimentName)
	})
	if err != nil {
		return nil, err
	}
	return rows.([]domain.ReportRow), nil
}

func (a *Aggregator) build(ctx context.Context, experimentName string) ([]domain.ReportRow, error) {
	scored, err := a.assignments.ListWithScores(ctx, experimentName, a.nudgeBotID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}

	rows := make([]domain.ReportRow, 0, len(scored))
	for _, s := range scored {
		assignment := s.Assignment

		impressions, err := a.activity.ImpressionCount(ctx, assignment.PostID)
		if err != nil {
			return nil, fmt.Errorf("failed to load impressions for post %s: %w", assignment.PostID, err)
		}

		rows = append(rows, domain.ReportRow{
			AssignmentID:   assignment.ID,
			PostID:         assignment.PostID,
			Arm:            assignment.Arm,
			IsWorldContent: assignment.IsWorldContent,
			RunID:          assignment.RunID,
			NudgeApplied:   assignment.NudgeApplied(),
			NudgeAppliedAt: assignment.NudgeAppliedAt,
			Score:          s.Score,
			AdjustedScore:  adjustedScore(assignment.Arm, assignment.NudgeApplied(), s.Score),
			OrganicVotes:   s.OrganicVotes,
			Impressions:    impressions,
			CreatedAt:      assignment.CreatedAt,
		})
	}
	return rows, nil
}

// adjustedScore backs the synthetic vote out of the raw score. Only an
// applied nudge moved the score, so unapplied assignments pass through.
func adjustedScore(arm domain.Arm, applied bool, score int) int {
	if !applied {
		return score
	}
	switch arm {
	case domain.ArmNudgeUp:
		return score - 1
	case domain.ArmNudgeDown:
		return score + 1
	default:
		return score
	}
}
