package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agokrani/moltbook-api/internal/domain"
)

// pgUniqueViolation is the PostgreSQL error code for a unique constraint violation.
const pgUniqueViolation = "23505"

// assignmentColumns must match the Scan order in scanAssignment.
const assignmentColumns = `id, experiment_name, experiment_mode, run_id, post_id, is_world_content, arm, nudge_delay_minutes, nudge_applied_at, nudge_vote_id, created_at`

// AssignmentRepo implements domain.AssignmentRepository backed by PostgreSQL.
type AssignmentRepo struct {
	pool *pgxpool.Pool
}

// NewAssignmentRepo creates an AssignmentRepo from the shared pool.
func NewAssignmentRepo(pool *pgxpool.Pool) *AssignmentRepo {
	return &AssignmentRepo{pool: pool}
}

func scanAssignment(row pgx.Row) (*domain.TreatmentAssignment, error) {
	var a domain.TreatmentAssignment
	err := row.Scan(
		&a.ID, &a.ExperimentName, &a.ExperimentMode, &a.RunID, &a.PostID,
		&a.IsWorldContent, &a.Arm, &a.NudgeDelayMinutes, &a.NudgeAppliedAt,
		&a.NudgeVoteID, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Insert persists a new assignment and fills in the generated id and
// created_at. A second assignment for the same post returns
// domain.ErrAssignmentExists; the original row is untouched.
func (r *AssignmentRepo) Insert(ctx context.Context, a *domain.TreatmentAssignment) error {
	row, err := scanAssignment(r.pool.QueryRow(ctx, `
		INSERT INTO treatment_assignments
			(experiment_name, experiment_mode, run_id, post_id, is_world_content, arm, nudge_delay_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+assignmentColumns,
		a.ExperimentName, a.ExperimentMode, a.RunID, a.PostID, a.IsWorldContent, a.Arm, a.NudgeDelayMinutes))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return domain.ErrAssignmentExists
			case pgForeignKeyViolation:
				return domain.ErrPostNotFound
			}
		}
		return fmt.Errorf("failed to insert assignment: %w", err)
	}

	*a = *row
	return nil
}

// MarkNudgeApplied sets nudge_applied_at and nudge_vote_id in a single
// guarded update that only fires while both are still null. The guard makes
// the transition exactly-once even if the executor were ever invoked twice.
func (r *AssignmentRepo) MarkNudgeApplied(ctx context.Context, assignmentID, voteID uuid.UUID, appliedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE treatment_assignments
		SET nudge_applied_at = $2, nudge_vote_id = $3
		WHERE id = $1 AND nudge_applied_at IS NULL
	`, assignmentID, appliedAt, voteID)
	if err != nil {
		return fmt.Errorf("failed to mark nudge applied: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No row updated: either the assignment is gone or the nudge already
	// landed. Tell them apart for the caller's log line.
	var exists bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM treatment_assignments WHERE id = $1)`, assignmentID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check assignment existence: %w", err)
	}
	if !exists {
		return domain.ErrAssignmentNotFound
	}
	return domain.ErrNudgeAlreadyApplied
}

// GetByPostID returns the assignment for a post.
func (r *AssignmentRepo) GetByPostID(ctx context.Context, postID uuid.UUID) (*domain.TreatmentAssignment, error) {
	a, err := scanAssignment(r.pool.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM treatment_assignments WHERE post_id = $1`, postID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// List returns assignments for an experiment in chronological order.
func (r *AssignmentRepo) List(ctx context.Context, experimentName string, limit, offset int) ([]domain.TreatmentAssignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM treatment_assignments
		WHERE experiment_name = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, experimentName, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []domain.TreatmentAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

// ListWithScores joins each assignment with the post's current score and its
// organic vote count (votes excluding excludeAgentID, the nudger), ordered
// by assignment creation time ascending.
func (r *AssignmentRepo) ListWithScores(ctx context.Context, experimentName string, excludeAgentID uuid.UUID) ([]domain.AssignmentScore, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			a.id, a.experiment_name, a.experiment_mode, a.run_id, a.post_id,
			a.is_world_content, a.arm, a.nudge_delay_minutes, a.nudge_applied_at,
			a.nudge_vote_id, a.created_at,
			p.score,
			(SELECT COUNT(*) FROM votes v WHERE v.post_id = p.id AND v.agent_id <> $2) AS organic_votes
		FROM treatment_assignments a
		JOIN posts p ON p.id = a.post_id
		WHERE a.experiment_name = $1
		ORDER BY a.created_at ASC
	`, experimentName, excludeAgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments with scores: %w", err)
	}
	defer rows.Close()

	var results []domain.AssignmentScore
	for rows.Next() {
		var s domain.AssignmentScore
		a := &s.Assignment
		err := rows.Scan(
			&a.ID, &a.ExperimentName, &a.ExperimentMode, &a.RunID, &a.PostID,
			&a.IsWorldContent, &a.Arm, &a.NudgeDelayMinutes, &a.NudgeAppliedAt,
			&a.NudgeVoteID, &a.CreatedAt,
			&s.Score, &s.OrganicVotes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment score: %w", err)
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// CountByArm returns assignment counts per arm for the status summary.
func (r *AssignmentRepo) CountByArm(ctx context.Context, experimentName string) (map[domain.Arm]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT arm, COUNT(*)
		FROM treatment_assignments
		WHERE experiment_name = $1
		GROUP BY arm
	`, experimentName)
	if err != nil {
		return nil, fmt.Errorf("failed to count assignments by arm: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Arm]int, len(domain.Arms))
	for _, arm := range domain.Arms {
		counts[arm] = 0
	}
	for rows.Next() {
		var arm domain.Arm
		var count int
		if err := rows.Scan(&arm, &count); err != nil {
			return nil, fmt.Errorf("failed to scan arm count: %w", err)
		}
		counts[arm] = count
	}
	return counts, rows.Err()
}
