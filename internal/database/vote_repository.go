package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agokrani/moltbook-api/internal/domain"
)

// voteColumns must match the Scan order in scanVote.
const voteColumns = `id, post_id, agent_id, value, created_at`

// VoteRepo implements domain.VoteRepository backed by PostgreSQL.
type VoteRepo struct {
	pool *pgxpool.Pool
}

// NewVoteRepo creates a VoteRepo from the shared pool.
func NewVoteRepo(pool *pgxpool.Pool) *VoteRepo {
	return &VoteRepo{pool: pool}
}

func scanVote(row pgx.Row) (*domain.Vote, error) {
	var vote domain.Vote
	err := row.Scan(&vote.ID, &vote.PostID, &vote.AgentID, &vote.Value, &vote.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &vote, nil
}

// Cast inserts the vote and bumps the post score in one transaction. The
// score update is a single atomic increment; the post row is never read
// first, so concurrent votes cannot lose updates.
func (r *VoteRepo) Cast(ctx context.Context, postID, agentID uuid.UUID, value int) (*domain.Vote, error) {
	if value != 1 && value != -1 {
		return nil, fmt.Errorf("vote value must be +1 or -1, got %d", value)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	vote, err := scanVote(tx.QueryRow(ctx, `
		INSERT INTO votes (post_id, agent_id, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (post_id, agent_id) DO NOTHING
		RETURNING `+voteColumns,
		postID, agentID, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAlreadyVoted
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, domain.ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to insert vote: %w", err)
	}

	tag, err := tx.Exec(ctx, `UPDATE posts SET score = score + $1 WHERE id = $2`, value, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to update post score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrPostNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return vote, nil
}

// Find looks up an agent's vote on a post.
func (r *VoteRepo) Find(ctx context.Context, agentID, postID uuid.UUID) (*domain.Vote, error) {
	vote, err := scanVote(r.pool.QueryRow(ctx,
		`SELECT `+voteColumns+` FROM votes WHERE agent_id = $1 AND post_id = $2`, agentID, postID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrVoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find vote: %w", err)
	}
	return vote, nil
}
