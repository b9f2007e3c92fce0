package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agokrani/moltbook-api/internal/platform/retry"
)

var connectPolicy = retry.Policy{
	MaxAttempts:    5,
	InitialBackoff: 500 * time.Millisecond,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Database not ready, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	},
}

// Connect opens a pgx pool and verifies connectivity with bounded retries,
// so the service survives the database coming up a moment later.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := retry.DoVoid(ctx, connectPolicy, func() error { return pool.Ping(ctx) }); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations applies the schema. Statements are idempotent so the
// function can run on every start.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT UNIQUE NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS posts (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			author_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			score INT NOT NULL DEFAULT 0,
			is_world BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_author_id ON posts(author_id)`,
		`CREATE TABLE IF NOT EXISTS votes (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			post_id UUID NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			agent_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			value INT NOT NULL CHECK (value IN (-1, 1)),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (post_id, agent_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_agent_id ON votes(agent_id)`,
		`CREATE TABLE IF NOT EXISTS treatment_assignments (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			experiment_name TEXT NOT NULL,
			experiment_mode TEXT NOT NULL,
			run_id INT,
			post_id UUID NOT NULL UNIQUE REFERENCES posts(id) ON DELETE CASCADE,
			is_world_content BOOLEAN NOT NULL DEFAULT FALSE,
			arm TEXT NOT NULL CHECK (arm IN ('nudge_up', 'nudge_down', 'control')),
			nudge_delay_minutes INT,
			nudge_applied_at TIMESTAMPTZ,
			nudge_vote_id UUID REFERENCES votes(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_experiment_name ON treatment_assignments(experiment_name)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_arm ON treatment_assignments(arm)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_run_id ON treatment_assignments(run_id)`,
	}

	for _, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	slog.Info("Database migrations completed")
	return nil
}
