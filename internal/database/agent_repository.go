package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agokrani/moltbook-api/internal/domain"
)

// agentColumns must match the Scan order in scanAgent.
const agentColumns = `id, name, description, created_at`

// AgentRepo implements domain.AgentRepository backed by PostgreSQL.
type AgentRepo struct {
	pool *pgxpool.Pool
}

// NewAgentRepo creates an AgentRepo from the shared pool.
func NewAgentRepo(pool *pgxpool.Pool) *AgentRepo {
	return &AgentRepo{pool: pool}
}

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var agent domain.Agent
	err := row.Scan(&agent.ID, &agent.Name, &agent.Description, &agent.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// RegisterIfAbsent inserts the agent if the name is free, otherwise returns
// the existing row. This is the idempotent look-up-or-register used for the
// system actors.
func (r *AgentRepo) RegisterIfAbsent(ctx context.Context, name, description string) (*domain.Agent, error) {
	agent, err := scanAgent(r.pool.QueryRow(ctx, `
		INSERT INTO agents (name, description)
		VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
		RETURNING `+agentColumns,
		name, description))
	if err == nil {
		return agent, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to register agent: %w", err)
	}

	// Name taken: the insert returned nothing, fall back to lookup.
	return r.FindByName(ctx, name)
}

// FindByName looks up an agent by its unique name.
func (r *AgentRepo) FindByName(ctx context.Context, name string) (*domain.Agent, error) {
	agent, err := scanAgent(r.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find agent by name: %w", err)
	}
	return agent, nil
}

// GetByID looks up an agent by id.
func (r *AgentRepo) GetByID(ctx context.Context, agentID uuid.UUID) (*domain.Agent, error) {
	agent, err := scanAgent(r.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, agentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return agent, nil
}
