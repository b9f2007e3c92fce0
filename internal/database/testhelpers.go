package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/agokrani/moltbook-api/internal/domain"
)

// CreateTestAgent creates an agent with default values for testing.
func CreateTestAgent(t *testing.T, pool *pgxpool.Pool, name string) *domain.Agent {
	t.Helper()

	repo := NewAgentRepo(pool)
	agent, err := repo.RegisterIfAbsent(context.Background(), name, "test agent "+name)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, agent.ID)

	return agent
}

// CreateTestPost creates a post authored by the given agent for testing.
func CreateTestPost(t *testing.T, pool *pgxpool.Pool, authorID uuid.UUID, title string) *domain.Post {
	t.Helper()

	repo := NewPostRepo(pool)
	post, err := repo.Create(context.Background(), authorID, title, "body of "+title, false)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, post.ID)

	return post
}
