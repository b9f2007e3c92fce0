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

// pgForeignKeyViolation is the PostgreSQL error code for a missing referenced row.
const pgForeignKeyViolation = "23503"

// postColumns must match the Scan order in scanPost.
const postColumns = `id, author_id, title, body, score, is_world, created_at`

// PostRepo implements domain.PostRepository backed by PostgreSQL.
type PostRepo struct {
	pool *pgxpool.Pool
}

// NewPostRepo creates a PostRepo from the shared pool.
func NewPostRepo(pool *pgxpool.Pool) *PostRepo {
	return &PostRepo{pool: pool}
}

func scanPost(row pgx.Row) (*domain.Post, error) {
	var post domain.Post
	err := row.Scan(&post.ID, &post.AuthorID, &post.Title, &post.Body, &post.Score, &post.IsWorld, &post.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// Create inserts a post with a zero score.
func (r *PostRepo) Create(ctx context.Context, authorID uuid.UUID, title, body string, isWorld bool) (*domain.Post, error) {
	post, err := scanPost(r.pool.QueryRow(ctx, `
		INSERT INTO posts (author_id, title, body, is_world)
		VALUES ($1, $2, $3, $4)
		RETURNING `+postColumns,
		authorID, title, body, isWorld))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, domain.ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	return post, nil
}

// GetByID looks up a post by id.
func (r *PostRepo) GetByID(ctx context.Context, postID uuid.UUID) (*domain.Post, error) {
	post, err := scanPost(r.pool.QueryRow(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1`, postID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return post, nil
}
