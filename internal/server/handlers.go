package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/agokrani/moltbook-api/internal/domain"
	apperrors "github.com/agokrani/moltbook-api/internal/errors"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// mapDomainError translates domain sentinels into structured errors so the
// middleware picks the right status code. Unknown errors pass through and
// end up as 500s.
func mapDomainError(err error) error {
	switch {
	case errors.Is(err, domain.ErrAgentNotFound):
		return apperrors.NotFoundError("agent not found")
	case errors.Is(err, domain.ErrPostNotFound):
		return apperrors.NotFoundError("post not found")
	case errors.Is(err, domain.ErrVoteNotFound):
		return apperrors.NotFoundError("vote not found")
	case errors.Is(err, domain.ErrAssignmentNotFound):
		return apperrors.NotFoundError("treatment assignment not found")
	case errors.Is(err, domain.ErrAssignmentExists):
		return apperrors.ConflictError("post already has a treatment assignment")
	case errors.Is(err, domain.ErrAlreadyVoted):
		return apperrors.ConflictError("agent already voted on this post")
	case errors.Is(err, domain.ErrNudgeAlreadyApplied):
		return apperrors.ConflictError("nudge already applied")
	default:
		return err
	}
}

func parseIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperrors.ValidationError("invalid " + name + " parameter")
	}
	return id, nil
}

type registerAgentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleRegisterAgent(c echo.Context) error {
	var req registerAgentRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Name == "" {
		return apperrors.ValidationError("name is required")
	}

	agent, err := s.app.RegisterAgent(c.Request().Context(), req.Name, req.Description)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusCreated, agent)
}

func (s *Server) handleGetAgent(c echo.Context) error {
	agentID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	agent, err := s.app.GetAgent(c.Request().Context(), agentID)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, agent)
}

type createPostRequest struct {
	AuthorID uuid.UUID `json:"author_id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
}

type createPostResponse struct {
	Post      *domain.Post                `json:"post"`
	Treatment *domain.TreatmentAssignment `json:"treatment,omitempty"`
}

func (s *Server) handleCreatePost(c echo.Context) error {
	var req createPostRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.AuthorID == uuid.Nil {
		return apperrors.ValidationError("author_id is required")
	}
	if req.Title == "" {
		return apperrors.ValidationError("title is required")
	}

	post, assignment, err := s.app.CreatePost(c.Request().Context(), req.AuthorID, req.Title, req.Body)
	if err != nil {
		if post != nil {
			// The post exists; only the assignment side failed.
			return apperrors.ExternalError("post created but treatment assignment failed", err).
				WithContext("post_id", post.ID.String())
		}
		return mapDomainError(err)
	}

	return c.JSON(http.StatusCreated, createPostResponse{Post: post, Treatment: assignment})
}

func (s *Server) handleGetPost(c echo.Context) error {
	postID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	post, err := s.app.GetPost(c.Request().Context(), postID)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, post)
}

type voteRequest struct {
	AgentID uuid.UUID `json:"agent_id"`
}

func (s *Server) handleUpvote(c echo.Context) error {
	return s.handleVote(c, s.app.Upvote)
}

func (s *Server) handleDownvote(c echo.Context) error {
	return s.handleVote(c, s.app.Downvote)
}

func (s *Server) handleVote(c echo.Context, cast func(ctx context.Context, postID, agentID uuid.UUID) (*domain.Vote, error)) error {
	postID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var req voteRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.AgentID == uuid.Nil {
		return apperrors.ValidationError("agent_id is required")
	}

	vote, err := cast(c.Request().Context(), postID, req.AgentID)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusCreated, vote)
}

type feedViewRequest struct {
	AgentID uuid.UUID   `json:"agent_id"`
	PostIDs []uuid.UUID `json:"post_ids"`
}

func (s *Server) handleRecordFeedView(c echo.Context) error {
	var req feedViewRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.AgentID == uuid.Nil {
		return apperrors.ValidationError("agent_id is required")
	}
	if len(req.PostIDs) == 0 {
		return apperrors.ValidationError("post_ids must not be empty")
	}

	if err := s.app.RecordFeedView(c.Request().Context(), req.AgentID, req.PostIDs); err != nil {
		return apperrors.ExternalError("failed to record feed view", err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleRecentFeedViews(c echo.Context) error {
	limit := defaultPageLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxPageLimit {
			return apperrors.ValidationError("limit must be between 1 and 1000")
		}
		limit = parsed
	}

	views, err := s.app.RecentFeedViews(c.Request().Context(), int64(limit))
	if err != nil {
		return apperrors.ExternalError("failed to read recent feed views", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"count": len(views),
		"views": views,
	})
}
