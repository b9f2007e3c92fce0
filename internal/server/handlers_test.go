package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agokrani/moltbook-api/internal/config"
	"github.com/agokrani/moltbook-api/internal/domain"
)

// --- Mock implementations ---

type mockApp struct {
	registerAgentFn    func(ctx context.Context, name, description string) (*domain.Agent, error)
	getAgentFn         func(ctx context.Context, agentID uuid.UUID) (*domain.Agent, error)
	createPostFn       func(ctx context.Context, authorID uuid.UUID, title, body string) (*domain.Post, *domain.TreatmentAssignment, error)
	getPostFn          func(ctx context.Context, postID uuid.UUID) (*domain.Post, error)
	upvoteFn           func(ctx context.Context, postID, agentID uuid.UUID) (*domain.Vote, error)
	downvoteFn         func(ctx context.Context, postID, agentID uuid.UUID) (*domain.Vote, error)
	recordFeedViewFn   func(ctx context.Context, agentID uuid.UUID, postIDs []uuid.UUID) error
	recentFeedViewsFn  func(ctx context.Context, limit int64) ([]domain.FeedView, error)
	getResultsFn       func(ctx context.Context) ([]domain.ReportRow, error)
	experimentStatusFn func(ctx context.Context) (*domain.ExperimentStatus, error)
	listTreatmentsFn   func(ctx context.Context, limit, offset int) ([]domain.TreatmentAssignment, error)
	getTreatmentFn     func(ctx context.Context, postID uuid.UUID) (*domain.TreatmentAssignment, error)
	startWorldFeedFn   func() error
	stopWorldFeedFn    func() error
	worldFeedStatusFn  func() (domain.WorldFeedStatus, error)
}

func (m *mockApp) RegisterAgent(ctx context.Context, name, description string) (*domain.Agent, error) {
	if m.registerAgentFn != nil {
		return m.registerAgentFn(ctx, name, description)
	}
	return &domain.Agent{ID: uuid.New(), Name: name, Description: description}, nil
}

func (m *mockApp) GetAgent(ctx context.Context, agentID uuid.UUID) (*domain.Agent, error) {
	if m.getAgentFn != nil {
		return m.getAgentFn(ctx, agentID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockApp) CreatePost(ctx context.Context, authorID uuid.UUID, title, body string) (*domain.Post, *domain.TreatmentAssignment, error) {
	if m.createPostFn != nil {
		return m.createPostFn(ctx, authorID, title, body)
	}
	return nil, nil, fmt.Errorf("not implemented")
}

func (m *mockApp) GetPost(ctx context.Context, postID uuid.UUID) (*domain.Post, error) {
	if m.getPostFn != nil {
		return m.getPostFn(ctx, postID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockApp) Upvote(ctx context.Context, postID, agentID uuid.UUID) (*domain.Vote, error) {
	if m.upvoteFn != nil {
		return m.upvoteFn(ctx, postID, agentID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockApp) Downvote(ctx context.Context, postID, agentID uuid.UUID) (*domain.Vote, error) {
	if m.downvoteFn != nil {
		return m.downvoteFn(ctx, postID, agentID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockApp) RecordFeedView(ctx context.Context, agentID uuid.UUID, postIDs []uuid.UUID) error {
	if m.recordFeedViewFn != nil {
		return m.recordFeedViewFn(ctx, agentID, postIDs)
	}
	return nil
}

func (m *mockApp) RecentFeedViews(ctx context.Context, limit int64) ([]domain.FeedView, error) {
	if m.recentFeedViewsFn != nil {
		return m.recentFeedViewsFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockApp) GetResults(ctx context.Context) ([]domain.ReportRow, error) {
	if m.getResultsFn != nil {
		return m.getResultsFn(ctx)
	}
	return nil, nil
}

func (m *mockApp) ExperimentStatus(ctx context.Context) (*domain.ExperimentStatus, error) {
	if m.experimentStatusFn != nil {
		return m.experimentStatusFn(ctx)
	}
	return &domain.ExperimentStatus{Enabled: true, Name: "ranking-nudge"}, nil
}

func (m *mockApp) ListTreatments(ctx context.Context, limit, offset int) ([]domain.TreatmentAssignment, error) {
	if m.listTreatmentsFn != nil {
		return m.listTreatmentsFn(ctx, limit, offset)
	}
	return nil, nil
}

func (m *mockApp) GetTreatment(ctx context.Context, postID uuid.UUID) (*domain.TreatmentAssignment, error) {
	if m.getTreatmentFn != nil {
		return m.getTreatmentFn(ctx, postID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockApp) StartWorldFeed() error {
	if m.startWorldFeedFn != nil {
		return m.startWorldFeedFn()
	}
	return nil
}

func (m *mockApp) StopWorldFeed() error {
	if m.stopWorldFeedFn != nil {
		return m.stopWorldFeedFn()
	}
	return nil
}

func (m *mockApp) WorldFeedStatus() (domain.WorldFeedStatus, error) {
	if m.worldFeedStatusFn != nil {
		return m.worldFeedStatusFn()
	}
	return domain.WorldFeedStatus{State: "loaded"}, nil
}

type mockPG struct {
	pingFn func(ctx context.Context) error
}

func (m *mockPG) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

type mockRedis struct {
	pingErr error
}

func (m *mockRedis) Ping(ctx context.Context) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	if m.pingErr != nil {
		cmd.SetErr(m.pingErr)
	} else {
		cmd.SetVal("PONG")
	}
	return cmd
}

func newTestServer(app *mockApp) *Server {
	cfg := &config.Config{Port: "8080"}
	return NewServer(cfg, app, &mockPG{}, &mockRedis{})
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

// --- Tests ---

func TestHandleRegisterAgent(t *testing.T) {
	s := newTestServer(&mockApp{})

	rec := doRequest(s, http.MethodPost, "/api/agents", `{"name":"alice","description":"an agent"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var agent domain.Agent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agent))
	assert.Equal(t, "alice", agent.Name)
}

func TestHandleRegisterAgent_MissingName(t *testing.T) {
	s := newTestServer(&mockApp{})

	rec := doRequest(s, http.MethodPost, "/api/agents", `{"description":"no name"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetAgent_NotFound(t *testing.T) {
	s := newTestServer(&mockApp{
		getAgentFn: func(context.Context, uuid.UUID) (*domain.Agent, error) {
			return nil, domain.ErrAgentNotFound
		},
	})

	rec := doRequest(s, http.MethodGet, "/api/agents/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetAgent_InvalidID(t *testing.T) {
	s := newTestServer(&mockApp{})

	rec := doRequest(s, http.MethodGet, "/api/agents/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreatePost(t *testing.T) {
	authorID := uuid.New()
	app := &mockApp{
		createPostFn: func(_ context.Context, author uuid.UUID, title, body string) (*domain.Post, *domain.TreatmentAssignment, error) {
			post := &domain.Post{ID: uuid.New(), AuthorID: author, Title: title, Body: body}
			return post, &domain.TreatmentAssignment{ID: uuid.New(), PostID: post.ID, Arm: domain.ArmNudgeUp}, nil
		},
	}
	s := newTestServer(app)

	body := fmt.Sprintf(`{"author_id":%q,"title":"hello","body":"text"}`, authorID)
	rec := doRequest(s, http.MethodPost, "/api/posts", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp createPostResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, authorID, resp.Post.AuthorID)
	require.NotNil(t, resp.Treatment)
	assert.Equal(t, domain.ArmNudgeUp, resp.Treatment.Arm)
}

func TestHandleCreatePost_AssignmentFailure(t *testing.T) {
	app := &mockApp{
		createPostFn: func(_ context.Context, author uuid.UUID, title, body string) (*domain.Post, *domain.TreatmentAssignment, error) {
			post := &domain.Post{ID: uuid.New(), AuthorID: author, Title: title}
			return post, nil, fmt.Errorf("assignment failed")
		},
	}
	s := newTestServer(app)

	body := fmt.Sprintf(`{"author_id":%q,"title":"hello"}`, uuid.New())
	rec := doRequest(s, http.MethodPost, "/api/posts", body)

	// Post creation succeeded; the collaborator failure is surfaced as 502.
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "post_id")
}

func TestHandleCreatePost_UnknownAuthor(t *testing.T) {
	app := &mockApp{
		createPostFn: func(context.Context, uuid.UUID, string, string) (*domain.Post, *domain.TreatmentAssignment, error) {
			return nil, nil, domain.ErrAgentNotFound
		},
	}
	s := newTestServer(app)

	body := fmt.Sprintf(`{"author_id":%q,"title":"hello"}`, uuid.New())
	rec := doRequest(s, http.MethodPost, "/api/posts", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCreatePost_Validation(t *testing.T) {
	s := newTestServer(&mockApp{})

	rec := doRequest(s, http.MethodPost, "/api/posts", `{"title":"missing author"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/posts", fmt.Sprintf(`{"author_id":%q}`, uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUpvote(t *testing.T) {
	postID := uuid.New()
	agentID := uuid.New()
	app := &mockApp{
		upvoteFn: func(_ context.Context, p, a uuid.UUID) (*domain.Vote, error) {
			assert.Equal(t, postID, p)
			assert.Equal(t, agentID, a)
			return &domain.Vote{ID: uuid.New(), PostID: p, AgentID: a, Value: 1}, nil
		},
	}
	s := newTestServer(app)

	body := fmt.Sprintf(`{"agent_id":%q}`, agentID)
	rec := doRequest(s, http.MethodPost, "/api/posts/"+postID.String()+"/upvote", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var vote domain.Vote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vote))
	assert.Equal(t, 1, vote.Value)
}

func TestHandleDownvote_Duplicate(t *testing.T) {
	app := &mockApp{
		downvoteFn: func(context.Context, uuid.UUID, uuid.UUID) (*domain.Vote, error) {
			return nil, domain.ErrAlreadyVoted
		},
	}
	s := newTestServer(app)

	body := fmt.Sprintf(`{"agent_id":%q}`, uuid.New())
	rec := doRequest(s, http.MethodPost, "/api/posts/"+uuid.NewString()+"/downvote", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleRecordFeedView(t *testing.T) {
	var recordedAgent uuid.UUID
	var recordedPosts []uuid.UUID
	app := &mockApp{
		recordFeedViewFn: func(_ context.Context, agentID uuid.UUID, postIDs []uuid.UUID) error {
			recordedAgent = agentID
			recordedPosts = postIDs
			return nil
		},
	}
	s := newTestServer(app)

	agentID := uuid.New()
	p1, p2 := uuid.New(), uuid.New()
	body := fmt.Sprintf(`{"agent_id":%q,"post_ids":[%q,%q]}`, agentID, p1, p2)
	rec := doRequest(s, http.MethodPost, "/api/feed/views", body)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, agentID, recordedAgent)
	assert.Equal(t, []uuid.UUID{p1, p2}, recordedPosts)
}

func TestHandleRecordFeedView_EmptyPostIDs(t *testing.T) {
	s := newTestServer(&mockApp{})

	body := fmt.Sprintf(`{"agent_id":%q,"post_ids":[]}`, uuid.New())
	rec := doRequest(s, http.MethodPost, "/api/feed/views", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRecentFeedViews(t *testing.T) {
	agentID := uuid.New()
	var gotLimit int64
	app := &mockApp{
		recentFeedViewsFn: func(_ context.Context, limit int64) ([]domain.FeedView, error) {
			gotLimit = limit
			return []domain.FeedView{{AgentID: agentID, PostIDs: []uuid.UUID{uuid.New()}}}, nil
		},
	}
	s := newTestServer(app)

	rec := doRequest(s, http.MethodGet, "/api/feed/views/recent?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(10), gotLimit)

	var resp struct {
		Count int               `json:"count"`
		Views []domain.FeedView `json:"views"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, agentID, resp.Views[0].AgentID)

	// Default limit applies when the parameter is missing.
	rec = doRequest(s, http.MethodGet, "/api/feed/views/recent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(defaultPageLimit), gotLimit)

	rec = doRequest(s, http.MethodGet, "/api/feed/views/recent?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleResults(t *testing.T) {
	app := &mockApp{
		getResultsFn: func(context.Context) ([]domain.ReportRow, error) {
			return []domain.ReportRow{
				{AssignmentID: uuid.New(), Arm: domain.ArmNudgeUp, Score: 5, AdjustedScore: 4, NudgeApplied: true},
			}, nil
		},
	}
	s := newTestServer(app)

	rec := doRequest(s, http.MethodGet, "/api/experiment/results", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count   int                `json:"count"`
		Results []domain.ReportRow `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 4, resp.Results[0].AdjustedScore)
}

func TestHandleResults_Failure(t *testing.T) {
	app := &mockApp{
		getResultsFn: func(context.Context) ([]domain.ReportRow, error) {
			return nil, fmt.Errorf("redis down")
		},
	}
	s := newTestServer(app)

	rec := doRequest(s, http.MethodGet, "/api/experiment/results", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleExperimentStatus(t *testing.T) {
	app := &mockApp{
		experimentStatusFn: func(context.Context) (*domain.ExperimentStatus, error) {
			return &domain.ExperimentStatus{
				Enabled:       true,
				Name:          "ranking-nudge",
				Mode:          "world",
				PendingNudges: 2,
				ArmCounts:     map[domain.Arm]int{domain.ArmControl: 1},
			}, nil
		},
	}
	s := newTestServer(app)

	rec := doRequest(s, http.MethodGet, "/api/experiment/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status domain.ExperimentStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Enabled)
	assert.Equal(t, 2, status.PendingNudges)
}

func TestHandleListTreatments_Pagination(t *testing.T) {
	var gotLimit, gotOffset int
	app := &mockApp{
		listTreatmentsFn: func(_ context.Context, limit, offset int) ([]domain.TreatmentAssignment, error) {
			gotLimit, gotOffset = limit, offset
			return nil, nil
		},
	}
	s := newTestServer(app)

	rec := doRequest(s, http.MethodGet, "/api/experiment/treatments?limit=25&offset=50", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 25, gotLimit)
	assert.Equal(t, 50, gotOffset)

	// Defaults apply when parameters are missing.
	rec = doRequest(s, http.MethodGet, "/api/experiment/treatments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultPageLimit, gotLimit)
	assert.Equal(t, 0, gotOffset)

	// Bad parameters are rejected.
	rec = doRequest(s, http.MethodGet, "/api/experiment/treatments?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doRequest(s, http.MethodGet, "/api/experiment/treatments?offset=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetTreatment_NotFound(t *testing.T) {
	app := &mockApp{
		getTreatmentFn: func(context.Context, uuid.UUID) (*domain.TreatmentAssignment, error) {
			return nil, domain.ErrAssignmentNotFound
		},
	}
	s := newTestServer(app)

	rec := doRequest(s, http.MethodGet, "/api/experiment/treatments/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleWorldFeed(t *testing.T) {
	app := &mockApp{
		worldFeedStatusFn: func() (domain.WorldFeedStatus, error) {
			return domain.WorldFeedStatus{State: "running", Running: true, Published: 1, Total: 3}, nil
		},
	}
	s := newTestServer(app)

	rec := doRequest(s, http.MethodPost, "/api/experiment/worldfeed/start", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/experiment/worldfeed/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status domain.WorldFeedStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Running)
	assert.Equal(t, 3, status.Total)

	rec = doRequest(s, http.MethodPost, "/api/experiment/worldfeed/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleWorldFeedStart_AlreadyRunning(t *testing.T) {
	app := &mockApp{
		startWorldFeedFn: func() error { return fmt.Errorf("world feed already running") },
	}
	s := newTestServer(app)

	rec := doRequest(s, http.MethodPost, "/api/experiment/worldfeed/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleLiveness(t *testing.T) {
	s := newTestServer(&mockApp{})

	rec := doRequest(s, http.MethodGet, "/health/live", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestHandleReadiness(t *testing.T) {
	s := newTestServer(&mockApp{})

	rec := doRequest(s, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ready")
}

func TestHandleReadiness_PostgresDown(t *testing.T) {
	cfg := &config.Config{Port: "8080"}
	s := NewServer(cfg, &mockApp{}, &mockPG{
		pingFn: func(context.Context) error { return fmt.Errorf("connection refused") },
	}, &mockRedis{})

	rec := doRequest(s, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "postgres")
}

func TestHandleReadiness_RedisDown(t *testing.T) {
	cfg := &config.Config{Port: "8080"}
	s := NewServer(cfg, &mockApp{}, &mockPG{}, &mockRedis{pingErr: fmt.Errorf("connection refused")})

	rec := doRequest(s, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")
}

func TestHandleVersion(t *testing.T) {
	s := newTestServer(&mockApp{})

	rec := doRequest(s, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "version")
}

func TestServerShutdown(t *testing.T) {
	s := newTestServer(&mockApp{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}
