package server

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/agokrani/moltbook-api/internal/config"
	"github.com/agokrani/moltbook-api/internal/domain"
	apperrors "github.com/agokrani/moltbook-api/internal/errors"
	"github.com/agokrani/moltbook-api/internal/metrics"
	"github.com/agokrani/moltbook-api/internal/platform/correlation"
)

// AppService is the application layer surface the handlers call.
type AppService interface {
	RegisterAgent(ctx context.Context, name, description string) (*domain.Agent, error)
	GetAgent(ctx context.Context, agentID uuid.UUID) (*domain.Agent, error)
	CreatePost(ctx context.Context, authorID uuid.UUID, title, body string) (*domain.Post, *domain.TreatmentAssignment, error)
	GetPost(ctx context.Context, postID uuid.UUID) (*domain.Post, error)
	Upvote(ctx context.Context, postID, agentID uuid.UUID) (*domain.Vote, error)
	Downvote(ctx context.Context, postID, agentID uuid.UUID) (*domain.Vote, error)
	RecordFeedView(ctx context.Context, agentID uuid.UUID, postIDs []uuid.UUID) error
	RecentFeedViews(ctx context.Context, limit int64) ([]domain.FeedView, error)
	GetResults(ctx context.Context) ([]domain.ReportRow, error)
	ExperimentStatus(ctx context.Context) (*domain.ExperimentStatus, error)
	ListTreatments(ctx context.Context, limit, offset int) ([]domain.TreatmentAssignment, error)
	GetTreatment(ctx context.Context, postID uuid.UUID) (*domain.TreatmentAssignment, error)
	StartWorldFeed() error
	StopWorldFeed() error
	WorldFeedStatus() (domain.WorldFeedStatus, error)
}

// postgresHealthChecker is the minimal interface for PostgreSQL health checks.
type postgresHealthChecker interface {
	Ping(ctx context.Context) error
}

// redisHealthChecker is the minimal interface for Redis health checks.
type redisHealthChecker interface {
	Ping(ctx context.Context) *goredis.StatusCmd
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	app       AppService
	db        postgresHealthChecker
	redis     redisHealthChecker
	startTime time.Time
}

// NewServer wires the HTTP layer. db and redisClient back the readiness
// checks; *pgxpool.Pool and *goredis.Client satisfy them directly.
func NewServer(cfg *config.Config, app AppService, db postgresHealthChecker, redisClient redisHealthChecker) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(correlationMiddleware())
	e.Use(metricsMiddleware())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:      e,
		config:    cfg,
		app:       app,
		db:        db,
		redis:     redisClient,
		startTime: time.Now(),
	}
	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// correlationMiddleware tags every request context with a correlation id so
// all log lines of one request can be tied together.
func correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := correlation.NewContext(c.Request().Context())
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func metricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			method := c.Request().Method
			metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Response().Status)).Inc()
			return err
		}
	}
}
