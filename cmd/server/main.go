package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/agokrani/moltbook-api/internal/app"
	"github.com/agokrani/moltbook-api/internal/config"
	"github.com/agokrani/moltbook-api/internal/database"
	"github.com/agokrani/moltbook-api/internal/experiment"
	"github.com/agokrani/moltbook-api/internal/logging"
	"github.com/agokrani/moltbook-api/internal/redis"
	"github.com/agokrani/moltbook-api/internal/report"
	"github.com/agokrani/moltbook-api/internal/server"
	"github.com/agokrani/moltbook-api/internal/worldfeed"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, db); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return db
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupActors(agentRepo *database.AgentRepo) *experiment.SystemActors {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	actors, err := experiment.ResolveActors(ctx, agentRepo)
	if err != nil {
		slog.Error("Failed to resolve system actors", "error", err)
		os.Exit(1)
	}
	return actors
}

// setupWorldFeed loads and starts the content drip. A missing or unreadable
// source disables the world feed (nil return) but leaves the rest of the
// service up; treatments keep flowing to organic posts.
func setupWorldFeed(cfg *config.Config, publish worldfeed.PublishFunc, clock clockwork.Clock) *worldfeed.Scheduler {
	scheduler := worldfeed.NewScheduler(publish, clock, cfg.WorldPublishInterval)
	if err := scheduler.Load(cfg.WorldSourcePath); err != nil {
		slog.Error("World feed disabled: failed to load world source", "path", cfg.WorldSourcePath, "error", err)
		return nil
	}
	if err := scheduler.Start(); err != nil {
		slog.Error("World feed loaded but not started", "error", err)
	}
	return scheduler
}

func runGracefulShutdown(srv *server.Server, appSvc *app.Service) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		appSvc.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "experiment", cfg.ExperimentName, "mode", cfg.ExperimentMode)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(context.Background(), cfg)
	defer func() { _ = redisClient.Close() }()

	// Construct repositories
	agentRepo := database.NewAgentRepo(pool)
	postRepo := database.NewPostRepo(pool)
	voteRepo := database.NewVoteRepo(pool)
	assignmentRepo := database.NewAssignmentRepo(pool)
	activityLog := redis.NewActivityLog(redisClient)

	// System actors must exist before anything runs.
	actors := setupActors(agentRepo)

	engine := experiment.NewEngine(experiment.Config{
		Name:          cfg.ExperimentName,
		Mode:          cfg.ExperimentMode,
		RunID:         cfg.RunID,
		DelaysMinutes: cfg.NudgeDelaysMinutes,
	}, assignmentRepo, voteRepo, actors.NudgeBot, clock)

	aggregator := report.NewAggregator(assignmentRepo, activityLog, actors.NudgeBot.ID)

	appSvc := app.NewService(agentRepo, postRepo, voteRepo, assignmentRepo, activityLog, engine, aggregator, app.ExperimentConfig{
		Enabled: cfg.ExperimentEnabled,
		Name:    cfg.ExperimentName,
		Mode:    cfg.ExperimentMode,
		RunID:   cfg.RunID,
	}, actors.WorldPublisher, clock)

	if cfg.ExperimentEnabled && cfg.ExperimentMode == config.ModeWorld {
		if feed := setupWorldFeed(cfg, appSvc.PublishWorldItem, clock); feed != nil {
			appSvc.AttachWorldFeed(feed)
		}
	}

	srv := server.NewServer(cfg, appSvc, pool, redisClient)

	done := runGracefulShutdown(srv, appSvc)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
