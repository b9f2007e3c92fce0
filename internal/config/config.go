package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Experiment modes. "organic" assigns treatments to agent-authored posts
// only; "world" additionally runs the world-content scheduler so the
// experiment has a steady stream of subjects.
const (
	ModeOrganic = "organic"
	ModeWorld   = "world"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	ExperimentEnabled bool   `env:"EXPERIMENT_ENABLED" default:"true"`
	ExperimentName    string `env:"EXPERIMENT_NAME" default:"ranking-nudge"`
	ExperimentMode    string `env:"EXPERIMENT_MODE" default:"organic"`
	ExperimentRunID   string `env:"EXPERIMENT_RUN_ID"`

	NudgeDelays string `env:"NUDGE_DELAYS_MINUTES" default:"0,2,10,30"`

	WorldSourcePath      string        `env:"WORLD_SOURCE_PATH"`
	WorldPublishInterval time.Duration `env:"WORLD_PUBLISH_INTERVAL" default:"5m"`

	// Derived fields, populated by Load. Immutable for the process lifetime.
	RunID              *int  `env:"-"`
	NudgeDelaysMinutes []int `env:"-"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"REDIS_URL":    cfg.RedisURL,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.ExperimentMode != ModeOrganic && cfg.ExperimentMode != ModeWorld {
		return fmt.Errorf("EXPERIMENT_MODE must be %q or %q, got %q", ModeOrganic, ModeWorld, cfg.ExperimentMode)
	}

	if cfg.ExperimentRunID != "" {
		runID, err := strconv.Atoi(cfg.ExperimentRunID)
		if err != nil {
			return fmt.Errorf("EXPERIMENT_RUN_ID must be an integer: %w", err)
		}
		cfg.RunID = &runID
	}

	delays, err := parseDelays(cfg.NudgeDelays)
	if err != nil {
		return err
	}
	cfg.NudgeDelaysMinutes = delays

	if cfg.ExperimentMode == ModeWorld && cfg.WorldSourcePath == "" {
		return errors.New("WORLD_SOURCE_PATH is required when EXPERIMENT_MODE=world")
	}
	if cfg.WorldPublishInterval <= 0 {
		return errors.New("WORLD_PUBLISH_INTERVAL must be positive")
	}

	return nil
}

// parseDelays parses a comma-separated minute list. The set is ordered and
// finite; zero is a legal delay (nudge fires immediately after assignment).
func parseDelays(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	delays := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("NUDGE_DELAYS_MINUTES contains invalid entry %q: %w", p, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("NUDGE_DELAYS_MINUTES contains negative delay %d", d)
		}
		delays = append(delays, d)
	}
	if len(delays) == 0 {
		return nil, errors.New("NUDGE_DELAYS_MINUTES must contain at least one delay")
	}
	return delays, nil
}
