package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// WorkflowConfig holds the streaming workflow service settings, read from WORKFLOW_*
type WorkflowConfig struct {
	BaseURL string        `envconfig:"BASE_URL" default:"https://api.coze.cn"`
	ID      string        `envconfig:"ID"`
	APIKey  string        `envconfig:"API_KEY"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"120s"`
}

type Config struct {
	Port        string     `envconfig:"PORT" default:"8080"`
	Environment string     `envconfig:"ENVIRONMENT" default:"development"`
	LogLevelRaw string     `envconfig:"LOG_LEVEL" default:"info"`
	LogLevel    slog.Level `ignored:"true"`

	RedisURL       string        `envconfig:"REDIS_URL" default:"localhost:6379"`
	ContentPath    string        `envconfig:"CONTENT_PATH" default:"./data/story.json"`
	PlaythroughTTL time.Duration `envconfig:"PLAYTHROUGH_TTL" default:"24h"`

	Workflow WorkflowConfig `envconfig:"WORKFLOW"`

	MaxAIGenerated int    `envconfig:"MAX_AI_GENERATED" default:"10"`
	HistoryWindow  int    `envconfig:"HISTORY_WINDOW" default:"5"`
	Locale         string `envconfig:"LOCALE" default:"zh"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelRaw)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports missing or out-of-range values.
func (c *Config) Validate() error {
	var errs []error
	if c.Workflow.ID == "" {
		errs = append(errs, errors.New("WORKFLOW_ID is required"))
	}
	if c.Workflow.APIKey == "" {
		errs = append(errs, errors.New("WORKFLOW_API_KEY is required"))
	}
	if c.MaxAIGenerated < 1 {
		errs = append(errs, fmt.Errorf("MAX_AI_GENERATED must be at least 1, got %d", c.MaxAIGenerated))
	}
	if c.HistoryWindow < 1 {
		errs = append(errs, fmt.Errorf("HISTORY_WINDOW must be at least 1, got %d", c.HistoryWindow))
	}
	return errors.Join(errs...)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
