package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WORKFLOW_ID", "wf-1")
	t.Setenv("WORKFLOW_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "localhost:6379", cfg.RedisURL)
	assert.Equal(t, "./data/story.json", cfg.ContentPath)
	assert.Equal(t, 24*time.Hour, cfg.PlaythroughTTL)
	assert.Equal(t, "https://api.coze.cn", cfg.Workflow.BaseURL)
	assert.Equal(t, "wf-1", cfg.Workflow.ID)
	assert.Equal(t, "secret", cfg.Workflow.APIKey)
	assert.Equal(t, 120*time.Second, cfg.Workflow.Timeout)
	assert.Equal(t, 10, cfg.MaxAIGenerated)
	assert.Equal(t, 5, cfg.HistoryWindow)
	assert.Equal(t, "zh", cfg.Locale)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("WORKFLOW_ID", "wf-2")
	t.Setenv("WORKFLOW_API_KEY", "secret")
	t.Setenv("WORKFLOW_BASE_URL", "http://localhost:9000")
	t.Setenv("WORKFLOW_TIMEOUT", "30s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MAX_AI_GENERATED", "3")
	t.Setenv("LOCALE", "en")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.Workflow.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Workflow.Timeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 3, cfg.MaxAIGenerated)
	assert.Equal(t, "en", cfg.Locale)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("WORKFLOW_ID", "")
	t.Setenv("WORKFLOW_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKFLOW_ID")
	assert.Contains(t, err.Error(), "WORKFLOW_API_KEY")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "valid",
			cfg:  Config{Workflow: WorkflowConfig{ID: "wf", APIKey: "k"}, MaxAIGenerated: 1, HistoryWindow: 1},
		},
		{
			name:    "zero max ai scenes",
			cfg:     Config{Workflow: WorkflowConfig{ID: "wf", APIKey: "k"}, MaxAIGenerated: 0, HistoryWindow: 5},
			wantErr: "MAX_AI_GENERATED",
		},
		{
			name:    "zero history window",
			cfg:     Config{Workflow: WorkflowConfig{ID: "wf", APIKey: "k"}, MaxAIGenerated: 10},
			wantErr: "HISTORY_WINDOW",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}
