package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Tracing config
	assert.Equal(t, 1.0, cfg.Tracing.SampleRate)
	assert.Equal(t, 1000, cfg.Tracing.MaxCompletedTraces)
	assert.Equal(t, 5*time.Minute, cfg.Tracing.MaxTraceDuration)
	assert.Equal(t, time.Minute, cfg.Tracing.CleanupInterval)

	// Correlation config
	assert.Equal(t, 0.7, cfg.Correlation.Threshold)
	assert.Equal(t, 100, cfg.Correlation.RecentWindowSize)
	assert.Equal(t, 24, cfg.Correlation.RetentionHours)
	assert.Equal(t, 5*time.Minute, cfg.Correlation.SpikeWindow)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadOrDefault(t *testing.T) {
	// Should return default when no env vars set
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                        "9000",
		"HOST":                        "127.0.0.1",
		"TRACE_SAMPLE_RATE":           "0.25",
		"TRACE_MAX_COMPLETED":         "50",
		"TRACE_MAX_DURATION":          "90s",
		"CORRELATION_THRESHOLD":       "0.8",
		"CORRELATION_RECENT_WINDOW":   "32",
		"CORRELATION_RETENTION_HOURS": "6",
		"LOG_LEVEL":                   "debug",
		"LOG_DEV":                     "true",
		"RATE_LIMIT_RPS":              "500",
		"RATE_LIMIT_BURST":            "1000",
		"RATE_LIMIT_ENABLED":          "false",
	}

	for key, value := range envVars {
		err := os.Setenv(key, value)
		require.NoError(t, err)
		defer os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)

	assert.Equal(t, 0.25, cfg.Tracing.SampleRate)
	assert.Equal(t, 50, cfg.Tracing.MaxCompletedTraces)
	assert.Equal(t, 90*time.Second, cfg.Tracing.MaxTraceDuration)

	assert.Equal(t, 0.8, cfg.Correlation.Threshold)
	assert.Equal(t, 32, cfg.Correlation.RecentWindowSize)
	assert.Equal(t, 6, cfg.Correlation.RetentionHours)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	err := os.Setenv("PORT", "3000")
	require.NoError(t, err)
	defer os.Unsetenv("PORT")

	err = os.Setenv("TRACE_SAMPLE_RATE", "0.5")
	require.NoError(t, err)
	defer os.Unsetenv("TRACE_SAMPLE_RATE")

	cfg, err := Load()
	require.NoError(t, err)

	// Verify overridden values
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 0.5, cfg.Tracing.SampleRate)

	// Verify default values still apply
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 0.7, cfg.Correlation.Threshold)
}

func TestLoadFile(t *testing.T) {
	content := `
[server]
port = "9999"

[tracing]
sample_rate = 0.1
max_completed_traces = 25

[correlation]
threshold = 0.9

[logging]
level = "warn"
`
	path := filepath.Join(t.TempDir(), "traceline.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 0.1, cfg.Tracing.SampleRate)
	assert.Equal(t, 25, cfg.Tracing.MaxCompletedTraces)
	assert.Equal(t, 0.9, cfg.Correlation.Threshold)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// Values absent from the file keep their defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 24, cfg.Correlation.RetentionHours)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("/nonexistent/traceline.toml")
	assert.Error(t, err)
}

func TestLoadHonorsConfigFileEnv(t *testing.T) {
	content := `
[server]
port = "7777"
`
	path := filepath.Join(t.TempDir(), "traceline.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	require.NoError(t, os.Setenv("TRACELINE_CONFIG", path))
	defer os.Unsetenv("TRACELINE_CONFIG")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7777", cfg.Server.Port)
}
