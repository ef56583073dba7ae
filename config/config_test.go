package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meikuraledutech/flow/media"
	"github.com/meikuraledutech/flow/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "FLOW_ADDR", "FLOW_LOG_LEVEL", "TRIGGER_SECRET_KEY",
		"GEMINI_API_KEY", "GOOGLE_API_KEY", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
	assert.Equal(t, task.DefaultPollPolicy(), cfg.Poll)
	assert.Equal(t, media.DefaultFallbackModels, cfg.Gemini.FallbackModels)
}

func TestLoadFileOverDefaults(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, `
http:
  addr: ":9000"
store:
  driver: badger
  badger_dir: /var/lib/flow
backend:
  driver: trigger
  trigger:
    secret_key: tr_dev_abc
poll:
  interval: 2s
  max_attempts: 300
gemini:
  fallback_models: [gemini-2.0-flash]
minio:
  endpoint: localhost:9000
  public_base_url: http://localhost:9000/flow-media
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "badger", cfg.Store.Driver)
	assert.Equal(t, "/var/lib/flow", cfg.Store.BadgerDir)
	assert.Equal(t, "tr_dev_abc", cfg.Backend.Trigger.SecretKey)
	assert.Equal(t, "https://api.trigger.dev", cfg.Backend.Trigger.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 300, cfg.Poll.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Poll.FastInterval)
	assert.Equal(t, []string{"gemini-2.0-flash"}, cfg.Gemini.FallbackModels)
	assert.Equal(t, "localhost:9000", cfg.MinIO.Endpoint)
	assert.Equal(t, "flow-media", cfg.MinIO.Bucket)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeFile(t, "http:\n  adress: \":1\"\n"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@db/flow")
	t.Setenv("FLOW_ADDR", ":7000")
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("MINIO_SECRET_KEY", "s3cret")

	cfg, err := Load(writeFile(t, "store:\n  driver: postgres\n"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db/flow", cfg.Store.DatabaseURL)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, "google-key", cfg.Gemini.APIKey)
	assert.Equal(t, "s3cret", cfg.MinIO.SecretKey)

	t.Setenv("GEMINI_API_KEY", "gemini-key")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini-key", cfg.Gemini.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"postgres without url", func(c *Config) { c.Store.Driver = "postgres" }, "DATABASE_URL is not set"},
		{"unknown store", func(c *Config) { c.Store.Driver = "sqlite" }, `store.driver "sqlite"`},
		{"trigger without key", func(c *Config) { c.Backend.Driver = "trigger" }, "TRIGGER_SECRET_KEY is not set"},
		{"unknown backend", func(c *Config) { c.Backend.Driver = "lambda" }, `backend.driver "lambda"`},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, `log.format "xml"`},
		{"poll budget", func(c *Config) { c.Poll.FastAttempts = 1000 }, "poll.fast_attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}
