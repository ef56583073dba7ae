// Package config loads the server configuration: a YAML file merged over
// defaults, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/goccy/go-yaml"
	"github.com/meikuraledutech/flow/local"
	"github.com/meikuraledutech/flow/media"
	"github.com/meikuraledutech/flow/task"
	"github.com/meikuraledutech/flow/trigger"
)

type Config struct {
	HTTP    HTTPConfig        `yaml:"http"`
	Log     LogConfig         `yaml:"log"`
	Store   StoreConfig       `yaml:"store"`
	Backend BackendConfig     `yaml:"backend"`
	Poll    task.PollPolicy   `yaml:"poll"`
	Local   local.Config      `yaml:"local"`
	Gemini  GeminiConfig      `yaml:"gemini"`
	MinIO   media.MinIOConfig `yaml:"minio"`
	FFmpeg  FFmpegConfig      `yaml:"ffmpeg"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// BodyLimit caps request bodies in bytes.
	BodyLimit int `yaml:"body_limit"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type StoreConfig struct {
	Driver      string `yaml:"driver"` // postgres, badger or memory
	DatabaseURL string `yaml:"database_url"`
	BadgerDir   string `yaml:"badger_dir"`
}

type BackendConfig struct {
	Driver  string        `yaml:"driver"` // trigger or local
	Trigger TriggerConfig `yaml:"trigger"`
}

type TriggerConfig struct {
	BaseURL   string `yaml:"base_url"`
	SecretKey string `yaml:"secret_key"`
}

type GeminiConfig struct {
	APIKey         string        `yaml:"api_key"`
	FallbackModels []string      `yaml:"fallback_models"`
	RateLimitWait  time.Duration `yaml:"rate_limit_wait"`
}

type FFmpegConfig struct {
	Binary  string `yaml:"binary"`
	TempDir string `yaml:"temp_dir"`
}

// Defaults is the configuration used for every field a file leaves empty.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 15 * time.Minute,
			BodyLimit:    16 << 20,
		},
		Log:     LogConfig{Level: "info", Format: "text"},
		Store:   StoreConfig{Driver: "memory", BadgerDir: "data/badger"},
		Backend: BackendConfig{Driver: "local", Trigger: TriggerConfig{BaseURL: trigger.DefaultBaseURL}},
		Poll:    task.DefaultPollPolicy(),
		Local:   local.DefaultConfig(),
		Gemini: GeminiConfig{
			FallbackModels: append([]string(nil), media.DefaultFallbackModels...),
			RateLimitWait:  media.DefaultRateLimitWait,
		},
		MinIO:  media.MinIOConfig{Bucket: "flow-media", PresignExpiry: 24 * time.Hour},
		FFmpeg: FFmpegConfig{Binary: "ffmpeg"},
	}
}

// Load reads path (skipped when empty), fills the gaps from Defaults,
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.Strict()); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := mergo.Merge(&cfg, Defaults()); err != nil {
		return nil, fmt.Errorf("config: apply defaults: %w", err)
	}
	applyEnv(&cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}
	set(&cfg.Store.DatabaseURL, "DATABASE_URL")
	set(&cfg.HTTP.Addr, "FLOW_ADDR")
	set(&cfg.Log.Level, "FLOW_LOG_LEVEL")
	set(&cfg.Backend.Trigger.SecretKey, "TRIGGER_SECRET_KEY")
	set(&cfg.Gemini.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	set(&cfg.MinIO.AccessKey, "MINIO_ACCESS_KEY")
	set(&cfg.MinIO.SecretKey, "MINIO_SECRET_KEY")
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory":
	case "badger":
		if c.Store.BadgerDir == "" {
			errs = append(errs, errors.New("store.badger_dir is required for the badger store"))
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of postgres, badger, memory", c.Store.Driver))
	}
	switch c.Backend.Driver {
	case "local":
	case "trigger":
		if c.Backend.Trigger.SecretKey == "" {
			errs = append(errs, errors.New("TRIGGER_SECRET_KEY is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend.driver %q is not one of trigger, local", c.Backend.Driver))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}
	if c.Poll.FastAttempts > c.Poll.MaxAttempts {
		errs = append(errs, errors.New("poll.fast_attempts exceeds poll.max_attempts"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
