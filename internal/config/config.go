// Package config loads the service configuration from a YAML file, an
// optional .env file and SHIFTSYNC_* environment variables, in that order
// of precedence from lowest to highest. The merged result is validated
// against an embedded CUE schema.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/shiftsync/internal/engine"
	"github.com/roach88/shiftsync/internal/model"
	"github.com/roach88/shiftsync/internal/orchestrator"
)

// Config is the complete service configuration.
type Config struct {
	Database string `yaml:"database" json:"database"`
	Listen   string `yaml:"listen" json:"listen"`
	WorkerID string `yaml:"worker_id" json:"worker_id"`

	Log          LogConfig          `yaml:"log" json:"log"`
	Sync         SyncConfig         `yaml:"sync" json:"sync"`
	Provisioning ProvisioningConfig `yaml:"provisioning" json:"provisioning"`
	Groups       GroupsConfig       `yaml:"groups" json:"groups"`
	Engine       EngineConfig       `yaml:"engine" json:"engine"`
	Sandbox      SandboxConfig      `yaml:"sandbox" json:"sandbox"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

type SyncConfig struct {
	PastWeeks         int      `yaml:"past_weeks" json:"past_weeks"`
	FutureWeeks       int      `yaml:"future_weeks" json:"future_weeks"`
	StartDayOfWeek    string   `yaml:"start_day_of_week" json:"start_day_of_week"`
	Frequency         Duration `yaml:"frequency" json:"frequency"`
	MaxChangesPerWeek int      `yaml:"max_changes_per_week" json:"max_changes_per_week"`
	DraftMode         bool     `yaml:"draft_mode" json:"draft_mode"`
	Notify            bool     `yaml:"notify" json:"notify"`
	LeaseDuration     Duration `yaml:"lease_duration" json:"lease_duration"`
	ApplyConcurrency  int      `yaml:"apply_concurrency" json:"apply_concurrency"`
	Entities          []string `yaml:"entities" json:"entities"`
}

type ProvisioningConfig struct {
	PollInterval Duration `yaml:"poll_interval" json:"poll_interval"`
	MaxAttempts  int      `yaml:"max_attempts" json:"max_attempts"`
}

type GroupsConfig struct {
	ConflictRetries int      `yaml:"conflict_retries" json:"conflict_retries"`
	ConflictBackoff Duration `yaml:"conflict_backoff" json:"conflict_backoff"`
	CacheSize       int      `yaml:"cache_size" json:"cache_size"`
	CacheTTL        Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

type EngineConfig struct {
	PollInterval            Duration `yaml:"poll_interval" json:"poll_interval"`
	LockTimeout             Duration `yaml:"lock_timeout" json:"lock_timeout"`
	MaxConcurrentActivities int      `yaml:"max_concurrent_activities" json:"max_concurrent_activities"`
}

// SandboxConfig points the service at in-memory collaborators seeded from
// a fixture instead of real backends.
type SandboxConfig struct {
	Fixture string `yaml:"fixture" json:"fixture"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	s := orchestrator.DefaultSettings()
	entities := make([]string, 0, len(s.Entities))
	for _, et := range s.Entities {
		entities = append(entities, string(et))
	}
	return Config{
		Database: "shiftsync.db",
		Listen:   ":8080",
		Log:      LogConfig{Level: "info", Format: "text"},
		Sync: SyncConfig{
			PastWeeks:         s.PastWeeks,
			FutureWeeks:       s.FutureWeeks,
			StartDayOfWeek:    s.StartDayOfWeek.String(),
			Frequency:         Duration(s.Frequency),
			MaxChangesPerWeek: s.MaxChangesPerWeek,
			DraftMode:         s.DraftMode,
			Notify:            s.Notify,
			LeaseDuration:     Duration(s.LeaseDuration),
			ApplyConcurrency:  s.ApplyConcurrency,
			Entities:          entities,
		},
		Provisioning: ProvisioningConfig{
			PollInterval: Duration(s.ProvisionPollInterval),
			MaxAttempts:  s.ProvisionMaxAttempts,
		},
		Groups: GroupsConfig{
			ConflictRetries: s.GroupConflictRetries,
			ConflictBackoff: Duration(s.GroupConflictBackoff),
			CacheSize:       s.GroupCacheSize,
			CacheTTL:        Duration(s.GroupCacheTTL),
		},
		Engine: EngineConfig{
			PollInterval:            Duration(engine.DefaultPollInterval),
			LockTimeout:             Duration(engine.DefaultLockTimeout),
			MaxConcurrentActivities: 32,
		},
	}
}

// Load builds the configuration. path is an optional YAML file; envFile
// is an optional dotenv file whose variables do not override ones already
// set in the environment. A missing envFile is ignored.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, err
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes YAML over the defaults and validates the result without
// consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Settings converts the sync sections into orchestrator settings.
func (c *Config) Settings() (orchestrator.Settings, error) {
	day, err := model.ParseWeekday(c.Sync.StartDayOfWeek)
	if err != nil {
		return orchestrator.Settings{}, fmt.Errorf("sync.start_day_of_week: %w", err)
	}
	entities := make([]model.EntityType, 0, len(c.Sync.Entities))
	for _, name := range c.Sync.Entities {
		et, err := model.ParseEntityType(name)
		if err != nil {
			return orchestrator.Settings{}, fmt.Errorf("sync.entities: %w", err)
		}
		entities = append(entities, et)
	}
	return orchestrator.Settings{
		PastWeeks:             c.Sync.PastWeeks,
		FutureWeeks:           c.Sync.FutureWeeks,
		StartDayOfWeek:        day,
		Frequency:             c.Sync.Frequency.Std(),
		MaxChangesPerWeek:     c.Sync.MaxChangesPerWeek,
		DraftMode:             c.Sync.DraftMode,
		Notify:                c.Sync.Notify,
		LeaseDuration:         c.Sync.LeaseDuration.Std(),
		ApplyConcurrency:      c.Sync.ApplyConcurrency,
		Entities:              entities,
		ProvisionPollInterval: c.Provisioning.PollInterval.Std(),
		ProvisionMaxAttempts:  c.Provisioning.MaxAttempts,
		GroupConflictRetries:  c.Groups.ConflictRetries,
		GroupConflictBackoff:  c.Groups.ConflictBackoff.Std(),
		GroupCacheSize:        c.Groups.CacheSize,
		GroupCacheTTL:         c.Groups.CacheTTL.Std(),
	}, nil
}

// HostOptions returns the engine options of the engine section. The
// worker id is only set when configured; the host generates one otherwise.
func (c *Config) HostOptions() []engine.Option {
	opts := []engine.Option{
		engine.WithPollInterval(c.Engine.PollInterval.Std()),
		engine.WithLockTimeout(c.Engine.LockTimeout.Std()),
		engine.WithMaxConcurrentActivities(c.Engine.MaxConcurrentActivities),
	}
	if c.WorkerID != "" {
		opts = append(opts, engine.WithWorkerID(c.WorkerID))
	}
	return opts
}

// Logger builds the slog logger described by the log section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.level()}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c *Config) level() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Duration is a time.Duration written as a Go duration string ("15m").
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}
