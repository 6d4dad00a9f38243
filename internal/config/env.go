package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SHIFTSYNC_"

type envBinding struct {
	name string
	set  func(c *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

func duration(dst func(*Config) *Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = Duration(d)
		return nil
	}
}

// envBindings maps each override to its config key: the key upper-cased
// with dots replaced by underscores.
var envBindings = []envBinding{
	{"DATABASE", str(func(c *Config) *string { return &c.Database })},
	{"LISTEN", str(func(c *Config) *string { return &c.Listen })},
	{"WORKER_ID", str(func(c *Config) *string { return &c.WorkerID })},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Log.Level })},
	{"LOG_FORMAT", str(func(c *Config) *string { return &c.Log.Format })},
	{"SYNC_PAST_WEEKS", integer(func(c *Config) *int { return &c.Sync.PastWeeks })},
	{"SYNC_FUTURE_WEEKS", integer(func(c *Config) *int { return &c.Sync.FutureWeeks })},
	{"SYNC_START_DAY_OF_WEEK", str(func(c *Config) *string { return &c.Sync.StartDayOfWeek })},
	{"SYNC_FREQUENCY", duration(func(c *Config) *Duration { return &c.Sync.Frequency })},
	{"SYNC_MAX_CHANGES_PER_WEEK", integer(func(c *Config) *int { return &c.Sync.MaxChangesPerWeek })},
	{"SYNC_DRAFT_MODE", boolean(func(c *Config) *bool { return &c.Sync.DraftMode })},
	{"SYNC_NOTIFY", boolean(func(c *Config) *bool { return &c.Sync.Notify })},
	{"SYNC_LEASE_DURATION", duration(func(c *Config) *Duration { return &c.Sync.LeaseDuration })},
	{"SYNC_APPLY_CONCURRENCY", integer(func(c *Config) *int { return &c.Sync.ApplyConcurrency })},
	{"SYNC_ENTITIES", func(c *Config, v string) error {
		c.Sync.Entities = nil
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				c.Sync.Entities = append(c.Sync.Entities, part)
			}
		}
		return nil
	}},
	{"PROVISIONING_POLL_INTERVAL", duration(func(c *Config) *Duration { return &c.Provisioning.PollInterval })},
	{"PROVISIONING_MAX_ATTEMPTS", integer(func(c *Config) *int { return &c.Provisioning.MaxAttempts })},
	{"GROUPS_CONFLICT_RETRIES", integer(func(c *Config) *int { return &c.Groups.ConflictRetries })},
	{"GROUPS_CONFLICT_BACKOFF", duration(func(c *Config) *Duration { return &c.Groups.ConflictBackoff })},
	{"GROUPS_CACHE_SIZE", integer(func(c *Config) *int { return &c.Groups.CacheSize })},
	{"GROUPS_CACHE_TTL", duration(func(c *Config) *Duration { return &c.Groups.CacheTTL })},
	{"ENGINE_POLL_INTERVAL", duration(func(c *Config) *Duration { return &c.Engine.PollInterval })},
	{"ENGINE_LOCK_TIMEOUT", duration(func(c *Config) *Duration { return &c.Engine.LockTimeout })},
	{"ENGINE_MAX_CONCURRENT_ACTIVITIES", integer(func(c *Config) *int { return &c.Engine.MaxConcurrentActivities })},
	{"SANDBOX_FIXTURE", str(func(c *Config) *string { return &c.Sandbox.Fixture })},
}

// applyEnv overlays the SHIFTSYNC_* variables found by lookup.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		name := EnvPrefix + b.name
		v, ok := lookup(name)
		if !ok {
			continue
		}
		if err := b.set(c, v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
