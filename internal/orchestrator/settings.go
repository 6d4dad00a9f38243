package orchestrator

import (
	"time"

	"github.com/roach88/shiftsync/internal/model"
)

// Settings tune the sync workflows. The zero value is not usable; start
// from DefaultSettings.
type Settings struct {
	PastWeeks         int
	FutureWeeks       int
	StartDayOfWeek    time.Weekday
	Frequency         time.Duration
	MaxChangesPerWeek int
	DraftMode         bool
	Notify            bool
	LeaseDuration     time.Duration
	ApplyConcurrency  int
	Entities          []model.EntityType

	ProvisionPollInterval time.Duration
	ProvisionMaxAttempts  int

	GroupConflictRetries int
	GroupConflictBackoff time.Duration
	GroupCacheSize       int
	GroupCacheTTL        time.Duration
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		PastWeeks:             1,
		FutureWeeks:           3,
		StartDayOfWeek:        time.Monday,
		Frequency:             15 * time.Minute,
		MaxChangesPerWeek:     500,
		Notify:                false,
		LeaseDuration:         10 * time.Minute,
		ApplyConcurrency:      8,
		Entities:              append([]model.EntityType(nil), model.AllEntityTypes...),
		ProvisionPollInterval: 10 * time.Second,
		ProvisionMaxAttempts:  30,
		GroupConflictRetries:  3,
		GroupConflictBackoff:  2 * time.Second,
		GroupCacheSize:        1024,
		GroupCacheTTL:         time.Hour,
	}
}
