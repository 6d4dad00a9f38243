package model

import "time"

// ConnectionModel is a team's subscription to the sync engine.
type ConnectionModel struct {
	TeamID         string                     `json:"teamId"`
	BusinessUnitID string                     `json:"businessUnitId"`
	TimeZone       string                     `json:"timeZone"`
	Enabled        bool                       `json:"enabled"`
	DraftMode      bool                       `json:"draftMode"`
	LastExecution  map[EntityType]time.Time   `json:"lastExecution,omitempty"`
	LastResults    map[EntityType]ResultModel `json:"lastResults,omitempty"`
	CreatedAt      time.Time                  `json:"createdAt"`
	UpdatedAt      time.Time                  `json:"updatedAt"`
}

// Location loads the team's time zone, defaulting to UTC when unset.
func (c ConnectionModel) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.TimeZone)
}

// ResultModel summarises one sync pass for metrics and health reporting.
type ResultModel struct {
	EntityType EntityType `json:"entityType"`
	WeekStart  string     `json:"weekStart,omitempty"`
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Deleted    int        `json:"deleted"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	HasChanges bool       `json:"hasChanges"`
	Truncated  bool       `json:"truncated,omitempty"`
	Aborted    bool       `json:"aborted,omitempty"`
	RangeStart time.Time  `json:"rangeStart,omitzero"`
	RangeEnd   time.Time  `json:"rangeEnd,omitzero"`
}

// Add accumulates counts and widens the range of r by other.
func (r *ResultModel) Add(other ResultModel) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Deleted += other.Deleted
	r.Failed += other.Failed
	r.Skipped += other.Skipped
	r.HasChanges = r.HasChanges || other.HasChanges
	r.Truncated = r.Truncated || other.Truncated
	r.Aborted = r.Aborted || other.Aborted
	if !other.HasChanges {
		return
	}
	if r.RangeStart.IsZero() || other.RangeStart.Before(r.RangeStart) {
		r.RangeStart = other.RangeStart
	}
	if other.RangeEnd.After(r.RangeEnd) {
		r.RangeEnd = other.RangeEnd
	}
}
