package model

import (
	"fmt"
	"strings"
	"time"
)

// EntityType identifies which kind of record a sync cycle handles.
type EntityType string

const (
	EntityShifts       EntityType = "Shifts"
	EntityOpenShifts   EntityType = "OpenShifts"
	EntityTimeOff      EntityType = "TimeOff"
	EntityAvailability EntityType = "Availability"
)

// AllEntityTypes lists every entity type in fan-out order.
var AllEntityTypes = []EntityType{EntityShifts, EntityOpenShifts, EntityTimeOff, EntityAvailability}

// ParseEntityType accepts the canonical name or a snake_case alias
// (e.g. "open_shifts") as used in configuration files.
func ParseEntityType(s string) (EntityType, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "")
	for _, et := range AllEntityTypes {
		if strings.ToLower(string(et)) == norm {
			return et, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// DateLayout is the layout of week keys.
const DateLayout = "2006-01-02"

// SnapshotKey identifies the tracked state of one (team, week, entity type).
type SnapshotKey struct {
	TeamID     string     `json:"teamId"`
	WeekStart  string     `json:"weekStart"` // yyyy-mm-dd in the team's time zone
	EntityType EntityType `json:"entityType"`
}

func (k SnapshotKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.TeamID, k.WeekStart, k.EntityType)
}

// Validate reports whether every component of the key is present and the
// week start parses as a date.
func (k SnapshotKey) Validate() error {
	if k.TeamID == "" {
		return fmt.Errorf("snapshot key: team id is required")
	}
	if k.EntityType == "" {
		return fmt.Errorf("snapshot key: entity type is required")
	}
	if _, err := time.Parse(DateLayout, k.WeekStart); err != nil {
		return fmt.Errorf("snapshot key: week start %q: %w", k.WeekStart, err)
	}
	return nil
}

// TeamInstanceID is the singleton instance id of a team's workflow.
func TeamInstanceID(teamID string) string {
	return teamID
}

// EntityInstanceID is the instance id of a team's per-entity workflow.
func EntityInstanceID(teamID string, et EntityType) string {
	return fmt.Sprintf("%s-%s", teamID, et)
}

// WeekInstanceID is the instance id of the workflow owning a snapshot key.
func WeekInstanceID(key SnapshotKey) string {
	return fmt.Sprintf("%s-%s-%s", key.TeamID, key.EntityType, key.WeekStart)
}

// ClearInstanceID is the instance id of a team's clear-schedule workflow.
func ClearInstanceID(teamID string) string {
	return teamID + "-ClearSchedule"
}
