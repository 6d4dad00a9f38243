package orchestrator

import (
	"context"
	"time"

	"github.com/roach88/shiftsync/internal/model"
)

// Source is the WFM backend. Every call is scoped by the team's credentials.
type Source interface {
	ListWeekShifts(ctx context.Context, creds model.Credentials, q model.WeekQuery) ([]*model.Shift, error)
	ListWeekOpenShifts(ctx context.Context, creds model.Credentials, q model.WeekQuery) ([]*model.Shift, error)
	ListWeekTimeOff(ctx context.Context, creds model.Credentials, q model.WeekQuery) ([]*model.TimeOff, error)
	ListWeekAvailability(ctx context.Context, creds model.Credentials, q model.WeekQuery) ([]*model.Availability, error)
	GetEmployee(ctx context.Context, creds model.Credentials, wfmEmployeeID string) (model.Employee, error)
	GetJob(ctx context.Context, creds model.Credentials, wfmJobID string) (model.JobInfo, error)
}

// Destination is the collaboration platform's shifts surface.
//
// Create and Update return the record as stored, carrying the destination
// id. Lookups return ErrNotFound when nothing matches. Permanent
// rejections of a record should wrap a *delta.ValidationError.
type Destination interface {
	CreateShift(ctx context.Context, teamID string, s *model.Shift) (*model.Shift, error)
	UpdateShift(ctx context.Context, teamID string, s *model.Shift) (*model.Shift, error)
	DeleteShift(ctx context.Context, teamID string, s *model.Shift) error

	CreateOpenShift(ctx context.Context, teamID string, s *model.Shift) (*model.Shift, error)
	UpdateOpenShift(ctx context.Context, teamID string, s *model.Shift) (*model.Shift, error)
	DeleteOpenShift(ctx context.Context, teamID string, s *model.Shift) error

	CreateTimeOff(ctx context.Context, teamID string, t *model.TimeOff) (*model.TimeOff, error)
	UpdateTimeOff(ctx context.Context, teamID string, t *model.TimeOff) (*model.TimeOff, error)
	DeleteTimeOff(ctx context.Context, teamID string, t *model.TimeOff) error

	UpsertAvailability(ctx context.Context, teamID string, a *model.Availability) (*model.Availability, error)
	DeleteAvailability(ctx context.Context, teamID string, a *model.Availability) error

	GetUserIDByLogin(ctx context.Context, teamID, login string) (string, error)
	GetTimeOffReasonID(ctx context.Context, teamID, reasonCode string) (string, error)

	GetSchedulingGroupIDByName(ctx context.Context, teamID, name string) (string, error)
	CreateSchedulingGroup(ctx context.Context, teamID, name string) (string, error)
	// AddUsersToSchedulingGroup returns ErrConflict when the group was
	// modified concurrently and the write should be retried.
	AddUsersToSchedulingGroup(ctx context.Context, teamID, groupID string, userIDs []string) error
	RemoveUsersFromSchedulingGroup(ctx context.Context, teamID, groupID string, userIDs []string) error

	GetSchedule(ctx context.Context, teamID string) (model.Schedule, error)
	CreateSchedule(ctx context.Context, teamID, timeZone string) error
	ShareSchedule(ctx context.Context, teamID string, start, end time.Time, notify bool) error
	// ClearSchedule deletes the records of one entity type that start in
	// [start, end) and returns how many were removed.
	ClearSchedule(ctx context.Context, teamID string, et model.EntityType, start, end time.Time) (int, error)

	ApproveRequest(ctx context.Context, teamID string, ref model.RequestRef, message string) error
	DeclineRequest(ctx context.Context, teamID string, ref model.RequestRef, message string) error
}

// Secrets stores the per-team WFM credentials. *store.Store implements it.
type Secrets interface {
	GetCredentials(ctx context.Context, teamID string) (model.Credentials, error)
	SaveCredentials(ctx context.Context, teamID string, c model.Credentials) error
}
