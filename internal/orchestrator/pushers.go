package orchestrator

import (
	"context"

	"github.com/roach88/shiftsync/internal/delta"
	"github.com/roach88/shiftsync/internal/model"
)

// Pushers validate a record before writing it. A record missing a
// destination id that enrichment could not resolve is rejected with a
// validation error, which moves it to the snapshot's skipped set.

func validateShift(s *model.Shift, needEmployee bool) error {
	if needEmployee && s.TeamsEmployeeID == "" {
		return delta.NewValidationError(s.Key(), "teamsEmployeeId", "employee has no destination user")
	}
	if s.TeamsSchedulingGroupID == "" {
		return delta.NewValidationError(s.Key(), "teamsSchedulingGroupId", "department has no scheduling group")
	}
	if !s.EndDate.After(s.StartDate) {
		return delta.NewValidationError(s.Key(), "endDate", "shift ends before it starts")
	}
	return nil
}

type shiftPusher struct {
	dest Destination
	team string
}

func (p shiftPusher) Create(ctx context.Context, s *model.Shift) (*model.Shift, error) {
	if err := validateShift(s, true); err != nil {
		return nil, err
	}
	return p.dest.CreateShift(ctx, p.team, s)
}

func (p shiftPusher) Update(ctx context.Context, s *model.Shift) (*model.Shift, error) {
	if err := validateShift(s, true); err != nil {
		return nil, err
	}
	if s.TeamsShiftID == "" {
		return p.Create(ctx, s)
	}
	return p.dest.UpdateShift(ctx, p.team, s)
}

func (p shiftPusher) Delete(ctx context.Context, s *model.Shift) error {
	if s.TeamsShiftID == "" {
		return nil
	}
	return p.dest.DeleteShift(ctx, p.team, s)
}

type openShiftPusher struct {
	dest Destination
	team string
}

func (p openShiftPusher) Create(ctx context.Context, s *model.Shift) (*model.Shift, error) {
	if err := validateShift(s, false); err != nil {
		return nil, err
	}
	return p.dest.CreateOpenShift(ctx, p.team, s)
}

func (p openShiftPusher) Update(ctx context.Context, s *model.Shift) (*model.Shift, error) {
	if err := validateShift(s, false); err != nil {
		return nil, err
	}
	if s.TeamsShiftID == "" {
		return p.Create(ctx, s)
	}
	return p.dest.UpdateOpenShift(ctx, p.team, s)
}

func (p openShiftPusher) Delete(ctx context.Context, s *model.Shift) error {
	if s.TeamsShiftID == "" {
		return nil
	}
	return p.dest.DeleteOpenShift(ctx, p.team, s)
}

func validateTimeOff(t *model.TimeOff) error {
	if t.TeamsEmployeeID == "" {
		return delta.NewValidationError(t.Key(), "teamsEmployeeId", "employee has no destination user")
	}
	if t.TeamsReasonID == "" {
		return delta.NewValidationError(t.Key(), "teamsReasonId", "reason code has no destination reason")
	}
	return nil
}

type timeOffPusher struct {
	dest Destination
	team string
}

func (p timeOffPusher) Create(ctx context.Context, t *model.TimeOff) (*model.TimeOff, error) {
	if err := validateTimeOff(t); err != nil {
		return nil, err
	}
	return p.dest.CreateTimeOff(ctx, p.team, t)
}

func (p timeOffPusher) Update(ctx context.Context, t *model.TimeOff) (*model.TimeOff, error) {
	if err := validateTimeOff(t); err != nil {
		return nil, err
	}
	if t.TeamsTimeOffID == "" {
		return p.Create(ctx, t)
	}
	return p.dest.UpdateTimeOff(ctx, p.team, t)
}

func (p timeOffPusher) Delete(ctx context.Context, t *model.TimeOff) error {
	if t.TeamsTimeOffID == "" {
		return nil
	}
	return p.dest.DeleteTimeOff(ctx, p.team, t)
}

type availabilityPusher struct {
	dest Destination
	team string
}

func (p availabilityPusher) Create(ctx context.Context, a *model.Availability) (*model.Availability, error) {
	if a.TeamsEmployeeID == "" {
		return nil, delta.NewValidationError(a.Key(), "teamsEmployeeId", "employee has no destination user")
	}
	return p.dest.UpsertAvailability(ctx, p.team, a)
}

func (p availabilityPusher) Update(ctx context.Context, a *model.Availability) (*model.Availability, error) {
	return p.Create(ctx, a)
}

func (p availabilityPusher) Delete(ctx context.Context, a *model.Availability) error {
	if a.TeamsAvailabilityID == "" {
		return nil
	}
	return p.dest.DeleteAvailability(ctx, p.team, a)
}
