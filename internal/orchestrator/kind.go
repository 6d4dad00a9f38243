package orchestrator

import (
	"context"

	"github.com/roach88/shiftsync/internal/delta"
	"github.com/roach88/shiftsync/internal/engine"
	"github.com/roach88/shiftsync/internal/model"
)

// record is the constraint of the week pipeline's record types.
type record[T any] interface {
	delta.Record[T]
	Canonicalize()
}

// kind bundles the per-entity-type behaviour of the week pipeline.
type kind[T record[T]] struct {
	typ    model.EntityType
	fetch  func(ctx context.Context, src Source, creds model.Credentials, q model.WeekQuery) ([]T, error)
	pusher func(dest Destination, teamID string) delta.Pusher[T]
	enrich func(ctx context.Context, e *enricher, recs []T) error
}

var (
	shiftsKind = kind[*model.Shift]{
		typ: model.EntityShifts,
		fetch: func(ctx context.Context, src Source, creds model.Credentials, q model.WeekQuery) ([]*model.Shift, error) {
			return src.ListWeekShifts(ctx, creds, q)
		},
		pusher: func(dest Destination, teamID string) delta.Pusher[*model.Shift] {
			return shiftPusher{dest: dest, team: teamID}
		},
		enrich: enrichShifts,
	}

	openShiftsKind = kind[*model.Shift]{
		typ: model.EntityOpenShifts,
		fetch: func(ctx context.Context, src Source, creds model.Credentials, q model.WeekQuery) ([]*model.Shift, error) {
			return src.ListWeekOpenShifts(ctx, creds, q)
		},
		pusher: func(dest Destination, teamID string) delta.Pusher[*model.Shift] {
			return openShiftPusher{dest: dest, team: teamID}
		},
		enrich: enrichOpenShifts,
	}

	timeOffKind = kind[*model.TimeOff]{
		typ: model.EntityTimeOff,
		fetch: func(ctx context.Context, src Source, creds model.Credentials, q model.WeekQuery) ([]*model.TimeOff, error) {
			return src.ListWeekTimeOff(ctx, creds, q)
		},
		pusher: func(dest Destination, teamID string) delta.Pusher[*model.TimeOff] {
			return timeOffPusher{dest: dest, team: teamID}
		},
		enrich: enrichTimeOff,
	}

	availabilityKind = kind[*model.Availability]{
		typ: model.EntityAvailability,
		fetch: func(ctx context.Context, src Source, creds model.Credentials, q model.WeekQuery) ([]*model.Availability, error) {
			return src.ListWeekAvailability(ctx, creds, q)
		},
		pusher: func(dest Destination, teamID string) delta.Pusher[*model.Availability] {
			return availabilityPusher{dest: dest, team: teamID}
		},
		enrich: enrichAvailability,
	}
)

// registerKind registers the week pipeline activities of one entity type.
func registerKind[T record[T]](o *Orchestrator, h *engine.Host, k kind[T]) {
	engine.RegisterActivity(h, stepName(stepFetch, k.typ), func(ctx context.Context, in WeekInput) ([]T, error) {
		return fetchWeek(ctx, o, k, in)
	})
	engine.RegisterActivity(h, stepName(stepLoad, k.typ), func(ctx context.Context, in WeekInput) (loadedSnapshot[T], error) {
		return loadSnapshot[T](ctx, o, in)
	})
	engine.RegisterActivity(h, stepName(stepEnrich, k.typ), func(ctx context.Context, in weekDelta[T]) (*delta.Result[T], error) {
		return enrichWeek(ctx, o, k, in)
	})
	engine.RegisterActivity(h, stepName(stepApply, k.typ), func(ctx context.Context, in weekDelta[T]) (*delta.Result[T], error) {
		return applyWeek(ctx, o, k, in)
	})
	engine.RegisterActivity(h, stepName(stepPersist, k.typ), func(ctx context.Context, in weekDelta[T]) (persistOutcome, error) {
		return persistWeek(ctx, o, in)
	})
}
