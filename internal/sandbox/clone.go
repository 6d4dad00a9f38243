package sandbox

import (
	"slices"
	"time"

	"github.com/roach88/shiftsync/internal/model"
)

func cloneShift(s *model.Shift) *model.Shift {
	c := *s
	c.Activities = slices.Clone(s.Activities)
	c.Jobs = slices.Clone(s.Jobs)
	return &c
}

func cloneTimeOff(t *model.TimeOff) *model.TimeOff {
	c := *t
	return &c
}

func cloneAvailability(a *model.Availability) *model.Availability {
	c := *a
	c.Items = slices.Clone(a.Items)
	return &c
}

func cloneAll[T any](items []T, clone func(T) T) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		out = append(out, clone(it))
	}
	return out
}

func inWeek(q model.WeekQuery, t time.Time) bool {
	return !t.Before(q.WeekStart) && t.Before(q.WeekEnd)
}
