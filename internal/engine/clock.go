package engine

import (
	"sync/atomic"
	"time"
)

// Clock is the per-instance logical clock. Every workflow step takes the
// next sequence number; the number is the step's key in history, so the
// same code replayed against the same history asks for the same keys.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// TimeSource is the wall clock used for durable timers and recorded
// timestamps. Tests substitute a fake that advances on demand.
type TimeSource interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemTime struct{}

func (systemTime) Now() time.Time { return time.Now() }

func (systemTime) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemTime returns the real wall clock.
func SystemTime() TimeSource {
	return systemTime{}
}
