package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/shiftsync/internal/store"
)

// Replay
//
// A workflow function is re-run from the top every time its instance is
// loaded: after a worker restart, after another worker takes over an
// expired lock, or when a parent resumes a child. Each step asks the
// logical clock for the next seq and looks it up here first:
//
//	completed event at seq  -> return the recorded result, do not execute
//	pending event at seq    -> execute again (the previous run died mid-step)
//	no event at seq         -> record a pending event, then execute
//
// The kind and name at a recorded seq must match what the code asks for;
// a mismatch means the workflow code is not deterministic and the
// instance fails with ErrCodeNonDeterminism.

// replayLog is the read-only history of one instance generation.
type replayLog struct {
	events        map[int64]store.HistoryEvent
	lastCompleted int64
}

func newReplayLog(events []store.HistoryEvent) *replayLog {
	r := &replayLog{events: make(map[int64]store.HistoryEvent, len(events))}
	for _, ev := range events {
		r.events[ev.Seq] = ev
		if ev.Completed && ev.Seq > r.lastCompleted {
			r.lastCompleted = ev.Seq
		}
	}
	return r
}

func (r *replayLog) at(seq int64) (store.HistoryEvent, bool) {
	ev, ok := r.events[seq]
	return ev, ok
}

// replaying reports whether the workflow has not yet caught up with the
// last completed step.
func (r *replayLog) replaying(current int64) bool {
	return current < r.lastCompleted
}

// replayHandler drops records while the workflow is replaying, so a
// restarted instance does not log its past a second time.
type replayHandler struct {
	inner     slog.Handler
	replaying func() bool
}

func (h replayHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return !h.replaying() && h.inner.Enabled(ctx, level)
}

func (h replayHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h replayHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return replayHandler{inner: h.inner.WithAttrs(attrs), replaying: h.replaying}
}

func (h replayHandler) WithGroup(name string) slog.Handler {
	return replayHandler{inner: h.inner.WithGroup(name), replaying: h.replaying}
}
