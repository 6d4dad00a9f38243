package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/shiftsync/internal/store"
)

// Context is handed to workflow functions. Steps (activities, sub-
// workflows, timers, Now) must be started from the workflow's own
// goroutine so their sequence numbers follow program order; the futures
// they return may be awaited in any order.
type Context struct {
	ctx     context.Context
	host    *Host
	id      string
	name    string
	gen     int64
	clock   *Clock
	history *replayLog
	quota   StepQuota
	lineage lineage
	log     *slog.Logger

	mu    sync.Mutex
	fatal error
}

func newContext(ctx context.Context, h *Host, inst store.Instance, events []store.HistoryEvent, parents lineage) *Context {
	c := &Context{
		ctx:     ctx,
		host:    h,
		id:      inst.ID,
		name:    inst.Name,
		gen:     inst.Generation,
		clock:   NewClock(),
		history: newReplayLog(events),
		quota:   h.quota,
		lineage: parents.child(inst.ID),
	}
	handler := replayHandler{inner: h.log.Handler(), replaying: c.IsReplaying}
	c.log = slog.New(handler).With("workflow", inst.Name, "instance", inst.ID)
	return c
}

// Context returns the instance's cancellation context. It is cancelled
// when the instance is terminated or the host shuts down.
func (c *Context) Context() context.Context {
	return c.ctx
}

// InstanceID returns the id of the running instance.
func (c *Context) InstanceID() string {
	return c.id
}

// Name returns the registered workflow name.
func (c *Context) Name() string {
	return c.name
}

// Generation returns the current generation; ContinueAsNew increments it.
func (c *Context) Generation() int64 {
	return c.gen
}

// Logger returns a logger tagged with the workflow and instance. It is
// silent while the workflow replays recorded history.
func (c *Context) Logger() *slog.Logger {
	return c.log
}

// IsReplaying reports whether the workflow is re-executing steps that
// already completed in a previous run.
func (c *Context) IsReplaying() bool {
	return c.history.replaying(c.clock.Current())
}

// ContinueAsNew returns an error value that, returned from the workflow
// function, restarts the instance with input under a fresh history.
func (c *Context) ContinueAsNew(input any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("continue as new: encode input: %w", err)
	}
	return &continueAsNewError{input: raw}
}

// fail records an error that fails the instance even if the workflow
// function swallows it.
func (c *Context) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fatal == nil {
		c.fatal = err
	}
}

func (c *Context) fatalErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

// interrupted returns the error a step reports when the instance context
// ends before the step finished.
func (c *Context) interrupted(step string) error {
	cause := context.Cause(c.ctx)
	if errors.Is(cause, ErrTerminated) {
		return fmt.Errorf("%s: %w", step, ErrTerminated)
	}
	return fmt.Errorf("%s interrupted: %w", step, cause)
}

// ActivityInfo describes the step an activity is executing for.
type ActivityInfo struct {
	InstanceID string
	Workflow   string
	Activity   string
	Seq        int64
}

type activityInfoKey struct{}

// ActivityInfoFrom returns the step information the host attaches to an
// activity's context.
func ActivityInfoFrom(ctx context.Context) (ActivityInfo, bool) {
	info, ok := ctx.Value(activityInfoKey{}).(ActivityInfo)
	return info, ok
}

// WithActivityInfo attaches step information to ctx. Exposed for tests
// that call activities directly.
func WithActivityInfo(ctx context.Context, info ActivityInfo) context.Context {
	return context.WithValue(ctx, activityInfoKey{}, info)
}
