package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/shiftsync/internal/store"
)

// runResult is how an execution ended. StatusRunning means it was
// interrupted by shutdown and must be resumed later.
type runResult struct {
	status  store.Status
	output  json.RawMessage
	errText string
}

func resultOf(inst store.Instance) runResult {
	return runResult{status: inst.Status, output: inst.Output, errText: inst.Error}
}

// execute runs inst to a final state, following continue-as-new, and
// records the outcome.
func (h *Host) execute(parent context.Context, inst store.Instance, parents lineage) runResult {
	ctx, cancel := context.WithCancelCause(parent)
	run := h.track(inst.ID, cancel)
	defer h.untrack(inst.ID, run)
	defer cancel(nil)

	started := h.time.Now()
	fn, ok := h.reg.workflow(inst.Name)
	if !ok {
		err := &RuntimeError{Code: ErrCodeUnknownWorkflow, Message: "workflow is not registered", InstanceID: inst.ID, Step: inst.Name}
		return h.finish(ctx, inst, started, nil, err)
	}

	for {
		events, err := h.store.LoadHistory(ctx, inst.ID, inst.Generation)
		if err != nil {
			if ctx.Err() != nil {
				return h.interrupted(ctx, inst)
			}
			return h.finish(ctx, inst, started, nil, fmt.Errorf("load history: %w", err))
		}
		if len(events) > 0 {
			h.log.Debug("replaying instance", "instance", inst.ID, "workflow", inst.Name, "generation", inst.Generation, "events", len(events))
		}

		c := newContext(ctx, h, inst, events, parents)
		out, werr := runWorkflow(c, fn, inst.Input)
		if fatal := c.fatalErr(); fatal != nil {
			werr = fatal
		}
		if ctx.Err() != nil {
			return h.interrupted(ctx, inst)
		}

		var can *continueAsNewError
		if errors.As(werr, &can) {
			ok, err := h.store.ContinueAsNew(ctx, inst.ID, inst.Generation, can.input)
			if err != nil {
				return h.finish(ctx, inst, started, nil, err)
			}
			if !ok {
				return h.current(ctx, inst)
			}
			inst.Generation++
			inst.Input = can.input
			h.log.Debug("continued as new", "instance", inst.ID, "workflow", inst.Name, "generation", inst.Generation)
			continue
		}
		return h.finish(ctx, inst, started, out, werr)
	}
}

func runWorkflow(c *Context, fn workflowFunc, input json.RawMessage) (out json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(c.id, c.name, r)
		}
	}()
	return fn(c, input)
}

func (h *Host) finish(ctx context.Context, inst store.Instance, started time.Time, out json.RawMessage, werr error) runResult {
	res := runResult{status: store.StatusCompleted, output: out}
	if werr != nil {
		res = runResult{status: store.StatusFailed, errText: werr.Error()}
	}

	ok, err := h.store.FinishInstance(ctx, inst.ID, inst.Generation, res.status, res.output, res.errText)
	if err != nil {
		if ctx.Err() != nil {
			return h.interrupted(ctx, inst)
		}
		h.log.Error("record outcome failed", "instance", inst.ID, "workflow", inst.Name, "error", err)
		return res
	}
	if !ok {
		return h.current(ctx, inst)
	}

	elapsed := h.time.Now().Sub(started)
	if res.status == store.StatusFailed {
		h.log.Error("instance failed", "instance", inst.ID, "workflow", inst.Name, "error", res.errText)
	} else {
		h.log.Info("instance completed", "instance", inst.ID, "workflow", inst.Name, "elapsed", elapsed)
	}
	if h.observer != nil {
		h.observer.InstanceFinished(inst.Name, res.status, elapsed)
	}
	return res
}

// interrupted reports the state of an execution whose context ended.
func (h *Host) interrupted(ctx context.Context, inst store.Instance) runResult {
	if !isTerminated(ctx) {
		return runResult{status: store.StatusRunning}
	}
	if h.observer != nil {
		h.observer.InstanceFinished(inst.Name, store.StatusTerminated, 0)
	}
	return h.current(context.WithoutCancel(ctx), inst)
}

// current reads the stored outcome after another writer changed it.
func (h *Host) current(ctx context.Context, inst store.Instance) runResult {
	stored, err := h.store.GetInstance(context.WithoutCancel(ctx), inst.ID)
	if err != nil {
		return runResult{status: store.StatusTerminated, errText: ErrTerminated.Error()}
	}
	if !stored.Status.Terminal() {
		return runResult{status: store.StatusRunning}
	}
	return resultOf(stored)
}

// runChild prepares and executes a child instance on behalf of c.
func (h *Host) runChild(c *Context, child store.Instance) runResult {
	inst, reused, err := h.store.PrepareChild(c.ctx, child)
	if err != nil {
		if c.ctx.Err() != nil {
			return runResult{status: store.StatusRunning}
		}
		return runResult{status: store.StatusFailed, errText: err.Error()}
	}
	if reused && inst.Status.Terminal() {
		return resultOf(inst)
	}
	h.wg.Add(1)
	defer h.wg.Done()
	return h.execute(c.ctx, inst, c.lineage)
}

func (h *Host) runActivity(c *Context, fn activityFunc, info ActivityInfo, input json.RawMessage) (out json.RawMessage, err error) {
	if h.activities != nil {
		if err := h.activities.Acquire(c.ctx, 1); err != nil {
			return nil, err
		}
		defer h.activities.Release(1)
	}
	defer func() {
		if r := recover(); r != nil {
			err = panicError(c.id, info.Activity, r)
		}
	}()
	return fn(WithActivityInfo(c.ctx, info), input)
}
