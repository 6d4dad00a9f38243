package engine

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/roach88/shiftsync/internal/store"
)

// beginStep assigns the next seq to a step. If history already has an
// event at that seq it is returned after checking it matches; otherwise
// tmpl is recorded. A nil event with a nil error means the step is new.
func (c *Context) beginStep(tmpl store.HistoryEvent) (int64, *store.HistoryEvent, error) {
	seq := c.clock.Next()
	if err := c.quota.Check(c.id, seq); err != nil {
		c.fail(err)
		return seq, nil, err
	}
	if tmpl.Kind == store.KindSubWorkflow && tmpl.Target == "" {
		tmpl.Target = fmt.Sprintf("%s-%s-%d", c.id, tmpl.Name, seq)
	}

	if ev, ok := c.history.at(seq); ok {
		if ev.Kind != tmpl.Kind || ev.Name != tmpl.Name || ev.Target != tmpl.Target {
			err := NewNonDeterminismError(c.id, seq, describe(ev.Kind, ev.Name, ev.Target), describe(tmpl.Kind, tmpl.Name, tmpl.Target))
			c.fail(err)
			return seq, nil, err
		}
		return seq, &ev, nil
	}

	tmpl.InstanceID = c.id
	tmpl.Generation = c.gen
	tmpl.Seq = seq
	if err := c.host.store.AppendEvent(c.ctx, tmpl); err != nil {
		if c.ctx.Err() != nil {
			return seq, nil, c.interrupted(tmpl.Name)
		}
		c.fail(err)
		return seq, nil, err
	}
	return seq, nil, nil
}

func describe(kind store.EventKind, name, target string) string {
	if target != "" {
		return fmt.Sprintf("%s %s(%s)", kind, name, target)
	}
	return fmt.Sprintf("%s %s", kind, name)
}

// complete records the outcome of step seq. It reports false when the
// instance context has ended, in which case nothing is recorded and the
// step will run again on replay.
func (c *Context) complete(seq int64, result json.RawMessage, errText string) (bool, error) {
	if c.ctx.Err() != nil {
		return false, nil
	}
	if err := c.host.store.CompleteEvent(c.ctx, c.id, c.gen, seq, result, errText); err != nil {
		if c.ctx.Err() != nil {
			return false, nil
		}
		c.fail(err)
		return false, err
	}
	return true, nil
}

// CallActivity runs the named activity and waits for its result.
func CallActivity[Out any](c *Context, name string, input any) (Out, error) {
	return CallActivityAsync[Out](c, name, input).Get()
}

// CallActivityAsync starts the named activity and returns its future.
// Activity concurrency across the host is bounded by
// WithMaxConcurrentActivities.
func CallActivityAsync[Out any](c *Context, name string, input any) *Future[Out] {
	f := newFuture[Out]()
	in, err := json.Marshal(input)
	if err != nil {
		f.resolve(nil, fmt.Errorf("activity %s: encode input: %w", name, err))
		return f
	}
	seq, ev, err := c.beginStep(store.HistoryEvent{Kind: store.KindActivity, Name: name, Input: in})
	if err != nil {
		f.resolve(nil, err)
		return f
	}
	if ev != nil && ev.Completed {
		f.resolve(ev.Result, stepError(c.id, ev))
		return f
	}

	fn, ok := c.host.reg.activity(name)
	if !ok {
		err := &RuntimeError{Code: ErrCodeUnknownActivity, Message: "activity is not registered", InstanceID: c.id, Step: name, Seq: seq}
		c.fail(err)
		f.resolve(nil, err)
		return f
	}

	go func() {
		out, runErr := c.host.runActivity(c, fn, ActivityInfo{InstanceID: c.id, Workflow: c.name, Activity: name, Seq: seq}, in)
		errText := ""
		if runErr != nil {
			errText = runErr.Error()
		}
		recorded, err := c.complete(seq, out, errText)
		switch {
		case err != nil:
			f.resolve(nil, err)
		case !recorded:
			f.resolve(nil, c.interrupted(name))
		case runErr != nil:
			f.resolve(nil, NewActivityError(c.id, name, seq, errText))
		default:
			f.resolve(out, nil)
		}
	}()
	return f
}

// CallSubWorkflow runs the named workflow as a child instance and waits
// for its output.
func CallSubWorkflow[Out any](c *Context, name, instanceID string, input any) (Out, error) {
	return CallSubWorkflowAsync[Out](c, name, instanceID, input).Get()
}

// CallSubWorkflowAsync starts the named workflow as a child instance with
// the given id and returns its future. An empty id derives one from the
// parent id and step position. The child runs on this host, inherits the
// parent's cancellation, and is terminated together with it.
func CallSubWorkflowAsync[Out any](c *Context, name, instanceID string, input any) *Future[Out] {
	f := newFuture[Out]()
	in, err := json.Marshal(input)
	if err != nil {
		f.resolve(nil, fmt.Errorf("sub-workflow %s: encode input: %w", name, err))
		return f
	}
	seq, ev, err := c.beginStep(store.HistoryEvent{Kind: store.KindSubWorkflow, Name: name, Target: instanceID, Input: in})
	if err != nil {
		f.resolve(nil, err)
		return f
	}
	target := instanceID
	if target == "" {
		target = fmt.Sprintf("%s-%s-%d", c.id, name, seq)
	}
	if ev != nil && ev.Completed {
		f.resolve(ev.Result, stepError(c.id, ev))
		return f
	}
	if c.lineage.wouldCycle(target) {
		err := &RuntimeError{Code: ErrCodeCycleDetected, Message: "sub-workflow would start an ancestor", InstanceID: c.id, Step: target, Seq: seq}
		c.fail(err)
		f.resolve(nil, err)
		return f
	}
	if _, ok := c.host.reg.workflow(name); !ok {
		err := &RuntimeError{Code: ErrCodeUnknownWorkflow, Message: "workflow is not registered", InstanceID: c.id, Step: name, Seq: seq}
		c.fail(err)
		f.resolve(nil, err)
		return f
	}

	go func() {
		res := c.host.runChild(c, store.Instance{
			ID:        target,
			Name:      name,
			ParentID:  c.id,
			ParentGen: c.gen,
			ParentSeq: seq,
			Input:     in,
		})
		if res.status == store.StatusRunning {
			f.resolve(nil, c.interrupted(target))
			return
		}
		errText := ""
		if res.status != store.StatusCompleted {
			errText = res.errText
			if errText == "" {
				errText = string(res.status)
			}
		}
		recorded, err := c.complete(seq, res.output, errText)
		switch {
		case err != nil:
			f.resolve(nil, err)
		case !recorded:
			f.resolve(nil, c.interrupted(target))
		case errText != "":
			f.resolve(nil, NewSubWorkflowError(c.id, target, seq, errText))
		default:
			f.resolve(res.output, nil)
		}
	}()
	return f
}

// CreateTimer returns a future that resolves once d has elapsed. The fire
// time is recorded, so after a restart only the remaining time is waited.
func CreateTimer(c *Context, d time.Duration) *Future[struct{}] {
	f := newFuture[struct{}]()
	fireAt := c.host.time.Now().Add(d).UTC()
	seq, ev, err := c.beginStep(store.HistoryEvent{Kind: store.KindTimer, Name: "timer", FireAt: fireAt})
	if err != nil {
		f.resolve(nil, err)
		return f
	}
	if ev != nil {
		if ev.Completed {
			f.resolve(nil, nil)
			return f
		}
		fireAt = ev.FireAt
	}

	go func() {
		if wait := fireAt.Sub(c.host.time.Now()); wait > 0 {
			select {
			case <-c.host.time.After(wait):
			case <-c.ctx.Done():
				f.resolve(nil, c.interrupted("timer"))
				return
			}
		}
		recorded, err := c.complete(seq, nil, "")
		switch {
		case err != nil:
			f.resolve(nil, err)
		case !recorded:
			f.resolve(nil, c.interrupted("timer"))
		default:
			f.resolve(nil, nil)
		}
	}()
	return f
}

// Sleep blocks on a durable timer.
func Sleep(c *Context, d time.Duration) error {
	_, err := CreateTimer(c, d).Get()
	return err
}

// Now returns the wall-clock time recorded for this step. Replays return
// the same value, so workflow code can branch on it.
func Now(c *Context) time.Time {
	now := c.host.time.Now().UTC()
	result, _ := json.Marshal(now)
	_, ev, err := c.beginStep(store.HistoryEvent{Kind: store.KindNow, Name: "now", Result: result, Completed: true})
	if err != nil || ev == nil {
		return now
	}
	var recorded time.Time
	if err := decode(ev.Result, &recorded); err != nil {
		c.fail(fmt.Errorf("decode recorded time: %w", err))
		return now
	}
	return recorded
}

// stepError rebuilds the error of a completed event.
func stepError(instanceID string, ev *store.HistoryEvent) error {
	if ev.Error == "" {
		return nil
	}
	if ev.Kind == store.KindSubWorkflow {
		return NewSubWorkflowError(instanceID, ev.Target, ev.Seq, ev.Error)
	}
	return NewActivityError(instanceID, ev.Name, ev.Seq, ev.Error)
}

func panicError(instanceID, step string, r any) error {
	return &RuntimeError{
		Code:       ErrCodePanic,
		Message:    fmt.Sprintf("%v\n%s", r, debug.Stack()),
		InstanceID: instanceID,
		Step:       step,
	}
}
