package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

type workflowFunc func(c *Context, input json.RawMessage) (json.RawMessage, error)

type activityFunc func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

type registry struct {
	mu         sync.RWMutex
	workflows  map[string]workflowFunc
	activities map[string]activityFunc
}

func newRegistry() *registry {
	return &registry{
		workflows:  make(map[string]workflowFunc),
		activities: make(map[string]activityFunc),
	}
}

func (r *registry) workflow(name string) (workflowFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.workflows[name]
	return fn, ok
}

func (r *registry) activity(name string) (activityFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.activities[name]
	return fn, ok
}

// RegisterWorkflow registers fn under name. Workflow code must be
// deterministic: all I/O, randomness and wall-clock reads go through
// activities, timers and Now. Registering a name twice replaces the
// previous function.
func RegisterWorkflow[In, Out any](h *Host, name string, fn func(*Context, In) (Out, error)) {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	h.reg.workflows[name] = func(c *Context, raw json.RawMessage) (json.RawMessage, error) {
		var in In
		if err := decode(raw, &in); err != nil {
			return nil, fmt.Errorf("decode %s input: %w", name, err)
		}
		out, err := fn(c, in)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	}
}

// RegisterActivity registers fn under name. Activities run at least once
// per step: a step interrupted by a crash runs again on replay.
func RegisterActivity[In, Out any](h *Host, name string, fn func(context.Context, In) (Out, error)) {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	h.reg.activities[name] = func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var in In
		if err := decode(raw, &in); err != nil {
			return nil, fmt.Errorf("decode %s input: %w", name, err)
		}
		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	}
}
