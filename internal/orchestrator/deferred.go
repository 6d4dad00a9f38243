package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/shiftsync/internal/engine"
	"github.com/roach88/shiftsync/internal/model"
)

// ActionKind is the operation a DeferredAction performs.
type ActionKind string

const (
	ActionApprove ActionKind = "approve"
	ActionDecline ActionKind = "decline"
	ActionShare   ActionKind = "share"
)

// DeferredInput is the input of a DeferredAction instance.
type DeferredInput struct {
	TeamID       string     `json:"teamId"`
	Kind         ActionKind `json:"kind"`
	RequestType  string     `json:"requestType,omitempty"`
	RequestID    string     `json:"requestId,omitempty"`
	Message      string     `json:"message,omitempty"`
	DelaySeconds int        `json:"delaySeconds"`
	RangeStart   time.Time  `json:"rangeStart,omitzero"`
	RangeEnd     time.Time  `json:"rangeEnd,omitzero"`
	Notify       bool       `json:"notify,omitempty"`
}

// Validate checks that the fields required by Kind are present.
func (in DeferredInput) Validate() error {
	if in.TeamID == "" {
		return errors.New("deferred action: team id is required")
	}
	if in.DelaySeconds < 0 {
		return errors.New("deferred action: delay must not be negative")
	}
	switch in.Kind {
	case ActionApprove, ActionDecline:
		if in.RequestID == "" || in.RequestType == "" {
			return fmt.Errorf("deferred action %s: request type and id are required", in.Kind)
		}
	case ActionShare:
		if !in.RangeEnd.After(in.RangeStart) {
			return errors.New("deferred action share: range end must be after range start")
		}
	default:
		return fmt.Errorf("deferred action: unknown kind %q", in.Kind)
	}
	return nil
}

// DeferredResult reports whether the action was dispatched.
type DeferredResult struct {
	Dispatched bool   `json:"dispatched"`
	Error      string `json:"error,omitempty"`
}

// deferredAction waits on a durable timer and dispatches the action once.
// A failed dispatch is logged and not retried.
func (o *Orchestrator) deferredAction(c *engine.Context, in DeferredInput) (DeferredResult, error) {
	log := c.Logger().With("team", in.TeamID, "kind", in.Kind)
	if in.DelaySeconds > 0 {
		if err := engine.Sleep(c, time.Duration(in.DelaySeconds)*time.Second); err != nil {
			return DeferredResult{}, err
		}
	}
	if _, err := engine.CallActivity[struct{}](c, activityDispatch, in); err != nil {
		if errors.Is(err, engine.ErrTerminated) {
			return DeferredResult{}, err
		}
		log.Error("deferred action failed", "request", in.RequestID, "error", err)
		return DeferredResult{Error: err.Error()}, nil
	}
	log.Info("deferred action dispatched", "request", in.RequestID)
	return DeferredResult{Dispatched: true}, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, in DeferredInput) (struct{}, error) {
	if err := in.Validate(); err != nil {
		return struct{}{}, err
	}
	ref := model.RequestRef{RequestType: in.RequestType, RequestID: in.RequestID}
	var err error
	switch in.Kind {
	case ActionApprove:
		err = o.dest.ApproveRequest(ctx, in.TeamID, ref, in.Message)
	case ActionDecline:
		err = o.dest.DeclineRequest(ctx, in.TeamID, ref, in.Message)
	case ActionShare:
		err = o.dest.ShareSchedule(ctx, in.TeamID, in.RangeStart, in.RangeEnd, in.Notify)
	}
	return struct{}{}, err
}
