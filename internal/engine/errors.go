package engine

import (
	"errors"
	"fmt"
)

// ErrTerminated is the cancellation cause of a terminated instance.
var ErrTerminated = errors.New("instance terminated")

// RuntimeError represents an error detected during workflow execution.
//
// Activity and sub-workflow failures are reported as RuntimeErrors carrying
// only the failure text, so a step that failed before a restart and is
// replayed from history produces the same error as the live run did.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// InstanceID identifies the workflow instance that observed the error.
	InstanceID string

	// Step is the activity, sub-workflow or timer name.
	Step string

	// Seq is the history position of the step, if any.
	Seq int64
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeActivityFailed indicates an activity returned an error.
	ErrCodeActivityFailed RuntimeErrorCode = "ACTIVITY_FAILED"

	// ErrCodeSubWorkflowFailed indicates a child instance failed or was terminated.
	ErrCodeSubWorkflowFailed RuntimeErrorCode = "SUBWORKFLOW_FAILED"

	// ErrCodeNonDeterminism indicates replayed code asked for a different
	// step than history recorded at the same position.
	ErrCodeNonDeterminism RuntimeErrorCode = "NON_DETERMINISM"

	// ErrCodeUnknownWorkflow indicates no workflow is registered under the name.
	ErrCodeUnknownWorkflow RuntimeErrorCode = "UNKNOWN_WORKFLOW"

	// ErrCodeUnknownActivity indicates no activity is registered under the name.
	ErrCodeUnknownActivity RuntimeErrorCode = "UNKNOWN_ACTIVITY"

	// ErrCodeCycleDetected indicates a workflow tried to start one of its ancestors.
	ErrCodeCycleDetected RuntimeErrorCode = "CYCLE_DETECTED"

	// ErrCodePanic indicates workflow or activity code panicked.
	ErrCodePanic RuntimeErrorCode = "PANIC"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.InstanceID != "" && e.Step != "" {
		return fmt.Sprintf("%s: %s (instance=%s, step=%s)", e.Code, e.Message, e.InstanceID, e.Step)
	}
	if e.InstanceID != "" {
		return fmt.Sprintf("%s: %s (instance=%s)", e.Code, e.Message, e.InstanceID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsActivityError returns true if err is or wraps a failed activity.
func IsActivityError(err error) bool {
	return hasCode(err, ErrCodeActivityFailed)
}

// IsSubWorkflowError returns true if err is or wraps a failed child instance.
func IsSubWorkflowError(err error) bool {
	return hasCode(err, ErrCodeSubWorkflowFailed)
}

// IsNonDeterminismError returns true if err is or wraps a replay mismatch.
func IsNonDeterminismError(err error) bool {
	return hasCode(err, ErrCodeNonDeterminism)
}

// IsCycleError returns true if err is or wraps a sub-workflow cycle.
func IsCycleError(err error) bool {
	return hasCode(err, ErrCodeCycleDetected)
}

// NewActivityError creates a RuntimeError for a failed activity.
func NewActivityError(instanceID, name string, seq int64, message string) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeActivityFailed,
		Message:    message,
		InstanceID: instanceID,
		Step:       name,
		Seq:        seq,
	}
}

// NewSubWorkflowError creates a RuntimeError for a failed child instance.
func NewSubWorkflowError(instanceID, childID string, seq int64, message string) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeSubWorkflowFailed,
		Message:    message,
		InstanceID: instanceID,
		Step:       childID,
		Seq:        seq,
	}
}

// NewNonDeterminismError creates a RuntimeError for a replay mismatch.
func NewNonDeterminismError(instanceID string, seq int64, recorded, requested string) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeNonDeterminism,
		Message:    fmt.Sprintf("history has %s at seq %d, workflow requested %s", recorded, seq, requested),
		InstanceID: instanceID,
		Step:       requested,
		Seq:        seq,
	}
}

// continueAsNewError is returned by Context.ContinueAsNew and recognised
// by the host when the workflow function returns it.
type continueAsNewError struct {
	input []byte
}

func (e *continueAsNewError) Error() string {
	return "continue as new"
}
