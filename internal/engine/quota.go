package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxSteps is the default maximum number of steps per generation.
// Long-running workflows stay under it by calling ContinueAsNew.
const DefaultMaxSteps = 10000

// StepQuota bounds the number of steps one generation of an instance may
// take, so an unbounded loop surfaces as a failure instead of a history
// that grows forever. A limit <= 0 disables the check.
type StepQuota struct {
	limit int64
}

// NewStepQuota creates a quota with the given limit.
func NewStepQuota(limit int) StepQuota {
	return StepQuota{limit: int64(limit)}
}

// Check returns StepsExceededError if seq is past the limit.
func (q StepQuota) Check(instanceID string, seq int64) error {
	if q.limit > 0 && seq > q.limit {
		return &StepsExceededError{InstanceID: instanceID, Steps: seq, Limit: q.limit}
	}
	return nil
}

// StepsExceededError is returned when a generation exceeds its step quota.
type StepsExceededError struct {
	InstanceID string
	Steps      int64
	Limit      int64
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("instance %s exceeded max steps quota: %d steps > %d limit",
		e.InstanceID, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
