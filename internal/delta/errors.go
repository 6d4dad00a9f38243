package delta

import (
	"errors"
	"fmt"
)

// ValidationError marks an item that can never be pushed as-is, e.g. a
// shift whose employee has no destination mapping. Apply moves such items
// to Skipped. Destination adapters may wrap it to report permanent
// rejections.
type ValidationError struct {
	Key    string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s: %s", e.Key, e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Key, e.Reason)
}

// NewValidationError creates a ValidationError for the record key.
func NewValidationError(key, field, reason string) *ValidationError {
	return &ValidationError{Key: key, Field: field, Reason: reason}
}

// IsValidation returns true if err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Op is the kind of push applied to an item.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Outcome classifies the result of pushing one item.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// ItemError records why one item was skipped or failed.
type ItemError struct {
	Op      Op
	Key     string
	Outcome Outcome
	Err     error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Outcome, e.Op, e.Key, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}
