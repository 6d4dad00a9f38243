package orchestrator

import (
	"errors"
	"log/slog"
)

var (
	// ErrNotFound is returned by collaborators when a lookup matches nothing.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned by the destination when a concurrent writer
	// modified the same object.
	ErrConflict = errors.New("conflict")

	// ErrProvisionTimeout fails a team cycle whose destination schedule did
	// not finish provisioning in time.
	ErrProvisionTimeout = errors.New("schedule provisioning timed out")

	// ErrProvisionFailed fails a team cycle whose destination schedule
	// reports a failed provisioning.
	ErrProvisionFailed = errors.New("schedule provisioning failed")
)

// LogErrors logs every leaf of err. Errors joined with errors.Join (or any
// error with an Unwrap() []error method) are walked recursively, so a
// fan-out failure shows one line per failed child.
func LogErrors(log *slog.Logger, msg string, err error, args ...any) int {
	if err == nil {
		return 0
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		n := 0
		for _, inner := range joined.Unwrap() {
			n += LogErrors(log, msg, inner, args...)
		}
		return n
	}
	log.Error(msg, append(args, "error", err)...)
	return 1
}
