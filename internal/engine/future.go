package engine

import (
	"encoding/json"
	"fmt"
)

// Future is the pending result of an asynchronous step.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Get blocks until the step finishes and returns its result.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.val, f.err
}

// Done is closed when the step finishes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// resolve decodes raw into the future's value unless err is set. It must
// be called exactly once.
func (f *Future[T]) resolve(raw json.RawMessage, err error) {
	defer close(f.done)
	if err != nil {
		f.err = err
		return
	}
	if err := decode(raw, &f.val); err != nil {
		f.err = fmt.Errorf("decode result: %w", err)
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// Await waits for every future and returns the values in order together
// with the error of each one (nil entries for successes).
func Await[T any](futures []*Future[T]) ([]T, []error) {
	vals := make([]T, len(futures))
	errs := make([]error, len(futures))
	for i, f := range futures {
		vals[i], errs[i] = f.Get()
	}
	return vals, errs
}
