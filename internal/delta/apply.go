package delta

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pusher writes one entity type to the destination. Create and Update
// return the record as stored, carrying any newly assigned destination id.
type Pusher[T any] interface {
	Create(ctx context.Context, rec T) (T, error)
	Update(ctx context.Context, rec T) (T, error)
	Delete(ctx context.Context, rec T) error
}

type applyConfig struct {
	concurrency int64
}

// ApplyOption configures Apply.
type ApplyOption func(*applyConfig)

// WithConcurrency bounds the number of in-flight pushes. n <= 0 leaves the
// fan-out unbounded; the destination client is then expected to throttle.
func WithConcurrency(n int) ApplyOption {
	return func(c *applyConfig) {
		c.concurrency = int64(n)
	}
}

type pushJob[T any] struct {
	op  Op
	rec T
}

type pushOutcome[T any] struct {
	outcome Outcome
	rec     T
	err     error
}

// Apply pushes every pending change of r and reclassifies the items in
// place: successes stay in their bucket (replaced by the pusher's returned
// record), validation failures move to Skipped and all other failures move
// to Failed. It returns r and the per-item errors in bucket order.
//
// Apply never returns early: all items are attempted even when some fail.
// If ctx is cancelled, items that have not started are marked Failed.
func Apply[T Record[T]](ctx context.Context, r *Result[T], p Pusher[T], opts ...ApplyOption) (*Result[T], []ItemError) {
	cfg := applyConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	jobs := make([]pushJob[T], 0, r.Len())
	for _, rec := range r.Created {
		jobs = append(jobs, pushJob[T]{op: OpCreate, rec: rec})
	}
	for _, rec := range r.Updated {
		jobs = append(jobs, pushJob[T]{op: OpUpdate, rec: rec})
	}
	for _, rec := range r.Deleted {
		jobs = append(jobs, pushJob[T]{op: OpDelete, rec: rec})
	}

	var sem *semaphore.Weighted
	if cfg.concurrency > 0 {
		sem = semaphore.NewWeighted(cfg.concurrency)
	}

	// Each goroutine writes only its own slot.
	outcomes := make([]pushOutcome[T], len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		if sem != nil {
			if err := sem.Acquire(ctx, 1); err != nil {
				outcomes[i] = pushOutcome[T]{outcome: OutcomeFailed, rec: job.rec, err: err}
				continue
			}
		}
		wg.Add(1)
		go func(i int, job pushJob[T]) {
			defer wg.Done()
			if sem != nil {
				defer sem.Release(1)
			}
			outcomes[i] = push(ctx, p, job)
		}(i, job)
	}
	wg.Wait()

	created, updated, deleted := []T{}, []T{}, []T{}
	var itemErrs []ItemError
	for i, job := range jobs {
		out := outcomes[i]
		switch out.outcome {
		case OutcomeApplied:
			switch job.op {
			case OpCreate:
				created = append(created, out.rec)
			case OpUpdate:
				updated = append(updated, out.rec)
			case OpDelete:
				deleted = append(deleted, out.rec)
			}
			continue
		case OutcomeSkipped:
			r.Skipped = append(r.Skipped, job.rec)
		default:
			r.Failed = append(r.Failed, job.rec)
		}
		itemErrs = append(itemErrs, ItemError{Op: job.op, Key: job.rec.Key(), Outcome: out.outcome, Err: out.err})
	}
	r.Created, r.Updated, r.Deleted = created, updated, deleted
	return r, itemErrs
}

func push[T Record[T]](ctx context.Context, p Pusher[T], job pushJob[T]) pushOutcome[T] {
	if err := ctx.Err(); err != nil {
		return pushOutcome[T]{outcome: OutcomeFailed, rec: job.rec, err: err}
	}

	var (
		rec = job.rec
		err error
	)
	switch job.op {
	case OpCreate:
		rec, err = p.Create(ctx, job.rec)
	case OpUpdate:
		rec, err = p.Update(ctx, job.rec)
	case OpDelete:
		err = p.Delete(ctx, job.rec)
	}

	switch {
	case err == nil:
		if isNil(rec) {
			rec = job.rec
		}
		return pushOutcome[T]{outcome: OutcomeApplied, rec: rec}
	case IsValidation(err):
		return pushOutcome[T]{outcome: OutcomeSkipped, rec: job.rec, err: err}
	default:
		return pushOutcome[T]{outcome: OutcomeFailed, rec: job.rec, err: err}
	}
}
