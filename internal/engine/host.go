package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/roach88/shiftsync/internal/store"
)

const (
	DefaultPollInterval  = time.Second
	DefaultLockTimeout   = 30 * time.Second
	DefaultMaxInstances  = 256
	defaultTerminateNote = "terminated"
)

// Observer is notified when an instance reaches a final state on this host.
type Observer interface {
	InstanceFinished(workflow string, status store.Status, elapsed time.Duration)
}

// Host runs durable workflows stored in a store.Store.
//
// Thread-safety model:
//   - Register*: before Run
//   - StartNew, TryStartSingleton, Terminate, GetStatus, Wait: any goroutine
//   - Run: exactly one goroutine per host
type Host struct {
	store    *store.Store
	reg      *registry
	log      *slog.Logger
	time     TimeSource
	ids      IDGenerator
	observer Observer
	quota    StepQuota

	workerID     string
	pollInterval time.Duration
	lockTimeout  time.Duration
	maxInstances int
	activities   *semaphore.Weighted

	mu    sync.Mutex
	runs  map[string]*runHandle
	roots map[string]chan struct{}
	wg    sync.WaitGroup
	wake  chan struct{}
}

// runHandle is the in-process execution of one instance.
type runHandle struct {
	cancel context.CancelCauseFunc
}

// Option configures a Host.
type Option func(*Host)

// WithWorkerID sets the id this host claims instances under.
func WithWorkerID(id string) Option {
	return func(h *Host) { h.workerID = id }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.log = l }
}

// WithTimeSource replaces the wall clock used by timers and Now.
func WithTimeSource(ts TimeSource) Option {
	return func(h *Host) { h.time = ts }
}

// WithIDGenerator replaces the generator for empty StartNew ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(h *Host) { h.ids = g }
}

// WithObserver registers an observer for finished instances.
func WithObserver(o Observer) Option {
	return func(h *Host) { h.observer = o }
}

// WithPollInterval sets how often Run looks for claimable instances.
func WithPollInterval(d time.Duration) Option {
	return func(h *Host) { h.pollInterval = d }
}

// WithLockTimeout sets how long a claim lasts without a heartbeat.
func WithLockTimeout(d time.Duration) Option {
	return func(h *Host) { h.lockTimeout = d }
}

// WithMaxInstances bounds the root instances this host runs at once.
func WithMaxInstances(n int) Option {
	return func(h *Host) { h.maxInstances = n }
}

// WithMaxConcurrentActivities bounds in-flight activities across all
// instances. n <= 0 means unbounded.
func WithMaxConcurrentActivities(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.activities = semaphore.NewWeighted(int64(n))
		} else {
			h.activities = nil
		}
	}
}

// WithMaxSteps sets the per-generation step quota.
func WithMaxSteps(n int) Option {
	return func(h *Host) { h.quota = NewStepQuota(n) }
}

// NewHost creates a host over s.
func NewHost(s *store.Store, opts ...Option) *Host {
	h := &Host{
		store:        s,
		reg:          newRegistry(),
		log:          slog.Default(),
		time:         SystemTime(),
		ids:          UUIDv7Generator{},
		quota:        NewStepQuota(DefaultMaxSteps),
		pollInterval: DefaultPollInterval,
		lockTimeout:  DefaultLockTimeout,
		maxInstances: DefaultMaxInstances,
		runs:         make(map[string]*runHandle),
		roots:        make(map[string]chan struct{}),
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.workerID == "" {
		h.workerID = UUIDv7Generator{}.Generate()
	}
	return h
}

// WorkerID returns the id this host claims instances under.
func (h *Host) WorkerID() string {
	return h.workerID
}

// StartNew creates a pending root instance. An empty id is generated. It
// returns store.ErrInstanceExists if the id is taken.
func (h *Host) StartNew(ctx context.Context, name, instanceID string, input any) (string, error) {
	if _, ok := h.reg.workflow(name); !ok {
		return "", &RuntimeError{Code: ErrCodeUnknownWorkflow, Message: "workflow is not registered", Step: name}
	}
	if instanceID == "" {
		instanceID = h.ids.Generate()
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("start %s: encode input: %w", name, err)
	}
	if err := h.store.CreateInstance(ctx, instanceID, name, raw); err != nil {
		return "", err
	}
	h.signal()
	return instanceID, nil
}

// TryStartSingleton starts the instance unless it is already pending or
// running. A terminal instance with the same id is restarted under a new
// generation. It reports whether a run was started.
func (h *Host) TryStartSingleton(ctx context.Context, name, instanceID string, input any) (bool, error) {
	if _, ok := h.reg.workflow(name); !ok {
		return false, &RuntimeError{Code: ErrCodeUnknownWorkflow, Message: "workflow is not registered", Step: name}
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return false, fmt.Errorf("start %s: encode input: %w", name, err)
	}
	started, err := h.store.StartSingleton(ctx, instanceID, name, raw)
	if err != nil {
		return false, err
	}
	if started {
		h.signal()
	}
	return started, nil
}

// Terminate stops the instance and all its descendants. Running steps are
// cancelled; instances owned by other hosts notice at their next
// heartbeat. Terminating a finished instance is a no-op.
func (h *Host) Terminate(ctx context.Context, instanceID, reason string) error {
	if reason == "" {
		reason = defaultTerminateNote
	}
	ids, err := h.store.TerminateInstance(ctx, instanceID, reason)
	if err != nil {
		return err
	}
	h.cancelRuns(ids)
	if len(ids) > 0 {
		h.log.Info("instance terminated", "instance", instanceID, "affected", len(ids), "reason", reason)
	}
	return nil
}

// GetStatus returns the stored state of the instance.
func (h *Host) GetStatus(ctx context.Context, instanceID string) (store.Instance, error) {
	return h.store.GetInstance(ctx, instanceID)
}

// Wait polls until the instance is terminal or ctx ends.
func (h *Host) Wait(ctx context.Context, instanceID string) (store.Instance, error) {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	for {
		inst, err := h.store.GetInstance(ctx, instanceID)
		if err != nil {
			return store.Instance{}, err
		}
		if inst.Status.Terminal() {
			return inst, nil
		}
		select {
		case <-ctx.Done():
			return inst, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Run claims and executes root instances until ctx is cancelled. On
// shutdown every in-process instance is interrupted and left running with
// its lock released, so the next Run (here or on another worker) resumes
// it from history.
func (h *Host) Run(ctx context.Context) error {
	h.log.Info("worker starting", "worker", h.workerID, "poll_interval", h.pollInterval)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(max(h.lockTimeout/3, time.Millisecond))
	defer heartbeat.Stop()

	for {
		if err := h.claim(runCtx); err != nil {
			h.log.Error("claim failed", "error", err)
		}

		select {
		case <-ctx.Done():
			h.log.Info("worker stopping: context cancelled", "worker", h.workerID)
			cancel()
			h.wg.Wait()
			if err := h.store.ReleaseLocks(context.WithoutCancel(ctx), h.workerID); err != nil {
				h.log.Error("release locks failed", "error", err)
			}
			return nil
		case <-heartbeat.C:
			if err := h.heartbeat(runCtx); err != nil {
				h.log.Error("heartbeat failed", "error", err)
			}
		case <-ticker.C:
		case <-h.wake:
		}
	}
}

func (h *Host) signal() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Host) claim(ctx context.Context) error {
	h.mu.Lock()
	free := h.maxInstances - len(h.roots)
	h.mu.Unlock()
	if free <= 0 {
		return nil
	}

	claimed, err := h.store.ClaimInstances(ctx, h.workerID, h.lockTimeout, free)
	if err != nil {
		return err
	}
	for _, inst := range claimed {
		// A restarted singleton can be claimed while its previous
		// generation is still unwinding here; the new run waits for it.
		done := make(chan struct{})
		h.mu.Lock()
		prev := h.roots[inst.ID]
		h.roots[inst.ID] = done
		h.mu.Unlock()

		h.log.Debug("instance claimed", "instance", inst.ID, "workflow", inst.Name, "generation", inst.Generation)
		h.wg.Add(1)
		go func(inst store.Instance) {
			defer h.wg.Done()
			defer func() {
				h.mu.Lock()
				if h.roots[inst.ID] == done {
					delete(h.roots, inst.ID)
				}
				h.mu.Unlock()
				close(done)
			}()
			if prev != nil {
				<-prev
			}
			h.execute(ctx, inst, nil)
		}(inst)
	}
	return nil
}

// heartbeat renews locks on owned roots and cancels instances that were
// terminated through another host.
func (h *Host) heartbeat(ctx context.Context) error {
	h.mu.Lock()
	roots := make([]string, 0, len(h.roots))
	for id := range h.roots {
		roots = append(roots, id)
	}
	running := make([]string, 0, len(h.runs))
	for id := range h.runs {
		running = append(running, id)
	}
	h.mu.Unlock()

	if err := h.store.ExtendLocks(ctx, h.workerID, roots, h.lockTimeout); err != nil {
		return err
	}
	terminated, err := h.store.TerminatedAmong(ctx, running)
	if err != nil {
		return err
	}
	h.cancelRuns(terminated)
	return nil
}

func (h *Host) cancelRuns(ids []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		if run, ok := h.runs[id]; ok {
			run.cancel(ErrTerminated)
		}
	}
}

func (h *Host) track(id string, cancel context.CancelCauseFunc) *runHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	run := &runHandle{cancel: cancel}
	h.runs[id] = run
	return run
}

func (h *Host) untrack(id string, run *runHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.runs[id] == run {
		delete(h.runs, id)
	}
}

// isTerminated reports whether ctx was cancelled by Terminate.
func isTerminated(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrTerminated)
}
