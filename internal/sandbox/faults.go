package sandbox

import "sync"

// Faults holds injected failures keyed by operation and record key. An
// empty key matches every record of the operation.
type Faults struct {
	mu    sync.Mutex
	rules map[string]*fault
	hooks map[string]func()
}

type fault struct {
	err       error
	remaining int // < 0 means unlimited
}

func faultKey(op, key string) string {
	return op + "|" + key
}

// Fail makes op fail with err for key until cleared.
func (f *Faults) Fail(op, key string, err error) {
	f.FailTimes(op, key, err, -1)
}

// FailTimes makes op fail with err for key the next n times.
func (f *Faults) FailTimes(op, key string, err error, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rules == nil {
		f.rules = make(map[string]*fault)
	}
	f.rules[faultKey(op, key)] = &fault{err: err, remaining: n}
}

// Before runs fn at the start of every call of op, ahead of any injected
// failure, until cleared. fn runs without the sandbox locks held.
func (f *Faults) Before(op string, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hooks == nil {
		f.hooks = make(map[string]func())
	}
	f.hooks[op] = fn
}

// Clear removes every injected failure and hook.
func (f *Faults) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = nil
	f.hooks = nil
}

// check runs the hook of op and returns the injected error for (op, key),
// if any.
func (f *Faults) check(op, key string) error {
	f.mu.Lock()
	hook := f.hooks[op]
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range []string{faultKey(op, key), faultKey(op, "")} {
		r, ok := f.rules[k]
		if !ok {
			continue
		}
		if r.remaining == 0 {
			delete(f.rules, k)
			continue
		}
		if r.remaining > 0 {
			r.remaining--
		}
		return r.err
	}
	return nil
}
