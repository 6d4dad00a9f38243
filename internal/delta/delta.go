package delta

import "reflect"

// Record is implemented by the pointer types of every synchronized record.
type Record[T any] interface {
	Key() string
	// CarryIDs copies destination-side ids from the tracked version.
	CarryIDs(from T)
	// HasChanges reports whether the record differs from the tracked version.
	HasChanges(from T) bool
}

// Result is the change-set between two collections.
//
// Created, Updated and Deleted are disjoint by key. Failed and Skipped are
// empty after Compute and are only filled by Apply, by moving items out of
// the other three buckets.
type Result[T any] struct {
	Created []T `json:"created"`
	Updated []T `json:"updated"`
	Deleted []T `json:"deleted"`
	Failed  []T `json:"failed"`
	Skipped []T `json:"skipped"`
}

// All returns Created, Updated and Deleted in that order.
func (r *Result[T]) All() []T {
	all := make([]T, 0, len(r.Created)+len(r.Updated)+len(r.Deleted))
	all = append(all, r.Created...)
	all = append(all, r.Updated...)
	return append(all, r.Deleted...)
}

// HasChanges reports whether any bucket is non-empty.
func (r *Result[T]) HasChanges() bool {
	return len(r.Created) > 0 || len(r.Updated) > 0 || len(r.Deleted) > 0 ||
		len(r.Failed) > 0 || len(r.Skipped) > 0
}

// Len returns the number of pending changes (Created + Updated + Deleted).
func (r *Result[T]) Len() int {
	return len(r.Created) + len(r.Updated) + len(r.Deleted)
}

// Truncate keeps at most max pending changes, taking Deleted first, then
// Created, then Updated, each in bucket order. The remainder is simply
// dropped: it is still absent from (or stale in) the tracked snapshot, so
// the next cycle offers it again. max <= 0 means no limit. Truncate reports
// whether anything was dropped.
func (r *Result[T]) Truncate(max int) bool {
	if max <= 0 || r.Len() <= max {
		return false
	}
	budget := max
	take := func(items []T) []T {
		if len(items) <= budget {
			budget -= len(items)
			return items
		}
		kept := items[:budget]
		budget = 0
		return kept
	}
	r.Deleted = take(r.Deleted)
	r.Created = take(r.Created)
	r.Updated = take(r.Updated)
	return true
}

// Compute returns the delta that turns from into to.
//
// For every key present on both sides, to's record receives the carried
// destination ids (even when it turns out unchanged, so callers can persist
// "to" as the new tracked state).
func Compute[T Record[T]](from, to []T) *Result[T] {
	return ComputeExcluding(from, to, nil)
}

// ComputeExcluding is Compute with the keys in skip removed from both
// collections first. Skipped source ids therefore never reach Apply,
// whatever the source currently reports for them.
func ComputeExcluding[T Record[T]](from, to []T, skip map[string]bool) *Result[T] {
	fromKeys, fromMap := index(from, skip)
	toKeys, toMap := index(to, skip)

	r := &Result[T]{
		Created: []T{},
		Updated: []T{},
		Deleted: []T{},
		Failed:  []T{},
		Skipped: []T{},
	}
	for _, k := range toKeys {
		rec := toMap[k]
		prev, ok := fromMap[k]
		if !ok {
			r.Created = append(r.Created, rec)
			continue
		}
		rec.CarryIDs(prev)
		if rec.HasChanges(prev) {
			r.Updated = append(r.Updated, rec)
		}
	}
	for _, k := range fromKeys {
		if _, ok := toMap[k]; !ok {
			r.Deleted = append(r.Deleted, fromMap[k])
		}
	}
	return r
}

// index maps records by key. Keys keep the position of their first
// occurrence; the value is the last occurrence.
func index[T Record[T]](items []T, skip map[string]bool) ([]string, map[string]T) {
	keys := make([]string, 0, len(items))
	m := make(map[string]T, len(items))
	for _, rec := range items {
		if isNil(rec) {
			continue
		}
		k := rec.Key()
		if skip[k] {
			continue
		}
		if _, seen := m[k]; !seen {
			keys = append(keys, k)
		}
		m[k] = rec
	}
	return keys, m
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
