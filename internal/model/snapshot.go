package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Keyed is implemented by every synchronized record type.
type Keyed interface {
	Key() string
}

// RawSnapshot is the storage form of a snapshot: the tracked records stay
// encoded so the store does not need to know the record type.
type RawSnapshot struct {
	Tracked json.RawMessage `json:"tracked"`
	Skipped []string        `json:"skipped"`
}

// SnapshotModel is the last-applied state of one (team, week, entity type).
//
// Tracked is the "from" side of the next delta. Skipped holds source ids
// that failed validation and are excluded from sync until un-skipped. A
// record skipped on update or delete keeps its Tracked entry, so its
// destination ids survive until it is un-skipped.
type SnapshotModel[T Keyed] struct {
	Tracked []T      `json:"tracked"`
	Skipped []string `json:"skipped"`
}

// DecodeSnapshot decodes a raw snapshot. A zero RawSnapshot decodes to an
// empty model.
func DecodeSnapshot[T Keyed](raw RawSnapshot) (SnapshotModel[T], error) {
	m := SnapshotModel[T]{Tracked: []T{}, Skipped: []string{}}
	if len(raw.Tracked) > 0 && string(raw.Tracked) != "null" {
		if err := json.Unmarshal(raw.Tracked, &m.Tracked); err != nil {
			return m, fmt.Errorf("decode tracked: %w", err)
		}
	}
	if raw.Skipped != nil {
		m.Skipped = append(m.Skipped, raw.Skipped...)
	}
	return m, nil
}

// Encode returns the storage form of the snapshot.
func (m SnapshotModel[T]) Encode() (RawSnapshot, error) {
	tracked := m.Tracked
	if tracked == nil {
		tracked = []T{}
	}
	data, err := json.Marshal(tracked)
	if err != nil {
		return RawSnapshot{}, fmt.Errorf("encode tracked: %w", err)
	}
	skipped := m.Skipped
	if skipped == nil {
		skipped = []string{}
	}
	return RawSnapshot{Tracked: data, Skipped: skipped}, nil
}

// SkippedSet returns Skipped as a lookup set.
func (m SnapshotModel[T]) SkippedSet() map[string]bool {
	set := make(map[string]bool, len(m.Skipped))
	for _, id := range m.Skipped {
		set[id] = true
	}
	return set
}

// Merge folds the outcome of an apply pass into the snapshot: applied
// upserts replace by key (new keys are appended), applied deletes are
// removed, and skipped ids join Skipped. Tracked entries of skipped
// records are left as they were.
func (m *SnapshotModel[T]) Merge(upserted, deleted, skipped []T) {
	index := make(map[string]int, len(m.Tracked))
	for i, rec := range m.Tracked {
		index[rec.Key()] = i
	}
	for _, rec := range upserted {
		if i, ok := index[rec.Key()]; ok {
			m.Tracked[i] = rec
			continue
		}
		index[rec.Key()] = len(m.Tracked)
		m.Tracked = append(m.Tracked, rec)
	}

	drop := make(map[string]bool, len(deleted))
	for _, rec := range deleted {
		drop[rec.Key()] = true
	}
	ids := make([]string, 0, len(skipped))
	for _, rec := range skipped {
		ids = append(ids, rec.Key())
	}
	if len(drop) > 0 {
		kept := m.Tracked[:0]
		for _, rec := range m.Tracked {
			if !drop[rec.Key()] {
				kept = append(kept, rec)
			}
		}
		m.Tracked = kept
	}
	m.AddSkipped(ids...)
}

// AddSkipped adds ids to the skipped set, keeping it sorted and unique.
func (m *SnapshotModel[T]) AddSkipped(ids ...string) {
	if len(ids) == 0 {
		return
	}
	set := m.SkippedSet()
	for _, id := range ids {
		set[id] = true
	}
	m.Skipped = sortedKeys(set)
}

// Unskip removes ids from the skipped set. It reports how many were removed.
func (m *SnapshotModel[T]) Unskip(ids ...string) int {
	set := m.SkippedSet()
	removed := 0
	for _, id := range ids {
		if set[id] {
			delete(set, id)
			removed++
		}
	}
	m.Skipped = sortedKeys(set)
	return removed
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
