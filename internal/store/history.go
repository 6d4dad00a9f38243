package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// EventKind is the kind of step a history event records.
type EventKind string

const (
	KindActivity    EventKind = "activity"
	KindSubWorkflow EventKind = "subworkflow"
	KindTimer       EventKind = "timer"
	KindNow         EventKind = "now"
)

// HistoryEvent is one step of one instance generation.
type HistoryEvent struct {
	InstanceID string          `json:"instanceId"`
	Generation int64           `json:"generation"`
	Seq        int64           `json:"seq"`
	Kind       EventKind       `json:"kind"`
	Name       string          `json:"name"`
	Target     string          `json:"target,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Completed  bool            `json:"completed"`
	FireAt     time.Time       `json:"fireAt,omitzero"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// AppendEvent records a step. Appending an event whose (instance,
// generation, seq) already exists is a no-op, so a replayed step never
// overwrites the original.
func (s *Store) AppendEvent(ctx context.Context, ev HistoryEvent) error {
	var fireAt int64
	if !ev.FireAt.IsZero() {
		fireAt = ev.FireAt.UnixNano()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history
		(instance_id, generation, seq, kind, name, target, input, result, error, completed, fire_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance_id, generation, seq) DO NOTHING
	`,
		ev.InstanceID,
		ev.Generation,
		ev.Seq,
		string(ev.Kind),
		ev.Name,
		ev.Target,
		rawOrNull(ev.Input),
		rawOrNull(ev.Result),
		ev.Error,
		ev.Completed,
		fireAt,
		s.nowNanos(),
	)
	if err != nil {
		return fmt.Errorf("append event %s/%d/%d: %w", ev.InstanceID, ev.Generation, ev.Seq, err)
	}
	return nil
}

// CompleteEvent stores the outcome of a pending step. Completing an
// already completed step is a no-op.
func (s *Store) CompleteEvent(ctx context.Context, instanceID string, gen, seq int64, result json.RawMessage, errText string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE history SET result = ?, error = ?, completed = 1
		WHERE instance_id = ? AND generation = ? AND seq = ? AND completed = 0
	`, rawOrNull(result), errText, instanceID, gen, seq)
	if err != nil {
		return fmt.Errorf("complete event %s/%d/%d: %w", instanceID, gen, seq, err)
	}
	return nil
}

// LoadHistory returns the events of one generation ordered by seq.
func (s *Store) LoadHistory(ctx context.Context, instanceID string, gen int64) ([]HistoryEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, name, target, input, result, error, completed, fire_at, created_at
		FROM history
		WHERE instance_id = ? AND generation = ?
		ORDER BY seq ASC
	`, instanceID, gen)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", instanceID, err)
	}
	defer rows.Close()

	var events []HistoryEvent
	for rows.Next() {
		ev := HistoryEvent{InstanceID: instanceID, Generation: gen}
		var (
			kind, input, result string
			fireAt, createdAt   int64
		)
		if err := rows.Scan(&ev.Seq, &kind, &ev.Name, &ev.Target, &input, &result, &ev.Error, &ev.Completed, &fireAt, &createdAt); err != nil {
			return nil, fmt.Errorf("load history %s: %w", instanceID, err)
		}
		ev.Kind = EventKind(kind)
		ev.Input = json.RawMessage(input)
		ev.Result = json.RawMessage(result)
		ev.FireAt = fromNanos(fireAt)
		ev.CreatedAt = fromNanos(createdAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}
