package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a workflow instance.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTerminated Status = "terminated"
)

// Terminal reports whether the instance will not run again on its own.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTerminated
}

// Instance is one durable workflow execution.
type Instance struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	ParentID    string          `json:"parentId,omitempty"`
	ParentGen   int64           `json:"parentGen,omitempty"`
	ParentSeq   int64           `json:"parentSeq,omitempty"`
	Status      Status          `json:"status"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	Generation  int64           `json:"generation"`
	WorkerID    string          `json:"workerId,omitempty"`
	LockedUntil time.Time       `json:"lockedUntil,omitzero"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// InstanceFilter narrows ListInstances. Zero fields match everything.
type InstanceFilter struct {
	Prefix string
	Name   string
	Status Status
	Limit  int
}

const instanceColumns = `id, name, parent_id, parent_gen, parent_seq, status, input, output,
	error, generation, worker_id, locked_until, created_at, updated_at`

// CreateInstance inserts a new pending root instance. It returns
// ErrInstanceExists if the id is taken, whatever the existing status.
func (s *Store) CreateInstance(ctx context.Context, id, name string, input json.RawMessage) error {
	now := s.nowNanos()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO instances (id, name, status, input, generation, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, name, StatusPending, rawOrNull(input), now, now)
	if err != nil {
		return fmt.Errorf("create instance %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("create instance %s: %w", id, ErrInstanceExists)
	}
	return nil
}

// StartSingleton creates the instance, or restarts it under a new
// generation if its previous run is terminal. It is a single
// compare-and-swap upsert: if the instance is pending or running nothing
// changes and started is false.
func (s *Store) StartSingleton(ctx context.Context, id, name string, input json.RawMessage) (started bool, err error) {
	now := s.nowNanos()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO instances (id, name, status, input, generation, created_at, updated_at)
		VALUES (?, ?, 'pending', ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = 'pending',
			input = excluded.input,
			output = 'null',
			error = '',
			generation = instances.generation + 1,
			parent_id = '', parent_gen = 0, parent_seq = 0,
			worker_id = '', locked_until = 0,
			updated_at = excluded.updated_at
		WHERE instances.status IN ('completed', 'failed', 'terminated')
	`, id, name, rawOrNull(input), now, now)
	if err != nil {
		return false, fmt.Errorf("start singleton %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	if err := s.pruneHistory(ctx, id); err != nil {
		return true, err
	}
	return true, nil
}

// PrepareChild makes the child instance ready to run for the given parent
// history event. If the child already belongs to that event it is returned
// unchanged (reused is true) so a replaying parent picks up its progress or
// result. Otherwise the child is created, or reset under a new generation,
// in status running.
func (s *Store) PrepareChild(ctx context.Context, child Instance) (inst Instance, reused bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Instance{}, false, fmt.Errorf("prepare child %s: begin tx: %w", child.ID, err)
	}
	defer tx.Rollback()

	existing, err := scanInstance(tx.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM instances WHERE id = ?`, child.ID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		child.Generation = 1
	case err != nil:
		return Instance{}, false, fmt.Errorf("prepare child %s: %w", child.ID, err)
	case existing.ParentID == child.ParentID && existing.ParentGen == child.ParentGen &&
		existing.ParentSeq == child.ParentSeq && existing.Name == child.Name:
		return existing, true, nil
	default:
		child.Generation = existing.Generation + 1
	}

	now := s.nowNanos()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO instances (id, name, parent_id, parent_gen, parent_seq, status, input, generation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'running', ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			parent_id = excluded.parent_id,
			parent_gen = excluded.parent_gen,
			parent_seq = excluded.parent_seq,
			status = 'running',
			input = excluded.input,
			output = 'null',
			error = '',
			generation = excluded.generation,
			worker_id = '', locked_until = 0,
			updated_at = excluded.updated_at
	`, child.ID, child.Name, child.ParentID, child.ParentGen, child.ParentSeq, rawOrNull(child.Input), child.Generation, now, now)
	if err != nil {
		return Instance{}, false, fmt.Errorf("prepare child %s: %w", child.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM history WHERE instance_id = ? AND generation < ?`, child.ID, child.Generation); err != nil {
		return Instance{}, false, fmt.Errorf("prepare child %s: prune history: %w", child.ID, err)
	}
	inst, err = scanInstance(tx.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM instances WHERE id = ?`, child.ID))
	if err != nil {
		return Instance{}, false, fmt.Errorf("prepare child %s: %w", child.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return Instance{}, false, fmt.Errorf("prepare child %s: commit: %w", child.ID, err)
	}
	return inst, false, nil
}

// GetInstance returns the instance or ErrNotFound.
func (s *Store) GetInstance(ctx context.Context, id string) (Instance, error) {
	inst, err := scanInstance(s.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM instances WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Instance{}, fmt.Errorf("get instance %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Instance{}, fmt.Errorf("get instance %s: %w", id, err)
	}
	return inst, nil
}

// ListInstances returns instances ordered by id.
func (s *Store) ListInstances(ctx context.Context, f InstanceFilter) ([]Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE 1 = 1`
	var args []any
	if f.Prefix != "" {
		query += ` AND substr(id, 1, ?) = ?`
		args = append(args, len(f.Prefix), f.Prefix)
	}
	if f.Name != "" {
		query += ` AND name = ?`
		args = append(args, f.Name)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY id ASC COLLATE BINARY`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return s.queryInstances(ctx, "list instances", query, args...)
}

// ClaimInstances hands up to limit root instances to workerID: pending
// ones, and running ones whose lock has expired because their worker
// stopped heartbeating. Claimed instances are running and locked for
// lockFor.
func (s *Store) ClaimInstances(ctx context.Context, workerID string, lockFor time.Duration, limit int) ([]Instance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim instances: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.nowNanos()
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM instances
		WHERE parent_id = ''
		  AND (status = 'pending' OR (status = 'running' AND locked_until < ?))
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim instances: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("claim instances: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim instances: %w", err)
	}

	claimed := make([]Instance, 0, len(ids))
	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			UPDATE instances SET status = 'running', worker_id = ?, locked_until = ?, updated_at = ?
			WHERE id = ?
		`, workerID, now+lockFor.Nanoseconds(), now, id)
		if err != nil {
			return nil, fmt.Errorf("claim instance %s: %w", id, err)
		}
		inst, err := scanInstance(tx.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM instances WHERE id = ?`, id))
		if err != nil {
			return nil, fmt.Errorf("claim instance %s: %w", id, err)
		}
		claimed = append(claimed, inst)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim instances: commit: %w", err)
	}
	return claimed, nil
}

// ExtendLocks renews, for lockFor, the locks workerID holds on the given
// running instances.
func (s *Store) ExtendLocks(ctx context.Context, workerID string, ids []string, lockFor time.Duration) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{s.nowNanos() + lockFor.Nanoseconds(), workerID}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE instances SET locked_until = ?
		WHERE status = 'running' AND worker_id = ? AND id IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("extend locks: %w", err)
	}
	return nil
}

// ReleaseLocks expires every lock held by workerID so another worker can
// resume its running instances immediately.
func (s *Store) ReleaseLocks(ctx context.Context, workerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE instances SET locked_until = 0 WHERE worker_id = ? AND status = 'running'
	`, workerID)
	if err != nil {
		return fmt.Errorf("release locks: %w", err)
	}
	return nil
}

// FinishInstance records the outcome of generation gen. It does nothing
// (and reports false) if the instance has moved on, e.g. was terminated.
func (s *Store) FinishInstance(ctx context.Context, id string, gen int64, status Status, output json.RawMessage, errText string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE instances SET status = ?, output = ?, error = ?, worker_id = '', locked_until = 0, updated_at = ?
		WHERE id = ? AND generation = ? AND status = 'running'
	`, status, rawOrNull(output), errText, s.nowNanos(), id, gen)
	if err != nil {
		return false, fmt.Errorf("finish instance %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ContinueAsNew moves a running instance from generation gen to gen+1
// with a new input and drops the old history.
func (s *Store) ContinueAsNew(ctx context.Context, id string, gen int64, input json.RawMessage) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("continue as new %s: begin tx: %w", id, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE instances SET generation = generation + 1, input = ?, updated_at = ?
		WHERE id = ? AND generation = ? AND status = 'running'
	`, rawOrNull(input), s.nowNanos(), id, gen)
	if err != nil {
		return false, fmt.Errorf("continue as new %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM history WHERE instance_id = ? AND generation <= ?`, id, gen); err != nil {
		return false, fmt.Errorf("continue as new %s: prune history: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("continue as new %s: commit: %w", id, err)
	}
	return true, nil
}

// TerminateInstance marks the instance and all its non-terminal
// descendants terminated. It returns the ids that changed state.
func (s *Store) TerminateInstance(ctx context.Context, id, reason string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("terminate %s: begin tx: %w", id, err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM instances WHERE id = ?`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("terminate %s: %w", id, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("terminate %s: %w", id, ErrNotFound)
	}

	rows, err := tx.QueryContext(ctx, `
		WITH RECURSIVE tree(id) AS (
			SELECT id FROM instances WHERE id = ?
			UNION
			SELECT i.id FROM instances i JOIN tree t ON i.parent_id = t.id
		)
		SELECT i.id FROM instances i JOIN tree t ON i.id = t.id
		WHERE i.status IN ('pending', 'running')
		ORDER BY i.id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("terminate %s: %w", id, err)
	}
	var ids []string
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			rows.Close()
			return nil, fmt.Errorf("terminate %s: %w", id, err)
		}
		ids = append(ids, child)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("terminate %s: %w", id, err)
	}

	now := s.nowNanos()
	for _, target := range ids {
		_, err := tx.ExecContext(ctx, `
			UPDATE instances SET status = 'terminated', error = ?, worker_id = '', locked_until = 0, updated_at = ?
			WHERE id = ?
		`, reason, now, target)
		if err != nil {
			return nil, fmt.Errorf("terminate %s: %w", target, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("terminate %s: commit: %w", id, err)
	}
	return ids, nil
}

// TerminatedAmong returns the subset of ids whose status is terminated.
func (s *Store) TerminatedAmong(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM instances WHERE status = 'terminated' AND id IN (`+placeholders(len(ids))+`)
		ORDER BY id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("terminated among: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("terminated among: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DeleteInstance removes a terminal instance, its descendants and their
// history.
func (s *Store) DeleteInstance(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		WITH RECURSIVE tree(id) AS (
			SELECT id FROM instances WHERE id = ?
			UNION
			SELECT i.id FROM instances i JOIN tree t ON i.parent_id = t.id
		)
		DELETE FROM instances WHERE id IN (SELECT id FROM tree)
		  AND status IN ('completed', 'failed', 'terminated')
	`, id)
	if err != nil {
		return fmt.Errorf("delete instance %s: %w", id, err)
	}
	return nil
}

func (s *Store) pruneHistory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM history WHERE instance_id = ?
		  AND generation < (SELECT generation FROM instances WHERE id = ?)
	`, id, id)
	if err != nil {
		return fmt.Errorf("prune history %s: %w", id, err)
	}
	return nil
}

func (s *Store) queryInstances(ctx context.Context, op, query string, args ...any) ([]Instance, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	var out []Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (Instance, error) {
	var (
		inst                              Instance
		status, input, output             string
		lockedUntil, createdAt, updatedAt int64
	)
	err := row.Scan(&inst.ID, &inst.Name, &inst.ParentID, &inst.ParentGen, &inst.ParentSeq, &status,
		&input, &output, &inst.Error, &inst.Generation, &inst.WorkerID, &lockedUntil, &createdAt, &updatedAt)
	if err != nil {
		return Instance{}, err
	}
	inst.Status = Status(status)
	inst.Input = json.RawMessage(input)
	inst.Output = json.RawMessage(output)
	inst.LockedUntil = fromNanos(lockedUntil)
	inst.CreatedAt = fromNanos(createdAt)
	inst.UpdatedAt = fromNanos(updatedAt)
	return inst, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func rawOrNull(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}
