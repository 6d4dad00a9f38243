package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/shiftsync/internal/model"
)

// NoLease is the token returned when leasing is disabled. Saving with it
// behaves like SaveSnapshot.
const NoLease = ""

var (
	// ErrLeaseHeld is returned when another writer holds an unexpired lease.
	ErrLeaseHeld = errors.New("snapshot lease held by another writer")
	// ErrLeaseLost is returned when a save presents an expired or superseded token.
	ErrLeaseLost = errors.New("snapshot lease lost")
)

// SnapshotInfo describes a stored snapshot without its contents.
type SnapshotInfo struct {
	Key          model.SnapshotKey `json:"key"`
	TrackedBytes int               `json:"trackedBytes"`
	SkippedCount int               `json:"skippedCount"`
	LeaseOwner   string            `json:"leaseOwner,omitempty"`
	LeaseUntil   time.Time         `json:"leaseUntil,omitzero"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// LoadSnapshot returns the snapshot for key, or an empty snapshot if none
// has been saved.
func (s *Store) LoadSnapshot(ctx context.Context, key model.SnapshotKey) (model.RawSnapshot, error) {
	if err := key.Validate(); err != nil {
		return model.RawSnapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	var tracked, skipped string
	err := s.db.QueryRowContext(ctx, `
		SELECT tracked, skipped FROM snapshots
		WHERE team_id = ? AND week_start = ? AND entity_type = ?
	`, key.TeamID, key.WeekStart, string(key.EntityType)).Scan(&tracked, &skipped)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RawSnapshot{}, nil
	}
	if err != nil {
		return model.RawSnapshot{}, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return decodeRaw(tracked, skipped)
}

// SaveSnapshot overwrites the snapshot for key. Saving the same content
// twice is harmless. Any lease on the row is left in place.
func (s *Store) SaveSnapshot(ctx context.Context, key model.SnapshotKey, snap model.RawSnapshot) error {
	if err := key.Validate(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	tracked, skipped, err := encodeRaw(snap)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (team_id, week_start, entity_type, tracked, skipped, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(team_id, week_start, entity_type) DO UPDATE SET
			tracked = excluded.tracked,
			skipped = excluded.skipped,
			updated_at = excluded.updated_at
	`, key.TeamID, key.WeekStart, string(key.EntityType), tracked, skipped, s.nowNanos())
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

// LoadSnapshotWithLease loads the snapshot and takes a write lease on it
// for d. owner identifies the writer: a lease held by the same owner is
// taken over (its previous token stops being valid), a lease held by a
// different owner returns ErrLeaseHeld until it expires. d <= 0 disables
// leasing and returns NoLease.
func (s *Store) LoadSnapshotWithLease(ctx context.Context, key model.SnapshotKey, owner string, d time.Duration) (model.RawSnapshot, string, error) {
	if d <= 0 {
		snap, err := s.LoadSnapshot(ctx, key)
		return snap, NoLease, err
	}
	if err := key.Validate(); err != nil {
		return model.RawSnapshot{}, "", fmt.Errorf("lease snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.RawSnapshot{}, "", fmt.Errorf("lease snapshot %s: begin tx: %w", key, err)
	}
	defer tx.Rollback()

	now := s.nowNanos()
	var (
		tracked, skipped   = "[]", "[]"
		leaseOwner, leased string
		leaseUntil         int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT tracked, skipped, lease_owner, lease_token, lease_until FROM snapshots
		WHERE team_id = ? AND week_start = ? AND entity_type = ?
	`, key.TeamID, key.WeekStart, string(key.EntityType)).Scan(&tracked, &skipped, &leaseOwner, &leased, &leaseUntil)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.RawSnapshot{}, "", fmt.Errorf("lease snapshot %s: %w", key, err)
	}
	if leased != "" && leaseUntil > now && leaseOwner != owner {
		return model.RawSnapshot{}, "", fmt.Errorf("lease snapshot %s: %w", key, ErrLeaseHeld)
	}

	token := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (team_id, week_start, entity_type, lease_owner, lease_token, lease_until, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(team_id, week_start, entity_type) DO UPDATE SET
			lease_owner = excluded.lease_owner,
			lease_token = excluded.lease_token,
			lease_until = excluded.lease_until
	`, key.TeamID, key.WeekStart, string(key.EntityType), owner, token, now+d.Nanoseconds(), now)
	if err != nil {
		return model.RawSnapshot{}, "", fmt.Errorf("lease snapshot %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return model.RawSnapshot{}, "", fmt.Errorf("lease snapshot %s: commit: %w", key, err)
	}

	snap, err := decodeRaw(tracked, skipped)
	if err != nil {
		return model.RawSnapshot{}, "", err
	}
	return snap, token, nil
}

// SaveSnapshotWithLease saves the snapshot and releases the lease. It
// returns ErrLeaseLost if token has expired or was superseded, in which
// case nothing is written.
func (s *Store) SaveSnapshotWithLease(ctx context.Context, key model.SnapshotKey, token string, snap model.RawSnapshot) error {
	if token == NoLease {
		return s.SaveSnapshot(ctx, key, snap)
	}
	tracked, skipped, err := encodeRaw(snap)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	now := s.nowNanos()
	res, err := s.db.ExecContext(ctx, `
		UPDATE snapshots SET
			tracked = ?, skipped = ?, updated_at = ?,
			lease_owner = '', lease_token = '', lease_until = 0
		WHERE team_id = ? AND week_start = ? AND entity_type = ?
		  AND lease_token = ? AND lease_until > ?
	`, tracked, skipped, now, key.TeamID, key.WeekStart, string(key.EntityType), token, now)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("save snapshot %s: %w", key, ErrLeaseLost)
	}
	return nil
}

// ReleaseLease drops the lease if token is still current. Releasing a
// lost or NoLease token is not an error.
func (s *Store) ReleaseLease(ctx context.Context, key model.SnapshotKey, token string) error {
	if token == NoLease {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE snapshots SET lease_owner = '', lease_token = '', lease_until = 0
		WHERE team_id = ? AND week_start = ? AND entity_type = ? AND lease_token = ?
	`, key.TeamID, key.WeekStart, string(key.EntityType), token)
	if err != nil {
		return fmt.Errorf("release lease %s: %w", key, err)
	}
	return nil
}

// DeleteSnapshot removes the snapshot for key. Deleting a missing snapshot
// is not an error.
func (s *Store) DeleteSnapshot(ctx context.Context, key model.SnapshotKey) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE team_id = ? AND week_start = ? AND entity_type = ?
	`, key.TeamID, key.WeekStart, string(key.EntityType))
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	return nil
}

// ListTeamSnapshots describes every snapshot of the team ordered by week
// then entity type.
func (s *Store) ListTeamSnapshots(ctx context.Context, teamID string) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT week_start, entity_type, length(tracked), skipped, lease_owner, lease_until, updated_at
		FROM snapshots WHERE team_id = ?
		ORDER BY week_start ASC, entity_type ASC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots %s: %w", teamID, err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var (
			info                  SnapshotInfo
			entity, skipped       string
			leaseUntil, updatedAt int64
		)
		info.Key.TeamID = teamID
		if err := rows.Scan(&info.Key.WeekStart, &entity, &info.TrackedBytes, &skipped, &info.LeaseOwner, &leaseUntil, &updatedAt); err != nil {
			return nil, fmt.Errorf("list snapshots %s: %w", teamID, err)
		}
		info.Key.EntityType = model.EntityType(entity)
		var ids []string
		if err := json.Unmarshal([]byte(skipped), &ids); err != nil {
			return nil, fmt.Errorf("list snapshots %s: decode skipped: %w", teamID, err)
		}
		info.SkippedCount = len(ids)
		if leaseUntil > s.nowNanos() {
			info.LeaseUntil = fromNanos(leaseUntil)
		} else {
			info.LeaseOwner = ""
		}
		info.UpdatedAt = fromNanos(updatedAt)
		out = append(out, info)
	}
	return out, rows.Err()
}

func encodeRaw(snap model.RawSnapshot) (string, string, error) {
	tracked := "[]"
	if len(snap.Tracked) > 0 {
		tracked = string(snap.Tracked)
	}
	skipped := snap.Skipped
	if skipped == nil {
		skipped = []string{}
	}
	data, err := json.Marshal(skipped)
	if err != nil {
		return "", "", fmt.Errorf("encode skipped: %w", err)
	}
	return tracked, string(data), nil
}

func decodeRaw(tracked, skipped string) (model.RawSnapshot, error) {
	var ids []string
	if err := json.Unmarshal([]byte(skipped), &ids); err != nil {
		return model.RawSnapshot{}, fmt.Errorf("decode skipped: %w", err)
	}
	return model.RawSnapshot{Tracked: json.RawMessage(tracked), Skipped: ids}, nil
}
