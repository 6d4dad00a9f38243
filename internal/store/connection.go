package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/shiftsync/internal/model"
)

// SaveConnection creates or replaces the team's connection. CreatedAt is
// kept from the first save; UpdatedAt is set to the store clock.
func (s *Store) SaveConnection(ctx context.Context, c model.ConnectionModel) error {
	if c.TeamID == "" {
		return fmt.Errorf("save connection: team id is required")
	}
	now := s.now().UTC()
	c.UpdatedAt = now
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("save connection %s: %w", c.TeamID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO connections (team_id, data, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(team_id) DO UPDATE SET
			data = excluded.data,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`, c.TeamID, string(data), c.Enabled, c.CreatedAt.UnixNano(), now.UnixNano())
	if err != nil {
		return fmt.Errorf("save connection %s: %w", c.TeamID, err)
	}
	return nil
}

// GetConnection returns the team's connection or ErrNotFound.
func (s *Store) GetConnection(ctx context.Context, teamID string) (model.ConnectionModel, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM connections WHERE team_id = ?`, teamID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ConnectionModel{}, fmt.Errorf("get connection %s: %w", teamID, ErrNotFound)
	}
	if err != nil {
		return model.ConnectionModel{}, fmt.Errorf("get connection %s: %w", teamID, err)
	}
	var c model.ConnectionModel
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return model.ConnectionModel{}, fmt.Errorf("get connection %s: decode: %w", teamID, err)
	}
	return c, nil
}

// ListConnections returns every connection ordered by team id.
func (s *Store) ListConnections(ctx context.Context) ([]model.ConnectionModel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM connections ORDER BY team_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var out []model.ConnectionModel
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("list connections: %w", err)
		}
		var c model.ConnectionModel
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("list connections: decode: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConnection removes the team's connection and credentials.
func (s *Store) DeleteConnection(ctx context.Context, teamID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete connection %s: begin tx: %w", teamID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM connections WHERE team_id = ?`, teamID); err != nil {
		return fmt.Errorf("delete connection %s: %w", teamID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE team_id = ?`, teamID); err != nil {
		return fmt.Errorf("delete connection %s: credentials: %w", teamID, err)
	}
	return tx.Commit()
}
