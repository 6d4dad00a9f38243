package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/shiftsync/internal/model"
)

// GetCredentials returns the team's WFM credentials or ErrNotFound.
func (s *Store) GetCredentials(ctx context.Context, teamID string) (model.Credentials, error) {
	var c model.Credentials
	err := s.db.QueryRowContext(ctx, `
		SELECT base_url, username, password FROM credentials WHERE team_id = ?
	`, teamID).Scan(&c.BaseURL, &c.Username, &c.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credentials{}, fmt.Errorf("get credentials %s: %w", teamID, ErrNotFound)
	}
	if err != nil {
		return model.Credentials{}, fmt.Errorf("get credentials %s: %w", teamID, err)
	}
	return c, nil
}

// SaveCredentials creates or replaces the team's WFM credentials.
func (s *Store) SaveCredentials(ctx context.Context, teamID string, c model.Credentials) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (team_id, base_url, username, password, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(team_id) DO UPDATE SET
			base_url = excluded.base_url,
			username = excluded.username,
			password = excluded.password,
			updated_at = excluded.updated_at
	`, teamID, c.BaseURL, c.Username, c.Password, s.nowNanos())
	if err != nil {
		return fmt.Errorf("save credentials %s: %w", teamID, err)
	}
	return nil
}
