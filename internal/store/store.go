package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInstanceExists is returned by CreateInstance for a taken id.
	ErrInstanceExists = errors.New("instance already exists")
)

// connPragmas are set on the single connection right after it opens.
var connPragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// migrations run in order on databases whose user_version is below their
// index plus one. Append only.
var migrations = []string{
	// pending history rows of one generation, scanned on every replay
	`CREATE INDEX IF NOT EXISTS idx_history_completed
		ON history(instance_id, generation, completed)`,
	// per-team snapshot listing and clearing
	`CREATE INDEX IF NOT EXISTS idx_snapshots_team
		ON snapshots(team_id, entity_type)`,
}

var schemaVersion = len(migrations)

// Store keeps sync snapshots, team connections, credentials and the
// durable workflow tables in one SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock used for lease expiry and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens the database at path, creating it when missing, and brings
// its schema up to date. Opening an up to date database again is a no-op.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	// one writer; keep every statement on the same connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func prepare(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return err
	}
	for _, p := range connPragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return migrate(db)
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	if version == schemaVersion {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// pragma reads the current value of a pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	err := s.db.QueryRow("PRAGMA " + name).Scan(&value)
	return value, err
}

func (s *Store) nowNanos() int64 {
	return s.now().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
