// Package store provides SQLite-backed durable storage for shiftsync.
//
// Tables:
//   - snapshots: what has been pushed per (team, week, entity type), with
//     a write lease so only one week sync persists at a time
//   - connections: per-team sync settings and last results
//   - credentials: WFM credentials per team
//   - instances / history: durable workflow state used by internal/engine
//
// # Leases
//
// LoadSnapshotWithLease hands out an opaque token valid for a duration.
// SaveSnapshotWithLease succeeds only while that token is current, so a
// writer whose lease expired (or was taken over) can never overwrite a
// newer snapshot. The NoLease token skips the check entirely.
//
// # History
//
// History rows are keyed by (instance_id, generation, seq). seq is the
// workflow's logical clock, never a timestamp; continue-as-new bumps the
// generation and drops the previous rows.
//
// # Connection
//
// The store holds a single connection in WAL mode with a 5s busy timeout
// and foreign keys on. Schema changes after the initial tables are kept as
// an ordered migration list tracked through PRAGMA user_version.
package store
