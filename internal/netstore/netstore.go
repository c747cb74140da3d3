// Package netstore opens the shared Control/network store: the file that
// carries SyncLocks (owned by internal/globallock), the per-country
// _SyncConfig watermark table, and the audit-only SystemVersion and
// ImportRuns tables.
package netstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/ambre-sync/reconcile-core/internal/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS _SyncConfig (
	ConfigKey   TEXT PRIMARY KEY,
	ConfigValue TEXT
);
CREATE TABLE IF NOT EXISTS SystemVersion (
	Id          INTEGER PRIMARY KEY AUTOINCREMENT,
	Version     TEXT NOT NULL,
	AppliedAt   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ImportRuns (
	Id          INTEGER PRIMARY KEY AUTOINCREMENT,
	CountryID   TEXT NOT NULL,
	StartedAt   TEXT NOT NULL,
	FinishedAt  TEXT,
	RowsAdded   INTEGER NOT NULL DEFAULT 0,
	RowsUpdated INTEGER NOT NULL DEFAULT 0,
	Error       TEXT
);
`

// Store wraps one country's Control store connection (DB_CC_lock.accdb).
type Store struct {
	conn *sql.DB
	path string
}

// Open opens (creating if absent) the Control store at path and ensures its
// non-lock schema exists. SyncLocks itself is not created here:
// globallock.New(store.Conn()) creates it when the lock manager is
// constructed.
func Open(path string) (*Store, error) {
	conn, err := sqlitex.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("netstore: create schema: %w", err)
	}
	return &Store{conn: conn, path: path}, nil
}

// Conn exposes the underlying connection for collaborators (globallock,
// push/pull) that need to issue their own statements against the same file.
func (s *Store) Conn() *sql.DB { return s.conn }

// Close closes the underlying connection, checkpointing the WAL first.
func (s *Store) Close() error { return sqlitex.Close(s.conn) }

func configKey(countryID, suffix string) string {
	return countryID + ":" + suffix
}

// Watermark is the per-country high-water mark persisted both locally and
// in the Control store: the pull engine's last successful sync point.
type Watermark struct {
	LastSyncTimestamp time.Time
	LastSyncVersion   int64
}

// GetWatermark reads the persisted watermark for countryID. A missing key
// yields the zero Watermark (meaning: full scan on first pull).
func (s *Store) GetWatermark(ctx context.Context, countryID string) (Watermark, error) {
	var wm Watermark

	var tsStr string
	err := s.conn.QueryRowContext(ctx, `SELECT ConfigValue FROM _SyncConfig WHERE ConfigKey = ?`, configKey(countryID, "LastSyncTimestamp")).Scan(&tsStr)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return wm, fmt.Errorf("netstore: read LastSyncTimestamp: %w", err)
	default:
		if t, perr := time.Parse(time.RFC3339Nano, tsStr); perr == nil {
			wm.LastSyncTimestamp = t
		}
	}

	var verStr string
	err = s.conn.QueryRowContext(ctx, `SELECT ConfigValue FROM _SyncConfig WHERE ConfigKey = ?`, configKey(countryID, "LastSyncVersion")).Scan(&verStr)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return wm, fmt.Errorf("netstore: read LastSyncVersion: %w", err)
	default:
		if v, perr := strconv.ParseInt(verStr, 10, 64); perr == nil {
			wm.LastSyncVersion = v
		}
	}

	return wm, nil
}

// SetWatermark persists wm for countryID, upserting both keys.
func (s *Store) SetWatermark(ctx context.Context, countryID string, wm Watermark) error {
	tsKey := configKey(countryID, "LastSyncTimestamp")
	verKey := configKey(countryID, "LastSyncVersion")

	if _, err := s.conn.ExecContext(ctx, `INSERT INTO _SyncConfig (ConfigKey, ConfigValue) VALUES (?, ?)
		ON CONFLICT(ConfigKey) DO UPDATE SET ConfigValue = excluded.ConfigValue`,
		tsKey, wm.LastSyncTimestamp.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("netstore: upsert LastSyncTimestamp: %w", err)
	}
	if _, err := s.conn.ExecContext(ctx, `INSERT INTO _SyncConfig (ConfigKey, ConfigValue) VALUES (?, ?)
		ON CONFLICT(ConfigKey) DO UPDATE SET ConfigValue = excluded.ConfigValue`,
		verKey, strconv.FormatInt(wm.LastSyncVersion, 10)); err != nil {
		return fmt.Errorf("netstore: upsert LastSyncVersion: %w", err)
	}
	return nil
}

// RecordImportRun appends an audit row to ImportRuns. Not used by core sync
// logic beyond writes, per the spec's persisted-state contract.
func (s *Store) RecordImportRun(ctx context.Context, countryID string, startedAt, finishedAt time.Time, rowsAdded, rowsUpdated int, importErr error) error {
	var errText sql.NullString
	if importErr != nil {
		errText = sql.NullString{String: importErr.Error(), Valid: true}
	}
	_, err := s.conn.ExecContext(ctx, `INSERT INTO ImportRuns (CountryID, StartedAt, FinishedAt, RowsAdded, RowsUpdated, Error) VALUES (?, ?, ?, ?, ?, ?)`,
		countryID, startedAt.UTC().Format(time.RFC3339Nano), finishedAt.UTC().Format(time.RFC3339Nano), rowsAdded, rowsUpdated, errText)
	if err != nil {
		return fmt.Errorf("netstore: record import run: %w", err)
	}
	return nil
}

// RecordSystemVersion stamps the schema/app version currently applied, for
// diagnostics parity with the source system's SystemVersion table.
func (s *Store) RecordSystemVersion(ctx context.Context, version string) error {
	_, err := s.conn.ExecContext(ctx, `INSERT INTO SystemVersion (Version, AppliedAt) VALUES (?, ?)`, version, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("netstore: record system version: %w", err)
	}
	return nil
}

// EnsureReconciliationSchema recreates the network RECONCILIATION file from
// a schema template if it does not yet exist, per the Push Engine's
// "recreate from schema template before pushing" step. The caller supplies
// the DDL (sourced from the referential template directory); netstore only
// guards the existence check and execution.
func EnsureReconciliationSchema(ctx context.Context, conn *sql.DB, ddl string) error {
	var count int
	err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'T_Reconciliation'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("netstore: probe T_Reconciliation: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("netstore: recreate T_Reconciliation from template: %w", err)
	}
	return nil
}
