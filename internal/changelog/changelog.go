// Package changelog implements the durable, append-only local journal of
// row-level mutations pending push to the network store.
package changelog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ambre-sync/reconcile-core/internal/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS ChangeLog (
	ChangeID      INTEGER PRIMARY KEY AUTOINCREMENT,
	TableName     TEXT NOT NULL,
	RecordID      TEXT NOT NULL,
	Operation     TEXT NOT NULL,
	Timestamp     TEXT NOT NULL,
	Synchronized  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_changelog_sync ON ChangeLog(Synchronized, ChangeID);
`

// Entry is a single row of the ChangeLog table. Once Synchronized is true
// the row is immutable — only MarkChangesAsSynced ever flips it, and only after the
// corresponding network transaction commits.
type Entry struct {
	ChangeID     int64
	TableName    string
	RecordID     string
	Operation    string
	Timestamp    time.Time
	Synchronized bool
}

// Store wraps a per-country local ChangeLog_<CC>.accdb file.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens (creating if absent) the ChangeLog store at path, ensuring
// its schema exists.
func Open(path string) (*Store, error) {
	conn, err := sqlitex.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("changelog: create schema: %w", err)
	}
	return &Store{conn: conn, path: path}, nil
}

// Close closes the underlying connection, checkpointing the WAL first.
func (s *Store) Close() error { return sqlitex.Close(s.conn) }

// EncodeUpdate renders the partial-update operation encoding
// "UPDATE(col1,col2,…)" for the given changed-column set, in the exact
// column order supplied.
func EncodeUpdate(columns []string) string {
	return fmt.Sprintf("UPDATE(%s)", strings.Join(columns, ","))
}

// DecodeUpdateColumns extracts the column list from an "UPDATE(...)"
// operation string. Returns nil, false for any other operation shape.
func DecodeUpdateColumns(operation string) ([]string, bool) {
	if !strings.HasPrefix(operation, "UPDATE(") || !strings.HasSuffix(operation, ")") {
		return nil, false
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(operation, "UPDATE("), ")")
	if inner == "" {
		return []string{}, true
	}
	return strings.Split(inner, ","), true
}

// NewEntry builds an unsynchronized Entry stamped with the supplied time,
// the single nowUtc a batch applier call uses for every row it touches.
func NewEntry(table, recordID, operation string, now time.Time) Entry {
	return Entry{TableName: table, RecordID: recordID, Operation: operation, Timestamp: now.UTC(), Synchronized: false}
}

// RecordChanges atomically appends a batch of entries within tx, the same
// transaction as the local row mutation the entries describe. It never
// opens its own transaction so the caller controls atomicity with the
// mutation.
func RecordChanges(ctx context.Context, tx *sql.Tx, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ChangeLog (TableName, RecordID, Operation, Timestamp, Synchronized) VALUES (?, ?, ?, ?, 0)`)
	if err != nil {
		return fmt.Errorf("changelog: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.TableName, e.RecordID, e.Operation, e.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("changelog: insert entry: %w", err)
		}
	}
	return nil
}

// GetUnsyncedChanges returns all unsynchronized entries ordered by
// ChangeID ascending, bounded by a 15s read timeout per the store's
// service-level contract.
func (s *Store) GetUnsyncedChanges(ctx context.Context) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, `SELECT ChangeID, TableName, RecordID, Operation, Timestamp, Synchronized FROM ChangeLog WHERE Synchronized = 0 ORDER BY ChangeID ASC`)
	if err != nil {
		return nil, fmt.Errorf("changelog: query unsynced: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		var synced int
		if err := rows.Scan(&e.ChangeID, &e.TableName, &e.RecordID, &e.Operation, &ts, &synced); err != nil {
			return nil, fmt.Errorf("changelog: scan entry: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		e.Synchronized = synced != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountUnsynced returns the number of pending (unsynchronized) entries,
// used by ScheduleSyncIfNeeded(onlyIfPending=true).
func (s *Store) CountUnsynced(ctx context.Context) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM ChangeLog WHERE Synchronized = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("changelog: count unsynced: %w", err)
	}
	return n, nil
}

// MarkChangesAsSynced flips Synchronized=1 for the given ids in a single
// statement.
func (s *Store) MarkChangesAsSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`UPDATE ChangeLog SET Synchronized = 1 WHERE ChangeID IN (%s)`, strings.Join(placeholders, ","))
	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("changelog: mark synced: %w", err)
	}
	return nil
}

// BeginSession opens a transactional batch for the caller: changelog
// appends and the local row mutation they describe are committed together,
// or both rolled back. The returned *sql.Tx is on the ChangeLog store's own
// connection; callers that need the change log and the data table in the
// same physical file open both through one *sql.DB and call
// RecordChanges(ctx, tx, ...) directly instead.
func (s *Store) BeginSession(ctx context.Context) (*sql.Tx, error) {
	return s.conn.BeginTx(ctx, nil)
}
