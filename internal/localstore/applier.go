// Package localstore implements the Batch Applier: single-transaction
// insert/update/soft-delete of entities against the local AMBRE or
// RECONCILIATION file, with CRC32-based idempotent update skip and
// change-log emission.
package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ambre-sync/reconcile-core/internal/changelog"
	"github.com/ambre-sync/reconcile-core/internal/errs"
	"github.com/ambre-sync/reconcile-core/internal/model"
)

const (
	crcPrefetchChunkSize = 200
	maxLockRetries       = 4
	lockRetryBaseDelay   = 150 * time.Millisecond
)

// Result summarizes the outcome of one Apply call.
type Result struct {
	Inserted         int
	Updated          int
	Skipped          int // CRC-matched, idempotent no-op
	Archived         int
	ChangeLogEntries int
}

// Applier applies batches of entity mutations against one local database
// file (the AMBRE DB for T_Data_Ambre, the RECONCILIATION DB otherwise).
type Applier struct {
	conn          *sql.DB
	changelogPath string
	schemas       map[string]*TableSchema
}

// New constructs an Applier over an already-open local database
// connection. changelogPath, when non-empty, is ATTACHed for the duration
// of each Apply call so the data mutation and its change-log entries
// commit in the same transaction; pass "" to suppress change-log emission
// entirely regardless of the per-call option (import's AMBRE seeding pass
// does this).
func New(conn *sql.DB, changelogPath string) *Applier {
	return &Applier{conn: conn, changelogPath: changelogPath, schemas: make(map[string]*TableSchema)}
}

func (a *Applier) schemaFor(ctx context.Context, table string) (*TableSchema, error) {
	if s, ok := a.schemas[table]; ok {
		return s, nil
	}
	s, err := loadSchema(ctx, a.conn, table)
	if err != nil {
		return nil, err
	}
	a.schemas[table] = s
	return s, nil
}

// Apply applies toAdd/toUpdate/toArchive against table in one local
// transaction. suppressChangeLog is set for AMBRE bulk imports, per the
// spec's invariant that AMBRE import never emits change-log entries.
func (a *Applier) Apply(ctx context.Context, table string, toAdd, toUpdate, toArchive []model.Entity, suppressChangeLog bool) (Result, error) {
	schema, err := a.schemaFor(ctx, table)
	if err != nil {
		return Result{}, err
	}

	var attempt int
	for {
		attempt++
		res, err := a.applyOnce(ctx, schema, toAdd, toUpdate, toArchive, suppressChangeLog)
		if err == nil {
			return res, nil
		}
		if !errs.IsTransient(err) || attempt > maxLockRetries {
			return Result{}, err
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(lockRetryBaseDelay * time.Duration(attempt)):
		}
	}
}

func (a *Applier) applyOnce(ctx context.Context, schema *TableSchema, toAdd, toUpdate, toArchive []model.Entity, suppressChangeLog bool) (Result, error) {
	now := time.Now().UTC()
	emitChangeLog := !suppressChangeLog && a.changelogPath != ""

	tx, err := a.conn.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("localstore: begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if emitChangeLog {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ATTACH DATABASE %s AS cl`, sqlQuote(a.changelogPath))); err != nil {
			return Result{}, fmt.Errorf("localstore: attach changelog: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS cl.ChangeLog (
			ChangeID INTEGER PRIMARY KEY AUTOINCREMENT,
			TableName TEXT NOT NULL, RecordID TEXT NOT NULL, Operation TEXT NOT NULL,
			Timestamp TEXT NOT NULL, Synchronized INTEGER NOT NULL DEFAULT 0)`); err != nil {
			return Result{}, fmt.Errorf("localstore: ensure changelog schema: %w", err)
		}
		defer tx.ExecContext(ctx, `DETACH DATABASE cl`)
	}

	var result Result

	storedCRC, err := a.prefetchCRC(ctx, tx, schema, toUpdate)
	if err != nil {
		return Result{}, err
	}

	for _, e := range toAdd {
		if err := a.insertRow(ctx, tx, schema, e, now, emitChangeLog); err != nil {
			return Result{}, err
		}
		result.Inserted++
		if emitChangeLog {
			result.ChangeLogEntries++
		}
	}

	for _, e := range toUpdate {
		skipped, err := a.updateRow(ctx, tx, schema, e, now, storedCRC, emitChangeLog)
		if err != nil {
			return Result{}, err
		}
		if skipped {
			result.Skipped++
			continue
		}
		result.Updated++
		if emitChangeLog {
			result.ChangeLogEntries++
		}
	}

	for _, e := range toArchive {
		if err := a.archiveRow(ctx, tx, schema, e, now, emitChangeLog); err != nil {
			return Result{}, err
		}
		result.Archived++
		if emitChangeLog {
			result.ChangeLogEntries++
		}
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("localstore: commit: %w", err)
	}
	committed = true
	return result, nil
}

func (a *Applier) prefetchCRC(ctx context.Context, tx *sql.Tx, schema *TableSchema, toUpdate []model.Entity) (map[string]uint32, error) {
	out := make(map[string]uint32)
	if !schema.HasCRC || len(toUpdate) == 0 {
		return out, nil
	}
	keys := make([]string, 0, len(toUpdate))
	for _, e := range toUpdate {
		keys = append(keys, e.PK())
	}
	for start := 0; start < len(keys); start += crcPrefetchChunkSize {
		end := start + crcPrefetchChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]
		placeholders := make([]string, len(chunk))
		args := make([]any, len(chunk))
		for i, k := range chunk {
			placeholders[i] = "?"
			args[i] = k
		}
		query := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE %s IN (%s)`,
			quoteIdent(schema.PKName), quoteIdent(model.ColCRC), quoteIdent(schema.Table),
			quoteIdent(schema.PKName), strings.Join(placeholders, ","))
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("localstore: prefetch CRC: %w", err)
		}
		for rows.Next() {
			var pk string
			var crc sql.NullInt64
			if err := rows.Scan(&pk, &crc); err != nil {
				rows.Close()
				return nil, fmt.Errorf("localstore: scan CRC: %w", err)
			}
			if crc.Valid {
				out[pk] = uint32(crc.Int64)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

func (a *Applier) insertRow(ctx context.Context, tx *sql.Tx, schema *TableSchema, e model.Entity, now time.Time, emitChangeLog bool) error {
	e = e.Clone()
	if schema.HasLastModified {
		e.Set(model.ColLastModified, model.Time(now))
	}
	if schema.HasIsDeleted {
		e.Set(model.ColIsDeleted, model.Bool(false))
	}
	if schema.HasDeleteDate {
		e.Set(model.ColDeleteDate, model.Null())
	}
	if schema.HasVersion {
		e.Set(model.ColVersion, model.Int64(1))
	}
	if schema.HasCRC {
		e.Set(model.ColCRC, model.Int64(int64(computeCRC32(e))))
	}

	cols := intersectColumns(schema, e)
	if len(cols) == 0 {
		return fmt.Errorf("localstore: insert into %s: no intersecting columns", schema.Table)
	}

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		placeholders[i] = "?"
		quoted[i] = quoteIdent(c)
		args[i] = e.Get(c).Raw()
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, quoteIdent(schema.Table), strings.Join(quoted, ","), strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("localstore: insert into %s: %w", schema.Table, err)
	}

	if emitChangeLog {
		if err := appendChangeLog(ctx, tx, schema.Table, e.PK(), "INSERT", now); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) updateRow(ctx context.Context, tx *sql.Tx, schema *TableSchema, e model.Entity, now time.Time, storedCRC map[string]uint32, emitChangeLog bool) (skipped bool, err error) {
	e = e.Clone()

	if schema.HasCRC {
		newCRC := computeCRC32(e)
		if old, ok := storedCRC[e.PK()]; ok && old == newCRC {
			return true, nil
		}
		e.Set(model.ColCRC, model.Int64(int64(newCRC)))
	}
	if schema.HasLastModified {
		e.Set(model.ColLastModified, model.Time(now))
	}

	changed := intersectColumns(schema, e)
	// changed columns never include the PK itself.
	changed = removeColumn(changed, schema.PKName)
	if len(changed) == 0 {
		return true, nil
	}

	setClauses := make([]string, 0, len(changed)+1)
	args := make([]any, 0, len(changed)+1)
	for _, c := range changed {
		setClauses = append(setClauses, fmt.Sprintf("%s = ?", quoteIdent(c)))
		args = append(args, e.Get(c).Raw())
	}
	if schema.HasVersion {
		setClauses = append(setClauses, fmt.Sprintf("%s = %s + 1", quoteIdent(model.ColVersion), quoteIdent(model.ColVersion)))
	}
	args = append(args, e.PK())

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = ?`, quoteIdent(schema.Table), strings.Join(setClauses, ", "), quoteIdent(schema.PKName))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("localstore: update %s: %w", schema.Table, err)
	}

	if emitChangeLog {
		op := changelog.EncodeUpdate(changed)
		if err := appendChangeLog(ctx, tx, schema.Table, e.PK(), op, now); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (a *Applier) archiveRow(ctx context.Context, tx *sql.Tx, schema *TableSchema, e model.Entity, now time.Time, emitChangeLog bool) error {
	pk := e.PK()

	if schema.HasIsDeleted || schema.HasDeleteDate {
		var setClauses []string
		var args []any
		if schema.HasIsDeleted {
			setClauses = append(setClauses, fmt.Sprintf("%s = ?", quoteIdent(model.ColIsDeleted)))
			args = append(args, true)
		}
		if schema.HasDeleteDate {
			setClauses = append(setClauses, fmt.Sprintf("%s = ?", quoteIdent(model.ColDeleteDate)))
			args = append(args, model.Time(now).Raw())
		}
		if schema.HasLastModified {
			setClauses = append(setClauses, fmt.Sprintf("%s = ?", quoteIdent(model.ColLastModified)))
			args = append(args, model.Time(now).Raw())
		}
		args = append(args, pk)
		query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = ?`, quoteIdent(schema.Table), strings.Join(setClauses, ", "), quoteIdent(schema.PKName))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("localstore: soft-delete %s: %w", schema.Table, err)
		}
	} else {
		query := fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, quoteIdent(schema.Table), quoteIdent(schema.PKName))
		if _, err := tx.ExecContext(ctx, query, pk); err != nil {
			return fmt.Errorf("localstore: delete from %s: %w", schema.Table, err)
		}
	}

	if emitChangeLog {
		if err := appendChangeLog(ctx, tx, schema.Table, pk, "DELETE", now); err != nil {
			return err
		}
	}
	return nil
}

func appendChangeLog(ctx context.Context, tx *sql.Tx, table, recordID, operation string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO cl.ChangeLog (TableName, RecordID, Operation, Timestamp, Synchronized) VALUES (?, ?, ?, ?, 0)`,
		table, recordID, operation, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("localstore: append change log: %w", err)
	}
	return nil
}

func intersectColumns(schema *TableSchema, e model.Entity) []string {
	var out []string
	for _, c := range e.ColumnNames() {
		if schema.HasColumn(c) {
			out = append(out, c)
		}
	}
	return out
}

func removeColumn(cols []string, name string) []string {
	out := cols[:0:0]
	for _, c := range cols {
		if !strings.EqualFold(c, name) {
			out = append(out, c)
		}
	}
	return out
}

func sqlQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
