package pull

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ambre-sync/reconcile-core/internal/model"
)

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// tableColumns returns the column list, primary key, and presence of
// Version/LastModified for table.
func tableColumns(ctx context.Context, conn *sql.DB, table string) (cols []string, pk string, hasVersion, hasLastModified bool, err error) {
	rows, qerr := conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table)))
	if qerr != nil {
		return nil, "", false, false, fmt.Errorf("pull: read schema for %s: %w", table, qerr)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pkFlag int
		var dflt any
		if serr := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pkFlag); serr != nil {
			return nil, "", false, false, serr
		}
		cols = append(cols, name)
		if pkFlag == 1 {
			pk = name
		}
		if strings.EqualFold(name, model.ColVersion) {
			hasVersion = true
		}
		if strings.EqualFold(name, model.ColLastModified) {
			hasLastModified = true
		}
	}
	return cols, pk, hasVersion, hasLastModified, rows.Err()
}

func localWatermarks(ctx context.Context, conn *sql.DB, hasLM, hasVersion bool) (time.Time, int64, error) {
	var maxLM time.Time
	if hasLM {
		var s sql.NullString
		err := conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT MAX(%s) FROM %s`, quoteIdent(model.ColLastModified), quoteIdent(model.TableReconciliation))).Scan(&s)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("pull: max local LastModified: %w", err)
		}
		if s.Valid {
			if t, perr := time.Parse("2006-01-02 15:04:05.000", s.String); perr == nil {
				maxLM = t.UTC()
			} else if t, perr := time.Parse(time.RFC3339Nano, s.String); perr == nil {
				maxLM = t.UTC()
			}
		}
	}

	var maxVer int64
	if hasVersion {
		var v sql.NullInt64
		err := conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT MAX(%s) FROM %s`, quoteIdent(model.ColVersion), quoteIdent(model.TableReconciliation))).Scan(&v)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("pull: max local Version: %w", err)
		}
		if v.Valid {
			maxVer = v.Int64
		}
	}

	return maxLM, maxVer, nil
}

func buildScanQuery(cols []string, pk, table string, hasLM, hasVersion bool, wmLM time.Time, wmVer int64) (string, []any) {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	base := fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(quoted, ","), quoteIdent(table))

	switch {
	case hasLM && !wmLM.IsZero():
		return base + fmt.Sprintf(` WHERE %s > ?`, quoteIdent(model.ColLastModified)), []any{wmLM.UTC().Format("2006-01-02 15:04:05.000")}
	case hasVersion && wmVer > 0:
		return base + fmt.Sprintf(` WHERE %s > ?`, quoteIdent(model.ColVersion)), []any{wmVer}
	default:
		return base, nil
	}
}

func scanEntityRow(rows *sql.Rows, cols []string, table, pk string) (model.Entity, error) {
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return model.Entity{}, fmt.Errorf("pull: scan network row: %w", err)
	}
	e := model.NewEntity(table, pk)
	for i, c := range cols {
		e.Set(c, model.FromRaw(vals[i]))
	}
	return e, nil
}

func readLocalEntity(ctx context.Context, conn *sql.DB, table, pk, pkValue string, cols []string) (model.Entity, bool, error) {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`, strings.Join(quoted, ","), quoteIdent(table), quoteIdent(pk))
	row := conn.QueryRowContext(ctx, q, pkValue)

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		if err == sql.ErrNoRows {
			return model.Entity{}, false, nil
		}
		return model.Entity{}, false, fmt.Errorf("pull: read local row: %w", err)
	}

	e := model.NewEntity(table, pk)
	for i, c := range cols {
		e.Set(c, model.FromRaw(vals[i]))
	}
	return e, true, nil
}

func insertEntity(ctx context.Context, conn *sql.DB, e model.Entity, pk string) error {
	cols := e.ColumnNames()
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		placeholders[i] = "?"
		args[i] = e.Get(c).Raw()
	}
	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, quoteIdent(e.Table), strings.Join(quoted, ","), strings.Join(placeholders, ","))
	_, err := conn.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("pull: insert local row: %w", err)
	}
	return nil
}

func updateEntity(ctx context.Context, conn *sql.DB, e model.Entity, pk string) error {
	cols := e.ColumnNames()
	var sets []string
	var args []any
	for _, c := range cols {
		if strings.EqualFold(c, pk) {
			continue
		}
		sets = append(sets, quoteIdent(c)+" = ?")
		args = append(args, e.Get(c).Raw())
	}
	args = append(args, e.PK())
	q := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = ?`, quoteIdent(e.Table), strings.Join(sets, ", "), quoteIdent(pk))
	_, err := conn.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("pull: update local row: %w", err)
	}
	return nil
}
