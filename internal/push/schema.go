package push

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/ambre-sync/reconcile-core/internal/model"
)

type netSchema struct {
	table           string
	pk              string
	columns         []string
	hasVersion      bool
	hasLastModified bool
	hasIsDeleted    bool
	hasDeleteDate   bool
}

func (s *netSchema) hasColumn(name string) bool {
	for _, c := range s.columns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

func readNetSchema(ctx context.Context, conn *sql.DB, table string) (*netSchema, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("push: read network schema: %w", err)
	}
	defer rows.Close()

	s := &netSchema{table: table}
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		s.columns = append(s.columns, name)
		if pk == 1 {
			s.pk = name
		}
		switch {
		case strings.EqualFold(name, model.ColVersion):
			s.hasVersion = true
		case strings.EqualFold(name, model.ColLastModified):
			s.hasLastModified = true
		case strings.EqualFold(name, model.ColIsDeleted):
			s.hasIsDeleted = true
		case strings.EqualFold(name, model.ColDeleteDate):
			s.hasDeleteDate = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(s.columns) == 0 {
		return nil, fmt.Errorf("push: table %s missing from network store", table)
	}
	return s, nil
}

func ensureReconciliationTable(ctx context.Context, conn *sql.DB, ddl string) error {
	var count int
	err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, model.TableReconciliation).Scan(&count)
	if err != nil {
		return fmt.Errorf("push: probe %s: %w", model.TableReconciliation, err)
	}
	if count > 0 {
		return nil
	}
	if strings.TrimSpace(ddl) == "" {
		return fmt.Errorf("push: network %s missing and no schema template configured", model.TableReconciliation)
	}
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("push: recreate %s from template: %w", model.TableReconciliation, err)
	}
	return nil
}

func networkRowExists(ctx context.Context, tx *sql.Tx, schema *netSchema, recordID string) (bool, error) {
	var count int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ?`, quoteIdent(schema.table), quoteIdent(schema.pk))
	if err := tx.QueryRowContext(ctx, q, recordID).Scan(&count); err != nil {
		return false, fmt.Errorf("push: probe network row: %w", err)
	}
	return count > 0, nil
}

// readLocalRow reads the current local column values for recordID,
// restricted to the columns also present on the network schema.
func readLocalRow(ctx context.Context, conn *sql.DB, schema *netSchema, recordID string) (model.Entity, bool, error) {
	q := fmt.Sprintf(`SELECT * FROM %s WHERE %s = ?`, quoteIdent(schema.table), quoteIdent(schema.pk))
	rows, err := conn.QueryContext(ctx, q, recordID)
	if err != nil {
		return model.Entity{}, false, fmt.Errorf("push: read local row: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return model.Entity{}, false, err
	}
	if !rows.Next() {
		return model.Entity{}, false, rows.Err()
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return model.Entity{}, false, fmt.Errorf("push: scan local row: %w", err)
	}

	e := model.NewEntity(schema.table, schema.pk)
	for i, col := range cols {
		if !schema.hasColumn(col) {
			continue
		}
		e.Set(col, model.FromRaw(vals[i]))
	}
	return e, true, nil
}

func mirrorVersionLocally(ctx context.Context, conn *sql.DB, schema *netSchema, recordID string) {
	if !schema.hasVersion {
		return
	}
	conn.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET %s = %s + 1 WHERE %s = ?`,
		quoteIdent(schema.table), quoteIdent(model.ColVersion), quoteIdent(model.ColVersion), quoteIdent(schema.pk)), recordID)
}

func mirrorVersionSetLocally(ctx context.Context, conn *sql.DB, schema *netSchema, recordID string, version int64) {
	conn.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET %s = ? WHERE %s = ?`,
		quoteIdent(schema.table), quoteIdent(model.ColVersion), quoteIdent(schema.pk)), version, recordID)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
