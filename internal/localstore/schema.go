package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// TableSchema caches the column set, primary key, and the presence of the
// well-known bookkeeping columns for one table, so repeated Apply calls
// against the same table avoid re-querying PRAGMA table_info.
type TableSchema struct {
	Table           string
	PKName          string
	Columns         []string
	HasCRC          bool
	HasLastModified bool
	HasIsDeleted    bool
	HasDeleteDate   bool
	HasVersion      bool
}

// HasColumn reports whether the schema carries the named column,
// case-insensitively.
func (s *TableSchema) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

func loadSchema(ctx context.Context, conn *sql.DB, table string) (*TableSchema, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("localstore: read schema for %s: %w", table, err)
	}
	defer rows.Close()

	s := &TableSchema{Table: table}
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("localstore: scan schema row: %w", err)
		}
		s.Columns = append(s.Columns, name)
		if pk == 1 {
			s.PKName = name
		}
		switch {
		case strings.EqualFold(name, "CRC"):
			s.HasCRC = true
		case strings.EqualFold(name, "LastModified"):
			s.HasLastModified = true
		case strings.EqualFold(name, "IsDeleted"):
			s.HasIsDeleted = true
		case strings.EqualFold(name, "DeleteDate"):
			s.HasDeleteDate = true
		case strings.EqualFold(name, "Version"):
			s.HasVersion = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(s.Columns) == 0 {
		return nil, fmt.Errorf("localstore: table %s has no columns (does it exist?)", table)
	}
	return s, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
