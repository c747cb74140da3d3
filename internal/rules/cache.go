package rules

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// TableTruthRules is the referential table name the Rule Engine reads from.
const TableTruthRules = "T_TruthRules"

// cacheTTL is the rule set's refresh interval; explicit Invalidate calls
// (e.g. after an administrator edits the table) bypass it entirely.
const cacheTTL = 2 * time.Minute

// triStateColumns are the nullable integer columns the Rule Engine's
// auto-migration adds when the referential table predates them.
var triStateColumns = []string{
	"HasDwingsLink", "IsGrouped", "IsAmountMatch", "IsMatched", "HasManualMatch",
	"IsFirstRequest", "TriggerDateIsNull", "CommIdEmail", "BgiStatusInitiated",
}

// Cache holds a TTL-bounded, explicitly invalidatable copy of the truth
// rule table. A missing or unreadable table yields an empty rule set
// rather than an error, per the spec's failure model.
type Cache struct {
	conn *sql.DB

	mu       sync.RWMutex
	rules    []TruthRule
	loadedAt time.Time
}

// NewCache constructs a Cache reading from conn. It does not load eagerly;
// the first Get call populates it.
func NewCache(conn *sql.DB) *Cache {
	return &Cache{conn: conn}
}

// Get returns the cached rule set, reloading it if the TTL has elapsed.
func (c *Cache) Get(ctx context.Context) []TruthRule {
	c.mu.RLock()
	fresh := time.Since(c.loadedAt) < cacheTTL && !c.loadedAt.IsZero()
	rules := c.rules
	c.mu.RUnlock()
	if fresh {
		return rules
	}

	loaded, err := loadTruthRules(ctx, c.conn)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		slog.Warn("rules: load truth rules, falling back to empty set", "err", err)
		c.rules = nil
		c.loadedAt = time.Now()
		return nil
	}
	c.rules = loaded
	c.loadedAt = time.Now()
	return c.rules
}

// Invalidate forces the next Get call to reload regardless of TTL.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

func loadTruthRules(ctx context.Context, conn *sql.DB) ([]TruthRule, error) {
	if err := ensureTriStateColumns(ctx, conn); err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s`, quoteIdent(TableTruthRules)))
	if err != nil {
		return nil, fmt.Errorf("rules: query %s: %w", TableTruthRules, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []TruthRule
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("rules: scan row: %w", err)
		}
		rule := rowToRule(cols, vals)
		out = append(out, rule)
	}
	return out, rows.Err()
}

// ensureTriStateColumns adds any missing nullable integer columns for the
// tri-state boolean predicates, matching the spec's "schema auto-migrated"
// requirement.
func ensureTriStateColumns(ctx context.Context, conn *sql.DB) error {
	existing := make(map[string]bool)
	probe, err := conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(TableTruthRules)))
	if err != nil {
		return fmt.Errorf("rules: probe schema: %w", err)
	}
	for probe.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt any
		if err := probe.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			probe.Close()
			return err
		}
		existing[strings.ToUpper(name)] = true
	}
	if err := probe.Err(); err != nil {
		probe.Close()
		return err
	}
	probe.Close()

	if len(existing) == 0 {
		return fmt.Errorf("rules: table %s not found", TableTruthRules)
	}

	for _, col := range triStateColumns {
		if existing[strings.ToUpper(col)] {
			continue
		}
		stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s INTEGER`, quoteIdent(TableTruthRules), quoteIdent(col))
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("rules: add column %s: %w", col, err)
		}
		slog.Info("rules: auto-migrated missing column", "table", TableTruthRules, "column", col)
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
