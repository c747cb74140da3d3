package rules

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestTruthTable(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := conn.Exec(`CREATE TABLE T_TruthRules (ID INTEGER PRIMARY KEY, Priority INTEGER, Enabled INTEGER, Scope TEXT, Booking TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return conn
}

func TestCacheGetLoadsFromTable(t *testing.T) {
	conn := openTestTruthTable(t)
	conn.Exec(`INSERT INTO T_TruthRules (ID, Priority, Enabled, Scope, Booking) VALUES (1, 10, 1, 'Both', 'B1')`)

	c := NewCache(conn)
	rules := c.Get(context.Background())
	if len(rules) != 1 || rules[0].Booking != "B1" {
		t.Errorf("Get = %+v, want one rule with Booking=B1", rules)
	}
}

func TestCacheGetReturnsEmptyWhenTableMissing(t *testing.T) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	c := NewCache(conn)
	rules := c.Get(context.Background())
	if rules != nil {
		t.Errorf("Get on a missing table = %+v, want nil (fail open to empty rule set)", rules)
	}
}

func TestCacheInvalidateForcesReload(t *testing.T) {
	conn := openTestTruthTable(t)
	c := NewCache(conn)

	if rules := c.Get(context.Background()); len(rules) != 0 {
		t.Fatalf("initial Get = %+v, want empty table", rules)
	}

	conn.Exec(`INSERT INTO T_TruthRules (ID, Priority, Enabled, Scope, Booking) VALUES (1, 5, 1, 'Both', 'B2')`)
	if rules := c.Get(context.Background()); len(rules) != 0 {
		t.Fatalf("Get before Invalidate = %+v, want still-cached empty result", rules)
	}

	c.Invalidate()
	rules := c.Get(context.Background())
	if len(rules) != 1 || rules[0].Booking != "B2" {
		t.Errorf("Get after Invalidate = %+v, want the newly inserted rule", rules)
	}
}

func TestCacheAutoMigratesTriStateColumns(t *testing.T) {
	conn := openTestTruthTable(t)
	c := NewCache(conn)
	c.Get(context.Background())

	rows, err := conn.Query(`PRAGMA table_info(T_TruthRules)`)
	if err != nil {
		t.Fatalf("table_info: %v", err)
	}
	defer rows.Close()
	found := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt any
		rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk)
		found[name] = true
	}
	for _, col := range triStateColumns {
		if !found[col] {
			t.Errorf("auto-migration did not add column %q", col)
		}
	}
}
