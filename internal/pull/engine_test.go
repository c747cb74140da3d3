package pull

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/ambre-sync/reconcile-core/internal/netstore"

	_ "modernc.org/sqlite"
)

const pullTestDDL = `CREATE TABLE T_Reconciliation (
	ID TEXT PRIMARY KEY,
	Comment TEXT,
	Version INTEGER,
	LastModified TEXT
)`

func newTestPullCountry(t *testing.T) Country {
	t.Helper()
	dir := t.TempDir()

	localConn, err := sql.Open("sqlite", filepath.Join(dir, "local.db"))
	if err != nil {
		t.Fatalf("open local conn: %v", err)
	}
	t.Cleanup(func() { localConn.Close() })
	if _, err := localConn.Exec(pullTestDDL); err != nil {
		t.Fatalf("create local table: %v", err)
	}

	netPath := filepath.Join(dir, "net.db")
	netConn, err := sql.Open("sqlite", netPath)
	if err != nil {
		t.Fatalf("create network file: %v", err)
	}
	if _, err := netConn.Exec(pullTestDDL); err != nil {
		t.Fatalf("create network table: %v", err)
	}
	netConn.Close()

	ns, err := netstore.Open(filepath.Join(dir, "control.db"))
	if err != nil {
		t.Fatalf("open netstore: %v", err)
	}
	t.Cleanup(func() { ns.Close() })

	return Country{
		ID:             "FR",
		LocalConn:      localConn,
		NetPath:        netPath,
		NetOpenTimeout: 2 * time.Second,
		NetStore:       ns,
	}
}

func execNet(t *testing.T, c Country, query string, args ...any) {
	t.Helper()
	conn, err := sql.Open("sqlite", c.NetPath)
	if err != nil {
		t.Fatalf("reopen network file: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Exec(query, args...); err != nil {
		t.Fatalf("exec on network file: %v", err)
	}
}

func TestPullInsertsNewNetworkRow(t *testing.T) {
	ctx := context.Background()
	c := newTestPullCountry(t)
	execNet(t, c, `INSERT INTO T_Reconciliation (ID, Comment, Version, LastModified) VALUES (?, ?, 1, ?)`,
		"1", "from network", time.Now().UTC().Format("2006-01-02 15:04:05.000"))

	eng := New()
	result, err := eng.Pull(ctx, c)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if result.Inserted != 1 {
		t.Errorf("result = %+v, want Inserted=1", result)
	}

	var comment string
	if err := c.LocalConn.QueryRowContext(ctx, `SELECT Comment FROM T_Reconciliation WHERE ID = ?`, "1").Scan(&comment); err != nil {
		t.Fatalf("query local row: %v", err)
	}
	if comment != "from network" {
		t.Errorf("local Comment = %q, want %q", comment, "from network")
	}
}

func TestPullUpdatesWhenNetworkIsNewer(t *testing.T) {
	ctx := context.Background()
	c := newTestPullCountry(t)
	old := time.Now().Add(-time.Hour).UTC()
	fresh := time.Now().UTC()

	c.LocalConn.ExecContext(ctx, `INSERT INTO T_Reconciliation (ID, Comment, Version, LastModified) VALUES (?, ?, 1, ?)`,
		"1", "stale", old.Format("2006-01-02 15:04:05.000"))
	execNet(t, c, `INSERT INTO T_Reconciliation (ID, Comment, Version, LastModified) VALUES (?, ?, 2, ?)`,
		"1", "fresh", fresh.Format("2006-01-02 15:04:05.000"))

	eng := New()
	result, err := eng.Pull(ctx, c)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if result.Updated != 1 {
		t.Errorf("result = %+v, want Updated=1", result)
	}

	var comment string
	c.LocalConn.QueryRowContext(ctx, `SELECT Comment FROM T_Reconciliation WHERE ID = ?`, "1").Scan(&comment)
	if comment != "fresh" {
		t.Errorf("local Comment = %q, want %q (network value should win)", comment, "fresh")
	}
}

func TestPullLeavesLocalUnchangedWhenNetworkIsOlder(t *testing.T) {
	ctx := context.Background()
	c := newTestPullCountry(t)
	old := time.Now().Add(-time.Hour).UTC()
	fresh := time.Now().UTC()

	c.LocalConn.ExecContext(ctx, `INSERT INTO T_Reconciliation (ID, Comment, Version, LastModified) VALUES (?, ?, 2, ?)`,
		"1", "fresh local", fresh.Format("2006-01-02 15:04:05.000"))
	execNet(t, c, `INSERT INTO T_Reconciliation (ID, Comment, Version, LastModified) VALUES (?, ?, 1, ?)`,
		"1", "stale network", old.Format("2006-01-02 15:04:05.000"))

	eng := New()
	// The scan query itself is already bounded by the local table's max
	// LastModified, so a network row older than every local row never
	// comes back from the scan at all: the whole result is zero, not
	// just Updated.
	result, err := eng.Pull(ctx, c)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if result.Inserted != 0 || result.Updated != 0 || result.Unchanged != 0 {
		t.Errorf("result = %+v, want all zero (network row predates the local scan watermark)", result)
	}

	var comment string
	c.LocalConn.QueryRowContext(ctx, `SELECT Comment FROM T_Reconciliation WHERE ID = ?`, "1").Scan(&comment)
	if comment != "fresh local" {
		t.Errorf("local Comment = %q, want unchanged %q", comment, "fresh local")
	}
}

func TestPullAdvancesWatermark(t *testing.T) {
	ctx := context.Background()
	c := newTestPullCountry(t)
	ts := time.Now().UTC()
	execNet(t, c, `INSERT INTO T_Reconciliation (ID, Comment, Version, LastModified) VALUES (?, ?, 5, ?)`,
		"1", "x", ts.Format("2006-01-02 15:04:05.000"))

	eng := New()
	if _, err := eng.Pull(ctx, c); err != nil {
		t.Fatalf("Pull: %v", err)
	}

	wm, err := c.NetStore.GetWatermark(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetWatermark: %v", err)
	}
	if wm.LastSyncVersion != 5 {
		t.Errorf("LastSyncVersion = %d, want 5", wm.LastSyncVersion)
	}
	if wm.LastSyncTimestamp.IsZero() {
		t.Error("LastSyncTimestamp should advance to the max seen network LastModified")
	}
}

func TestPullNoNewRowsIsNoop(t *testing.T) {
	ctx := context.Background()
	c := newTestPullCountry(t)

	eng := New()
	result, err := eng.Pull(ctx, c)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if result.Inserted != 0 || result.Updated != 0 || result.Unchanged != 0 {
		t.Errorf("result = %+v, want all zero on an empty network table", result)
	}
}
