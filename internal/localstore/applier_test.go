package localstore

import (
	"context"
	"database/sql"
	"testing"

	"github.com/ambre-sync/reconcile-core/internal/model"

	_ "modernc.org/sqlite"
)

func openTestTable(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE T_Reconciliation (
		ID TEXT PRIMARY KEY,
		Comment TEXT,
		Version INTEGER,
		LastModified TEXT,
		IsDeleted INTEGER,
		DeleteDate TEXT,
		CRC INTEGER
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func newRow(pk, comment string) model.Entity {
	e := model.NewEntity(model.TableReconciliation, "ID")
	e.Set("ID", model.String(pk))
	e.Set("Comment", model.String(comment))
	return e
}

func TestApplyInsert(t *testing.T) {
	db := openTestTable(t)
	applier := New(db, "")

	result, err := applier.Apply(context.Background(), model.TableReconciliation, []model.Entity{newRow("1", "hello")}, nil, nil, true)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Inserted != 1 {
		t.Errorf("Inserted = %d, want 1", result.Inserted)
	}

	var comment string
	if err := db.QueryRow(`SELECT Comment FROM T_Reconciliation WHERE ID = ?`, "1").Scan(&comment); err != nil {
		t.Fatalf("query inserted row: %v", err)
	}
	if comment != "hello" {
		t.Errorf("Comment = %q, want %q", comment, "hello")
	}
}

func TestApplyUpdateSkipsWhenCRCUnchanged(t *testing.T) {
	db := openTestTable(t)
	applier := New(db, "")
	ctx := context.Background()

	if _, err := applier.Apply(ctx, model.TableReconciliation, []model.Entity{newRow("1", "same")}, nil, nil, true); err != nil {
		t.Fatalf("insert: %v", err)
	}

	result, err := applier.Apply(ctx, model.TableReconciliation, nil, []model.Entity{newRow("1", "same")}, nil, true)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if result.Skipped != 1 || result.Updated != 0 {
		t.Errorf("result = %+v, want Skipped=1 Updated=0 (unchanged content)", result)
	}
}

func TestApplyUpdateAppliesWhenCRCChanged(t *testing.T) {
	db := openTestTable(t)
	applier := New(db, "")
	ctx := context.Background()

	if _, err := applier.Apply(ctx, model.TableReconciliation, []model.Entity{newRow("1", "old")}, nil, nil, true); err != nil {
		t.Fatalf("insert: %v", err)
	}

	result, err := applier.Apply(ctx, model.TableReconciliation, nil, []model.Entity{newRow("1", "new")}, nil, true)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if result.Updated != 1 || result.Skipped != 0 {
		t.Errorf("result = %+v, want Updated=1 Skipped=0 (changed content)", result)
	}

	var comment string
	db.QueryRow(`SELECT Comment FROM T_Reconciliation WHERE ID = ?`, "1").Scan(&comment)
	if comment != "new" {
		t.Errorf("Comment after update = %q, want %q", comment, "new")
	}
}

func TestApplyArchiveSoftDeletes(t *testing.T) {
	db := openTestTable(t)
	applier := New(db, "")
	ctx := context.Background()

	if _, err := applier.Apply(ctx, model.TableReconciliation, []model.Entity{newRow("1", "x")}, nil, nil, true); err != nil {
		t.Fatalf("insert: %v", err)
	}
	result, err := applier.Apply(ctx, model.TableReconciliation, nil, nil, []model.Entity{newRow("1", "x")}, true)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if result.Archived != 1 {
		t.Errorf("Archived = %d, want 1", result.Archived)
	}

	var deleted int
	db.QueryRow(`SELECT IsDeleted FROM T_Reconciliation WHERE ID = ?`, "1").Scan(&deleted)
	if deleted != 1 {
		t.Error("archived row should have IsDeleted=1, the table still has a DeleteDate column")
	}
}

func TestApplyVersionIncrementsOnUpdate(t *testing.T) {
	db := openTestTable(t)
	applier := New(db, "")
	ctx := context.Background()

	applier.Apply(ctx, model.TableReconciliation, []model.Entity{newRow("1", "a")}, nil, nil, true)
	applier.Apply(ctx, model.TableReconciliation, nil, []model.Entity{newRow("1", "b")}, nil, true)

	var version int
	db.QueryRow(`SELECT Version FROM T_Reconciliation WHERE ID = ?`, "1").Scan(&version)
	if version != 2 {
		t.Errorf("Version after one insert + one update = %d, want 2", version)
	}
}

func TestApplyWithChangeLogSuppressedEmitsNone(t *testing.T) {
	db := openTestTable(t)
	applier := New(db, "") // empty changelogPath always suppresses, per New's contract
	ctx := context.Background()

	result, err := applier.Apply(ctx, model.TableReconciliation, []model.Entity{newRow("1", "x")}, nil, nil, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.ChangeLogEntries != 0 {
		t.Errorf("ChangeLogEntries = %d, want 0 when changelogPath is empty", result.ChangeLogEntries)
	}
}
