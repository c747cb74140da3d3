package changelog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "changelog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEncodeDecodeUpdateColumns(t *testing.T) {
	op := EncodeUpdate([]string{"Comment", "Amount"})
	if op != "UPDATE(Comment,Amount)" {
		t.Errorf("EncodeUpdate = %q", op)
	}
	cols, ok := DecodeUpdateColumns(op)
	if !ok {
		t.Fatal("DecodeUpdateColumns should recognize its own encoding")
	}
	if len(cols) != 2 || cols[0] != "Comment" || cols[1] != "Amount" {
		t.Errorf("DecodeUpdateColumns = %v", cols)
	}
}

func TestDecodeUpdateColumnsRejectsOtherOperations(t *testing.T) {
	if _, ok := DecodeUpdateColumns("INSERT"); ok {
		t.Error("DecodeUpdateColumns should reject a non-UPDATE operation string")
	}
	if _, ok := DecodeUpdateColumns("DELETE"); ok {
		t.Error("DecodeUpdateColumns should reject a non-UPDATE operation string")
	}
}

func TestRecordAndCountUnsynced(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, err := s.BeginSession(ctx)
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	entries := []Entry{
		NewEntry("T_Reconciliation", "1", "INSERT", time.Now()),
		NewEntry("T_Reconciliation", "2", "INSERT", time.Now()),
	}
	if err := RecordChanges(ctx, tx, entries); err != nil {
		t.Fatalf("RecordChanges: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	count, err := s.CountUnsynced(ctx)
	if err != nil {
		t.Fatalf("CountUnsynced: %v", err)
	}
	if count != 2 {
		t.Errorf("CountUnsynced = %d, want 2", count)
	}
}

func TestMarkChangesAsSyncedExcludesFromUnsynced(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, _ := s.BeginSession(ctx)
	RecordChanges(ctx, tx, []Entry{NewEntry("T_Reconciliation", "1", "INSERT", time.Now())})
	tx.Commit()

	unsynced, err := s.GetUnsyncedChanges(ctx)
	if err != nil {
		t.Fatalf("GetUnsyncedChanges: %v", err)
	}
	if len(unsynced) != 1 {
		t.Fatalf("GetUnsyncedChanges returned %d entries, want 1", len(unsynced))
	}

	if err := s.MarkChangesAsSynced(ctx, []int64{unsynced[0].ChangeID}); err != nil {
		t.Fatalf("MarkChangesAsSynced: %v", err)
	}

	count, err := s.CountUnsynced(ctx)
	if err != nil {
		t.Fatalf("CountUnsynced: %v", err)
	}
	if count != 0 {
		t.Errorf("CountUnsynced after marking synced = %d, want 0", count)
	}
}

func TestRecordChangesEmptyIsNoop(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	tx, _ := s.BeginSession(ctx)
	if err := RecordChanges(ctx, tx, nil); err != nil {
		t.Fatalf("RecordChanges(nil) should be a no-op, got: %v", err)
	}
	tx.Commit()
}

func TestOpenCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "changelog.db")
	os.MkdirAll(filepath.Dir(path), 0o755)
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Open should create the database file: %v", err)
	}
}
