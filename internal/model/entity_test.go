package model

import "testing"

func TestEntityPK(t *testing.T) {
	e := NewEntity(TableReconciliation, "ID")
	e.Set("ID", String("abc-123"))
	if got := e.PK(); got != "abc-123" {
		t.Errorf("PK() = %q, want %q", got, "abc-123")
	}
}

func TestEntityPKMissing(t *testing.T) {
	e := NewEntity(TableReconciliation, "ID")
	if got := e.PK(); got != "" {
		t.Errorf("PK() on entity with no ID set = %q, want empty", got)
	}
}

func TestEntitySetCaseInsensitiveDedup(t *testing.T) {
	e := NewEntity(TableAmbre, "ID")
	e.Set("Comment", String("first"))
	e.Set("comment", String("second"))
	if len(e.Columns) != 1 {
		t.Fatalf("Columns has %d entries, want 1 (case-insensitive dedup)", len(e.Columns))
	}
	if got := e.Get("COMMENT").String(); got != "second" {
		t.Errorf("Get(\"COMMENT\") = %q, want %q", got, "second")
	}
}

func TestEntityGetMissingIsNull(t *testing.T) {
	e := NewEntity(TableAmbre, "ID")
	if !e.Get("Missing").IsNull() {
		t.Error("Get on an absent column should return a null Value")
	}
}

func TestEntityClone(t *testing.T) {
	e := NewEntity(TableAmbre, "ID")
	e.Set("ID", String("1"))
	clone := e.Clone()
	clone.Set("ID", String("2"))
	if e.Get("ID").String() != "1" {
		t.Errorf("mutating the clone affected the original: got %q", e.Get("ID").String())
	}
}

func TestEntityHasColumn(t *testing.T) {
	e := NewEntity(TableAmbre, "ID")
	e.Set("Amount", Float64(10))
	if !e.HasColumn("amount") {
		t.Error("HasColumn should be case-insensitive")
	}
	if e.HasColumn("Missing") {
		t.Error("HasColumn(\"Missing\") = true, want false")
	}
}

func TestEntityColumnNames(t *testing.T) {
	e := NewEntity(TableAmbre, "ID")
	e.Set("ID", String("1"))
	e.Set("Amount", Float64(5))
	names := e.ColumnNames()
	if len(names) != 2 {
		t.Fatalf("ColumnNames() has %d entries, want 2", len(names))
	}
}
