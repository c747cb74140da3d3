package localstore

import (
	"testing"
	"time"

	"github.com/ambre-sync/reconcile-core/internal/model"
)

func TestComputeCRC32StableAcrossExcludedColumns(t *testing.T) {
	base := model.NewEntity(model.TableReconciliation, "ID")
	base.Set("ID", model.String("1"))
	base.Set("Comment", model.String("hello"))
	base.Set("CRC", model.Int64(999))
	base.Set("LastModified", model.Time(time.Now()))
	base.Set("Version", model.Int64(1))

	variant := base.Clone()
	variant.Set("CRC", model.Int64(0))
	variant.Set("Version", model.Int64(42))

	if computeCRC32(base) != computeCRC32(variant) {
		t.Error("CRC should be stable across differing CRC/Version values (they're excluded)")
	}
}

func TestComputeCRC32ChangesWithBusinessContent(t *testing.T) {
	a := model.NewEntity(model.TableReconciliation, "ID")
	a.Set("ID", model.String("1"))
	a.Set("Comment", model.String("hello"))

	b := a.Clone()
	b.Set("Comment", model.String("goodbye"))

	if computeCRC32(a) == computeCRC32(b) {
		t.Error("CRC should change when business content changes")
	}
}

func TestComputeCRC32IgnoresPrimaryKey(t *testing.T) {
	a := model.NewEntity(model.TableReconciliation, "ID")
	a.Set("ID", model.String("1"))
	a.Set("Comment", model.String("same"))

	b := model.NewEntity(model.TableReconciliation, "ID")
	b.Set("ID", model.String("2"))
	b.Set("Comment", model.String("same"))

	if computeCRC32(a) != computeCRC32(b) {
		t.Error("CRC should not depend on the primary key value")
	}
}

func TestComputeCRC32ColumnOrderIndependent(t *testing.T) {
	a := model.NewEntity(model.TableReconciliation, "ID")
	a.Set("ID", model.String("1"))
	a.Set("Alpha", model.String("x"))
	a.Set("Beta", model.String("y"))

	b := model.NewEntity(model.TableReconciliation, "ID")
	b.Set("ID", model.String("1"))
	b.Set("Beta", model.String("y"))
	b.Set("Alpha", model.String("x"))

	if computeCRC32(a) != computeCRC32(b) {
		t.Error("CRC should not depend on map iteration/insertion order")
	}
}
