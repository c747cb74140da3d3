package localstore

import (
	"hash/crc32"
	"sort"
	"strings"

	"github.com/ambre-sync/reconcile-core/internal/model"
)

// unitSeparator is the field delimiter used when serializing a row's
// business columns for CRC computation, chosen (as the source system
// does) because it cannot appear in normal text content.
const unitSeparator = "\x1f"

// crcExcludedColumns are never part of the CRC: the primary key, the CRC
// column itself, bookkeeping columns that change independently of business
// content, and Version (excluded intentionally per the design notes — see
// DESIGN.md Open Question decisions).
var crcExcludedColumns = map[string]bool{
	model.ColCRC:          true,
	model.ColLastModified: true,
	model.ColIsDeleted:    true,
	model.ColDeleteDate:   true,
	"CreationDate":        true,
	"ModifiedBy":          true,
	model.ColVersion:      true,
}

// computeCRC32 computes the CRC32 over an entity's business columns,
// excluding the primary key and the columns in crcExcludedColumns, sorted
// case-insensitively by column name and serialized with a unit-separator
// delimiter. Values are normalized: each value's text is trimmed here, and
// model.Value.String() renders datetimes as ISO-8601 UTC and numbers in an
// invariant (period decimal) format.
func computeCRC32(e model.Entity) uint32 {
	names := make([]string, 0, len(e.Columns))
	for name := range e.Columns {
		if strings.EqualFold(name, e.PKName) || crcExcludedColumns[canonicalExcludeKey(name)] {
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString(unitSeparator)
		}
		b.WriteString(strings.TrimSpace(e.Columns[name].String()))
	}

	return crc32.ChecksumIEEE([]byte(b.String()))
}

// canonicalExcludeKey maps a column name onto its canonical form in
// crcExcludedColumns, so exclusion matches case-insensitively the same way
// Entity.Set/Get do.
func canonicalExcludeKey(name string) string {
	for k := range crcExcludedColumns {
		if strings.EqualFold(k, name) {
			return k
		}
	}
	return name
}
