// Package pull implements the Pull Engine: a server-side-filtered scan of
// the network RECONCILIATION table by watermark, reconciled row-by-row into
// the local database.
package pull

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ambre-sync/reconcile-core/internal/model"
	"github.com/ambre-sync/reconcile-core/internal/netstore"
	"github.com/ambre-sync/reconcile-core/internal/sqlitex"
)

// lastModifiedTolerance absorbs cross-host clock/precision drift: a
// network row is only considered newer if it exceeds the local value by
// more than this margin.
const lastModifiedTolerance = 2 * time.Second

// Country bundles what one country's pull needs.
type Country struct {
	ID             string
	LocalConn      *sql.DB
	NetPath        string
	NetOpenTimeout time.Duration
	NetStore       *netstore.Store
}

// Result summarizes one pull run.
type Result struct {
	Inserted int
	Updated  int
	Unchanged int
}

// Engine runs the Pull Engine over a Country.
type Engine struct{}

// New constructs an Engine. It carries no state: all mutable state lives in
// the netstore-backed watermark and the connections passed per call.
func New() *Engine { return &Engine{} }

// Pull imports network T_Reconciliation rows newer than the local watermark
// into the local database, then advances the watermark.
func (eng *Engine) Pull(ctx context.Context, c Country) (Result, error) {
	netTimeout := c.NetOpenTimeout
	if netTimeout <= 0 {
		netTimeout = 20 * time.Second
	}
	openCtx, cancel := context.WithTimeout(ctx, netTimeout)
	defer cancel()

	netConn, err := sqlitex.Open(c.NetPath)
	if err != nil {
		return Result{}, fmt.Errorf("pull: open network store: %w", err)
	}
	defer netConn.Close()

	netCols, netPK, netHasVersion, netHasLM, err := tableColumns(openCtx, netConn, model.TableReconciliation)
	if err != nil {
		return Result{}, err
	}
	localCols, localPK, _, _, err := tableColumns(openCtx, c.LocalConn, model.TableReconciliation)
	if err != nil {
		return Result{}, err
	}
	if netPK == "" {
		netPK = localPK
	}

	intersected := intersectCols(netCols, localCols)
	if len(intersected) == 0 {
		return Result{}, fmt.Errorf("pull: no intersecting columns between local and network %s", model.TableReconciliation)
	}

	wm, err := c.NetStore.GetWatermark(ctx, c.ID)
	if err != nil {
		return Result{}, err
	}
	maxLocalLM, maxLocalVer, err := localWatermarks(ctx, c.LocalConn, netHasLM, netHasVersion)
	if err != nil {
		return Result{}, err
	}
	if maxLocalLM.IsZero() {
		maxLocalLM = wm.LastSyncTimestamp
	}

	query, args := buildScanQuery(intersected, netPK, model.TableReconciliation, netHasLM, netHasVersion, maxLocalLM, maxLocalVer)
	rows, err := netConn.QueryContext(openCtx, query, args...)
	if err != nil {
		return Result{}, fmt.Errorf("pull: scan network rows: %w", err)
	}
	defer rows.Close()

	var result Result
	var scanned []model.Entity
	for rows.Next() {
		e, err := scanEntityRow(rows, intersected, model.TableReconciliation, netPK)
		if err != nil {
			return Result{}, err
		}
		scanned = append(scanned, e)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	rows.Close()

	var maxSeenVer int64
	var maxSeenLM time.Time

	for _, row := range scanned {
		applied, err := eng.applyRow(ctx, c.LocalConn, row, netPK, netHasLM, netHasVersion)
		if err != nil {
			return Result{}, err
		}
		switch applied {
		case appliedInsert:
			result.Inserted++
		case appliedUpdate:
			result.Updated++
		default:
			result.Unchanged++
		}

		if netHasVersion {
			if v, ok := row.Get(model.ColVersion).Int64(); ok && v > maxSeenVer {
				maxSeenVer = v
			}
		}
		if netHasLM {
			if t, ok := lastModified(row); ok && t.After(maxSeenLM) {
				maxSeenLM = t
			}
		}
	}

	newWM := wm
	if !maxSeenLM.IsZero() {
		newWM.LastSyncTimestamp = maxSeenLM
	} else if !maxLocalLM.IsZero() {
		newWM.LastSyncTimestamp = maxLocalLM
	}
	if maxSeenVer > newWM.LastSyncVersion {
		newWM.LastSyncVersion = maxSeenVer
	} else if maxLocalVer > newWM.LastSyncVersion {
		newWM.LastSyncVersion = maxLocalVer
	}
	if err := c.NetStore.SetWatermark(ctx, c.ID, newWM); err != nil {
		return Result{}, err
	}

	return result, nil
}

type applyKind int

const (
	appliedNone applyKind = iota
	appliedInsert
	appliedUpdate
)

func (eng *Engine) applyRow(ctx context.Context, local *sql.DB, row model.Entity, pk string, hasLM, hasVersion bool) (applyKind, error) {
	existing, found, err := readLocalEntity(ctx, local, model.TableReconciliation, pk, row.PK(), row.ColumnNames())
	if err != nil {
		return appliedNone, err
	}
	if !found {
		if err := insertEntity(ctx, local, row, pk); err != nil {
			return appliedNone, err
		}
		return appliedInsert, nil
	}

	apply := decideApply(existing, row, hasLM, hasVersion)
	if !apply {
		return appliedNone, nil
	}
	if err := updateEntity(ctx, local, row, pk); err != nil {
		return appliedNone, err
	}
	return appliedUpdate, nil
}

// decideApply implements the spec's conflict policy: compare by
// LastModified with a 2s tolerance; if that comparison is inconclusive
// (either side missing LastModified), fall back to Version.
func decideApply(local, network model.Entity, hasLM, hasVersion bool) bool {
	if hasLM {
		netLM, netOK := lastModified(network)
		localLM, localOK := lastModified(local)
		if netOK && localOK {
			return netLM.Sub(localLM) > lastModifiedTolerance
		}
	}
	if hasVersion {
		netVer, netOK := network.Get(model.ColVersion).Int64()
		localVer, localOK := local.Get(model.ColVersion).Int64()
		if netOK && localOK {
			return netVer > localVer
		}
	}
	return false
}

// lastModified reads an entity's LastModified as a time, parsing it when the
// driver returned the column as text.
func lastModified(e model.Entity) (time.Time, bool) {
	v, err := model.CoerceTo(e.Get(model.ColLastModified), model.ColTypeDateTime)
	if err != nil {
		return time.Time{}, false
	}
	return v.Time()
}

func intersectCols(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, c := range b {
		set[strings.ToLower(c)] = true
	}
	var out []string
	for _, c := range a {
		if set[strings.ToLower(c)] {
			out = append(out, c)
		}
	}
	return out
}
