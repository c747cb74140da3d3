// Package push implements the Push Engine: coalesced, lock-guarded,
// transactional replication of local change-log entries to the network
// store.
package push

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ambre-sync/reconcile-core/internal/changelog"
	"github.com/ambre-sync/reconcile-core/internal/errs"
	"github.com/ambre-sync/reconcile-core/internal/events"
	"github.com/ambre-sync/reconcile-core/internal/globallock"
	"github.com/ambre-sync/reconcile-core/internal/model"
	"github.com/ambre-sync/reconcile-core/internal/sqlitex"
	"github.com/ambre-sync/reconcile-core/internal/svcctx"
)

const (
	pushDebounceCooldown    = 5 * time.Second
	pendingLockLeaseTTL     = 30 * time.Second
	maxPushLockRetries      = 5
	pushLockRetryBaseDelay  = 200 * time.Millisecond
	watchdogThreshold       = 30 * time.Second
)

// Country bundles everything one country's push needs: the open local
// connections and the lock manager over its Control store. The network
// connection is opened fresh on each push (closed when done) since the
// network path may come and go.
type Country struct {
	ID                string
	LocalConn         *sql.DB
	LocalChangeLog    *changelog.Store
	NetPath           string
	NetOpenTimeout    time.Duration
	LockManager       *globallock.Manager
	ReconciliationDDL string // template DDL used if the network file lacks T_Reconciliation
}

// Result summarizes one push run.
type Result struct {
	Processed int
	Synced    int
	Skipped   int
}

// Engine coordinates pushes across countries, applying the debounce,
// coalescing, and background-push gating policy.
type Engine struct {
	svc    *svcctx.Context
	events events.Sink

	mu        sync.Mutex
	lastPush  map[string]time.Time
	inflight  map[string]chan struct{}
	inflightR map[string]pushOutcome
}

type pushOutcome struct {
	result Result
	err    error
}

// New constructs an Engine.
func New(svc *svcctx.Context, sink events.Sink) *Engine {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Engine{
		svc:       svc,
		events:    sink,
		lastPush:  make(map[string]time.Time),
		inflight:  make(map[string]chan struct{}),
		inflightR: make(map[string]pushOutcome),
	}
}

// PushReconciliationIfPending is the convenience entry point the Sync
// Scheduler and CLI call: debounces on a 5s per-country cooldown, refuses
// when background pushes are disabled or a foreign lock is active, and
// chains a pull on success. It never returns an error for "nothing to do"
// or "not allowed right now" conditions. An unreachable network and an
// empty queue are reported as events; the disabled, debounced,
// foreign-lock and lock-busy cases return nil without emitting one.
func (e *Engine) PushReconciliationIfPending(ctx context.Context, c Country, afterPush func(ctx context.Context, countryID string) error) error {
	if !e.svc.AllowBackgroundPushes() {
		return nil
	}

	e.mu.Lock()
	if last, ok := e.lastPush[c.ID]; ok && time.Since(last) < pushDebounceCooldown {
		e.mu.Unlock()
		return nil
	}
	e.lastPush[c.ID] = time.Now()
	e.mu.Unlock()

	if reachable, err := networkReachable(c.NetPath); err != nil || !reachable {
		e.publish(c.ID, events.StateOfflinePending, 0, err)
		return nil
	}

	foreign, err := c.LockManager.IsGlobalLockActiveByOthers(ctx, c.ID)
	if err != nil {
		e.publish(c.ID, events.StateError, 0, err)
		return err
	}
	if foreign {
		return nil
	}

	pending, err := c.LocalChangeLog.CountUnsynced(ctx)
	if err != nil {
		return err
	}
	if pending == 0 {
		e.publish(c.ID, events.StateUpToDate, 0, nil)
		return nil
	}

	handle, err := c.LockManager.Acquire(ctx, c.ID, "push-reconciliation", 5*time.Second, pendingLockLeaseTTL)
	if err != nil {
		return nil // LockBusy/LockTimeout: caller may retry later, no hard failure
	}
	defer handle.Release(ctx)

	result, err := e.pushOnlyTable(ctx, c, model.TableReconciliation, true)
	if err != nil {
		e.publish(c.ID, events.StateError, 0, err)
		return err
	}
	e.publish(c.ID, events.StateUpToDate, 0, nil)

	if afterPush != nil {
		return afterPush(ctx, c.ID)
	}
	_ = result
	return nil
}

// PushPendingChanges is the coalesced core entry point: exactly one push
// task runs per country at a time; concurrent callers await that task's
// result instead of starting their own.
func (e *Engine) PushPendingChanges(ctx context.Context, c Country, assumeLockHeld bool) (Result, error) {
	e.mu.Lock()
	if ch, running := e.inflight[c.ID]; running {
		e.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
		e.mu.Lock()
		out := e.inflightR[c.ID]
		e.mu.Unlock()
		return out.result, out.err
	}
	ch := make(chan struct{})
	e.inflight[c.ID] = ch
	e.mu.Unlock()

	result, err := e.runPush(ctx, c, assumeLockHeld)

	e.mu.Lock()
	e.inflightR[c.ID] = pushOutcome{result: result, err: err}
	delete(e.inflight, c.ID)
	e.mu.Unlock()
	close(ch)

	return result, err
}

func (e *Engine) runPush(ctx context.Context, c Country, assumeLockHeld bool) (Result, error) {
	if !assumeLockHeld {
		handle, err := c.LockManager.Acquire(ctx, c.ID, "push-pending-changes", 20*time.Second, pendingLockLeaseTTL)
		if err != nil {
			return Result{}, err
		}
		defer handle.Release(ctx)
	}
	return e.pushOnlyTable(ctx, c, "", false)
}

// pushOnlyTable runs the core push algorithm. If onlyFilter is set, only
// change-log entries for tableFilter are processed (as
// PushReconciliationIfPending requires); otherwise all unsynced entries are
// processed and tableFilter is ignored.
func (e *Engine) pushOnlyTable(ctx context.Context, c Country, tableFilter string, onlyFilter bool) (Result, error) {
	start := time.Now()
	defer func() {
		if time.Since(start) > watchdogThreshold {
			e.events.Publish(events.SyncStateChanged{CountryID: c.ID, State: events.StateError, TimestampUTC: time.Now().UTC(),
				LastError: fmt.Errorf("push: run exceeded %s watchdog threshold", watchdogThreshold)})
		}
	}()

	entries, err := c.LocalChangeLog.GetUnsyncedChanges(ctx)
	if err != nil {
		return Result{}, err
	}
	if onlyFilter {
		filtered := entries[:0]
		for _, en := range entries {
			if en.TableName == tableFilter {
				filtered = append(filtered, en)
			}
		}
		entries = filtered
	}
	if len(entries) == 0 {
		return Result{}, nil
	}

	reachable, err := networkReachable(c.NetPath)
	if err != nil || !reachable {
		e.publish(c.ID, events.StateOfflinePending, len(entries), err)
		return Result{}, errs.ErrNetworkUnavailable
	}

	var result Result
	var attempt int
	for {
		attempt++
		result, err = e.attemptPush(ctx, c, entries)
		if err == nil {
			return result, nil
		}
		if !errs.IsTransient(err) || attempt > maxPushLockRetries {
			return Result{}, err
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(pushLockRetryBaseDelay * time.Duration(attempt)):
		}
	}
}

func (e *Engine) attemptPush(ctx context.Context, c Country, entries []changelog.Entry) (Result, error) {
	netTimeout := c.NetOpenTimeout
	if netTimeout <= 0 {
		netTimeout = 20 * time.Second
	}
	openCtx, cancel := context.WithTimeout(ctx, netTimeout)
	defer cancel()

	netConn, err := sqlitex.Open(c.NetPath)
	if err != nil {
		return Result{}, fmt.Errorf("push: open network store: %w", err)
	}
	defer netConn.Close()

	if err := ensureReconciliationTable(openCtx, netConn, c.ReconciliationDDL); err != nil {
		return Result{}, err
	}

	schema, err := readNetSchema(openCtx, netConn, model.TableReconciliation)
	if err != nil {
		return Result{}, err
	}

	tx, err := netConn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return Result{}, fmt.Errorf("push: begin network transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	var result Result
	var toMarkSynced []int64

	for _, entry := range entries {
		applied, err := e.applyEntry(ctx, tx, c, schema, entry)
		if err != nil {
			return Result{}, err
		}
		result.Processed++
		if applied {
			toMarkSynced = append(toMarkSynced, entry.ChangeID)
			result.Synced++
		} else {
			result.Skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("push: commit network transaction: %w", err)
	}
	committed = true

	if len(toMarkSynced) > 0 {
		if err := c.LocalChangeLog.MarkChangesAsSynced(ctx, toMarkSynced); err != nil {
			return Result{}, err
		}
	}

	return result, nil
}

// applyEntry applies one change-log entry within the network transaction.
// It returns applied=false when the entry should be left unsynced (missing
// local row for INSERT/UPDATE), per the spec's "silently skipped" clause.
func (e *Engine) applyEntry(ctx context.Context, tx *sql.Tx, c Country, schema *netSchema, entry changelog.Entry) (applied bool, err error) {
	switch {
	case entry.Operation == "DELETE":
		return true, e.applyDelete(ctx, tx, schema, entry.RecordID)
	default:
		cols, ok := changelog.DecodeUpdateColumns(entry.Operation)
		isUpdate := entry.Operation != "INSERT"
		if entry.Operation == "INSERT" {
			cols = nil
		} else if !ok {
			return false, fmt.Errorf("push: unrecognized operation %q", entry.Operation)
		}

		row, found, err := readLocalRow(ctx, c.LocalConn, schema, entry.RecordID)
		if err != nil {
			return false, err
		}
		if !found {
			return false, nil // silently skipped, not synced
		}

		existsOnNetwork, err := networkRowExists(ctx, tx, schema, entry.RecordID)
		if err != nil {
			return false, err
		}

		if existsOnNetwork {
			if err := e.applyUpdate(ctx, tx, c, schema, row, cols, isUpdate); err != nil {
				return false, err
			}
		} else {
			if err := e.applyInsert(ctx, tx, c, schema, row); err != nil {
				return false, err
			}
		}
		return true, nil
	}
}

func (e *Engine) applyDelete(ctx context.Context, tx *sql.Tx, schema *netSchema, recordID string) error {
	if schema.hasIsDeleted || schema.hasDeleteDate {
		var sets []string
		var args []any
		if schema.hasIsDeleted {
			sets = append(sets, quoteIdent("IsDeleted")+" = ?")
			args = append(args, true)
		}
		if schema.hasDeleteDate {
			sets = append(sets, quoteIdent("DeleteDate")+" = ?")
			args = append(args, time.Now().UTC().Format("2006-01-02 15:04:05.000"))
		}
		if schema.hasLastModified {
			sets = append(sets, quoteIdent("LastModified")+" = ?")
			args = append(args, time.Now().UTC().Format("2006-01-02 15:04:05.000"))
		}
		args = append(args, recordID)
		q := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = ?`, quoteIdent(schema.table), strings.Join(sets, ", "), quoteIdent(schema.pk))
		_, err := tx.ExecContext(ctx, q, args...)
		return err
	}
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, quoteIdent(schema.table), quoteIdent(schema.pk)), recordID)
	return err
}

func (e *Engine) applyUpdate(ctx context.Context, tx *sql.Tx, c Country, schema *netSchema, row model.Entity, changedCols []string, isPartial bool) error {
	cols := changedCols
	if !isPartial || len(cols) == 0 {
		cols = row.ColumnNames()
	}
	var sets []string
	var args []any
	for _, col := range cols {
		if strings.EqualFold(col, schema.pk) || !schema.hasColumn(col) {
			continue
		}
		sets = append(sets, quoteIdent(col)+" = ?")
		args = append(args, row.Get(col).Raw())
	}
	if schema.hasVersion {
		sets = append(sets, quoteIdent(model.ColVersion)+" = "+quoteIdent(model.ColVersion)+" + 1")
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, row.PK())
	q := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = ?`, quoteIdent(schema.table), strings.Join(sets, ", "), quoteIdent(schema.pk))
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("push: update network row: %w", err)
	}

	mirrorVersionLocally(ctx, c.LocalConn, schema, row.PK())
	return nil
}

func (e *Engine) applyInsert(ctx context.Context, tx *sql.Tx, c Country, schema *netSchema, row model.Entity) error {
	cols := row.ColumnNames()
	var quoted, placeholders []string
	var args []any
	hasVersionValue := false
	for _, col := range cols {
		if !schema.hasColumn(col) {
			continue
		}
		if strings.EqualFold(col, model.ColVersion) {
			hasVersionValue = !row.Get(col).IsNull()
		}
		quoted = append(quoted, quoteIdent(col))
		placeholders = append(placeholders, "?")
		args = append(args, row.Get(col).Raw())
	}
	if schema.hasVersion && !hasVersionValue {
		quoted = append(quoted, quoteIdent(model.ColVersion))
		placeholders = append(placeholders, "?")
		args = append(args, int64(1))
	}
	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, quoteIdent(schema.table), strings.Join(quoted, ","), strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("push: insert network row: %w", err)
	}

	if schema.hasVersion && !hasVersionValue {
		mirrorVersionSetLocally(ctx, c.LocalConn, schema, row.PK(), 1)
	}
	return nil
}

func (e *Engine) publish(countryID string, state events.SyncState, pending int, err error) {
	e.events.Publish(events.SyncStateChanged{
		CountryID: countryID, State: state, PendingCount: pending, LastError: err, TimestampUTC: time.Now().UTC(),
	})
}

func networkReachable(path string) (bool, error) {
	return pathExists(path)
}
