// Package globallock implements the cross-process Global Lock Manager: a
// leased row in the Control store's SyncLocks table, with heartbeat
// renewal, stale-holder purging, in-process re-entrancy, and a process-wide
// serialization gate in front of every acquire attempt.
package globallock

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ambre-sync/reconcile-core/internal/errs"
)

const schema = `
CREATE TABLE IF NOT EXISTS SyncLocks (
	LockID       TEXT PRIMARY KEY,
	CountryID    TEXT NOT NULL,
	Reason       TEXT,
	CreatedAt    TEXT NOT NULL,
	ExpiresAt    TEXT NOT NULL,
	MachineName  TEXT NOT NULL,
	ProcessId    INTEGER NOT NULL,
	SyncStatus   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_synclocks_country ON SyncLocks(CountryID);
`

const (
	minLeaseTTL        = 30 * time.Second
	defaultLeaseTTL     = 180 * time.Second
	backoffInterval     = 300 * time.Millisecond
	minHeartbeatPeriod  = 15 * time.Second
	maxHeartbeatPeriod  = 120 * time.Second
)

// processGate is the single-permit gate every Manager in the process
// acquires through; it is intentionally the one legitimate global in the
// design (see SPEC_FULL.md §9).
var processGate = func() chan struct{} {
	g := make(chan struct{}, 1)
	g <- struct{}{}
	return g
}()

// Manager coordinates global-lock acquisition for one process against one
// Control store connection. Every Manager shares processGate, so acquire
// attempts are serialized across the whole process.
type Manager struct {
	conn        *sql.DB
	machineName string
	pid         int

	gate chan struct{} // single-permit process-wide serialization
}

// New constructs a Manager over an already-open Control store connection,
// ensuring the SyncLocks schema exists.
func New(conn *sql.DB) (*Manager, error) {
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("globallock: create schema: %w", err)
	}
	hostname, _ := os.Hostname()
	return &Manager{conn: conn, machineName: hostname, pid: os.Getpid(), gate: processGate}, nil
}

// Handle represents an acquired (or re-entrant no-op) lock. Release is
// idempotent and safe to call multiple times.
type Handle struct {
	mgr      *Manager
	lockID   string
	reentrant bool

	heartbeatCancel context.CancelFunc
	heartbeatDone   chan struct{}

	releaseOnce sync.Once
}

// Acquire attempts to acquire the global lock for countryID, honoring the
// process-wide gate, purging expired/stale rows first, waiting up to
// waitBudget for a foreign holder to release, and granting re-entrancy if
// this process already holds the lock for this country.
func (m *Manager) Acquire(ctx context.Context, countryID, reason string, waitBudget, leaseTTL time.Duration) (*Handle, error) {
	if leaseTTL < minLeaseTTL {
		leaseTTL = defaultLeaseTTL
	}

	select {
	case <-m.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	gateHeld := true
	releaseGate := func() {
		if gateHeld {
			m.gate <- struct{}{}
			gateHeld = false
		}
	}

	deadline := time.Now().Add(waitBudget)
	for {
		if err := m.purgeExpiredAndStale(ctx, countryID); err != nil {
			releaseGate()
			return nil, err
		}

		active, err := m.activeForeignRow(ctx, countryID)
		if err != nil {
			releaseGate()
			return nil, err
		}
		if active == nil {
			break
		}
		if m.isOwnRow(active) {
			// Re-entrancy: same (MachineName, ProcessId) already holds it.
			releaseGate()
			return &Handle{mgr: m, lockID: active.lockID, reentrant: true}, nil
		}
		if time.Now().After(deadline) {
			releaseGate()
			return nil, errs.ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			releaseGate()
			return nil, ctx.Err()
		case <-time.After(backoffInterval):
		}
	}

	lockID := uuid.NewString()
	now := time.Now().UTC()
	expires := now.Add(leaseTTL)
	_, err := m.conn.ExecContext(ctx, `INSERT INTO SyncLocks (LockID, CountryID, Reason, CreatedAt, ExpiresAt, MachineName, ProcessId, SyncStatus) VALUES (?, ?, ?, ?, ?, ?, ?, 'Acquired')`,
		lockID, countryID, reason, now.Format(time.RFC3339Nano), expires.Format(time.RFC3339Nano), m.machineName, m.pid)
	if err != nil {
		releaseGate()
		return nil, fmt.Errorf("globallock: insert lock row: %w", err)
	}

	hbCtx, cancel := context.WithCancel(context.Background())
	h := &Handle{mgr: m, lockID: lockID, heartbeatCancel: cancel, heartbeatDone: make(chan struct{})}
	period := leaseTTL / 2
	if period < minHeartbeatPeriod {
		period = minHeartbeatPeriod
	}
	if period > maxHeartbeatPeriod {
		period = maxHeartbeatPeriod
	}
	go m.heartbeat(hbCtx, h, leaseTTL, period)

	// The process-wide gate is released once the DB row secures the lock;
	// it only needs to serialize the acquisition race itself.
	releaseGate()
	return h, nil
}

func (m *Manager) heartbeat(ctx context.Context, h *Handle, leaseTTL, period time.Duration) {
	defer close(h.heartbeatDone)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expires := time.Now().UTC().Add(leaseTTL)
			// Non-overlapping: a single goroutine per handle, never started
			// again once release has canceled ctx. Errors are swallowed —
			// heartbeats never crash the caller; a missed renewal simply
			// risks the lease expiring, which is the TTL safety net.
			m.conn.ExecContext(ctx, `UPDATE SyncLocks SET ExpiresAt = ? WHERE LockID = ?`, expires.Format(time.RFC3339Nano), h.lockID)
		}
	}
}

// Release deletes the lock row (unless this handle was a re-entrant no-op,
// in which case releasing it is a no-op too) and stops the heartbeat.
// Idempotent.
func (h *Handle) Release(ctx context.Context) error {
	var err error
	h.releaseOnce.Do(func() {
		if h.heartbeatCancel != nil {
			h.heartbeatCancel()
			<-h.heartbeatDone
		}
		if h.reentrant {
			return
		}
		_, err = h.mgr.conn.ExecContext(ctx, `DELETE FROM SyncLocks WHERE LockID = ?`, h.lockID)
	})
	return err
}

type lockRow struct {
	lockID      string
	machineName string
	pid         int
	expiresAt   time.Time
}

func (m *Manager) purgeExpiredAndStale(ctx context.Context, countryID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := m.conn.ExecContext(ctx, `DELETE FROM SyncLocks WHERE CountryID = ? AND ExpiresAt < ?`, countryID, now); err != nil {
		return fmt.Errorf("globallock: purge expired: %w", err)
	}

	rows, err := m.conn.QueryContext(ctx, `SELECT LockID, MachineName, ProcessId FROM SyncLocks WHERE CountryID = ? AND MachineName = ?`, countryID, m.machineName)
	if err != nil {
		return fmt.Errorf("globallock: scan self rows: %w", err)
	}
	var stale []string
	for rows.Next() {
		var lockID, machine string
		var pid int
		if err := rows.Scan(&lockID, &machine, &pid); err != nil {
			rows.Close()
			return err
		}
		if pid != m.pid && !isProcessAlive(pid) {
			stale = append(stale, lockID)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, id := range stale {
		if _, err := m.conn.ExecContext(ctx, `DELETE FROM SyncLocks WHERE LockID = ?`, id); err != nil {
			return fmt.Errorf("globallock: purge stale holder: %w", err)
		}
	}
	return nil
}

func (m *Manager) activeForeignRow(ctx context.Context, countryID string) (*lockRow, error) {
	rows, err := m.conn.QueryContext(ctx, `SELECT LockID, MachineName, ProcessId, ExpiresAt FROM SyncLocks WHERE CountryID = ? ORDER BY CreatedAt ASC LIMIT 1`, countryID)
	if err != nil {
		return nil, fmt.Errorf("globallock: query active row: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var r lockRow
	var expiresAt string
	if err := rows.Scan(&r.lockID, &r.machineName, &r.pid, &expiresAt); err != nil {
		return nil, fmt.Errorf("globallock: scan active row: %w", err)
	}
	r.expiresAt, _ = time.Parse(time.RFC3339Nano, expiresAt)
	return &r, nil
}

func (m *Manager) isOwnRow(r *lockRow) bool {
	return r.machineName == m.machineName && r.pid == m.pid
}

// IsGlobalLockActiveByOthers reports whether a non-expired SyncLocks row
// exists for countryID whose (MachineName, ProcessId) differs from this
// process.
func (m *Manager) IsGlobalLockActiveByOthers(ctx context.Context, countryID string) (bool, error) {
	if err := m.purgeExpiredAndStale(ctx, countryID); err != nil {
		return false, err
	}
	active, err := m.activeForeignRow(ctx, countryID)
	if err != nil {
		return false, err
	}
	if active == nil {
		return false, nil
	}
	return !m.isOwnRow(active), nil
}
