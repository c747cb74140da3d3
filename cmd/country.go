package cmd

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ambre-sync/reconcile-core/internal/changelog"
	"github.com/ambre-sync/reconcile-core/internal/config"
	"github.com/ambre-sync/reconcile-core/internal/globallock"
	"github.com/ambre-sync/reconcile-core/internal/netstore"
	"github.com/ambre-sync/reconcile-core/internal/pull"
	"github.com/ambre-sync/reconcile-core/internal/push"
	"github.com/ambre-sync/reconcile-core/internal/sqlitex"
)

// reconciliationDDL is the template the Push Engine recreates the network
// T_Reconciliation table from when the shared file lacks it. It intersects
// only the columns the sync engines themselves depend on; an embedding
// application backed by a richer referential template directory may supply
// a fuller DDL instead by constructing push.Country directly.
const reconciliationDDL = `CREATE TABLE IF NOT EXISTS T_Reconciliation (
	ID TEXT PRIMARY KEY,
	Version INTEGER NOT NULL DEFAULT 1,
	LastModified TEXT,
	IsDeleted INTEGER NOT NULL DEFAULT 0,
	DeleteDate TEXT,
	CRC INTEGER
)`

// countryStores bundles every open connection one country's sync/lock/rules
// commands need, plus a closer that releases them in reverse-open order.
type countryStores struct {
	ID    string
	Paths *config.CountryPaths

	LocalConn *sql.DB
	ChangeLog *changelog.Store
	Control   *netstore.Store
	LockMgr   *globallock.Manager
}

func (s *countryStores) Close() {
	if s.Control != nil {
		s.Control.Close()
	}
	if s.ChangeLog != nil {
		s.ChangeLog.Close()
	}
	if s.LocalConn != nil {
		sqlitex.Close(s.LocalConn)
	}
}

// openCountryStores resolves countryID's file paths from params and opens
// the local RECONCILIATION connection, the local change log, and the
// shared network Control store (which carries the leased SyncLocks row, per
// the Global Lock Manager's "leased row in the shared Control store"
// design). Callers must Close() the result.
func openCountryStores(countryID string, params config.MapParamTable) (*countryStores, error) {
	resolver := config.NewResolver(params)
	paths, err := resolver.Resolve(countryID)
	if err != nil {
		return nil, fmt.Errorf("resolve country paths: %w", err)
	}

	localConn, err := sqlitex.Open(paths.LocalReconciliation)
	if err != nil {
		return nil, fmt.Errorf("open local reconciliation store: %w", err)
	}

	cl, err := changelog.Open(paths.LocalChangeLog)
	if err != nil {
		sqlitex.Close(localConn)
		return nil, fmt.Errorf("open local change log: %w", err)
	}

	control, err := netstore.Open(paths.NetControl)
	if err != nil {
		cl.Close()
		sqlitex.Close(localConn)
		return nil, fmt.Errorf("open network control store: %w", err)
	}

	lockMgr, err := globallock.New(control.Conn())
	if err != nil {
		control.Close()
		cl.Close()
		sqlitex.Close(localConn)
		return nil, fmt.Errorf("init global lock manager: %w", err)
	}

	return &countryStores{
		ID:        paths.Country,
		Paths:     paths,
		LocalConn: localConn,
		ChangeLog: cl,
		Control:   control,
		LockMgr:   lockMgr,
	}, nil
}

func (s *countryStores) netOpenTimeout() time.Duration {
	secs := s.Paths.NetworkOpenTimeoutSeconds
	if secs <= 0 {
		secs = 20
	}
	return time.Duration(secs) * time.Second
}

// pushCountry adapts the open stores into a push.Country.
func (s *countryStores) pushCountry() push.Country {
	return push.Country{
		ID:                s.ID,
		LocalConn:         s.LocalConn,
		LocalChangeLog:    s.ChangeLog,
		NetPath:           s.Paths.NetReconciliation,
		NetOpenTimeout:    s.netOpenTimeout(),
		LockManager:       s.LockMgr,
		ReconciliationDDL: reconciliationDDL,
	}
}

// pullCountry adapts the open stores into a pull.Country.
func (s *countryStores) pullCountry() pull.Country {
	return pull.Country{
		ID:             s.ID,
		LocalConn:      s.LocalConn,
		NetPath:        s.Paths.NetReconciliation,
		NetOpenTimeout: s.netOpenTimeout(),
		NetStore:       s.Control,
	}
}
