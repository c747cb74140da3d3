// Package sqlitex opens local and network SQLite files with the pragmas
// required for safe, cross-process single-writer access: WAL journaling, a
// busy timeout for contention, and a connection pool pinned to one
// connection so the Go pool never grows extra writers out from under the
// file locking discipline.
package sqlitex

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// BusyTimeoutMillis is the SQLite busy_timeout applied to every connection
// opened through this package, absorbing the short windows where a peer
// process or goroutine holds the write lock.
const BusyTimeoutMillis = 5000

// Open opens path with WAL mode, a busy timeout, and a single-connection
// pool. The same pragmas are applied whether path is a local or a network
// (shared-drive) file — both stores are plain SQLite files, differing only
// in where they live.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode on %s: %w", path, err)
	}
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", BusyTimeoutMillis)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout on %s: %w", path, err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")
	conn.Exec("PRAGMA foreign_keys=ON")

	return conn, nil
}

// Close performs a TRUNCATE WAL checkpoint before closing so no stale
// -wal/-shm files are left behind for the next opener (this process or a
// peer), mirroring the close discipline a shared-file database demands.
func Close(conn *sql.DB) error {
	conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return conn.Close()
}
