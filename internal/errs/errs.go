// Package errs defines the sentinel error taxonomy shared across the
// reconciliation core, per the error handling design.
package errs

import (
	"errors"
	"strings"
)

// Sentinel error kinds. Callers branch on these with errors.Is.
var (
	// ErrConfigMissing indicates a required parameter-table key was absent.
	// Fatal to the affected operation.
	ErrConfigMissing = errors.New("reconcile: required config key missing")

	// ErrNetworkUnavailable indicates the shared store path is unreachable
	// or the file is missing. Push/pull treat this as OfflinePending.
	ErrNetworkUnavailable = errors.New("reconcile: network store unavailable")

	// ErrLockBusy indicates the global lock could not be acquired because
	// another holder is active; callers may retry later.
	ErrLockBusy = errors.New("reconcile: global lock busy")

	// ErrLockTimeout indicates the acquire wait budget elapsed.
	ErrLockTimeout = errors.New("reconcile: global lock acquire timed out")

	// ErrConflict indicates a row-level conflict was detected via
	// (LastModified, Version) comparison.
	ErrConflict = errors.New("reconcile: row conflict detected")

	// ErrTransient indicates an Access/Jet-style lock contention code or
	// message was observed; the caller should retry with backoff.
	ErrTransient = errors.New("reconcile: transient store contention")

	// ErrFatal indicates a schema mismatch beyond auto-migration, a
	// corrupt file, or some other unrecoverable condition.
	ErrFatal = errors.New("reconcile: fatal store error")
)

// transientCodes are the Access/Jet lock-contention error codes called out
// by the spec. Real Jet/OLE errors never occur against SQLite, but push and
// the batch applier check textual driver errors against this table so the
// retry policy stays expressible in the same terms as the source system.
var transientCodes = []string{"3218", "3260", "3050", "3188", "3197"}

var transientSubstrings = []string{"locked", "verrou", "sharing violation"}

// IsTransient reports whether err looks like one of the known Access/Jet
// lock-contention conditions: one of the numeric codes, or a message
// containing "locked", "verrou", or "sharing violation".
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, code := range transientCodes {
		if strings.Contains(msg, code) {
			return true
		}
	}
	for _, needle := range transientSubstrings {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
