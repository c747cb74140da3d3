// Package events defines the notifications the core emits to an embedding
// UI layer. The core never renders anything itself; it only publishes
// state transitions.
package events

import "time"

// SyncState is the coarse sync status reported to the UI layer.
type SyncState string

const (
	StateUpToDate       SyncState = "UpToDate"
	StateSyncInProgress SyncState = "SyncInProgress"
	StateOfflinePending SyncState = "OfflinePending"
	StateError          SyncState = "Error"
)

// SyncStateChanged is published by the Push Engine when a country's push
// reaches a new sync status; the Pull Engine and the Sync Scheduler
// publish no events.
type SyncStateChanged struct {
	CountryID    string
	State        SyncState
	PendingCount int
	LastError    error
	TimestampUTC time.Time
}

// Sink is the narrow publish contract the core depends on; an embedding UI
// supplies an implementation (e.g. a channel writer or an in-memory log).
type Sink interface {
	Publish(SyncStateChanged)
}

// NopSink discards every event; the default when no UI is attached.
type NopSink struct{}

// Publish implements Sink.
func (NopSink) Publish(SyncStateChanged) {}

// ChanSink publishes events onto a buffered channel, non-blocking: events
// are dropped rather than blocking the caller if the channel is full, since
// a UI that cannot keep up should not stall synchronization.
type ChanSink chan SyncStateChanged

// Publish implements Sink.
func (c ChanSink) Publish(e SyncStateChanged) {
	select {
	case c <- e:
	default:
	}
}
