// Package hub implements the single-writer, multi-reader atomic snapshot
// publisher ("DataHub" in SPEC_FULL.md §4.4). It is a thin wrapper around
// atomic.Pointer[snapshot.Snapshot] — the lock-free, whole-value-swap
// variant of the teacher's single-writer/many-reader discipline, preferred
// here over per-field locking per spec.md §9.
package hub

import (
	"sync/atomic"

	"github.com/kestrelquant/silentobserver/internal/snapshot"
)

// Hub holds the most recently published snapshot. The zero value is ready
// to use; Latest returns a zero Snapshot and false until the first Publish.
type Hub struct {
	slot atomic.Pointer[snapshot.Snapshot]
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{}
}

// Publish atomically replaces the held snapshot. Any subsequent Latest call
// observes the new value in its entirety — never a mix of old and new
// fields.
func (h *Hub) Publish(s snapshot.Snapshot) {
	h.slot.Store(&s)
}

// Latest returns the most recently published snapshot, or (zero, false) if
// nothing has been published yet. The returned value is a copy; callers
// must treat it as read-only regardless.
func (h *Hub) Latest() (snapshot.Snapshot, bool) {
	p := h.slot.Load()
	if p == nil {
		return snapshot.Snapshot{}, false
	}
	return *p, true
}
