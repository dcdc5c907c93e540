package hub

import (
	"testing"

	"github.com/kestrelquant/silentobserver/internal/snapshot"
)

func TestLatestBeforeAnyPublishReturnsFalse(t *testing.T) {
	h := New()
	_, ok := h.Latest()
	if ok {
		t.Fatal("expected ok=false before any Publish")
	}
}

func TestPublishThenLatestRoundTrips(t *testing.T) {
	h := New()
	h.Publish(snapshot.Snapshot{SnapshotID: 42, RunID: "run-1"})

	got, ok := h.Latest()
	if !ok {
		t.Fatal("expected ok=true after Publish")
	}
	if got.SnapshotID != 42 || got.RunID != "run-1" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestLatestReflectsMostRecentPublish(t *testing.T) {
	h := New()
	h.Publish(snapshot.Snapshot{SnapshotID: 1})
	h.Publish(snapshot.Snapshot{SnapshotID: 2})

	got, _ := h.Latest()
	if got.SnapshotID != 2 {
		t.Fatalf("expected latest snapshot_id=2, got %d", got.SnapshotID)
	}
}
