package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/kestrelquant/silentobserver/internal/clock"
	"github.com/kestrelquant/silentobserver/internal/command"
	"github.com/kestrelquant/silentobserver/internal/event"
	"github.com/kestrelquant/silentobserver/internal/feedqueue"
	"github.com/kestrelquant/silentobserver/internal/gate"
	"github.com/kestrelquant/silentobserver/internal/hub"
	"github.com/kestrelquant/silentobserver/internal/instrument"
	"github.com/kestrelquant/silentobserver/internal/metrics"
)

func newTestEngine(t *testing.T) (*Engine, *clock.Frozen) {
	t.Helper()
	inst, err := instrument.New("ES", "ES.202512", 0.25, nil)
	if err != nil {
		t.Fatalf("instrument.New: %v", err)
	}
	sess, err := clock.NewSession(clock.DefaultOperatingWindow())
	if err != nil {
		t.Fatalf("clock.NewSession: %v", err)
	}
	frozen, err := clock.NewFrozen("America/Toronto", time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("clock.NewFrozen: %v", err)
	}

	e := New("run-1", "test", "cfg-hash", inst)
	e.InboundQueue = feedqueue.New[event.Event](64)
	e.CommandQueue = feedqueue.New[command.Command](64)
	e.Clock = frozen
	e.Session = sess
	e.Thresholds = gate.DefaultThresholds()
	e.Hub = hub.New()
	e.Metrics = metrics.New()
	return e, frozen
}

func TestSnapshotUnreadyBeforeAnyCommand(t *testing.T) {
	e, _ := newTestEngine(t)
	e.cycle()
	snap, ok := e.Hub.Latest()
	if !ok {
		t.Fatal("expected a published snapshot")
	}
	if snap.Ready {
		t.Fatalf("expected Ready=false with no arm/intent set, got true")
	}
	if snap.Ready != snap.Gates.Allowed || len(snap.ReadyReasons) != len(snap.Gates.ReasonCodes) {
		t.Fatalf("Ready/ReadyReasons must mirror Gates.Allowed/ReasonCodes")
	}
	found := false
	for _, r := range snap.ReadyReasons {
		if r == gate.ReasonArmOff {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ARM_OFF among reasons, got %v", snap.ReadyReasons)
	}
}

func TestArmAndQuoteProduceReadySnapshot(t *testing.T) {
	e, frozen := newTestEngine(t)
	// A clean cycle also needs a contract id and a local time inside the
	// default [07:00, 16:00) operating window; the fixture has neither.
	conID := int64(42)
	e.Instrument.ConID = &conID
	frozen.Set(time.Date(2026, 7, 30, 14, 0, 0, 0, time.UTC)) // 10:00 America/Toronto

	e.CommandQueue.Push(command.NewSetArm(1, frozen.UnixMS(), true))
	e.CommandQueue.Push(command.NewSetIntent(2, frozen.UnixMS(), command.IntentLong))
	e.InboundQueue.Push(event.NewStatus(event.Status{
		Connected: true,
		MDMode:    event.MDRealtime,
		MonoNS:    frozen.MonoNS(),
		UnixMS:    frozen.UnixMS(),
	}))
	e.InboundQueue.Push(event.NewQuote(event.Quote{
		Bid: 100.00, Ask: 100.25, HasBid: true, HasAsk: true,
		RecvMonoNS: frozen.MonoNS(),
		RecvUnixMS: frozen.UnixMS(),
	}))

	e.cycle()

	snap, ok := e.Hub.Latest()
	if !ok {
		t.Fatal("expected a published snapshot")
	}
	if !snap.Ready {
		t.Fatalf("expected Ready=true, got reasons %v", snap.ReadyReasons)
	}
	if snap.Quote.SpreadTicks != 1 {
		t.Fatalf("expected spread_ticks=1 (0.25/0.25), got %d", snap.Quote.SpreadTicks)
	}
	if snap.Controls.Intent != command.IntentLong.String() {
		t.Fatalf("expected intent Long, got %s", snap.Controls.Intent)
	}
}

func TestDisconnectForcesMDNone(t *testing.T) {
	e, frozen := newTestEngine(t)
	e.InboundQueue.Push(event.NewStatus(event.Status{
		Connected: false,
		MDMode:    event.MDRealtime,
		MonoNS:    frozen.MonoNS(),
		UnixMS:    frozen.UnixMS(),
	}))
	e.cycle()
	snap, _ := e.Hub.Latest()
	if snap.Feed.MDMode != event.MDNone {
		t.Fatalf("expected MDNone on disconnect, got %v", snap.Feed.MDMode)
	}
	if snap.Feed.Connected {
		t.Fatalf("expected Connected=false")
	}
}

func TestCoalescesMultipleCommandsWithinOneCycle(t *testing.T) {
	e, frozen := newTestEngine(t)
	e.CommandQueue.Push(command.NewSetIntent(1, frozen.UnixMS(), command.IntentLong))
	e.CommandQueue.Push(command.NewSetIntent(2, frozen.UnixMS(), command.IntentShort))
	e.cycle()
	snap, _ := e.Hub.Latest()
	if snap.Controls.Intent != command.IntentShort.String() {
		t.Fatalf("expected last-write-wins Short, got %s", snap.Controls.Intent)
	}
	if snap.Controls.LastCmdID != 2 {
		t.Fatalf("expected LastCmdID=2, got %d", snap.Controls.LastCmdID)
	}
}

func TestReconnectIncrementsCounter(t *testing.T) {
	e, frozen := newTestEngine(t)
	e.InboundQueue.Push(event.NewStatus(event.Status{Connected: false, MDMode: event.MDNone, MonoNS: frozen.MonoNS()}))
	e.cycle()
	e.InboundQueue.Push(event.NewStatus(event.Status{Connected: true, MDMode: event.MDRealtime, MonoNS: frozen.MonoNS()}))
	e.cycle()
	if e.Metrics.ReconnectCount.Load() != 1 {
		t.Fatalf("expected ReconnectCount=1, got %d", e.Metrics.ReconnectCount.Load())
	}
}

func TestQuoteIncrementsQuotesReceivedMetric(t *testing.T) {
	e, frozen := newTestEngine(t)
	e.InboundQueue.Push(event.NewStatus(event.Status{Connected: true, MDMode: event.MDRealtime, MonoNS: frozen.MonoNS()}))
	e.InboundQueue.Push(event.NewQuote(event.Quote{
		Bid: 100.00, Ask: 100.25, HasBid: true, HasAsk: true,
		RecvMonoNS: frozen.MonoNS(), RecvUnixMS: frozen.UnixMS(),
	}))
	e.cycle()
	if e.Metrics.QuotesReceivedCount.Load() != 1 {
		t.Fatalf("expected QuotesReceivedCount=1, got %d", e.Metrics.QuotesReceivedCount.Load())
	}
}

func TestStalenessEventsCountIncrementsOnlyWhenStaleDataReasonFires(t *testing.T) {
	e, frozen := newTestEngine(t)
	e.InboundQueue.Push(event.NewStatus(event.Status{Connected: true, MDMode: event.MDRealtime, MonoNS: frozen.MonoNS()}))
	e.InboundQueue.Push(event.NewQuote(event.Quote{
		Bid: 100.00, Ask: 100.25, HasBid: true, HasAsk: true,
		RecvMonoNS: frozen.MonoNS(), RecvUnixMS: frozen.UnixMS(),
	}))
	e.cycle()
	if e.Metrics.StalenessEventsCount.Load() != 0 {
		t.Fatalf("expected StalenessEventsCount=0 for a fresh quote, got %d", e.Metrics.StalenessEventsCount.Load())
	}

	frozen.Advance(3 * time.Second) // exceeds StaleThresholdMS=2000
	e.cycle()
	if e.Metrics.StalenessEventsCount.Load() != 1 {
		t.Fatalf("expected StalenessEventsCount=1 once STALE_DATA fires, got %d", e.Metrics.StalenessEventsCount.Load())
	}
}

func TestFeedDegradedTracksConnectedAndMDMode(t *testing.T) {
	e, frozen := newTestEngine(t)

	e.InboundQueue.Push(event.NewStatus(event.Status{Connected: true, MDMode: event.MDRealtime, MonoNS: frozen.MonoNS()}))
	e.cycle()
	if snap, _ := e.Hub.Latest(); snap.Feed.Degraded {
		t.Fatalf("expected Degraded=false when connected and MDRealtime")
	}

	e.InboundQueue.Push(event.NewStatus(event.Status{Connected: true, MDMode: event.MDDelayed, MonoNS: frozen.MonoNS()}))
	e.cycle()
	if snap, _ := e.Hub.Latest(); !snap.Feed.Degraded {
		t.Fatalf("expected Degraded=true when connected but not MDRealtime")
	}

	e.InboundQueue.Push(event.NewStatus(event.Status{Connected: false, MDMode: event.MDRealtime, MonoNS: frozen.MonoNS()}))
	e.cycle()
	if snap, _ := e.Hub.Latest(); !snap.Feed.Degraded {
		t.Fatalf("expected Degraded=true when disconnected")
	}

	e.InboundQueue.Push(event.NewStatus(event.Status{Connected: true, MDMode: event.MDRealtime, MonoNS: frozen.MonoNS()}))
	e.cycle()
	if snap, _ := e.Hub.Latest(); snap.Feed.Degraded {
		t.Fatalf("expected Degraded=false to clear once connected and MDRealtime again, got stuck true")
	}
}

func TestEngineDegradedClearsOnceCycleRecovers(t *testing.T) {
	e, _ := newTestEngine(t)

	// Simulate a prior cycle that overran (or recovered from a panic).
	e.engineDegraded = true
	e.cycle()
	snap, _ := e.Hub.Latest()
	if snap.Loop.EngineDegraded || e.engineDegraded {
		t.Fatalf("expected engine_degraded to clear on a cycle that did not itself overrun, got stuck true")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Thresholds.CycleTargetMS = 5
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	if e.State() != StateStopped {
		t.Fatalf("expected StateStopped, got %v", e.State())
	}
}
