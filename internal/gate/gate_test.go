package gate

import (
	"reflect"
	"testing"

	"github.com/kestrelquant/silentobserver/internal/command"
	"github.com/kestrelquant/silentobserver/internal/event"
)

// These cases are the literal end-to-end scenarios of spec.md §8.

func TestArmOffAllGood(t *testing.T) {
	in := Input{
		NowMonoNS:            1_000_000_000,
		Connected:            true,
		MDMode:               event.MDRealtime,
		HasConID:             true,
		QuotePresent:         true,
		StalenessMS:          0,
		LastQuoteEventMonoNS: 1_000_000_000,
		HasBid:               true,
		HasAsk:                true,
		Bid:                  18499.75,
		Ask:                  18500.00,
		TickSize:             0.25,
		InOperatingWindow:    true,
		IsBreakWindow:        false,
		Intent:               command.IntentLong,
		Arm:                  false,
	}
	r := Evaluate(in, DefaultThresholds())
	if r.Allowed {
		t.Fatalf("expected not allowed")
	}
	if !reflect.DeepEqual(r.ReasonCodes, []string{ReasonArmOff}) {
		t.Fatalf("expected [ARM_OFF], got %v", r.ReasonCodes)
	}
	if r.SpreadTicks != 1 {
		t.Fatalf("expected spread_ticks=1, got %d", r.SpreadTicks)
	}
}

func TestSpreadWide(t *testing.T) {
	th := DefaultThresholds()
	th.MaxSpreadTicks = 4
	in := Input{
		NowMonoNS:            1_000_000_000,
		Connected:            true,
		MDMode:               event.MDRealtime,
		HasConID:             true,
		QuotePresent:         true,
		LastQuoteEventMonoNS: 1_000_000_000,
		HasBid:               true,
		HasAsk:                true,
		Bid:                  18499.00,
		Ask:                  18502.50,
		TickSize:             0.25,
		InOperatingWindow:    true,
		Intent:               command.IntentLong,
		Arm:                  true,
	}
	r := Evaluate(in, th)
	if r.Allowed {
		t.Fatalf("expected not allowed")
	}
	if !reflect.DeepEqual(r.ReasonCodes, []string{ReasonSpreadWide}) {
		t.Fatalf("expected [SPREAD_WIDE], got %v", r.ReasonCodes)
	}
	if r.SpreadTicks != 14 {
		t.Fatalf("expected spread_ticks=14, got %d", r.SpreadTicks)
	}
}

func TestStaleAndDisconnected(t *testing.T) {
	th := DefaultThresholds()
	const tNS = uint64(0)
	const nowNS = uint64(7_000_000_000) // T+7s
	in := Input{
		NowMonoNS:            nowNS,
		Connected:            false,
		MDMode:               event.MDNone, // disconnect forces MDNone, per spec's resolved open question
		HasConID:             true,
		QuotePresent:         true,
		StalenessMS:          7000,
		LastQuoteEventMonoNS: tNS,
		HasBid:               true,
		HasAsk:                true,
		Bid:                  100,
		Ask:                  100.25,
		TickSize:             0.25,
		InOperatingWindow:    true,
		Intent:               command.IntentLong,
		Arm:                  true,
	}
	r := Evaluate(in, th)
	want := []string{ReasonFeedDisconnected, ReasonMDNotRealtime, ReasonStaleData}
	if !reflect.DeepEqual(r.ReasonCodes, want) {
		t.Fatalf("expected %v, got %v", want, r.ReasonCodes)
	}
}

func TestOutsideWindowAndBreak(t *testing.T) {
	in := Input{
		NowMonoNS:            1,
		Connected:            true,
		MDMode:               event.MDRealtime,
		HasConID:             true,
		QuotePresent:         true,
		LastQuoteEventMonoNS: 1,
		HasBid:               true,
		HasAsk:                true,
		Bid:                  100,
		Ask:                  100.25,
		TickSize:             0.25,
		InOperatingWindow:    false, // local 17:30, default op-window ends 16:00
		IsBreakWindow:        true,
		Intent:               command.IntentLong,
		Arm:                  true,
	}
	r := Evaluate(in, DefaultThresholds())
	hasOutside, hasBreak := false, false
	for _, c := range r.ReasonCodes {
		if c == ReasonOutsideOperatingWindow {
			hasOutside = true
		}
		if c == ReasonSessionBreak {
			hasBreak = true
		}
	}
	if !hasOutside || !hasBreak {
		t.Fatalf("expected both OUTSIDE_OPERATING_WINDOW and SESSION_BREAK, got %v", r.ReasonCodes)
	}
}

func TestCleanCycleAllowed(t *testing.T) {
	in := Input{
		NowMonoNS:            1_000_000_000,
		Connected:            true,
		MDMode:               event.MDRealtime,
		HasConID:             true,
		QuotePresent:         true,
		StalenessMS:          0,
		LastQuoteEventMonoNS: 1_000_000_000,
		HasBid:               true,
		HasAsk:                true,
		Bid:                  18499.75,
		Ask:                  18500.00,
		TickSize:             0.25,
		InOperatingWindow:    true,
		IsBreakWindow:        false,
		Intent:               command.IntentLong,
		Arm:                  true,
	}
	r := Evaluate(in, DefaultThresholds())
	if !r.Allowed {
		t.Fatalf("expected allowed, got reasons %v", r.ReasonCodes)
	}
	if len(r.ReasonCodes) != 0 {
		t.Fatalf("expected no reasons, got %v", r.ReasonCodes)
	}
}

func TestAllowedIffReasonCodesEmpty(t *testing.T) {
	cases := []Input{
		{Arm: false, Intent: command.IntentLong},
		{Arm: true, Intent: command.IntentFlat},
		{Arm: true, Intent: command.IntentLong, Connected: true, MDMode: event.MDRealtime, HasConID: true, InOperatingWindow: true, QuotePresent: true, HasBid: true, HasAsk: true, Bid: 1, Ask: 1.25, TickSize: 0.25, LastQuoteEventMonoNS: 0, NowMonoNS: 0},
	}
	for i, in := range cases {
		r := Evaluate(in, DefaultThresholds())
		if r.Allowed != (len(r.ReasonCodes) == 0) {
			t.Fatalf("case %d: allowed=%v but len(reasons)=%d", i, r.Allowed, len(r.ReasonCodes))
		}
	}
}

func TestGateMetricsAlwaysHasAllKeys(t *testing.T) {
	r := Evaluate(Input{}, DefaultThresholds())
	want := []string{"staleness_ms", "spread_ticks", "md_mode", "connected", "in_operating_window", "is_break_window", "engine_degraded", "cycle_ms"}
	for _, k := range want {
		if _, ok := r.Metrics[k]; !ok {
			t.Fatalf("expected gate_metrics to contain key %q", k)
		}
	}
}

func TestReasonCodesAreSubsequenceOfFixedOrder(t *testing.T) {
	order := []string{
		ReasonArmOff, ReasonIntentFlat, ReasonOutsideOperatingWindow, ReasonSessionBreak,
		ReasonFeedDisconnected, ReasonMDNotRealtime, ReasonNoContract, ReasonStaleData,
		ReasonSpreadUnavailable, ReasonSpreadWide, ReasonEngineDegraded,
	}
	indexOf := make(map[string]int, len(order))
	for i, r := range order {
		indexOf[r] = i
	}

	r := Evaluate(Input{EngineDegraded: true}, DefaultThresholds())
	last := -1
	for _, code := range r.ReasonCodes {
		idx, ok := indexOf[code]
		if !ok {
			t.Fatalf("unknown reason code %q", code)
		}
		if idx <= last {
			t.Fatalf("reason codes out of fixed order: %v", r.ReasonCodes)
		}
		last = idx
	}
}
