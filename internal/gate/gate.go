// Package gate implements the hard admission-gate evaluator: a pure
// function from snapshot-candidate state to (allowed, ordered reason
// codes, metric map). It performs no I/O and reads no clock — every input
// it needs is a parameter, per SPEC_FULL.md §4.5 and §9.
package gate

import (
	"math"

	"github.com/kestrelquant/silentobserver/internal/command"
	"github.com/kestrelquant/silentobserver/internal/event"
)

// Reason codes, in the fixed evaluation order of spec.md §4.5. All gates
// are evaluated every cycle; no short-circuit, every failing reason is
// reported.
const (
	ReasonArmOff                 = "ARM_OFF"
	ReasonIntentFlat             = "INTENT_FLAT"
	ReasonOutsideOperatingWindow = "OUTSIDE_OPERATING_WINDOW"
	ReasonSessionBreak           = "SESSION_BREAK"
	ReasonFeedDisconnected       = "FEED_DISCONNECTED"
	ReasonMDNotRealtime          = "MD_NOT_REALTIME"
	ReasonNoContract             = "NO_CONTRACT"
	ReasonStaleData              = "STALE_DATA"
	ReasonSpreadUnavailable      = "SPREAD_UNAVAILABLE"
	ReasonSpreadWide             = "SPREAD_WIDE"
	ReasonEngineDegraded         = "ENGINE_DEGRADED"
)

// Thresholds carries the default-tunable gate parameters. See
// DefaultThresholds for spec.md §4.5/§6's authoritative defaults.
type Thresholds struct {
	StaleThresholdMS      int64
	FeedHeartbeatTimeoutMS int64
	MaxSpreadTicks        int64
	CycleTargetMS         int64
	CycleOverrunThresholdMS int64
}

// DefaultThresholds returns the authoritative defaults named in spec.md
// §4.5/§6. The source material's alternate threshold set (STALE_THRESHOLD_MS
// =5000, MAX_SPREAD_TICKS=4) is documented as a non-chosen alternative —
// see DESIGN.md's Open Question entry.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StaleThresholdMS:        2000,
		FeedHeartbeatTimeoutMS:  5000,
		MaxSpreadTicks:          8,
		CycleTargetMS:           100,
		CycleOverrunThresholdMS: 500,
	}
}

// Input is every piece of snapshot-candidate state the gate set reads.
type Input struct {
	NowMonoNS uint64

	Connected bool
	MDMode    event.MDMode

	HasConID bool

	QuotePresent         bool
	StalenessMS          int64
	LastQuoteEventMonoNS uint64

	HasBid, HasAsk bool
	Bid, Ask       float64
	TickSize       float64

	InOperatingWindow bool
	IsBreakWindow     bool

	EngineDegraded bool

	Intent command.Intent
	Arm    bool

	CycleMS float64
}

// Result is the gate evaluator's output.
type Result struct {
	Allowed     bool
	ReasonCodes []string
	Metrics     map[string]any

	// SpreadTicks/HasSpread mirror the derivation the snapshot package also
	// needs (invariant 4/7 of spec.md §3); exposing them here keeps the
	// ceiling computation in exactly one place.
	SpreadTicks int64
	HasSpread   bool
}

// Evaluate runs the fixed-order gate set over in and returns every failing
// reason code, in evaluation order, plus the always-present metric map.
func Evaluate(in Input, th Thresholds) Result {
	var reasons []string

	if !in.Arm {
		reasons = append(reasons, ReasonArmOff)
	}
	if in.Intent == command.IntentFlat {
		reasons = append(reasons, ReasonIntentFlat)
	}
	if !in.InOperatingWindow {
		reasons = append(reasons, ReasonOutsideOperatingWindow)
	}
	if in.IsBreakWindow {
		reasons = append(reasons, ReasonSessionBreak)
	}
	if !in.Connected {
		reasons = append(reasons, ReasonFeedDisconnected)
	}
	if in.MDMode != event.MDRealtime {
		reasons = append(reasons, ReasonMDNotRealtime)
	}
	if !in.HasConID {
		reasons = append(reasons, ReasonNoContract)
	}

	heartbeatAge := int64(-1)
	if in.NowMonoNS >= in.LastQuoteEventMonoNS {
		heartbeatAge = int64(in.NowMonoNS - in.LastQuoteEventMonoNS)
	}
	heartbeatAgeMS := heartbeatAge / 1_000_000
	stale := !in.QuotePresent ||
		in.StalenessMS > th.StaleThresholdMS ||
		(heartbeatAge >= 0 && heartbeatAgeMS > th.FeedHeartbeatTimeoutMS)
	if stale {
		reasons = append(reasons, ReasonStaleData)
	}

	spreadUnavailable := !in.HasBid || !in.HasAsk || in.Bid <= 0 || in.Ask <= 0 || in.Ask <= in.Bid
	var spreadTicks int64
	hasSpread := false
	if spreadUnavailable {
		reasons = append(reasons, ReasonSpreadUnavailable)
	} else {
		hasSpread = true
		spreadTicks = int64(math.Ceil((in.Ask - in.Bid) / in.TickSize))
		if spreadTicks > th.MaxSpreadTicks {
			reasons = append(reasons, ReasonSpreadWide)
		}
	}

	if in.EngineDegraded {
		reasons = append(reasons, ReasonEngineDegraded)
	}

	metrics := map[string]any{
		"staleness_ms":        nullableInt64(in.QuotePresent, in.StalenessMS),
		"spread_ticks":        nullableInt64(hasSpread, spreadTicks),
		"md_mode":             in.MDMode.String(),
		"connected":           in.Connected,
		"in_operating_window": in.InOperatingWindow,
		"is_break_window":     in.IsBreakWindow,
		"engine_degraded":     in.EngineDegraded,
		"cycle_ms":            in.CycleMS,
	}

	return Result{
		Allowed:     len(reasons) == 0,
		ReasonCodes: reasons,
		Metrics:     metrics,
		SpreadTicks: spreadTicks,
		HasSpread:   hasSpread,
	}
}

func nullableInt64(present bool, v int64) any {
	if !present {
		return nil
	}
	return v
}
