// Package snapshot defines the immutable, nested value object the engine
// publishes once per cycle, and the versioned schema constant it carries.
// Every sub-structure is copied by value, so cloning a Snapshot is cheap.
// A copy shares its slices, its gate-metrics map and its ConID pointer with
// the original; none of them is mutated after publication.
package snapshot

import "github.com/kestrelquant/silentobserver/internal/event"

// SchemaVersion is the snapshot wire-schema identity. A breaking field
// change requires bumping this string, per SPEC_FULL.md §6.
const SchemaVersion = "snapshot.v1"

// Instrument identifies the single instrument this run observes.
type Instrument struct {
	Symbol      string
	ContractKey string // "SYMBOL.YYYYMM"
	ConID       *int64
	TickSize    float64
}

// Feed describes the current connectivity state of the market-data feed.
type Feed struct {
	Connected              bool
	MDMode                 event.MDMode
	Degraded               bool
	StatusReasonCodes      []string
	LastStatusChangeMonoNS uint64
}

// Liveness tracks the age of the most recent observations.
type Liveness struct {
	LastAnyEventMonoNS   uint64
	LastQuoteEventMonoNS uint64
	QuotesReceivedCount  uint64
}

// Quote is the current top-of-book observation. All fields are optional
// together: either every Has* flag relevant to a pair is set, or none are.
type Quote struct {
	Present bool

	Bid, Ask float64
	HasBid   bool
	HasAsk   bool

	Last    float64
	HasLast bool

	BidSize    uint64
	HasBidSize bool
	AskSize    uint64
	HasAskSize bool

	RecvMonoNS uint64
	RecvUnixMS uint64

	ExchUnixMS    uint64
	HasExchUnixMS bool

	// Derived fields (invariants 4-5, 7 of spec.md §3).
	StalenessMS   int64
	HasStaleness  bool
	SpreadTicks   int64
	HasSpread     bool
}

// Session carries the operating-window/break-window/session-date
// derivation for the cycle-start instant.
type Session struct {
	InOperatingWindow bool
	IsBreakWindow     bool
	SessionDateISO    string
}

// Controls carries the last-applied command state.
type Controls struct {
	Intent        string // command.Intent.String()
	Arm           bool
	LastCmdID     uint64
	LastCmdTSUnixMS uint64
}

// Loop carries cycle-timing health.
type Loop struct {
	CycleMS            float64
	CycleOverrun       bool
	EngineDegraded     bool
	LastCycleStartMonoNS uint64
}

// Gates carries the admission decision.
type Gates struct {
	Allowed     bool
	ReasonCodes []string
	Metrics     map[string]any
}

// Snapshot is the complete, immutable view of engine state published once
// per cycle. Readers must treat it as read-only; nothing about it is ever
// mutated after DataHub.Publish returns.
type Snapshot struct {
	SchemaVersion   string
	AppVersion      string
	ConfigHash      string
	RunID           string
	RunStartTSUnixMS uint64
	SnapshotID      uint64
	CycleCount      uint64
	TSUnixMS        uint64
	TSMonoNS        uint64

	Instrument Instrument
	Feed       Feed
	Liveness   Liveness
	Quote      Quote
	Session    Session
	Controls   Controls
	Loop       Loop
	Gates      Gates

	// Mirrors: Ready/ReadyReasons must always equal Gates.Allowed/
	// Gates.ReasonCodes (invariant 3, spec.md §3).
	Ready        bool
	ReadyReasons []string
}

// NewMirrored returns s with Ready/ReadyReasons set to mirror Gates, as
// required by invariant 3. Callers should always construct a Snapshot
// through this function rather than setting the mirror fields by hand.
func NewMirrored(s Snapshot) Snapshot {
	s.Ready = s.Gates.Allowed
	s.ReadyReasons = s.Gates.ReasonCodes
	return s
}
