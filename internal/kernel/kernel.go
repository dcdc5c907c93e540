// Package kernel implements the engine cycle loop: the single goroutine
// that, ten times a second, drains inbound events and commands, derives
// session/staleness/spread state, evaluates the hard admission gates, and
// publishes one immutable snapshot to the DataHub. It never writes an
// order and never talks to a broker — it only observes and reports.
//
// The loop is grounded on the teacher's symbolRunner/stressRunner
// goroutines in cmd/feedsim/main.go: a select over ctx.Done() and a timer,
// generalized here from a fixed time.Ticker to an explicit
// sleep = max(0, target-elapsed) computation so an overrunning cycle is
// observable (loop.cycle_overrun) rather than silently coalesced by the
// ticker.
package kernel

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/kestrelquant/silentobserver/internal/clock"
	"github.com/kestrelquant/silentobserver/internal/command"
	"github.com/kestrelquant/silentobserver/internal/event"
	"github.com/kestrelquant/silentobserver/internal/feedqueue"
	"github.com/kestrelquant/silentobserver/internal/gate"
	"github.com/kestrelquant/silentobserver/internal/hub"
	"github.com/kestrelquant/silentobserver/internal/instrument"
	"github.com/kestrelquant/silentobserver/internal/metrics"
	"github.com/kestrelquant/silentobserver/internal/snapshot"
)

// State is the engine's coarse lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Idle"
	}
}

// maxDrainPerCycle bounds how many items a single cycle drains from either
// queue, so a flooded producer can never starve the other queue or the
// publish phase of a given cycle (spec.md §4.2).
const maxDrainPerCycle = 1024

// Engine owns the cycle loop. It is constructed once per run and driven by
// Run until ctx is cancelled.
type Engine struct {
	RunID      string
	AppVersion string
	ConfigHash string

	Instrument instrument.Identity

	InboundQueue *feedqueue.Queue[event.Event]
	CommandQueue *feedqueue.Queue[command.Command]

	Clock   clock.Clock
	Session *clock.Session

	Thresholds gate.Thresholds

	Hub     *hub.Hub
	Metrics *metrics.Counters

	state atomic.Int32

	runStartUnixMS uint64
	snapshotID     uint64

	// Running derived state, carried cycle to cycle.
	connected            bool
	mdMode               event.MDMode
	feedDegraded         bool
	feedStatusReasons    []string
	lastStatusChangeMono uint64
	lastAnyEventMono     uint64
	lastQuoteEventMono   uint64
	quotesReceived       uint64

	quotePresent bool
	quote        event.Quote

	intent command.Intent
	arm    bool
	lastCmdID uint64
	lastCmdTS uint64

	engineDegraded bool
}

// New constructs an Engine. Callers must set Hub, Metrics, Clock, Session,
// InboundQueue and CommandQueue before calling Run.
func New(runID, appVersion, configHash string, inst instrument.Identity) *Engine {
	return &Engine{
		RunID:      runID,
		AppVersion: appVersion,
		ConfigHash: configHash,
		Instrument: inst,
		mdMode:     event.MDUnknown,
	}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// RunStartUnixMS returns the wall-clock time Run began, for the shutdown
// summary. Valid only after Run has started.
func (e *Engine) RunStartUnixMS() uint64 {
	return e.runStartUnixMS
}

// Run drives the cycle loop until ctx is cancelled, sleeping between
// cycles to hold the configured cadence. It returns once the loop has
// fully stopped.
func (e *Engine) Run(ctx context.Context) {
	e.state.Store(int32(StateRunning))
	e.runStartUnixMS = e.Clock.UnixMS()

	target := time.Duration(e.Thresholds.CycleTargetMS) * time.Millisecond
	if target <= 0 {
		target = 100 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			e.state.Store(int32(StateStopping))
			e.state.Store(int32(StateStopped))
			return
		default:
		}

		cycleStart := time.Now()
		e.runCyclePhase("cycle", func() { e.cycle() })

		elapsed := time.Since(cycleStart)
		sleep := target - elapsed
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			e.state.Store(int32(StateStopping))
			e.state.Store(int32(StateStopped))
			return
		case <-time.After(sleep):
		}
	}
}

// runCyclePhase recovers a panic from fn, logging it and flipping
// engine_degraded rather than letting the loop goroutine die. A degraded
// engine still publishes: the gate set treats ENGINE_DEGRADED as a
// blocking reason, never as a crash.
func (e *Engine) runCyclePhase(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("kernel: recovered panic in %s phase: %v", name, r)
			e.engineDegraded = true
		}
	}()
	fn()
}

// cycle runs the ten phases of a single engine tick, per SPEC_FULL.md §4.6.
func (e *Engine) cycle() {
	cycleStartMono := e.Clock.MonoNS()
	e.snapshotID++

	// Phase 2: drain inbound events.
	e.runCyclePhase("drain-events", e.drainEvents)

	// Phase 3: drain and coalesce commands.
	e.runCyclePhase("apply-commands", e.applyCommands)

	// Phase 4: derive session/staleness/spread inputs.
	local := e.Clock.Now()
	inOperating := e.Session.InOperatingWindow(local)
	isBreak := e.Session.IsBreakWindow(local)
	sessionDate := clock.SessionDateISO(local)

	var stalenessMS int64
	if e.quotePresent {
		ageNS := int64(cycleStartMono) - int64(e.quote.RecvMonoNS)
		if ageNS < 0 {
			ageNS = 0
		}
		stalenessMS = ageNS / 1_000_000
	}

	// Phase 5: engine-degraded check. engineDegraded holds the previous
	// cycle's overrun result (set at the end of cycle), or true if
	// runCyclePhase has recovered a panic since then.

	// Phase 6: evaluate the admission gates.
	in := gate.Input{
		NowMonoNS:            cycleStartMono,
		Connected:            e.connected,
		MDMode:               e.mdMode,
		HasConID:             e.Instrument.ConID != nil,
		QuotePresent:         e.quotePresent,
		StalenessMS:          stalenessMS,
		LastQuoteEventMonoNS: e.lastQuoteEventMono,
		HasBid:               e.quote.HasBid,
		HasAsk:               e.quote.HasAsk,
		Bid:                  e.quote.Bid,
		Ask:                  e.quote.Ask,
		TickSize:             e.Instrument.TickSize,
		InOperatingWindow:    inOperating,
		IsBreakWindow:        isBreak,
		EngineDegraded:       e.engineDegraded,
		Intent:               e.intent,
		Arm:                  e.arm,
	}
	result := gate.Evaluate(in, e.Thresholds)

	// Phase 7: construct the snapshot.
	nowUnixMS := e.Clock.UnixMS()
	snap := snapshot.Snapshot{
		SchemaVersion:    snapshot.SchemaVersion,
		AppVersion:       e.AppVersion,
		ConfigHash:       e.ConfigHash,
		RunID:            e.RunID,
		RunStartTSUnixMS: e.runStartUnixMS,
		SnapshotID:       e.snapshotID,
		CycleCount:       e.Metrics.CycleCount.Load() + 1,
		TSUnixMS:         nowUnixMS,
		TSMonoNS:         cycleStartMono,
		Instrument: snapshot.Instrument{
			Symbol:      e.Instrument.Symbol,
			ContractKey: e.Instrument.ContractKey,
			ConID:       e.Instrument.ConID,
			TickSize:    e.Instrument.TickSize,
		},
		Feed: snapshot.Feed{
			Connected:              e.connected,
			MDMode:                 e.mdMode,
			Degraded:               e.feedDegraded,
			StatusReasonCodes:      e.feedStatusReasons,
			LastStatusChangeMonoNS: e.lastStatusChangeMono,
		},
		Liveness: snapshot.Liveness{
			LastAnyEventMonoNS:   e.lastAnyEventMono,
			LastQuoteEventMonoNS: e.lastQuoteEventMono,
			QuotesReceivedCount:  e.quotesReceived,
		},
		Quote: snapshot.Quote{
			Present:       e.quotePresent,
			Bid:           e.quote.Bid,
			Ask:           e.quote.Ask,
			HasBid:        e.quote.HasBid,
			HasAsk:        e.quote.HasAsk,
			Last:          e.quote.Last,
			HasLast:       e.quote.HasLast,
			BidSize:       e.quote.BidSize,
			HasBidSize:    e.quote.HasBidSize,
			AskSize:       e.quote.AskSize,
			HasAskSize:    e.quote.HasAskSize,
			RecvMonoNS:    e.quote.RecvMonoNS,
			RecvUnixMS:    e.quote.RecvUnixMS,
			ExchUnixMS:    e.quote.ExchUnixMS,
			HasExchUnixMS: e.quote.HasExchUnixMS,
			StalenessMS:   stalenessMS,
			HasStaleness:  e.quotePresent,
			SpreadTicks:   result.SpreadTicks,
			HasSpread:     result.HasSpread,
		},
		Session: snapshot.Session{
			InOperatingWindow: inOperating,
			IsBreakWindow:     isBreak,
			SessionDateISO:    sessionDate,
		},
		Controls: snapshot.Controls{
			Intent:          e.intent.String(),
			Arm:             e.arm,
			LastCmdID:       e.lastCmdID,
			LastCmdTSUnixMS: e.lastCmdTS,
		},
		Gates: snapshot.Gates{
			Allowed:     result.Allowed,
			ReasonCodes: result.ReasonCodes,
			Metrics:     result.Metrics,
		},
	}
	snap = snapshot.NewMirrored(snap)

	// Phase 5 (cont'd): measure this cycle's own build time. loop.cycle_ms
	// and loop.cycle_overrun report this cycle, and the overrun result
	// becomes engineDegraded for the next cycle's gate evaluation.
	cycleMS := float64(time.Duration(e.Clock.MonoNS()-cycleStartMono).Milliseconds())
	overrun := cycleMS > float64(e.Thresholds.CycleOverrunThresholdMS)
	e.engineDegraded = overrun
	snap.Loop = snapshot.Loop{
		CycleMS:              cycleMS,
		CycleOverrun:          overrun,
		EngineDegraded:        e.engineDegraded,
		LastCycleStartMonoNS: cycleStartMono,
	}
	snap.Gates.Metrics["cycle_ms"] = cycleMS

	// Phase 8: publish.
	e.Hub.Publish(snap)

	// Phase 9: metrics.
	e.Metrics.ObserveCycle(cycleMS)
	for _, r := range result.ReasonCodes {
		if r == gate.ReasonStaleData {
			e.Metrics.StalenessEventsCount.Add(1)
			break
		}
	}
}

func (e *Engine) drainEvents() {
	evts := e.InboundQueue.Drain(maxDrainPerCycle)
	for _, ev := range evts {
		switch ev.Kind {
		case event.KindStatus:
			s := ev.Status
			if s.Connected && !e.connected {
				e.Metrics.ReconnectCount.Add(1)
			}
			e.connected = s.Connected
			e.mdMode = s.MDMode
			if s.Reason != "" {
				e.feedStatusReasons = append(e.feedStatusReasons, s.Reason)
			} else {
				e.feedStatusReasons = nil
			}
			e.lastStatusChangeMono = s.MonoNS
			e.lastAnyEventMono = s.MonoNS
			if !s.Connected {
				e.mdMode = event.MDNone
			}
			e.feedDegraded = !e.connected || e.mdMode != event.MDRealtime
		case event.KindQuote:
			q := ev.Quote
			e.quote = q
			e.quotePresent = true
			e.quotesReceived++
			e.Metrics.QuotesReceivedCount.Add(1)
			e.lastAnyEventMono = q.RecvMonoNS
			e.lastQuoteEventMono = q.RecvMonoNS
		case event.KindAdapterError:
			e.feedDegraded = true
			e.lastAnyEventMono = ev.Err.MonoNS
			log.Printf("kernel: adapter error code=%d msg=%q", ev.Err.Code, ev.Err.Message)
		}
	}
}

func (e *Engine) applyCommands() {
	cmds := e.CommandQueue.Drain(maxDrainPerCycle)
	if len(cmds) == 0 {
		return
	}
	c := command.Coalesce(cmds)
	if !c.Applied {
		return
	}
	if c.HasIntent {
		e.intent = c.Intent
	}
	if c.HasArm {
		e.arm = c.Arm
	}
	e.lastCmdID = c.LastID
	e.lastCmdTS = c.LastTSUnixMS
}
