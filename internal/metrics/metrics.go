// Package metrics holds the engine's run counters and final-summary
// construction. Fields are atomic, grounded on the teacher's
// atomic-counter-on-a-plain-struct idiom (internal/session.Client.Dropped,
// the package-level clientIDCounter): the engine is the sole writer, but
// counters may be read concurrently from the health endpoint or the run
// registry while the engine keeps running.
package metrics

import (
	"sync/atomic"
	"time"
)

// Counters holds the run's live counters and gauges.
type Counters struct {
	ReconnectCount       atomic.Uint64
	StalenessEventsCount atomic.Uint64
	QuotesReceivedCount  atomic.Uint64
	CycleCount           atomic.Uint64
	MaxCycleTimeMS       atomic.Uint64 // stored as whole millis, fractional part truncated
}

// New returns a fresh, zeroed Counters.
func New() *Counters {
	return &Counters{}
}

// ObserveCycle updates the cycle counter and the running max-cycle-time
// gauge. It does not itself decide engine_degraded — the engine's caller
// compares cycleMS against CycleOverrunThresholdMS separately.
func (c *Counters) ObserveCycle(cycleMS float64) {
	c.CycleCount.Add(1)
	v := uint64(cycleMS)
	for {
		cur := c.MaxCycleTimeMS.Load()
		if v <= cur {
			return
		}
		if c.MaxCycleTimeMS.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Summary is the human-readable shutdown report spec.md §4.8 requires.
type Summary struct {
	RunID                string
	RunStartTSUnixMS     uint64
	RunEndTSUnixMS       uint64
	UptimeS              float64
	ReconnectCount       uint64
	StalenessEventsCount uint64
	QuotesReceivedCount  uint64
	CycleCount           uint64
	MaxCycleTimeMS       uint64
	LoggerEnabled        bool
}

// BuildSummary assembles the shutdown summary from the live counters.
func BuildSummary(c *Counters, runID string, runStartUnixMS, runEndUnixMS uint64, loggerEnabled bool) Summary {
	uptime := time.Duration(runEndUnixMS-runStartUnixMS) * time.Millisecond
	return Summary{
		RunID:                runID,
		RunStartTSUnixMS:     runStartUnixMS,
		RunEndTSUnixMS:       runEndUnixMS,
		UptimeS:              uptime.Seconds(),
		ReconnectCount:       c.ReconnectCount.Load(),
		StalenessEventsCount: c.StalenessEventsCount.Load(),
		QuotesReceivedCount:  c.QuotesReceivedCount.Load(),
		CycleCount:           c.CycleCount.Load(),
		MaxCycleTimeMS:       c.MaxCycleTimeMS.Load(),
		LoggerEnabled:        loggerEnabled,
	}
}
