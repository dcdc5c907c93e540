// Package feedsource defines the Source boundary the engine consumes
// market data through, and ships one concrete adapter: a synthetic
// single-instrument generator for development and soak testing. A real
// broker adapter (e.g. an IBKR/FIX gateway) implements the same Source
// interface and is wired in at cmd/observer instead — the kernel never
// knows which one it is talking to.
//
// The synthetic adapter is grounded on the teacher's internal/engine
// package: RNG's PCG-XSH-RR generator drives both the price walk and the
// optional StressController, whose sine+random-walk cadence model is
// reused verbatim to vary tick interval and volatility over time instead
// of order-book action counts (there is no order book here — see
// DESIGN.md). MarketEngine's sector-correlated multi-symbol GBM step has
// no single-instrument equivalent, so this adapter inlines the same GBM
// formula directly against one price rather than one row of a price map.
package feedsource

import (
	"context"
	"math"
	"time"

	"github.com/kestrelquant/silentobserver/internal/engine"
	"github.com/kestrelquant/silentobserver/internal/event"
	"github.com/kestrelquant/silentobserver/internal/feedqueue"
)

const (
	baseDailyVol = 0.015
	ticksPerDay  = 86400
)

// Source is the boundary every feed adapter, synthetic or real, satisfies.
// Run blocks, pushing events onto out, until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, out *feedqueue.Queue[event.Event]) error
}

// SyntheticConfig parameterizes the synthetic adapter.
type SyntheticConfig struct {
	Seed                int64
	BasePrice           float64
	TickSize            float64
	VolatilityMultiplier float64
	TickInterval        time.Duration

	// FlakeProbability is the per-tick chance of a transient disconnect,
	// used to exercise the FEED_DISCONNECTED / MD_NOT_REALTIME gates and
	// the engine's reconnect counter in development.
	FlakeProbability float64
	FlakeDuration    time.Duration

	// StressEnabled drives tick interval and volatility from a
	// StressController's sine+random-walk intensity instead of a fixed
	// TickInterval/VolatilityMultiplier, to exercise bursty quote arrival in
	// development. The quoted spread does not depend on it.
	StressEnabled bool
}

// DefaultSyntheticConfig returns reasonable defaults for local development.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		BasePrice:            5000.0,
		TickSize:             0.25,
		VolatilityMultiplier: 1.0,
		TickInterval:         100 * time.Millisecond,
		FlakeProbability:     0,
	}
}

// Synthetic is a single-instrument GBM price walk with a stable spread,
// implementing Source without any network I/O.
type Synthetic struct {
	cfg    SyntheticConfig
	rng    *engine.RNG
	stress *engine.StressController
	price  float64
}

// NewSynthetic constructs a Synthetic adapter.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	s := &Synthetic{
		cfg:   cfg,
		rng:   engine.NewRNG(cfg.Seed),
		price: cfg.BasePrice,
	}
	if cfg.StressEnabled {
		s.stress = engine.NewStressController(s.rng, engine.DefaultStressConfig())
	}
	return s
}

// Run implements Source. It sends an initial connected Status, then
// alternates Quote events at cfg.TickInterval until ctx is cancelled,
// occasionally flickering disconnected per FlakeProbability.
func (s *Synthetic) Run(ctx context.Context, out *feedqueue.Queue[event.Event]) error {
	start := time.Now()
	pushStatus := func(connected bool, mode event.MDMode, reason string) {
		out.Push(event.NewStatus(event.Status{
			Connected: connected,
			MDMode:    mode,
			Reason:    reason,
			MonoNS:    uint64(time.Since(start).Nanoseconds()),
			UnixMS:    uint64(time.Now().UnixMilli()),
		}))
	}

	pushStatus(true, event.MDRealtime, "")

	timer := time.NewTimer(s.nextInterval())
	defer timer.Stop()

	connected := true
	var disconnectUntil time.Time
	intensity := 0.0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		now := time.Now()
		if s.stress != nil {
			var interval time.Duration
			interval, _ = s.stress.Tick()
			intensity = s.stress.Intensity()
			timer.Reset(interval)
		} else {
			timer.Reset(s.cfg.TickInterval)
		}

		if connected && s.cfg.FlakeProbability > 0 && s.rng.Float64() < s.cfg.FlakeProbability {
			connected = false
			disconnectUntil = now.Add(s.cfg.FlakeDuration)
			pushStatus(false, event.MDNone, "simulated transient disconnect")
			continue
		}
		if !connected {
			if now.Before(disconnectUntil) {
				continue
			}
			connected = true
			pushStatus(true, event.MDRealtime, "")
			continue
		}

		s.step(intensity)
		half := s.spreadHalf()
		bid := roundToTick(s.price-half, s.cfg.TickSize)
		ask := roundToTick(s.price+half, s.cfg.TickSize)
		if ask <= bid {
			ask = bid + s.cfg.TickSize
		}

		q := event.Quote{
			Bid: bid, Ask: ask, HasBid: true, HasAsk: true,
			Last: s.price, HasLast: true,
			RecvMonoNS: uint64(time.Since(start).Nanoseconds()),
			RecvUnixMS: uint64(now.UnixMilli()),
		}
		out.Push(event.NewQuote(q))
	}
}

// step advances the price one GBM step. When the stress controller is
// active, intensity (0 calm .. 1 burst) scales volatility up to 4x on top
// of the configured VolatilityMultiplier.
func (s *Synthetic) step(intensity float64) {
	mult := s.cfg.VolatilityMultiplier * (1 + 3*intensity)
	tickVol := baseDailyVol / math.Sqrt(ticksPerDay) * mult
	z := s.rng.Gaussian()
	logReturn := tickVol * z
	s.price *= math.Exp(logReturn)
	s.price = roundToTick(s.price, s.cfg.TickSize)
	if s.price < s.cfg.TickSize {
		s.price = s.cfg.TickSize
	}
}

// nextInterval returns the initial tick interval before the first stress
// sample is available.
func (s *Synthetic) nextInterval() time.Duration {
	if s.stress != nil {
		interval, _ := s.stress.Tick()
		return interval
	}
	return s.cfg.TickInterval
}

// spreadHalf picks a plausible half-spread: half a tick (a one-tick
// spread) most of the time, occasionally one tick (a two-tick spread), and
// rarely five ticks (a ten-tick spread, above the default MaxSpreadTicks of
// 8) to exercise SPREAD_WIDE in development.
func (s *Synthetic) spreadHalf() float64 {
	r := s.rng.Float64()
	switch {
	case r < 0.85:
		return s.cfg.TickSize * 0.5
	case r < 0.97:
		return s.cfg.TickSize * 1.0
	default:
		return s.cfg.TickSize * 5.0
	}
}

func roundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}
