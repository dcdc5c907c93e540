package feedsource

import (
	"context"
	"testing"
	"time"

	"github.com/kestrelquant/silentobserver/internal/event"
	"github.com/kestrelquant/silentobserver/internal/feedqueue"
)

func TestSyntheticProducesConnectedStatusThenQuotes(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.Seed = 7
	cfg.TickInterval = time.Millisecond
	s := NewSynthetic(cfg)

	q := feedqueue.New[event.Event](256)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_ = s.Run(ctx, q)

	evts := q.Drain(0)
	if len(evts) < 2 {
		t.Fatalf("expected at least 2 events, got %d", len(evts))
	}
	if evts[0].Kind != event.KindStatus || !evts[0].Status.Connected {
		t.Fatalf("expected first event to be a connected Status, got %+v", evts[0])
	}
	sawQuote := false
	for _, e := range evts[1:] {
		if e.Kind == event.KindQuote {
			sawQuote = true
			if e.Quote.Ask <= e.Quote.Bid {
				t.Fatalf("expected ask > bid, got bid=%v ask=%v", e.Quote.Bid, e.Quote.Ask)
			}
		}
	}
	if !sawQuote {
		t.Fatalf("expected at least one quote event")
	}
}

func TestSyntheticStressEnabledVariesInterval(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.Seed = 11
	cfg.StressEnabled = true
	s := NewSynthetic(cfg)
	if s.stress == nil {
		t.Fatal("expected a stress controller when StressEnabled is set")
	}

	q := feedqueue.New[event.Event](256)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_ = s.Run(ctx, q)

	evts := q.Drain(0)
	sawQuote := false
	for _, e := range evts {
		if e.Kind == event.KindQuote {
			sawQuote = true
		}
	}
	if !sawQuote {
		t.Fatal("expected at least one quote event under stress-driven cadence")
	}
}

func TestRoundToTick(t *testing.T) {
	cases := []struct {
		price, tick, want float64
	}{
		{100.10, 0.25, 100.0},
		{100.13, 0.25, 100.25},
		{100.00, 0.25, 100.00},
	}
	for _, c := range cases {
		got := roundToTick(c.price, c.tick)
		if got != c.want {
			t.Errorf("roundToTick(%v, %v) = %v, want %v", c.price, c.tick, got, c.want)
		}
	}
}
