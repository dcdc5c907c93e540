package clock

import (
	"fmt"
	"time"
)

// Phase is the current session phase.
type Phase int

const (
	PhaseClosed Phase = iota
	PhaseOperating
	PhaseBreak
)

func (p Phase) String() string {
	switch p {
	case PhaseOperating:
		return "Operating"
	case PhaseBreak:
		return "Break"
	default:
		return "Closed"
	}
}

// TimeOfDay is a zone-agnostic HH:MM used to describe window boundaries.
type TimeOfDay struct {
	Hour, Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return TimeOfDay{}, fmt.Errorf("clock: invalid time-of-day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("clock: invalid time-of-day %q: out of range", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

// Window is a configurable half-open local-time interval [Start, End).
type Window struct {
	Start, End TimeOfDay
}

// sessionBreakWindow is fixed by spec: [17:00, 18:00) local.
var sessionBreakWindow = Window{
	Start: TimeOfDay{Hour: 17, Minute: 0},
	End:   TimeOfDay{Hour: 18, Minute: 0},
}

// sessionRollTime is fixed by spec: the session date rolls at 17:00 local.
var sessionRollTime = TimeOfDay{Hour: 17, Minute: 0}

// Session derives session-date, operating-window, and break-window
// predicates from a Clock's zone-aware local time. It never reads a
// monotonic counter; it is pure local-calendar arithmetic, so DST
// transitions are handled correctly by construction (time.Time arithmetic
// in a zone-aware Location, never fixed-offset math).
type Session struct {
	operating Window
}

// NewSession validates and wraps an operating window. A malformed window
// (End <= Start) is a configuration error.
func NewSession(operating Window) (*Session, error) {
	if operating.End.minutes() <= operating.Start.minutes() {
		return nil, fmt.Errorf("clock: operating window end must be after start")
	}
	return &Session{operating: operating}, nil
}

// DefaultOperatingWindow is spec.md §4.1's default [07:00, 16:00).
func DefaultOperatingWindow() Window {
	return Window{Start: TimeOfDay{Hour: 7}, End: TimeOfDay{Hour: 16}}
}

func inWindow(local time.Time, w Window) bool {
	m := local.Hour()*60 + local.Minute()
	// Seconds/ns are compared against the boundary minute's first instant;
	// a window boundary like 17:00 means 17:00:00.000 inclusive.
	startM := w.Start.minutes()
	endM := w.End.minutes()
	if m < startM || m > endM {
		return false
	}
	if m == startM {
		return local.Second() >= 0 // 17:00:00.000 is in-window (inclusive start)
	}
	if m == endM {
		// half-open: exactly HH:MM:00.000 is out, but spec only needs
		// minute granularity for window edges; treat the boundary minute's
		// first instant as already excluded.
		return false
	}
	return true
}

// InOperatingWindow reports whether local is within the configured
// operating window.
func (s *Session) InOperatingWindow(local time.Time) bool {
	return inWindow(local, s.operating)
}

// IsBreakWindow reports whether local is within [17:00, 18:00) local.
func (s *Session) IsBreakWindow(local time.Time) bool {
	return inWindow(local, sessionBreakWindow)
}

// Phase returns the session phase for local time: Break takes precedence
// over Operating when both windows happen to overlap (they do not by
// default, but a misconfigured operating window could extend past 17:00).
func (s *Session) Phase(local time.Time) Phase {
	if s.IsBreakWindow(local) {
		return PhaseBreak
	}
	if s.InOperatingWindow(local) {
		return PhaseOperating
	}
	return PhaseClosed
}

// SessionDateISO returns the rolling session-date label (YYYY-MM-DD) for
// local time: before 17:00 local, the session date is today; at or after
// 17:00, it is tomorrow.
func SessionDateISO(local time.Time) string {
	rollMinutes := sessionRollTime.minutes()
	nowMinutes := local.Hour()*60 + local.Minute()
	d := local
	if nowMinutes >= rollMinutes {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format("2006-01-02")
}

// SessionDateCompact returns the session date as YYYYMMDD, used for
// trigger-log rotation filenames.
func SessionDateCompact(local time.Time) string {
	rollMinutes := sessionRollTime.minutes()
	nowMinutes := local.Hour()*60 + local.Minute()
	d := local
	if nowMinutes >= rollMinutes {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format("20060102")
}
