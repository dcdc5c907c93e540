// Package triggerlog implements the crash-tolerant trigger-card audit log:
// a fixed-cadence (default 1Hz), append-only JSONL writer decoupled from
// the 10Hz engine cycle. It is grounded on the teacher's internal/persist
// package's write-then-flush discipline, reduced from a MongoDB
// transactional write to a plain append-only file: a trigger card is a
// point-in-time fact, never updated once written, so no transaction is
// needed — only an append and a timed flush.
package triggerlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kestrelquant/silentobserver/internal/clock"
	"github.com/kestrelquant/silentobserver/internal/hub"
	"github.com/kestrelquant/silentobserver/internal/snapshot"
)

// SchemaVersion is the trigger-card wire-schema identity, per SPEC_FULL.md
// §4.7/§6. A breaking field change requires bumping this string.
const SchemaVersion = "triggercard.v1"

// Card is one line of the trigger-card log: a durable audit record
// referencing the last published snapshot at the moment the logger's own
// (decoupled, lower-cadence) tick fired. action_taken/action_id are
// carried per spec.md §4.7 even though this kernel never places an order
// — they are always "NONE"/nil, reserved for a downstream execution layer
// that is explicitly out of scope (spec.md §1).
type Card struct {
	SchemaVersion string `json:"schema_version"`
	AppVersion    string `json:"app_version"`
	ConfigHash    string `json:"config_hash"`
	RunID         string `json:"run_id"`
	Seq           uint64 `json:"seq"`
	SnapshotID    uint64 `json:"snapshot_id"`
	LogTSUnixMS   uint64 `json:"log_ts_unix_ms"`
	LogTSMonoNS   uint64 `json:"log_ts_mono_ns"`

	Intent       string   `json:"intent"`
	Arm          bool     `json:"arm"`
	Allowed      bool     `json:"allowed"`
	ReasonCodes  []string `json:"reason_codes"`

	GateMetrics map[string]any `json:"gate_metrics"`

	ActionTaken string `json:"action_taken"`
	ActionID    *string `json:"action_id"`
}

// CardFromSnapshot projects the fields of s that belong on the audit log.
// seq is the logger's own monotonic-per-run sequence number, independent
// of s.SnapshotID (the logger ticks at a lower, decoupled cadence).
func CardFromSnapshot(s snapshot.Snapshot, seq uint64, logTS time.Time, logMonoNS uint64) Card {
	return Card{
		SchemaVersion: SchemaVersion,
		AppVersion:    s.AppVersion,
		ConfigHash:    s.ConfigHash,
		RunID:         s.RunID,
		Seq:           seq,
		SnapshotID:    s.SnapshotID,
		LogTSUnixMS:   uint64(logTS.UnixMilli()),
		LogTSMonoNS:   logMonoNS,
		Intent:        s.Controls.Intent,
		Arm:           s.Controls.Arm,
		Allowed:       s.Gates.Allowed,
		ReasonCodes:   s.Gates.ReasonCodes,
		GateMetrics:   s.Gates.Metrics,
		ActionTaken:   "NONE",
		ActionID:      nil,
	}
}

// Logger writes Cards to a rotating, append-only JSONL file at a fixed
// cadence independent of the engine's publish rate. Run drives the logger
// from its own goroutine, polling the DataHub on its own ticker (SPEC_FULL.md
// §4.7/§5, Thread D) — the engine cycle never calls into the logger
// directly, so its file writes and fsyncs never execute on the engine's own
// goroutine.
type Logger struct {
	dir           string
	runID         string
	clock         clock.Clock
	session       *clock.Session
	cadence       time.Duration
	flushEvery    int

	mu            sync.Mutex
	file          *os.File
	w             *bufio.Writer
	unflushed     int
	sessionDate   string
	lastWriteMono uint64
	seq           uint64
	closed        bool
}

// New opens (creating dir if needed) a Logger for the given run. The first
// Offer call establishes the initial session-date rotation file.
func New(dir, runID string, cadenceHz float64, flushEvery int, clk clock.Clock, sess *clock.Session) (*Logger, error) {
	if cadenceHz <= 0 {
		cadenceHz = 1.0
	}
	if flushEvery <= 0 {
		flushEvery = 10
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("triggerlog: mkdir %s: %w", dir, err)
	}
	l := &Logger{
		dir:        dir,
		runID:      runID,
		clock:      clk,
		session:    sess,
		cadence:    time.Duration(float64(time.Second) / cadenceHz),
		flushEvery: flushEvery,
	}
	return l, nil
}

// Run polls hub.Latest() at pollInterval until ctx is cancelled, offering
// each snapshot it finds to Offer. It is the logger's own goroutine (Thread
// D): no caller on the engine's cycle path ever touches the logger, so its
// file I/O and fsyncs never block cycle() or the hot path's publish.
func (l *Logger) Run(ctx context.Context, h *hub.Hub, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, ok := h.Latest()
			if !ok {
				continue
			}
			if err := l.Offer(snap); err != nil {
				log.Printf("triggerlog: offer failed: %v", err)
			}
		}
	}
}

// Offer writes a card only if at least one cadence period has elapsed
// since the last write, and rotates the underlying file on a session-date
// change. Called from Run's polling loop, never from the engine cycle.
func (l *Logger) Offer(s snapshot.Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}

	now := l.clock.MonoNS()
	if l.file != nil && now-l.lastWriteMono < uint64(l.cadence.Nanoseconds()) {
		return nil
	}

	local := l.clock.Now()
	sessionDate := clock.SessionDateCompact(local)
	if l.file == nil || sessionDate != l.sessionDate {
		if err := l.rotate(sessionDate); err != nil {
			return err
		}
	}

	l.seq++
	card := CardFromSnapshot(s, l.seq, local, now)
	b, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("triggerlog: marshal card: %w", err)
	}
	if _, err := l.w.Write(b); err != nil {
		return fmt.Errorf("triggerlog: write card: %w", err)
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("triggerlog: write newline: %w", err)
	}

	l.unflushed++
	l.lastWriteMono = now
	if l.unflushed >= l.flushEvery {
		if err := l.flushLocked(); err != nil {
			return err
		}
	}
	return nil
}

// rotate closes the current file (if any) and opens a new one named
// triggercard_{YYYYMMDD}_{run_id}.jsonl, appending if it already exists
// rather than truncating it, so reopening a file never discards cards
// already in it. A restarted process has a new run_id and so writes a new
// file.
func (l *Logger) rotate(sessionDate string) error {
	if l.file != nil {
		if err := l.flushLocked(); err != nil {
			log.Printf("triggerlog: flush on rotate: %v", err)
		}
		l.file.Close()
	}

	name := fmt.Sprintf("triggercard_%s_%s.jsonl", sessionDate, l.runID)
	path := filepath.Join(l.dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("triggerlog: open %s: %w", path, err)
	}
	l.file = f
	l.w = bufio.NewWriter(f)
	l.sessionDate = sessionDate
	l.unflushed = 0
	return nil
}

// flushLocked flushes the buffered writer and fsyncs the file. Caller
// must hold l.mu.
func (l *Logger) flushLocked() error {
	if l.w == nil {
		return nil
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("triggerlog: flush: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("triggerlog: sync: %w", err)
	}
	l.unflushed = 0
	return nil
}

// Close flushes any buffered cards and closes the underlying file. Safe
// to call once at shutdown.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.file == nil {
		return nil
	}
	if err := l.flushLocked(); err != nil {
		return err
	}
	return l.file.Close()
}
