package logarchive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDayFromTriggerFilename(t *testing.T) {
	got := dayFromTriggerFilename("triggercard_20260730_run-1.jsonl")
	if got != "20260730" {
		t.Fatalf("expected 20260730, got %s", got)
	}
	if got := dayFromTriggerFilename("garbage.jsonl"); got != "unknown" {
		t.Fatalf("expected unknown for malformed filename, got %s", got)
	}
}

func TestArchiveOneGzipsAndRemovesOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triggercard_20260730_run-1.jsonl")
	if err := os.WriteFile(path, []byte(`{"seq":1}`+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	a := New(context.Background(), Config{Dir: dir, MaxBytes: 1 << 30})
	archiveDir := filepath.Join(dir, "archive")
	if err := a.archiveOne(context.Background(), path, archiveDir); err != nil {
		t.Fatalf("archiveOne: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected original file to be removed, stat err=%v", err)
	}
	gz := filepath.Join(archiveDir, "20260730", "triggercard_20260730_run-1.jsonl.gz")
	if _, err := os.Stat(gz); err != nil {
		t.Fatalf("expected gzip archive at %s, got %v", gz, err)
	}
}

func TestFindCandidatesOnlyIncludesFilesOlderThanAfter(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "triggercard_20260729_run-1.jsonl")
	newPath := filepath.Join(dir, "triggercard_20260730_run-1.jsonl")
	os.WriteFile(oldPath, []byte("{}\n"), 0o644)
	os.WriteFile(newPath, []byte("{}\n"), 0o644)
	old := time.Now().Add(-48 * time.Hour)
	os.Chtimes(oldPath, old, old)

	a := New(context.Background(), Config{Dir: dir, After: 24 * time.Hour})
	got, err := a.findCandidates()
	if err != nil {
		t.Fatalf("findCandidates: %v", err)
	}
	if len(got) != 1 || got[0] != oldPath {
		t.Fatalf("expected only %s, got %v", oldPath, got)
	}
}
