// Package logarchive periodically gzips rotated (no-longer-written-to)
// trigger-log files and, if configured, uploads them to S3, pruning local
// archive copies beyond a configured total size.
//
// Grounded on the teacher's internal/archive.Archiver nearly line-for-line:
// the time.Ticker-driven loop, the "cutoff" age gate, and the
// oldest-first-by-lexicographic-path rotation trick transfer directly —
// triggercard_{YYYYMMDD}_*.jsonl.gz paths already sort chronologically by
// construction, just as the teacher's YYYY/MM/DD trade-archive paths do.
// What's new versus the teacher is the actual S3 upload: the teacher
// carries S3Bucket/S3Region/S3Prefix config and the aws-sdk-go-v2/service/s3
// dependency but its archiver only ever writes local gzip files, never
// calls the S3 client. This archiver wires that client for real.
package logarchive

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config parameterizes one Archiver.
type Config struct {
	Dir      string // trigger-log directory to scan
	MaxBytes int64  // total local archive size before oldest-first pruning
	Interval time.Duration
	After    time.Duration // only archive files whose mtime is older than this
	S3Bucket string        // empty disables S3 upload
	S3Region string
	S3Prefix string
}

// Archiver is the background gzip/upload/prune loop.
type Archiver struct {
	cfg Config
	s3  *s3.Client // nil when Config.S3Bucket == ""
}

// New constructs an Archiver. If cfg.S3Bucket is set, it loads the default
// AWS SDK config (env/shared-config/IMDS credential chain) for cfg.S3Region;
// a failure to load that config is logged and S3 upload is disabled for
// this run rather than treated as fatal — archiving is an optional
// operational add-on, per SPEC_FULL.md §7.
func New(ctx context.Context, cfg Config) *Archiver {
	a := &Archiver{cfg: cfg}
	if cfg.S3Bucket == "" {
		return a
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.S3Region))
	if err != nil {
		log.Printf("logarchive: load AWS config: %v (S3 upload disabled for this run)", err)
		return a
	}
	a.s3 = s3.NewFromConfig(awsCfg)
	return a
}

// Run blocks, running one cycle immediately and then every cfg.Interval,
// until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	log.Printf("logarchive: dir=%s max=%dMB interval=%v after=%v s3=%v",
		a.cfg.Dir, a.cfg.MaxBytes>>20, a.cfg.Interval, a.cfg.After, a.cfg.S3Bucket != "")

	a.cycle(ctx)
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cycle(ctx)
		}
	}
}

// cycle gzips eligible rotated trigger-log files, optionally uploads them,
// and prunes the local archive directory. It never touches the active
// (currently-written-to) trigger-log file: only files older than cfg.After
// are considered, and the trigger logger always writes the current
// session's file last, so an active file is never old enough to qualify
// under any sane cfg.After value.
func (a *Archiver) cycle(ctx context.Context) {
	candidates, err := a.findCandidates()
	if err != nil {
		log.Printf("logarchive: find candidates: %v", err)
		return
	}

	archiveDir := filepath.Join(a.cfg.Dir, "archive")
	for _, path := range candidates {
		if err := a.archiveOne(ctx, path, archiveDir); err != nil {
			log.Printf("logarchive: archive %s: %v", path, err)
			continue
		}
	}

	a.prune(archiveDir)
}

func (a *Archiver) findCandidates() ([]string, error) {
	entries, err := os.ReadDir(a.cfg.Dir)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-a.cfg.After)
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			out = append(out, filepath.Join(a.cfg.Dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (a *Archiver) archiveOne(ctx context.Context, path, archiveDir string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		gz.Close()
		return fmt.Errorf("gzip: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("gzip close: %w", err)
	}

	day := dayFromTriggerFilename(filepath.Base(path))
	destDir := filepath.Join(archiveDir, day)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	destPath := filepath.Join(destDir, filepath.Base(path)+".gz")
	if err := os.WriteFile(destPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	if a.s3 != nil {
		key := a.cfg.S3Prefix + "/" + day + "/" + filepath.Base(path) + ".gz"
		if _, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(a.cfg.S3Bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(buf.Bytes()),
		}); err != nil {
			return fmt.Errorf("s3 put %s: %w", key, err)
		}
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove original: %w", err)
	}
	log.Printf("logarchive: archived %s -> %s", path, destPath)
	return nil
}

// dayFromTriggerFilename extracts YYYYMMDD from
// triggercard_{YYYYMMDD}_{run_id}.jsonl, falling back to "unknown" for a
// name that doesn't match (defensive against a future filename change).
func dayFromTriggerFilename(name string) string {
	parts := strings.SplitN(name, "_", 3)
	if len(parts) >= 2 && len(parts[1]) == 8 {
		return parts[1]
	}
	return "unknown"
}

// prune deletes the oldest archived gzip files, by lexicographic (hence
// chronological) path, until the archive directory is at or under
// cfg.MaxBytes.
func (a *Archiver) prune(archiveDir string) {
	type entry struct {
		path string
		size int64
	}
	var files []entry
	var total int64

	filepath.Walk(archiveDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		files = append(files, entry{path: path, size: info.Size()})
		total += info.Size()
		return nil
	})

	if total <= a.cfg.MaxBytes {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })

	for _, f := range files {
		if total <= a.cfg.MaxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			log.Printf("logarchive: prune %s: %v", f.path, err)
			continue
		}
		total -= f.size
		log.Printf("logarchive: pruned %s (%d bytes)", f.path, f.size)
	}
}
