// Command observer is the Silent Observer kernel's process entrypoint: it
// wires the clock, queues, engine, trigger logger, and the optional
// read-surface/run-registry/log-archive collaborators together, then
// drives the engine until a shutdown signal or a configured max runtime
// elapses.
//
// Grounded on cmd/feedsim/main.go's context-cancellation-plus-
// signal.Notify wiring, generalized with golang.org/x/sync/errgroup (an
// indirect dependency of the teacher's MongoDB driver, promoted here to a
// direct one) so a fatal error from any long-running goroutine is
// observable by main without a hand-rolled sync.WaitGroup plus error
// channel.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelquant/silentobserver/internal/clock"
	"github.com/kestrelquant/silentobserver/internal/command"
	"github.com/kestrelquant/silentobserver/internal/config"
	"github.com/kestrelquant/silentobserver/internal/event"
	"github.com/kestrelquant/silentobserver/internal/feedqueue"
	"github.com/kestrelquant/silentobserver/internal/feedsource"
	"github.com/kestrelquant/silentobserver/internal/gate"
	"github.com/kestrelquant/silentobserver/internal/hub"
	"github.com/kestrelquant/silentobserver/internal/instrument"
	"github.com/kestrelquant/silentobserver/internal/kernel"
	"github.com/kestrelquant/silentobserver/internal/logarchive"
	"github.com/kestrelquant/silentobserver/internal/metrics"
	"github.com/kestrelquant/silentobserver/internal/readsurface"
	"github.com/kestrelquant/silentobserver/internal/runlog"
	"github.com/kestrelquant/silentobserver/internal/triggerlog"
)

const appVersion = "silentobserver/0.1.0"

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	cfg := config.Load()

	var conID *int64
	if cfg.HasConID {
		conID = &cfg.ConID
	}
	inst, err := instrument.New(cfg.Symbol, cfg.ContractKey, cfg.TickSize, conID)
	if err != nil {
		log.Fatalf("observer: configuration error: %v", err)
	}

	realClock := clock.MustNewRealClock(cfg.SessionZone)

	opFrom, err := clock.ParseTimeOfDay(cfg.OperatingWindowFrom)
	if err != nil {
		log.Fatalf("observer: configuration error: %v", err)
	}
	opTo, err := clock.ParseTimeOfDay(cfg.OperatingWindowTo)
	if err != nil {
		log.Fatalf("observer: configuration error: %v", err)
	}
	sess, err := clock.NewSession(clock.Window{Start: opFrom, End: opTo})
	if err != nil {
		log.Fatalf("observer: configuration error: %v", err)
	}

	runID := newRunID(realClock)
	configHash := hashConfig(cfg)

	thresholds := gate.Thresholds{
		StaleThresholdMS:        int64(cfg.StaleThresholdMS),
		FeedHeartbeatTimeoutMS:  int64(cfg.FeedHeartbeatTimeoutMS),
		MaxSpreadTicks:          int64(cfg.MaxSpreadTicks),
		CycleTargetMS:           int64(cfg.CycleTargetMS),
		CycleOverrunThresholdMS: int64(cfg.CycleOverrunThresholdMS),
	}

	eng := kernel.New(runID, appVersion, configHash, inst)
	eng.InboundQueue = feedqueue.New[event.Event](1000)
	eng.CommandQueue = feedqueue.New[command.Command](100)
	eng.Clock = realClock
	eng.Session = sess
	eng.Thresholds = thresholds
	eng.Hub = hub.New()
	eng.Metrics = metrics.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("observer: received signal %v, shutting down", sig)
		cancel()
	}()

	if cfg.MaxRuntimeS > 0 {
		time.AfterFunc(time.Duration(cfg.MaxRuntimeS)*time.Second, cancel)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Feed source: one synthetic adapter, since the real broker adapter is
	// out of scope (spec.md §1) and specified only by the event envelope
	// it must produce.
	source := feedsource.NewSynthetic(feedsource.SyntheticConfig{
		Seed:                 cfg.AdapterSeed,
		BasePrice:            5000.0,
		TickSize:             cfg.TickSize,
		VolatilityMultiplier: 1.0,
		TickInterval:         100 * time.Millisecond,
		StressEnabled:        cfg.AdapterStressEnabled,
	})
	g.Go(func() error {
		return source.Run(gctx, eng.InboundQueue)
	})

	// Trigger-card logger: its own goroutine (Thread D), polling the
	// DataHub on a ticker decoupled from the 10Hz engine loop (SPEC_FULL.md
	// §4.7/§5). It never runs on the engine's own goroutine, so its file
	// writes and fsyncs never sit in the hot path.
	var triggerLogger *triggerlog.Logger
	if cfg.TriggerLogEnabled {
		triggerLogger, err = triggerlog.New(cfg.TriggerLogDir, runID, cfg.TriggerLogCadenceHz, cfg.TriggerLogFlushInterval, realClock, sess)
		if err != nil {
			log.Fatalf("observer: trigger logger: %v", err)
		}
		g.Go(func() error {
			triggerLogger.Run(gctx, eng.Hub, 100*time.Millisecond)
			return nil
		})
	}

	// Read-surface transport: pushes DataHub.latest() to subscribed
	// WebSocket clients. Pure transport — never renders anything.
	var rsMgr *readsurface.Manager
	if cfg.ReadSurfaceEnabled {
		rsMgr = readsurface.NewManager(cfg.ReadSurfaceSendBuffer)
		mux := http.NewServeMux()
		mux.HandleFunc("/snapshots", readsurface.Handler(rsMgr))
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status":"ok","run_id":%q,"clients":%d}`, runID, rsMgr.ClientCount())
		})
		srv := &http.Server{Addr: cfg.ReadSurfaceAddr, Handler: mux}
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			log.Printf("observer: read-surface listening on ws://%s/snapshots", cfg.ReadSurfaceAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					rsMgr.BroadcastLatest(eng.Hub)
				}
			}
		})
	}

	// Run registry (opt-in MongoDB). A connection failure here is logged
	// and never fatal to the kernel (SPEC_FULL.md §7).
	var runStore *runlog.Store
	if cfg.MongoEnabled {
		connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
		runStore, err = runlog.Connect(connectCtx, cfg.MongoURI)
		connectCancel()
		if err != nil {
			log.Printf("observer: run registry unavailable: %v", err)
			runStore = nil
		} else {
			if err := runStore.UpsertRunning(ctx, runID, configHash, cfg.Symbol, cfg.ContractKey, realClock.UnixMS()); err != nil {
				log.Printf("observer: run registry upsert failed: %v", err)
			}
		}
	}

	// Trigger-log archiver (opt-in S3).
	if cfg.ArchiveS3Bucket != "" {
		archiver := logarchive.New(ctx, logarchive.Config{
			Dir:      cfg.TriggerLogDir,
			MaxBytes: int64(cfg.ArchiveMaxGB) << 30,
			Interval: time.Duration(cfg.ArchiveIntervalHours) * time.Hour,
			After:    time.Duration(cfg.ArchiveAfterHours) * time.Hour,
			S3Bucket: cfg.ArchiveS3Bucket,
			S3Region: cfg.ArchiveS3Region,
			S3Prefix: cfg.ArchiveS3Prefix,
		})
		g.Go(func() error {
			archiver.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		eng.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("observer: a collaborator goroutine returned an error: %v", err)
	}

	runEndUnixMS := realClock.UnixMS()
	if triggerLogger != nil {
		if err := triggerLogger.Close(); err != nil {
			log.Printf("observer: trigger logger close: %v", err)
		}
	}
	if runStore != nil {
		summary := metrics.BuildSummary(eng.Metrics, runID, eng.RunStartUnixMS(), runEndUnixMS, cfg.TriggerLogEnabled)
		finalizeCtx, finalizeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := runStore.Finalize(finalizeCtx, runID, runEndUnixMS, summaryToBSON(summary)); err != nil {
			log.Printf("observer: run registry finalize failed: %v", err)
		}
		finalizeCancel()
		runStore.Close(context.Background())
	}

	summary := metrics.BuildSummary(eng.Metrics, runID, eng.RunStartUnixMS(), runEndUnixMS, cfg.TriggerLogEnabled)
	log.Printf("observer: run summary: %+v", summary)
	log.Println("observer: stopped")
}

func newRunID(clk *clock.RealClock) string {
	return fmt.Sprintf("run-%d", clk.UnixMS())
}

// hashConfig derives a short, stable identifier for the configuration this
// run was started with, carried on every snapshot/trigger card as
// config_hash.
func hashConfig(cfg *config.Config) string {
	b, _ := json.Marshal(cfg)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

func summaryToBSON(s metrics.Summary) bson.M {
	return bson.M{
		"run_id":                 s.RunID,
		"run_start_ts_unix_ms":   s.RunStartTSUnixMS,
		"run_end_ts_unix_ms":     s.RunEndTSUnixMS,
		"uptime_s":               s.UptimeS,
		"reconnect_count":        s.ReconnectCount,
		"staleness_events_count": s.StalenessEventsCount,
		"quotes_received_count":  s.QuotesReceivedCount,
		"cycle_count":            s.CycleCount,
		"max_cycle_time_ms":      s.MaxCycleTimeMS,
		"logger_enabled":         s.LoggerEnabled,
	}
}
