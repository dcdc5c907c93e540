// Package config loads process configuration from CLI flags with
// environment-variable defaults, in the teacher's flag+env idiom.
package config

import (
	"flag"
	"os"
	"strconv"
)

// Config holds all kernel configuration, enumerated in SPEC_FULL.md §6.
type Config struct {
	// Instrument
	Symbol      string
	ContractKey string
	TickSize    float64
	ConID       int64
	HasConID    bool

	// Cycle / gate thresholds
	CycleTargetMS           int
	CycleOverrunThresholdMS int
	StaleThresholdMS        int
	FeedHeartbeatTimeoutMS  int
	MaxSpreadTicks          int

	// Session
	SessionZone         string
	OperatingWindowFrom string
	OperatingWindowTo   string

	// Trigger logger
	TriggerLogEnabled       bool
	TriggerLogCadenceHz     float64
	TriggerLogDir           string
	TriggerLogFlushInterval int

	// Read surface
	ReadSurfaceEnabled    bool
	ReadSurfaceAddr       string
	ReadSurfaceSendBuffer int

	// Run registry (MongoDB, opt-in)
	MongoEnabled bool
	MongoURI     string

	// Trigger-log archive (S3, opt-in: only active when ArchiveS3Bucket is set)
	ArchiveS3Bucket      string
	ArchiveS3Region      string
	ArchiveS3Prefix      string
	ArchiveIntervalHours int
	ArchiveAfterHours    int
	ArchiveMaxGB         int

	// Synthetic feed source (used only absent a real broker adapter)
	AdapterSeed          int64
	AdapterStressEnabled bool

	// Bounded-duration runs, mainly for soak tests
	MaxRuntimeS int
}

func Load() *Config {
	c := &Config{}

	flag.StringVar(&c.Symbol, "instrument-symbol", envStr("INSTRUMENT_SYMBOL", "ES"), "Instrument symbol")
	flag.StringVar(&c.ContractKey, "instrument-contract-key", envStr("INSTRUMENT_CONTRACT_KEY", "ES.202512"), "Instrument contract key (SYMBOL.YYYYMM)")
	flag.Float64Var(&c.TickSize, "instrument-tick-size", envFloat("INSTRUMENT_TICK_SIZE", 0.25), "Instrument tick size")
	conID := flag.Int64("instrument-con-id", envInt64("INSTRUMENT_CON_ID", 0), "Instrument broker contract ID (0 = absent)")

	flag.IntVar(&c.CycleTargetMS, "cycle-target-ms", envInt("CYCLE_TARGET_MS", 100), "Target cycle budget in milliseconds")
	flag.IntVar(&c.CycleOverrunThresholdMS, "cycle-overrun-threshold-ms", envInt("CYCLE_OVERRUN_THRESHOLD_MS", 500), "Cycle overrun threshold in milliseconds")
	flag.IntVar(&c.StaleThresholdMS, "stale-threshold-ms", envInt("STALE_THRESHOLD_MS", 2000), "Quote staleness threshold in milliseconds")
	flag.IntVar(&c.FeedHeartbeatTimeoutMS, "feed-heartbeat-timeout-ms", envInt("FEED_HEARTBEAT_TIMEOUT_MS", 5000), "Feed heartbeat timeout in milliseconds")
	flag.IntVar(&c.MaxSpreadTicks, "max-spread-ticks", envInt("MAX_SPREAD_TICKS", 8), "Maximum allowed spread in ticks")

	flag.StringVar(&c.SessionZone, "session-zone", envStr("SESSION_ZONE", "America/Toronto"), "IANA zone name for session arithmetic")
	flag.StringVar(&c.OperatingWindowFrom, "operating-window-from", envStr("OPERATING_WINDOW_FROM", "07:00"), "Operating window start, local HH:MM")
	flag.StringVar(&c.OperatingWindowTo, "operating-window-to", envStr("OPERATING_WINDOW_TO", "16:00"), "Operating window end, local HH:MM")

	flag.BoolVar(&c.TriggerLogEnabled, "trigger-log-enabled", envBool("TRIGGER_LOG_ENABLED", true), "Enable the trigger-card logger")
	flag.Float64Var(&c.TriggerLogCadenceHz, "trigger-log-cadence-hz", envFloat("TRIGGER_LOG_CADENCE_HZ", 1.0), "Trigger logger cadence in Hz")
	flag.StringVar(&c.TriggerLogDir, "trigger-log-dir", envStr("TRIGGER_LOG_DIR", "./triggerlogs"), "Trigger-log output directory")
	flag.IntVar(&c.TriggerLogFlushInterval, "trigger-log-flush-interval", envInt("TRIGGER_LOG_FLUSH_INTERVAL", 10), "Flush after this many records")

	flag.BoolVar(&c.ReadSurfaceEnabled, "readsurface-enabled", envBool("READSURFACE_ENABLED", true), "Enable the WebSocket read-surface transport")
	flag.StringVar(&c.ReadSurfaceAddr, "readsurface-addr", envStr("READSURFACE_ADDR", ":8100"), "Read-surface listen address")
	flag.IntVar(&c.ReadSurfaceSendBuffer, "readsurface-send-buffer", envInt("READSURFACE_SEND_BUFFER", 256), "Per-client send buffer size")

	flag.BoolVar(&c.MongoEnabled, "mongo-enabled", envBool("MONGO_ENABLED", false), "Enable the MongoDB run registry")
	flag.StringVar(&c.MongoURI, "mongo-uri", envStr("MONGO_URI", "mongodb://localhost:27017/silentobserver"), "MongoDB connection URI")

	flag.StringVar(&c.ArchiveS3Bucket, "archive-s3-bucket", envStr("ARCHIVE_S3_BUCKET", ""), "S3 bucket for trigger-log archival (empty = disabled)")
	flag.StringVar(&c.ArchiveS3Region, "archive-s3-region", envStr("ARCHIVE_S3_REGION", "us-east-1"), "AWS region for S3")
	flag.StringVar(&c.ArchiveS3Prefix, "archive-s3-prefix", envStr("ARCHIVE_S3_PREFIX", "silentobserver"), "S3 key prefix for archived trigger logs")
	flag.IntVar(&c.ArchiveIntervalHours, "archive-interval-hours", envInt("ARCHIVE_INTERVAL_HOURS", 6), "Hours between archive sweeps")
	flag.IntVar(&c.ArchiveAfterHours, "archive-after-hours", envInt("ARCHIVE_AFTER_HOURS", 24), "Archive trigger-log files older than this many hours")
	flag.IntVar(&c.ArchiveMaxGB, "archive-max-gb", envInt("ARCHIVE_MAX_GB", 5), "Maximum local trigger-log directory size in GB before oldest-first pruning")

	flag.Int64Var(&c.AdapterSeed, "adapter-seed", envInt64("ADAPTER_SEED", 0), "PRNG seed for the synthetic feed source (0 = time-derived)")
	flag.BoolVar(&c.AdapterStressEnabled, "adapter-stress-enabled", envBool("ADAPTER_STRESS_ENABLED", false), "Vary the synthetic feed's cadence/volatility via a stress controller")

	flag.IntVar(&c.MaxRuntimeS, "max-runtime-s", envInt("MAX_RUNTIME_S", 0), "Bounded runtime in seconds (0 = unbounded)")

	flag.Parse()

	if *conID != 0 {
		c.ConID = *conID
		c.HasConID = true
	}

	return c
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
