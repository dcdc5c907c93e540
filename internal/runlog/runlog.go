// Package runlog is the optional MongoDB-backed run registry: one
// document per kernel process run, upserted "running" at startup and
// finalized at shutdown, for post-hoc querying across runs. It is never
// required for the kernel's own correctness — mongo.enabled=false (the
// default) skips it entirely, matching the teacher's own opt-in
// (S3Bucket == "") pattern for its archiver.
//
// Grounded on the teacher's internal/persist package (Store, EnsureIndexes,
// the transactional upsert idiom in Snapshotter.Save), reduced from
// "upsert 30 symbols' prices, replace all resting orders, persist PRNG
// state" to "upsert one run-registry document at startup, finalize it at
// shutdown" — none of the former exist in a system with no order book and
// no multi-instrument state.
package runlog

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// RunRecord is the per-run registry document.
type RunRecord struct {
	RunID            string    `bson:"run_id" json:"run_id"`
	ConfigHash       string    `bson:"config_hash" json:"config_hash"`
	Symbol           string    `bson:"symbol" json:"symbol"`
	ContractKey      string    `bson:"contract_key" json:"contract_key"`
	RunStartTSUnixMS uint64    `bson:"run_start_ts_unix_ms" json:"run_start_ts_unix_ms"`
	RunEndTSUnixMS   *uint64   `bson:"run_end_ts_unix_ms" json:"run_end_ts_unix_ms"`
	Summary          bson.M    `bson:"summary,omitempty" json:"summary,omitempty"`
	UpdatedAt        time.Time `bson:"updated_at" json:"updated_at"`
}

// Store wraps the MongoDB client/database holding the run_registry
// collection.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB at uri and ensures the run_registry index exists.
// A connection or index failure here is never fatal to the kernel — see
// SPEC_FULL.md §7 — callers should log and continue without a Store
// rather than abort the run.
func Connect(ctx context.Context, uri string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("runlog: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("runlog: ping: %w", err)
	}

	dbName := "silentobserver"
	if u, err := url.Parse(uri); err == nil {
		if name := strings.TrimPrefix(u.Path, "/"); name != "" {
			dbName = name
		}
	}
	db := client.Database(dbName)

	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "run_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := db.Collection("run_registry").Indexes().CreateOne(ctx, idx); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("runlog: ensure index: %w", err)
	}

	return &Store{client: client, db: db}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// UpsertRunning records (or re-records, on restart) a run as currently
// in progress.
func (s *Store) UpsertRunning(ctx context.Context, runID, configHash, symbol, contractKey string, runStartUnixMS uint64) error {
	_, err := s.db.Collection("run_registry").UpdateOne(ctx,
		bson.M{"run_id": runID},
		bson.M{"$set": bson.M{
			"run_id":               runID,
			"config_hash":          configHash,
			"symbol":               symbol,
			"contract_key":         contractKey,
			"run_start_ts_unix_ms": runStartUnixMS,
			"run_end_ts_unix_ms":   nil,
			"updated_at":           time.Now(),
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("runlog: upsert running: %w", err)
	}
	return nil
}

// Finalize stamps a run's end time and final metrics summary at shutdown.
func (s *Store) Finalize(ctx context.Context, runID string, runEndUnixMS uint64, summary bson.M) error {
	_, err := s.db.Collection("run_registry").UpdateOne(ctx,
		bson.M{"run_id": runID},
		bson.M{"$set": bson.M{
			"run_end_ts_unix_ms": runEndUnixMS,
			"summary":            summary,
			"updated_at":         time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("runlog: finalize: %w", err)
	}
	return nil
}
