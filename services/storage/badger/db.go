// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package badger wraps a BadgerDB instance behind a small transaction
// helper API so callers never hold a raw *badger.DB.
//
// BadgerDB was chosen over an external key-value service for the same
// reasons it serves well as service infrastructure elsewhere: it is
// embedded (no network hop, no availability dependency), it has native
// per-entry TTL enforced by its own GC, and access latency is measured
// in microseconds. The stores built on this package (pending actions,
// conversation transcripts) are per-node working state, not shared
// analytical data.
package badger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Config controls how the DB is opened.
type Config struct {
	// Path is the on-disk directory for the value log and LSM tree.
	// Ignored when InMemory is true.
	Path string

	// InMemory opens a purely in-memory instance. Used by tests and by
	// deployments that accept losing pending state on restart.
	InMemory bool

	// GCInterval is how often the value-log garbage collector runs.
	// Zero disables the background GC goroutine.
	GCInterval time.Duration

	// Logger receives Badger's own diagnostics. Nil silences them.
	Logger *slog.Logger
}

// DefaultConfig returns a config suitable for a service-global store:
// on-disk, GC every 10 minutes, Badger diagnostics silenced.
func DefaultConfig() Config {
	return Config{
		GCInterval: 10 * time.Minute,
	}
}

// DB owns one opened BadgerDB instance and its GC goroutine.
//
// Thread Safety: DB is safe for concurrent use. Badger transactions are
// per-goroutine; WithTxn and WithReadTxn each open their own.
type DB struct {
	inner  *badger.DB
	stopGC chan struct{}
}

// OpenDB opens (and if needed creates) the database described by cfg.
//
// Inputs:
//   - cfg: Open configuration. Path must be non-empty unless InMemory.
//
// Outputs:
//   - *DB: The opened handle. Caller must Close it.
//   - error: Non-nil if the directory cannot be opened or is locked by
//     another process.
func OpenDB(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("badger: path must not be empty for on-disk mode")
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithLogger(nil)

	inner, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %q: %w", cfg.Path, err)
	}

	db := &DB{inner: inner, stopGC: make(chan struct{})}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		go db.runGC(cfg.GCInterval, cfg.Logger)
	}

	return db, nil
}

// runGC periodically reclaims value-log space. Badger's GC must be driven
// by the application; a single pass per tick is enough for our write rates.
func (d *DB) runGC(interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopGC:
			return
		case <-ticker.C:
			err := d.inner.RunValueLogGC(0.5)
			if err != nil && err != badger.ErrNoRewrite && logger != nil {
				logger.Warn("badger value log GC failed", slog.String("error", err.Error()))
			}
		}
	}
}

// WithTxn runs fn inside a read-write transaction and commits it if fn
// returns nil. The context is checked before starting; Badger itself does
// not support mid-transaction cancellation.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.inner.Update(fn)
}

// WithReadTxn runs fn inside a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.inner.View(fn)
}

// Close stops the GC goroutine and closes the underlying database.
// Safe to call once; further transactions fail after Close.
func (d *DB) Close() error {
	close(d.stopGC)
	if err := d.inner.Close(); err != nil {
		return fmt.Errorf("badger: close: %w", err)
	}
	return nil
}
