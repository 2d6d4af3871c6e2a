// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	storage "github.com/stewardai/steward/services/storage/badger"
)

var storeTracer = otel.Tracer("steward.assistant.pending")

const keyPrefix = "pending/"

// resolveRetries bounds optimistic-concurrency retries on Resolve. A
// conflicting commit means another resolver won; the retry then observes
// the deleted key and returns ErrNotFound.
const resolveRetries = 3

// BadgerStore implements Store on an embedded BadgerDB.
//
// Description:
//
//	One entry per session under "pending/<session_id>". Badger's native
//	per-entry TTL is the backstop for expiry; Get and Resolve also check
//	ExpiresAt themselves so an entry Badger has not yet purged still reads
//	as expired. Resolve relies on Badger's serializable transactions for
//	its single-use guarantee.
//
// Thread Safety: BadgerStore is safe for concurrent use.
type BadgerStore struct {
	db  *storage.DB
	ttl time.Duration

	// now is injectable for expiry tests.
	now func() time.Time
}

// NewBadgerStore creates a pending-action store on db.
//
// Inputs:
//   - db: The opened database. Must not be nil.
//   - ttl: Confirmation window per action. Zero takes DefaultTTL.
//
// Outputs:
//   - *BadgerStore: The configured store.
//   - error: Non-nil if db is nil.
func NewBadgerStore(db *storage.DB, ttl time.Duration) (*BadgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pending: db must not be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &BadgerStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Put stores pa, superseding any action already pending for the session.
//
// Description:
//
//	Fills in ID, Status, CreatedAt, and ExpiresAt when the caller left
//	them zero. The entry carries a Badger TTL matching ExpiresAt, so even
//	a crashed process cannot leak confirmable actions past the window.
func (s *BadgerStore) Put(ctx context.Context, pa PendingAction) error {
	if pa.SessionID == "" {
		return fmt.Errorf("pending: session id must not be empty")
	}

	now := s.now()
	if pa.ID == "" {
		pa.ID = uuid.NewString()
	}
	if pa.Status == "" {
		pa.Status = StatusAwaiting
	}
	if pa.CreatedAt.IsZero() {
		pa.CreatedAt = now
	}
	if pa.ExpiresAt.IsZero() {
		pa.ExpiresAt = pa.CreatedAt.Add(s.ttl)
	}

	data, err := json.Marshal(pa)
	if err != nil {
		return fmt.Errorf("pending: marshaling action: %w", err)
	}

	ttl := pa.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("pending: action already expired at put")
	}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(keyPrefix+pa.SessionID), data).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("pending: storing action for session %s: %w", pa.SessionID, err)
	}
	recordPendingOp("put", "success")
	return nil
}

// Get returns the pending action for a session without consuming it.
func (s *BadgerStore) Get(ctx context.Context, sessionID string) (PendingAction, error) {
	var pa PendingAction

	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &pa)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return PendingAction{}, ErrNotFound
	}
	if err != nil {
		return PendingAction{}, fmt.Errorf("pending: reading session %s: %w", sessionID, err)
	}

	if pa.Expired(s.now()) {
		return PendingAction{}, ErrExpired
	}
	return pa, nil
}

// Resolve atomically removes and returns the pending action for a session.
//
// Description:
//
//	Read and delete happen in one read-write transaction. When two
//	resolvers race, Badger aborts the second commit with a conflict; the
//	retry then finds the key gone and reports ErrNotFound, so exactly one
//	caller ever receives the action. An entry past its window is deleted
//	and reported as ErrExpired rather than returned. The returned action
//	carries StatusConfirmed or StatusCancelled per the confirmed flag;
//	resolution is single-use either way.
func (s *BadgerStore) Resolve(ctx context.Context, sessionID string, confirmed bool) (PendingAction, error) {
	ctx, span := storeTracer.Start(ctx, "BadgerStore.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))

	var lastErr error
	for attempt := 0; attempt < resolveRetries; attempt++ {
		var pa PendingAction
		expired := false

		err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
			key := []byte(keyPrefix + sessionID)
			item, err := txn.Get(key)
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &pa)
			}); err != nil {
				return err
			}
			expired = pa.Expired(s.now())
			return txn.Delete(key)
		})

		switch {
		case err == nil:
			if expired {
				recordPendingOp("resolve", "expired")
				return PendingAction{}, ErrExpired
			}
			if confirmed {
				pa.Status = StatusConfirmed
			} else {
				pa.Status = StatusCancelled
			}
			recordPendingOp("resolve", "success")
			return pa, nil
		case errors.Is(err, badger.ErrKeyNotFound):
			recordPendingOp("resolve", "not_found")
			return PendingAction{}, ErrNotFound
		case errors.Is(err, badger.ErrConflict):
			lastErr = err
			continue
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "resolve failed")
			recordPendingOp("resolve", "error")
			return PendingAction{}, fmt.Errorf("pending: resolving session %s: %w", sessionID, err)
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "resolve retries exhausted")
	recordPendingOp("resolve", "conflict")
	return PendingAction{}, fmt.Errorf("pending: resolving session %s: %w", sessionID, lastErr)
}
