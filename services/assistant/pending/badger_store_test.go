// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pending

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardai/steward/services/assistant/action"
	storage "github.com/stewardai/steward/services/storage/badger"
)

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	db, err := storage.OpenDB(storage.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewBadgerStore(db, time.Hour)
	require.NoError(t, err)
	return store
}

func sampleAction() action.ToolAction {
	return action.ToolAction{
		Tool:      action.ToolGmail,
		Operation: "send_email",
		Parameters: map[string]any{
			"to":      "bob@example.com",
			"subject": "Hi",
			"body":    "Hello",
		},
		RequiresConfirmation: true,
	}
}

func TestBadgerStore_PutAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.Put(ctx, PendingAction{
		SessionID: "s1",
		UserID:    "u1",
		Action:    sampleAction(),
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, StatusAwaiting, got.Status)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.CreatedAt.IsZero())
	assert.True(t, got.ExpiresAt.After(got.CreatedAt))
	assert.Equal(t, "send_email", got.Action.Operation)
}

func TestBadgerStore_GetUnknownSession(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStore_PutSupersedes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := sampleAction()
	require.NoError(t, store.Put(ctx, PendingAction{SessionID: "s1", Action: first}))

	second := sampleAction()
	second.Operation = "create_draft"
	require.NoError(t, store.Put(ctx, PendingAction{SessionID: "s1", Action: second}))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "create_draft", got.Action.Operation,
		"newer pending action must replace the old one")

	// At most one pending action: resolving once drains the session.
	_, err = store.Resolve(ctx, "s1", true)
	require.NoError(t, err)
	_, err = store.Resolve(ctx, "s1", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStore_ResolveReturnsAndRemoves(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, PendingAction{SessionID: "s1", Action: sampleAction()}))

	got, err := store.Resolve(ctx, "s1", true)
	require.NoError(t, err)
	assert.Equal(t, "send_email", got.Action.Operation)
	assert.Equal(t, StatusConfirmed, got.Status)

	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStore_ResolveCancelledAlsoConsumes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, PendingAction{SessionID: "s1", Action: sampleAction()}))

	got, err := store.Resolve(ctx, "s1", false)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	// Cancellation is single-use too.
	_, err = store.Resolve(ctx, "s1", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStore_ResolveSingleUse(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, PendingAction{SessionID: "s1", Action: sampleAction()}))

	const resolvers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	losers := 0

	for i := 0; i < resolvers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Resolve(ctx, "s1", true)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrNotFound):
				losers++
			default:
				t.Errorf("unexpected resolve error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one resolver must win")
	assert.Equal(t, resolvers-1, losers)
}

func TestBadgerStore_LazyExpiry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, PendingAction{SessionID: "s1", Action: sampleAction()}))

	// Jump past the window without waiting for Badger's TTL sweep.
	store.now = func() time.Time { return now.Add(2 * time.Hour) }

	_, err := store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrExpired)
	assert.ErrorIs(t, err, ErrNotFound, "expired must also read as not found")

	_, err = store.Resolve(ctx, "s1", true)
	assert.ErrorIs(t, err, ErrExpired)

	// The expired entry was consumed by the resolve.
	_, err = store.Resolve(ctx, "s1", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStore_SessionsIsolated(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, PendingAction{SessionID: "s1", Action: sampleAction()}))
	require.NoError(t, store.Put(ctx, PendingAction{SessionID: "s2", Action: sampleAction()}))

	_, err := store.Resolve(ctx, "s1", true)
	require.NoError(t, err)

	got, err := store.Get(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, "s2", got.SessionID)
}

func TestBadgerStore_PutRejectsEmptySession(t *testing.T) {
	store := openTestStore(t)
	err := store.Put(context.Background(), PendingAction{Action: sampleAction()})
	assert.Error(t, err)
}

func TestNewBadgerStore_NilDB(t *testing.T) {
	_, err := NewBadgerStore(nil, time.Hour)
	assert.Error(t, err)
}
