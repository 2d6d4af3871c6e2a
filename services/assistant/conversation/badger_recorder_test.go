// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storage "github.com/stewardai/steward/services/storage/badger"
)

func openTestRecorder(t *testing.T) *BadgerRecorder {
	t.Helper()
	db, err := storage.OpenDB(storage.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rec, err := NewBadgerRecorder(db)
	require.NoError(t, err)
	return rec
}

func TestBadgerRecorder_AppendCreatesConversation(t *testing.T) {
	rec := openTestRecorder(t)
	ctx := context.Background()

	err := rec.Append(ctx, "s1", "u1", Turn{Role: RoleUser, Content: "send an email to bob"})
	require.NoError(t, err)

	conv, err := rec.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", conv.UserID)
	assert.Equal(t, 1, conv.TurnCount)
	assert.Equal(t, "send an email to bob", conv.Title)
	assert.False(t, conv.Archived)
}

func TestBadgerRecorder_TurnsOrdered(t *testing.T) {
	rec := openTestRecorder(t)
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		role := RoleUser
		if i%2 == 0 {
			role = RoleAssistant
		}
		require.NoError(t, rec.Append(ctx, "s1", "u1", Turn{
			Role:    role,
			Content: fmt.Sprintf("turn %d", i),
		}))
	}

	turns, err := rec.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 12)
	for i, turn := range turns {
		assert.Equal(t, i+1, turn.Seq)
		assert.Equal(t, fmt.Sprintf("turn %d", i+1), turn.Content)
		assert.NotEmpty(t, turn.ID)
	}
}

func TestBadgerRecorder_RecentReturnsNewestInOrder(t *testing.T) {
	rec := openTestRecorder(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, rec.Append(ctx, "s1", "u1", Turn{
			Role:    RoleUser,
			Content: fmt.Sprintf("turn %d", i),
		}))
	}

	recent, err := rec.Recent(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "turn 4", recent[0].Content)
	assert.Equal(t, "turn 5", recent[1].Content)

	none, err := rec.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBadgerRecorder_TitleFromFirstUserTurn(t *testing.T) {
	rec := openTestRecorder(t)
	ctx := context.Background()

	long := ""
	for i := 0; i < 20; i++ {
		long += "schedule "
	}
	require.NoError(t, rec.Append(ctx, "s1", "u1", Turn{Role: RoleUser, Content: long}))
	require.NoError(t, rec.Append(ctx, "s1", "u1", Turn{Role: RoleAssistant, Content: "ok"}))

	conv, err := rec.Get(ctx, "s1")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(conv.Title), titleMaxLen+3)
	assert.Contains(t, conv.Title, "schedule")
}

func TestBadgerRecorder_ListByUser(t *testing.T) {
	rec := openTestRecorder(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	clock := base
	rec.now = func() time.Time { return clock }

	require.NoError(t, rec.Append(ctx, "s1", "u1", Turn{Role: RoleUser, Content: "first"}))
	clock = base.Add(time.Minute)
	require.NoError(t, rec.Append(ctx, "s2", "u1", Turn{Role: RoleUser, Content: "second"}))
	clock = base.Add(2 * time.Minute)
	require.NoError(t, rec.Append(ctx, "s3", "u2", Turn{Role: RoleUser, Content: "other user"}))

	convs, err := rec.List(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "s2", convs[0].SessionID, "newest activity first")
	assert.Equal(t, "s1", convs[1].SessionID)
}

func TestBadgerRecorder_ArchiveIsSoftDelete(t *testing.T) {
	rec := openTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, rec.Append(ctx, "s1", "u1", Turn{Role: RoleUser, Content: "hello"}))
	require.NoError(t, rec.Archive(ctx, "s1"))

	// Gone from default listing…
	convs, err := rec.List(ctx, "u1", false)
	require.NoError(t, err)
	assert.Empty(t, convs)

	// …still present when archived are included, transcript intact.
	convs, err = rec.List(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.True(t, convs[0].Archived)

	turns, err := rec.Turns(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestBadgerRecorder_AppendUnarchives(t *testing.T) {
	rec := openTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, rec.Append(ctx, "s1", "u1", Turn{Role: RoleUser, Content: "hello"}))
	require.NoError(t, rec.Archive(ctx, "s1"))
	require.NoError(t, rec.Append(ctx, "s1", "u1", Turn{Role: RoleUser, Content: "back again"}))

	conv, err := rec.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, conv.Archived)
	assert.Equal(t, 2, conv.TurnCount)
}

func TestBadgerRecorder_ArchiveUnknownSession(t *testing.T) {
	rec := openTestRecorder(t)
	err := rec.Archive(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerRecorder_AppendRejectsBadInput(t *testing.T) {
	rec := openTestRecorder(t)
	ctx := context.Background()

	assert.Error(t, rec.Append(ctx, "", "u1", Turn{Role: RoleUser, Content: "x"}))
	assert.Error(t, rec.Append(ctx, "s1", "u1", Turn{Role: "narrator", Content: "x"}))
}
