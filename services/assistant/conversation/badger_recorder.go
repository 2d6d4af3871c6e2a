// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	storage "github.com/stewardai/steward/services/storage/badger"
)

// Key layout:
//
//	conv/<session_id>               -> Conversation
//	turn/<session_id>/<seq %08d>    -> Turn
//	user/<user_id>/<session_id>     -> (empty; listing index)
const (
	convPrefix = "conv/"
	turnPrefix = "turn/"
	userPrefix = "user/"
)

// appendRetries bounds optimistic-concurrency retries when two appends to
// the same session race over the sequence counter.
const appendRetries = 3

// titleMaxLen caps titles derived from the first user message.
const titleMaxLen = 60

// BadgerRecorder implements Recorder on an embedded BadgerDB.
//
// Thread Safety: BadgerRecorder is safe for concurrent use. Concurrent
// appends to one session serialize through transaction conflicts.
type BadgerRecorder struct {
	db *storage.DB

	// now is injectable for tests.
	now func() time.Time
}

// NewBadgerRecorder creates a transcript recorder on db.
func NewBadgerRecorder(db *storage.DB) (*BadgerRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("conversation: db must not be nil")
	}
	return &BadgerRecorder{db: db, now: time.Now}, nil
}

// Append adds one turn, creating the conversation on first write.
//
// Description:
//
//	The turn's Seq, ID, and CreatedAt are assigned here. The conversation
//	header is updated in the same transaction: turn count, activity
//	timestamp, title (from the first user turn), and archived flag
//	cleared. The sequence counter makes appends conflict when racing, so
//	turn order is total per session.
func (r *BadgerRecorder) Append(ctx context.Context, sessionID, userID string, turn Turn) error {
	if sessionID == "" {
		return fmt.Errorf("conversation: session id must not be empty")
	}
	if turn.Role != RoleUser && turn.Role != RoleAssistant {
		return fmt.Errorf("conversation: unknown turn role %q", turn.Role)
	}

	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		err := r.db.WithTxn(ctx, func(txn *badger.Txn) error {
			now := r.now()

			conv, err := readConversation(txn, sessionID)
			if errors.Is(err, ErrNotFound) {
				conv = Conversation{
					SessionID: sessionID,
					UserID:    userID,
					CreatedAt: now,
				}
			} else if err != nil {
				return err
			}

			conv.TurnCount++
			conv.UpdatedAt = now
			conv.Archived = false
			if conv.Title == "" && turn.Role == RoleUser {
				conv.Title = deriveTitle(turn.Content)
			}

			turn.ID = uuid.NewString()
			turn.Seq = conv.TurnCount
			turn.CreatedAt = now

			turnData, err := json.Marshal(turn)
			if err != nil {
				return fmt.Errorf("marshaling turn: %w", err)
			}
			convData, err := json.Marshal(conv)
			if err != nil {
				return fmt.Errorf("marshaling conversation: %w", err)
			}

			if err := txn.Set(turnKey(sessionID, turn.Seq), turnData); err != nil {
				return err
			}
			if err := txn.Set([]byte(convPrefix+sessionID), convData); err != nil {
				return err
			}
			if conv.UserID != "" {
				if err := txn.Set([]byte(userPrefix+conv.UserID+"/"+sessionID), nil); err != nil {
					return err
				}
			}
			return nil
		})

		if errors.Is(err, badger.ErrConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return fmt.Errorf("conversation: appending to session %s: %w", sessionID, err)
		}
		return nil
	}
	return fmt.Errorf("conversation: appending to session %s: %w", sessionID, lastErr)
}

// Recent returns the newest limit turns in chronological order.
func (r *BadgerRecorder) Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}

	turns, err := r.Turns(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

// Turns returns the full transcript in append order.
func (r *BadgerRecorder) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	var turns []Turn

	err := r.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := []byte(turnPrefix + sessionID + "/")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var turn Turn
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &turn)
			}); err != nil {
				return err
			}
			turns = append(turns, turn)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: reading turns for session %s: %w", sessionID, err)
	}
	return turns, nil
}

// Get returns the conversation header.
func (r *BadgerRecorder) Get(ctx context.Context, sessionID string) (Conversation, error) {
	var conv Conversation
	err := r.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		conv, err = readConversation(txn, sessionID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("conversation: reading session %s: %w", sessionID, err)
	}
	return conv, nil
}

// List returns a user's conversations, most recent activity first.
func (r *BadgerRecorder) List(ctx context.Context, userID string, includeArchived bool) ([]Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("conversation: user id must not be empty")
	}

	var convs []Conversation
	err := r.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := []byte(userPrefix + userID + "/")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			sessionID := string(it.Item().Key()[len(prefix):])
			conv, err := readConversation(txn, sessionID)
			if errors.Is(err, ErrNotFound) {
				continue // dangling index entry
			}
			if err != nil {
				return err
			}
			if conv.Archived && !includeArchived {
				continue
			}
			convs = append(convs, conv)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: listing for user %s: %w", userID, err)
	}

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	return convs, nil
}

// Archive soft-deletes a conversation. The transcript stays intact.
func (r *BadgerRecorder) Archive(ctx context.Context, sessionID string) error {
	err := r.db.WithTxn(ctx, func(txn *badger.Txn) error {
		conv, err := readConversation(txn, sessionID)
		if err != nil {
			return err
		}
		conv.Archived = true
		conv.UpdatedAt = r.now()

		data, err := json.Marshal(conv)
		if err != nil {
			return fmt.Errorf("marshaling conversation: %w", err)
		}
		return txn.Set([]byte(convPrefix+sessionID), data)
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("conversation: archiving session %s: %w", sessionID, err)
	}
	return nil
}

func readConversation(txn *badger.Txn, sessionID string) (Conversation, error) {
	item, err := txn.Get([]byte(convPrefix + sessionID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}

	var conv Conversation
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &conv)
	}); err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

func turnKey(sessionID string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s/%08d", turnPrefix, sessionID, seq))
}

func deriveTitle(content string) string {
	if len(content) <= titleMaxLen {
		return content
	}
	return content[:titleMaxLen] + "..."
}
