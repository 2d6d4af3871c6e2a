// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package conversation persists chat transcripts. Turns are append-only;
// a conversation is never edited or hard-deleted, only archived.
package conversation

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound means no conversation exists for the session.
var ErrNotFound = errors.New("conversation: not found")

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation is the per-session transcript header shown in listings.
type Conversation struct {
	// SessionID identifies the conversation; it doubles as the chat
	// session ID throughout the service.
	SessionID string `json:"session_id"`

	// UserID owns the conversation.
	UserID string `json:"user_id"`

	// Title is derived from the first user message.
	Title string `json:"title"`

	// TurnCount is the number of appended turns.
	TurnCount int `json:"turn_count"`

	// Archived conversations stay readable but drop out of default
	// listings. Soft delete only.
	Archived bool `json:"archived"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Turn is one transcript entry.
type Turn struct {
	// ID uniquely identifies the turn.
	ID string `json:"id"`

	// Seq is the append order within the conversation, starting at 1.
	Seq int `json:"seq"`

	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Intent is the classified intent for user turns that triggered a
	// tool path. Empty for conversational turns and assistant turns.
	Intent string `json:"intent,omitempty"`

	// ActionSummary is the one-line description of a dispatched or
	// pending action associated with this turn, when there was one.
	ActionSummary string `json:"action_summary,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Recorder is the transcript persistence contract.
//
// Description:
//
//	Append creates the conversation on first write and adds one turn.
//	Recent returns the newest turns in chronological order, for prompt
//	history. Turns returns the full transcript. List returns a user's
//	conversations, newest activity first, excluding archived ones unless
//	asked. Archive soft-deletes; appending to an archived conversation
//	is allowed and un-archives it.
type Recorder interface {
	Append(ctx context.Context, sessionID, userID string, turn Turn) error
	Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error)
	Turns(ctx context.Context, sessionID string) ([]Turn, error)
	Get(ctx context.Context, sessionID string) (Conversation, error)
	List(ctx context.Context, userID string, includeArchived bool) ([]Conversation, error)
	Archive(ctx context.Context, sessionID string) error
}
