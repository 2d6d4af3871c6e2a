// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pending holds actions parked between the confirmation prompt and
// the user's yes/no. The contract is strict: at most one pending action per
// session, a newer one silently supersedes the old, and resolution is
// single-use so two concurrent confirmations can never both dispatch.
package pending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stewardai/steward/services/assistant/action"
)

// DefaultTTL is how long a pending action waits for confirmation before it
// can no longer be resolved.
const DefaultTTL = time.Hour

// Status tracks where a pending action is in its lifecycle. Only
// StatusAwaiting entries live in the store; the other values exist for
// transcripts and replies after resolution.
type Status string

const (
	StatusAwaiting  Status = "awaiting_confirmation"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

var (
	// ErrNotFound means no pending action exists for the session. A loser
	// of a concurrent resolve race sees this, as does any confirmation
	// arriving after resolution.
	ErrNotFound = errors.New("pending: no action awaiting confirmation")

	// ErrExpired means an action existed but its confirmation window has
	// closed. It matches ErrNotFound under errors.Is so callers that only
	// care about "nothing to resolve" need one check.
	ErrExpired = fmt.Errorf("pending: action expired: %w", ErrNotFound)
)

// PendingAction is one parked tool action awaiting user confirmation.
type PendingAction struct {
	// ID uniquely identifies this parked action, for logs and transcripts.
	ID string `json:"id"`

	// SessionID is the owning chat session. The store keys on it.
	SessionID string `json:"session_id"`

	// UserID is the user who initiated the action.
	UserID string `json:"user_id"`

	// Action is the fully-mapped tool action to dispatch on confirmation.
	Action action.ToolAction `json:"action"`

	// Status is StatusAwaiting while stored.
	Status Status `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the confirmation window has closed at t.
func (p PendingAction) Expired(t time.Time) bool {
	return !p.ExpiresAt.IsZero() && !t.Before(p.ExpiresAt)
}

// Store is the pending-action persistence contract.
//
// Description:
//
//	Put stores an action, replacing any existing one for the session.
//	Get returns the current action without consuming it; an expired entry
//	reads as ErrExpired. Resolve atomically reads AND removes the action
//	in one step, returning it with status StatusConfirmed or
//	StatusCancelled per the confirmed flag: given N concurrent resolvers
//	for a session, exactly one receives the action and the rest receive
//	ErrNotFound.
type Store interface {
	Put(ctx context.Context, pa PendingAction) error
	Get(ctx context.Context, sessionID string) (PendingAction, error)
	Resolve(ctx context.Context, sessionID string, confirmed bool) (PendingAction, error)
}
