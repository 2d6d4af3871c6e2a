// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package assistant ties the classifier, policy mapper, pending-action
// store, dispatcher, and conversation recorder into the chat state
// machine, and exposes it over HTTP.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stewardai/steward/services/assistant/action"
	"github.com/stewardai/steward/services/assistant/conversation"
	"github.com/stewardai/steward/services/assistant/dispatch"
	"github.com/stewardai/steward/services/assistant/intent"
	"github.com/stewardai/steward/services/assistant/pending"
	"github.com/stewardai/steward/services/assistant/policy"
	"github.com/stewardai/steward/services/llm"
)

// historyLimit is the number of prior turns fed to the classifier and the
// conversational fallback.
const historyLimit = 10

// conversationalMaxTokens bounds free-form reply generation.
const conversationalMaxTokens = 1024

// suggestedConfirmActions are the quick-reply options shown with a
// confirmation prompt.
var suggestedConfirmActions = []string{"yes", "no", "modify"}

// Reply is the orchestrator's answer to one chat or confirm call.
type Reply struct {
	// Text is the user-facing reply.
	Text string

	// SessionID identifies the session, newly minted when the request
	// carried none.
	SessionID string

	// ActionRequired is true when the reply is a confirmation prompt and
	// the client should offer SuggestedActions.
	ActionRequired bool

	// SuggestedActions are quick replies, only set with ActionRequired.
	SuggestedActions []string
}

// Orchestrator drives the per-session chat state machine.
//
// Description:
//
//	Every error kind from the collaborators is converted to a user-facing
//	reply here; the only errors HandleMessage and HandleConfirmation
//	return are backing-store failures, which callers surface as a
//	service-level error. Each request is handled independently; sessions
//	never block each other, and the pending store's atomic resolve is the
//	sole cross-request synchronization.
//
// Thread Safety: Orchestrator is safe for concurrent use.
type Orchestrator struct {
	classifier *intent.Classifier
	chat       llm.Client
	store      pending.Store
	dispatcher *dispatch.Dispatcher
	recorder   conversation.Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewOrchestrator wires the chat pipeline together. All collaborators are
// required.
func NewOrchestrator(
	classifier *intent.Classifier,
	chat llm.Client,
	store pending.Store,
	dispatcher *dispatch.Dispatcher,
	recorder conversation.Recorder,
) (*Orchestrator, error) {
	if classifier == nil || chat == nil || store == nil || dispatcher == nil || recorder == nil {
		return nil, fmt.Errorf("assistant: all orchestrator collaborators must be non-nil")
	}
	return &Orchestrator{
		classifier: classifier,
		chat:       chat,
		store:      store,
		dispatcher: dispatcher,
		recorder:   recorder,
		logger:     slog.Default(),
		now:        time.Now,
	}, nil
}

// HandleMessage processes one user message.
//
// Description:
//
//	Appends the user turn, classifies, maps through the policy table, and
//	then either replies conversationally, asks a clarifying question,
//	parks a confirmable action, or dispatches a read-only action
//	immediately. Classification failures degrade to a generic reply; only
//	backing-store failures return an error.
//
// Inputs:
//   - ctx: Request context.
//   - userID: The requesting user. Must not be empty.
//   - sessionID: The chat session. Empty starts a new session.
//   - text: The user's message.
//
// Outputs:
//   - Reply: The user-facing reply, always populated on nil error.
//   - error: Non-nil only when conversation or pending storage fails.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID, sessionID, text string) (Reply, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	log := o.logger.With(slog.String("session_id", sessionID), slog.String("user_id", userID))

	// History must predate the current message; read it before appending.
	history, err := o.recorder.Recent(ctx, sessionID, historyLimit)
	if err != nil {
		return Reply{}, fmt.Errorf("assistant: reading history: %w", err)
	}

	if err := o.recorder.Append(ctx, sessionID, userID, conversation.Turn{
		Role:    conversation.RoleUser,
		Content: text,
	}); err != nil {
		return Reply{}, fmt.Errorf("assistant: recording user turn: %w", err)
	}

	classification, err := o.classifier.Classify(ctx, text, turnsToMessages(history), o.now())
	if err != nil {
		log.Warn("Classification failed, sending generic reply", slog.String("error", err.Error()))
		recordTurn("classification_failed")
		return o.reply(ctx, sessionID, userID, Reply{
			SessionID: sessionID,
			Text:      "I'm sorry, I had trouble understanding that. Could you rephrase it?",
		}, "", "")
	}

	mapped, err := policy.Map(classification)
	var incomplete *policy.IncompleteError
	switch {
	case errors.As(err, &incomplete):
		// Clarifying question; no pending action is created.
		recordTurn("clarification")
		return o.reply(ctx, sessionID, userID, Reply{
			SessionID: sessionID,
			Text:      incomplete.Prompt(),
		}, classification.Intent, "")
	case err != nil:
		log.Error("Policy mapping failed", slog.String("error", err.Error()))
		return o.reply(ctx, sessionID, userID, Reply{
			SessionID: sessionID,
			Text:      "I'm sorry, something went wrong handling that request.",
		}, classification.Intent, "")
	case mapped == nil:
		return o.converse(ctx, sessionID, userID, text, history)
	}

	if mapped.RequiresConfirmation {
		pa := pending.PendingAction{
			SessionID: sessionID,
			UserID:    userID,
			Action:    *mapped,
		}
		if err := o.store.Put(ctx, pa); err != nil {
			return Reply{}, fmt.Errorf("assistant: parking pending action: %w", err)
		}
		log.Info("Pending action stored",
			slog.String("intent", classification.Intent),
			slog.String("operation", mapped.Operation),
		)
		recordTurn("confirmation_requested")
		return o.reply(ctx, sessionID, userID, Reply{
			SessionID:        sessionID,
			Text:             fmt.Sprintf("I'll %s. Should I proceed?", mapped.Describe()),
			ActionRequired:   true,
			SuggestedActions: suggestedConfirmActions,
		}, classification.Intent, mapped.Describe())
	}

	// Read-only operation: dispatch immediately, no confirmation step.
	result := o.dispatcher.Dispatch(ctx, *mapped)
	recordTurn("dispatched")
	return o.reply(ctx, sessionID, userID, Reply{
		SessionID: sessionID,
		Text:      replyForResult(*mapped, result),
	}, classification.Intent, resultSummary(*mapped, result))
}

// HandleConfirmation resolves a pending action for the session.
//
// Description:
//
//	Resolution is atomic and single-use: a duplicate or concurrent
//	confirmation finds nothing pending and never re-dispatches. A
//	cancelled action is acknowledged without touching the dispatcher.
//
// Outputs:
//   - Reply: The user-facing reply.
//   - bool: False when there was nothing pending (the HTTP layer turns
//     this into its not-found shape).
//   - error: Non-nil only when storage fails.
func (o *Orchestrator) HandleConfirmation(ctx context.Context, sessionID string, confirmed bool) (Reply, bool, error) {
	log := o.logger.With(slog.String("session_id", sessionID))

	pa, err := o.store.Resolve(ctx, sessionID, confirmed)
	switch {
	case errors.Is(err, pending.ErrExpired):
		recordTurn("nothing_pending")
		return Reply{
			SessionID: sessionID,
			Text:      "That request expired before it was confirmed, so I didn't do anything. Please ask again if you still want it.",
		}, false, nil
	case errors.Is(err, pending.ErrNotFound):
		recordTurn("nothing_pending")
		return Reply{
			SessionID: sessionID,
			Text:      "There's nothing waiting for confirmation right now.",
		}, false, nil
	case err != nil:
		return Reply{}, false, fmt.Errorf("assistant: resolving pending action: %w", err)
	}

	if pa.Status == pending.StatusCancelled {
		log.Info("Pending action cancelled", slog.String("operation", pa.Action.Operation))
		recordTurn("cancelled")
		reply := Reply{
			SessionID: sessionID,
			Text:      fmt.Sprintf("Okay, I won't %s.", pa.Action.Describe()),
		}
		r, err := o.reply(ctx, sessionID, pa.UserID, reply, "", "cancelled: "+pa.Action.Describe())
		return r, true, err
	}

	result := o.dispatcher.Dispatch(ctx, pa.Action)
	recordTurn("dispatched")
	reply := Reply{
		SessionID: sessionID,
		Text:      replyForResult(pa.Action, result),
	}
	r, err := o.reply(ctx, sessionID, pa.UserID, reply, "", resultSummary(pa.Action, result))
	return r, true, err
}

// converse produces a free-form reply for messages that map to no tool.
func (o *Orchestrator) converse(ctx context.Context, sessionID, userID, text string, history []conversation.Turn) (Reply, error) {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{
		Role:    "system",
		Content: "You are Steward, a concise personal assistant. Answer helpfully in a few sentences.",
	})
	messages = append(messages, turnsToMessages(history)...)
	messages = append(messages, llm.Message{Role: "user", Content: text})

	params := llm.GenerationParams{}
	params.MaxTokens = intPtr(conversationalMaxTokens)

	answer, err := o.chat.Chat(ctx, messages, params)
	if err != nil {
		o.logger.Warn("Conversational reply failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		answer = "I'm sorry, I couldn't come up with a reply just now. Please try again."
	}

	recordTurn("conversational")
	return o.reply(ctx, sessionID, userID, Reply{SessionID: sessionID, Text: answer}, "", "")
}

// reply appends the assistant turn and returns the reply. Transcript
// failures at this point are fatal per the storage propagation policy.
func (o *Orchestrator) reply(ctx context.Context, sessionID, userID string, r Reply, intentName, actionSummary string) (Reply, error) {
	if err := o.recorder.Append(ctx, sessionID, userID, conversation.Turn{
		Role:          conversation.RoleAssistant,
		Content:       r.Text,
		Intent:        intentName,
		ActionSummary: actionSummary,
	}); err != nil {
		return Reply{}, fmt.Errorf("assistant: recording assistant turn: %w", err)
	}
	return r, nil
}

// replyForResult phrases a dispatch outcome for the user. The timeout case
// is deliberately worded as uncertain: the remote side effect may have
// happened, and a "failed, try again" message would invite a duplicate.
func replyForResult(act action.ToolAction, result action.ToolResult) string {
	if result.Succeeded() {
		if len(result.Payload) > 0 {
			return fmt.Sprintf("Done, I was able to %s. %s", act.Describe(), result.Summary())
		}
		return fmt.Sprintf("Done, I was able to %s.", act.Describe())
	}

	switch result.ErrorKind {
	case action.ErrorKindTimeout:
		return fmt.Sprintf("I asked to %s, but didn't hear back in time. It may or may not have gone through, so please check before asking me to try again.", act.Describe())
	case action.ErrorKindAuth:
		return fmt.Sprintf("I couldn't %s because I'm not authorized with %s right now. Please reconnect the account and try again.", act.Describe(), act.Tool)
	case action.ErrorKindNetwork:
		return fmt.Sprintf("I couldn't reach %s to %s. Please try again in a moment.", act.Tool, act.Describe())
	case action.ErrorKindUnknownTool:
		return "I'm sorry, that action isn't available right now."
	default:
		return fmt.Sprintf("I tried to %s but it didn't work: %s", act.Describe(), result.ErrorDetail)
	}
}

// resultSummary is the transcript note for a dispatched action.
func resultSummary(act action.ToolAction, result action.ToolResult) string {
	if result.Succeeded() {
		return fmt.Sprintf("%s: success (%s)", act.Describe(), result.Summary())
	}
	return fmt.Sprintf("%s: %s (%s)", act.Describe(), result.Status, result.ErrorKind)
}

// turnsToMessages converts transcript turns into LLM chat messages.
func turnsToMessages(turns []conversation.Turn) []llm.Message {
	messages := make([]llm.Message, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, llm.Message{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	return messages
}

func intPtr(v int) *int { return &v }
