// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package assistant

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stewardai/steward/services/assistant/conversation"
)

// ErrorResponse is the JSON error envelope for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id"`
}

// ChatResponse is the reply shape shared by /chat and /confirm.
type ChatResponse struct {
	ReplyText        string   `json:"reply_text"`
	SessionID        string   `json:"session_id"`
	ActionRequired   bool     `json:"action_required"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
}

// ConfirmRequest is the body of POST /confirm/:session_id. Confirmed is a
// pointer so an explicit false binds.
type ConfirmRequest struct {
	Confirmed *bool `json:"confirmed" binding:"required"`
}

// ConversationResponse is one conversation header in listings.
type ConversationResponse struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	TurnCount int    `json:"turn_count"`
	Archived  bool   `json:"archived"`
	UpdatedAt string `json:"updated_at"`
}

// ConversationDetailResponse is the full transcript of one conversation.
type ConversationDetailResponse struct {
	ConversationResponse
	Turns []TurnResponse `json:"turns"`
}

// TurnResponse is one transcript entry on the wire.
type TurnResponse struct {
	Seq           int    `json:"seq"`
	Role          string `json:"role"`
	Content       string `json:"content"`
	Intent        string `json:"intent,omitempty"`
	ActionSummary string `json:"action_summary,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// HealthCheck reports backing-store liveness. Wired in main.
type HealthCheck func(ctx context.Context) error

// Handlers carries the HTTP handlers for the assistant service.
//
// Thread Safety: Handlers is safe for concurrent use.
type Handlers struct {
	orch     *Orchestrator
	recorder conversation.Recorder
	health   HealthCheck
}

// NewHandlers creates the handler set.
//
// Inputs:
//   - orch: The chat orchestrator. Must not be nil.
//   - recorder: Transcript store for the listing endpoints.
//   - health: Liveness probe for /health. May be nil (always healthy).
func NewHandlers(orch *Orchestrator, recorder conversation.Recorder, health HealthCheck) *Handlers {
	return &Handlers{orch: orch, recorder: recorder, health: health}
}

// getOrCreateRequestID returns the inbound X-Request-ID or mints one.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// HandleChat handles POST /v1/assistant/chat.
//
// Description:
//
//	Runs the full classify/confirm/dispatch state machine for one user
//	message. Per-turn failures (classification, incomplete parameters,
//	adapter errors) come back as 200 with a user-facing reply; only
//	backing-store unavailability is a 5xx.
//
// Response:
//
//	200 OK: ChatResponse
//	400 Bad Request: malformed body
//	500 Internal Server Error: storage failure
func (h *Handlers) HandleChat(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleChat")

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "user_id and message are required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	reply, err := h.orch.HandleMessage(c.Request.Context(), req.UserID, req.SessionID, req.Message)
	if err != nil {
		logger.Error("chat failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal storage failure",
			Code:  "STORAGE_UNAVAILABLE",
		})
		return
	}

	logger.Info("chat handled",
		slog.String("session_id", reply.SessionID),
		slog.Bool("action_required", reply.ActionRequired),
	)

	c.JSON(http.StatusOK, ChatResponse{
		ReplyText:        reply.Text,
		SessionID:        reply.SessionID,
		ActionRequired:   reply.ActionRequired,
		SuggestedActions: reply.SuggestedActions,
	})
}

// HandleConfirm handles POST /v1/assistant/confirm/:session_id.
//
// Response:
//
//	200 OK: ChatResponse (action resolved, confirmed or cancelled)
//	404 Not Found: nothing pending for the session
//	400 Bad Request: malformed body
func (h *Handlers) HandleConfirm(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleConfirm")

	sessionID := c.Param("session_id")

	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "confirmed is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	reply, resolved, err := h.orch.HandleConfirmation(c.Request.Context(), sessionID, *req.Confirmed)
	if err != nil {
		logger.Error("confirm failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal storage failure",
			Code:  "STORAGE_UNAVAILABLE",
		})
		return
	}

	status := http.StatusOK
	if !resolved {
		status = http.StatusNotFound
	}

	logger.Info("confirmation handled",
		slog.String("session_id", sessionID),
		slog.Bool("resolved", resolved),
		slog.Bool("confirmed", *req.Confirmed),
	)

	c.JSON(status, ChatResponse{
		ReplyText: reply.Text,
		SessionID: sessionID,
	})
}

// HandleListConversations handles GET /v1/assistant/conversations.
//
// Query Parameters:
//
//	user_id: Owner of the conversations (required)
//	include_archived: "true" to include archived conversations
func (h *Handlers) HandleListConversations(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "user_id parameter is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	includeArchived := c.Query("include_archived") == "true"

	convs, err := h.recorder.List(c.Request.Context(), userID, includeArchived)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "failed to list conversations",
			Code:  "STORAGE_UNAVAILABLE",
		})
		return
	}

	out := make([]ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		out = append(out, conversationResponse(conv))
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

// HandleGetConversation handles GET /v1/assistant/conversations/:session_id.
func (h *Handlers) HandleGetConversation(c *gin.Context) {
	sessionID := c.Param("session_id")

	conv, err := h.recorder.Get(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "conversation not found",
			Code:  "NOT_FOUND",
		})
		return
	}

	turns, err := h.recorder.Turns(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "failed to read transcript",
			Code:  "STORAGE_UNAVAILABLE",
		})
		return
	}

	detail := ConversationDetailResponse{
		ConversationResponse: conversationResponse(conv),
		Turns:                make([]TurnResponse, 0, len(turns)),
	}
	for _, turn := range turns {
		detail.Turns = append(detail.Turns, TurnResponse{
			Seq:           turn.Seq,
			Role:          string(turn.Role),
			Content:       turn.Content,
			Intent:        turn.Intent,
			ActionSummary: turn.ActionSummary,
			CreatedAt:     turn.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	c.JSON(http.StatusOK, detail)
}

// HandleArchiveConversation handles POST /v1/assistant/conversations/:session_id/archive.
func (h *Handlers) HandleArchiveConversation(c *gin.Context) {
	sessionID := c.Param("session_id")

	if err := h.recorder.Archive(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "conversation not found",
			Code:  "NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"archived": true})
}

// HandleHealth handles GET /v1/assistant/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error: "backing store unavailable",
				Code:  "UNHEALTHY",
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func conversationResponse(conv conversation.Conversation) ConversationResponse {
	return ConversationResponse{
		SessionID: conv.SessionID,
		Title:     conv.Title,
		TurnCount: conv.TurnCount,
		Archived:  conv.Archived,
		UpdatedAt: conv.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
