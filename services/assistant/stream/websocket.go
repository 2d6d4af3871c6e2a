// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream delivers assistant replies over a WebSocket, chunked
// for incremental rendering. The connection speaks a small JSON frame
// protocol: the client sends chat, confirm, and ping frames; the server
// answers with connected, status, stream, complete, pong, and error
// frames. Every reply goes through the same orchestrator as the REST
// endpoint, so both surfaces behave identically.
package stream

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stewardai/steward/services/assistant"
)

// readLimit caps inbound frame size. Chat messages are short; anything
// larger is a misbehaving client.
const readLimit = 64 * 1024

// Frame type values on the wire.
const (
	frameConnected = "connected"
	frameStatus    = "status"
	frameStream    = "stream"
	frameComplete  = "complete"
	framePong      = "pong"
	frameError     = "error"
)

// inboundFrame is a client-to-server message.
type inboundFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Confirmed *bool  `json:"confirmed,omitempty"`
}

// outboundFrame is a server-to-client message. Fields are populated
// per frame type; Timestamp is always set.
type outboundFrame struct {
	Type             string   `json:"type"`
	SessionID        string   `json:"session_id,omitempty"`
	Chunk            string   `json:"chunk,omitempty"`
	ReplyText        string   `json:"reply_text,omitempty"`
	ActionRequired   bool     `json:"action_required,omitempty"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
	Status           string   `json:"status,omitempty"`
	Error            string   `json:"error,omitempty"`
	Timestamp        string   `json:"ts"`
}

// Config controls the stream handler.
type Config struct {
	// ChunkSize is the reply chunk length in runes. Zero uses
	// DefaultChunkSize.
	ChunkSize int

	// AllowedOrigins lists browser origins permitted to connect. Empty
	// allows only same-origin and non-browser clients. "*" allows all.
	AllowedOrigins []string
}

// Handler upgrades chat connections to WebSockets and streams replies.
//
// Thread Safety: Handler is safe for concurrent use. Each connection is
// served by the goroutine that accepted it; frames for one connection
// are written only from that goroutine.
type Handler struct {
	orch      *assistant.Orchestrator
	chunkSize int
	upgrader  websocket.Upgrader
}

// NewHandler creates a stream handler backed by the given orchestrator.
func NewHandler(orch *assistant.Orchestrator, config Config) (*Handler, error) {
	if orch == nil {
		return nil, errors.New("stream: orchestrator is required")
	}
	return &Handler{
		orch:      orch,
		chunkSize: config.ChunkSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(config.AllowedOrigins),
		},
	}, nil
}

// checkOrigin validates the Origin header against the configured list.
// Requests without an Origin header (non-browser clients) always pass.
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// RegisterRoutes registers the streaming endpoint with the router.
//
// Endpoints:
//
//	GET /v1/assistant/chat/stream - WebSocket chat
func RegisterRoutes(rg *gin.RouterGroup, handler *Handler) {
	rg.GET("/assistant/chat/stream", handler.HandleStream)
}

// HandleStream handles GET /v1/assistant/chat/stream.
//
// Description:
//
//	Upgrades the request to a WebSocket and serves chat frames until the
//	client disconnects. The user_id query parameter is required; an
//	omitted session_id mints a fresh session, announced in the connected
//	frame.
//
// Query Parameters:
//
//	user_id - Owner of the conversation (required)
//	session_id - Existing session to continue (optional)
func (h *Handler) HandleStream(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, assistant.ErrorResponse{
			Error: "user_id parameter is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}
	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(readLimit)

	logger := slog.With(
		"handler", "HandleStream",
		"user_id", userID,
		"session_id", sessionID,
	)
	recordConnection()
	logger.Info("stream connected")

	h.send(conn, outboundFrame{Type: frameConnected, SessionID: sessionID})

	for {
		var in inboundFrame
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("stream closed")
			} else {
				logger.Warn("stream read error", slog.String("error", err.Error()))
			}
			return
		}

		switch in.Type {
		case "chat", "":
			sessionID = h.handleChat(c, conn, logger, userID, sessionID, in.Message)
		case "confirm":
			h.handleConfirm(c, conn, logger, sessionID, in.Confirmed)
		case "ping":
			h.send(conn, outboundFrame{Type: framePong})
		default:
			h.send(conn, outboundFrame{Type: frameError, Error: "unknown frame type: " + in.Type})
		}
	}
}

// handleChat runs one message through the orchestrator and streams the
// reply. Returns the session ID, which the orchestrator may have minted.
func (h *Handler) handleChat(c *gin.Context, conn *websocket.Conn, logger *slog.Logger, userID, sessionID, message string) string {
	if message == "" {
		h.send(conn, outboundFrame{Type: frameError, Error: "empty message"})
		return sessionID
	}

	h.send(conn, outboundFrame{Type: frameStatus, Status: "processing", SessionID: sessionID})

	reply, err := h.orch.HandleMessage(c.Request.Context(), userID, sessionID, message)
	if err != nil {
		logger.Error("chat failed", slog.String("error", err.Error()))
		h.send(conn, outboundFrame{Type: frameError, Error: "service temporarily unavailable"})
		return sessionID
	}

	h.streamReply(conn, reply)
	return reply.SessionID
}

// handleConfirm resolves a pending action over the socket.
func (h *Handler) handleConfirm(c *gin.Context, conn *websocket.Conn, logger *slog.Logger, sessionID string, confirmed *bool) {
	if confirmed == nil {
		h.send(conn, outboundFrame{Type: frameError, Error: "confirmed is required"})
		return
	}

	reply, _, err := h.orch.HandleConfirmation(c.Request.Context(), sessionID, *confirmed)
	if err != nil {
		logger.Error("confirm failed", slog.String("error", err.Error()))
		h.send(conn, outboundFrame{Type: frameError, Error: "service temporarily unavailable"})
		return
	}

	reply.SessionID = sessionID
	h.streamReply(conn, reply)
}

// streamReply writes the reply as stream chunks followed by a complete
// frame carrying the full text.
func (h *Handler) streamReply(conn *websocket.Conn, reply assistant.Reply) {
	for _, chunk := range Chunks(reply.Text, h.chunkSize) {
		h.send(conn, outboundFrame{Type: frameStream, Chunk: chunk, SessionID: reply.SessionID})
	}
	h.send(conn, outboundFrame{
		Type:             frameComplete,
		ReplyText:        reply.Text,
		SessionID:        reply.SessionID,
		ActionRequired:   reply.ActionRequired,
		SuggestedActions: reply.SuggestedActions,
	})
}

func (h *Handler) send(conn *websocket.Conn, frame outboundFrame) {
	frame.Timestamp = time.Now().UTC().Format(time.RFC3339)
	if err := conn.WriteJSON(frame); err != nil {
		slog.Warn("stream write failed", slog.String("error", err.Error()))
		return
	}
	recordFrame(frame.Type)
}
