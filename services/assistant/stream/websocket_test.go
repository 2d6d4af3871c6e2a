// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardai/steward/services/assistant"
	"github.com/stewardai/steward/services/assistant/action"
	"github.com/stewardai/steward/services/assistant/conversation"
	"github.com/stewardai/steward/services/assistant/dispatch"
	"github.com/stewardai/steward/services/assistant/intent"
	"github.com/stewardai/steward/services/assistant/pending"
	"github.com/stewardai/steward/services/llm"
	storage "github.com/stewardai/steward/services/storage/badger"
)

type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return s.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, params)
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return s.responses[idx], nil
}

type stubAdapter struct {
	tool action.ToolType
}

func (a *stubAdapter) Tool() action.ToolType { return a.tool }

func (a *stubAdapter) Execute(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	return map[string]any{"message_id": "m1"}, nil
}

func newStreamServer(t *testing.T, responses ...string) *httptest.Server {
	t.Helper()

	db, err := storage.OpenDB(storage.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	scripted := &scriptedLLM{responses: responses}

	classifier, err := intent.NewClassifier(scripted, intent.Config{})
	require.NoError(t, err)
	store, err := pending.NewBadgerStore(db, time.Hour)
	require.NoError(t, err)
	rec, err := conversation.NewBadgerRecorder(db)
	require.NoError(t, err)
	dispatcher := dispatch.NewDispatcher(time.Second)
	require.NoError(t, dispatcher.Register(&stubAdapter{tool: action.ToolGmail}))

	orch, err := assistant.NewOrchestrator(classifier, scripted, store, dispatcher, rec)
	require.NoError(t, err)

	handler, err := NewHandler(orch, Config{ChunkSize: 16})
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router.Group("/v1"), handler)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/assistant/chat/stream?" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntilComplete collects stream chunks until the complete frame and
// returns both the reassembled text and the complete frame itself.
func readUntilComplete(t *testing.T, conn *websocket.Conn) (string, outboundFrame) {
	t.Helper()
	var streamed strings.Builder
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))

	for {
		var frame outboundFrame
		require.NoError(t, conn.ReadJSON(&frame))
		switch frame.Type {
		case frameStream:
			streamed.WriteString(frame.Chunk)
		case frameComplete:
			return streamed.String(), frame
		case frameStatus:
			// informational, keep reading
		case frameError:
			t.Fatalf("unexpected error frame: %s", frame.Error)
		}
	}
}

func TestHandleStream_ChatRoundTrip(t *testing.T) {
	ts := newStreamServer(t,
		`{"intent": "general_query", "parameters": {}, "confidence": 0.9}`,
		"The capital of France is Paris, home of the Louvre and rather good bread.",
	)
	conn := dial(t, ts, "user_id=u1&session_id=s1")

	var connected outboundFrame
	require.NoError(t, conn.ReadJSON(&connected))
	assert.Equal(t, frameConnected, connected.Type)
	assert.Equal(t, "s1", connected.SessionID)

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: "chat", Message: "What's the capital of France?"}))

	streamed, complete := readUntilComplete(t, conn)
	assert.Equal(t, complete.ReplyText, streamed, "chunks must reassemble to the full reply")
	assert.Contains(t, complete.ReplyText, "Paris")
	assert.Equal(t, "s1", complete.SessionID)
	assert.False(t, complete.ActionRequired)
}

func TestHandleStream_ConfirmFlow(t *testing.T) {
	ts := newStreamServer(t,
		`{"intent": "send_email", "parameters": {"to": "john@example.com", "subject": "hi", "body": "hi"}, "confidence": 0.95}`,
	)
	conn := dial(t, ts, "user_id=u1&session_id=s1")

	var connected outboundFrame
	require.NoError(t, conn.ReadJSON(&connected))

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: "chat", Message: "email john saying hi"}))
	_, complete := readUntilComplete(t, conn)
	assert.True(t, complete.ActionRequired)
	assert.Equal(t, []string{"yes", "no", "modify"}, complete.SuggestedActions)

	confirmed := true
	require.NoError(t, conn.WriteJSON(inboundFrame{Type: "confirm", Confirmed: &confirmed}))
	_, complete = readUntilComplete(t, conn)
	assert.Contains(t, complete.ReplyText, "Done")
	assert.False(t, complete.ActionRequired)
}

func TestHandleStream_MintsSession(t *testing.T) {
	ts := newStreamServer(t, `{"intent": "general_query", "parameters": {}, "confidence": 0.9}`)
	conn := dial(t, ts, "user_id=u1")

	var connected outboundFrame
	require.NoError(t, conn.ReadJSON(&connected))
	assert.Equal(t, frameConnected, connected.Type)
	assert.NotEmpty(t, connected.SessionID)
}

func TestHandleStream_PingPong(t *testing.T) {
	ts := newStreamServer(t, `{"intent": "general_query", "parameters": {}, "confidence": 0.9}`)
	conn := dial(t, ts, "user_id=u1")

	var connected outboundFrame
	require.NoError(t, conn.ReadJSON(&connected))

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: "ping"}))
	var pong outboundFrame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, framePong, pong.Type)
}

func TestHandleStream_EmptyMessageAndUnknownType(t *testing.T) {
	ts := newStreamServer(t, `{"intent": "general_query", "parameters": {}, "confidence": 0.9}`)
	conn := dial(t, ts, "user_id=u1")

	var connected outboundFrame
	require.NoError(t, conn.ReadJSON(&connected))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: "chat"}))
	var errFrame outboundFrame
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, frameError, errFrame.Type)
	assert.Contains(t, errFrame.Error, "empty")

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: "dance"}))
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, frameError, errFrame.Type)
	assert.Contains(t, errFrame.Error, "unknown frame type")
}

func TestHandleStream_RequiresUserID(t *testing.T) {
	ts := newStreamServer(t, `{"intent": "general_query", "parameters": {}, "confidence": 0.9}`)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/assistant/chat/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}
