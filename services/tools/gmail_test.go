// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/stewardai/steward/services/assistant/action"
	"github.com/stewardai/steward/services/assistant/dispatch"
)

func newGmailAdapter(t *testing.T, handler http.HandlerFunc) *GmailAdapter {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(ts.URL), option.WithoutAuthentication())
	require.NoError(t, err)

	adapter, err := NewGmailAdapter(svc)
	require.NoError(t, err)
	return adapter
}

func TestGmailAdapter_SendEmail(t *testing.T) {
	adapter := newGmailAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "users/me/messages/send")

		var msg gmail.Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		decoded, err := base64.URLEncoding.DecodeString(msg.Raw)
		require.NoError(t, err)
		assert.Contains(t, string(decoded), "To: john@example.com")
		assert.Contains(t, string(decoded), "Subject: hi")

		json.NewEncoder(w).Encode(map[string]string{"id": "m1", "threadId": "t1"})
	})

	payload, err := adapter.Execute(context.Background(), "send_email", map[string]any{
		"to":      "john@example.com",
		"subject": "hi",
		"body":    "just saying hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "m1", payload["message_id"])
	assert.Equal(t, "t1", payload["thread_id"])
}

func TestGmailAdapter_CreateDraft(t *testing.T) {
	adapter := newGmailAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "users/me/drafts")
		json.NewEncoder(w).Encode(map[string]any{"id": "d1"})
	})

	payload, err := adapter.Execute(context.Background(), "create_draft", map[string]any{
		"to":      "john@example.com",
		"subject": "draft",
		"body":    "later",
	})
	require.NoError(t, err)
	assert.Equal(t, "d1", payload["draft_id"])
}

func TestGmailAdapter_MissingParams(t *testing.T) {
	adapter := newGmailAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := adapter.Execute(context.Background(), "send_email", map[string]any{
		"to": "john@example.com",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subject")
}

func TestGmailAdapter_UnsupportedOperation(t *testing.T) {
	adapter := newGmailAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := adapter.Execute(context.Background(), "delete_everything", map[string]any{})
	var adapterErr *dispatch.AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Contains(t, adapterErr.Error(), "delete_everything")
}

func TestBuildMIME(t *testing.T) {
	mime := buildMIME("a@example.com", "b@example.com", "status", "all green")
	assert.True(t, strings.HasPrefix(mime, "To: a@example.com\r\n"))
	assert.Contains(t, mime, "Cc: b@example.com\r\n")
	assert.Contains(t, mime, "Subject: status\r\n")
	assert.True(t, strings.HasSuffix(mime, "\r\nall green"))

	// No CC header when cc is empty.
	mime = buildMIME("a@example.com", "", "status", "all green")
	assert.NotContains(t, mime, "Cc:")
}

func TestExtractBody_NestedParts(t *testing.T) {
	encoded := base64.URLEncoding.EncodeToString([]byte("the actual text"))
	payload := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			{MimeType: "application/octet-stream"},
			{
				MimeType: "multipart/related",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encoded}},
				},
			},
		},
	}
	assert.Equal(t, "the actual text", extractBody(payload))
	assert.Equal(t, "", extractBody(nil))
}

func TestClassifyGoogleError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want action.ErrorKind
	}{
		{"unauthorized", &googleapi.Error{Code: 401}, action.ErrorKindAuth},
		{"forbidden", &googleapi.Error{Code: 403}, action.ErrorKindAuth},
		{"server error", &googleapi.Error{Code: 500}, action.ErrorKindRemote},
		{"plain error", errors.New("boom"), action.ErrorKindRemote},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var adapterErr *dispatch.AdapterError
			require.ErrorAs(t, classifyGoogleError(tc.err), &adapterErr)
			assert.Equal(t, tc.want, adapterErr.Kind)
		})
	}

	// Deadline errors pass through so the dispatcher sees a timeout.
	err := classifyGoogleError(context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var adapterErr *dispatch.AdapterError
	assert.False(t, errors.As(err, &adapterErr))
}
