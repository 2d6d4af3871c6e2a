// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stewardai/steward/services/assistant/action"
)

// fakeAdapter implements Adapter with scripted behavior.
type fakeAdapter struct {
	tool    action.ToolType
	payload map[string]any
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func (f *fakeAdapter) Tool() action.ToolType { return f.tool }

func (f *fakeAdapter) Execute(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func emailAction() action.ToolAction {
	return action.ToolAction{
		Tool:       action.ToolGmail,
		Operation:  "send_email",
		Parameters: map[string]any{"to": "bob@example.com"},
	}
}

func TestDispatcher_Success(t *testing.T) {
	d := NewDispatcher(time.Second)
	adapter := &fakeAdapter{tool: action.ToolGmail, payload: map[string]any{"message_id": "m1"}}
	if err := d.Register(adapter); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := d.Dispatch(context.Background(), emailAction())
	if !result.Succeeded() {
		t.Fatalf("result = %+v, want success", result)
	}
	if result.Payload["message_id"] != "m1" {
		t.Errorf("payload = %v, want message_id m1", result.Payload)
	}
	if got := adapter.calls.Load(); got != 1 {
		t.Errorf("adapter calls = %d, want 1", got)
	}
}

func TestDispatcher_UnknownTool(t *testing.T) {
	d := NewDispatcher(time.Second)

	result := d.Dispatch(context.Background(), emailAction())
	if result.Succeeded() {
		t.Fatal("expected failure for unregistered tool")
	}
	if result.ErrorKind != action.ErrorKindUnknownTool {
		t.Errorf("error kind = %q, want %q", result.ErrorKind, action.ErrorKindUnknownTool)
	}
}

func TestDispatcher_TimeoutIsUncertainAndNotRetried(t *testing.T) {
	d := NewDispatcher(50 * time.Millisecond)
	adapter := &fakeAdapter{tool: action.ToolGmail, delay: time.Second}
	if err := d.Register(adapter); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := d.Dispatch(context.Background(), emailAction())
	if result.Succeeded() {
		t.Fatal("expected failure on timeout")
	}
	if result.ErrorKind != action.ErrorKindTimeout {
		t.Errorf("error kind = %q, want %q", result.ErrorKind, action.ErrorKindTimeout)
	}
	if got := adapter.calls.Load(); got != 1 {
		t.Errorf("adapter calls = %d, want exactly 1 (no retry)", got)
	}
}

func TestDispatcher_AdapterErrorKindPreserved(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want action.ErrorKind
	}{
		{
			name: "auth",
			err:  &AdapterError{Kind: action.ErrorKindAuth, Err: errors.New("token expired")},
			want: action.ErrorKindAuth,
		},
		{
			name: "network",
			err:  &AdapterError{Kind: action.ErrorKindNetwork, Err: errors.New("connection refused")},
			want: action.ErrorKindNetwork,
		},
		{
			name: "wrapped adapter error",
			err:  &AdapterError{Kind: action.ErrorKindRemote, Err: errors.New("500 from upstream")},
			want: action.ErrorKindRemote,
		},
		{
			name: "unclassified error",
			err:  errors.New("something odd"),
			want: action.ErrorKindRemote,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(time.Second)
			if err := d.Register(&fakeAdapter{tool: action.ToolGmail, err: tt.err}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			result := d.Dispatch(context.Background(), emailAction())
			if result.Succeeded() {
				t.Fatal("expected failure")
			}
			if result.ErrorKind != tt.want {
				t.Errorf("error kind = %q, want %q", result.ErrorKind, tt.want)
			}
			if result.ErrorDetail == "" {
				t.Error("error detail must be populated")
			}
		})
	}
}

func TestDispatcher_RegisterDuplicate(t *testing.T) {
	d := NewDispatcher(time.Second)
	if err := d.Register(&fakeAdapter{tool: action.ToolGmail}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Register(&fakeAdapter{tool: action.ToolGmail}); err == nil {
		t.Fatal("expected error for duplicate registration")
	}
}

func TestDispatcher_RegisterInvalidTool(t *testing.T) {
	d := NewDispatcher(time.Second)
	if err := d.Register(&fakeAdapter{tool: "fax"}); err == nil {
		t.Fatal("expected error for invalid tool type")
	}
	if err := d.Register(nil); err == nil {
		t.Fatal("expected error for nil adapter")
	}
}
