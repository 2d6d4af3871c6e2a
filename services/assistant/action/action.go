// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package action defines the shared value types that flow between the
// intent classifier, the policy mapper, the pending-action store, and the
// tool dispatcher. It carries no behavior beyond formatting helpers so
// that every other assistant package can depend on it without cycles.
package action

import (
	"fmt"
	"sort"
	"strings"
)

// ToolType identifies an external productivity service reachable through
// a registered adapter.
type ToolType string

// The set of supported tools. The policy table in services/assistant/policy
// is the only place that binds intents to these values.
const (
	ToolGmail    ToolType = "gmail"
	ToolCalendar ToolType = "calendar"
	ToolDocs     ToolType = "docs"
	ToolSlack    ToolType = "slack"
	ToolSMS      ToolType = "sms"
)

// Valid reports whether t is one of the known tool types.
func (t ToolType) Valid() bool {
	switch t {
	case ToolGmail, ToolCalendar, ToolDocs, ToolSlack, ToolSMS:
		return true
	}
	return false
}

// ToolAction is the unit of work produced by classification: a concrete
// operation against one tool with normalized parameters.
//
// Description:
//
//	A ToolAction is created fresh on every classified message. It is either
//	dispatched immediately (read-only operations) or parked in the
//	pending-action store until the user confirms. RequiresConfirmation is
//	derived from the static policy table and must never be recomputed
//	elsewhere.
//
// Thread Safety: ToolAction is treated as immutable after construction.
type ToolAction struct {
	// Tool is the target service.
	Tool ToolType `json:"tool_type"`

	// Operation is the verb within that tool, e.g. "send_email" or
	// "create_event".
	Operation string `json:"operation"`

	// Parameters maps parameter names to values already normalized from
	// natural language (relative dates resolved to absolute RFC 3339
	// timestamps).
	Parameters map[string]any `json:"parameters"`

	// RequiresConfirmation is true for state-mutating operations.
	// Sourced exclusively from the policy table.
	RequiresConfirmation bool `json:"requires_confirmation"`
}

// Describe renders a short human-readable summary of the action for
// confirmation prompts, e.g.
//
//	send an email to john@example.com with subject "hi"
//
// Unknown operations fall back to a generic "tool/operation" form.
func (a ToolAction) Describe() string {
	switch {
	case a.Tool == ToolGmail && a.Operation == "send_email":
		return fmt.Sprintf("send an email to %s with subject %q",
			a.stringParam("to"), a.stringParam("subject"))
	case a.Tool == ToolGmail && a.Operation == "create_draft":
		return fmt.Sprintf("create a draft email to %s with subject %q",
			a.stringParam("to"), a.stringParam("subject"))
	case a.Tool == ToolCalendar && a.Operation == "create_event":
		return fmt.Sprintf("create a calendar event %q from %s to %s",
			a.stringParam("summary"), a.stringParam("start_time"), a.stringParam("end_time"))
	case a.Tool == ToolDocs && a.Operation == "create_document":
		return fmt.Sprintf("create a document titled %q", a.stringParam("title"))
	case a.Tool == ToolSlack && a.Operation == "send_message":
		return fmt.Sprintf("send a Slack message to %s", a.stringParam("channel"))
	case a.Tool == ToolSMS && a.Operation == "send_sms":
		return fmt.Sprintf("send an SMS to %s", a.stringParam("to_number"))
	}
	return fmt.Sprintf("run %s/%s", a.Tool, a.Operation)
}

func (a ToolAction) stringParam(name string) string {
	v, ok := a.Parameters[name]
	if !ok {
		return "(unspecified)"
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "(unspecified)"
	}
	return s
}

// ResultStatus is the outcome class of a dispatched action.
type ResultStatus string

const (
	// StatusSuccess means the adapter completed the operation.
	StatusSuccess ResultStatus = "success"

	// StatusFailure means the adapter reported a definite failure.
	StatusFailure ResultStatus = "failure"
)

// ErrorKind classifies a dispatch failure for the orchestrator's
// user-facing messaging. The distinction that matters most is Timeout:
// a timed-out dispatch may or may not have taken effect remotely, so the
// user message must be phrased as uncertain, never as a clean failure.
type ErrorKind string

const (
	ErrorKindNone        ErrorKind = ""
	ErrorKindUnknownTool ErrorKind = "unknown_tool"
	ErrorKindTimeout     ErrorKind = "timeout"
	ErrorKindAuth        ErrorKind = "auth"
	ErrorKindNetwork     ErrorKind = "network"
	ErrorKindRemote      ErrorKind = "remote"
)

// ToolResult is the normalized outcome of one dispatched action. It lives
// only for the duration of one response construction before being folded
// into a conversation turn.
type ToolResult struct {
	Status      ResultStatus   `json:"status"`
	Payload     map[string]any `json:"payload,omitempty"`
	ErrorKind   ErrorKind      `json:"error_kind,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// Succeeded reports whether the result carries a success status.
func (r ToolResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Summary renders a one-line description of the payload for replies and
// transcripts. Keys are sorted for deterministic output.
func (r ToolResult) Summary() string {
	if len(r.Payload) == 0 {
		return string(r.Status)
	}
	keys := make([]string, 0, len(r.Payload))
	for k := range r.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%v", k, r.Payload[k])
	}
	return sb.String()
}
