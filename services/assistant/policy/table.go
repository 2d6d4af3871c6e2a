// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package policy maps classified intents onto concrete tool actions. The
// static table below is the single source of truth for which operations
// require confirmation and which parameters they need; nothing else in the
// codebase may decide either question.
package policy

import "github.com/stewardai/steward/services/assistant/action"

// Rule is one row of the policy table.
type Rule struct {
	// Tool and Operation identify the dispatch target.
	Tool      action.ToolType
	Operation string

	// RequiredParams must all be present and non-empty before the action
	// can be built. Order is the order used in incomplete-parameter
	// prompts.
	RequiredParams []string

	// RequiresConfirmation is true for state-mutating operations. Read
	// operations dispatch immediately.
	RequiresConfirmation bool
}

// table maps intent names to rules. Every state-mutating operation here
// carries RequiresConfirmation; adding a mutating row without it is a bug
// the tests catch.
var table = map[string]Rule{
	"send_email": {
		Tool:                 action.ToolGmail,
		Operation:            "send_email",
		RequiredParams:       []string{"to", "subject", "body"},
		RequiresConfirmation: true,
	},
	"create_draft": {
		Tool:                 action.ToolGmail,
		Operation:            "create_draft",
		RequiredParams:       []string{"to", "subject", "body"},
		RequiresConfirmation: true,
	},
	"list_messages": {
		Tool:      action.ToolGmail,
		Operation: "list_messages",
	},
	"search_messages": {
		Tool:           action.ToolGmail,
		Operation:      "search_messages",
		RequiredParams: []string{"query"},
	},
	"read_email": {
		Tool:           action.ToolGmail,
		Operation:      "read_email",
		RequiredParams: []string{"message_id"},
	},
	"create_calendar_event": {
		Tool:                 action.ToolCalendar,
		Operation:            "create_event",
		RequiredParams:       []string{"summary", "start_time", "end_time"},
		RequiresConfirmation: true,
	},
	"list_calendar_events": {
		Tool:      action.ToolCalendar,
		Operation: "list_events",
	},
	"create_document": {
		Tool:                 action.ToolDocs,
		Operation:            "create_document",
		RequiredParams:       []string{"title", "content"},
		RequiresConfirmation: true,
	},
	"send_slack_message": {
		Tool:                 action.ToolSlack,
		Operation:            "send_message",
		RequiredParams:       []string{"channel", "message"},
		RequiresConfirmation: true,
	},
	"send_sms": {
		Tool:                 action.ToolSMS,
		Operation:            "send_sms",
		RequiredParams:       []string{"to_number", "message"},
		RequiresConfirmation: true,
	},
}

// Lookup returns the rule for an intent name, if one exists.
func Lookup(intent string) (Rule, bool) {
	rule, ok := table[intent]
	return rule, ok
}

// Intents returns the names of all intents bound to tool actions.
func Intents() []string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	return names
}
