// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardai/steward/services/assistant/action"
	"github.com/stewardai/steward/services/assistant/intent"
)

func TestMap_SendEmail(t *testing.T) {
	act, err := Map(intent.Classification{
		Intent: "send_email",
		Parameters: map[string]any{
			"to":      "bob@example.com",
			"subject": "Lunch",
			"body":    "Noon?",
		},
		Confidence: 0.95,
	})
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(t, action.ToolGmail, act.Tool)
	assert.Equal(t, "send_email", act.Operation)
	assert.True(t, act.RequiresConfirmation)
	assert.Equal(t, "bob@example.com", act.Parameters["to"])
}

func TestMap_UnknownIntentIsConversational(t *testing.T) {
	for _, name := range []string{"general_query", "dance", ""} {
		act, err := Map(intent.Classification{Intent: name})
		assert.NoError(t, err, name)
		assert.Nil(t, act, name)
	}
}

func TestMap_MissingParams(t *testing.T) {
	_, err := Map(intent.Classification{
		Intent:     "send_email",
		Parameters: map[string]any{"to": "bob@example.com"},
	})
	var inc *IncompleteError
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, []string{"subject", "body"}, inc.Missing)
	assert.Contains(t, inc.Prompt(), "subject")
}

func TestMap_EmptyStringCountsAsMissing(t *testing.T) {
	_, err := Map(intent.Classification{
		Intent: "send_sms",
		Parameters: map[string]any{
			"to_number": "+15551234567",
			"message":   "   ",
		},
	})
	var inc *IncompleteError
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, []string{"message"}, inc.Missing)
}

func TestMap_InvalidEmail(t *testing.T) {
	_, err := Map(intent.Classification{
		Intent: "send_email",
		Parameters: map[string]any{
			"to":      "not-an-email",
			"subject": "Hi",
			"body":    "Hello",
		},
	})
	var inc *IncompleteError
	require.ErrorAs(t, err, &inc)
	assert.Empty(t, inc.Missing)
	assert.Contains(t, inc.Invalid, "to")
}

func TestMap_InvalidPhoneNumber(t *testing.T) {
	_, err := Map(intent.Classification{
		Intent: "send_sms",
		Parameters: map[string]any{
			"to_number": "555-1234",
			"message":   "hi",
		},
	})
	var inc *IncompleteError
	require.ErrorAs(t, err, &inc)
	assert.Contains(t, inc.Invalid, "to_number")
}

func TestMap_ReadOperationsNeedNoConfirmation(t *testing.T) {
	act, err := Map(intent.Classification{
		Intent:     "list_messages",
		Parameters: map[string]any{},
	})
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.False(t, act.RequiresConfirmation)
	assert.Equal(t, "list_messages", act.Operation)
}

func TestMap_ExtraParamsPassThrough(t *testing.T) {
	act, err := Map(intent.Classification{
		Intent: "create_calendar_event",
		Parameters: map[string]any{
			"summary":    "standup",
			"start_time": "2026-03-05T15:00:00Z",
			"end_time":   "2026-03-05T16:00:00Z",
			"attendees":  []any{"bob@example.com"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Contains(t, act.Parameters, "attendees")
}

// Confirmation policy is deterministic: mapping the same classification
// twice yields identical confirmation decisions, and every mutating row in
// the table carries the flag.
func TestTable_ConfirmationPolicyDeterminism(t *testing.T) {
	c := intent.Classification{
		Intent: "send_slack_message",
		Parameters: map[string]any{
			"channel": "#general",
			"message": "ship it",
		},
	}
	first, err := Map(c)
	require.NoError(t, err)
	second, err := Map(c)
	require.NoError(t, err)
	assert.Equal(t, first.RequiresConfirmation, second.RequiresConfirmation)
}

func TestTable_MutatingOperationsRequireConfirmation(t *testing.T) {
	mutating := map[string]bool{
		"send_email":            true,
		"create_draft":          true,
		"create_calendar_event": true,
		"create_document":       true,
		"send_slack_message":    true,
		"send_sms":              true,
	}
	for _, name := range Intents() {
		rule, ok := Lookup(name)
		require.True(t, ok)
		assert.Equal(t, mutating[name], rule.RequiresConfirmation,
			"confirmation flag for %s", name)
		assert.True(t, rule.Tool.Valid(), "tool for %s", name)
	}
}

func TestMap_NilParametersWithNoRequirements(t *testing.T) {
	act, err := Map(intent.Classification{Intent: "list_calendar_events"})
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.NotNil(t, act.Parameters)
}

func TestIncompleteError_ErrorString(t *testing.T) {
	err := &IncompleteError{
		Intent:  "send_email",
		Missing: []string{"body"},
		Invalid: map[string]string{"to": "must be a valid email address"},
	}
	assert.Contains(t, err.Error(), "missing body")
	assert.Contains(t, err.Error(), "invalid to")
	assert.False(t, errors.Is(err, nil))
}
