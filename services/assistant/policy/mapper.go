// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/stewardai/steward/services/assistant/action"
	"github.com/stewardai/steward/services/assistant/intent"
)

// validate holds format validators for parameter values.
// Thread safe per validator documentation.
var validate = validator.New()

// paramFormats maps (intent, param) to a validator tag. Presence checks
// come from the rule's RequiredParams; this adds format checks on top.
var paramFormats = map[string]map[string]string{
	"send_email":   {"to": "email"},
	"create_draft": {"to": "email"},
	"send_sms":     {"to_number": "e164"},
}

// IncompleteError reports that an intent matched a rule but required
// parameters are missing or malformed. The orchestrator turns this into a
// follow-up question rather than an error reply.
type IncompleteError struct {
	Intent  string
	Missing []string          // required params absent or empty, rule order
	Invalid map[string]string // param -> human-readable problem
}

func (e *IncompleteError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		keys := make([]string, 0, len(e.Invalid))
		for k := range e.Invalid {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("invalid %s (%s)", k, e.Invalid[k]))
		}
	}
	return fmt.Sprintf("policy: %s incomplete: %s", e.Intent, strings.Join(parts, "; "))
}

// Prompt renders the follow-up question shown to the user.
func (e *IncompleteError) Prompt() string {
	var needs []string
	needs = append(needs, e.Missing...)
	if len(e.Invalid) > 0 {
		keys := make([]string, 0, len(e.Invalid))
		for k := range e.Invalid {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			needs = append(needs, fmt.Sprintf("%s (%s)", k, e.Invalid[k]))
		}
	}
	return fmt.Sprintf("I need a bit more information to %s: please provide %s.",
		strings.ReplaceAll(e.Intent, "_", " "), strings.Join(needs, ", "))
}

// Map converts a classification into a tool action via the policy table.
//
// Description:
//
//	Pure function of the classification and the static table. Unknown
//	intents (including "general_query") return (nil, nil): the message
//	takes the conversational path. A matched rule with missing or
//	malformed required parameters returns *IncompleteError. Extra
//	parameters the rule does not know are passed through untouched.
//
// Inputs:
//   - c: The classifier output.
//
// Outputs:
//   - *action.ToolAction: The mapped action, or nil for conversational.
//   - error: *IncompleteError when required parameters are missing or
//     malformed; nil otherwise.
//
// Thread Safety: Safe for concurrent use; the table is never mutated.
func Map(c intent.Classification) (*action.ToolAction, error) {
	rule, ok := Lookup(c.Intent)
	if !ok {
		return nil, nil
	}

	incomplete := &IncompleteError{Intent: c.Intent, Invalid: map[string]string{}}

	for _, name := range rule.RequiredParams {
		val, present := c.Parameters[name]
		if !present || isEmptyValue(val) {
			incomplete.Missing = append(incomplete.Missing, name)
		}
	}

	formats := paramFormats[c.Intent]
	for name, tag := range formats {
		val, present := c.Parameters[name]
		if !present || isEmptyValue(val) {
			continue // absence already handled above
		}
		s, ok := val.(string)
		if !ok {
			incomplete.Invalid[name] = "must be text"
			continue
		}
		if err := validate.Var(s, tag); err != nil {
			incomplete.Invalid[name] = formatHint(tag)
		}
	}

	if len(incomplete.Missing) > 0 || len(incomplete.Invalid) > 0 {
		return nil, incomplete
	}

	params := c.Parameters
	if params == nil {
		params = map[string]any{}
	}

	return &action.ToolAction{
		Tool:                 rule.Tool,
		Operation:            rule.Operation,
		Parameters:           params,
		RequiresConfirmation: rule.RequiresConfirmation,
	}, nil
}

// isEmptyValue treats empty strings and nil as absent parameters.
func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func formatHint(tag string) string {
	switch tag {
	case "email":
		return "must be a valid email address"
	case "e164":
		return "must be a phone number in +15551234567 form"
	}
	return "invalid format"
}
