// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package intent

import (
	"fmt"
	"strings"
	"time"

	"github.com/stewardai/steward/services/llm"
)

// =============================================================================
// Prompt Builder
// =============================================================================

// intentSpec describes one intent for the classification prompt.
type intentSpec struct {
	Name        string
	Description string
	Params      []string
}

// intentCatalog lists every intent the classifier may return, mirroring the
// action policy table plus the conversational fallback.
var intentCatalog = []intentSpec{
	{
		Name:        "send_email",
		Description: "Send an email via Gmail.",
		Params:      []string{"to", "subject", "body"},
	},
	{
		Name:        "create_draft",
		Description: "Create a Gmail draft without sending it.",
		Params:      []string{"to", "subject", "body"},
	},
	{
		Name:        "list_messages",
		Description: "List recent Gmail messages.",
		Params:      []string{"max_results"},
	},
	{
		Name:        "search_messages",
		Description: "Search Gmail messages.",
		Params:      []string{"query"},
	},
	{
		Name:        "read_email",
		Description: "Read a specific email by ID.",
		Params:      []string{"message_id"},
	},
	{
		Name:        "create_calendar_event",
		Description: "Create a calendar event.",
		Params:      []string{"summary", "start_time", "end_time", "description", "attendees"},
	},
	{
		Name:        "list_calendar_events",
		Description: "List upcoming calendar events.",
		Params:      []string{"max_results"},
	},
	{
		Name:        "create_document",
		Description: "Create a Google Doc with the given title and content.",
		Params:      []string{"title", "content"},
	},
	{
		Name:        "send_slack_message",
		Description: "Send a message to a Slack channel.",
		Params:      []string{"channel", "message"},
	},
	{
		Name:        "send_sms",
		Description: "Send an SMS text message.",
		Params:      []string{"to_number", "message"},
	},
	{
		Name:        "general_query",
		Description: "Anything else: questions, chat, requests that need no tool.",
		Params:      nil,
	},
}

// buildSystemPrompt renders the classification system prompt.
//
// Description:
//
//	Lists the intent catalog, the current datetime for grounding relative
//	dates, and the strict output contract. The model must answer with a
//	single JSON object and nothing else.
func buildSystemPrompt(now time.Time) string {
	var sb strings.Builder

	sb.WriteString(`You are an intent classifier for a personal assistant. Your job is to map the user's latest message to exactly ONE intent and extract its parameters.

## Available Intents
`)

	for _, spec := range intentCatalog {
		sb.WriteString(fmt.Sprintf("\n### %s\n%s\n", spec.Name, spec.Description))
		if len(spec.Params) > 0 {
			sb.WriteString(fmt.Sprintf("Parameters: %s\n", strings.Join(spec.Params, ", ")))
		}
	}

	sb.WriteString(fmt.Sprintf(`
## Current Datetime
%s (%s)

Date and time rules:
- Resolve relative dates against the current datetime above.
- "today" means the current date; "tomorrow" means the day after.
- "next week" means the Monday after the current week.
- A weekday name ("Friday") means the NEXT occurrence of that weekday.
- Output datetimes as RFC 3339 (e.g. 2026-03-02T15:00:00Z).
- If no time of day is given for an event, use 09:00 and a one hour duration.

Extraction rules:
- Only extract parameters the user actually stated. Omit the rest.
- Do not invent email addresses, phone numbers, or channel names.
- Conversation history is context only; classify the LATEST message.
- If the message fits no tool intent, use "general_query" with empty parameters.

## Output Format
Respond with ONLY a JSON object. No explanation, no markdown, just JSON:
{"intent": "<intent_name>", "parameters": {<extracted values>}, "confidence": <0.0-1.0>}

Example outputs:
{"intent": "send_email", "parameters": {"to": "bob@example.com", "subject": "Lunch", "body": "Are you free at noon?"}, "confidence": 0.95}
{"intent": "general_query", "parameters": {}, "confidence": 0.9}
`, now.Format(time.RFC3339), now.Weekday()))

	return sb.String()
}

// buildClassificationMessages assembles the full message list for one
// classification call: system prompt, truncated history, latest message.
func buildClassificationMessages(message string, history []llm.Message, now time.Time) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: buildSystemPrompt(now)})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: message})
	return messages
}

// buildReformatPrompt asks the model to resend its answer as valid JSON
// after a parse failure.
func buildReformatPrompt(parseErr error) string {
	return fmt.Sprintf(`Your previous response could not be parsed: %s

Respond again with ONLY a single valid JSON object in exactly this shape, no markdown, no explanation:
{"intent": "<intent_name>", "parameters": {}, "confidence": 0.0}`, parseErr)
}
