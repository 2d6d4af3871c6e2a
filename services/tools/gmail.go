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
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/stewardai/steward/services/assistant/action"
)

// gmailListLimit bounds inbox listings and searches.
const gmailListLimit = 10

// GmailAdapter executes email operations against the Gmail API.
//
// Operations:
//
//	send_email      - to, subject, body, optional cc
//	create_draft    - to, subject, body, optional cc
//	list_messages   - optional query
//	search_messages - query
//	read_email      - message_id
//
// Thread Safety: Safe for concurrent use; the underlying service is.
type GmailAdapter struct {
	svc *gmail.Service
}

// NewGmailAdapter wraps an existing Gmail service.
func NewGmailAdapter(svc *gmail.Service) (*GmailAdapter, error) {
	if svc == nil {
		return nil, errors.New("tools: gmail service is required")
	}
	return &GmailAdapter{svc: svc}, nil
}

// NewGmailAdapterFromAuth builds the Gmail service from OAuth credentials.
func NewGmailAdapterFromAuth(ctx context.Context, auth GoogleAuth) (*GmailAdapter, error) {
	config, token, err := NewGoogleClient(ctx, auth,
		gmail.GmailReadonlyScope, gmail.GmailSendScope, gmail.GmailComposeScope)
	if err != nil {
		return nil, err
	}
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("tools: creating gmail service: %w", err)
	}
	return NewGmailAdapter(svc)
}

// Tool identifies the adapter to the dispatcher.
func (a *GmailAdapter) Tool() action.ToolType { return action.ToolGmail }

// Execute runs one Gmail operation.
func (a *GmailAdapter) Execute(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	switch operation {
	case "send_email":
		return a.sendEmail(ctx, params)
	case "create_draft":
		return a.createDraft(ctx, params)
	case "list_messages":
		return a.listMessages(ctx, optionalString(params, "query"))
	case "search_messages":
		query, err := stringParam(params, "query")
		if err != nil {
			return nil, err
		}
		return a.listMessages(ctx, query)
	case "read_email":
		return a.readEmail(ctx, params)
	default:
		return nil, errUnsupported(action.ToolGmail, operation)
	}
}

func (a *GmailAdapter) sendEmail(ctx context.Context, params map[string]any) (map[string]any, error) {
	raw, err := rawMessage(params)
	if err != nil {
		return nil, err
	}

	sent, err := a.svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogleError(err)
	}
	return map[string]any{
		"message_id": sent.Id,
		"thread_id":  sent.ThreadId,
	}, nil
}

func (a *GmailAdapter) createDraft(ctx context.Context, params map[string]any) (map[string]any, error) {
	raw, err := rawMessage(params)
	if err != nil {
		return nil, err
	}

	draft, err := a.svc.Users.Drafts.Create("me", &gmail.Draft{
		Message: &gmail.Message{Raw: raw},
	}).Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogleError(err)
	}
	return map[string]any{"draft_id": draft.Id}, nil
}

func (a *GmailAdapter) listMessages(ctx context.Context, query string) (map[string]any, error) {
	call := a.svc.Users.Messages.List("me").MaxResults(gmailListLimit).Context(ctx)
	if query != "" {
		call = call.Q(query)
	}
	listing, err := call.Do()
	if err != nil {
		return nil, classifyGoogleError(err)
	}

	summaries := make([]map[string]any, 0, len(listing.Messages))
	for _, msg := range listing.Messages {
		detail, err := a.svc.Users.Messages.Get("me", msg.Id).
			Format("metadata").
			MetadataHeaders("From", "Subject", "Date").
			Context(ctx).Do()
		if err != nil {
			return nil, classifyGoogleError(err)
		}
		summary := map[string]any{
			"message_id": msg.Id,
			"snippet":    detail.Snippet,
		}
		for _, header := range detail.Payload.Headers {
			switch header.Name {
			case "From":
				summary["from"] = header.Value
			case "Subject":
				summary["subject"] = header.Value
			case "Date":
				summary["date"] = header.Value
			}
		}
		summaries = append(summaries, summary)
	}
	return map[string]any{
		"count":    len(summaries),
		"messages": summaries,
	}, nil
}

func (a *GmailAdapter) readEmail(ctx context.Context, params map[string]any) (map[string]any, error) {
	messageID, err := stringParam(params, "message_id")
	if err != nil {
		return nil, err
	}

	msg, err := a.svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogleError(err)
	}

	out := map[string]any{
		"message_id": msg.Id,
		"snippet":    msg.Snippet,
		"body":       extractBody(msg.Payload),
	}
	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "From":
			out["from"] = header.Value
		case "To":
			out["to"] = header.Value
		case "Subject":
			out["subject"] = header.Value
		case "Date":
			out["date"] = header.Value
		}
	}
	return out, nil
}

// rawMessage builds the base64url-encoded RFC 822 message the Gmail API
// expects from the to/subject/body parameters.
func rawMessage(params map[string]any) (string, error) {
	to, err := stringParam(params, "to")
	if err != nil {
		return "", err
	}
	subject, err := stringParam(params, "subject")
	if err != nil {
		return "", err
	}
	body, err := stringParam(params, "body")
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(
		[]byte(buildMIME(to, optionalString(params, "cc"), subject, body))), nil
}

// buildMIME renders a plain-text email with CRLF line endings.
func buildMIME(to, cc, subject, body string) string {
	var msg strings.Builder
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	if cc != "" {
		fmt.Fprintf(&msg, "Cc: %s\r\n", cc)
	}
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.String()
}

// extractBody finds the first text part of a message payload, descending
// into multipart containers.
func extractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}
	if payload.MimeType == "text/plain" || payload.MimeType == "text/html" {
		if payload.Body != nil && payload.Body.Data != "" {
			if data, err := base64.URLEncoding.DecodeString(payload.Body.Data); err == nil {
				return string(data)
			}
		}
	}
	for _, part := range payload.Parts {
		if body := extractBody(part); body != "" {
			return body
		}
	}
	return ""
}
