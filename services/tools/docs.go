// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"

	"github.com/stewardai/steward/services/assistant/action"
)

// DocsAdapter creates documents in Google Docs.
//
// Operations:
//
//	create_document - title, content
type DocsAdapter struct {
	svc *docs.Service
}

// NewDocsAdapter wraps an existing Docs service.
func NewDocsAdapter(svc *docs.Service) (*DocsAdapter, error) {
	if svc == nil {
		return nil, errors.New("tools: docs service is required")
	}
	return &DocsAdapter{svc: svc}, nil
}

// NewDocsAdapterFromAuth builds the Docs service from OAuth credentials.
func NewDocsAdapterFromAuth(ctx context.Context, auth GoogleAuth) (*DocsAdapter, error) {
	config, token, err := NewGoogleClient(ctx, auth, docs.DocumentsScope)
	if err != nil {
		return nil, err
	}
	svc, err := docs.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("tools: creating docs service: %w", err)
	}
	return NewDocsAdapter(svc)
}

// Tool identifies the adapter to the dispatcher.
func (a *DocsAdapter) Tool() action.ToolType { return action.ToolDocs }

// Execute runs one docs operation.
func (a *DocsAdapter) Execute(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	if operation != "create_document" {
		return nil, errUnsupported(action.ToolDocs, operation)
	}

	title, err := stringParam(params, "title")
	if err != nil {
		return nil, err
	}
	content, err := stringParam(params, "content")
	if err != nil {
		return nil, err
	}

	doc, err := a.svc.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogleError(err)
	}

	// The create call only sets the title; body text goes in through a
	// batch update at the start of the document.
	if content != "" {
		_, err = a.svc.Documents.BatchUpdate(doc.DocumentId, &docs.BatchUpdateDocumentRequest{
			Requests: []*docs.Request{{
				InsertText: &docs.InsertTextRequest{
					Location: &docs.Location{Index: 1},
					Text:     content,
				},
			}},
		}).Context(ctx).Do()
		if err != nil {
			return nil, classifyGoogleError(err)
		}
	}

	return map[string]any{
		"document_id": doc.DocumentId,
		"title":       doc.Title,
	}, nil
}
