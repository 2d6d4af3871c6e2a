// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools implements the adapters that carry confirmed actions to
// the external productivity services: Gmail, Google Calendar, Google
// Docs, Slack, and SMS. Each adapter satisfies dispatch.Adapter and
// classifies its failures with *dispatch.AdapterError so the
// orchestrator can phrase outcomes correctly.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"

	"github.com/stewardai/steward/services/assistant/action"
	"github.com/stewardai/steward/services/assistant/dispatch"
)

// GoogleAuth locates the OAuth credentials and the cached user token for
// the Google adapters.
type GoogleAuth struct {
	// CredentialsFile is the OAuth client credentials JSON. Empty falls
	// back to $STEWARD_GOOGLE_CREDENTIALS, then ~/.steward/google-credentials.json.
	CredentialsFile string

	// TokenFile is the cached user token. Empty falls back to
	// ~/.steward/google-token.json.
	TokenFile string
}

func (a GoogleAuth) credentialsPath() string {
	if a.CredentialsFile != "" {
		return a.CredentialsFile
	}
	if p := os.Getenv("STEWARD_GOOGLE_CREDENTIALS"); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".steward", "google-credentials.json")
}

func (a GoogleAuth) tokenPath() string {
	if a.TokenFile != "" {
		return a.TokenFile
	}
	return filepath.Join(os.Getenv("HOME"), ".steward", "google-token.json")
}

// NewGoogleClient builds an authenticated HTTP client for the requested
// scopes.
//
// Description:
//
//	Reads the OAuth client credentials, loads the cached user token, and
//	returns a client that refreshes the token as needed. There is no
//	interactive flow here; run "stewardcli auth" first to mint the token.
func NewGoogleClient(ctx context.Context, auth GoogleAuth, scopes ...string) (*oauth2.Config, *oauth2.Token, error) {
	b, err := os.ReadFile(auth.credentialsPath())
	if err != nil {
		return nil, nil, fmt.Errorf("tools: reading google credentials: %w", err)
	}

	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, nil, fmt.Errorf("tools: parsing google credentials: %w", err)
	}

	token, err := tokenFromFile(auth.tokenPath())
	if err != nil {
		return nil, nil, fmt.Errorf("tools: no auth token at %s, run 'stewardcli auth' first: %w", auth.tokenPath(), err)
	}
	return config, token, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, err
	}
	return token, nil
}

// SaveToken caches an OAuth token at path with owner-only permissions.
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("tools: creating token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("tools: caching oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// classifyGoogleError wraps a Google API failure in an AdapterError with
// the kind the dispatcher needs. Deadline errors pass through unchanged
// so the dispatcher reports them as uncertain timeouts.
func classifyGoogleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 401 || apiErr.Code == 403 {
			return &dispatch.AdapterError{Kind: action.ErrorKindAuth, Err: err}
		}
		return &dispatch.AdapterError{Kind: action.ErrorKindRemote, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &dispatch.AdapterError{Kind: action.ErrorKindNetwork, Err: err}
	}

	return &dispatch.AdapterError{Kind: action.ErrorKindRemote, Err: err}
}

// stringParam extracts a required string parameter.
func stringParam(params map[string]any, name string) (string, error) {
	v, ok := params[name]
	if !ok {
		return "", fmt.Errorf("tools: missing parameter %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("tools: parameter %q is not a string", name)
	}
	return s, nil
}

// optionalString extracts an optional string parameter, defaulting to "".
func optionalString(params map[string]any, name string) string {
	if v, ok := params[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// errUnsupported reports an operation the adapter does not implement.
func errUnsupported(tool action.ToolType, operation string) error {
	return &dispatch.AdapterError{
		Kind: action.ErrorKindRemote,
		Err:  fmt.Errorf("tools: %s adapter does not support operation %q", tool, operation),
	}
}
