// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/stewardai/steward/services/assistant/action"
	"github.com/stewardai/steward/services/assistant/dispatch"
)

const defaultSlackBaseURL = "https://slack.com/api"

// slackAuthErrors are the Slack API error codes that mean our token is
// bad, as opposed to the request being bad.
var slackAuthErrors = map[string]bool{
	"invalid_auth":     true,
	"not_authed":       true,
	"token_revoked":    true,
	"token_expired":    true,
	"account_inactive": true,
}

// SlackAdapter posts messages through the Slack Web API.
//
// Operations:
//
//	send_message - channel, message
type SlackAdapter struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewSlackAdapter creates a Slack adapter.
//
// Inputs:
//   - token: Bot token. Empty falls back to $SLACK_BOT_TOKEN.
func NewSlackAdapter(token string) (*SlackAdapter, error) {
	if token == "" {
		token = os.Getenv("SLACK_BOT_TOKEN")
	}
	if token == "" {
		return nil, errors.New("tools: slack bot token is required (set SLACK_BOT_TOKEN)")
	}
	return &SlackAdapter{
		token:      token,
		baseURL:    defaultSlackBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Tool identifies the adapter to the dispatcher.
func (a *SlackAdapter) Tool() action.ToolType { return action.ToolSlack }

// Execute runs one Slack operation.
func (a *SlackAdapter) Execute(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	if operation != "send_message" {
		return nil, errUnsupported(action.ToolSlack, operation)
	}

	channel, err := stringParam(params, "channel")
	if err != nil {
		return nil, err
	}
	message, err := stringParam(params, "message")
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(map[string]string{
		"channel": channel,
		"text":    message,
	})
	if err != nil {
		return nil, fmt.Errorf("tools: marshaling slack request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/chat.postMessage", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("tools: creating slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, classifySlackTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &dispatch.AdapterError{Kind: action.ErrorKindNetwork,
			Err: fmt.Errorf("tools: reading slack response: %w", err)}
	}

	var slackResp struct {
		OK      bool   `json:"ok"`
		Error   string `json:"error"`
		Channel string `json:"channel"`
		TS      string `json:"ts"`
	}
	if err := json.Unmarshal(body, &slackResp); err != nil {
		return nil, &dispatch.AdapterError{Kind: action.ErrorKindRemote,
			Err: fmt.Errorf("tools: parsing slack response: %w", err)}
	}

	if !slackResp.OK {
		kind := action.ErrorKindRemote
		if slackAuthErrors[slackResp.Error] {
			kind = action.ErrorKindAuth
		}
		return nil, &dispatch.AdapterError{Kind: kind,
			Err: fmt.Errorf("tools: slack API error: %s", slackResp.Error)}
	}

	return map[string]any{
		"channel": slackResp.Channel,
		"ts":      slackResp.TS,
	}, nil
}

// classifySlackTransportError wraps client-side failures. Deadline
// errors pass through so the dispatcher reports them as uncertain.
func classifySlackTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &dispatch.AdapterError{Kind: action.ErrorKindNetwork, Err: err}
}
