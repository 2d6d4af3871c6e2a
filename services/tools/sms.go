// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/stewardai/steward/services/assistant/action"
	"github.com/stewardai/steward/services/assistant/dispatch"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// SMSConfig carries Twilio credentials for the SMS adapter.
type SMSConfig struct {
	// AccountSID identifies the Twilio account. Empty falls back to
	// $TWILIO_ACCOUNT_SID.
	AccountSID string

	// AuthToken authenticates API calls. Empty falls back to
	// $TWILIO_AUTH_TOKEN.
	AuthToken string

	// FromNumber is the E.164 sender number. Empty falls back to
	// $TWILIO_FROM_NUMBER.
	FromNumber string
}

func (c SMSConfig) withEnvDefaults() SMSConfig {
	if c.AccountSID == "" {
		c.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if c.AuthToken == "" {
		c.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if c.FromNumber == "" {
		c.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	return c
}

// SMSAdapter sends text messages through the Twilio REST API.
//
// Operations:
//
//	send_sms - to_number (E.164), message
type SMSAdapter struct {
	config     SMSConfig
	baseURL    string
	httpClient *http.Client
}

// NewSMSAdapter creates an SMS adapter.
func NewSMSAdapter(config SMSConfig) (*SMSAdapter, error) {
	config = config.withEnvDefaults()
	if config.AccountSID == "" || config.AuthToken == "" {
		return nil, errors.New("tools: twilio credentials are required (set TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN)")
	}
	if config.FromNumber == "" {
		return nil, errors.New("tools: twilio sender number is required (set TWILIO_FROM_NUMBER)")
	}
	return &SMSAdapter{
		config:     config,
		baseURL:    defaultTwilioBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Tool identifies the adapter to the dispatcher.
func (a *SMSAdapter) Tool() action.ToolType { return action.ToolSMS }

// Execute runs one SMS operation.
func (a *SMSAdapter) Execute(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	if operation != "send_sms" {
		return nil, errUnsupported(action.ToolSMS, operation)
	}

	toNumber, err := stringParam(params, "to_number")
	if err != nil {
		return nil, err
	}
	message, err := stringParam(params, "message")
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("To", toNumber)
	form.Set("From", a.config.FromNumber)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", a.baseURL, a.config.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("tools: creating twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(a.config.AccountSID, a.config.AuthToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return nil, &dispatch.AdapterError{Kind: action.ErrorKindNetwork, Err: err}
		}
		return nil, &dispatch.AdapterError{Kind: action.ErrorKindNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &dispatch.AdapterError{Kind: action.ErrorKindNetwork,
			Err: fmt.Errorf("tools: reading twilio response: %w", err)}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &dispatch.AdapterError{Kind: action.ErrorKindAuth,
			Err: fmt.Errorf("tools: twilio auth failed with status %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &dispatch.AdapterError{Kind: action.ErrorKindRemote,
			Err: fmt.Errorf("tools: twilio returned status %d: %s", resp.StatusCode, truncateBody(body))}
	}

	var twilioResp struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &twilioResp); err != nil {
		return nil, &dispatch.AdapterError{Kind: action.ErrorKindRemote,
			Err: fmt.Errorf("tools: parsing twilio response: %w", err)}
	}

	return map[string]any{
		"sid":    twilioResp.SID,
		"status": twilioResp.Status,
	}, nil
}

func truncateBody(body []byte) string {
	const limit = 200
	s := string(body)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
