// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// =============================================================================
// Groq Wire Types (OpenAI-compatible chat completions)
// =============================================================================

const defaultGroqBaseURL = "https://api.groq.com/openai/v1/chat/completions"

type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	TopP        *float32      `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Choices []groqChoice `json:"choices"`
	Error   *groqError   `json:"error,omitempty"`
}

type groqChoice struct {
	Index        int         `json:"index"`
	Message      groqMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type groqError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// =============================================================================
// Client Implementation
// =============================================================================

// GroqClient implements Client for Groq-hosted models using raw net/http.
//
// Description:
//
//	Groq exposes an OpenAI-compatible chat completions API, so the wire
//	types mirror that schema. No third-party SDK is used.
//
// Thread Safety: GroqClient is safe for concurrent use.
type GroqClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewGroqClient creates a new GroqClient from environment variables.
//
// Description:
//
//	Reads GROQ_API_KEY and GROQ_MODEL from the environment.
//	Defaults to "llama-3.3-70b-versatile" if GROQ_MODEL is not set.
//
// Outputs:
//   - *GroqClient: The configured client.
//   - error: Non-nil if GROQ_API_KEY is missing.
func NewGroqClient() (*GroqClient, error) {
	apiKey := os.Getenv("GROQ_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("groq: API key is missing (GROQ_API_KEY)")
	}

	model := os.Getenv("GROQ_MODEL")
	if model == "" {
		model = "llama-3.3-70b-versatile"
		slog.Info("GROQ_MODEL not set, defaulting to llama-3.3-70b-versatile")
	}

	slog.Info("Initializing Groq client", slog.String("model", model))

	return &GroqClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultGroqBaseURL,
	}, nil
}

// NewGroqClientWithConfig creates a GroqClient with explicit configuration.
//
// Description:
//
//	Creates a GroqClient without reading environment variables. Useful for
//	testing with mock servers.
//
// Inputs:
//   - apiKey: The Groq API key.
//   - model: The model name (e.g., "llama-3.3-70b-versatile").
//   - baseURL: The base URL for API requests.
//
// Outputs:
//   - *GroqClient: The configured client.
func NewGroqClientWithConfig(apiKey, model, baseURL string) *GroqClient {
	return &GroqClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}
}

// Generate implements the Client interface.
func (g *GroqClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	messages := []Message{
		{Role: "user", Content: prompt},
	}
	return g.Chat(ctx, messages, params)
}

// Chat implements Client.Chat using the Groq chat completions API.
//
// Description:
//
//	Converts messages to the OpenAI-compatible format and sends a chat
//	completion request via raw HTTP. Handles system, user, and assistant
//	roles; anything else is mapped to user.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - messages: Conversation history.
//   - params: Generation parameters.
//
// Outputs:
//   - string: The assistant's response text.
//   - error: Non-nil if the request fails.
//
// Thread Safety: This method is safe for concurrent use.
func (g *GroqClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	model := g.model
	if params.ModelOverride != "" {
		model = params.ModelOverride
	}

	slog.Debug("Chat via Groq", slog.String("model", model), slog.Int("messages", len(messages)))

	gMessages := make([]groqMessage, 0, len(messages))
	for _, msg := range messages {
		role := msg.Role
		switch role {
		case "system", "user", "assistant":
			// valid roles, keep as-is
		default:
			slog.Warn("Groq: unknown message role, mapping to user",
				slog.String("unknown_role", role),
				slog.String("model", model),
			)
			role = "user"
		}
		gMessages = append(gMessages, groqMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	reqPayload := groqRequest{
		Model:    model,
		Messages: gMessages,
	}
	if params.Temperature != nil {
		reqPayload.Temperature = params.Temperature
	}
	if params.MaxTokens != nil {
		reqPayload.MaxTokens = params.MaxTokens
	}
	if params.TopP != nil {
		reqPayload.TopP = params.TopP
	}
	if len(params.Stop) > 0 {
		reqPayload.Stop = params.Stop
	}

	reqBody, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("groq: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.baseURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("groq: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("groq: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("groq: reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("groq: API returned status %d: %s", resp.StatusCode, SafeLogString(string(bodyBytes)))
	}

	var apiResp groqResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", fmt.Errorf("groq: parsing response JSON: %w", err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("groq: API error: %s - %s", apiResp.Error.Type, SafeLogString(apiResp.Error.Message))
	}

	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("groq: returned no choices")
	}

	slog.Debug("Received Groq chat response",
		slog.String("finish_reason", apiResp.Choices[0].FinishReason),
		slog.Int("response_len", len(apiResp.Choices[0].Message.Content)),
	)

	return apiResp.Choices[0].Message.Content, nil
}
