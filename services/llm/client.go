// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides thin REST clients for the hosted language models
// the assistant can run on. Each provider is wrapped with raw net/http so
// the wire format stays visible and mockable with httptest.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Message is a single turn in a chat exchange sent to a provider.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`
}

// GenerationParams are the provider-agnostic knobs for one generation call.
// Nil pointer fields mean "use the provider default".
type GenerationParams struct {
	Temperature   *float32
	MaxTokens     *int
	TopP          *float32
	Stop          []string
	ModelOverride string
}

// Client is the provider-agnostic interface consumed by the intent
// classifier and the conversational reply path.
//
// Description:
//
//	Generate is a one-shot prompt completion. Chat accepts a full message
//	history. Both are blocking network calls; callers bound them with a
//	context deadline. Implementations must be safe for concurrent use.
type Client interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}

// NewFromEnv constructs the provider selected by the LLM_PROVIDER
// environment variable ("groq" or "gemini"; groq is the default).
//
// Outputs:
//   - Client: The configured provider client.
//   - error: Non-nil if the provider name is unknown or its API key is
//     missing.
func NewFromEnv() (Client, error) {
	provider := strings.ToLower(os.Getenv("LLM_PROVIDER"))
	switch provider {
	case "", "groq":
		return NewGroqClient()
	case "gemini":
		return NewGeminiClient()
	default:
		return nil, fmt.Errorf("llm: unknown provider %q (want groq or gemini)", provider)
	}
}

// floatPtr and intPtr are small helpers for building GenerationParams.
func floatPtr(v float32) *float32 { return &v }
func intPtr(v int) *int           { return &v }

// LowTemperature returns params tuned for deterministic structured output
// (classification, extraction). Temperature 0.1, bounded response size.
func LowTemperature(maxTokens int) GenerationParams {
	return GenerationParams{
		Temperature: floatPtr(0.1),
		MaxTokens:   intPtr(maxTokens),
	}
}
