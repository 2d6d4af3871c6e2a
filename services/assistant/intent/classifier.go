// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stewardai/steward/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var classifierTracer = otel.Tracer("steward.assistant.intent")

// =============================================================================
// Classification Types
// =============================================================================

// Classification is the structured result of one classifier call.
//
// Description:
//
//	Intent names an entry in the action policy table (e.g. "send_email") or
//	"general_query" when the message is conversational. Parameters holds the
//	values the model extracted; it is never nil. Confidence is the model's
//	self-reported score in [0, 1].
type Classification struct {
	Intent     string         `json:"intent"`
	Parameters map[string]any `json:"parameters"`
	Confidence float64        `json:"confidence"`
}

// ClassificationError indicates the model could not produce a valid
// structured response after the reformat retry.
//
// Description:
//
//	Carries the final raw model output (already redacted for logging) and
//	the parse failure that triggered it. Callers treat this as "the message
//	could not be understood" and degrade to a conversational reply.
type ClassificationError struct {
	Raw    string
	Reason error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("intent: classification failed: %v", e.Reason)
}

func (e *ClassificationError) Unwrap() error {
	return e.Reason
}

// =============================================================================
// Classifier
// =============================================================================

// Config controls classifier behavior.
type Config struct {
	// Timeout is the maximum time for one classification, including the
	// reformat retry. Default: 20s.
	Timeout time.Duration

	// HistoryLimit is the maximum number of prior turns included in the
	// prompt. Older turns are dropped. Default: 10.
	HistoryLimit int

	// MaxTokens limits the structured response length. Default: 512.
	MaxTokens int
}

// DefaultConfig returns the standard classifier configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:      20 * time.Second,
		HistoryLimit: 10,
		MaxTokens:    512,
	}
}

// Classifier turns free text plus bounded recent history into a
// Classification using a single LLM call.
//
// Description:
//
//	The model is prompted with the intent catalog, the current datetime
//	(so relative dates can be grounded), the truncated history, and the
//	user message, and must answer with a strict JSON object
//	{"intent", "parameters", "confidence"}. If the first response does not
//	parse, one reformat attempt re-prompts with the parse error appended.
//	A second failure returns *ClassificationError.
//
//	Date and time parameters the model leaves in relative form ("tomorrow",
//	"next week") are normalized to absolute RFC 3339 against the supplied
//	"now" after parsing.
//
// Thread Safety: Classifier is safe for concurrent use.
type Classifier struct {
	client llm.Client
	config Config
	logger *slog.Logger
}

// NewClassifier creates a Classifier backed by the given LLM client.
//
// Inputs:
//   - client: LLM client for the classification call. Must not be nil.
//   - config: Classifier configuration. Zero fields take defaults.
//
// Outputs:
//   - *Classifier: Configured classifier.
//   - error: Non-nil if client is nil.
func NewClassifier(client llm.Client, config Config) (*Classifier, error) {
	if client == nil {
		return nil, fmt.Errorf("intent: llm client must not be nil")
	}

	defaults := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = defaults.HistoryLimit
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}

	return &Classifier{
		client: client,
		config: config,
		logger: slog.Default(),
	}, nil
}

// Classify runs one classification call for the given user message.
//
// Description:
//
//	History beyond the configured limit is truncated from the front so the
//	most recent turns survive. The call is bounded by the configured
//	timeout. A malformed structured response gets exactly one reformat
//	attempt; a second failure returns *ClassificationError.
//
// Inputs:
//   - ctx: Context for cancellation. A timeout is layered on top.
//   - message: The user's message. Must not be empty.
//   - history: Prior turns, oldest first. May be empty.
//   - now: The request timestamp used to ground relative dates.
//
// Outputs:
//   - Classification: The parsed result. Parameters is never nil.
//   - error: *ClassificationError on unparseable output, or the underlying
//     transport/context error.
//
// Thread Safety: Safe for concurrent use.
func (c *Classifier) Classify(ctx context.Context, message string, history []llm.Message, now time.Time) (Classification, error) {
	if strings.TrimSpace(message) == "" {
		return Classification{}, fmt.Errorf("intent: message must not be empty")
	}

	ctx, span := classifierTracer.Start(ctx, "Classifier.Classify")
	defer span.End()

	span.SetAttributes(
		attribute.Int("history.len", len(history)),
		attribute.Int("message.len", len(message)),
	)

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	startTime := time.Now()

	truncated := truncateHistory(history, c.config.HistoryLimit)
	messages := buildClassificationMessages(message, truncated, now)

	params := llm.LowTemperature(c.config.MaxTokens)

	response, err := c.client.Chat(ctx, messages, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
		recordClassification("error", time.Since(startTime))
		return Classification{}, fmt.Errorf("intent: classification chat failed: %w", err)
	}

	result, parseErr := parseClassification(response)
	if parseErr != nil {
		// One reformat attempt: re-prompt with the parse error so the
		// model can correct its output shape.
		c.logger.Warn("Classifier response unparseable, retrying with reformat prompt",
			slog.String("parse_error", parseErr.Error()),
		)

		retryMessages := append(messages,
			llm.Message{Role: "assistant", Content: response},
			llm.Message{Role: "user", Content: buildReformatPrompt(parseErr)},
		)

		response, err = c.client.Chat(ctx, retryMessages, params)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reformat chat failed")
			recordClassification("error", time.Since(startTime))
			return Classification{}, fmt.Errorf("intent: reformat chat failed: %w", err)
		}

		result, parseErr = parseClassification(response)
		if parseErr != nil {
			span.RecordError(parseErr)
			span.SetStatus(codes.Error, "unparseable after retry")
			recordClassification("parse_error", time.Since(startTime))
			return Classification{}, &ClassificationError{
				Raw:    llm.SafeLogString(response),
				Reason: parseErr,
			}
		}
		recordClassification("retry_success", time.Since(startTime))
	} else {
		recordClassification("success", time.Since(startTime))
	}

	result.Parameters = NormalizeDateParameters(result.Parameters, now)

	duration := time.Since(startTime)
	span.SetAttributes(
		attribute.String("intent", result.Intent),
		attribute.Float64("confidence", result.Confidence),
		attribute.Int64("duration_ms", duration.Milliseconds()),
	)

	c.logger.Info("Classified message",
		slog.String("intent", result.Intent),
		slog.Float64("confidence", result.Confidence),
		slog.Duration("duration", duration),
	)

	return result, nil
}

// parseClassification extracts the structured JSON object from a model
// response. Tolerates markdown code fences and surrounding prose; the
// object itself must be strict JSON with an "intent" string.
func parseClassification(response string) (Classification, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return Classification{}, fmt.Errorf("empty response from model")
	}

	// Clean up markdown code blocks
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	// Find JSON in response
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")
	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return Classification{}, fmt.Errorf("no JSON object found in response: %s", truncate(response, 100))
	}

	jsonStr := response[startIdx : endIdx+1]

	var result Classification
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return Classification{}, fmt.Errorf("failed to parse JSON: %w, response: %s", err, truncate(jsonStr, 100))
	}

	if result.Intent == "" {
		return Classification{}, fmt.Errorf("response JSON missing intent field: %s", truncate(jsonStr, 100))
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return Classification{}, fmt.Errorf("confidence %v out of range [0, 1]", result.Confidence)
	}
	if result.Parameters == nil {
		result.Parameters = map[string]any{}
	}

	return result, nil
}

// truncateHistory keeps the most recent limit turns.
func truncateHistory(history []llm.Message, limit int) []llm.Message {
	if len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

// truncate shortens a string for log and error output.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
