// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package dispatch routes confirmed tool actions to their registered
// adapters and folds every outcome, including adapter failures, into a
// uniform result the orchestrator can phrase for the user.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/stewardai/steward/services/assistant/action"
)

var dispatchTracer = otel.Tracer("steward.assistant.dispatch")

// DefaultTimeout bounds one adapter call.
const DefaultTimeout = 30 * time.Second

// Adapter executes operations against one external tool.
//
// Description:
//
//	Execute runs a single operation with already-validated parameters and
//	returns a result payload. Implementations must respect ctx
//	cancellation and should return *AdapterError to classify failures;
//	unclassified errors are reported as remote failures.
type Adapter interface {
	Tool() action.ToolType
	Execute(ctx context.Context, operation string, params map[string]any) (map[string]any, error)
}

// AdapterError classifies an adapter failure for user-facing messaging.
type AdapterError struct {
	Kind action.ErrorKind
	Err  error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter error (%s): %v", e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Dispatcher holds the adapter registry.
//
// Description:
//
//	Adapters are registered once at startup; the registry is immutable
//	afterwards. Dispatch never retries: a state-changing operation that
//	timed out may have taken effect remotely, and retrying could execute
//	it twice. The timeout outcome is therefore reported as uncertain.
//
// Thread Safety: Dispatcher is safe for concurrent use after Register
// calls complete.
type Dispatcher struct {
	adapters map[action.ToolType]Adapter
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
//
// Inputs:
//   - timeout: Per-call bound. Zero takes DefaultTimeout.
func NewDispatcher(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		adapters: make(map[action.ToolType]Adapter),
		timeout:  timeout,
		logger:   slog.Default(),
	}
}

// Register adds an adapter to the registry. Not safe to call concurrently
// with Dispatch; wire all adapters during startup.
func (d *Dispatcher) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("dispatch: adapter must not be nil")
	}
	tool := a.Tool()
	if !tool.Valid() {
		return fmt.Errorf("dispatch: unknown tool type %q", tool)
	}
	if _, exists := d.adapters[tool]; exists {
		return fmt.Errorf("dispatch: adapter for %q already registered", tool)
	}
	d.adapters[tool] = a
	return nil
}

// Dispatch executes one tool action and always returns a result.
//
// Description:
//
//	Looks up the adapter for the action's tool, runs it under the
//	configured timeout, and converts the outcome:
//	  - success           -> StatusSuccess with the adapter payload
//	  - no adapter        -> StatusFailure, ErrorKindUnknownTool
//	  - deadline exceeded -> StatusFailure, ErrorKindTimeout (uncertain:
//	    the remote side may have completed the operation)
//	  - *AdapterError     -> StatusFailure with the adapter's kind
//	  - any other error   -> StatusFailure, ErrorKindRemote
//
// Inputs:
//   - ctx: Context for cancellation. The call timeout is layered on top.
//   - act: The action to execute.
//
// Outputs:
//   - action.ToolResult: Always populated; never panics through.
//
// Thread Safety: Safe for concurrent use.
func (d *Dispatcher) Dispatch(ctx context.Context, act action.ToolAction) action.ToolResult {
	ctx, span := dispatchTracer.Start(ctx, "Dispatcher.Dispatch")
	defer span.End()

	span.SetAttributes(
		attribute.String("tool", string(act.Tool)),
		attribute.String("operation", act.Operation),
	)

	startTime := time.Now()

	adapter, ok := d.adapters[act.Tool]
	if !ok {
		span.SetStatus(codes.Error, "unknown tool")
		recordDispatch(string(act.Tool), act.Operation, "unknown_tool", time.Since(startTime))
		return action.ToolResult{
			Status:      action.StatusFailure,
			ErrorKind:   action.ErrorKindUnknownTool,
			ErrorDetail: fmt.Sprintf("no adapter registered for tool %q", act.Tool),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	payload, err := adapter.Execute(ctx, act.Operation, act.Parameters)
	duration := time.Since(startTime)

	if err != nil {
		kind := classifyDispatchError(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		recordDispatch(string(act.Tool), act.Operation, string(kind), duration)

		d.logger.Warn("Tool dispatch failed",
			slog.String("tool", string(act.Tool)),
			slog.String("operation", act.Operation),
			slog.String("error_kind", string(kind)),
			slog.Duration("duration", duration),
		)

		return action.ToolResult{
			Status:      action.StatusFailure,
			ErrorKind:   kind,
			ErrorDetail: err.Error(),
		}
	}

	recordDispatch(string(act.Tool), act.Operation, "success", duration)
	span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))

	d.logger.Info("Tool dispatched",
		slog.String("tool", string(act.Tool)),
		slog.String("operation", act.Operation),
		slog.Duration("duration", duration),
	)

	return action.ToolResult{
		Status:  action.StatusSuccess,
		Payload: payload,
	}
}

// classifyDispatchError maps an adapter failure to an error kind. Timeout
// detection comes first: a deadline hit means the remote outcome is
// unknown regardless of how the adapter wrapped the error.
func classifyDispatchError(ctx context.Context, err error) action.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return action.ErrorKindTimeout
	}

	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) && adapterErr.Kind != action.ErrorKindNone {
		return adapterErr.Kind
	}

	return action.ErrorKindRemote
}
