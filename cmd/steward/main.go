// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command steward starts the Steward assistant API server.
//
// Steward routes natural-language requests to productivity tools through
// an LLM intent classifier with a classify/confirm/execute pipeline:
//   - Read-only operations dispatch immediately
//   - State-changing operations park until the user confirms
//   - Conversations and pending actions persist in embedded BadgerDB
//
// Usage:
//
//	go run ./cmd/steward
//	go run ./cmd/steward -port 9090
//
// Providers:
//
//	GROQ_API_KEY=... go run ./cmd/steward
//	LLM_PROVIDER=gemini GEMINI_API_KEY=... go run ./cmd/steward
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/assistant/health
//
//	# Chat
//	curl -X POST http://localhost:8080/v1/assistant/chat \
//	  -H "Content-Type: application/json" \
//	  -d '{"user_id": "u1", "message": "email john@example.com saying hi"}'
//
//	# Confirm the pending action
//	curl -X POST http://localhost:8080/v1/assistant/confirm/<session_id> \
//	  -H "Content-Type: application/json" \
//	  -d '{"confirmed": true}'
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/stewardai/steward/services/assistant"
	"github.com/stewardai/steward/services/assistant/conversation"
	"github.com/stewardai/steward/services/assistant/dispatch"
	"github.com/stewardai/steward/services/assistant/intent"
	"github.com/stewardai/steward/services/assistant/pending"
	"github.com/stewardai/steward/services/assistant/stream"
	"github.com/stewardai/steward/services/llm"
	storage "github.com/stewardai/steward/services/storage/badger"
	"github.com/stewardai/steward/services/tools"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	dataDir := flag.String("data-dir", "", "BadgerDB directory (default ~/.steward/data)")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so trace context flows from inbound
	// headers through all handlers.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	db, err := openStore(*dataDir)
	if err != nil {
		slog.Error("Failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	llmClient, err := llm.NewFromEnv()
	if err != nil {
		slog.Error("Failed to create LLM client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	classifier, err := intent.NewClassifier(llmClient, intent.Config{})
	if err != nil {
		slog.Error("Failed to create classifier", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store, err := pending.NewBadgerStore(db, pending.DefaultTTL)
	if err != nil {
		slog.Error("Failed to create pending store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	recorder, err := conversation.NewBadgerRecorder(db)
	if err != nil {
		slog.Error("Failed to create conversation recorder", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dispatcher := dispatch.NewDispatcher(0)
	registered := registerAdapters(dispatcher)

	orch, err := assistant.NewOrchestrator(classifier, llmClient, store, dispatcher, recorder)
	if err != nil {
		slog.Error("Failed to create orchestrator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	handlers := assistant.NewHandlers(orch, recorder, storeProbe(db))

	streamHandler, err := stream.NewHandler(orch, stream.Config{})
	if err != nil {
		slog.Error("Failed to create stream handler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("steward-assistant"))
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	assistant.RegisterRoutes(v1, handlers)
	stream.RegisterRoutes(v1, streamHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	printBanner(*port, registered)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down Steward server")
		if err := db.Close(); err != nil {
			slog.Warn("Failed to close store", slog.String("error", err.Error()))
		}
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Starting Steward server", slog.String("address", addr))
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// openStore opens the BadgerDB backing both the pending-action store and
// the conversation recorder.
func openStore(dataDir string) (*storage.DB, error) {
	if dataDir == "" {
		dataDir = os.Getenv("STEWARD_DATA_DIR")
	}
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".steward", "data")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	cfg := storage.DefaultConfig()
	cfg.Path = dataDir
	cfg.Logger = slog.Default()

	db, err := storage.OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("Store opened", slog.String("path", dataDir))
	return db, nil
}

// storeProbe builds the /health liveness check over the store.
func storeProbe(db *storage.DB) assistant.HealthCheck {
	return func(ctx context.Context) error {
		return db.WithReadTxn(ctx, func(txn *badger.Txn) error { return nil })
	}
}

// registerAdapters wires every tool whose credentials are present.
// Missing credentials degrade that tool to an "unknown tool" dispatch
// failure instead of blocking startup.
func registerAdapters(dispatcher *dispatch.Dispatcher) []string {
	ctx := context.Background()
	var registered []string

	googleAuth := tools.GoogleAuth{}

	if gmail, err := tools.NewGmailAdapterFromAuth(ctx, googleAuth); err != nil {
		slog.Warn("Gmail adapter unavailable", slog.String("error", err.Error()))
	} else if err := dispatcher.Register(gmail); err != nil {
		slog.Warn("Gmail adapter registration failed", slog.String("error", err.Error()))
	} else {
		registered = append(registered, "gmail")
	}

	if cal, err := tools.NewCalendarAdapterFromAuth(ctx, googleAuth); err != nil {
		slog.Warn("Calendar adapter unavailable", slog.String("error", err.Error()))
	} else if err := dispatcher.Register(cal); err != nil {
		slog.Warn("Calendar adapter registration failed", slog.String("error", err.Error()))
	} else {
		registered = append(registered, "calendar")
	}

	if docsAdapter, err := tools.NewDocsAdapterFromAuth(ctx, googleAuth); err != nil {
		slog.Warn("Docs adapter unavailable", slog.String("error", err.Error()))
	} else if err := dispatcher.Register(docsAdapter); err != nil {
		slog.Warn("Docs adapter registration failed", slog.String("error", err.Error()))
	} else {
		registered = append(registered, "docs")
	}

	if slack, err := tools.NewSlackAdapter(""); err != nil {
		slog.Warn("Slack adapter unavailable", slog.String("error", err.Error()))
	} else if err := dispatcher.Register(slack); err != nil {
		slog.Warn("Slack adapter registration failed", slog.String("error", err.Error()))
	} else {
		registered = append(registered, "slack")
	}

	if sms, err := tools.NewSMSAdapter(tools.SMSConfig{}); err != nil {
		slog.Warn("SMS adapter unavailable", slog.String("error", err.Error()))
	} else if err := dispatcher.Register(sms); err != nil {
		slog.Warn("SMS adapter registration failed", slog.String("error", err.Error()))
	} else {
		registered = append(registered, "sms")
	}

	return registered
}

func printBanner(port int, registeredTools []string) {
	toolList := "none (set tool credentials to enable)"
	if len(registeredTools) > 0 {
		toolList = fmt.Sprintf("%v", registeredTools)
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                         STEWARD SERVER                            ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Natural-language assistant for email, calendar, docs, and chat.  ║
║  Tools: %-57s ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/assistant/health           │  ║
║  │                                                             │  ║
║  │ # Chat                                                      │  ║
║  │ curl -X POST http://localhost:%d/v1/assistant/chat \   │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"user_id": "u1", "message": "show my inbox"}'        │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Chat: /chat, /confirm/:session_id, /chat/stream (ws)         ║
║  ├── History: /conversations, /conversations/:id, .../archive     ║
║  └── Ops: /health, /metrics                                       ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, toolList, port, port)
}
