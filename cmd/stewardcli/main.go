// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command stewardcli is the terminal client for the Steward assistant.
//
// Usage:
//
//	stewardcli ask "show my unread emails"
//	stewardcli chat
//	stewardcli conversations
//	stewardcli auth
//
// The server address defaults to http://localhost:8080 and can be
// overridden with STEWARD_SERVER_URL or --server.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/gmail/v1"

	"github.com/stewardai/steward/services/tools"
)

var (
	serverURL string
	userID    string
	sessionID string
)

type chatRequest struct {
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	ReplyText        string   `json:"reply_text"`
	SessionID        string   `json:"session_id"`
	ActionRequired   bool     `json:"action_required"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
}

type confirmRequest struct {
	Confirmed bool `json:"confirmed"`
}

type conversationEntry struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	TurnCount int    `json:"turn_count"`
	UpdatedAt string `json:"updated_at"`
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "stewardcli",
		Short: "Terminal client for the Steward assistant",
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Steward server URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "User ID (default $USER)")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "Session ID to continue")

	askCmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand,
	}

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session",
		Run:   runChatCommand,
	}

	conversationsCmd := &cobra.Command{
		Use:   "conversations",
		Short: "List your conversations",
		Run:   runConversationsCommand,
	}

	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Run the Google OAuth flow for the Gmail/Calendar/Docs tools",
		Run:   runAuthCommand,
	}

	rootCmd.AddCommand(askCmd, chatCmd, conversationsCmd, authCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func baseURL() string {
	if serverURL != "" {
		return strings.TrimRight(serverURL, "/")
	}
	if url := os.Getenv("STEWARD_SERVER_URL"); url != "" {
		return strings.TrimRight(url, "/")
	}
	return "http://localhost:8080"
}

func effectiveUserID() string {
	if userID != "" {
		return userID
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "default"
}

func runAskCommand(_ *cobra.Command, args []string) {
	message := strings.Join(args, " ")
	resp, err := sendChat(message, sessionID)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	printReply(resp)

	if resp.ActionRequired {
		fmt.Println("\n(confirm with: stewardcli chat --session " + resp.SessionID + ")")
	}
}

func runChatCommand(_ *cobra.Command, _ []string) {
	fmt.Printf("Steward chat (%s). Type 'exit' to quit.\n", baseURL())
	scanner := bufio.NewScanner(os.Stdin)
	currentSession := sessionID
	awaitingConfirmation := false

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" || line == "q" {
			fmt.Println("Goodbye.")
			break
		}

		// A bare yes/no while an action is pending resolves it directly
		// instead of going back through the classifier.
		if awaitingConfirmation {
			if answer, ok := parseYesNo(line); ok {
				resp, err := sendConfirm(currentSession, answer)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					continue
				}
				awaitingConfirmation = false
				printReply(resp)
				continue
			}
			// Anything else supersedes the pending action.
			awaitingConfirmation = false
		}

		resp, err := sendChat(line, currentSession)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		currentSession = resp.SessionID
		awaitingConfirmation = resp.ActionRequired
		printReply(resp)
	}
}

func runConversationsCommand(_ *cobra.Command, _ []string) {
	url := fmt.Sprintf("%s/v1/assistant/conversations?user_id=%s", baseURL(), effectiveUserID())
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		log.Fatalf("Error: server unavailable at %s: %v", baseURL(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Server error (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var listing struct {
		Conversations []conversationEntry `json:"conversations"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		log.Fatalf("Error parsing response: %v", err)
	}

	if len(listing.Conversations) == 0 {
		fmt.Println("No conversations yet.")
		return
	}
	for _, conv := range listing.Conversations {
		fmt.Printf("%s  %-40q  %d turns  %s\n", conv.SessionID, conv.Title, conv.TurnCount, conv.UpdatedAt)
	}
}

func runAuthCommand(_ *cobra.Command, _ []string) {
	credentialsPath := os.Getenv("STEWARD_GOOGLE_CREDENTIALS")
	if credentialsPath == "" {
		credentialsPath = filepath.Join(os.Getenv("HOME"), ".steward", "google-credentials.json")
	}

	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		log.Fatalf("Unable to read credentials file at %s: %v", credentialsPath, err)
	}

	config, err := google.ConfigFromJSON(b,
		gmail.GmailReadonlyScope, gmail.GmailSendScope, gmail.GmailComposeScope,
		calendar.CalendarEventsScope, docs.DocumentsScope)
	if err != nil {
		log.Fatalf("Unable to parse credentials: %v", err)
	}

	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Open this link in your browser, then paste the authorization code:\n%s\n\ncode: ", authURL)

	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		log.Fatalf("Unable to read authorization code: %v", err)
	}

	token, err := config.Exchange(context.Background(), authCode)
	if err != nil {
		log.Fatalf("Authentication failed: %v", err)
	}

	tokenPath := filepath.Join(os.Getenv("HOME"), ".steward", "google-token.json")
	if err := tools.SaveToken(tokenPath, token); err != nil {
		log.Fatalf("Failed to save token: %v", err)
	}
	fmt.Println("\nAuthentication successful. Token saved to", tokenPath)
}

func sendChat(message, session string) (chatResponse, error) {
	var out chatResponse
	payload, err := json.Marshal(chatRequest{
		UserID:    effectiveUserID(),
		Message:   message,
		SessionID: session,
	})
	if err != nil {
		return out, fmt.Errorf("building request: %w", err)
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Post(baseURL()+"/v1/assistant/chat", "application/json", bytes.NewReader(payload))
	if err != nil {
		return out, fmt.Errorf("server unavailable at %s: %w", baseURL(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("server error (HTTP %d): %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("parsing response: %w", err)
	}
	return out, nil
}

func sendConfirm(session string, confirmed bool) (chatResponse, error) {
	var out chatResponse
	payload, _ := json.Marshal(confirmRequest{Confirmed: confirmed})

	client := &http.Client{Timeout: 2 * time.Minute}
	url := fmt.Sprintf("%s/v1/assistant/confirm/%s", baseURL(), session)
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return out, fmt.Errorf("server unavailable at %s: %w", baseURL(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("reading response: %w", err)
	}
	// 404 still carries a usable reply ("nothing pending").
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return out, fmt.Errorf("server error (HTTP %d): %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("parsing response: %w", err)
	}
	return out, nil
}

func printReply(resp chatResponse) {
	fmt.Printf("\n%s\n", resp.ReplyText)
	if resp.ActionRequired && len(resp.SuggestedActions) > 0 {
		fmt.Printf("[%s]\n", strings.Join(resp.SuggestedActions, "/"))
	}
}

// parseYesNo interprets a confirmation answer. The second return is
// false when the input is neither an approval nor a refusal.
func parseYesNo(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "yeah", "yep", "sure", "ok", "confirm":
		return true, true
	case "no", "n", "nope", "cancel", "don't":
		return false, true
	}
	return false, false
}
