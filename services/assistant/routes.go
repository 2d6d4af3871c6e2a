// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package assistant

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all assistant routes with the router.
//
// Description:
//
//	Registers the /v1/assistant/* endpoints with the given Gin router
//	group. The group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/assistant/chat - Handle one user message
//	POST /v1/assistant/confirm/:session_id - Resolve a pending action
//	GET  /v1/assistant/conversations - List a user's conversations
//	GET  /v1/assistant/conversations/:session_id - Read one transcript
//	POST /v1/assistant/conversations/:session_id/archive - Soft-delete
//	GET  /v1/assistant/health - Health check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	assistant := rg.Group("/assistant")
	{
		assistant.POST("/chat", handlers.HandleChat)
		assistant.POST("/confirm/:session_id", handlers.HandleConfirm)

		assistant.GET("/conversations", handlers.HandleListConversations)
		assistant.GET("/conversations/:session_id", handlers.HandleGetConversation)
		assistant.POST("/conversations/:session_id/archive", handlers.HandleArchiveConversation)

		assistant.GET("/health", handlers.HandleHealth)
	}
}
