package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/webrag/internal/middleware"
)

type RouterDeps struct {
	Chat          *ChatHandler
	Search        *SearchHandler
	Admin         *AdminHandler
	AskRateWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	askGroup := api.Group("")
	askGroup.Use(middleware.RateLimit(deps.AskRateWindow))
	askGroup.POST("/chat/ask", deps.Chat.Ask)
	askGroup.POST("/chat/ask/stream", deps.Chat.AskStream)

	api.GET("/chat/history", deps.Chat.History)
	api.DELETE("/chat/history", deps.Chat.ClearHistory)
	api.GET("/chat/suggestions", deps.Chat.Suggestions)
	api.POST("/chat/feedback", deps.Chat.Feedback)

	api.GET("/search", deps.Search.Search)

	api.POST("/admin/ingest", deps.Admin.Ingest)
	api.GET("/admin/stats", deps.Admin.Stats)
}
