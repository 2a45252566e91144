package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/webrag/internal/pkg/errcode"
	"github.com/xxxsen/webrag/internal/pkg/response"
	"github.com/xxxsen/webrag/internal/service"
)

type SearchHandler struct {
	chat *service.ChatService
}

func NewSearchHandler(chat *service.ChatService) *SearchHandler {
	return &SearchHandler{chat: chat}
}

type searchHit struct {
	ChunkID   string  `json:"chunk_id"`
	SourceURL string  `json:"source_url"`
	Title     string  `json:"title,omitempty"`
	Text      string  `json:"text"`
	Score     float32 `json:"score"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		response.Error(c, errcode.ErrInvalid, "query required")
		return
	}
	k := 0
	if raw := c.Query("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 50 {
			response.Error(c, errcode.ErrInvalid, "invalid k")
			return
		}
		k = parsed
	}
	results, err := h.chat.Search(c.Request.Context(), query, k)
	if err != nil {
		handleError(c, err)
		return
	}
	hits := make([]searchHit, 0, len(results))
	for _, item := range results {
		hits = append(hits, searchHit{
			ChunkID:   item.Chunk.ID,
			SourceURL: item.Chunk.SourceURL,
			Title:     item.Chunk.Title,
			Text:      item.Chunk.Text,
			Score:     item.Score,
		})
	}
	response.Success(c, gin.H{"hits": hits})
}
