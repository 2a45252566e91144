package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/webrag/internal/model"
	"github.com/xxxsen/webrag/internal/pkg/errcode"
	"github.com/xxxsen/webrag/internal/pkg/response"
	"github.com/xxxsen/webrag/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type askRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

type askResponse struct {
	Answer      string   `json:"answer"`
	Sources     []string `json:"sources,omitempty"`
	ContextUsed bool     `json:"context_used"`
	Model       string   `json:"model"`
}

func (h *ChatHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	sid := sessionID(c, req.SessionID)
	if sid == "" {
		response.Error(c, errcode.ErrInvalid, "session id required")
		return
	}
	answer, err := h.chat.Ask(c.Request.Context(), sid, req.Question)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, askResponse{
		Answer:      answer.Text,
		Sources:     answer.Sources,
		ContextUsed: answer.ContextUsed,
		Model:       answer.Model,
	})
}

// AskStream answers over server-sent events: one "message" event per text
// fragment, a final "done" event, or an "error" event.
func (h *ChatHandler) AskStream(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	sid := sessionID(c, req.SessionID)
	if sid == "" {
		response.Error(c, errcode.ErrInvalid, "session id required")
		return
	}
	stream, err := h.chat.AskStream(c.Request.Context(), sid, req.Question)
	if err != nil {
		handleError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)

	for fragment := range stream {
		if fragment.Err != nil {
			writeEvent(c, "error", gin.H{"message": "generation failed"})
			if flusher != nil {
				flusher.Flush()
			}
			return
		}
		if fragment.Done {
			writeEvent(c, "done", gin.H{})
			if flusher != nil {
				flusher.Flush()
			}
			return
		}
		writeEvent(c, "message", gin.H{"text": fragment.Text})
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func writeEvent(c *gin.Context, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
}

type historyTurn struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

func (h *ChatHandler) History(c *gin.Context) {
	sid := sessionID(c, c.Query("session_id"))
	if sid == "" {
		response.Error(c, errcode.ErrInvalid, "session id required")
		return
	}
	turns := h.chat.History(sid)
	items := make([]historyTurn, 0, len(turns))
	for _, turn := range turns {
		items = append(items, historyTurn{
			Role:      string(turn.Role),
			Text:      turn.Text,
			Timestamp: turn.Timestamp,
		})
	}
	response.Success(c, gin.H{"session_id": sid, "turns": items})
}

func (h *ChatHandler) ClearHistory(c *gin.Context) {
	sid := sessionID(c, c.Query("session_id"))
	if sid == "" {
		response.Error(c, errcode.ErrInvalid, "session id required")
		return
	}
	h.chat.ClearHistory(sid)
	response.Success(c, gin.H{"session_id": sid})
}

type feedbackRequest struct {
	SessionID         string `json:"session_id"`
	UserMessage       string `json:"user_message"`
	AssistantResponse string `json:"assistant_response"`
	Rating            int    `json:"rating"`
	Comments          string `json:"comments"`
	Helpful           bool   `json:"helpful"`
}

func (h *ChatHandler) Feedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	err := h.chat.RecordFeedback(c.Request.Context(), model.Feedback{
		SessionID:         sessionID(c, req.SessionID),
		UserMessage:       req.UserMessage,
		AssistantResponse: req.AssistantResponse,
		Rating:            req.Rating,
		Comments:          req.Comments,
		Helpful:           req.Helpful,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"recorded": true})
}

func (h *ChatHandler) Suggestions(c *gin.Context) {
	suggested := h.chat.Suggested()
	if suggested == nil {
		suggested = []string{}
	}
	response.Success(c, gin.H{"questions": suggested})
}
