package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/webrag/internal/pkg/errcode"
	"github.com/xxxsen/webrag/internal/pkg/response"
	"github.com/xxxsen/webrag/internal/service"
)

type AdminHandler struct {
	chat   *service.ChatService
	ingest *service.IngestService
}

func NewAdminHandler(chat *service.ChatService, ingest *service.IngestService) *AdminHandler {
	return &AdminHandler{chat: chat, ingest: ingest}
}

type ingestFailureItem struct {
	SourceURL string `json:"source_url"`
	Reason    string `json:"reason"`
}

func (h *AdminHandler) Ingest(c *gin.Context) {
	if h.ingest == nil {
		response.Error(c, errcode.ErrIngestFailed, "ingestion not configured")
		return
	}
	report, err := h.ingest.Run(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	failures := make([]ingestFailureItem, 0, len(report.Failures))
	for _, f := range report.Failures {
		failures = append(failures, ingestFailureItem{SourceURL: f.SourceURL, Reason: f.Reason})
	}
	response.Success(c, gin.H{
		"documents":  report.Documents,
		"chunks":     report.Chunks,
		"skipped":    report.Skipped,
		"failures":   failures,
		"elapsed_ms": report.Elapsed.Milliseconds(),
	})
}

func (h *AdminHandler) Stats(c *gin.Context) {
	info := h.chat.Info(c.Request.Context())
	payload := gin.H{
		"model":        info.Model,
		"chunk_count":  info.ChunkCount,
		"sessions":     info.Sessions,
		"store_online": info.StoreOnline,
	}
	if h.ingest != nil {
		if last := h.ingest.LastRun(); !last.IsZero() {
			payload["last_ingest"] = last.Unix()
		}
	}
	response.Success(c, payload)
}
