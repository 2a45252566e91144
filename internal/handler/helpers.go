package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/webrag/internal/pkg/errcode"
	apperrors "github.com/xxxsen/webrag/internal/pkg/errors"
	"github.com/xxxsen/webrag/internal/pkg/response"
	"github.com/xxxsen/webrag/internal/service"
)

// sessionID resolves the caller's session from the X-Session-Id header,
// falling back to the request body value when the header is absent.
func sessionID(c *gin.Context, bodyValue string) string {
	if sid := c.GetHeader("X-Session-Id"); sid != "" {
		return sid
	}
	return bodyValue
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		response.Error(c, appErr.ErrNotFound, "not found")
	case errors.Is(err, apperrors.ErrInvalid):
		response.Error(c, appErr.ErrInvalid, "invalid request")
	case errors.Is(err, apperrors.ErrCapacityExceeded):
		response.Error(c, appErr.ErrQuestionTooLong, "question too long")
	case errors.Is(err, apperrors.ErrUnavailable):
		response.Error(c, appErr.ErrAIUnavailable, "model unavailable")
	case errors.Is(err, service.ErrRunning):
		response.Error(c, appErr.ErrTooMany, "ingest already running")
	default:
		response.Error(c, appErr.ErrInternal, "internal error")
	}
}
