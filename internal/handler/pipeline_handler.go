package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/valleybit/kiosk-dca/internal/middleware"
	"github.com/valleybit/kiosk-dca/internal/service"
)

type PipelineHandler struct {
	pipeline *service.Pipeline
}

func NewPipelineHandler(pipeline *service.Pipeline) *PipelineHandler {
	return &PipelineHandler{pipeline: pipeline}
}

// RunFlow triggers one flow-mode ingestion cycle. A concurrent run yields
// 409; per-transaction errors come back inside the summary, not as an HTTP
// failure.
func (h *PipelineHandler) RunFlow(c *gin.Context) {
	summary, err := h.pipeline.RunFlow(c.Request.Context())
	if err != nil {
		status, resp := middleware.MapError(err)
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *PipelineHandler) RunFixed(c *gin.Context) {
	summary, err := h.pipeline.RunFixed(c.Request.Context())
	if err != nil {
		status, resp := middleware.MapError(err)
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *PipelineHandler) RetryPayouts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}

	summary, err := h.pipeline.RunRetry(c.Request.Context(), limit)
	if err != nil {
		status, resp := middleware.MapError(err)
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, summary)
}
