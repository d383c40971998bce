package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/valleybit/kiosk-dca/internal/middleware"
	"github.com/valleybit/kiosk-dca/internal/service"
)

type MetricsHandler struct {
	svc *service.MetricsService
}

func NewMetricsHandler(svc *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{svc: svc}
}

func (h *MetricsHandler) GetSystemMetrics(c *gin.Context) {
	m, err := h.svc.SystemMetrics(c.Request.Context())
	if err != nil {
		status, resp := middleware.MapError(err)
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, m)
}
