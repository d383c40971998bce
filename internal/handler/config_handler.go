package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/valleybit/kiosk-dca/internal/dto"
	"github.com/valleybit/kiosk-dca/internal/middleware"
	"github.com/valleybit/kiosk-dca/internal/service"
)

type ConfigHandler struct {
	svc *service.ConfigService
}

func NewConfigHandler(svc *service.ConfigService) *ConfigHandler {
	return &ConfigHandler{svc: svc}
}

func (h *ConfigHandler) Get(c *gin.Context) {
	cfg, err := h.svc.Get(c.Request.Context())
	if err != nil {
		status, resp := middleware.MapError(err)
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *ConfigHandler) Update(c *gin.Context) {
	var req dto.UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "validation failed: " + err.Error()})
		return
	}

	cfg, err := h.svc.Update(c.Request.Context(), &req)
	if err != nil {
		status, resp := middleware.MapError(err)
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, cfg)
}
