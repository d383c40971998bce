package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/valleybit/kiosk-dca/internal/dto"
	"github.com/valleybit/kiosk-dca/internal/middleware"
	"github.com/valleybit/kiosk-dca/internal/service"
)

type ClientHandler struct {
	svc     *service.ClientService
	metrics *service.MetricsService
}

func NewClientHandler(svc *service.ClientService, metrics *service.MetricsService) *ClientHandler {
	return &ClientHandler{svc: svc, metrics: metrics}
}

func (h *ClientHandler) Create(c *gin.Context) {
	var req dto.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "validation failed: " + err.Error()})
		return
	}

	client, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, client)
}

func (h *ClientHandler) Get(c *gin.Context) {
	client, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, resp := middleware.MapError(err)
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, client)
}

func (h *ClientHandler) List(c *gin.Context) {
	clients, err := h.svc.List(c.Request.Context())
	if err != nil {
		status, resp := middleware.MapError(err)
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, dto.ClientListResponse{Clients: clients, Total: len(clients)})
}

func (h *ClientHandler) Update(c *gin.Context) {
	var req dto.UpdateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "validation failed: " + err.Error()})
		return
	}

	client, err := h.svc.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

func (h *ClientHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		status, resp := middleware.MapError(err)
		c.JSON(status, resp)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ClientHandler) GetMetrics(c *gin.Context) {
	m, err := h.metrics.ClientMetrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, resp := middleware.MapError(err)
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, m)
}

// respondServiceError separates request-level validation failures from
// everything else.
func respondServiceError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrValidation) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	status, resp := middleware.MapError(err)
	c.JSON(status, resp)
}
