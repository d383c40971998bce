package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/valleybit/kiosk-dca/internal/dto"
	"github.com/valleybit/kiosk-dca/internal/middleware"
	"github.com/valleybit/kiosk-dca/internal/service"
)

type RecipientHandler struct {
	svc *service.RecipientService
}

func NewRecipientHandler(svc *service.RecipientService) *RecipientHandler {
	return &RecipientHandler{svc: svc}
}

func (h *RecipientHandler) Create(c *gin.Context) {
	var req dto.CreateRecipientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "validation failed: " + err.Error()})
		return
	}

	rec, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *RecipientHandler) Get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, resp := middleware.MapError(err)
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *RecipientHandler) List(c *gin.Context) {
	recs, err := h.svc.List(c.Request.Context())
	if err != nil {
		status, resp := middleware.MapError(err)
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, dto.RecipientListResponse{Recipients: recs, Total: len(recs)})
}

func (h *RecipientHandler) Update(c *gin.Context) {
	var req dto.UpdateRecipientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "validation failed: " + err.Error()})
		return
	}

	rec, err := h.svc.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *RecipientHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		status, resp := middleware.MapError(err)
		c.JSON(status, resp)
		return
	}
	c.Status(http.StatusNoContent)
}
