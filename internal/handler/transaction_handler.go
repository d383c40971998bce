package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/valleybit/kiosk-dca/internal/dto"
	"github.com/valleybit/kiosk-dca/internal/middleware"
	"github.com/valleybit/kiosk-dca/internal/service"
)

type TransactionHandler struct {
	svc *service.HistoryService
}

func NewTransactionHandler(svc *service.HistoryService) *TransactionHandler {
	return &TransactionHandler{svc: svc}
}

func (h *TransactionHandler) ListProcessed(c *gin.Context) {
	p := dto.ParsePagination(c)

	txs, total, err := h.svc.ProcessedTransactions(c.Request.Context(), p.PageSize, p.Offset)
	if err != nil {
		status, resp := middleware.MapError(err)
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, dto.TransactionListResponse{
		Transactions: txs,
		Pagination:   dto.NewPagination(p.Page, p.PageSize, total),
	})
}

func (h *TransactionHandler) ListDistributions(c *gin.Context) {
	p := dto.ParsePagination(c)

	dists, total, err := h.svc.Distributions(c.Request.Context(), p.PageSize, p.Offset)
	if err != nil {
		status, resp := middleware.MapError(err)
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, dto.DistributionListResponse{
		Distributions: dists,
		Pagination:    dto.NewPagination(p.Page, p.PageSize, total),
	})
}

func (h *TransactionHandler) ListCommissionDistributions(c *gin.Context) {
	p := dto.ParsePagination(c)

	dists, total, err := h.svc.CommissionDistributions(c.Request.Context(), p.PageSize, p.Offset)
	if err != nil {
		status, resp := middleware.MapError(err)
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, dto.CommissionDistributionListResponse{
		Distributions: dists,
		Pagination:    dto.NewPagination(p.Page, p.PageSize, total),
	})
}
