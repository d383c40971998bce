package dto

import "github.com/valleybit/kiosk-dca/internal/model"

type ErrorResponse struct {
	Error string `json:"error"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

type ClientListResponse struct {
	Clients []*model.Client `json:"clients"`
	Total   int             `json:"total"`
}

type RecipientListResponse struct {
	Recipients []*model.CommissionRecipient `json:"recipients"`
	Total      int                          `json:"total"`
}

type TransactionListResponse struct {
	Transactions []*model.ProcessedTransaction `json:"transactions"`
	Pagination   Pagination                    `json:"pagination"`
}

type DistributionListResponse struct {
	Distributions []*model.Distribution `json:"distributions"`
	Pagination    Pagination            `json:"pagination"`
}

type CommissionDistributionListResponse struct {
	Distributions []*model.CommissionDistribution `json:"distributions"`
	Pagination    Pagination                      `json:"pagination"`
}
