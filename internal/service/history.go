package service

import (
	"context"

	"github.com/valleybit/kiosk-dca/internal/model"
	"github.com/valleybit/kiosk-dca/internal/repository"
)

// HistoryService serves the paginated audit views over the ledger.
type HistoryService struct {
	ledger        *repository.LedgerRepository
	distributions *repository.DistributionRepository
}

func NewHistoryService(ledger *repository.LedgerRepository, distributions *repository.DistributionRepository) *HistoryService {
	return &HistoryService{ledger: ledger, distributions: distributions}
}

func (s *HistoryService) ProcessedTransactions(ctx context.Context, limit, offset int) ([]*model.ProcessedTransaction, int, error) {
	return s.ledger.ListProcessed(ctx, limit, offset)
}

func (s *HistoryService) Distributions(ctx context.Context, limit, offset int) ([]*model.Distribution, int, error) {
	return s.distributions.List(ctx, limit, offset)
}

func (s *HistoryService) CommissionDistributions(ctx context.Context, limit, offset int) ([]*model.CommissionDistribution, int, error) {
	return s.distributions.ListCommission(ctx, limit, offset)
}
