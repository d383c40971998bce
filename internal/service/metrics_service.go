package service

import (
	"context"

	"github.com/valleybit/kiosk-dca/internal/model"
	"github.com/valleybit/kiosk-dca/internal/repository"
)

// MetricsService serves read-only observability snapshots. It never mutates
// ledger state.
type MetricsService struct {
	repo *repository.MetricsRepository
}

func NewMetricsService(repo *repository.MetricsRepository) *MetricsService {
	return &MetricsService{repo: repo}
}

func (s *MetricsService) SystemMetrics(ctx context.Context) (*model.SystemMetrics, error) {
	return s.repo.SystemMetrics(ctx)
}

func (s *MetricsService) ClientMetrics(ctx context.Context, clientID string) (*model.ClientMetrics, error) {
	return s.repo.ClientMetrics(ctx, clientID)
}
