package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/valleybit/kiosk-dca/internal/model"
)

// MetricsRepository serves read-only aggregates. Each query is an
// independent snapshot; there is no cross-query consistency guarantee.
type MetricsRepository struct {
	pool *pgxpool.Pool
}

func NewMetricsRepository(pool *pgxpool.Pool) *MetricsRepository {
	return &MetricsRepository{pool: pool}
}

func (r *MetricsRepository) SystemMetrics(ctx context.Context) (*model.SystemMetrics, error) {
	var m model.SystemMetrics

	err := r.pool.QueryRow(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE dca_mode = 'flow'),
			COUNT(*) FILTER (WHERE dca_mode = 'fixed'),
			COALESCE(SUM(initial_deposit), 0),
			COALESCE(SUM(total_distributed), 0),
			COALESCE(SUM(total_satoshis), 0)
		FROM clients`,
	).Scan(&m.TotalClients, &m.ActiveClients, &m.FlowModeClients,
		&m.FixedModeClients, &m.TotalDeposits, &m.TotalDistributed,
		&m.TotalSatoshis)
	if err != nil {
		return nil, fmt.Errorf("client aggregates: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM processed_transactions
		WHERE DATE(processing_timestamp) = CURRENT_DATE`,
	).Scan(&m.TransactionsProcessedToday)
	if err != nil {
		return nil, fmt.Errorf("today's transaction count: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT MAX(processing_timestamp) FROM processed_transactions`,
	).Scan(&m.LastTransactionTime)
	if err != nil {
		return nil, fmt.Errorf("last transaction time: %w", err)
	}

	// No defined formula yet; reported as zero rather than guessed.
	m.AverageDCARate = decimal.Zero

	return &m, nil
}

func (r *MetricsRepository) ClientMetrics(ctx context.Context, clientID string) (*model.ClientMetrics, error) {
	var m model.ClientMetrics
	m.ClientID = clientID

	err := r.pool.QueryRow(ctx,
		`SELECT initial_deposit, total_satoshis, average_rate FROM clients WHERE id = $1`,
		clientID,
	).Scan(&m.TotalInvested, &m.TotalSatoshis, &m.AverageRate)
	if err != nil {
		return nil, fmt.Errorf("client row: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*), MAX(created_at) FROM distributions WHERE client_id = $1`,
		clientID,
	).Scan(&m.DistributionCount, &m.LastDistribution)
	if err != nil {
		return nil, fmt.Errorf("distribution aggregates: %w", err)
	}

	m.PerformanceVsSpot = decimal.Zero

	return &m, nil
}
