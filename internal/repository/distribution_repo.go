package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valleybit/kiosk-dca/internal/model"
)

type DistributionRepository struct {
	pool *pgxpool.Pool
}

func NewDistributionRepository(pool *pgxpool.Pool) *DistributionRepository {
	return &DistributionRepository{pool: pool}
}

const distributionColumns = `id, client_id, transaction_id, amount_fiat,
	amount_satoshis, exchange_rate, distribution_type, payment_hash, status,
	created_at, completed_at, notes`

func scanDistribution(row pgx.Row) (*model.Distribution, error) {
	var d model.Distribution
	var paymentHash, notes *string
	err := row.Scan(
		&d.ID, &d.ClientID, &d.TransactionID, &d.AmountFiat,
		&d.AmountSatoshis, &d.ExchangeRate, &d.DistributionType, &paymentHash,
		&d.Status, &d.CreatedAt, &d.CompletedAt, &notes,
	)
	if err != nil {
		return nil, err
	}
	if paymentHash != nil {
		d.PaymentHash = *paymentHash
	}
	if notes != nil {
		d.Notes = *notes
	}
	return &d, nil
}

// MarkCompleted transitions a pending distribution to completed and stores
// the payment reference.
func (r *DistributionRepository) MarkCompleted(ctx context.Context, id, paymentHash string, completedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE distributions SET status = 'completed', payment_hash = $2, completed_at = $3
		WHERE id = $1`,
		id, paymentHash, completedAt)
	if err != nil {
		return fmt.Errorf("mark distribution completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed records a payout failure. The row is retained for operator
// review; nothing is ever deleted.
func (r *DistributionRepository) MarkFailed(ctx context.Context, id, reason string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE distributions SET status = 'failed', notes = $2 WHERE id = $1`,
		id, reason)
	if err != nil {
		return fmt.Errorf("mark distribution failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByStatus returns distributions in a given payout state, oldest first,
// joined with the owning client's wallet for dispatch.
func (r *DistributionRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*model.Distribution, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+distributionColumns+` FROM distributions
		WHERE status = $1 ORDER BY created_at LIMIT $2`,
		status, limit)
	if err != nil {
		return nil, fmt.Errorf("list distributions by status: %w", err)
	}
	defer rows.Close()

	var out []*model.Distribution
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DistributionRepository) List(ctx context.Context, limit, offset int) ([]*model.Distribution, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM distributions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count distributions: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+distributionColumns+` FROM distributions
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list distributions: %w", err)
	}
	defer rows.Close()

	var out []*model.Distribution
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan distribution: %w", err)
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// --- commission distributions ---

func (r *DistributionRepository) MarkCommissionCompleted(ctx context.Context, id, paymentHash string, completedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE commission_distributions SET status = 'completed', payment_hash = $2, completed_at = $3
		WHERE id = $1`,
		id, paymentHash, completedAt)
	if err != nil {
		return fmt.Errorf("mark commission distribution completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DistributionRepository) MarkCommissionFailed(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE commission_distributions SET status = 'failed' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark commission distribution failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DistributionRepository) ListCommissionByStatus(ctx context.Context, status string, limit int) ([]*model.CommissionDistribution, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, transaction_id, recipient_id, amount_fiat, amount_satoshis,
			exchange_rate, payment_hash, status, created_at, completed_at
		FROM commission_distributions
		WHERE status = $1 ORDER BY created_at LIMIT $2`,
		status, limit)
	if err != nil {
		return nil, fmt.Errorf("list commission distributions: %w", err)
	}
	defer rows.Close()

	return collectCommissionDistributions(rows)
}

func (r *DistributionRepository) ListCommission(ctx context.Context, limit, offset int) ([]*model.CommissionDistribution, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM commission_distributions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count commission distributions: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, transaction_id, recipient_id, amount_fiat, amount_satoshis,
			exchange_rate, payment_hash, status, created_at, completed_at
		FROM commission_distributions
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list commission distributions: %w", err)
	}
	defer rows.Close()

	out, err := collectCommissionDistributions(rows)
	return out, total, err
}

func collectCommissionDistributions(rows pgx.Rows) ([]*model.CommissionDistribution, error) {
	var out []*model.CommissionDistribution
	for rows.Next() {
		var cd model.CommissionDistribution
		var paymentHash *string
		err := rows.Scan(
			&cd.ID, &cd.TransactionID, &cd.RecipientID, &cd.AmountFiat,
			&cd.AmountSatoshis, &cd.ExchangeRate, &paymentHash, &cd.Status,
			&cd.CreatedAt, &cd.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan commission distribution: %w", err)
		}
		if paymentHash != nil {
			cd.PaymentHash = *paymentHash
		}
		out = append(out, &cd)
	}
	return out, rows.Err()
}
