package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/valleybit/kiosk-dca/internal/model"
)

// ClientBalanceUpdate carries the post-allocation state of one client. The
// values are absolute, not deltas, so replaying the same update is harmless.
type ClientBalanceUpdate struct {
	ClientID              string
	CurrentBalance        decimal.Decimal
	TotalDistributed      decimal.Decimal
	TotalSatoshis         int64
	DailyDistributedToday decimal.Decimal
	LastDistribution      time.Time
	DistributionCount     int
}

// AllocationRecord is everything one allocation pass produced. It is applied
// in a single database transaction: either the kiosk transaction is fully
// processed or not processed at all.
type AllocationRecord struct {
	// Transaction is nil for fixed-mode passes, which are not tied to a
	// kiosk transaction.
	Transaction   *model.ProcessedTransaction
	Distributions []model.Distribution
	Commissions   []model.CommissionDistribution
	ClientUpdates []ClientBalanceUpdate
}

// LedgerRepository is the dedup ledger plus the atomic write path for
// allocation results.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

func (r *LedgerRepository) HasProcessed(ctx context.Context, kioskTxID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_transactions WHERE kiosk_transaction_id = $1)`,
		kioskTxID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed: %w", err)
	}
	return exists, nil
}

// RecordAllocation applies an allocation record atomically. A unique
// violation on the kiosk transaction id rolls everything back and returns
// ErrDuplicateTransaction.
func (r *LedgerRepository) RecordAllocation(ctx context.Context, rec *AllocationRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin allocation transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if rec.Transaction != nil {
		_, err = tx.Exec(ctx,
			`INSERT INTO processed_transactions (id, kiosk_transaction_id,
				processing_timestamp, flow_distribution_amount, commission_amount,
				clients_affected, status, fiat_code, crypto_code, machine_id, exchange_rate)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			rec.Transaction.ID, rec.Transaction.KioskTransactionID,
			rec.Transaction.ProcessingTimestamp, rec.Transaction.FlowDistributionAmount,
			rec.Transaction.CommissionAmount, rec.Transaction.ClientsAffected,
			rec.Transaction.Status, rec.Transaction.FiatCode, rec.Transaction.CryptoCode,
			rec.Transaction.MachineID, rec.Transaction.ExchangeRate,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateTransaction
			}
			return fmt.Errorf("insert processed transaction: %w", err)
		}
	}

	batch := &pgx.Batch{}
	for _, d := range rec.Distributions {
		batch.Queue(
			`INSERT INTO distributions (id, client_id, transaction_id, amount_fiat,
				amount_satoshis, exchange_rate, distribution_type, status, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			d.ID, d.ClientID, d.TransactionID, d.AmountFiat,
			d.AmountSatoshis, d.ExchangeRate, d.DistributionType, d.Status, d.Notes,
		)
	}
	for _, cd := range rec.Commissions {
		batch.Queue(
			`INSERT INTO commission_distributions (id, transaction_id, recipient_id,
				amount_fiat, amount_satoshis, exchange_rate, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			cd.ID, cd.TransactionID, cd.RecipientID,
			cd.AmountFiat, cd.AmountSatoshis, cd.ExchangeRate, cd.Status,
		)
	}
	for _, u := range rec.ClientUpdates {
		batch.Queue(
			`UPDATE clients SET
				current_balance = $2,
				total_distributed = $3,
				total_satoshis = $4,
				daily_distributed_today = $5,
				last_distribution = $6,
				distribution_count = $7,
				updated_at = NOW()
			WHERE id = $1`,
			u.ClientID, u.CurrentBalance, u.TotalDistributed, u.TotalSatoshis,
			u.DailyDistributedToday, u.LastDistribution, u.DistributionCount,
		)
	}

	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("apply allocation row %d: %w", i, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close allocation batch: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// UpdateProcessedStatus corrects the outcome of an earlier run, e.g. after a
// retry pass resolves a partial transaction. It never touches any other
// field of the ledger row.
func (r *LedgerRepository) UpdateProcessedStatus(ctx context.Context, id, status string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE processed_transactions SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update processed status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *LedgerRepository) ListProcessed(ctx context.Context, limit, offset int) ([]*model.ProcessedTransaction, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM processed_transactions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count processed transactions: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, kiosk_transaction_id, processing_timestamp,
			flow_distribution_amount, commission_amount, clients_affected,
			status, fiat_code, crypto_code, machine_id, exchange_rate
		FROM processed_transactions
		ORDER BY processing_timestamp DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list processed transactions: %w", err)
	}
	defer rows.Close()

	var txs []*model.ProcessedTransaction
	for rows.Next() {
		var t model.ProcessedTransaction
		var machineID *string
		var rate *decimal.Decimal
		err := rows.Scan(
			&t.ID, &t.KioskTransactionID, &t.ProcessingTimestamp,
			&t.FlowDistributionAmount, &t.CommissionAmount, &t.ClientsAffected,
			&t.Status, &t.FiatCode, &t.CryptoCode, &machineID, &rate,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan processed transaction: %w", err)
		}
		if machineID != nil {
			t.MachineID = *machineID
		}
		if rate != nil {
			t.ExchangeRate = *rate
		}
		txs = append(txs, &t)
	}

	return txs, total, rows.Err()
}
