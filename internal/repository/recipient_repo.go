package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valleybit/kiosk-dca/internal/model"
)

type RecipientRepository struct {
	pool *pgxpool.Pool
}

func NewRecipientRepository(pool *pgxpool.Pool) *RecipientRepository {
	return &RecipientRepository{pool: pool}
}

func (r *RecipientRepository) Insert(ctx context.Context, rec *model.CommissionRecipient) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO commission_recipients (id, wallet_id, wallet_name,
			allocation_percentage, recipient_type, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		rec.ID, rec.WalletID, rec.WalletName, rec.AllocationPercentage,
		rec.RecipientType, rec.Status,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert commission recipient: %w", err)
	}
	return nil
}

func (r *RecipientRepository) GetByID(ctx context.Context, id string) (*model.CommissionRecipient, error) {
	var rec model.CommissionRecipient
	err := r.pool.QueryRow(ctx,
		`SELECT id, wallet_id, wallet_name, allocation_percentage, recipient_type,
			status, created_at
		FROM commission_recipients WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.WalletID, &rec.WalletName, &rec.AllocationPercentage,
		&rec.RecipientType, &rec.Status, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get commission recipient: %w", err)
	}
	return &rec, nil
}

func (r *RecipientRepository) List(ctx context.Context) ([]*model.CommissionRecipient, error) {
	return r.list(ctx,
		`SELECT id, wallet_id, wallet_name, allocation_percentage, recipient_type,
			status, created_at
		FROM commission_recipients ORDER BY created_at DESC`)
}

func (r *RecipientRepository) ListActive(ctx context.Context) ([]*model.CommissionRecipient, error) {
	return r.list(ctx,
		`SELECT id, wallet_id, wallet_name, allocation_percentage, recipient_type,
			status, created_at
		FROM commission_recipients WHERE status = 'active' ORDER BY created_at`)
}

func (r *RecipientRepository) list(ctx context.Context, query string) ([]*model.CommissionRecipient, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list commission recipients: %w", err)
	}
	defer rows.Close()

	var out []*model.CommissionRecipient
	for rows.Next() {
		var rec model.CommissionRecipient
		err := rows.Scan(&rec.ID, &rec.WalletID, &rec.WalletName,
			&rec.AllocationPercentage, &rec.RecipientType, &rec.Status, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan commission recipient: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (r *RecipientRepository) Update(ctx context.Context, rec *model.CommissionRecipient) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE commission_recipients SET
			wallet_id = $2,
			wallet_name = $3,
			allocation_percentage = $4,
			recipient_type = $5,
			status = $6
		WHERE id = $1`,
		rec.ID, rec.WalletID, rec.WalletName, rec.AllocationPercentage,
		rec.RecipientType, rec.Status,
	)
	if err != nil {
		return fmt.Errorf("update commission recipient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RecipientRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM commission_recipients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete commission recipient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
