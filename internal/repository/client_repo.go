package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valleybit/kiosk-dca/internal/model"
)

type ClientRepository struct {
	pool *pgxpool.Pool
}

func NewClientRepository(pool *pgxpool.Pool) *ClientRepository {
	return &ClientRepository{pool: pool}
}

const clientColumns = `id, user_id, wallet_id, initial_deposit, current_balance,
	total_distributed, total_satoshis, dca_mode, fixed_daily_limit,
	daily_distributed_today, last_distribution, status, average_rate,
	distribution_count, notes, created_at, updated_at`

func scanClient(row pgx.Row) (*model.Client, error) {
	var c model.Client
	err := row.Scan(
		&c.ID, &c.UserID, &c.WalletID, &c.InitialDeposit, &c.CurrentBalance,
		&c.TotalDistributed, &c.TotalSatoshis, &c.DCAMode, &c.FixedDailyLimit,
		&c.DailyDistributedToday, &c.LastDistribution, &c.Status, &c.AverageRate,
		&c.DistributionCount, &c.Notes, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ClientRepository) Insert(ctx context.Context, c *model.Client) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO clients (id, user_id, wallet_id, initial_deposit, current_balance,
			total_distributed, total_satoshis, dca_mode, fixed_daily_limit,
			daily_distributed_today, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		c.ID, c.UserID, c.WalletID, c.InitialDeposit, c.CurrentBalance,
		c.TotalDistributed, c.TotalSatoshis, c.DCAMode, c.FixedDailyLimit,
		c.DailyDistributedToday, c.Status, c.Notes,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s already has an active client: %w", c.UserID, err)
		}
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (r *ClientRepository) GetByID(ctx context.Context, id string) (*model.Client, error) {
	c, err := scanClient(r.pool.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

func (r *ClientRepository) List(ctx context.Context) ([]*model.Client, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+clientColumns+` FROM clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	return collectClients(rows)
}

// ListActiveWithBalance returns the clients eligible for allocation: active
// status and a positive remaining balance.
func (r *ClientRepository) ListActiveWithBalance(ctx context.Context) ([]*model.Client, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+clientColumns+` FROM clients
		WHERE status = 'active' AND current_balance > 0
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list allocatable clients: %w", err)
	}
	defer rows.Close()

	return collectClients(rows)
}

func collectClients(rows pgx.Rows) ([]*model.Client, error) {
	var clients []*model.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// Update changes the administrator-managed fields only; balances belong to
// the allocation engine.
func (r *ClientRepository) Update(ctx context.Context, c *model.Client) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE clients SET
			dca_mode = $2,
			fixed_daily_limit = $3,
			status = $4,
			notes = $5,
			updated_at = NOW()
		WHERE id = $1`,
		c.ID, c.DCAMode, c.FixedDailyLimit, c.Status, c.Notes,
	)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ClientRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
