package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valleybit/kiosk-dca/internal/model"
)

type ConfigRepository struct {
	pool *pgxpool.Pool
}

func NewConfigRepository(pool *pgxpool.Pool) *ConfigRepository {
	return &ConfigRepository{pool: pool}
}

func (r *ConfigRepository) Get(ctx context.Context) (*model.SystemConfig, error) {
	var cfg model.SystemConfig
	var host, notifURL, notifWallet *string
	err := r.pool.QueryRow(ctx,
		`SELECT id, kiosk_host, kiosk_ssh_user, kiosk_log_dir,
			last_processed_timestamp, fixed_mode_schedule, fixed_mode_time,
			max_daily_fixed_amount, processing_enabled, notification_url,
			notification_wallet, created_at, updated_at
		FROM system_config WHERE id = 'default'`,
	).Scan(&cfg.ID, &host, &cfg.KioskSSHUser, &cfg.KioskLogDir,
		&cfg.LastProcessedTimestamp, &cfg.FixedModeSchedule, &cfg.FixedModeTime,
		&cfg.MaxDailyFixedAmount, &cfg.ProcessingEnabled, &notifURL,
		&notifWallet, &cfg.CreatedAt, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get system config: %w", err)
	}
	if host != nil {
		cfg.KioskHost = *host
	}
	if notifURL != nil {
		cfg.NotificationURL = *notifURL
	}
	if notifWallet != nil {
		cfg.NotificationWallet = *notifWallet
	}
	return &cfg, nil
}

// UpdateSettings writes the operator-managed fields. The watermark is
// excluded on purpose; only the pipeline advances it.
func (r *ConfigRepository) UpdateSettings(ctx context.Context, cfg *model.SystemConfig) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE system_config SET
			kiosk_host = $1,
			kiosk_ssh_user = $2,
			kiosk_log_dir = $3,
			fixed_mode_schedule = $4,
			fixed_mode_time = $5,
			max_daily_fixed_amount = $6,
			processing_enabled = $7,
			notification_url = $8,
			notification_wallet = $9,
			updated_at = NOW()
		WHERE id = 'default'`,
		cfg.KioskHost, cfg.KioskSSHUser, cfg.KioskLogDir,
		cfg.FixedModeSchedule, cfg.FixedModeTime, cfg.MaxDailyFixedAmount,
		cfg.ProcessingEnabled, cfg.NotificationURL, cfg.NotificationWallet,
	)
	if err != nil {
		return fmt.Errorf("update system config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLastProcessed advances the ingestion watermark. Called only after a run
// completes without a run-level failure.
func (r *ConfigRepository) SetLastProcessed(ctx context.Context, ts time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE system_config SET last_processed_timestamp = $1, updated_at = NOW()
		WHERE id = 'default'`, ts)
	if err != nil {
		return fmt.Errorf("set last processed timestamp: %w", err)
	}
	return nil
}
