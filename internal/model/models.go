package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ModeFlow  = "flow"
	ModeFixed = "fixed"

	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"

	DistributionFlow       = "flow"
	DistributionFixed      = "fixed"
	DistributionManual     = "manual"
	DistributionCommission = "commission"

	PayoutPending   = "pending"
	PayoutCompleted = "completed"
	PayoutFailed    = "failed"

	ProcessingCompleted = "completed"
	ProcessingFailed    = "failed"
	ProcessingPartial   = "partial"

	RecipientExternal  = "external"
	RecipientDCAClient = "dca_client"
)

// Client is a subscriber to the distribution pool. Balance fields are only
// mutated by the allocation engine.
type Client struct {
	ID                    string           `json:"id"`
	UserID                string           `json:"user_id"`
	WalletID              string           `json:"wallet_id"`
	InitialDeposit        decimal.Decimal  `json:"initial_deposit"`
	CurrentBalance        decimal.Decimal  `json:"current_balance"`
	TotalDistributed      decimal.Decimal  `json:"total_distributed"`
	TotalSatoshis         int64            `json:"total_satoshis"`
	DCAMode               string           `json:"dca_mode"`
	FixedDailyLimit       *decimal.Decimal `json:"fixed_daily_limit,omitempty"`
	DailyDistributedToday decimal.Decimal  `json:"daily_distributed_today"`
	LastDistribution      *time.Time       `json:"last_distribution,omitempty"`
	Status                string           `json:"status"`
	AverageRate           decimal.Decimal  `json:"average_rate"`
	DistributionCount     int              `json:"distribution_count"`
	Notes                 string           `json:"notes,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// ProcessedTransaction is the dedup ledger row: one per unique kiosk
// transaction, created atomically with the distributions it produced.
type ProcessedTransaction struct {
	ID                     string          `json:"id"`
	KioskTransactionID     string          `json:"kiosk_transaction_id"`
	ProcessingTimestamp    time.Time       `json:"processing_timestamp"`
	FlowDistributionAmount decimal.Decimal `json:"flow_distribution_amount"`
	CommissionAmount       decimal.Decimal `json:"commission_amount"`
	ClientsAffected        int             `json:"clients_affected"`
	Status                 string          `json:"status"`
	FiatCode               string          `json:"fiat_code"`
	CryptoCode             string          `json:"crypto_code"`
	MachineID              string          `json:"machine_id,omitempty"`
	ExchangeRate           decimal.Decimal `json:"exchange_rate"`
}

// Distribution is one payout line, never deleted.
type Distribution struct {
	ID               string          `json:"id"`
	ClientID         string          `json:"client_id"`
	TransactionID    *string         `json:"transaction_id,omitempty"`
	AmountFiat       decimal.Decimal `json:"amount_fiat"`
	AmountSatoshis   int64           `json:"amount_satoshis"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate"`
	DistributionType string          `json:"distribution_type"`
	PaymentHash      string          `json:"payment_hash,omitempty"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	Notes            string          `json:"notes,omitempty"`
}

type CommissionRecipient struct {
	ID                   string          `json:"id"`
	WalletID             string          `json:"wallet_id"`
	WalletName           string          `json:"wallet_name"`
	AllocationPercentage decimal.Decimal `json:"allocation_percentage"`
	RecipientType        string          `json:"recipient_type"`
	Status               string          `json:"status"`
	CreatedAt            time.Time       `json:"created_at"`
}

type CommissionDistribution struct {
	ID             string          `json:"id"`
	TransactionID  string          `json:"transaction_id"`
	RecipientID    string          `json:"recipient_id"`
	AmountFiat     decimal.Decimal `json:"amount_fiat"`
	AmountSatoshis int64           `json:"amount_satoshis"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
	PaymentHash    string          `json:"payment_hash,omitempty"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// SystemConfig is the singleton settings row. The pipeline only ever writes
// last_processed_timestamp, and only after a successful run.
type SystemConfig struct {
	ID                     string          `json:"id"`
	KioskHost              string          `json:"kiosk_host,omitempty"`
	KioskSSHUser           string          `json:"kiosk_ssh_user"`
	KioskLogDir            string          `json:"kiosk_log_dir"`
	LastProcessedTimestamp *time.Time      `json:"last_processed_timestamp,omitempty"`
	FixedModeSchedule      string          `json:"fixed_mode_schedule"`
	FixedModeTime          string          `json:"fixed_mode_time"`
	MaxDailyFixedAmount    decimal.Decimal `json:"max_daily_fixed_amount"`
	ProcessingEnabled      bool            `json:"processing_enabled"`
	NotificationURL        string          `json:"notification_url,omitempty"`
	NotificationWallet     string          `json:"notification_wallet,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// RunSummary is returned by every pipeline entry point.
type RunSummary struct {
	Mode                  string          `json:"mode"`
	StartedAt             time.Time       `json:"started_at"`
	FinishedAt            time.Time       `json:"finished_at"`
	TransactionsParsed    int             `json:"transactions_parsed"`
	TransactionsEligible  int             `json:"transactions_eligible"`
	TransactionsProcessed int             `json:"transactions_processed"`
	DuplicatesSkipped     int             `json:"duplicates_skipped"`
	ClientsAffected       int             `json:"clients_affected"`
	FiatDistributed       decimal.Decimal `json:"fiat_distributed"`
	CommissionDistributed decimal.Decimal `json:"commission_distributed"`
	PayoutsSucceeded      int             `json:"payouts_succeeded"`
	PayoutsFailed         int             `json:"payouts_failed"`
	Errors                []string        `json:"errors,omitempty"`
}

// SystemMetrics is a best-effort point-in-time snapshot; the individual
// aggregates are separate queries with no shared consistency guarantee.
type SystemMetrics struct {
	TotalClients     int             `json:"total_clients"`
	ActiveClients    int             `json:"active_clients"`
	FlowModeClients  int             `json:"flow_mode_clients"`
	FixedModeClients int             `json:"fixed_mode_clients"`
	TotalDeposits    decimal.Decimal `json:"total_deposits"`
	TotalDistributed decimal.Decimal `json:"total_distributed"`
	TotalSatoshis    int64           `json:"total_satoshis_distributed"`
	// AverageDCARate has no defined formula yet; reported as zero.
	AverageDCARate             decimal.Decimal `json:"average_dca_rate"`
	TransactionsProcessedToday int             `json:"transactions_processed_today"`
	LastTransactionTime        *time.Time      `json:"last_transaction_time,omitempty"`
}

type ClientMetrics struct {
	ClientID          string          `json:"client_id"`
	TotalInvested     decimal.Decimal `json:"total_invested"`
	TotalSatoshis     int64           `json:"total_satoshis"`
	AverageRate       decimal.Decimal `json:"average_rate"`
	DistributionCount int             `json:"distribution_count"`
	LastDistribution  *time.Time      `json:"last_distribution,omitempty"`
	// PerformanceVsSpot has no defined formula yet; reported as zero.
	PerformanceVsSpot decimal.Decimal `json:"performance_vs_spot"`
}
