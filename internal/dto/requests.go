package dto

import "github.com/shopspring/decimal"

type CreateClientRequest struct {
	UserID          string           `json:"user_id" binding:"required"`
	WalletID        string           `json:"wallet_id" binding:"required"`
	InitialDeposit  decimal.Decimal  `json:"initial_deposit" binding:"required"`
	DCAMode         string           `json:"dca_mode" binding:"required,oneof=flow fixed"`
	FixedDailyLimit *decimal.Decimal `json:"fixed_daily_limit"`
	Notes           string           `json:"notes"`
}

type UpdateClientRequest struct {
	DCAMode         string           `json:"dca_mode" binding:"required,oneof=flow fixed"`
	FixedDailyLimit *decimal.Decimal `json:"fixed_daily_limit"`
	Status          string           `json:"status" binding:"required,oneof=active inactive suspended"`
	Notes           string           `json:"notes"`
}

type CreateRecipientRequest struct {
	WalletID             string          `json:"wallet_id" binding:"required"`
	WalletName           string          `json:"wallet_name" binding:"required"`
	AllocationPercentage decimal.Decimal `json:"allocation_percentage" binding:"required"`
	RecipientType        string          `json:"recipient_type" binding:"required,oneof=external dca_client"`
}

type UpdateRecipientRequest struct {
	WalletID             string          `json:"wallet_id" binding:"required"`
	WalletName           string          `json:"wallet_name" binding:"required"`
	AllocationPercentage decimal.Decimal `json:"allocation_percentage" binding:"required"`
	RecipientType        string          `json:"recipient_type" binding:"required,oneof=external dca_client"`
	Status               string          `json:"status" binding:"required,oneof=active inactive"`
}

type UpdateConfigRequest struct {
	KioskHost           string          `json:"kiosk_host"`
	KioskSSHUser        string          `json:"kiosk_ssh_user" binding:"required"`
	KioskLogDir         string          `json:"kiosk_log_dir" binding:"required"`
	FixedModeSchedule   string          `json:"fixed_mode_schedule" binding:"required,oneof=daily weekly"`
	FixedModeTime       string          `json:"fixed_mode_time" binding:"required"`
	MaxDailyFixedAmount decimal.Decimal `json:"max_daily_fixed_amount"`
	ProcessingEnabled   *bool           `json:"processing_enabled" binding:"required"`
	NotificationURL     string          `json:"notification_url"`
	NotificationWallet  string          `json:"notification_wallet"`
}
