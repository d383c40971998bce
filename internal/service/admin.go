package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/valleybit/kiosk-dca/internal/dto"
	"github.com/valleybit/kiosk-dca/internal/model"
	"github.com/valleybit/kiosk-dca/internal/repository"
)

// ErrValidation wraps request-level validation failures so handlers can map
// them to 400 instead of 500.
var ErrValidation = errors.New("validation failed")

type ClientService struct {
	repo *repository.ClientRepository
}

func NewClientService(repo *repository.ClientRepository) *ClientService {
	return &ClientService{repo: repo}
}

func (s *ClientService) Create(ctx context.Context, req *dto.CreateClientRequest) (*model.Client, error) {
	if !req.InitialDeposit.IsPositive() {
		return nil, fmt.Errorf("%w: initial_deposit must be positive", ErrValidation)
	}
	if err := validateFixedLimit(req.DCAMode, req.FixedDailyLimit); err != nil {
		return nil, err
	}

	c := &model.Client{
		ID:                    uuid.NewString(),
		UserID:                req.UserID,
		WalletID:              req.WalletID,
		InitialDeposit:        req.InitialDeposit,
		CurrentBalance:        req.InitialDeposit,
		TotalDistributed:      decimal.Zero,
		DCAMode:               req.DCAMode,
		FixedDailyLimit:       req.FixedDailyLimit,
		DailyDistributedToday: decimal.Zero,
		Status:                model.StatusActive,
		Notes:                 req.Notes,
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ClientService) Get(ctx context.Context, id string) (*model.Client, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ClientService) List(ctx context.Context) ([]*model.Client, error) {
	return s.repo.List(ctx)
}

func (s *ClientService) Update(ctx context.Context, id string, req *dto.UpdateClientRequest) (*model.Client, error) {
	if err := validateFixedLimit(req.DCAMode, req.FixedDailyLimit); err != nil {
		return nil, err
	}

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.DCAMode = req.DCAMode
	c.FixedDailyLimit = req.FixedDailyLimit
	c.Status = req.Status
	c.Notes = req.Notes

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ClientService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func validateFixedLimit(mode string, limit *decimal.Decimal) error {
	if mode != model.ModeFixed {
		return nil
	}
	if limit == nil || !limit.IsPositive() {
		return fmt.Errorf("%w: fixed mode requires a positive fixed_daily_limit", ErrValidation)
	}
	return nil
}

type RecipientService struct {
	repo *repository.RecipientRepository
}

func NewRecipientService(repo *repository.RecipientRepository) *RecipientService {
	return &RecipientService{repo: repo}
}

func (s *RecipientService) Create(ctx context.Context, req *dto.CreateRecipientRequest) (*model.CommissionRecipient, error) {
	rec := &model.CommissionRecipient{
		ID:                   uuid.NewString(),
		WalletID:             req.WalletID,
		WalletName:           req.WalletName,
		AllocationPercentage: req.AllocationPercentage,
		RecipientType:        req.RecipientType,
		Status:               model.StatusActive,
	}
	if err := s.validateTotal(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *RecipientService) Get(ctx context.Context, id string) (*model.CommissionRecipient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *RecipientService) List(ctx context.Context) ([]*model.CommissionRecipient, error) {
	return s.repo.List(ctx)
}

func (s *RecipientService) Update(ctx context.Context, id string, req *dto.UpdateRecipientRequest) (*model.CommissionRecipient, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.WalletID = req.WalletID
	rec.WalletName = req.WalletName
	rec.AllocationPercentage = req.AllocationPercentage
	rec.RecipientType = req.RecipientType
	rec.Status = req.Status

	if rec.Status == model.StatusActive {
		if err := s.validateTotal(ctx, rec); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *RecipientService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// validateTotal rejects a write that would push the active allocation above
// 100%, the same rule the pipeline enforces before a run.
func (s *RecipientService) validateTotal(ctx context.Context, rec *model.CommissionRecipient) error {
	if rec.AllocationPercentage.IsNegative() {
		return fmt.Errorf("%w: allocation_percentage must not be negative", ErrValidation)
	}

	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return err
	}

	total := rec.AllocationPercentage
	for _, other := range active {
		if other.ID == rec.ID {
			continue
		}
		total = total.Add(other.AllocationPercentage)
	}
	if total.GreaterThan(oneHundred) {
		return &AllocationConfigError{
			Reason: fmt.Sprintf("active recipient percentages would sum to %s, above 100", total),
		}
	}
	return nil
}

type ConfigService struct {
	repo *repository.ConfigRepository
}

func NewConfigService(repo *repository.ConfigRepository) *ConfigService {
	return &ConfigService{repo: repo}
}

func (s *ConfigService) Get(ctx context.Context) (*model.SystemConfig, error) {
	return s.repo.Get(ctx)
}

func (s *ConfigService) Update(ctx context.Context, req *dto.UpdateConfigRequest) (*model.SystemConfig, error) {
	cfg, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	cfg.KioskHost = req.KioskHost
	cfg.KioskSSHUser = req.KioskSSHUser
	cfg.KioskLogDir = req.KioskLogDir
	cfg.FixedModeSchedule = req.FixedModeSchedule
	cfg.FixedModeTime = req.FixedModeTime
	cfg.MaxDailyFixedAmount = req.MaxDailyFixedAmount
	cfg.ProcessingEnabled = *req.ProcessingEnabled
	cfg.NotificationURL = req.NotificationURL
	cfg.NotificationWallet = req.NotificationWallet

	if err := s.repo.UpdateSettings(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
