package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/valleybit/kiosk-dca/internal/model"
)

// PaymentIssuer is the external payment rail. Implementations create and
// settle the actual payment; the dispatcher only records outcomes.
type PaymentIssuer interface {
	IssuePayment(ctx context.Context, walletID string, amountSats int64, memo string) (paymentHash string, fee int64, err error)
}

// PayoutStore is the slice of the distribution repository the dispatcher
// needs.
type PayoutStore interface {
	MarkCompleted(ctx context.Context, id, paymentHash string, completedAt time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	ListByStatus(ctx context.Context, status string, limit int) ([]*model.Distribution, error)
	MarkCommissionCompleted(ctx context.Context, id, paymentHash string, completedAt time.Time) error
	MarkCommissionFailed(ctx context.Context, id string) error
	ListCommissionByStatus(ctx context.Context, status string, limit int) ([]*model.CommissionDistribution, error)
}

// ClientLookup resolves a client's destination wallet for retry passes.
type ClientLookup interface {
	GetByID(ctx context.Context, id string) (*model.Client, error)
}

// RecipientLookup resolves a commission recipient's destination wallet.
type RecipientLookup interface {
	GetByID(ctx context.Context, id string) (*model.CommissionRecipient, error)
}

// PendingPayout is one payment instruction derived from a recorded
// distribution line. The amount is the recorded amount; the dispatcher never
// recomputes shares.
type PendingPayout struct {
	DistributionID string
	Commission     bool
	WalletID       string
	AmountSats     int64
	Memo           string
}

// Dispatcher turns recorded pending distributions into payments and records
// their outcomes. Failed rows are retained for operator review.
type Dispatcher struct {
	issuer     PaymentIssuer
	store      PayoutStore
	clients    ClientLookup
	recipients RecipientLookup
}

func NewDispatcher(issuer PaymentIssuer, store PayoutStore, clients ClientLookup, recipients RecipientLookup) *Dispatcher {
	return &Dispatcher{issuer: issuer, store: store, clients: clients, recipients: recipients}
}

// Dispatch sends each payout and records completed or failed. Per-payout
// failures are logged and counted, never propagated; a payout error must not
// abort the rest of the run.
func (d *Dispatcher) Dispatch(ctx context.Context, payouts []PendingPayout) (succeeded, failed int) {
	for _, p := range payouts {
		if p.AmountSats == 0 {
			// nothing to move; close the line out immediately
			if err := d.markCompleted(ctx, p, "", time.Now()); err != nil {
				log.Error().Err(err).Str("distribution_id", p.DistributionID).
					Msg("failed to record zero-amount payout")
			}
			succeeded++
			continue
		}

		hash, fee, err := d.issuer.IssuePayment(ctx, p.WalletID, p.AmountSats, p.Memo)
		if err != nil {
			failed++
			perr := &PayoutError{DistributionID: p.DistributionID, Err: err}
			log.Error().Err(perr).Str("wallet_id", p.WalletID).
				Int64("amount_sats", p.AmountSats).Msg("payout failed")

			if markErr := d.markFailed(ctx, p, err.Error()); markErr != nil {
				log.Error().Err(markErr).Str("distribution_id", p.DistributionID).
					Msg("failed to record payout failure")
			}
			continue
		}

		if err := d.markCompleted(ctx, p, hash, time.Now()); err != nil {
			log.Error().Err(err).Str("distribution_id", p.DistributionID).
				Msg("payment sent but outcome not recorded")
			failed++
			continue
		}

		log.Info().Str("distribution_id", p.DistributionID).
			Str("payment_hash", hash).Int64("fee", fee).Msg("payout completed")
		succeeded++
	}

	return succeeded, failed
}

// RetryFailed re-sends every failed distribution with its recorded amount.
// It is invoked explicitly by an operator or a scheduler retry pass, never
// by the engine itself.
func (d *Dispatcher) RetryFailed(ctx context.Context, limit int) (succeeded, failed int, err error) {
	dists, err := d.store.ListByStatus(ctx, model.PayoutFailed, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("list failed distributions: %w", err)
	}

	var payouts []PendingPayout
	for _, dist := range dists {
		client, err := d.clients.GetByID(ctx, dist.ClientID)
		if err != nil {
			log.Error().Err(err).Str("distribution_id", dist.ID).
				Msg("cannot resolve client for retry")
			failed++
			continue
		}
		payouts = append(payouts, PendingPayout{
			DistributionID: dist.ID,
			WalletID:       client.WalletID,
			AmountSats:     dist.AmountSatoshis,
			Memo:           fmt.Sprintf("DCA %s distribution (retry)", dist.DistributionType),
		})
	}

	commissions, err := d.store.ListCommissionByStatus(ctx, model.PayoutFailed, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("list failed commission distributions: %w", err)
	}
	for _, cd := range commissions {
		rec, err := d.recipients.GetByID(ctx, cd.RecipientID)
		if err != nil {
			log.Error().Err(err).Str("distribution_id", cd.ID).
				Msg("cannot resolve recipient for retry")
			failed++
			continue
		}
		payouts = append(payouts, PendingPayout{
			DistributionID: cd.ID,
			Commission:     true,
			WalletID:       rec.WalletID,
			AmountSats:     cd.AmountSatoshis,
			Memo:           "DCA commission distribution (retry)",
		})
	}

	s, f := d.Dispatch(ctx, payouts)
	return s, f + failed, nil
}

func (d *Dispatcher) markCompleted(ctx context.Context, p PendingPayout, hash string, at time.Time) error {
	if p.Commission {
		return d.store.MarkCommissionCompleted(ctx, p.DistributionID, hash, at)
	}
	return d.store.MarkCompleted(ctx, p.DistributionID, hash, at)
}

func (d *Dispatcher) markFailed(ctx context.Context, p PendingPayout, reason string) error {
	if p.Commission {
		return d.store.MarkCommissionFailed(ctx, p.DistributionID)
	}
	return d.store.MarkFailed(ctx, p.DistributionID, reason)
}
