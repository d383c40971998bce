package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/valleybit/kiosk-dca/internal/kiosk"
	"github.com/valleybit/kiosk-dca/internal/metrics"
	"github.com/valleybit/kiosk-dca/internal/model"
	"github.com/valleybit/kiosk-dca/internal/repository"
)

// Store interfaces cover the slices of the repositories the pipeline needs;
// tests supply fakes.

type ClientStore interface {
	ListActiveWithBalance(ctx context.Context) ([]*model.Client, error)
}

type LedgerStore interface {
	HasProcessed(ctx context.Context, kioskTxID string) (bool, error)
	RecordAllocation(ctx context.Context, rec *repository.AllocationRecord) error
	UpdateProcessedStatus(ctx context.Context, id, status string) error
}

type RecipientStore interface {
	ListActive(ctx context.Context) ([]*model.CommissionRecipient, error)
}

type SystemConfigStore interface {
	Get(ctx context.Context) (*model.SystemConfig, error)
	SetLastProcessed(ctx context.Context, ts time.Time) error
}

type RunLocker interface {
	AcquireRunLock(ctx context.Context) (func(), error)
}

// TransactionSource refreshes the local export files. Nil disables fetching
// and the pipeline parses whatever is already on disk.
type TransactionSource interface {
	Fetch(ctx context.Context) error
}

// RateSource supplies the current exchange rate for fixed-mode
// distributions, which are not tied to a kiosk transaction.
type RateSource interface {
	CurrentRate(ctx context.Context, fiatCode string) (decimal.Decimal, error)
}

// EventPublisher receives run summaries for the optional notification sink.
// Publish failures must never fail the run.
type EventPublisher interface {
	PublishRunSummary(ctx context.Context, summary *model.RunSummary)
}

type PipelineConfig struct {
	LogDir   string
	FiatCode string
	Location *time.Location
}

// Pipeline is the transaction ingestion and distribution engine. One
// invocation processes one batch end to end under an exclusive run lock.
type Pipeline struct {
	cfg        PipelineConfig
	clients    ClientStore
	ledger     LedgerStore
	recipients RecipientStore
	sysConfig  SystemConfigStore
	locker     RunLocker
	dispatcher *Dispatcher
	source     TransactionSource
	rates      RateSource
	events     EventPublisher
}

func NewPipeline(
	cfg PipelineConfig,
	clients ClientStore,
	ledger LedgerStore,
	recipients RecipientStore,
	sysConfig SystemConfigStore,
	locker RunLocker,
	dispatcher *Dispatcher,
	source TransactionSource,
	rates RateSource,
	events EventPublisher,
) *Pipeline {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Pipeline{
		cfg:        cfg,
		clients:    clients,
		ledger:     ledger,
		recipients: recipients,
		sysConfig:  sysConfig,
		locker:     locker,
		dispatcher: dispatcher,
		source:     source,
		rates:      rates,
		events:     events,
	}
}

// RunFlow executes one ingestion cycle: fetch, parse, filter, then allocate
// and pay out each new transaction. Each transaction commits independently;
// a failure on a later one never rolls back an earlier one.
func (p *Pipeline) RunFlow(ctx context.Context) (*model.RunSummary, error) {
	release, err := p.locker.AcquireRunLock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	summary := &model.RunSummary{
		Mode:                  model.ModeFlow,
		StartedAt:             time.Now(),
		FiatDistributed:       decimal.Zero,
		CommissionDistributed: decimal.Zero,
	}
	defer p.finish(ctx, summary)

	sysCfg, err := p.sysConfig.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load system config: %w", err)
	}
	if !sysCfg.ProcessingEnabled {
		log.Info().Msg("processing disabled, skipping run")
		return summary, nil
	}

	// Run-level failures up to this point leave the ledger untouched and
	// the watermark unchanged, so the next cycle is a clean retry.
	if p.source != nil {
		if err := p.source.Fetch(ctx); err != nil {
			return nil, fmt.Errorf("fetch kiosk exports: %w", err)
		}
	}

	raw, err := kiosk.ParseCashOutFile(p.cfg.LogDir)
	if err != nil {
		return nil, err
	}
	summary.TransactionsParsed = len(raw)

	eligible := kiosk.FilterEligible(raw, sysCfg.LastProcessedTimestamp)
	summary.TransactionsEligible = len(eligible)

	recipients, err := p.recipients.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load commission recipients: %w", err)
	}
	// Surface a bad percentage configuration before any ledger mutation.
	if _, err := SplitCommission(decimal.Zero, decimal.Zero, recipients); err != nil {
		return nil, err
	}

	var processedTimes []time.Time
	var firstFailure time.Time

	for _, tx := range eligible {
		processed, err := p.processTransaction(ctx, &tx, recipients, summary)
		if err != nil {
			summary.Errors = append(summary.Errors,
				fmt.Sprintf("transaction %s: %v", tx.ID, err))
			log.Error().Err(err).Str("transaction_id", tx.ID).
				Msg("transaction processing failed")
			if firstFailure.IsZero() || tx.CreatedAt.Before(firstFailure) {
				firstFailure = tx.CreatedAt
			}
			continue
		}
		if processed {
			processedTimes = append(processedTimes, tx.CreatedAt)
		}
	}

	// The watermark must stay strictly behind every failed transaction so
	// the next run picks it up again; file order is not chronological, so a
	// later-timestamped success cannot be allowed to drag it forward.
	var watermark time.Time
	for _, ts := range processedTimes {
		if !firstFailure.IsZero() && !ts.Before(firstFailure) {
			continue
		}
		if ts.After(watermark) {
			watermark = ts
		}
	}

	if !watermark.IsZero() {
		if err := p.sysConfig.SetLastProcessed(ctx, watermark); err != nil {
			summary.Errors = append(summary.Errors,
				fmt.Sprintf("advance watermark: %v", err))
		}
	}

	return summary, nil
}

// processTransaction allocates and pays out one eligible transaction. The
// returned bool reports whether the transaction is now recorded in the
// ledger (newly or from a previous run).
func (p *Pipeline) processTransaction(
	ctx context.Context,
	tx *kiosk.EligibleTransaction,
	recipients []*model.CommissionRecipient,
	summary *model.RunSummary,
) (bool, error) {
	done, err := p.ledger.HasProcessed(ctx, tx.ID)
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	if done {
		summary.DuplicatesSkipped++
		log.Debug().Str("transaction_id", tx.ID).Msg("already processed, skipping")
		return true, nil
	}

	// Balances move every iteration, so reload per transaction.
	clients, err := p.clients.ListActiveWithBalance(ctx)
	if err != nil {
		return false, fmt.Errorf("load clients: %w", err)
	}

	now := time.Now()
	shares := AllocateFlow(tx.DistributableAmount, tx.ExchangeRate, clients)

	commissionShares, err := SplitCommission(tx.ActualCommission, tx.ExchangeRate, recipients)
	if err != nil {
		return false, err
	}

	processedTx := &model.ProcessedTransaction{
		ID:                  uuid.NewString(),
		KioskTransactionID:  tx.ID,
		ProcessingTimestamp: now,
		CommissionAmount:    tx.ActualCommission,
		ClientsAffected:     len(shares),
		Status:              model.ProcessingCompleted,
		FiatCode:            tx.FiatCode,
		CryptoCode:          tx.CryptoCode,
		MachineID:           tx.MachineID,
		ExchangeRate:        tx.ExchangeRate,
	}

	rec := &repository.AllocationRecord{Transaction: processedTx}
	var payouts []PendingPayout

	flowTotal := decimal.Zero
	for _, share := range shares {
		flowTotal = flowTotal.Add(share.AmountFiat)

		dist := model.Distribution{
			ID:               uuid.NewString(),
			ClientID:         share.Client.ID,
			TransactionID:    &processedTx.ID,
			AmountFiat:       share.AmountFiat,
			AmountSatoshis:   share.AmountSats,
			ExchangeRate:     tx.ExchangeRate,
			DistributionType: model.DistributionFlow,
			Status:           model.PayoutPending,
		}
		rec.Distributions = append(rec.Distributions, dist)
		rec.ClientUpdates = append(rec.ClientUpdates, clientUpdateFor(share, now, p.cfg.Location))
		payouts = append(payouts, PendingPayout{
			DistributionID: dist.ID,
			WalletID:       share.Client.WalletID,
			AmountSats:     share.AmountSats,
			Memo:           fmt.Sprintf("DCA flow distribution for kiosk tx %s", tx.ID),
		})
	}
	processedTx.FlowDistributionAmount = flowTotal

	if len(shares) == 0 {
		log.Warn().Str("transaction_id", tx.ID).
			Str("pool", tx.DistributableAmount.String()).
			Msg("no flow clients available, pool unallocated")
	}

	commissionTotal := decimal.Zero
	for _, cs := range commissionShares {
		cd := model.CommissionDistribution{
			ID:            uuid.NewString(),
			TransactionID: processedTx.ID,
			RecipientID:   cs.Recipient.ID,
			AmountFiat:    cs.AmountFiat,
			AmountSatoshis: cs.AmountSats,
			ExchangeRate:  tx.ExchangeRate,
			Status:        model.PayoutPending,
		}
		rec.Commissions = append(rec.Commissions, cd)
		payouts = append(payouts, PendingPayout{
			DistributionID: cd.ID,
			Commission:     true,
			WalletID:       cs.Recipient.WalletID,
			AmountSats:     cs.AmountSats,
			Memo:           fmt.Sprintf("DCA commission for kiosk tx %s", tx.ID),
		})
		commissionTotal = commissionTotal.Add(cs.AmountFiat)
	}

	if err := p.ledger.RecordAllocation(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicateTransaction) {
			summary.DuplicatesSkipped++
			return true, nil
		}
		return false, err
	}

	summary.TransactionsProcessed++
	summary.ClientsAffected += len(shares)
	summary.FiatDistributed = summary.FiatDistributed.Add(flowTotal)
	summary.CommissionDistributed = summary.CommissionDistributed.Add(commissionTotal)
	metrics.TransactionsProcessed.Inc()
	metrics.DistributionsCreated.WithLabelValues(model.DistributionFlow).
		Add(float64(len(shares)))
	metrics.DistributionsCreated.WithLabelValues(model.DistributionCommission).
		Add(float64(len(commissionShares)))

	succeeded, failed := p.dispatcher.Dispatch(ctx, payouts)
	summary.PayoutsSucceeded += succeeded
	summary.PayoutsFailed += failed

	if failed > 0 {
		metrics.PayoutFailures.Add(float64(failed))
		if err := p.ledger.UpdateProcessedStatus(ctx, processedTx.ID, model.ProcessingPartial); err != nil {
			log.Error().Err(err).Str("transaction_id", tx.ID).
				Msg("failed to mark transaction partial")
		}
	}

	return true, nil
}

// RunFixed executes one scheduled fixed-mode pass: every fixed client gets
// today's remaining capped amount, independent of kiosk activity.
func (p *Pipeline) RunFixed(ctx context.Context) (*model.RunSummary, error) {
	release, err := p.locker.AcquireRunLock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	summary := &model.RunSummary{
		Mode:                  model.ModeFixed,
		StartedAt:             time.Now(),
		FiatDistributed:       decimal.Zero,
		CommissionDistributed: decimal.Zero,
	}
	defer p.finish(ctx, summary)

	sysCfg, err := p.sysConfig.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load system config: %w", err)
	}
	if !sysCfg.ProcessingEnabled {
		log.Info().Msg("processing disabled, skipping fixed run")
		return summary, nil
	}

	rate, err := p.rates.CurrentRate(ctx, p.cfg.FiatCode)
	if err != nil {
		return nil, fmt.Errorf("current exchange rate: %w", err)
	}

	clients, err := p.clients.ListActiveWithBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("load clients: %w", err)
	}

	now := time.Now()
	rec := &repository.AllocationRecord{}
	var payouts []PendingPayout

	for _, c := range clientsInMode(clients, model.ModeFixed) {
		amount, resetDaily, err := FixedShare(c, now, p.cfg.Location)
		if err != nil {
			var cfgErr *AllocationConfigError
			if errors.As(err, &cfgErr) {
				summary.Errors = append(summary.Errors, cfgErr.Error())
				log.Error().Err(err).Str("client_id", c.ID).Msg("skipping misconfigured client")
				continue
			}
			return nil, err
		}
		if !amount.IsPositive() {
			if resetDaily {
				rec.ClientUpdates = append(rec.ClientUpdates, repository.ClientBalanceUpdate{
					ClientID:              c.ID,
					CurrentBalance:        c.CurrentBalance,
					TotalDistributed:      c.TotalDistributed,
					TotalSatoshis:         c.TotalSatoshis,
					DailyDistributedToday: decimal.Zero,
					LastDistribution:      valueOrNow(c.LastDistribution, now),
					DistributionCount:     c.DistributionCount,
				})
			}
			continue
		}

		sats := SatoshisFor(amount, rate)
		dist := model.Distribution{
			ID:               uuid.NewString(),
			ClientID:         c.ID,
			AmountFiat:       amount,
			AmountSatoshis:   sats,
			ExchangeRate:     rate,
			DistributionType: model.DistributionFixed,
			Status:           model.PayoutPending,
		}
		rec.Distributions = append(rec.Distributions, dist)

		distributedToday := c.DailyDistributedToday
		if resetDaily {
			distributedToday = decimal.Zero
		}
		rec.ClientUpdates = append(rec.ClientUpdates, repository.ClientBalanceUpdate{
			ClientID:              c.ID,
			CurrentBalance:        c.CurrentBalance.Sub(amount),
			TotalDistributed:      c.TotalDistributed.Add(amount),
			TotalSatoshis:         c.TotalSatoshis + sats,
			DailyDistributedToday: distributedToday.Add(amount),
			LastDistribution:      now,
			DistributionCount:     c.DistributionCount + 1,
		})
		payouts = append(payouts, PendingPayout{
			DistributionID: dist.ID,
			WalletID:       c.WalletID,
			AmountSats:     sats,
			Memo:           "DCA fixed daily distribution",
		})

		summary.ClientsAffected++
		summary.FiatDistributed = summary.FiatDistributed.Add(amount)
	}

	if len(rec.Distributions) == 0 && len(rec.ClientUpdates) == 0 {
		log.Info().Msg("no fixed-mode distributions due")
		return summary, nil
	}

	if err := p.ledger.RecordAllocation(ctx, rec); err != nil {
		return nil, fmt.Errorf("record fixed allocations: %w", err)
	}
	metrics.DistributionsCreated.WithLabelValues(model.DistributionFixed).
		Add(float64(len(rec.Distributions)))

	succeeded, failed := p.dispatcher.Dispatch(ctx, payouts)
	summary.PayoutsSucceeded += succeeded
	summary.PayoutsFailed += failed
	if failed > 0 {
		metrics.PayoutFailures.Add(float64(failed))
	}

	return summary, nil
}

// RunRetry re-dispatches failed payouts with their recorded amounts.
func (p *Pipeline) RunRetry(ctx context.Context, limit int) (*model.RunSummary, error) {
	release, err := p.locker.AcquireRunLock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	summary := &model.RunSummary{
		Mode:                  "retry",
		StartedAt:             time.Now(),
		FiatDistributed:       decimal.Zero,
		CommissionDistributed: decimal.Zero,
	}
	defer p.finish(ctx, summary)

	succeeded, failed, err := p.dispatcher.RetryFailed(ctx, limit)
	if err != nil {
		return nil, err
	}
	summary.PayoutsSucceeded = succeeded
	summary.PayoutsFailed = failed

	return summary, nil
}

func (p *Pipeline) finish(ctx context.Context, summary *model.RunSummary) {
	summary.FinishedAt = time.Now()

	outcome := "ok"
	if len(summary.Errors) > 0 || summary.PayoutsFailed > 0 {
		outcome = "degraded"
	}
	metrics.PipelineRuns.WithLabelValues(summary.Mode, outcome).Inc()

	if p.events != nil {
		p.events.PublishRunSummary(ctx, summary)
	}

	log.Info().
		Str("mode", summary.Mode).
		Int("processed", summary.TransactionsProcessed).
		Int("duplicates", summary.DuplicatesSkipped).
		Int("clients_affected", summary.ClientsAffected).
		Str("fiat_distributed", summary.FiatDistributed.String()).
		Int("payouts_failed", summary.PayoutsFailed).
		Msg("pipeline run finished")
}

func clientUpdateFor(share ClientShare, now time.Time, loc *time.Location) repository.ClientBalanceUpdate {
	c := share.Client

	distributedToday := c.DailyDistributedToday
	if dayRolledOver(c.LastDistribution, now, loc) {
		distributedToday = decimal.Zero
	}

	return repository.ClientBalanceUpdate{
		ClientID:              c.ID,
		CurrentBalance:        c.CurrentBalance.Sub(share.AmountFiat),
		TotalDistributed:      c.TotalDistributed.Add(share.AmountFiat),
		TotalSatoshis:         c.TotalSatoshis + share.AmountSats,
		DailyDistributedToday: distributedToday,
		LastDistribution:      now,
		DistributionCount:     c.DistributionCount + 1,
	}
}

func valueOrNow(t *time.Time, now time.Time) time.Time {
	if t != nil {
		return *t
	}
	return now
}
