package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valleybit/kiosk-dca/internal/kiosk"
	"github.com/valleybit/kiosk-dca/internal/model"
	"github.com/valleybit/kiosk-dca/internal/repository"
)

type fakeClientStore struct {
	clients []*model.Client
}

func (f *fakeClientStore) ListActiveWithBalance(context.Context) ([]*model.Client, error) {
	return f.clients, nil
}

type fakeLedger struct {
	processed map[string]bool
	records   []*repository.AllocationRecord
	statuses  map[string]string
	// failOnce makes RecordAllocation fail a single time for the given
	// kiosk transaction ID, simulating a transient database error.
	failOnce map[string]error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		processed: map[string]bool{},
		statuses:  map[string]string{},
		failOnce:  map[string]error{},
	}
}

func (f *fakeLedger) HasProcessed(_ context.Context, kioskTxID string) (bool, error) {
	return f.processed[kioskTxID], nil
}

func (f *fakeLedger) RecordAllocation(_ context.Context, rec *repository.AllocationRecord) error {
	if rec.Transaction != nil {
		kioskID := rec.Transaction.KioskTransactionID
		if err, ok := f.failOnce[kioskID]; ok {
			delete(f.failOnce, kioskID)
			return err
		}
		if f.processed[kioskID] {
			return repository.ErrDuplicateTransaction
		}
		f.processed[kioskID] = true
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeLedger) UpdateProcessedStatus(_ context.Context, id, status string) error {
	f.statuses[id] = status
	return nil
}

type fakeRecipientStore struct {
	recipients []*model.CommissionRecipient
}

func (f *fakeRecipientStore) ListActive(context.Context) ([]*model.CommissionRecipient, error) {
	return f.recipients, nil
}

type fakeSysConfigStore struct {
	cfg       *model.SystemConfig
	watermark *time.Time
}

func (f *fakeSysConfigStore) Get(context.Context) (*model.SystemConfig, error) {
	return f.cfg, nil
}

func (f *fakeSysConfigStore) SetLastProcessed(_ context.Context, ts time.Time) error {
	f.watermark = &ts
	f.cfg.LastProcessedTimestamp = &ts
	return nil
}

type fakeLocker struct {
	busy     bool
	acquired int
}

func (f *fakeLocker) AcquireRunLock(context.Context) (func(), error) {
	if f.busy {
		return nil, repository.ErrRunInProgress
	}
	f.busy = true
	f.acquired++
	return func() { f.busy = false }, nil
}

type fakeRates struct {
	rate decimal.Decimal
}

func (f *fakeRates) CurrentRate(context.Context, string) (decimal.Decimal, error) {
	return f.rate, nil
}

// csvRow builds a 32-column cash-out export row that passes the eligibility
// filter, with overrides applied by column index.
func csvRow(overrides map[int]string) string {
	cols := make([]string, 32)
	cols[0] = "tx-1"
	cols[1] = "device-1"
	cols[2] = "bc1qaddr"
	cols[3] = "19000000"
	cols[4] = "BTC"
	cols[5] = "100"
	cols[6] = "GTQ"
	cols[7] = "confirmed"
	cols[8] = "t"
	cols[9] = "f"
	cols[12] = "2024-03-10 14:22:31.512+00"
	cols[13] = "2024-03-10 14:25:00.000+00"
	cols[18] = "1"
	cols[20] = "0"
	cols[23] = "machine-1"
	cols[29] = "0.05"
	cols[30] = "500000"
	cols[31] = "0"
	for i, v := range overrides {
		cols[i] = v
	}
	return strings.Join(cols, ",")
}

func writeCashOutFile(t *testing.T, rows ...string) string {
	t.Helper()
	dir := t.TempDir()
	content := strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, kiosk.FileCashOut), []byte(content), 0o644))
	return dir
}

type pipelineFixture struct {
	pipeline    *Pipeline
	clients     *fakeClientStore
	ledger      *fakeLedger
	recipients  *fakeRecipientStore
	sysConfig   *fakeSysConfigStore
	locker      *fakeLocker
	issuer      *fakeIssuer
	payoutStore *fakePayoutStore
}

func newPipelineFixture(t *testing.T, logDir string) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		clients: &fakeClientStore{clients: []*model.Client{
			flowClient("a", "100"),
			flowClient("b", "300"),
		}},
		ledger: newFakeLedger(),
		recipients: &fakeRecipientStore{recipients: []*model.CommissionRecipient{
			recipient("r1", "100"),
		}},
		sysConfig:   &fakeSysConfigStore{cfg: &model.SystemConfig{ProcessingEnabled: true}},
		locker:      &fakeLocker{},
		issuer:      &fakeIssuer{},
		payoutStore: newFakePayoutStore(),
	}

	dispatcher := NewDispatcher(f.issuer, f.payoutStore, fakeClientLookup{}, fakeRecipientLookup{})
	f.pipeline = NewPipeline(
		PipelineConfig{LogDir: logDir, FiatCode: "GTQ"},
		f.clients, f.ledger, f.recipients, f.sysConfig, f.locker,
		dispatcher, nil, &fakeRates{rate: decimal.NewFromInt(500_000)}, nil,
	)
	return f
}

func TestRunFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("happy: full cycle from export to payout", func(t *testing.T) {
		dir := writeCashOutFile(t, csvRow(nil))
		f := newPipelineFixture(t, dir)

		summary, err := f.pipeline.RunFlow(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, summary.TransactionsParsed)
		assert.Equal(t, 1, summary.TransactionsEligible)
		assert.Equal(t, 1, summary.TransactionsProcessed)
		assert.Zero(t, summary.DuplicatesSkipped)
		assert.Equal(t, 2, summary.ClientsAffected)

		require.Len(t, f.ledger.records, 1)
		rec := f.ledger.records[0]
		require.NotNil(t, rec.Transaction)
		assert.Equal(t, "tx-1", rec.Transaction.KioskTransactionID)
		assert.True(t, rec.Transaction.CommissionAmount.Equal(dec(t, "5")))

		// commission nets out first, then the pool splits 25/75 by balance
		require.Len(t, rec.Distributions, 2)
		assert.True(t, rec.Distributions[0].AmountFiat.Equal(dec(t, "23.75")))
		assert.Equal(t, int64(4750), rec.Distributions[0].AmountSatoshis)
		assert.True(t, rec.Distributions[1].AmountFiat.Equal(dec(t, "71.25")))
		assert.Equal(t, int64(14250), rec.Distributions[1].AmountSatoshis)

		require.Len(t, rec.Commissions, 1)
		assert.True(t, rec.Commissions[0].AmountFiat.Equal(dec(t, "5")))
		assert.Equal(t, int64(1000), rec.Commissions[0].AmountSatoshis)

		// balances decrement by the share taken
		require.Len(t, rec.ClientUpdates, 2)
		assert.True(t, rec.ClientUpdates[0].CurrentBalance.Equal(dec(t, "76.25")))
		assert.True(t, rec.ClientUpdates[1].CurrentBalance.Equal(dec(t, "228.75")))

		// all three payouts went out and were recorded
		assert.Equal(t, 3, summary.PayoutsSucceeded)
		assert.Zero(t, summary.PayoutsFailed)
		assert.Len(t, f.payoutStore.completed, 2)
		assert.Len(t, f.payoutStore.commissionCompleted, 1)

		// watermark advanced to the processed transaction's timestamp
		require.NotNil(t, f.sysConfig.watermark)
		want, perr := kiosk.ParseCreated("2024-03-10 14:22:31.512+00")
		require.NoError(t, perr)
		assert.True(t, f.sysConfig.watermark.Equal(want))
	})

	t.Run("happy: rerunning the same export changes nothing", func(t *testing.T) {
		dir := writeCashOutFile(t, csvRow(nil))
		f := newPipelineFixture(t, dir)

		_, err := f.pipeline.RunFlow(ctx)
		require.NoError(t, err)
		recordsAfterFirst := len(f.ledger.records)

		summary, err := f.pipeline.RunFlow(ctx)
		require.NoError(t, err)

		assert.Zero(t, summary.TransactionsEligible,
			"watermark must exclude already-processed transactions")
		assert.Zero(t, summary.TransactionsProcessed)
		assert.Len(t, f.ledger.records, recordsAfterFirst)
	})

	t.Run("happy: ledger dedup catches transactions behind a stale watermark", func(t *testing.T) {
		dir := writeCashOutFile(t, csvRow(nil))
		f := newPipelineFixture(t, dir)
		f.ledger.processed["tx-1"] = true

		summary, err := f.pipeline.RunFlow(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, summary.DuplicatesSkipped)
		assert.Zero(t, summary.TransactionsProcessed)
		assert.Empty(t, f.ledger.records)
	})

	t.Run("happy: ineligible rows are filtered out", func(t *testing.T) {
		dir := writeCashOutFile(t,
			csvRow(map[int]string{0: "tx-ok"}),
			csvRow(map[int]string{0: "tx-pending", 7: "pending"}),
			csvRow(map[int]string{0: "tx-errored", 11: "timeout"}),
			csvRow(map[int]string{0: "tx-cancelled", 22: "operator"}),
		)
		f := newPipelineFixture(t, dir)

		summary, err := f.pipeline.RunFlow(ctx)
		require.NoError(t, err)

		assert.Equal(t, 4, summary.TransactionsParsed)
		assert.Equal(t, 1, summary.TransactionsEligible)
		assert.Equal(t, 1, summary.TransactionsProcessed)
	})

	t.Run("sad: watermark never advances past a failed transaction", func(t *testing.T) {
		// File order is not chronological: the later-timestamped row comes
		// first and succeeds, the earlier one fails transiently.
		dir := writeCashOutFile(t,
			csvRow(map[int]string{0: "tx-late", 12: "2024-03-10 10:00:00.000+00"}),
			csvRow(map[int]string{0: "tx-early", 12: "2024-03-10 09:00:00.000+00"}),
		)
		f := newPipelineFixture(t, dir)
		f.ledger.failOnce["tx-early"] = errors.New("connection reset")

		summary, err := f.pipeline.RunFlow(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.TransactionsProcessed)
		assert.Len(t, summary.Errors, 1)
		// only the successful transaction's commission is reported
		assert.True(t, summary.CommissionDistributed.Equal(dec(t, "5")),
			"commission was %s", summary.CommissionDistributed)
		assert.Nil(t, f.sysConfig.watermark,
			"no processed transaction precedes the failure, so the watermark must hold")

		// the next run must still see the failed transaction
		summary, err = f.pipeline.RunFlow(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, summary.TransactionsEligible)
		assert.Equal(t, 1, summary.TransactionsProcessed, "failed transaction retried")
		assert.Equal(t, 1, summary.DuplicatesSkipped)
		assert.True(t, f.ledger.processed["tx-early"])

		// with both recorded the watermark finally advances to the latest
		require.NotNil(t, f.sysConfig.watermark)
		want, perr := kiosk.ParseCreated("2024-03-10 10:00:00.000+00")
		require.NoError(t, perr)
		assert.True(t, f.sysConfig.watermark.Equal(want))
	})

	t.Run("sad: concurrent run is rejected", func(t *testing.T) {
		dir := writeCashOutFile(t, csvRow(nil))
		f := newPipelineFixture(t, dir)
		f.locker.busy = true

		_, err := f.pipeline.RunFlow(ctx)
		assert.ErrorIs(t, err, repository.ErrRunInProgress)
	})

	t.Run("happy: processing disabled leaves everything untouched", func(t *testing.T) {
		dir := writeCashOutFile(t, csvRow(nil))
		f := newPipelineFixture(t, dir)
		f.sysConfig.cfg.ProcessingEnabled = false

		summary, err := f.pipeline.RunFlow(ctx)
		require.NoError(t, err)
		assert.Zero(t, summary.TransactionsParsed)
		assert.Empty(t, f.ledger.records)
		assert.Nil(t, f.sysConfig.watermark)
	})

	t.Run("sad: over-allocated commission aborts before any write", func(t *testing.T) {
		dir := writeCashOutFile(t, csvRow(nil))
		f := newPipelineFixture(t, dir)
		f.recipients.recipients = []*model.CommissionRecipient{
			recipient("r1", "60"),
			recipient("r2", "50"),
		}

		_, err := f.pipeline.RunFlow(ctx)
		var cfgErr *AllocationConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Empty(t, f.ledger.records)
		assert.Empty(t, f.issuer.calls)
	})

	t.Run("sad: payout failure marks the transaction partial", func(t *testing.T) {
		dir := writeCashOutFile(t, csvRow(nil))
		f := newPipelineFixture(t, dir)
		f.issuer.failFor = map[string]error{"wallet-a": errors.New("payment timeout")}

		summary, err := f.pipeline.RunFlow(ctx)
		require.NoError(t, err, "payout failures never fail the run")

		assert.Equal(t, 1, summary.PayoutsFailed)
		assert.Equal(t, 2, summary.PayoutsSucceeded)

		require.Len(t, f.ledger.records, 1)
		txID := f.ledger.records[0].Transaction.ID
		assert.Equal(t, model.ProcessingPartial, f.ledger.statuses[txID])

		// the failed row keeps its recorded amount for later retry
		require.Len(t, f.payoutStore.failedReasons, 1)
	})
}

func TestRunFixed(t *testing.T) {
	ctx := context.Background()

	t.Run("happy: daily capped distribution for fixed clients", func(t *testing.T) {
		f := newPipelineFixture(t, t.TempDir())
		yesterday := time.Now().AddDate(0, 0, -1)
		f.clients.clients = []*model.Client{
			fixedClient("fx", "100", "25", "0", &yesterday),
			flowClient("fl", "500"),
		}

		summary, err := f.pipeline.RunFixed(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, summary.ClientsAffected)
		assert.True(t, summary.FiatDistributed.Equal(dec(t, "25")))

		require.Len(t, f.ledger.records, 1)
		rec := f.ledger.records[0]
		assert.Nil(t, rec.Transaction, "fixed runs have no kiosk transaction")
		require.Len(t, rec.Distributions, 1)
		assert.Equal(t, model.DistributionFixed, rec.Distributions[0].DistributionType)
		// 25 GTQ at 500000 GTQ/BTC
		assert.Equal(t, int64(5000), rec.Distributions[0].AmountSatoshis)

		require.Len(t, rec.ClientUpdates, 1)
		assert.True(t, rec.ClientUpdates[0].DailyDistributedToday.Equal(dec(t, "25")))
		assert.True(t, rec.ClientUpdates[0].CurrentBalance.Equal(dec(t, "75")))

		assert.Equal(t, 1, summary.PayoutsSucceeded)
	})

	t.Run("happy: exhausted cap yields no distribution", func(t *testing.T) {
		f := newPipelineFixture(t, t.TempDir())
		earlier := time.Now().Add(-time.Hour)
		f.clients.clients = []*model.Client{
			fixedClient("fx", "100", "25", "25", &earlier),
		}

		summary, err := f.pipeline.RunFixed(ctx)
		require.NoError(t, err)
		assert.Zero(t, summary.ClientsAffected)
		assert.Empty(t, f.ledger.records)
	})

	t.Run("sad: misconfigured client is skipped, others proceed", func(t *testing.T) {
		f := newPipelineFixture(t, t.TempDir())
		yesterday := time.Now().AddDate(0, 0, -1)
		broken := flowClient("broken", "100")
		broken.DCAMode = model.ModeFixed
		f.clients.clients = []*model.Client{
			broken,
			fixedClient("fx", "100", "25", "0", &yesterday),
		}

		summary, err := f.pipeline.RunFixed(ctx)
		require.NoError(t, err)
		assert.Len(t, summary.Errors, 1)
		assert.Equal(t, 1, summary.ClientsAffected)
	})
}

func TestRunRetry(t *testing.T) {
	t.Run("happy: failed payouts re-dispatch under the run lock", func(t *testing.T) {
		f := newPipelineFixture(t, t.TempDir())
		f.payoutStore.failedDists = []*model.Distribution{
			{ID: "d1", ClientID: "a", AmountSatoshis: 4750, DistributionType: model.DistributionFlow},
		}
		dispatcher := NewDispatcher(f.issuer, f.payoutStore,
			fakeClientLookup{"a": flowClient("a", "100")}, fakeRecipientLookup{})
		f.pipeline.dispatcher = dispatcher

		summary, err := f.pipeline.RunRetry(context.Background(), 100)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.PayoutsSucceeded)
		assert.Equal(t, 1, f.locker.acquired)
		require.Len(t, f.issuer.calls, 1)
		assert.Equal(t, int64(4750), f.issuer.calls[0].AmountSats)
	})
}
