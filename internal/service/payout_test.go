package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valleybit/kiosk-dca/internal/model"
	"github.com/valleybit/kiosk-dca/internal/repository"
)

type fakeIssuer struct {
	calls   []PendingPayout
	failFor map[string]error // wallet ID -> error
}

func (f *fakeIssuer) IssuePayment(_ context.Context, walletID string, amountSats int64, memo string) (string, int64, error) {
	f.calls = append(f.calls, PendingPayout{WalletID: walletID, AmountSats: amountSats, Memo: memo})
	if err, ok := f.failFor[walletID]; ok {
		return "", 0, err
	}
	return "hash-" + walletID, 1, nil
}

type fakePayoutStore struct {
	completed           map[string]string // distribution ID -> payment hash
	failedReasons       map[string]string
	commissionCompleted map[string]string
	commissionFailed    map[string]bool
	failedDists         []*model.Distribution
	failedCommissions   []*model.CommissionDistribution
}

func newFakePayoutStore() *fakePayoutStore {
	return &fakePayoutStore{
		completed:           map[string]string{},
		failedReasons:       map[string]string{},
		commissionCompleted: map[string]string{},
		commissionFailed:    map[string]bool{},
	}
}

func (f *fakePayoutStore) MarkCompleted(_ context.Context, id, hash string, _ time.Time) error {
	f.completed[id] = hash
	return nil
}

func (f *fakePayoutStore) MarkFailed(_ context.Context, id, reason string) error {
	f.failedReasons[id] = reason
	return nil
}

func (f *fakePayoutStore) ListByStatus(_ context.Context, status string, _ int) ([]*model.Distribution, error) {
	if status == model.PayoutFailed {
		return f.failedDists, nil
	}
	return nil, nil
}

func (f *fakePayoutStore) MarkCommissionCompleted(_ context.Context, id, hash string, _ time.Time) error {
	f.commissionCompleted[id] = hash
	return nil
}

func (f *fakePayoutStore) MarkCommissionFailed(_ context.Context, id string) error {
	f.commissionFailed[id] = true
	return nil
}

func (f *fakePayoutStore) ListCommissionByStatus(_ context.Context, status string, _ int) ([]*model.CommissionDistribution, error) {
	if status == model.PayoutFailed {
		return f.failedCommissions, nil
	}
	return nil, nil
}

type fakeClientLookup map[string]*model.Client

func (f fakeClientLookup) GetByID(_ context.Context, id string) (*model.Client, error) {
	c, ok := f[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

type fakeRecipientLookup map[string]*model.CommissionRecipient

func (f fakeRecipientLookup) GetByID(_ context.Context, id string) (*model.CommissionRecipient, error) {
	r, ok := f[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r, nil
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("happy: outcomes recorded per distribution", func(t *testing.T) {
		issuer := &fakeIssuer{}
		store := newFakePayoutStore()
		d := NewDispatcher(issuer, store, fakeClientLookup{}, fakeRecipientLookup{})

		ok, failed := d.Dispatch(ctx, []PendingPayout{
			{DistributionID: "d1", WalletID: "w1", AmountSats: 1000},
			{DistributionID: "c1", Commission: true, WalletID: "w2", AmountSats: 500},
		})

		assert.Equal(t, 2, ok)
		assert.Zero(t, failed)
		assert.Equal(t, "hash-w1", store.completed["d1"])
		assert.Equal(t, "hash-w2", store.commissionCompleted["c1"])
	})

	t.Run("sad: one failure never aborts the rest", func(t *testing.T) {
		issuer := &fakeIssuer{failFor: map[string]error{"w2": errors.New("route not found")}}
		store := newFakePayoutStore()
		d := NewDispatcher(issuer, store, fakeClientLookup{}, fakeRecipientLookup{})

		ok, failed := d.Dispatch(ctx, []PendingPayout{
			{DistributionID: "d1", WalletID: "w1", AmountSats: 1000},
			{DistributionID: "d2", WalletID: "w2", AmountSats: 2000},
			{DistributionID: "d3", WalletID: "w3", AmountSats: 3000},
		})

		assert.Equal(t, 2, ok)
		assert.Equal(t, 1, failed)
		assert.Len(t, issuer.calls, 3, "remaining payouts must still be attempted")
		assert.Equal(t, "route not found", store.failedReasons["d2"])
		assert.Contains(t, store.completed, "d3")
	})

	t.Run("happy: zero-amount payout completes without a payment", func(t *testing.T) {
		issuer := &fakeIssuer{}
		store := newFakePayoutStore()
		d := NewDispatcher(issuer, store, fakeClientLookup{}, fakeRecipientLookup{})

		ok, failed := d.Dispatch(ctx, []PendingPayout{
			{DistributionID: "d1", WalletID: "w1", AmountSats: 0},
		})

		assert.Equal(t, 1, ok)
		assert.Zero(t, failed)
		assert.Empty(t, issuer.calls)
		assert.Contains(t, store.completed, "d1")
	})
}

func TestRetryFailed(t *testing.T) {
	ctx := context.Background()

	t.Run("happy: retries re-send the recorded amounts", func(t *testing.T) {
		issuer := &fakeIssuer{}
		store := newFakePayoutStore()
		store.failedDists = []*model.Distribution{
			{ID: "d1", ClientID: "c1", AmountSatoshis: 4321, DistributionType: model.DistributionFlow},
		}
		store.failedCommissions = []*model.CommissionDistribution{
			{ID: "cd1", RecipientID: "r1", AmountSatoshis: 99},
		}
		clients := fakeClientLookup{"c1": flowClient("c1", "100")}
		recipients := fakeRecipientLookup{"r1": recipient("r1", "100")}

		d := NewDispatcher(issuer, store, clients, recipients)
		ok, failed, err := d.RetryFailed(ctx, 50)
		require.NoError(t, err)
		assert.Equal(t, 2, ok)
		assert.Zero(t, failed)

		require.Len(t, issuer.calls, 2)
		assert.Equal(t, int64(4321), issuer.calls[0].AmountSats)
		assert.Equal(t, "wallet-c1", issuer.calls[0].WalletID)
		assert.Equal(t, int64(99), issuer.calls[1].AmountSats)
		assert.Contains(t, store.completed, "d1")
		assert.Contains(t, store.commissionCompleted, "cd1")
	})

	t.Run("sad: unresolved client counts as a failure", func(t *testing.T) {
		issuer := &fakeIssuer{}
		store := newFakePayoutStore()
		store.failedDists = []*model.Distribution{
			{ID: "d1", ClientID: "gone", AmountSatoshis: 100},
		}

		d := NewDispatcher(issuer, store, fakeClientLookup{}, fakeRecipientLookup{})
		ok, failed, err := d.RetryFailed(ctx, 50)
		require.NoError(t, err)
		assert.Zero(t, ok)
		assert.Equal(t, 1, failed)
		assert.Empty(t, issuer.calls)
	})
}
