package kiosk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func eligibleRaw(id, created string) RawTransaction {
	return RawTransaction{
		ID:                   id,
		Status:               "confirmed",
		Send:                 true,
		Created:              created,
		FiatAmount:           decimal.NewFromInt(100),
		CommissionPercentage: decimal.NewFromFloat(0.05),
		DiscountPercentage:   decimal.Zero,
		ExchangeRate:         decimal.NewFromInt(540000),
	}
}

func TestFilterEligible(t *testing.T) {
	created := "2024-03-10 14:22:31.512+00"

	t.Run("happy: confirmed send transaction passes", func(t *testing.T) {
		out := FilterEligible([]RawTransaction{eligibleRaw("tx-1", created)}, nil)
		require.Len(t, out, 1)
		assert.Equal(t, "tx-1", out[0].ID)
	})

	t.Run("happy: commission is netted out", func(t *testing.T) {
		out := FilterEligible([]RawTransaction{eligibleRaw("tx-1", created)}, nil)
		require.Len(t, out, 1)
		assert.True(t, out[0].ActualCommission.Equal(mustDecimal(t, "5")),
			"commission was %s", out[0].ActualCommission)
		assert.True(t, out[0].DistributableAmount.Equal(mustDecimal(t, "95")),
			"distributable was %s", out[0].DistributableAmount)
	})

	t.Run("happy: discount reduces commission", func(t *testing.T) {
		tx := eligibleRaw("tx-1", created)
		tx.DiscountPercentage = decimal.NewFromInt(50)
		out := FilterEligible([]RawTransaction{tx}, nil)
		require.Len(t, out, 1)
		assert.True(t, out[0].ActualCommission.Equal(mustDecimal(t, "2.5")))
		assert.True(t, out[0].DistributableAmount.Equal(mustDecimal(t, "97.5")))
	})

	t.Run("invariant: commission plus distributable equals fiat", func(t *testing.T) {
		cases := []struct{ fiat, pct, discount string }{
			{"100", "0.05", "0"},
			{"333.33", "0.07", "15"},
			{"0.01", "0.025", "99"},
			{"25000", "0.1", "33.33"},
		}
		for _, c := range cases {
			commission, distributable := NetCommission(
				mustDecimal(t, c.fiat), mustDecimal(t, c.pct), mustDecimal(t, c.discount))
			assert.True(t, commission.Add(distributable).Equal(mustDecimal(t, c.fiat)),
				"fiat=%s pct=%s discount=%s", c.fiat, c.pct, c.discount)
			assert.False(t, commission.IsNegative())
			assert.False(t, distributable.IsNegative())
		}
	})

	t.Run("sad: unconfirmed, cancelled and errored rows are dropped", func(t *testing.T) {
		pending := eligibleRaw("pending", created)
		pending.Status = "pending"

		cancelled := eligibleRaw("cancelled", created)
		cancelled.CancelReason = "operatorCancel"

		errored := eligibleRaw("errored", created)
		errored.ErrorCode = "insufficientFunds"

		received := eligibleRaw("received", created)
		received.Send = false

		out := FilterEligible([]RawTransaction{pending, cancelled, errored, received}, nil)
		assert.Empty(t, out)
	})

	t.Run("sad: unparseable timestamp drops the row", func(t *testing.T) {
		out := FilterEligible([]RawTransaction{eligibleRaw("tx-1", "garbage")}, nil)
		assert.Empty(t, out)
	})

	t.Run("happy: watermark excludes older transactions", func(t *testing.T) {
		older := eligibleRaw("older", "2024-03-09 10:00:00+00")
		newer := eligibleRaw("newer", "2024-03-11 10:00:00+00")

		watermark, err := ParseCreated("2024-03-10 00:00:00+00")
		require.NoError(t, err)

		out := FilterEligible([]RawTransaction{older, newer}, &watermark)
		require.Len(t, out, 1)
		assert.Equal(t, "newer", out[0].ID)
	})

	t.Run("happy: filtering is pure given the same input", func(t *testing.T) {
		input := []RawTransaction{
			eligibleRaw("tx-1", created),
			eligibleRaw("tx-2", created),
		}
		first := FilterEligible(input, nil)
		second := FilterEligible(input, nil)
		assert.Equal(t, first, second)
	})
}

func TestParseCreated(t *testing.T) {
	t.Run("happy: postgres export format with bare offset", func(t *testing.T) {
		got, err := ParseCreated("2024-03-10 14:22:31.512+00")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 10, 14, 22, 31, 512000000, time.UTC), got.UTC())
	})

	t.Run("happy: without fractional seconds", func(t *testing.T) {
		_, err := ParseCreated("2024-03-10 14:22:31+00")
		require.NoError(t, err)
	})

	t.Run("sad: rejects garbage", func(t *testing.T) {
		_, err := ParseCreated("not-a-time")
		assert.Error(t, err)
	})
}
