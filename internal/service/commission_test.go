package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valleybit/kiosk-dca/internal/model"
)

func recipient(id string, pct string) *model.CommissionRecipient {
	return &model.CommissionRecipient{
		ID:                   id,
		WalletID:             "wallet-" + id,
		WalletName:           "w-" + id,
		AllocationPercentage: decimal.RequireFromString(pct),
		RecipientType:        model.RecipientExternal,
		Status:               model.StatusActive,
	}
}

func TestSplitCommission(t *testing.T) {
	rate := decimal.NewFromInt(500_000)

	t.Run("happy: percentage split with remainder undistributed", func(t *testing.T) {
		recipients := []*model.CommissionRecipient{
			recipient("a", "60"),
			recipient("b", "30"),
		}

		shares, err := SplitCommission(dec(t, "5"), rate, recipients)
		require.NoError(t, err)
		require.Len(t, shares, 2)

		assert.True(t, shares[0].AmountFiat.Equal(dec(t, "3")))
		assert.True(t, shares[1].AmountFiat.Equal(dec(t, "1.5")))
	})

	t.Run("sad: percentages above 100 are a config error", func(t *testing.T) {
		recipients := []*model.CommissionRecipient{
			recipient("a", "60"),
			recipient("b", "50"),
		}

		shares, err := SplitCommission(dec(t, "5"), rate, recipients)
		var cfgErr *AllocationConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Nil(t, shares)
	})

	t.Run("sad: over-allocation is rejected even with zero commission", func(t *testing.T) {
		// lets callers validate configuration before any money moves
		recipients := []*model.CommissionRecipient{
			recipient("a", "70"),
			recipient("b", "40"),
		}

		_, err := SplitCommission(decimal.Zero, decimal.Zero, recipients)
		var cfgErr *AllocationConfigError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("happy: zero commission with valid config yields nothing", func(t *testing.T) {
		shares, err := SplitCommission(decimal.Zero, rate, []*model.CommissionRecipient{
			recipient("a", "100"),
		})
		require.NoError(t, err)
		assert.Empty(t, shares)
	})

	t.Run("happy: no recipients yields nothing", func(t *testing.T) {
		shares, err := SplitCommission(dec(t, "5"), rate, nil)
		require.NoError(t, err)
		assert.Empty(t, shares)
	})

	t.Run("invariant: shares never exceed the commission", func(t *testing.T) {
		recipients := []*model.CommissionRecipient{
			recipient("a", "33.33"),
			recipient("b", "33.33"),
			recipient("c", "33.34"),
		}
		commission := dec(t, "0.07")

		shares, err := SplitCommission(commission, rate, recipients)
		require.NoError(t, err)

		total := decimal.Zero
		for _, s := range shares {
			total = total.Add(s.AmountFiat)
		}
		assert.True(t, total.LessThanOrEqual(commission), "total %s exceeds %s", total, commission)
	})
}
