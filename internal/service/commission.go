package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/valleybit/kiosk-dca/internal/model"
)

// RecipientShare is one commission recipient's cut of the netted commission.
type RecipientShare struct {
	Recipient  *model.CommissionRecipient
	AmountFiat decimal.Decimal
	AmountSats int64
}

// SplitCommission allocates the commission across active recipients by their
// configured percentages. Percentages summing above 100 are a configuration
// error and fail before any share is produced; a sum below 100 leaves the
// remainder undistributed on purpose.
func SplitCommission(commission, exchangeRate decimal.Decimal, recipients []*model.CommissionRecipient) ([]RecipientShare, error) {
	totalPct := decimal.Zero
	for _, rec := range recipients {
		totalPct = totalPct.Add(rec.AllocationPercentage)
	}
	if totalPct.GreaterThan(oneHundred) {
		return nil, &AllocationConfigError{
			Reason: fmt.Sprintf("commission recipient percentages sum to %s, above 100", totalPct),
		}
	}

	if !commission.IsPositive() {
		return nil, nil
	}

	var shares []RecipientShare
	for _, rec := range recipients {
		amount := commission.Mul(rec.AllocationPercentage).Div(oneHundred).RoundDown(2)
		if !amount.IsPositive() {
			continue
		}
		shares = append(shares, RecipientShare{
			Recipient:  rec,
			AmountFiat: amount,
			AmountSats: SatoshisFor(amount, exchangeRate),
		})
	}

	return shares, nil
}
