package kiosk

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var createdLayouts = []string{
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05-07",
	time.RFC3339Nano,
	time.RFC3339,
}

var oneHundred = decimal.NewFromInt(100)

// FilterEligible selects the transactions that qualify for distribution:
// confirmed, outbound, error-free, uncancelled, and newer than the watermark
// when one is set. Surviving rows get the commission netted out. Input order
// is preserved.
func FilterEligible(txs []RawTransaction, watermark *time.Time) []EligibleTransaction {
	var eligible []EligibleTransaction

	for _, tx := range txs {
		if tx.Status != "confirmed" || !tx.Send {
			continue
		}
		if tx.ErrorCode != "" || tx.CancelReason != "" {
			continue
		}

		created, err := ParseCreated(tx.Created)
		if err != nil {
			log.Warn().
				Str("transaction_id", tx.ID).
				Str("created", tx.Created).
				Msg("dropping transaction with unparseable timestamp")
			continue
		}

		if watermark != nil && !created.After(*watermark) {
			continue
		}

		commission, distributable := NetCommission(
			tx.FiatAmount, tx.CommissionPercentage, tx.DiscountPercentage)

		eligible = append(eligible, EligibleTransaction{
			RawTransaction:      tx,
			CreatedAt:           created,
			ActualCommission:    commission,
			DistributableAmount: distributable,
		})
	}

	log.Info().Int("count", len(eligible)).Msg("filtered eligible transactions")
	return eligible
}

// NetCommission computes the commission actually charged after the discount
// and the amount left to distribute. The two always sum to fiatAmount.
func NetCommission(fiatAmount, commissionPct, discountPct decimal.Decimal) (commission, distributable decimal.Decimal) {
	base := fiatAmount.Mul(commissionPct)
	commission = base.Mul(oneHundred.Sub(discountPct)).Div(oneHundred)
	distributable = fiatAmount.Sub(commission)
	return commission, distributable
}

// ParseCreated parses the export's timestamp column, which Postgres emits
// with a bare "+00" zone offset.
func ParseCreated(s string) (time.Time, error) {
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
