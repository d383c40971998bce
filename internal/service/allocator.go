package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/valleybit/kiosk-dca/internal/model"
)

var (
	oneHundred  = decimal.NewFromInt(100)
	satsPerUnit = decimal.NewFromInt(100_000_000)
)

// ClientShare is one client's cut of an allocation pass.
type ClientShare struct {
	Client     *model.Client
	AmountFiat decimal.Decimal
	AmountSats int64
}

// AllocateFlow splits a distributable pool across flow-mode clients in
// proportion to their remaining balances. Shares are rounded down to cents so
// the sum never exceeds the pool, and each share is clamped at the client's
// balance. Clients whose share rounds to zero are omitted.
func AllocateFlow(pool, exchangeRate decimal.Decimal, clients []*model.Client) []ClientShare {
	flow := clientsInMode(clients, model.ModeFlow)
	if len(flow) == 0 || !pool.IsPositive() {
		return nil
	}

	totalBalance := decimal.Zero
	for _, c := range flow {
		totalBalance = totalBalance.Add(c.CurrentBalance)
	}
	if !totalBalance.IsPositive() {
		return nil
	}

	var shares []ClientShare
	for _, c := range flow {
		share := pool.Mul(c.CurrentBalance).Div(totalBalance).RoundDown(2)

		// invariant-preserving clamp; the proportional formula should
		// never produce a share above the balance
		if share.GreaterThan(c.CurrentBalance) {
			share = c.CurrentBalance
		}
		if !share.IsPositive() {
			continue
		}

		shares = append(shares, ClientShare{
			Client:     c,
			AmountFiat: share,
			AmountSats: SatoshisFor(share, exchangeRate),
		})
	}

	return shares
}

// FixedShare computes a fixed-mode client's distribution for now: the daily
// cap less what was already distributed today, bounded by the remaining
// balance. A zero or negative result means the client is skipped, which is
// the normal state once the daily cap is reached.
func FixedShare(c *model.Client, now time.Time, loc *time.Location) (amount decimal.Decimal, resetDaily bool, err error) {
	if c.FixedDailyLimit == nil {
		return decimal.Zero, false, &AllocationConfigError{
			Reason: fmt.Sprintf("fixed-mode client %s has no daily limit", c.ID),
		}
	}

	distributedToday := c.DailyDistributedToday
	if dayRolledOver(c.LastDistribution, now, loc) {
		distributedToday = decimal.Zero
		resetDaily = true
	}

	amount = decimal.Min(*c.FixedDailyLimit, c.CurrentBalance).Sub(distributedToday)
	if amount.GreaterThan(c.CurrentBalance) {
		amount = c.CurrentBalance
	}
	return amount, resetDaily, nil
}

// dayRolledOver reports whether the client's local day has changed since the
// last distribution. A client with no distribution yet always starts fresh.
func dayRolledOver(last *time.Time, now time.Time, loc *time.Location) bool {
	if last == nil {
		return true
	}
	ly, lm, ld := last.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	return ly != ny || lm != nm || ld != nd
}

// SatoshisFor converts a fiat amount to satoshis at the given rate (fiat per
// whole coin), flooring so the engine never overdistributes crypto value.
func SatoshisFor(fiat, exchangeRate decimal.Decimal) int64 {
	if !exchangeRate.IsPositive() {
		return 0
	}
	return fiat.Mul(satsPerUnit).Div(exchangeRate).IntPart()
}

func clientsInMode(clients []*model.Client, mode string) []*model.Client {
	var out []*model.Client
	for _, c := range clients {
		if c.DCAMode == mode && c.CurrentBalance.IsPositive() {
			out = append(out, c)
		}
	}
	return out
}
