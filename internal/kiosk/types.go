package kiosk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Canonical export file names as produced by the kiosk server.
const (
	FileCashOut    = "cash_out_txs.csv"
	FileCashIn     = "cash_in_txs.csv"
	FileOutActions = "cash_out_actions.csv"
)

// RawTransaction is one decoded row of the cash-out export. Created is kept
// as the raw export string; the filter parses it because an unparseable
// timestamp drops the row there, not during parsing.
type RawTransaction struct {
	ID                   string
	DeviceID             string
	CryptoAddress        string
	CryptoAtoms          int64
	CryptoCode           string
	FiatAmount           decimal.Decimal
	FiatCode             string
	Status               string
	Send                 bool
	Receive              bool
	ErrorCode            string
	Created              string
	SendConfirmed        string
	Confirmations        int
	DiscountPercentage   decimal.Decimal
	CancelReason         string
	MachineID            string
	BatchID              string
	CommissionPercentage decimal.Decimal
	ExchangeRate         decimal.Decimal
	Dispensed            int64
}

// EligibleTransaction is a RawTransaction that passed filtering, with the
// commission netted out. DistributableAmount + ActualCommission always equals
// FiatAmount.
type EligibleTransaction struct {
	RawTransaction
	CreatedAt           time.Time
	ActualCommission    decimal.Decimal
	DistributableAmount decimal.Decimal
}

// RemoteCommandError reports a non-zero exit from a kiosk export command.
type RemoteCommandError struct {
	Command string
	Output  string
	Err     error
}

func (e *RemoteCommandError) Error() string {
	return fmt.Sprintf("remote command %q failed: %v", e.Command, e.Err)
}

func (e *RemoteCommandError) Unwrap() error { return e.Err }

// TransferError reports a failed or timed-out file download.
type TransferError struct {
	Path string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer of %q failed: %v", e.Path, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
