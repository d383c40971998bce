package kiosk

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// minColumns guards against export format drift: rows with fewer columns are
// skipped, not fatal, so a kiosk-side schema change degrades loudly but
// gracefully.
const minColumns = 32

// Positional column map of the headerless cash-out export. Only the columns
// the engine consumes are named; the others are ignored.
const (
	colID             = 0
	colDeviceID       = 1
	colCryptoAddress  = 2
	colCryptoAtoms    = 3
	colCryptoCode     = 4
	colFiatAmount     = 5
	colFiatCode       = 6
	colStatus         = 7
	colSend           = 8
	colReceive        = 9
	colErrorCode      = 11
	colCreated        = 12
	colSendConfirmed  = 13
	colConfirmations  = 18
	colDiscountPct    = 20
	colCancelReason   = 22
	colMachineID      = 23
	colBatchID        = 24
	colCommissionPct  = 29
	colExchangeRate   = 30
	colDispensed      = 31
)

// ParseCashOutFile reads the cash-out export from dir and returns the
// successfully decoded rows in file order.
func ParseCashOutFile(dir string) ([]RawTransaction, error) {
	path := filepath.Join(dir, FileCashOut)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cash-out export %s: %w", path, err)
	}
	defer file.Close()

	txs, err := ParseCashOut(file)
	if err != nil {
		return nil, fmt.Errorf("parse cash-out export %s: %w", path, err)
	}

	return txs, nil
}

// ParseCashOut decodes headerless CSV rows into RawTransactions. Malformed
// rows are logged and skipped; partial success is the normal case.
func ParseCashOut(r io.Reader) ([]RawTransaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var txs []RawTransaction

	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Int("line", line).Err(err).Msg("skipping unreadable row")
			continue
		}

		if len(record) < minColumns {
			log.Warn().
				Int("line", line).
				Int("columns", len(record)).
				Msg("skipping row with too few columns")
			continue
		}

		tx, err := decodeRow(record)
		if err != nil {
			log.Warn().Int("line", line).Err(err).Msg("skipping malformed row")
			continue
		}

		txs = append(txs, tx)
	}

	log.Info().Int("count", len(txs)).Msg("parsed cash-out transactions")
	return txs, nil
}

func decodeRow(record []string) (RawTransaction, error) {
	var tx RawTransaction

	atoms, err := parseInt(record[colCryptoAtoms])
	if err != nil {
		return tx, fmt.Errorf("crypto_atoms: %w", err)
	}

	fiat, err := parseDecimal(record[colFiatAmount])
	if err != nil {
		return tx, fmt.Errorf("fiat_amount: %w", err)
	}

	confirmations, err := parseInt(record[colConfirmations])
	if err != nil {
		return tx, fmt.Errorf("confirmations: %w", err)
	}

	discount, err := parseDecimal(record[colDiscountPct])
	if err != nil {
		return tx, fmt.Errorf("discount_percentage: %w", err)
	}

	commission, err := parseDecimal(record[colCommissionPct])
	if err != nil {
		return tx, fmt.Errorf("commission_percentage: %w", err)
	}

	rate, err := parseDecimal(record[colExchangeRate])
	if err != nil {
		return tx, fmt.Errorf("exchange_rate: %w", err)
	}

	dispensed, err := parseInt(record[colDispensed])
	if err != nil {
		return tx, fmt.Errorf("dispensed: %w", err)
	}

	return RawTransaction{
		ID:                   record[colID],
		DeviceID:             record[colDeviceID],
		CryptoAddress:        record[colCryptoAddress],
		CryptoAtoms:          atoms,
		CryptoCode:           record[colCryptoCode],
		FiatAmount:           fiat,
		FiatCode:             record[colFiatCode],
		Status:               record[colStatus],
		Send:                 record[colSend] == "t",
		Receive:              record[colReceive] == "t",
		ErrorCode:            record[colErrorCode],
		Created:              record[colCreated],
		SendConfirmed:        record[colSendConfirmed],
		Confirmations:        int(confirmations),
		DiscountPercentage:   discount,
		CancelReason:         record[colCancelReason],
		MachineID:            record[colMachineID],
		BatchID:              record[colBatchID],
		CommissionPercentage: commission,
		ExchangeRate:         rate,
		Dispensed:            dispensed,
	}, nil
}

// Empty numeric fields decode to zero, matching the export's convention of
// leaving unset numbers blank.
func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
