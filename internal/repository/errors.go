package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateTransaction is returned when a kiosk transaction id is
	// already recorded in the dedup ledger. The existing row is never
	// overwritten.
	ErrDuplicateTransaction = errors.New("transaction already processed")

	// ErrRunInProgress is returned when the pipeline run lock is held by
	// another invocation.
	ErrRunInProgress = errors.New("pipeline run already in progress")
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
