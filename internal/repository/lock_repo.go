package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// runLockKey identifies the pipeline's exclusive advisory lock. One lock for
// the whole system: no two invocations may mutate balances concurrently.
const runLockKey = int64(0x6463615f72756e) // "dca_run"

type LockRepository struct {
	pool *pgxpool.Pool
}

func NewLockRepository(pool *pgxpool.Pool) *LockRepository {
	return &LockRepository{pool: pool}
}

// AcquireRunLock takes the pipeline run lock on a dedicated connection. It
// returns ErrRunInProgress without blocking when another run holds it. The
// returned release func must be called when the run finishes; it also frees
// the underlying connection.
func (r *LockRepository) AcquireRunLock(ctx context.Context) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for run lock: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx,
		`SELECT pg_try_advisory_lock($1)`, runLockKey).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try run lock: %w", err)
	}

	if !locked {
		conn.Release()
		return nil, ErrRunInProgress
	}

	release := func() {
		// unlock on the same session that took the lock
		if _, err := conn.Exec(context.Background(),
			`SELECT pg_advisory_unlock($1)`, runLockKey); err != nil {
			log.Error().Err(err).Msg("failed to release run lock")
		}
		conn.Release()
	}

	return release, nil
}
