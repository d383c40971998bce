package kiosk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveExisting(t *testing.T) {
	setup := func(t *testing.T) (*Fetcher, string, string) {
		t.Helper()
		logDir := t.TempDir()
		archiveDir := t.TempDir()
		f := NewFetcher(FetcherConfig{
			LogDir:     logDir,
			ArchiveDir: archiveDir,
			Timeout:    5 * time.Second,
		})
		return f, logDir, archiveDir
	}

	t.Run("happy: existing exports move to archive with suffix", func(t *testing.T) {
		f, logDir, archiveDir := setup(t)

		for _, name := range []string{FileCashOut, FileCashIn, FileOutActions} {
			require.NoError(t, os.WriteFile(filepath.Join(logDir, name), []byte("data"), 0o644))
		}

		now := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
		require.NoError(t, f.ArchiveExisting(now))

		entries, err := os.ReadDir(archiveDir)
		require.NoError(t, err)
		assert.Len(t, entries, 3)

		archived := filepath.Join(archiveDir, "cash_out_txs_2024-03-10T09:30:00.csv")
		assert.FileExists(t, archived)

		// working dir is left empty
		remaining, err := os.ReadDir(logDir)
		require.NoError(t, err)
		assert.Empty(t, remaining)
	})

	t.Run("happy: missing files are skipped without error", func(t *testing.T) {
		f, logDir, archiveDir := setup(t)

		require.NoError(t, os.WriteFile(filepath.Join(logDir, FileCashOut), []byte("data"), 0o644))

		require.NoError(t, f.ArchiveExisting(time.Now()))

		entries, err := os.ReadDir(archiveDir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("happy: archiving an empty dir is a no-op", func(t *testing.T) {
		f, _, archiveDir := setup(t)
		require.NoError(t, f.ArchiveExisting(time.Now()))

		entries, err := os.ReadDir(archiveDir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
