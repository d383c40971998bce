// One-shot pipeline runner for cron. Exits non-zero on a run-level failure
// so the scheduler's mail catches it.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/valleybit/kiosk-dca/internal/config"
	"github.com/valleybit/kiosk-dca/internal/database"
	"github.com/valleybit/kiosk-dca/internal/kiosk"
	"github.com/valleybit/kiosk-dca/internal/lnbits"
	"github.com/valleybit/kiosk-dca/internal/model"
	"github.com/valleybit/kiosk-dca/internal/notify"
	"github.com/valleybit/kiosk-dca/internal/repository"
	"github.com/valleybit/kiosk-dca/internal/service"
)

func main() {
	mode := flag.String("mode", model.ModeFlow, "run mode: flow, fixed or retry")
	retryLimit := flag.Int("retry-limit", 50, "max failed payouts to retry per run")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall run deadline")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	notifier, err := notify.New(cfg.RabbitURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to notification broker")
	}
	defer notifier.Close()

	clientRepo := repository.NewClientRepository(pool)
	recipientRepo := repository.NewRecipientRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)
	distributionRepo := repository.NewDistributionRepository(pool)
	configRepo := repository.NewConfigRepository(pool)
	lockRepo := repository.NewLockRepository(pool)

	lnbitsClient := lnbits.NewClient(cfg.LNbitsURL, cfg.LNbitsAPIKey)
	dispatcher := service.NewDispatcher(lnbitsClient, distributionRepo, clientRepo, recipientRepo)

	var source service.TransactionSource
	if cfg.KioskHost != "" {
		source = kiosk.NewFetcher(kiosk.FetcherConfig{
			Host:       cfg.KioskHost,
			User:       cfg.KioskSSHUser,
			KeyFile:    cfg.KioskSSHKeyFile,
			Password:   cfg.KioskPassword,
			LogDir:     cfg.KioskLogDir,
			ArchiveDir: cfg.KioskArchiveDir,
			Timeout:    cfg.FetchTimeout,
		})
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Warn().Str("timezone", cfg.Timezone).Msg("unknown timezone, using UTC")
		location = time.UTC
	}

	pipeline := service.NewPipeline(
		service.PipelineConfig{
			LogDir:   cfg.KioskLogDir,
			FiatCode: cfg.FiatCode,
			Location: location,
		},
		clientRepo, ledgerRepo, recipientRepo, configRepo, lockRepo,
		dispatcher, source, lnbitsClient, notifier,
	)

	var summary *model.RunSummary
	switch *mode {
	case model.ModeFlow:
		summary, err = pipeline.RunFlow(ctx)
	case model.ModeFixed:
		summary, err = pipeline.RunFixed(ctx)
	case "retry":
		summary, err = pipeline.RunRetry(ctx, *retryLimit)
	default:
		log.Fatal().Str("mode", *mode).Msg("unknown run mode")
	}
	if err != nil {
		log.Fatal().Err(err).Str("mode", *mode).Msg("pipeline run failed")
	}

	if len(summary.Errors) > 0 || summary.PayoutsFailed > 0 {
		log.Warn().Strs("errors", summary.Errors).
			Int("payouts_failed", summary.PayoutsFailed).
			Msg("pipeline run finished with degradations")
		os.Exit(1)
	}
}
