package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/valleybit/kiosk-dca/internal/config"
	"github.com/valleybit/kiosk-dca/internal/database"
	"github.com/valleybit/kiosk-dca/internal/handler"
	"github.com/valleybit/kiosk-dca/internal/kiosk"
	"github.com/valleybit/kiosk-dca/internal/lnbits"
	"github.com/valleybit/kiosk-dca/internal/middleware"
	"github.com/valleybit/kiosk-dca/internal/notify"
	"github.com/valleybit/kiosk-dca/internal/repository"
	"github.com/valleybit/kiosk-dca/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := database.RunMigrations(cfg.DatabaseURL()); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	notifier, err := notify.New(cfg.RabbitURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to notification broker")
	}
	defer notifier.Close()

	router := gin.New()
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(gin.Recovery())

	healthHandler := handler.NewHealthHandler(pool)
	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupAPIRoutes(router, pool, cfg, notifier)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

func setupAPIRoutes(router *gin.Engine, pool *pgxpool.Pool, cfg *config.Config, notifier *notify.Notifier) {
	clientRepo := repository.NewClientRepository(pool)
	recipientRepo := repository.NewRecipientRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)
	distributionRepo := repository.NewDistributionRepository(pool)
	configRepo := repository.NewConfigRepository(pool)
	lockRepo := repository.NewLockRepository(pool)
	metricsRepo := repository.NewMetricsRepository(pool)

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

	clientService := service.NewClientService(clientRepo)
	recipientService := service.NewRecipientService(recipientRepo)
	configService := service.NewConfigService(configRepo)
	metricsService := service.NewMetricsService(metricsRepo)
	historyService := service.NewHistoryService(ledgerRepo, distributionRepo)

	pipelineHandler := handler.NewPipelineHandler(pipeline)
	clientHandler := handler.NewClientHandler(clientService, metricsService)
	recipientHandler := handler.NewRecipientHandler(recipientService)
	configHandler := handler.NewConfigHandler(configService)
	metricsHandler := handler.NewMetricsHandler(metricsService)
	txHandler := handler.NewTransactionHandler(historyService)

	api := router.Group("/api/v1")
	{
		api.POST("/pipeline/run", pipelineHandler.RunFlow)
		api.POST("/pipeline/fixed", pipelineHandler.RunFixed)
		api.POST("/pipeline/retry-payouts", pipelineHandler.RetryPayouts)

		api.POST("/clients", clientHandler.Create)
		api.GET("/clients", clientHandler.List)
		api.GET("/clients/:id", clientHandler.Get)
		api.PUT("/clients/:id", clientHandler.Update)
		api.DELETE("/clients/:id", clientHandler.Delete)
		api.GET("/clients/:id/metrics", clientHandler.GetMetrics)

		api.POST("/commission-recipients", recipientHandler.Create)
		api.GET("/commission-recipients", recipientHandler.List)
		api.GET("/commission-recipients/:id", recipientHandler.Get)
		api.PUT("/commission-recipients/:id", recipientHandler.Update)
		api.DELETE("/commission-recipients/:id", recipientHandler.Delete)

		api.GET("/config", configHandler.Get)
		api.PUT("/config", configHandler.Update)

		api.GET("/metrics/system", metricsHandler.GetSystemMetrics)
		api.GET("/transactions", txHandler.ListProcessed)
		api.GET("/distributions", txHandler.ListDistributions)
		api.GET("/commission-distributions", txHandler.ListCommissionDistributions)
	}
}
