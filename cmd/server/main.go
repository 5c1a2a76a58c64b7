package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/twsight/twsight/internal/clients/twse"
	"github.com/twsight/twsight/internal/clients/yahoo"
	"github.com/twsight/twsight/internal/config"
	"github.com/twsight/twsight/internal/database"
	"github.com/twsight/twsight/internal/modules/analysis"
	"github.com/twsight/twsight/internal/modules/history"
	"github.com/twsight/twsight/internal/modules/model"
	"github.com/twsight/twsight/internal/modules/universe"
	"github.com/twsight/twsight/internal/scheduler"
	"github.com/twsight/twsight/internal/server"
	"github.com/twsight/twsight/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting twsight")

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	universeRepo, err := universe.NewRepository(db, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize universe store")
	}

	yahooClient := yahoo.NewClient(log)
	twseClient := twse.NewClient(log)

	barStore, err := history.NewStore(db, yahooClient, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize bar cache")
	}

	modelCache := model.NewCache(cfg.ModelCacheSize, log)

	scanner := universe.NewScanner(universe.ScannerConfig{
		Workers:     cfg.ScanWorkers,
		MaxPicks:    cfg.ScanMaxPicks,
		MaxWarnings: cfg.ScanMaxWarnings,
		ProbBuy:     cfg.BuyThreshold,
		ProbSell:    cfg.SellThreshold,
		Thresholds:  cfg.Thresholds(),
	}, log)

	analysisSvc := analysis.NewService(
		barStore,
		yahooClient,
		twseClient,
		twseClient,
		universeRepo,
		modelCache,
		scanner,
		cfg.Thresholds(),
		analysis.Options{
			HistoryDays:       cfg.HistoryDays,
			FlowLookbackDays:  cfg.FlowLookbackDays,
			IncludeStochastic: cfg.IncludeStochastic,
			ModelPath:         cfg.ModelPath,
			TestFraction:      cfg.TestFraction,
		},
		log,
	)

	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	if err := registerJobs(sched, cfg, barStore, universeRepo, twseClient, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}

	srv := server.New(server.Config{
		Port:     cfg.Port,
		Log:      log,
		Analysis: analysisSvc,
		Config:   cfg,
		DevMode:  cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func registerJobs(
	sched *scheduler.Scheduler,
	cfg *config.Config,
	barStore *history.Store,
	universeRepo *universe.Repository,
	twseClient *twse.Client,
	log zerolog.Logger,
) error {
	refresh := scheduler.NewBarRefreshJob(barStore, universeRepo, cfg.HistoryDays, log)
	if err := sched.AddJob(cfg.RefreshSchedule, refresh); err != nil {
		return err
	}

	// Listing churn is slow; a weekly reseed keeps names resolvable.
	sync := scheduler.NewUniverseSyncJob(twseClient, universeRepo, log)
	return sched.AddJob("0 0 8 * * SUN", sync)
}
