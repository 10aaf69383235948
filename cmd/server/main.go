// Package main is the entry point for the ledgermap transaction mapping
// service. It wires the account directory, the pattern store, the matching
// orchestrator, the batch mapper, the scheduler, and the HTTP API, then runs
// until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgermap/internal/config"
	"github.com/aristath/ledgermap/internal/database"
	"github.com/aristath/ledgermap/internal/modules/batch"
	"github.com/aristath/ledgermap/internal/modules/directory"
	"github.com/aristath/ledgermap/internal/modules/features"
	"github.com/aristath/ledgermap/internal/modules/ledger"
	"github.com/aristath/ledgermap/internal/modules/matching"
	"github.com/aristath/ledgermap/internal/modules/patterns"
	"github.com/aristath/ledgermap/internal/scheduler"
	"github.com/aristath/ledgermap/internal/server"
	"github.com/aristath/ledgermap/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Msg("Starting ledgermap")

	ledgerDB, patternsDB := openDatabases(cfg, log)
	defer func() {
		_ = ledgerDB.Close()
		_ = patternsDB.Close()
	}()

	// Core wiring: extractor -> directory/patterns -> orchestrator -> mapper.
	extractor := features.NewExtractor(log)

	dir := directory.New(directory.NewRepository(ledgerDB.Conn(), log), extractor, log)
	if err := dir.Reload(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load account directory")
	}
	if dir.Size() == 0 {
		log.Warn().Msg("Account directory is empty, mapping passes will fail until accounts are added")
	}

	store := patterns.NewStore(extractor, patterns.NewRepository(patternsDB.Conn(), log), log)
	if err := store.Load(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load pattern store")
	}

	ledgerRepo := ledger.NewRepository(ledgerDB.Conn(), log)
	service := ledger.NewService(ledgerRepo, dir, store, extractor, log)
	orchestrator := matching.NewOrchestrator(dir, store, extractor, nil, log)
	mapper := batch.NewMapper(ledgerRepo, orchestrator, dir, batch.Config{
		BatchSize: cfg.MapBatchSize,
		Workers:   cfg.MapWorkers,
	}, log)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.MapSchedule, scheduler.NewMapPendingJob(mapper, log)); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.MapSchedule).Msg("Failed to register mapping job")
	}
	maintenance := scheduler.NewMaintenanceJob(ledgerDB, patternsDB, ledgerRepo, log)
	if err := sched.AddJob(cfg.MaintenanceSchedule, maintenance); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.MaintenanceSchedule).Msg("Failed to register maintenance job")
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:          log,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		DataDir:      cfg.DataDir,
		LedgerDB:     ledgerDB,
		PatternsDB:   patternsDB,
		Service:      service,
		Directory:    dir,
		Patterns:     store,
		Orchestrator: orchestrator,
		Mapper:       mapper,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	sched.Stop()

	// Flush WAL files so a clean start reads a compact database.
	for _, db := range []*database.DB{ledgerDB, patternsDB} {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			log.Warn().Err(err).Str("database", db.Name()).Msg("Final WAL checkpoint failed")
		}
	}

	log.Info().Msg("ledgermap stopped")
}

// openDatabases opens and migrates ledger.db and patterns.db. The ledger gets
// the full-safety profile since it is the audit trail; patterns are cheap to
// relearn.
func openDatabases(cfg *config.Config, log zerolog.Logger) (*database.DB, *database.DB) {
	ledgerDB, err := database.New(database.Config{
		Path:    cfg.LedgerDBPath(),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	if err := ledgerDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate ledger database")
	}

	patternsDB, err := database.New(database.Config{
		Path:    cfg.PatternsDBPath(),
		Profile: database.ProfileStandard,
		Name:    "patterns",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open patterns database")
	}
	if err := patternsDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate patterns database")
	}

	return ledgerDB, patternsDB
}
