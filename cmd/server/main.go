// Package main is the entry point for the Subnet Sentinel staking daemon.
// It ranks yield-bearing subnets from historical market data, sizes a
// risk-parity allocation under constraints, and publishes the strategy
// whenever the rebalance policy approves a change.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/subnet-sentinel/internal/clients/staking"
	"github.com/aristath/subnet-sentinel/internal/config"
	"github.com/aristath/subnet-sentinel/internal/database"
	"github.com/aristath/subnet-sentinel/internal/modules/allocation"
	"github.com/aristath/subnet-sentinel/internal/modules/market"
	"github.com/aristath/subnet-sentinel/internal/modules/metrics"
	"github.com/aristath/subnet-sentinel/internal/modules/ranking"
	"github.com/aristath/subnet-sentinel/internal/modules/rebalancing"
	"github.com/aristath/subnet-sentinel/internal/modules/strategy"
	"github.com/aristath/subnet-sentinel/internal/monitor"
	"github.com/aristath/subnet-sentinel/internal/reliability"
	"github.com/aristath/subnet-sentinel/internal/scheduler"
	"github.com/aristath/subnet-sentinel/internal/server"
	"github.com/aristath/subnet-sentinel/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting Subnet Sentinel")

	// Databases: market.db holds the synced subnet time series, strategy.db
	// the active allocation and the rebalance audit log.
	marketDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "market.db"),
		Name: "market",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open market database")
	}
	defer marketDB.Close()

	strategyDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "strategy.db"),
		Name: "strategy",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open strategy database")
	}
	defer strategyDB.Close()

	marketRepo := market.NewRepository(marketDB.Conn(), log)
	strategyRepo := strategy.NewRepository(strategyDB.Conn(), log)
	fileStore := strategy.NewFileStore(filepath.Join(cfg.DataDir, "strategies"), log)

	// Engine components. All pure; the optimizer service serializes cycles.
	sc := cfg.Strategy
	calculator := metrics.NewCalculator(sc.MinDataPoints)
	ranker := ranking.NewRanker(sc.MinDataPoints, sc.MaxDrawdownLimit, sc.VolatilityLimit, ranking.Weights{
		Composite: sc.WeightComposite,
		Sharpe:    sc.WeightSharpe,
		MAR:       sc.WeightMAR,
		WinRate:   sc.WeightWinRate,
		Emission:  sc.WeightEmission,
	})
	allocator := allocation.NewAllocator(allocation.Config{
		MaxAllocation:  sc.MaxAllocation,
		MinAllocation:  sc.MinAllocation,
		CashAllocation: sc.CashAllocation,
		MaxSubnets:     sc.MaxSubnets,
	})
	policy := rebalancing.NewPolicy(sc.RebalanceThreshold, sc.Cooldown)

	// Resume the active strategy from strategy.db; fall back to the
	// published file when the database is fresh (migration from a
	// file-only deployment).
	state, err := strategyRepo.LoadState()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load strategy state")
	}
	if state.Empty() && cfg.Hotkey != "" {
		allocations, loadErr := fileStore.Load(cfg.Hotkey)
		if loadErr != nil {
			log.Warn().Err(loadErr).Msg("Failed to load strategy file, starting empty")
		} else if len(allocations) > 0 {
			state.Allocations = allocations
			log.Info().Int("subnets", len(allocations)).Msg("Recovered strategy from published file")
		}
	}

	apiClient := staking.NewClient(cfg.StakingAPIURL, log)

	var submitter strategy.Submitter
	if cfg.Hotkey != "" {
		submitter = apiClient
	} else {
		log.Warn().Msg("SENTINEL_HOTKEY not set; strategy submission disabled")
	}

	optimizer := strategy.NewService(
		marketRepo,
		calculator,
		ranker,
		allocator,
		policy,
		strategyRepo,
		fileStore,
		submitter,
		cfg.Hotkey,
		sc.LookbackDays,
		state,
		log,
	)

	var perfMonitor *monitor.PerformanceMonitor
	if cfg.Hotkey != "" {
		perfMonitor = monitor.NewPerformanceMonitor(
			apiClient, optimizer, cfg.Hotkey, sc.EmergencyReturnThreshold, log,
		)
	}

	// Background jobs.
	sched := scheduler.New(log)
	optimizeJob := scheduler.NewOptimizeJob(optimizer, log)
	if err := sched.AddJob("0 0 * * * *", optimizeJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register optimize job")
	}
	if perfMonitor != nil {
		if err := sched.AddJob("0 */10 * * * *", scheduler.NewMonitorJob(perfMonitor)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register monitor job")
		}
	}
	if err := sched.AddJob("0 30 3 * * *", scheduler.NewWALCheckpointJob(log, marketDB, strategyDB)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register WAL checkpoint job")
	}

	if cfg.Backup.Enabled() {
		r2Client, err := reliability.NewR2Client(
			context.Background(),
			cfg.Backup.Endpoint,
			cfg.Backup.AccessKeyID,
			cfg.Backup.SecretAccessKey,
			cfg.Backup.Bucket,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup client")
		}
		backupService := reliability.NewBackupService(r2Client, map[string]string{
			"market":   marketDB.Path(),
			"strategy": strategyDB.Path(),
		}, cfg.Backup.Retention, log)
		if err := sched.AddJob("0 0 4 * * *", scheduler.NewBackupJob(backupService)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
	} else {
		log.Info().Msg("Off-site backups disabled (no credentials configured)")
	}

	sched.Start()
	defer sched.Stop()

	// Initial cycle on startup, forced past the cooldown like a fresh
	// deployment should be.
	if err := sched.RunNow(scheduler.NewForcedOptimizeJob(optimizer, log)); err != nil {
		log.Error().Err(err).Msg("Initial optimization failed; will retry on schedule")
	}

	srv := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		MarketDB:   marketDB,
		StrategyDB: strategyDB,
		Optimizer:  optimizer,
		Repo:       strategyRepo,
		Monitor:    perfMonitor,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}
