package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"orderflow-engine/internal/broker"
	"orderflow-engine/internal/config"
	"orderflow-engine/internal/dashboard"
	"orderflow-engine/internal/engine"
	"orderflow-engine/internal/feed"
	"orderflow-engine/internal/metrics"
	"orderflow-engine/internal/notify"
	"orderflow-engine/internal/regime"
	"orderflow-engine/internal/router"
	"orderflow-engine/internal/scheduler"
	"orderflow-engine/internal/store"
	"orderflow-engine/internal/tier"
	"orderflow-engine/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading engine against the configured data feed",
	RunE:  runRun,
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func buildSession(cfg *config.Config) types.TradingSession {
	mode := types.ModePaper
	if !cfg.DryRun {
		mode = types.ModeLive
	}

	return types.TradingSession{
		Mode:                 mode,
		Symbol:               cfg.Trading.DefaultSymbol,
		Timeframe:            cfg.Trading.DefaultTimeframe,
		DailyProfitTarget:    decimal.NewFromFloat(cfg.Risk.DailyProfitTarget),
		DailyLossLimit:       decimal.NewFromFloat(cfg.Risk.DailyLossLimit),
		MaxPositionSize:      cfg.Risk.MaxPositionSize,
		MaxConcurrentTrades:  cfg.Risk.MaxConcurrentTrades,
		StopLossTicks:        cfg.Execution.DefaultStopTicks,
		TakeProfitTicks:      cfg.Execution.DefaultTargetTicks,
		PaperStartingBalance: decimal.NewFromFloat(cfg.Tier.StartingBalance),
	}
}

func buildRegimeConfigs(cfg *config.Config) (regime.InputsConfig, regime.DetectorConfig) {
	inputs := regime.DefaultInputsConfig()

	detector := regime.DefaultDetectorConfig()
	detector.MinRegimeScore = cfg.Regime.MinRegimeScore
	detector.MinRegimeConfidence = cfg.Regime.MinRegimeConfidence
	detector.ADXTrendThreshold = cfg.Regime.ADXTrendThreshold
	detector.ADXWeakThreshold = cfg.Regime.ADXWeakThreshold
	detector.ATRHighPercentile = cfg.Regime.ATRHighPercentile
	detector.NewsBufferMinutes = cfg.Regime.NewsBufferMinutes
	detector.NoTradeBeforeOpenMinutes = cfg.Regime.NoTradeBeforeOpenMinutes
	detector.NoTradeBeforeCloseMinutes = cfg.Regime.NoTradeBeforeCloseMinutes

	return inputs, detector
}

func buildRouterConfig() router.Config {
	return router.DefaultConfig()
}

// buildDependencies wires every subsystem client from cfg. tickFeed lets the
// backtest command supply a Historical feed instead of a live one.
func buildDependencies(cfg *config.Config, logger *slog.Logger, tickFeed feed.Feed) (engine.Dependencies, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if tickFeed == nil {
		if cfg.Feed.Provider == "live" && !cfg.DryRun {
			tickFeed = feed.NewLive(cfg.Feed.WSURL, cfg.Trading.DefaultSymbol, logger)
		} else {
			tickFeed = feed.NewHistorical(nil, false)
		}
	}

	var b broker.Broker
	if cfg.DryRun || cfg.Feed.Provider != "live" {
		b = broker.NewPaper(logger)
	} else {
		b = broker.NewLive(cfg.Broker.BaseURL, cfg.Broker.APIKey, logger)
	}

	var notifier *notify.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifyCfg := notify.DefaultConfig(cfg.Notify.WebhookURL)
		notifyCfg.AlertOnTrades = cfg.Notify.AlertOnTrades
		notifyCfg.AlertOnConnection = cfg.Notify.AlertOnConnection
		notifyCfg.AlertOnLimits = cfg.Notify.AlertOnLimits
		notifyCfg.AlertOnErrors = cfg.Notify.AlertOnErrors
		notifier = notify.New(notifyCfg, logger)
	}

	sched, err := scheduler.New(scheduler.DefaultConfig(), logger)
	if err != nil {
		closeAll()
		return engine.Dependencies{}, closeAll, fmt.Errorf("create scheduler: %w", err)
	}

	snap, err := store.OpenSnapshotStore(cfg.Store.DataDir)
	if err != nil {
		closeAll()
		return engine.Dependencies{}, closeAll, fmt.Errorf("open snapshot store: %w", err)
	}

	tickLog, err := store.OpenTickLog(cfg.Store.TickLogDSN)
	if err != nil {
		closeAll()
		return engine.Dependencies{}, closeAll, fmt.Errorf("open tick log: %w", err)
	}
	closers = append(closers, func() { _ = tickLog.Close() })

	var resumed *types.TierState
	if prior, err := snap.Load(); err == nil && prior != nil {
		resumed = &prior.Tier
	}
	tiers := tier.NewManager(decimal.NewFromFloat(cfg.Tier.StartingBalance), resumed, logger, nil)
	tiers.StartSession(time.Now())

	deps := engine.Dependencies{
		Feed:      tickFeed,
		Broker:    b,
		Notifier:  notifier,
		Scheduler: sched,
		Metrics:   metrics.New(),
		Snapshot:  snap,
		TickLog:   tickLog,
		Tiers:     tiers,
	}

	return deps, closeAll, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	logger.Info("starting trading engine", "symbol", cfg.Trading.DefaultSymbol, "dry_run", cfg.DryRun)

	deps, closeDeps, err := buildDependencies(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer closeDeps()

	inputsCfg, detectorCfg := buildRegimeConfigs(cfg)
	session := buildSession(cfg)

	eng := engine.New(session, inputsCfg, detectorCfg, buildRouterConfig(), deps, logger)
	if err := eng.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	var dash *dashboard.Server
	if cfg.Dashboard.Enabled {
		dash = dashboard.NewServer(cfg.Dashboard, eng, deps.Metrics, logger)
		go func() {
			if err := dash.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard listening", "port", cfg.Dashboard.Port)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("signal received, stopping", "grace_period", 5*time.Second)
	if dash != nil {
		if err := dash.Stop(); err != nil {
			logger.Error("stop dashboard", "error", err)
		}
	}
	eng.Stop()

	return nil
}
