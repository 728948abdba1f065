// Package engine is the central orchestrator of the order-flow trading
// system.
//
// It wires together all subsystems:
//
//  1. A Feed streams ticks (live WebSocket or historical replay).
//  2. The Aggregator builds footprint bars and tracks cumulative delta /
//     volume profile from those ticks.
//  3. On each completed bar, the five pattern Detectors scan for order-flow
//     signatures, the Router's regime classifier updates and filters the
//     resulting signals, and approved signals are sized by the tier Manager
//     and routed to the execution Manager as bracket orders.
//  4. Every tick also updates open positions' P&L in the execution Manager,
//     which can trigger stop/target fills.
//  5. Completed trades update the tier Manager's balance/streaks, the
//     snapshot Store, Prometheus metrics, and (if configured) a Discord
//     alert via the Notifier.
//  6. A Scheduler fires the pre-close auto-flatten and the end-of-session
//     digest.
//
// Lifecycle: New() → Start() → [runs until ctx is cancelled] → Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/internal/aggregator"
	"orderflow-engine/internal/broker"
	"orderflow-engine/internal/detectors"
	"orderflow-engine/internal/execution"
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

// Engine orchestrates every subsystem of the order-flow trading system. It
// owns the lifecycle of all goroutines and is the single place signals
// flow from tick ingestion through to a routed order.
type Engine struct {
	session types.TradingSession
	logger  *slog.Logger

	feed    feed.Feed
	broker  broker.Broker
	agg     *aggregator.Aggregator
	router  *router.Router
	exec    *execution.Manager
	tiers   *tier.Manager
	notif   *notify.Notifier
	sched   *scheduler.Scheduler
	metrics *metrics.Metrics
	snap    *store.SnapshotStore
	ticks   *store.TickLog

	imbalance  *detectors.ImbalanceDetector
	exhaustion *detectors.ExhaustionDetector
	absorption *detectors.AbsorptionDetector
	divergence *detectors.DeltaDivergenceDetector
	unfinished *detectors.UnfinishedBusinessDetector

	regimeCounts map[types.Regime]int
	regimeMu     sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Dependencies groups the already-constructed subsystem clients Engine
// wires together. Each is built by the caller (main.go) from config so
// Engine itself stays free of config-parsing concerns.
type Dependencies struct {
	Feed      feed.Feed
	Broker    broker.Broker
	Notifier  *notify.Notifier
	Scheduler *scheduler.Scheduler
	Metrics   *metrics.Metrics
	Snapshot  *store.SnapshotStore
	TickLog   *store.TickLog
	Tiers     *tier.Manager
}

// New wires every subsystem. Resumed tier state, if any, should already be
// loaded into deps.Tiers by the caller.
func New(session types.TradingSession, inputsCfg regime.InputsConfig, detectorCfg regime.DetectorConfig, routerCfg router.Config, deps Dependencies, logger *slog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	log := logger.With("component", "engine")

	e := &Engine{
		session: session,
		logger:  log,

		feed:    deps.Feed,
		broker:  deps.Broker,
		agg:     aggregator.New(session.Symbol, session.Timeframe, 500),
		router:  router.New(routerCfg, inputsCfg, detectorCfg),
		exec:    execution.New(session, log),
		tiers:   deps.Tiers,
		notif:   deps.Notifier,
		sched:   deps.Scheduler,
		metrics: deps.Metrics,
		snap:    deps.Snapshot,
		ticks:   deps.TickLog,

		imbalance:  detectors.NewImbalanceDetector(),
		exhaustion: detectors.NewExhaustionDetector(),
		absorption: detectors.NewAbsorptionDetector(),
		divergence: detectors.NewDeltaDivergenceDetector(),
		unfinished: detectors.NewUnfinishedBusinessDetector(),

		regimeCounts: make(map[types.Regime]int),

		ctx:    ctx,
		cancel: cancel,
	}

	e.agg.OnBarComplete(e.onBar)
	e.exec.OnTrade(e.onTrade)
	e.exec.OnPosition(e.onPosition)
	if e.sched != nil {
		e.sched.OnFlatten(e.onAutoFlatten)
		e.sched.OnDigest(e.onDigest)
	}

	return e
}

// Start launches all background goroutines: the tick feed, the scheduler,
// and the tick-consumption loop.
func (e *Engine) Start() error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.feed.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("feed error", "error", err)
			if e.notif != nil {
				e.notif.AlertConnectionLost(e.ctx, err.Error())
			}
		}
	}()

	if e.sched != nil {
		e.sched.Start()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.consumeTicks()
	}()

	e.logger.Info("engine started", "symbol", e.session.Symbol, "mode", e.session.Mode)
	return nil
}

// Stop gracefully shuts down: cancels the context, flattens any open
// positions, persists a final snapshot, and waits for goroutines to exit.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")
	e.cancel()

	if e.sched != nil {
		e.sched.Stop()
	}

	trades := e.exec.CloseAllPositions(e.lastPrice(), types.ExitManual, time.Now())
	for _, tr := range trades {
		e.logger.Info("flattened on shutdown", "symbol", tr.Symbol, "pnl", tr.PnL)
	}

	if e.snap != nil {
		_ = e.snap.Save(e.buildSnapshot())
	}

	e.wg.Wait()
	_ = e.feed.Close()
	if e.ticks != nil {
		_ = e.ticks.Close()
	}

	e.logger.Info("shutdown complete")
}

func (e *Engine) lastPrice() decimal.Decimal {
	return e.exec.LastPrice()
}

// Statistics returns win rate, profit factor, and P&L extremes over every
// trade closed so far this session. Safe to call after Stop.
func (e *Engine) Statistics() execution.Statistics {
	return e.exec.Statistics()
}

// ExecutionState returns a point-in-time snapshot of the execution manager:
// halt status, open position/trade counts, and daily P&L.
func (e *Engine) ExecutionState() execution.State {
	return e.exec.State()
}

// TierState returns the current capital-tier state, or the zero value if no
// tier manager was wired in.
func (e *Engine) TierState() types.TierState {
	if e.tiers == nil {
		return types.TierState{}
	}
	return e.tiers.State()
}

func (e *Engine) consumeTicks() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case t, ok := <-e.feed.Ticks():
			if !ok {
				return
			}
			e.onTick(t)
		}
	}
}

func (e *Engine) onTick(t types.Tick) {
	if e.metrics != nil {
		e.metrics.TicksProcessed.Inc()
	}
	if e.ticks != nil {
		if err := e.ticks.AppendTick(t); err != nil {
			e.logger.Error("append tick to log", "error", err)
		}
	}

	e.agg.ProcessTick(t)
	e.exec.UpdatePrices(t.Price, t.Timestamp)

	if e.metrics != nil {
		state := e.exec.State()
		e.metrics.OpenPositions.Set(float64(state.OpenPositions))
		e.metrics.DailyPnL.Set(toFloat(state.DailyPnL))
		e.metrics.IsHalted.Set(boolToFloat(state.IsHalted))
	}
}

// onBar runs the full per-bar pipeline: detect, classify regime, route,
// size, execute.
func (e *Engine) onBar(bar *types.FootprintBar) {
	if e.metrics != nil {
		e.metrics.BarsCompleted.Inc()
	}
	if e.ticks != nil {
		if err := e.ticks.AppendBar(bar); err != nil {
			e.logger.Error("append bar to log", "error", err)
		}
	}

	e.router.OnBar(bar, bar.EndTime)

	var signals []types.Signal
	signals = append(signals, e.imbalance.Detect(bar)...)
	signals = append(signals, e.imbalance.DetectStackedImbalances(bar)...)
	signals = append(signals, e.exhaustion.Detect(bar)...)
	signals = append(signals, e.absorption.Detect(bar)...)
	signals = append(signals, e.divergence.AddBar(bar)...)
	signals = append(signals, e.unfinished.Detect(bar)...)
	signals = append(signals, e.unfinished.CheckRevisit(bar)...)

	state := e.router.State()
	e.regimeMu.Lock()
	e.regimeCounts[state.CurrentRegime]++
	e.regimeMu.Unlock()

	if e.metrics != nil {
		e.metrics.RegimeConfidence.Set(state.Confidence)
		e.metrics.SetRegime(string(state.CurrentRegime), []string{
			string(types.RegimeTrendingUp), string(types.RegimeTrendingDown),
			string(types.RegimeRanging), string(types.RegimeVolatile), string(types.RegimeNoTrade),
		})
	}

	for _, raw := range signals {
		if e.metrics != nil {
			e.metrics.SignalsDetected.WithLabelValues(string(raw.Pattern)).Inc()
		}

		evaluated := e.router.Evaluate(raw)
		if !evaluated.Approved {
			if e.metrics != nil {
				e.metrics.SignalsRejected.WithLabelValues(evaluated.RejectionReason).Inc()
			}
			continue
		}
		if e.metrics != nil {
			e.metrics.SignalsApproved.Inc()
		}

		multiplier := e.router.PositionSizeMultiplier()
		if e.tiers != nil {
			stacked := 0
			if evaluated.Pattern == types.PatternStackedBuyImbalance || evaluated.Pattern == types.PatternStackedSellImbalance {
				stacked = int(evaluated.Details["stack_size"])
			}
			tierSize := e.tiers.PositionSize(state.CurrentRegime, stacked, true)
			maxSize := e.session.MaxPositionSize
			if maxSize < 1 {
				maxSize = 1
			}
			multiplier *= float64(tierSize) / float64(maxSize)
		}

		order := e.exec.OnSignal(evaluated, multiplier, bar.EndTime)
		if order != nil && e.broker != nil {
			if err := e.broker.PlaceBracketOrder(e.ctx, order); err != nil {
				e.logger.Error("broker rejected bracket order", "error", err)
			}
		}
	}
}

func (e *Engine) onTrade(trade types.Trade) {
	if e.tiers != nil {
		e.tiers.RecordTrade(trade.PnL, trade.ExitTime)
	}
	if e.metrics != nil {
		e.metrics.TradesCompleted.Inc()
		if e.tiers != nil {
			e.metrics.AccountBalance.Set(toFloat(e.tiers.State().Balance))
		}
	}
	if e.notif != nil {
		e.notif.AlertTradeClosed(e.ctx, trade)
	}
	if e.snap != nil {
		// onTrade runs while the execution manager holds its lock, and
		// buildSnapshot reads that manager's state, so save from a separate
		// goroutine that waits for the lock to be released.
		go func() { _ = e.snap.Save(e.buildSnapshot()) }()
	}
}

func (e *Engine) onPosition(pos types.Position) {
	if e.notif != nil {
		e.notif.AlertTradeOpened(e.ctx, pos)
	}
}

func (e *Engine) onAutoFlatten() {
	trades := e.exec.CloseAllPositions(e.lastPrice(), types.ExitAutoFlatten, time.Now())
	e.logger.Info("auto-flatten complete", "positions_closed", len(trades))
}

func (e *Engine) onDigest() {
	if e.notif == nil {
		return
	}

	stats := e.exec.Statistics()
	state := e.exec.State()

	e.regimeMu.Lock()
	breakdown := make(map[types.Regime]int, len(e.regimeCounts))
	for k, v := range e.regimeCounts {
		breakdown[k] = v
	}
	e.regimeMu.Unlock()

	balance := stats.TotalPnL
	if e.tiers != nil {
		balance = e.tiers.State().Balance
	}

	digest := notify.Digest{
		Date:            time.Now().Format("2006-01-02"),
		StartingBalance: e.session.PaperStartingBalance,
		EndingBalance:   balance,
		DayPnL:          state.DailyPnL,
		Trades:          state.CompletedTrades,
		Wins:            state.WinCount,
		Losses:          state.LossCount,
		WinRate:         stats.WinRate * 100,
		RegimeBreakdown: breakdown,
		CurrentPosition: fmt.Sprintf("%d open", state.OpenPositions),
	}
	e.notif.AlertDailyDigest(e.ctx, digest)
}

func (e *Engine) buildSnapshot() store.Snapshot {
	state := e.exec.State()
	snap := store.Snapshot{
		Symbol:        e.session.Symbol,
		DailyPnL:      state.DailyPnL,
		IsHalted:      state.IsHalted,
		HaltReason:    state.HaltReason,
		OpenPositions: e.exec.Positions(),
		Trades:        e.exec.Trades(),
	}
	if e.tiers != nil {
		snap.Tier = e.tiers.State()
	}
	return snap
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
