// Package execution turns approved signals into bracket orders, tracks open
// positions and the trades that close them, and enforces the session's
// daily P&L halt limits.
package execution

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"orderflow-engine/internal/constants"
	"orderflow-engine/pkg/types"
)

// TradeCallback is invoked after a position closes.
type TradeCallback func(types.Trade)

// PositionCallback is invoked after a new position opens.
type PositionCallback func(types.Position)

// Manager owns the live set of bracket orders, open positions, and
// completed trades for one trading session. All mutation is guarded by a
// single mutex — call volume here is bar/tick-rate, not hot enough to need
// finer-grained locking.
type Manager struct {
	mu sync.Mutex

	logger *slog.Logger

	session   types.TradingSession
	symbol    string
	tickSize  decimal.Decimal
	tickValue decimal.Decimal

	dailyPnL      decimal.Decimal
	lastPrice     decimal.Decimal
	openPositions []*types.Position
	pendingOrders []*types.BracketOrder
	trades        []types.Trade

	isHalted  bool
	haltReason string

	paperBalance decimal.Decimal

	tradeCallbacks    []TradeCallback
	positionCallbacks []PositionCallback
}

// New creates a Manager for the given session, deriving tick size/value
// from the session's symbol via the shared constants table.
func New(session types.TradingSession, logger *slog.Logger) *Manager {
	m := &Manager{
		logger:    logger.With("component", "execution"),
		session:   session,
		symbol:    session.Symbol,
		tickSize:  constants.TickSizeFor(session.Symbol),
		tickValue: constants.TickValueFor(session.Symbol),
	}
	if session.Mode == types.ModePaper {
		m.paperBalance = session.PaperStartingBalance
	}
	return m
}

// OnTrade registers a callback invoked when a position closes.
func (m *Manager) OnTrade(cb TradeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tradeCallbacks = append(m.tradeCallbacks, cb)
}

// OnPosition registers a callback invoked when a position opens.
func (m *Manager) OnPosition(cb PositionCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionCallbacks = append(m.positionCallbacks, cb)
}

// OnSignal processes an approved signal into a bracket order. Returns nil
// (no order) if halted, unapproved, over any session limit, or outside
// trading hours. regimeMultiplier scales the session's base position size.
func (m *Manager) OnSignal(signal types.Signal, regimeMultiplier float64, now time.Time) *types.BracketOrder {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isHalted {
		m.logger.Info("signal rejected: session halted", "reason", m.haltReason)
		return nil
	}
	if !signal.Approved {
		m.logger.Debug("signal not approved", "reason", signal.RejectionReason)
		return nil
	}

	if m.dailyPnL.GreaterThanOrEqual(m.session.DailyProfitTarget) {
		m.halt("daily profit target reached")
		return nil
	}
	if m.dailyPnL.LessThanOrEqual(m.session.DailyLossLimit) {
		m.halt("daily loss limit reached")
		return nil
	}

	if len(m.openPositions) >= m.session.MaxConcurrentTrades {
		m.logger.Debug("max concurrent trades reached")
		return nil
	}

	if !m.session.BypassTradingHours && !isWithinTradingHours(now, m.session) {
		m.logger.Debug("outside trading hours")
		return nil
	}

	size := int(float64(m.session.MaxPositionSize) * regimeMultiplier)
	if size < 1 {
		size = 1
	}

	order := m.createBracketOrder(signal, size)

	if m.session.Mode == types.ModePaper {
		m.simulateFill(order, now)
	} else {
		m.pendingOrders = append(m.pendingOrders, order)
	}
	return order
}

func isWithinTradingHours(now time.Time, session types.TradingSession) bool {
	if session.SessionOpen.IsZero() || session.SessionEnd.IsZero() {
		return true
	}
	return !now.Before(session.SessionOpen) && !now.After(session.SessionEnd)
}

func (m *Manager) createBracketOrder(signal types.Signal, size int) *types.BracketOrder {
	entry := signal.Price
	var stop, target decimal.Decimal

	stopDist := m.tickSize.Mul(decimal.NewFromInt(int64(m.session.StopLossTicks)))
	targetDist := m.tickSize.Mul(decimal.NewFromInt(int64(m.session.TakeProfitTicks)))

	if signal.Direction == types.Long {
		stop = entry.Sub(stopDist)
		target = entry.Add(targetDist)
	} else {
		stop = entry.Add(stopDist)
		target = entry.Sub(targetDist)
	}

	return &types.BracketOrder{
		BracketID:   uuid.NewString()[:8],
		SignalID:    uuid.NewString(),
		Symbol:      m.symbol,
		Side:        signal.Direction,
		Size:        size,
		EntryPrice:  entry,
		StopPrice:   stop,
		TargetPrice: target,
		CreatedAt:   signal.Timestamp,
	}
}

func (m *Manager) simulateFill(order *types.BracketOrder, now time.Time) {
	position := &types.Position{
		PositionID:  uuid.NewString()[:8],
		BracketID:   order.BracketID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Size:        order.Size,
		EntryPrice:  order.EntryPrice,
		EntryTime:   now,
		CurrentPrice: order.EntryPrice,
		StopPrice:   order.StopPrice,
		TargetPrice: order.TargetPrice,
		TickSize:    m.tickSize,
		TickValue:   m.tickValue,
	}

	m.openPositions = append(m.openPositions, position)
	order.IsActive = true
	order.IsFilled = true

	m.logger.Info("paper fill",
		"side", order.Side, "size", order.Size, "symbol", order.Symbol,
		"entry", order.EntryPrice, "stop", order.StopPrice, "target", order.TargetPrice)

	for _, cb := range m.positionCallbacks {
		cb(*position)
	}
}

// UpdatePrices marks every open position to currentPrice and closes any
// that hit their stop or target. Stop is checked before target (the order
// the original evaluates them in). When the session is configured for
// conservative fills, a target only fills once price trades strictly past
// it, simulating being last in the fill queue at that level.
func (m *Manager) UpdatePrices(currentPrice decimal.Decimal, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastPrice = currentPrice

	if len(m.openPositions) == 0 {
		return
	}

	conservative := m.session.ConservativeFills

	for _, position := range append([]*types.Position(nil), m.openPositions...) {
		position.UpdatePnL(currentPrice)

		switch {
		case position.Side == types.Long && currentPrice.LessThanOrEqual(position.StopPrice):
			m.closePosition(position, position.StopPrice, types.ExitStop, now)
		case position.Side == types.Short && currentPrice.GreaterThanOrEqual(position.StopPrice):
			m.closePosition(position, position.StopPrice, types.ExitStop, now)
		case position.Side == types.Long:
			if conservative {
				if currentPrice.GreaterThan(position.TargetPrice) {
					m.closePosition(position, position.TargetPrice, types.ExitTarget, now)
				}
			} else if currentPrice.GreaterThanOrEqual(position.TargetPrice) {
				m.closePosition(position, position.TargetPrice, types.ExitTarget, now)
			}
		case position.Side == types.Short:
			if conservative {
				if currentPrice.LessThan(position.TargetPrice) {
					m.closePosition(position, position.TargetPrice, types.ExitTarget, now)
				}
			} else if currentPrice.LessThanOrEqual(position.TargetPrice) {
				m.closePosition(position, position.TargetPrice, types.ExitTarget, now)
			}
		}
	}
}

// closePosition removes position from the open set, books a Trade, updates
// daily P&L, and checks whether the close crossed a halt threshold.
// Precondition: m.mu held by caller.
func (m *Manager) closePosition(position *types.Position, exitPrice decimal.Decimal, reason types.ExitReason, now time.Time) types.Trade {
	diff := exitPrice.Sub(position.EntryPrice)
	if position.Side == types.Short {
		diff = diff.Neg()
	}

	tickSize := position.TickSize
	tickValue := position.TickValue

	ticksExact, _ := diff.Div(tickSize).Float64()
	pnlTicks := int64(math.Floor(ticksExact))
	pnl := decimal.NewFromInt(pnlTicks).Mul(tickValue).Mul(decimal.NewFromInt(int64(position.Size)))

	trade := types.Trade{
		Symbol:     position.Symbol,
		Side:       position.Side,
		Size:       position.Size,
		EntryPrice: position.EntryPrice,
		EntryTime:  position.EntryTime,
		ExitPrice:  exitPrice,
		ExitTime:   now,
		ExitReason: reason,
		PnL:        pnl,
		PnLTicks:   pnlTicks,
	}

	m.dailyPnL = m.dailyPnL.Add(pnl)
	m.trades = append(m.trades, trade)
	m.removePosition(position)

	if m.session.Mode == types.ModePaper {
		m.paperBalance = m.paperBalance.Add(pnl)
	}

	m.logger.Info("position closed",
		"reason", reason, "side", trade.Side, "size", trade.Size, "symbol", trade.Symbol,
		"exit_price", exitPrice, "pnl", pnl, "pnl_ticks", pnlTicks)

	if m.dailyPnL.GreaterThanOrEqual(m.session.DailyProfitTarget) {
		m.halt("daily profit target reached")
	} else if m.dailyPnL.LessThanOrEqual(m.session.DailyLossLimit) {
		m.halt("daily loss limit reached")
	}

	for _, cb := range m.tradeCallbacks {
		cb(trade)
	}
	return trade
}

func (m *Manager) removePosition(position *types.Position) {
	for i, p := range m.openPositions {
		if p == position {
			m.openPositions = append(m.openPositions[:i], m.openPositions[i+1:]...)
			return
		}
	}
}

// CloseAllPositions force-closes every open position at currentPrice.
func (m *Manager) CloseAllPositions(currentPrice decimal.Decimal, reason types.ExitReason, now time.Time) []types.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()

	var trades []types.Trade
	for _, position := range append([]*types.Position(nil), m.openPositions...) {
		trades = append(trades, m.closePosition(position, currentPrice, reason, now))
	}
	return trades
}

func (m *Manager) halt(reason string) {
	m.isHalted = true
	m.haltReason = reason
	m.logger.Warn("trading halted", "reason", reason)
}

// Resume clears the halt flag unless a daily limit is still breached.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dailyPnL.GreaterThanOrEqual(m.session.DailyProfitTarget) {
		m.logger.Warn("cannot resume: profit target reached")
		return
	}
	if m.dailyPnL.LessThanOrEqual(m.session.DailyLossLimit) {
		m.logger.Warn("cannot resume: loss limit reached")
		return
	}

	m.isHalted = false
	m.haltReason = ""
	m.logger.Info("trading resumed")
}

// UpdateSymbol switches the manager to a new symbol and recomputes tick info.
func (m *Manager) UpdateSymbol(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.symbol = symbol
	m.session.Symbol = symbol
	m.tickSize = constants.TickSizeFor(symbol)
	m.tickValue = constants.TickValueFor(symbol)
	m.logger.Info("symbol updated", "symbol", symbol, "tick_size", m.tickSize, "tick_value", m.tickValue)
}

// IsHalted reports whether the session is currently halted.
func (m *Manager) IsHalted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isHalted
}

// Positions returns a copy of every currently open position, for snapshotting.
func (m *Manager) Positions() []types.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.Position, len(m.openPositions))
	for i, p := range m.openPositions {
		out[i] = *p
	}
	return out
}

// Trades returns a copy of every trade closed so far this session, for snapshotting.
func (m *Manager) Trades() []types.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.Trade, len(m.trades))
	copy(out, m.trades)
	return out
}

// LastPrice returns the most recent price UpdatePrices observed, or zero if
// no tick has been processed yet.
func (m *Manager) LastPrice() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrice
}

// State is a snapshot of the manager's live session status.
type State struct {
	Mode            types.SessionMode
	Symbol          string
	DailyPnL        decimal.Decimal
	IsHalted        bool
	HaltReason      string
	OpenPositions   int
	CompletedTrades int
	WinCount        int
	LossCount       int
	PaperBalance    decimal.Decimal
}

// State returns a point-in-time snapshot.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	var wins, losses int
	for _, t := range m.trades {
		if t.PnL.IsPositive() {
			wins++
		} else {
			losses++
		}
	}

	return State{
		Mode:            m.session.Mode,
		Symbol:          m.symbol,
		DailyPnL:        m.dailyPnL,
		IsHalted:        m.isHalted,
		HaltReason:      m.haltReason,
		OpenPositions:   len(m.openPositions),
		CompletedTrades: len(m.trades),
		WinCount:        wins,
		LossCount:       losses,
		PaperBalance:    m.paperBalance,
	}
}

// Statistics summarizes closed-trade performance.
type Statistics struct {
	TotalTrades  int
	WinRate      float64
	TotalPnL     decimal.Decimal
	AverageWin   decimal.Decimal
	AverageLoss  decimal.Decimal
	ProfitFactor float64
	LargestWin   decimal.Decimal
	LargestLoss  decimal.Decimal
}

// Statistics computes win rate, profit factor, and win/loss extremes over
// all trades closed so far this session.
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.trades) == 0 {
		return Statistics{}
	}

	var wins, losses []types.Trade
	for _, t := range m.trades {
		if t.PnL.IsPositive() {
			wins = append(wins, t)
		} else {
			losses = append(losses, t)
		}
	}

	totalWins := decimal.Zero
	for _, t := range wins {
		totalWins = totalWins.Add(t.PnL)
	}
	totalLosses := decimal.Zero
	for _, t := range losses {
		totalLosses = totalLosses.Add(t.PnL)
	}
	totalLosses = totalLosses.Abs()

	stats := Statistics{
		TotalTrades: len(m.trades),
		WinRate:     float64(len(wins)) / float64(len(m.trades)),
		TotalPnL:    m.dailyPnL,
	}

	if len(wins) > 0 {
		stats.AverageWin = totalWins.Div(decimal.NewFromInt(int64(len(wins))))
		stats.LargestWin = wins[0].PnL
		for _, t := range wins {
			if t.PnL.GreaterThan(stats.LargestWin) {
				stats.LargestWin = t.PnL
			}
		}
	}
	if len(losses) > 0 {
		stats.AverageLoss = totalLosses.Div(decimal.NewFromInt(int64(len(losses))))
		stats.LargestLoss = losses[0].PnL
		for _, t := range losses {
			if t.PnL.LessThan(stats.LargestLoss) {
				stats.LargestLoss = t.PnL
			}
		}
	}

	if totalLosses.IsPositive() {
		ratio, _ := totalWins.Div(totalLosses).Float64()
		stats.ProfitFactor = ratio
	} else if totalWins.IsPositive() {
		stats.ProfitFactor = math.Inf(1)
	}

	return stats
}
