// Package tier implements the progressive capital-tier ladder: position
// sizing and instrument selection scale automatically with account balance.
package tier

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/pkg/types"
)

// Definition is one rung of the tier ladder.
type Definition struct {
	Name            string
	MinBalance      decimal.Decimal
	MaxBalance      decimal.Decimal // exclusive upper bound; the last tier uses a very large sentinel
	Instrument      string
	BaseContracts   int
	MaxContracts    int
	DailyLossLimit  decimal.Decimal
	ScalingEnabled  bool
}

// noUpperBound stands in for the original's float('inf') on the top tier.
var noUpperBound = decimal.New(1, 15)

// Ladder is the five-tier progression, ported from TIERS.
var Ladder = []Definition{
	{
		Name:           "Tier 1: MES Building",
		MinBalance:     decimal.NewFromInt(0),
		MaxBalance:     decimal.NewFromInt(3500),
		Instrument:     "MES",
		BaseContracts:  1,
		MaxContracts:   3,
		DailyLossLimit: decimal.NewFromInt(-100),
		ScalingEnabled: true,
	},
	{
		Name:           "Tier 2: ES Entry",
		MinBalance:     decimal.NewFromInt(3500),
		MaxBalance:     decimal.NewFromInt(5000),
		Instrument:     "ES",
		BaseContracts:  1,
		MaxContracts:   1,
		DailyLossLimit: decimal.NewFromInt(-400),
		ScalingEnabled: false,
	},
	{
		Name:           "Tier 3: ES Growth",
		MinBalance:     decimal.NewFromInt(5000),
		MaxBalance:     decimal.NewFromInt(7500),
		Instrument:     "ES",
		BaseContracts:  1,
		MaxContracts:   2,
		DailyLossLimit: decimal.NewFromInt(-400),
		ScalingEnabled: true,
	},
	{
		Name:           "Tier 4: ES Scaling",
		MinBalance:     decimal.NewFromInt(7500),
		MaxBalance:     decimal.NewFromInt(10000),
		Instrument:     "ES",
		BaseContracts:  1,
		MaxContracts:   3,
		DailyLossLimit: decimal.NewFromInt(-500),
		ScalingEnabled: true,
	},
	{
		Name:           "Tier 5: ES Full",
		MinBalance:     decimal.NewFromInt(10000),
		MaxBalance:     noUpperBound,
		Instrument:     "ES",
		BaseContracts:  1,
		MaxContracts:   3,
		DailyLossLimit: decimal.NewFromInt(-500),
		ScalingEnabled: true,
	},
}

// Change records one tier transition for history/notification.
type Change struct {
	At             time.Time
	FromTier       int
	ToTier         int
	FromInstrument string
	ToInstrument   string
	Balance        decimal.Decimal
}

// ChangeCallback is invoked whenever record-trade or balance updates cross a
// tier boundary; it may be nil.
type ChangeCallback func(Change)

// Manager owns live TierState and evaluates it against Ladder.
// Persistence is the caller's responsibility (internal/store); Manager
// itself holds only in-memory state plus hooks to observe changes.
type Manager struct {
	mu     sync.Mutex
	logger *slog.Logger

	state   types.TierState
	changes []Change

	onChange ChangeCallback
}

// NewManager creates a manager seeded at startingBalance, or resumes from
// a previously persisted state when resumed is non-nil.
func NewManager(startingBalance decimal.Decimal, resumed *types.TierState, logger *slog.Logger, onChange ChangeCallback) *Manager {
	m := &Manager{logger: logger.With("component", "tier"), onChange: onChange}

	if resumed != nil {
		m.state = *resumed
		m.logger.Info("loaded tier state", "tier", m.state.TierName, "balance", m.state.Balance)
		return m
	}

	m.state = types.TierState{Balance: startingBalance, TierIndex: 0, TierName: Ladder[0].Name, Instrument: Ladder[0].Instrument, MaxContracts: Ladder[0].MaxContracts, DailyLossLimit: Ladder[0].DailyLossLimit, ScalingEnabled: Ladder[0].ScalingEnabled}
	m.updateTier(time.Now())
	m.logger.Info("initialized tier state", "tier", m.state.TierName, "balance", m.state.Balance)
	return m
}

// updateTier re-derives tier fields from the current balance, recording and
// reporting a Change if the tier index moved. Precondition: m.mu held.
func (m *Manager) updateTier(now time.Time) bool {
	oldIndex := m.state.TierIndex
	oldInstrument := m.state.Instrument

	for i, def := range Ladder {
		if !m.state.Balance.LessThan(def.MinBalance) && m.state.Balance.LessThan(def.MaxBalance) {
			m.state.TierIndex = i
			m.state.TierName = def.Name
			m.state.Instrument = def.Instrument
			m.state.MaxContracts = def.MaxContracts
			m.state.DailyLossLimit = def.DailyLossLimit
			m.state.ScalingEnabled = def.ScalingEnabled
			break
		}
	}

	if m.state.TierIndex == oldIndex {
		return false
	}

	change := Change{
		At:             now,
		FromTier:       oldIndex,
		ToTier:         m.state.TierIndex,
		FromInstrument: oldInstrument,
		ToInstrument:   m.state.Instrument,
		Balance:        m.state.Balance,
	}
	m.changes = append(m.changes, change)

	direction := "up"
	if m.state.TierIndex < oldIndex {
		direction = "down"
	}
	m.logger.Info("tier change", "direction", direction, "from", Ladder[oldIndex].Name, "to", m.state.TierName, "balance", m.state.Balance)

	if m.onChange != nil {
		m.onChange(change)
	}
	return true
}

// StartSession resets session tracking (start balance, session P&L) and
// re-checks tier in case balance moved between sessions.
func (m *Manager) StartSession(now time.Time) types.TierState {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.SessionStartBalance = m.state.Balance
	m.state.SessionPnL = decimal.Zero
	m.updateTier(now)
	return m.state
}

// EndSession finalizes session state and reports whether a tier change
// occurred this session.
func (m *Manager) EndSession(now time.Time) (types.TierState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := m.updateTier(now)
	return m.state, changed
}

// RecordTrade applies a closed trade's P&L to the running balance, updates
// win/loss streaks, and re-checks tier boundaries.
func (m *Manager) RecordTrade(pnl decimal.Decimal, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Balance = m.state.Balance.Add(pnl)
	m.state.SessionPnL = m.state.SessionPnL.Add(pnl)

	switch {
	case pnl.IsPositive():
		m.state.WinStreak++
		m.state.LossStreak = 0
	case pnl.IsNegative():
		m.state.LossStreak++
		m.state.WinStreak = 0
	}

	m.updateTier(now)
}

// PositionSize computes contract count using the combined/additive sizing
// rule: base 1, +1 for 2+ stacked signals, +1 in a trending regime, +1 on a
// 3+ win streak, -1 on a 2+ loss streak, clamped to [1, MaxContracts].
// Scaling-disabled tiers always return 1.
func (m *Manager) PositionSize(regime types.Regime, stackedCount int, useStreaks bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.ScalingEnabled {
		return 1
	}

	size := 1
	if stackedCount >= 2 {
		size++
	}
	if regime == types.RegimeTrendingUp || regime == types.RegimeTrendingDown {
		size++
	}
	if useStreaks {
		switch {
		case m.state.WinStreak >= 3:
			size++
		case m.state.LossStreak >= 2:
			size--
		}
	}

	if size < 1 {
		size = 1
	}
	if size > m.state.MaxContracts {
		size = m.state.MaxContracts
	}
	return size
}

// ShouldHalt reports whether sessionPnL has breached the current tier's
// daily loss limit.
func (m *Manager) ShouldHalt(sessionPnL decimal.Decimal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sessionPnL.LessThanOrEqual(m.state.DailyLossLimit)
}

// State returns a copy of the current tier state.
func (m *Manager) State() types.TierState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetBalance overrides balance directly (e.g. reconciled from a broker
// account query) and re-checks tier boundaries if it moved meaningfully.
func (m *Manager) SetBalance(balance decimal.Decimal, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.state.Balance
	m.state.Balance = balance

	if old.Sub(balance).Abs().GreaterThan(decimal.NewFromFloat(0.01)) {
		m.logger.Info("balance updated", "from", old, "to", balance)
		m.updateTier(now)
	}
}
