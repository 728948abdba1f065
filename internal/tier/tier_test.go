package tier

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewManagerStartsAtTier1(t *testing.T) {
	t.Parallel()

	m := NewManager(decimal.NewFromInt(2500), nil, testLogger(), nil)
	state := m.State()

	if state.TierName != Ladder[0].Name {
		t.Errorf("TierName = %q, want %q", state.TierName, Ladder[0].Name)
	}
	if state.Instrument != "MES" {
		t.Errorf("Instrument = %q, want MES", state.Instrument)
	}
}

func TestRecordTradeCrossesTierBoundaryUp(t *testing.T) {
	t.Parallel()

	var changes []Change
	m := NewManager(decimal.NewFromInt(3400), nil, testLogger(), func(c Change) {
		changes = append(changes, c)
	})

	m.RecordTrade(decimal.NewFromInt(200), time.Now())

	state := m.State()
	if state.TierName != Ladder[1].Name {
		t.Fatalf("TierName = %q, want %q", state.TierName, Ladder[1].Name)
	}
	if state.Instrument != "ES" {
		t.Errorf("Instrument = %q, want ES", state.Instrument)
	}
	if len(changes) != 1 {
		t.Fatalf("len(changes) = %d, want 1", len(changes))
	}
	if changes[0].FromTier != 0 || changes[0].ToTier != 1 {
		t.Errorf("change = %+v, want from 0 to 1", changes[0])
	}
}

func TestRecordTradeCrossesTierBoundaryDown(t *testing.T) {
	t.Parallel()

	m := NewManager(decimal.NewFromInt(3600), nil, testLogger(), nil)
	m.RecordTrade(decimal.NewFromInt(-200), time.Now())

	state := m.State()
	if state.TierName != Ladder[0].Name {
		t.Errorf("TierName = %q, want %q", state.TierName, Ladder[0].Name)
	}
}

func TestRecordTradeUpdatesStreaks(t *testing.T) {
	t.Parallel()

	m := NewManager(decimal.NewFromInt(2500), nil, testLogger(), nil)
	now := time.Now()

	m.RecordTrade(decimal.NewFromInt(50), now)
	m.RecordTrade(decimal.NewFromInt(50), now)
	if state := m.State(); state.WinStreak != 2 || state.LossStreak != 0 {
		t.Fatalf("after two wins: WinStreak=%d LossStreak=%d, want 2/0", state.WinStreak, state.LossStreak)
	}

	m.RecordTrade(decimal.NewFromInt(-50), now)
	if state := m.State(); state.WinStreak != 0 || state.LossStreak != 1 {
		t.Fatalf("after a loss: WinStreak=%d LossStreak=%d, want 0/1", state.WinStreak, state.LossStreak)
	}
}

func TestPositionSizeFlatWhenScalingDisabled(t *testing.T) {
	t.Parallel()

	// Tier 2 (3500-5000) has ScalingEnabled = false.
	m := NewManager(decimal.NewFromInt(4000), nil, testLogger(), nil)
	size := m.PositionSize(types.RegimeTrendingUp, 3, true)
	if size != 1 {
		t.Errorf("PositionSize() with scaling disabled = %d, want 1", size)
	}
}

func TestPositionSizeAdditiveBonusesClampToMax(t *testing.T) {
	t.Parallel()

	// Tier 1 (0-3500): MaxContracts 3, scaling enabled.
	m := NewManager(decimal.NewFromInt(2500), nil, testLogger(), nil)
	now := time.Now()
	m.RecordTrade(decimal.NewFromInt(10), now)
	m.RecordTrade(decimal.NewFromInt(10), now)
	m.RecordTrade(decimal.NewFromInt(10), now) // win streak 3

	size := m.PositionSize(types.RegimeTrendingUp, 2, true)
	if size != 3 {
		t.Errorf("PositionSize() = %d, want 3 (clamped at MaxContracts)", size)
	}
}

func TestPositionSizeLossStreakReducesSize(t *testing.T) {
	t.Parallel()

	m := NewManager(decimal.NewFromInt(2500), nil, testLogger(), nil)
	now := time.Now()
	m.RecordTrade(decimal.NewFromInt(-10), now)
	m.RecordTrade(decimal.NewFromInt(-10), now) // loss streak 2

	size := m.PositionSize(types.RegimeRanging, 1, true)
	if size != 1 {
		t.Errorf("PositionSize() with loss streak = %d, want 1 (base - 1 clamped at min)", size)
	}
}

func TestShouldHaltAtDailyLossLimit(t *testing.T) {
	t.Parallel()

	m := NewManager(decimal.NewFromInt(2500), nil, testLogger(), nil)
	if m.ShouldHalt(decimal.NewFromInt(-50)) {
		t.Errorf("ShouldHalt(-50) = true, want false (limit is -100)")
	}
	if !m.ShouldHalt(decimal.NewFromInt(-100)) {
		t.Errorf("ShouldHalt(-100) = false, want true")
	}
}

func TestStartSessionResetsSessionTracking(t *testing.T) {
	t.Parallel()

	m := NewManager(decimal.NewFromInt(2500), nil, testLogger(), nil)
	m.RecordTrade(decimal.NewFromInt(50), time.Now())

	state := m.StartSession(time.Now())
	if !state.SessionPnL.IsZero() {
		t.Errorf("SessionPnL after StartSession = %v, want 0", state.SessionPnL)
	}
	if !state.SessionStartBalance.Equal(decimal.NewFromInt(2550)) {
		t.Errorf("SessionStartBalance = %v, want 2550", state.SessionStartBalance)
	}
}

func TestSetBalanceIgnoresTinyChanges(t *testing.T) {
	t.Parallel()

	var changes []Change
	m := NewManager(decimal.NewFromInt(3499), nil, testLogger(), func(c Change) {
		changes = append(changes, c)
	})

	m.SetBalance(decimal.NewFromFloat(3499.005), time.Now())
	if len(changes) != 0 {
		t.Errorf("tiny balance change triggered %d tier changes, want 0", len(changes))
	}

	m.SetBalance(decimal.NewFromInt(3600), time.Now())
	if len(changes) != 1 {
		t.Errorf("crossing balance change triggered %d tier changes, want 1", len(changes))
	}
}

func TestNewManagerResumesFromPersistedState(t *testing.T) {
	t.Parallel()

	resumed := &types.TierState{
		Balance:        decimal.NewFromInt(8000),
		TierIndex:      3,
		TierName:       Ladder[3].Name,
		Instrument:     "ES",
		MaxContracts:   3,
		DailyLossLimit: decimal.NewFromInt(-500),
		ScalingEnabled: true,
		WinStreak:      2,
	}
	m := NewManager(decimal.Zero, resumed, testLogger(), nil)

	state := m.State()
	if state.TierIndex != 3 || state.WinStreak != 2 {
		t.Errorf("resumed state = %+v, want tier 3 / win streak 2", state)
	}
}
