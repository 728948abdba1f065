package execution

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

func paperSession() types.TradingSession {
	return types.TradingSession{
		Mode:                 types.ModePaper,
		Symbol:               "ES",
		DailyProfitTarget:    decimal.NewFromInt(1000),
		DailyLossLimit:       decimal.NewFromInt(-1000),
		MaxPositionSize:      2,
		MaxConcurrentTrades:  5,
		StopLossTicks:        16,
		TakeProfitTicks:      24,
		PaperStartingBalance: decimal.NewFromInt(10000),
		BypassTradingHours:   true,
	}
}

func approvedSignal(price float64, dir types.Direction) types.Signal {
	return types.Signal{
		Timestamp: time.Now(),
		Symbol:    "ES",
		Direction: dir,
		Price:     decimal.NewFromFloat(price),
		Approved:  true,
	}
}

func TestOnSignalOpensPaperPosition(t *testing.T) {
	t.Parallel()

	m := New(paperSession(), testLogger())
	order := m.OnSignal(approvedSignal(5000, types.Long), 1.0, time.Now())
	if order == nil {
		t.Fatalf("OnSignal() = nil, want a bracket order")
	}
	if !order.IsFilled {
		t.Errorf("paper order IsFilled = false, want true")
	}
	if m.State().OpenPositions != 1 {
		t.Errorf("OpenPositions = %d, want 1", m.State().OpenPositions)
	}
}

func TestOnSignalRejectsWhenHalted(t *testing.T) {
	t.Parallel()

	m := New(paperSession(), testLogger())
	m.halt("test halt")
	if order := m.OnSignal(approvedSignal(5000, types.Long), 1.0, time.Now()); order != nil {
		t.Errorf("OnSignal() while halted = %+v, want nil", order)
	}
}

func TestUpdatePricesClosesOnStopBreach(t *testing.T) {
	t.Parallel()

	m := New(paperSession(), testLogger())
	m.OnSignal(approvedSignal(5000, types.Long), 1.0, time.Now())

	// Drive price straight through the stop (4996) in one tick; the position
	// must close.
	m.UpdatePrices(decimal.NewFromFloat(4990), time.Now())

	state := m.State()
	if state.OpenPositions != 0 {
		t.Fatalf("OpenPositions after stop breach = %d, want 0", state.OpenPositions)
	}
	if state.CompletedTrades != 1 {
		t.Fatalf("CompletedTrades = %d, want 1", state.CompletedTrades)
	}
}

func TestUpdatePricesConservativeFillRequiresPriceBeyondTarget(t *testing.T) {
	t.Parallel()

	session := paperSession()
	session.ConservativeFills = true
	m := New(session, testLogger())
	m.OnSignal(approvedSignal(5000, types.Long), 1.0, time.Now())

	target := decimal.NewFromFloat(5000).Add(decimal.NewFromFloat(24 * 0.25))

	// Exactly at target: should NOT fill under conservative rules.
	m.UpdatePrices(target, time.Now())
	if m.State().OpenPositions != 1 {
		t.Fatalf("conservative fill triggered exactly at target, want still open")
	}

	// One tick beyond: should fill.
	m.UpdatePrices(target.Add(decimal.NewFromFloat(0.25)), time.Now())
	if m.State().OpenPositions != 0 {
		t.Fatalf("conservative fill did not trigger one tick beyond target")
	}
}

func TestCloseAllPositionsBooksTrades(t *testing.T) {
	t.Parallel()

	m := New(paperSession(), testLogger())
	m.OnSignal(approvedSignal(5000, types.Long), 1.0, time.Now())
	m.OnSignal(approvedSignal(5001, types.Short), 1.0, time.Now())

	trades := m.CloseAllPositions(decimal.NewFromFloat(5000.5), types.ExitManual, time.Now())
	if len(trades) != 2 {
		t.Fatalf("CloseAllPositions() returned %d trades, want 2", len(trades))
	}
	if m.State().OpenPositions != 0 {
		t.Errorf("OpenPositions after CloseAllPositions = %d, want 0", m.State().OpenPositions)
	}
}

func TestStatisticsEmptyBeforeAnyTrade(t *testing.T) {
	t.Parallel()

	m := New(paperSession(), testLogger())
	stats := m.Statistics()
	if stats.TotalTrades != 0 || stats.WinRate != 0 {
		t.Errorf("Statistics() before trades = %+v, want zero value", stats)
	}
}
