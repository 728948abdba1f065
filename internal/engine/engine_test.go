package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/internal/broker"
	"orderflow-engine/internal/feed"
	"orderflow-engine/internal/regime"
	"orderflow-engine/internal/router"
	"orderflow-engine/internal/tier"
	"orderflow-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSession() types.TradingSession {
	return types.TradingSession{
		Mode:                 types.ModePaper,
		Symbol:               "ES",
		Timeframe:            time.Minute,
		DailyProfitTarget:    decimal.NewFromInt(1000),
		DailyLossLimit:       decimal.NewFromInt(-1000),
		MaxPositionSize:      2,
		MaxConcurrentTrades:  3,
		StopLossTicks:        16,
		TakeProfitTicks:      24,
		PaperStartingBalance: decimal.NewFromInt(10000),
		BypassTradingHours:   true,
	}
}

func sampleTicks(n int, start time.Time) []types.Tick {
	ticks := make([]types.Tick, 0, n)
	price := decimal.NewFromInt(5000)
	for i := 0; i < n; i++ {
		side := types.Ask
		if i%2 == 0 {
			side = types.Bid
		}
		ticks = append(ticks, types.Tick{
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Symbol:    "ES",
			Price:     price,
			Volume:    10,
			Side:      side,
		})
	}
	return ticks
}

func newTestEngine(t *testing.T, ticks []types.Tick) *Engine {
	t.Helper()

	f := feed.NewHistorical(ticks, false)
	b := broker.NewPaper(testLogger())

	deps := Dependencies{
		Feed:   f,
		Broker: b,
	}

	return New(testSession(), regime.DefaultInputsConfig(), regime.DefaultDetectorConfig(), router.DefaultConfig(), deps, testLogger())
}

func TestStartAndStopDrainsHistoricalFeed(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(t, sampleTicks(20, start))

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	e.Stop()
}

func TestOnDigestNoopWithoutNotifier(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	e.onDigest() // must not panic with nil notifier
}

func TestOnAutoFlattenClosesNoPositionsCleanly(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	e.onAutoFlatten() // no open positions; must not panic
}

func TestBuildSnapshotIncludesTierState(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	e.tiers = tier.NewManager(decimal.NewFromInt(2500), nil, testLogger(), nil)

	snap := e.buildSnapshot()
	if snap.Symbol != "ES" {
		t.Errorf("Symbol = %q, want ES", snap.Symbol)
	}
	if snap.Tier.TierName != tier.Ladder[0].Name {
		t.Errorf("Tier.TierName = %q, want %q", snap.Tier.TierName, tier.Ladder[0].Name)
	}
}

func TestOnBarFeedsDetectorsWithoutPanicking(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)

	bar := &types.FootprintBar{
		Symbol:    "ES",
		StartTime: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 1, 5, 10, 1, 0, 0, time.UTC),
		Open:      decimal.NewFromInt(5000),
		High:      decimal.NewFromInt(5002),
		Low:       decimal.NewFromInt(4999),
		Close:     decimal.NewFromInt(5001),
		Levels: map[string]*types.PriceLevel{
			"5000": {Price: decimal.NewFromInt(5000), BidVolume: 5, AskVolume: 300},
			"5000.25": {Price: decimal.NewFromFloat(5000.25), BidVolume: 0, AskVolume: 250},
		},
	}

	e.onBar(bar)

	state := e.router.State()
	if state.Evaluated == 0 && len(e.imbalance.Detect(bar)) == 0 {
		t.Skip("no signals produced by this synthetic bar, nothing to assert")
	}
}
