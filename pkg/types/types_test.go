package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPriceLevelDerived(t *testing.T) {
	t.Parallel()

	l := PriceLevel{Price: decimal.NewFromFloat(5000.25), BidVolume: 10, AskVolume: 50}
	if got := l.TotalVolume(); got != 60 {
		t.Errorf("TotalVolume() = %d, want 60", got)
	}
	if got := l.Delta(); got != 40 {
		t.Errorf("Delta() = %d, want 40", got)
	}
}

func newLevel(price float64, bid, ask int64) *PriceLevel {
	return &PriceLevel{Price: decimal.NewFromFloat(price), BidVolume: bid, AskVolume: ask}
}

func TestFootprintBarAggregates(t *testing.T) {
	t.Parallel()

	bar := &FootprintBar{
		Symbol: "ES",
		Open:   decimal.NewFromFloat(5000.00),
		High:   decimal.NewFromFloat(5001.00),
		Low:    decimal.NewFromFloat(5000.00),
		Close:  decimal.NewFromFloat(5001.00),
		Levels: map[string]*PriceLevel{
			"5000.00": newLevel(5000.00, 10, 0),
			"5000.25": newLevel(5000.25, 0, 50),
			"5000.50": newLevel(5000.50, 0, 40),
			"5000.75": newLevel(5000.75, 0, 35),
			"5001.00": newLevel(5001.00, 0, 31),
		},
	}

	if got := bar.TotalVolume(); got != 166 {
		t.Errorf("TotalVolume() = %d, want 166", got)
	}
	if got := bar.Delta(); got != 146 {
		t.Errorf("Delta() = %d, want 146", got)
	}
	if got := bar.BuyVolume(); got != 156 {
		t.Errorf("BuyVolume() = %d, want 156", got)
	}
	if got := bar.SellVolume(); got != 10 {
		t.Errorf("SellVolume() = %d, want 10", got)
	}

	sorted := bar.SortedLevels()
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Price.LessThan(sorted[i-1].Price) {
			t.Fatalf("SortedLevels() not ascending at index %d", i)
		}
	}
}

func TestPositionUpdatePnLUsesCapturedTickValues(t *testing.T) {
	t.Parallel()

	pos := &Position{
		Side:       Long,
		Size:       1,
		EntryPrice: decimal.NewFromFloat(5000.00),
		EntryTime:  time.Now(),
		TickSize:   decimal.NewFromFloat(0.25),
		TickValue:  decimal.NewFromFloat(12.50),
	}

	pnl := pos.UpdatePnL(decimal.NewFromFloat(5003.00))
	want := decimal.NewFromFloat(150.00)
	if !pnl.Equal(want) {
		t.Errorf("UpdatePnL(5003.00) = %s, want %s", pnl, want)
	}

	// A short position with the same captured ticks mirrors the sign.
	short := &Position{
		Side:       Short,
		Size:       1,
		EntryPrice: decimal.NewFromFloat(5000.00),
		TickSize:   decimal.NewFromFloat(0.25),
		TickValue:  decimal.NewFromFloat(12.50),
	}
	pnl = short.UpdatePnL(decimal.NewFromFloat(5003.00))
	want = decimal.NewFromFloat(-150.00)
	if !pnl.Equal(want) {
		t.Errorf("short UpdatePnL(5003.00) = %s, want %s", pnl, want)
	}
}
