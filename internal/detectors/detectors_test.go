package detectors

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/pkg/types"
)

func level(price float64, bid, ask int64) *types.PriceLevel {
	return &types.PriceLevel{Price: decimal.NewFromFloat(price), BidVolume: bid, AskVolume: ask}
}

func barWithLevels(levels ...*types.PriceLevel) *types.FootprintBar {
	m := make(map[string]*types.PriceLevel, len(levels))
	var low, high, open, close decimal.Decimal
	for i, l := range levels {
		m[l.Price.String()] = l
		if i == 0 {
			low, high = l.Price, l.Price
			open = l.Price
		}
		if l.Price.LessThan(low) {
			low = l.Price
		}
		if l.Price.GreaterThan(high) {
			high = l.Price
		}
		close = l.Price
	}
	return &types.FootprintBar{
		Symbol:    "ES",
		EndTime:   time.Date(2026, 1, 1, 9, 31, 0, 0, time.UTC),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Levels:    m,
	}
}

func TestImbalanceDetectorFlagsBuyImbalance(t *testing.T) {
	t.Parallel()

	bar := barWithLevels(
		level(100, 50, 0),
		level(100.25, 0, 200),
	)
	d := NewImbalanceDetector()
	signals := d.Detect(bar)

	found := false
	for _, s := range signals {
		if s.Pattern == types.PatternBuyImbalance {
			found = true
		}
	}
	if !found {
		t.Errorf("Detect() did not flag a buy imbalance for a 4x ask/bid ratio")
	}
}

func TestImbalanceDetectorStackedRequiresConsecutiveTicks(t *testing.T) {
	t.Parallel()

	bar := barWithLevels(
		level(100.00, 50, 0),
		level(100.25, 0, 200),
		level(100.50, 50, 0),
		level(100.75, 0, 200),
		level(101.00, 50, 0),
		level(101.25, 0, 200),
	)
	d := NewImbalanceDetector()
	d.MinStack = 3
	// Buy imbalances land at 100.25, 100.75 and 101.25: two ticks apart, so
	// they do not form a stack.
	signals := d.DetectStackedImbalances(bar)
	if len(signals) != 0 {
		t.Errorf("DetectStackedImbalances() = %+v, want no stacks for imbalances two ticks apart", signals)
	}
}

func TestExhaustionDetectorFlagsDecliningAskVolume(t *testing.T) {
	t.Parallel()

	bar := barWithLevels(
		level(100.00, 0, 100),
		level(100.25, 0, 80),
		level(100.50, 0, 50),
		level(100.75, 0, 20),
	)
	d := NewExhaustionDetector()
	signals := d.Detect(bar)

	found := false
	for _, s := range signals {
		if s.Pattern == types.PatternBuyingExhaustion {
			found = true
		}
	}
	if !found {
		t.Errorf("Detect() did not flag buying exhaustion for steadily declining ask volume")
	}
}

func TestAbsorptionDetectorFlagsSellingAbsorptionAtHigh(t *testing.T) {
	t.Parallel()

	bar := &types.FootprintBar{
		Symbol:  "ES",
		EndTime: time.Date(2026, 1, 1, 9, 31, 0, 0, time.UTC),
		Open:    decimal.NewFromFloat(100.00),
		High:    decimal.NewFromFloat(100.75),
		Low:     decimal.NewFromFloat(100.00),
		Close:   decimal.NewFromFloat(100.10), // close near the low despite heavy buying at the top
		Levels: map[string]*types.PriceLevel{
			"100":    level(100.00, 10, 10),
			"100.25": level(100.25, 10, 10),
			"100.5":  level(100.50, 10, 100),
			"100.75": level(100.75, 5, 100),
		},
	}
	d := NewAbsorptionDetector()
	d.MinVolume = 50
	signals := d.Detect(bar)

	found := false
	for _, s := range signals {
		if s.Pattern == types.PatternSellingAbsorption {
			found = true
		}
	}
	if !found {
		t.Errorf("Detect() did not flag selling absorption for heavy top-of-bar buying with a weak close")
	}
}

func TestDeltaDivergenceDetectorRequiresLookbackWarmup(t *testing.T) {
	t.Parallel()

	d := NewDeltaDivergenceDetector()
	bar := barWithLevels(level(100, 10, 10))
	if signals := d.AddBar(bar); signals != nil {
		t.Errorf("AddBar() returned signals before lookback warmup, want nil")
	}
}

func TestUnfinishedBusinessDetectorFlagsThinHigh(t *testing.T) {
	t.Parallel()

	bar := barWithLevels(
		level(100.00, 10, 10),
		level(100.25, 10, 10),
		level(100.50, 20, 1), // thin ask at the top: unfinished high
	)
	d := NewUnfinishedBusinessDetector()
	signals := d.Detect(bar)

	found := false
	for _, s := range signals {
		if s.Pattern == types.PatternUnfinishedHigh {
			found = true
		}
	}
	if !found {
		t.Errorf("Detect() did not flag unfinished high for thin ask volume at the bar top")
	}
	if d.ActiveLevels("ES") != 1 {
		t.Errorf("ActiveLevels(ES) = %d, want 1", d.ActiveLevels("ES"))
	}
}

func TestUnfinishedBusinessDetectorRevisitClearsLevel(t *testing.T) {
	t.Parallel()

	d := NewUnfinishedBusinessDetector()
	first := barWithLevels(
		level(100.00, 10, 10),
		level(100.25, 10, 10),
		level(100.50, 20, 1),
	)
	d.Detect(first)

	second := &types.FootprintBar{
		Symbol:  "ES",
		EndTime: time.Date(2026, 1, 1, 9, 32, 0, 0, time.UTC),
		High:    decimal.NewFromFloat(100.60),
		Low:     decimal.NewFromFloat(100.40),
	}
	signals := d.CheckRevisit(second)
	if len(signals) != 1 || signals[0].Pattern != types.PatternUnfinishedRevisited {
		t.Fatalf("CheckRevisit() = %+v, want one UNFINISHED_REVISITED signal", signals)
	}
	if d.ActiveLevels("ES") != 0 {
		t.Errorf("ActiveLevels(ES) after revisit = %d, want 0", d.ActiveLevels("ES"))
	}
}
