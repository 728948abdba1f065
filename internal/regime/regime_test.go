package regime

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/pkg/types"
)

func TestInputsCalculatorRequiresWarmup(t *testing.T) {
	t.Parallel()

	calc := NewInputsCalculator(DefaultInputsConfig())
	for i := 0; i < 10; i++ {
		calc.AddBar(makeBar(float64(5000 + i)))
	}
	got := calc.Calculate(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	if got.ADX14 != 0 || got.MinutesSinceOpen != 0 {
		t.Errorf("Calculate() before warmup = %+v, want zero-value defaults", got)
	}
}

func TestInputsCalculatorMinutesSinceOpen(t *testing.T) {
	t.Parallel()

	calc := NewInputsCalculator(DefaultInputsConfig())
	for i := 0; i < 25; i++ {
		calc.AddBar(makeBar(float64(5000 + i)))
	}
	got := calc.Calculate(time.Date(2026, 1, 1, 9, 45, 0, 0, time.UTC))
	if got.MinutesSinceOpen != 15 {
		t.Errorf("MinutesSinceOpen = %d, want 15", got.MinutesSinceOpen)
	}
	if got.MinutesToClose != (6*60 + 15) {
		t.Errorf("MinutesToClose = %d, want %d", got.MinutesToClose, 6*60+15)
	}
}

func makeBar(close float64) *types.FootprintBar {
	return &types.FootprintBar{
		Symbol: "ES",
		Open:   decimal.NewFromFloat(close - 1),
		High:   decimal.NewFromFloat(close + 1),
		Low:    decimal.NewFromFloat(close - 2),
		Close:  decimal.NewFromFloat(close),
		Levels: map[string]*types.PriceLevel{
			"x": {Price: decimal.NewFromFloat(close), BidVolume: 100, AskVolume: 120},
		},
	}
}

func TestDetectorHardOverrideNearClose(t *testing.T) {
	t.Parallel()

	d := NewDetector(DefaultDetectorConfig())
	result := d.Classify(types.RegimeInputs{MinutesToClose: 5, VolumeVsAverage: 1.0}, time.Now())
	if result.Regime != types.RegimeNoTrade {
		t.Errorf("Classify() near close = %v, want NO_TRADE", result.Regime)
	}
	if result.Confidence != 1.0 {
		t.Errorf("Classify() confidence near close = %v, want 1.0", result.Confidence)
	}
}

func TestDetectorClassifiesStrongUptrend(t *testing.T) {
	t.Parallel()

	d := NewDetector(DefaultDetectorConfig())
	in := types.RegimeInputs{
		ADX14:            30,
		ADXSlope:         1,
		EMATrend:         5,
		PriceVsVWAP:      2,
		HigherHighs:      true,
		HigherLows:       true,
		CumulativeDelta:  800,
		DeltaSlope:       10,
		VolumeVsAverage:  1.2,
		MinutesSinceOpen: 60,
		MinutesToClose:   300,
	}
	result := d.Classify(in, time.Now())
	if result.Regime != types.RegimeTrendingUp {
		t.Errorf("Classify() = %v, want TRENDING_UP", result.Regime)
	}
}

func TestDetectorRegimeDurationIncrementsOnRepeat(t *testing.T) {
	t.Parallel()

	d := NewDetector(DefaultDetectorConfig())
	in := types.RegimeInputs{MinutesToClose: 5, VolumeVsAverage: 1.0}
	d.Classify(in, time.Now())
	d.Classify(in, time.Now())
	if got := d.RegimeDuration(); got != 2 {
		t.Errorf("RegimeDuration() = %d, want 2", got)
	}
}
