// Package regime turns buffered bar history into a RegimeInputs feature
// vector and classifies it into one of five market regimes.
package regime

import (
	"time"

	"orderflow-engine/internal/indicators"
	"orderflow-engine/pkg/types"
)

// NewsWindow is a daily time-of-day range to avoid trading through, e.g. a
// scheduled economic release.
type NewsWindow struct {
	Start, End time.Duration // minutes since midnight, as a duration
}

// InputsConfig configures session hours and news windows for the calculator.
type InputsConfig struct {
	SessionOpen  time.Duration // minutes since midnight
	SessionClose time.Duration
	NewsWindows  []NewsWindow
}

// DefaultInputsConfig matches the original's 9:30-16:00 session default.
func DefaultInputsConfig() InputsConfig {
	return InputsConfig{
		SessionOpen:  9*time.Hour + 30*time.Minute,
		SessionClose: 16 * time.Hour,
	}
}

// InputsCalculator buffers completed bars and derives RegimeInputs from
// them. Not safe for concurrent use; callers serialize access per symbol.
type InputsCalculator struct {
	cfg InputsConfig

	bars []*types.FootprintBar
	ohlc []indicators.OHLC

	maxBars int
}

// NewInputsCalculator returns a calculator bounding its history to 200 bars.
func NewInputsCalculator(cfg InputsConfig) *InputsCalculator {
	return &InputsCalculator{cfg: cfg, maxBars: 200}
}

// AddBar appends a completed bar to the rolling history.
func (c *InputsCalculator) AddBar(bar *types.FootprintBar) {
	openF, _ := bar.Open.Float64()
	highF, _ := bar.High.Float64()
	lowF, _ := bar.Low.Float64()
	closeF, _ := bar.Close.Float64()

	c.bars = append(c.bars, bar)
	c.ohlc = append(c.ohlc, indicators.OHLC{
		Open: openF, High: highF, Low: lowF, Close: closeF,
		Volume: bar.TotalVolume(),
	})

	if len(c.bars) > c.maxBars {
		c.bars = c.bars[len(c.bars)-c.maxBars:]
		c.ohlc = c.ohlc[len(c.ohlc)-c.maxBars:]
	}
}

// Calculate derives the full RegimeInputs feature set from current history.
// Requires at least 21 bars; returns zero-value defaults otherwise (the
// detector's hard overrides send these straight to NO_TRADE).
func (c *InputsCalculator) Calculate(now time.Time) types.RegimeInputs {
	if len(c.bars) < 21 {
		return types.RegimeInputs{}
	}

	closes := make([]float64, len(c.ohlc))
	highs := make([]float64, len(c.ohlc))
	lows := make([]float64, len(c.ohlc))
	for i, b := range c.ohlc {
		closes[i], highs[i], lows[i] = b.Close, b.High, b.Low
	}

	deltas := make([]float64, len(c.bars))
	volumes := make([]int64, len(c.bars))
	for i, b := range c.bars {
		deltas[i] = float64(b.Delta())
		volumes[i] = b.TotalVolume()
	}

	emaFastSeries := indicators.EMA(closes, 9)
	emaSlowSeries := indicators.EMA(closes, 21)
	adxValues := indicators.ADX(c.ohlc, 14)
	atrValues := indicators.ATR(c.ohlc, 14)
	vwapValues := indicators.VWAP(c.ohlc)

	currentADX := last(adxValues)
	currentATR := last(atrValues)
	currentEMAFast := lastOr(emaFastSeries, closes[len(closes)-1])
	currentEMASlow := lastOr(emaSlowSeries, closes[len(closes)-1])
	currentVWAP := lastOr(vwapValues, closes[len(closes)-1])

	adxSlope := indicators.Slope(adxValues, 5)
	deltaSlope := indicators.Slope(deltas, 10)

	var avgVolume float64
	if len(volumes) >= 20 {
		var sum int64
		for _, v := range volumes[len(volumes)-20:] {
			sum += v
		}
		avgVolume = float64(sum) / 20
	} else {
		var sum int64
		for _, v := range volumes {
			sum += v
		}
		avgVolume = float64(sum) / float64(len(volumes))
	}
	volumeRatio := 1.0
	if avgVolume > 0 {
		volumeRatio = float64(volumes[len(volumes)-1]) / avgVolume
	}

	atrPct := 50.0
	if len(atrValues) >= 10 {
		window := atrValues
		if len(window) > 50 {
			window = window[len(window)-50:]
		}
		atrPct = indicators.Percentile(currentATR, window)
	}

	higherHighs := indicators.CheckHigherHighs(highs, 5)
	higherLows := indicators.CheckHigherLows(lows, 5)
	lowerHighs := indicators.CheckLowerHighs(highs, 5)
	lowerLows := indicators.CheckLowerLows(lows, 5)
	rangeBars := indicators.CountRangeBoundBars(highs, lows, 10)

	var cumulativeDelta float64
	for _, d := range deltas {
		cumulativeDelta += d
	}

	clock := timeOfDay(now)
	minsSinceOpen := minutesSince(c.cfg.SessionOpen, clock)
	minsToClose := minutesUntil(clock, c.cfg.SessionClose)

	return types.RegimeInputs{
		ADX14:            currentADX,
		ADXSlope:         adxSlope,
		EMAFast:          currentEMAFast,
		EMASlow:          currentEMASlow,
		EMATrend:         currentEMAFast - currentEMASlow,
		PriceVsVWAP:      closes[len(closes)-1] - currentVWAP,
		ATR14:            currentATR,
		ATRPercentile:    atrPct,
		BarRangeAvg:      indicators.AvgBarRange(c.ohlc, 5),
		VolumeVsAverage:  volumeRatio,
		CumulativeDelta:  cumulativeDelta,
		DeltaSlope:       deltaSlope,
		HigherHighs:      higherHighs,
		HigherLows:       higherLows,
		LowerHighs:       lowerHighs,
		LowerLows:        lowerLows,
		RangeBars:        rangeBars,
		MinutesSinceOpen: minsSinceOpen,
		MinutesToClose:   minsToClose,
		IsNewsWindow:     c.isNewsWindow(clock),
	}
}

// Reset clears buffered bar history.
func (c *InputsCalculator) Reset() {
	c.bars = nil
	c.ohlc = nil
}

func (c *InputsCalculator) isNewsWindow(clock time.Duration) bool {
	for _, w := range c.cfg.NewsWindows {
		if clock >= w.Start && clock <= w.End {
			return true
		}
	}
	return false
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}

func minutesSince(start, current time.Duration) int {
	diff := int((current - start).Minutes())
	if diff < 0 {
		return 0
	}
	return diff
}

func minutesUntil(current, end time.Duration) int {
	diff := int((end - current).Minutes())
	if diff < 0 {
		return 0
	}
	return diff
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

func lastOr(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	return values[len(values)-1]
}
