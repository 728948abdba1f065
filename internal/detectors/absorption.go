package detectors

import "orderflow-engine/pkg/types"

// AbsorptionDetector flags passive orders absorbing aggressive flow at a
// bar's extremes without the price continuing in the aggressor's direction.
type AbsorptionDetector struct {
	MinVolume      int64   // minimum total volume at the extreme to consider
	DeltaThreshold float64 // reserved for future tuning; matches the original's constructor shape
}

// NewAbsorptionDetector returns a detector with the original defaults.
func NewAbsorptionDetector() *AbsorptionDetector {
	return &AbsorptionDetector{MinVolume: 100, DeltaThreshold: 0.3}
}

// Detect checks both bar extremes for absorption.
func (d *AbsorptionDetector) Detect(bar *types.FootprintBar) []types.Signal {
	var signals []types.Signal

	if sig, ok := d.checkHighAbsorption(bar); ok {
		signals = append(signals, sig)
	}
	if sig, ok := d.checkLowAbsorption(bar); ok {
		signals = append(signals, sig)
	}
	return signals
}

// checkHighAbsorption looks for aggressive buying at the top three levels
// that failed to push the close into the upper half of the bar's range.
func (d *AbsorptionDetector) checkHighAbsorption(bar *types.FootprintBar) (types.Signal, bool) {
	levels := bar.SortedLevels()
	if len(levels) < 3 {
		return types.Signal{}, false
	}
	top := levels[len(levels)-3:]

	var askVol, bidVol int64
	for _, l := range top {
		askVol += l.AskVolume
		bidVol += l.BidVolume
	}
	total := askVol + bidVol
	if total < d.MinVolume {
		return types.Signal{}, false
	}
	if float64(askVol) < float64(total)*0.6 {
		return types.Signal{}, false
	}

	barRange, _ := bar.High.Sub(bar.Low).Float64()
	if barRange == 0 {
		return types.Signal{}, false
	}
	closePos, _, _ := closePosition(bar)
	if closePos > 0.5 {
		return types.Signal{}, false
	}

	strength := (1 - closePos) * (float64(askVol) / float64(d.MinVolume)) / 2
	if strength > 1.0 {
		strength = 1.0
	}

	return types.Signal{
		Timestamp: bar.EndTime,
		Symbol:    bar.Symbol,
		Pattern:   types.PatternSellingAbsorption,
		Direction: types.Short,
		Strength:  strength,
		Price:     bar.High,
		Details: map[string]float64{
			"ask_volume":       float64(askVol),
			"bid_volume":       float64(bidVol),
			"total_volume":     float64(total),
			"close_position":   round3(closePos),
			"absorption_ratio": round3(float64(askVol) / float64(total)),
		},
	}, true
}

// checkLowAbsorption looks for aggressive selling at the bottom three levels
// that failed to push the close into the lower half of the bar's range.
func (d *AbsorptionDetector) checkLowAbsorption(bar *types.FootprintBar) (types.Signal, bool) {
	levels := bar.SortedLevels()
	if len(levels) < 3 {
		return types.Signal{}, false
	}
	bottom := levels[:3]

	var askVol, bidVol int64
	for _, l := range bottom {
		askVol += l.AskVolume
		bidVol += l.BidVolume
	}
	total := askVol + bidVol
	if total < d.MinVolume {
		return types.Signal{}, false
	}
	if float64(bidVol) < float64(total)*0.6 {
		return types.Signal{}, false
	}

	barRange, _ := bar.High.Sub(bar.Low).Float64()
	if barRange == 0 {
		return types.Signal{}, false
	}
	closePos, _, _ := closePosition(bar)
	if closePos < 0.5 {
		return types.Signal{}, false
	}

	strength := closePos * (float64(bidVol) / float64(d.MinVolume)) / 2
	if strength > 1.0 {
		strength = 1.0
	}

	return types.Signal{
		Timestamp: bar.EndTime,
		Symbol:    bar.Symbol,
		Pattern:   types.PatternBuyingAbsorption,
		Direction: types.Long,
		Strength:  strength,
		Price:     bar.Low,
		Details: map[string]float64{
			"ask_volume":       float64(askVol),
			"bid_volume":       float64(bidVol),
			"total_volume":     float64(total),
			"close_position":   round3(closePos),
			"absorption_ratio": round3(float64(bidVol) / float64(total)),
		},
	}, true
}

// closePosition returns (close-low)/(high-low) plus the raw low/high floats.
func closePosition(bar *types.FootprintBar) (pos, low, high float64) {
	low, _ = bar.Low.Float64()
	high, _ = bar.High.Float64()
	closeF, _ := bar.Close.Float64()
	rng := high - low
	if rng == 0 {
		return 0, low, high
	}
	return (closeF - low) / rng, low, high
}
