package detectors

import (
	"sync"

	"orderflow-engine/pkg/types"
)

// DeltaDivergenceDetector flags bars where price makes a new extreme but
// per-bar delta fails to confirm it, across a short rolling window of
// completed bars. It is stateful: callers must feed bars through AddBar in
// chronological order.
type DeltaDivergenceDetector struct {
	mu        sync.Mutex
	lookback  int
	barHistory []*types.FootprintBar
}

// NewDeltaDivergenceDetector returns a detector with the original 5-bar lookback.
func NewDeltaDivergenceDetector() *DeltaDivergenceDetector {
	return &DeltaDivergenceDetector{lookback: 5}
}

// AddBar appends a completed bar and returns any divergence signals it
// completes.
func (d *DeltaDivergenceDetector) AddBar(bar *types.FootprintBar) []types.Signal {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.barHistory = append(d.barHistory, bar)
	if len(d.barHistory) > d.lookback*2 {
		d.barHistory = d.barHistory[len(d.barHistory)-d.lookback*2:]
	}
	if len(d.barHistory) < d.lookback {
		return nil
	}
	return d.detectDivergence()
}

func (d *DeltaDivergenceDetector) detectDivergence() []types.Signal {
	recent := d.barHistory[len(d.barHistory)-d.lookback:]

	highs := make([]float64, len(recent))
	lows := make([]float64, len(recent))
	deltas := make([]float64, len(recent))
	for i, bar := range recent {
		highs[i], _ = bar.High.Float64()
		lows[i], _ = bar.Low.Float64()
		deltas[i] = float64(bar.Delta())
	}
	current := recent[len(recent)-1]

	var signals []types.Signal

	if isHigherHigh(highs) && isLowerHighPeaks(deltas) && deltas[len(deltas)-1] < 0 {
		closeF, _ := current.Close.Float64()
		signals = append(signals, types.Signal{
			Timestamp: current.EndTime,
			Symbol:    current.Symbol,
			Pattern:   types.PatternBearishDeltaDivergence,
			Direction: types.Short,
			Strength:  0.7,
			Price:     decimalFromFloat(closeF),
			Details: map[string]float64{
				"price_high":     maxOf(highs),
				"current_delta":  deltas[len(deltas)-1],
			},
		})
	}

	if isLowerLow(lows) && isHigherLowTroughs(deltas) && deltas[len(deltas)-1] > 0 {
		closeF, _ := current.Close.Float64()
		signals = append(signals, types.Signal{
			Timestamp: current.EndTime,
			Symbol:    current.Symbol,
			Pattern:   types.PatternBullishDeltaDivergence,
			Direction: types.Long,
			Strength:  0.7,
			Price:     decimalFromFloat(closeF),
			Details: map[string]float64{
				"price_low":     minOf(lows),
				"current_delta": deltas[len(deltas)-1],
			},
		})
	}

	return signals
}

// Reset clears the detector's bar history.
func (d *DeltaDivergenceDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.barHistory = nil
}

func isHigherHigh(values []float64) bool {
	if len(values) < 3 {
		return false
	}
	return values[len(values)-1] > maxOf(values[:len(values)-1])
}

func isLowerLow(values []float64) bool {
	if len(values) < 3 {
		return false
	}
	return values[len(values)-1] < minOf(values[:len(values)-1])
}

type point struct {
	idx int
	val float64
}

func findPeaks(values []float64) []point {
	var peaks []point
	for i := 1; i < len(values)-1; i++ {
		if values[i] > values[i-1] && values[i] > values[i+1] {
			peaks = append(peaks, point{i, values[i]})
		}
	}
	if len(values) >= 2 && values[len(values)-1] > values[len(values)-2] {
		peaks = append(peaks, point{len(values) - 1, values[len(values)-1]})
	}
	return peaks
}

func findTroughs(values []float64) []point {
	var troughs []point
	for i := 1; i < len(values)-1; i++ {
		if values[i] < values[i-1] && values[i] < values[i+1] {
			troughs = append(troughs, point{i, values[i]})
		}
	}
	if len(values) >= 2 && values[len(values)-1] < values[len(values)-2] {
		troughs = append(troughs, point{len(values) - 1, values[len(values)-1]})
	}
	return troughs
}

// isLowerHighPeaks reports whether the most recent peak is lower than the
// one before it — used to confirm delta is failing to confirm a price high.
func isLowerHighPeaks(values []float64) bool {
	if len(values) < 3 {
		return false
	}
	peaks := findPeaks(values)
	if len(peaks) < 2 {
		return false
	}
	return peaks[len(peaks)-1].val < peaks[len(peaks)-2].val
}

// isHigherLowTroughs reports whether the most recent trough is higher than
// the one before it — used to confirm delta is failing to confirm a price low.
func isHigherLowTroughs(values []float64) bool {
	if len(values) < 3 {
		return false
	}
	troughs := findTroughs(values)
	if len(troughs) < 2 {
		return false
	}
	return troughs[len(troughs)-1].val > troughs[len(troughs)-2].val
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
