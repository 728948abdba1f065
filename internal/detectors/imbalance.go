// Package detectors implements the five order-flow pattern detectors that
// turn a completed FootprintBar (plus, for divergence, a short bar history)
// into candidate Signals: imbalance/stacked imbalance, exhaustion,
// absorption, delta divergence, and unfinished business.
package detectors

import (
	"math"

	"orderflow-engine/internal/constants"
	"orderflow-engine/pkg/types"
)

// ImbalanceDetector flags diagonal bid/ask ratio extremes, and stacks of
// consecutive imbalanced levels.
type ImbalanceDetector struct {
	Threshold float64 // ratio required to flag a single imbalance, e.g. 3.0
	MinVolume int64   // minimum volume on the dominant side to consider
	MinStack  int     // minimum consecutive levels to flag a stacked imbalance
}

// NewImbalanceDetector returns a detector with the original defaults.
func NewImbalanceDetector() *ImbalanceDetector {
	return &ImbalanceDetector{Threshold: 3.0, MinVolume: 10, MinStack: 3}
}

// Detect returns per-level buy/sell imbalance signals via diagonal
// comparison: buy imbalance compares ask volume at a level to bid volume
// one tick below; sell imbalance compares bid volume at a level to ask
// volume one tick above.
func (d *ImbalanceDetector) Detect(bar *types.FootprintBar) []types.Signal {
	levels := bar.SortedLevels()
	if len(levels) < 2 {
		return nil
	}

	var signals []types.Signal
	for i := 1; i < len(levels); i++ {
		current := levels[i]
		below := levels[i-1]

		if below.BidVolume > 0 && current.AskVolume >= d.MinVolume {
			ratio := float64(current.AskVolume) / float64(below.BidVolume)
			if ratio >= d.Threshold {
				signals = append(signals, types.Signal{
					Timestamp: bar.EndTime,
					Symbol:    bar.Symbol,
					Pattern:   types.PatternBuyImbalance,
					Direction: types.Long,
					Strength:  math.Min(ratio/10, 1.0),
					Price:     current.Price,
					Details: map[string]float64{
						"ratio":            round2(ratio),
						"ask_volume":       float64(current.AskVolume),
						"bid_volume_below": float64(below.BidVolume),
					},
				})
			}
		}

		if i < len(levels)-1 {
			above := levels[i+1]
			if above.AskVolume > 0 && current.BidVolume >= d.MinVolume {
				ratio := float64(current.BidVolume) / float64(above.AskVolume)
				if ratio >= d.Threshold {
					signals = append(signals, types.Signal{
						Timestamp: bar.EndTime,
						Symbol:    bar.Symbol,
						Pattern:   types.PatternSellImbalance,
						Direction: types.Short,
						Strength:  math.Min(ratio/10, 1.0),
						Price:     current.Price,
						Details: map[string]float64{
							"ratio":            round2(ratio),
							"bid_volume":       float64(current.BidVolume),
							"ask_volume_above": float64(above.AskVolume),
						},
					})
				}
			}
		}
	}
	return signals
}

// DetectStackedImbalances groups single-level imbalances from Detect into
// runs of consecutive price levels (one tick apart) and flags runs at least
// MinStack long.
func (d *ImbalanceDetector) DetectStackedImbalances(bar *types.FootprintBar) []types.Signal {
	imbalances := d.Detect(bar)
	if len(imbalances) == 0 {
		return nil
	}

	var buys, sells []types.Signal
	for _, s := range imbalances {
		if s.Direction == types.Long {
			buys = append(buys, s)
		} else {
			sells = append(sells, s)
		}
	}
	sortSignalsByPrice(buys)
	sortSignalsByPrice(sells)

	tickSize := constants.TickSizeFor(bar.Symbol)
	tick, _ := tickSize.Float64()

	var signals []types.Signal
	for _, stack := range findStacks(buys, tick) {
		if len(stack) < d.MinStack {
			continue
		}
		signals = append(signals, types.Signal{
			Timestamp: bar.EndTime,
			Symbol:    bar.Symbol,
			Pattern:   types.PatternStackedBuyImbalance,
			Direction: types.Long,
			Strength:  math.Min(float64(len(stack))/5, 1.0),
			Price:     stack[len(stack)-1].Price,
			Details: map[string]float64{
				"stack_size": float64(len(stack)),
			},
		})
	}
	for _, stack := range findStacks(sells, tick) {
		if len(stack) < d.MinStack {
			continue
		}
		signals = append(signals, types.Signal{
			Timestamp: bar.EndTime,
			Symbol:    bar.Symbol,
			Pattern:   types.PatternStackedSellImbalance,
			Direction: types.Short,
			Strength:  math.Min(float64(len(stack))/5, 1.0),
			Price:     stack[0].Price,
			Details: map[string]float64{
				"stack_size": float64(len(stack)),
			},
		})
	}
	return signals
}

func sortSignalsByPrice(signals []types.Signal) {
	for i := 1; i < len(signals); i++ {
		for j := i; j > 0 && signals[j].Price.LessThan(signals[j-1].Price); j-- {
			signals[j], signals[j-1] = signals[j-1], signals[j]
		}
	}
}

// findStacks groups signals into runs where each successive price is
// exactly one tick above the previous.
func findStacks(signals []types.Signal, tickSize float64) [][]types.Signal {
	if len(signals) == 0 {
		return nil
	}

	var stacks [][]types.Signal
	current := []types.Signal{signals[0]}

	for i := 1; i < len(signals); i++ {
		prevPrice, _ := signals[i-1].Price.Float64()
		currPrice, _ := signals[i].Price.Float64()
		if math.Abs(currPrice-prevPrice-tickSize) < 0.001 {
			current = append(current, signals[i])
		} else {
			if len(current) > 1 {
				stacks = append(stacks, current)
			}
			current = []types.Signal{signals[i]}
		}
	}
	if len(current) > 1 {
		stacks = append(stacks, current)
	}
	return stacks
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
