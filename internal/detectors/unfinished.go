package detectors

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/pkg/types"
)

// unfinishedLevel is a tracked incomplete-auction price, pending a revisit.
type unfinishedLevel struct {
	price     decimal.Decimal
	timestamp time.Time
	atHigh    bool // true if this was an unfinished high, false for a low
}

// UnfinishedBusinessDetector flags bar extremes where volume appears on only
// one side of the auction, and later reports when price revisits those
// levels. It is stateful per symbol.
type UnfinishedBusinessDetector struct {
	mu        sync.Mutex
	threshold int64 // max volume on the thin side to still call it "unfinished"
	levels    map[string][]unfinishedLevel
}

// NewUnfinishedBusinessDetector returns a detector with the original default threshold.
func NewUnfinishedBusinessDetector() *UnfinishedBusinessDetector {
	return &UnfinishedBusinessDetector{threshold: 5, levels: make(map[string][]unfinishedLevel)}
}

// Detect checks both bar extremes for unfinished business and records any found.
func (d *UnfinishedBusinessDetector) Detect(bar *types.FootprintBar) []types.Signal {
	levels := bar.SortedLevels()
	if len(levels) == 0 {
		return nil
	}

	var signals []types.Signal

	high := levels[len(levels)-1]
	if high.AskVolume <= d.threshold && high.BidVolume > d.threshold {
		d.addUnfinished(bar.Symbol, bar.High, bar.EndTime, true)
		signals = append(signals, types.Signal{
			Timestamp: bar.EndTime,
			Symbol:    bar.Symbol,
			Pattern:   types.PatternUnfinishedHigh,
			Direction: types.Long,
			Strength:  0.6,
			Price:     bar.High,
			Details: map[string]float64{
				"ask_volume": float64(high.AskVolume),
				"bid_volume": float64(high.BidVolume),
			},
		})
	}

	low := levels[0]
	if low.BidVolume <= d.threshold && low.AskVolume > d.threshold {
		d.addUnfinished(bar.Symbol, bar.Low, bar.EndTime, false)
		signals = append(signals, types.Signal{
			Timestamp: bar.EndTime,
			Symbol:    bar.Symbol,
			Pattern:   types.PatternUnfinishedLow,
			Direction: types.Short,
			Strength:  0.6,
			Price:     bar.Low,
			Details: map[string]float64{
				"ask_volume": float64(low.AskVolume),
				"bid_volume": float64(low.BidVolume),
			},
		})
	}

	return signals
}

// CheckRevisit reports which previously tracked unfinished levels this bar
// traded through, and removes them from tracking — the auction completes.
func (d *UnfinishedBusinessDetector) CheckRevisit(bar *types.FootprintBar) []types.Signal {
	d.mu.Lock()
	defer d.mu.Unlock()

	tracked, ok := d.levels[bar.Symbol]
	if !ok || len(tracked) == 0 {
		return nil
	}

	var signals []types.Signal
	remaining := tracked[:0:0]
	for _, lvl := range tracked {
		if bar.Low.LessThanOrEqual(lvl.price) && lvl.price.LessThanOrEqual(bar.High) {
			direction := types.Short
			if lvl.atHigh {
				direction = types.Long
			}
			signals = append(signals, types.Signal{
				Timestamp: bar.EndTime,
				Symbol:    bar.Symbol,
				Pattern:   types.PatternUnfinishedRevisited,
				Direction: direction,
				Strength:  0.5,
				Price:     lvl.price,
			})
			continue
		}
		remaining = append(remaining, lvl)
	}
	d.levels[bar.Symbol] = remaining
	return signals
}

func (d *UnfinishedBusinessDetector) addUnfinished(symbol string, price decimal.Decimal, ts time.Time, atHigh bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.levels[symbol] = append(d.levels[symbol], unfinishedLevel{price: price, timestamp: ts, atHigh: atHigh})
	if len(d.levels[symbol]) > 50 {
		d.levels[symbol] = d.levels[symbol][len(d.levels[symbol])-50:]
	}
}

// ActiveLevels returns the currently tracked unfinished levels for a symbol.
func (d *UnfinishedBusinessDetector) ActiveLevels(symbol string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.levels[symbol])
}

// Reset clears tracked levels for symbol, or every symbol if symbol is "".
func (d *UnfinishedBusinessDetector) Reset(symbol string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if symbol == "" {
		d.levels = make(map[string][]unfinishedLevel)
		return
	}
	delete(d.levels, symbol)
}

func decimalFromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
