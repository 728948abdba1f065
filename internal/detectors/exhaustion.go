package detectors

import "orderflow-engine/pkg/types"

// ExhaustionDetector flags progressively declining volume toward a bar's
// extremes — buying exhaustion at the top, selling exhaustion at the bottom.
type ExhaustionDetector struct {
	MinLevels     int     // minimum consecutive levels showing decline
	MinDeclinePct float64 // minimum overall decline, e.g. 0.30 = 30%
}

// NewExhaustionDetector returns a detector with the original defaults.
func NewExhaustionDetector() *ExhaustionDetector {
	return &ExhaustionDetector{MinLevels: 3, MinDeclinePct: 0.30}
}

// Detect checks both bar extremes for exhaustion.
func (d *ExhaustionDetector) Detect(bar *types.FootprintBar) []types.Signal {
	levels := bar.SortedLevels()
	if len(levels) < d.MinLevels {
		return nil
	}

	var signals []types.Signal

	topN := d.MinLevels + 2
	top := levels
	if len(top) > topN {
		top = top[len(top)-topN:]
	}
	askVols := make([]int64, len(top))
	for i, l := range top {
		askVols[i] = l.AskVolume
	}
	if info, ok := d.checkExhaustion(askVols); ok {
		signals = append(signals, types.Signal{
			Timestamp: bar.EndTime,
			Symbol:    bar.Symbol,
			Pattern:   types.PatternBuyingExhaustion,
			Direction: types.Short,
			Strength:  info.strength,
			Price:     bar.High,
			Details: map[string]float64{
				"consecutive_declines": float64(info.declines),
				"decline_percentage":   info.declinePct,
			},
		})
	}

	bottomN := d.MinLevels + 2
	bottom := levels
	if len(bottom) > bottomN {
		bottom = bottom[:bottomN]
	}
	bidVols := make([]int64, len(bottom))
	for i := range bottom {
		// reversed, so index 0 is the highest price within the bottom slice
		bidVols[i] = bottom[len(bottom)-1-i].BidVolume
	}
	if info, ok := d.checkExhaustion(bidVols); ok {
		signals = append(signals, types.Signal{
			Timestamp: bar.EndTime,
			Symbol:    bar.Symbol,
			Pattern:   types.PatternSellingExhaustion,
			Direction: types.Long,
			Strength:  info.strength,
			Price:     bar.Low,
			Details: map[string]float64{
				"consecutive_declines": float64(info.declines),
				"decline_percentage":   info.declinePct,
			},
		})
	}

	return signals
}

type exhaustionInfo struct {
	declines   int
	declinePct float64
	strength   float64
}

// checkExhaustion counts consecutive declines from the start of volumes and
// reports whether the run is long enough and steep enough to qualify.
func (d *ExhaustionDetector) checkExhaustion(volumes []int64) (exhaustionInfo, bool) {
	if len(volumes) < d.MinLevels {
		return exhaustionInfo{}, false
	}

	declines := 0
	for i := 1; i < len(volumes); i++ {
		if volumes[i] < volumes[i-1] {
			declines++
		} else {
			break
		}
	}
	if declines < d.MinLevels-1 {
		return exhaustionInfo{}, false
	}
	if volumes[0] == 0 {
		return exhaustionInfo{}, false
	}

	declinePct := float64(volumes[0]-volumes[declines]) / float64(volumes[0])
	if declinePct < d.MinDeclinePct {
		return exhaustionInfo{}, false
	}

	strength := declinePct
	if strength > 1.0 {
		strength = 1.0
	}
	return exhaustionInfo{declines: declines, declinePct: round3(declinePct), strength: strength}, true
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
