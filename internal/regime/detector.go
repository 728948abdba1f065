package regime

import (
	"sync"
	"time"

	"orderflow-engine/pkg/types"
)

// DetectorConfig holds the tunables the original exposes as a config dict
// overlay on top of fixed defaults.
type DetectorConfig struct {
	MinRegimeScore           float64
	ADXTrendThreshold        float64
	ADXWeakThreshold         float64
	ATRHighPercentile        float64
	ATRExtremePercentile     float64
	MinBarsInRegime          int
	MinRegimeConfidence      float64
	NewsBufferMinutes        int
	NoTradeBeforeOpenMinutes int
	NoTradeBeforeCloseMinutes int
}

// DefaultDetectorConfig matches the original DEFAULT_REGIME_CONFIG.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MinRegimeScore:            4.0,
		ADXTrendThreshold:         25,
		ADXWeakThreshold:          20,
		ATRHighPercentile:         70,
		ATRExtremePercentile:      85,
		MinBarsInRegime:           2,
		MinRegimeConfidence:       0.6,
		NewsBufferMinutes:         15,
		NoTradeBeforeOpenMinutes:  5,
		NoTradeBeforeCloseMinutes: 15,
	}
}

type historyEntry struct {
	at         time.Time
	regime     types.Regime
	confidence float64
}

// Detector classifies RegimeInputs into one of the five regimes, holding
// hysteresis state (a persistence counter and bounded change history)
// across calls.
type Detector struct {
	mu  sync.Mutex
	cfg DetectorConfig

	currentRegime types.Regime
	confidence    float64
	history       []historyEntry
	regimeCount   int
}

// NewDetector returns a detector starting in NO_TRADE.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg, currentRegime: types.RegimeNoTrade}
}

// Classify scores every regime against inputs and returns the winner with
// its confidence, applying hard overrides first.
func (d *Detector) Classify(inputs types.RegimeInputs, now time.Time) types.RegimeResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shouldNotTrade(inputs) {
		return d.update(types.RegimeNoTrade, 1.0, now)
	}

	scores := map[types.Regime]float64{
		types.RegimeTrendingUp:   d.scoreTrendingUp(inputs),
		types.RegimeTrendingDown: d.scoreTrendingDown(inputs),
		types.RegimeRanging:      d.scoreRanging(inputs),
		types.RegimeVolatile:     d.scoreVolatile(inputs),
	}

	winner, winnerScore, runnerUpScore := topTwo(scores)

	if winnerScore == 0 {
		return d.update(types.RegimeNoTrade, 0.5, now)
	}

	margin := (winnerScore - runnerUpScore) / winnerScore
	confidence := 0.5 + margin*0.5
	if confidence > 1.0 {
		confidence = 1.0
	}

	if winnerScore < d.cfg.MinRegimeScore {
		return d.update(types.RegimeVolatile, 0.5, now)
	}

	return d.update(winner, confidence, now)
}

func topTwo(scores map[types.Regime]float64) (winner types.Regime, winnerScore, runnerUp float64) {
	// Deterministic order matters only for tie-breaking; iterate the fixed
	// regime list rather than ranging over the map.
	order := []types.Regime{types.RegimeTrendingUp, types.RegimeTrendingDown, types.RegimeRanging, types.RegimeVolatile}

	winnerScore, runnerUp = -1, -1
	for _, r := range order {
		s := scores[r]
		if s > winnerScore {
			runnerUp = winnerScore
			winnerScore = s
			winner = r
		} else if s > runnerUp {
			runnerUp = s
		}
	}
	return winner, winnerScore, runnerUp
}

func (d *Detector) shouldNotTrade(in types.RegimeInputs) bool {
	if in.MinutesToClose < d.cfg.NoTradeBeforeCloseMinutes {
		return true
	}
	if in.IsNewsWindow {
		return true
	}
	if in.MinutesSinceOpen < d.cfg.NoTradeBeforeOpenMinutes {
		return true
	}
	if in.VolumeVsAverage < 0.3 {
		return true
	}
	return false
}

func (d *Detector) scoreTrendingUp(in types.RegimeInputs) float64 {
	var score float64

	switch {
	case in.ADX14 > d.cfg.ADXTrendThreshold:
		score += 2.0
	case in.ADX14 > d.cfg.ADXWeakThreshold:
		score += 1.0
	}

	if in.EMATrend > 0 {
		score += 1.5
	}
	if in.PriceVsVWAP > 0 {
		score += 1.0
	}

	switch {
	case in.HigherHighs && in.HigherLows:
		score += 2.0
	case in.HigherLows:
		score += 1.0
	}

	switch {
	case in.CumulativeDelta > 0 && in.DeltaSlope > 0:
		score += 1.5
	case in.CumulativeDelta > 0:
		score += 0.5
	}

	if in.ADXSlope > 0 {
		score += 0.5
	}
	return score
}

func (d *Detector) scoreTrendingDown(in types.RegimeInputs) float64 {
	var score float64

	switch {
	case in.ADX14 > d.cfg.ADXTrendThreshold:
		score += 2.0
	case in.ADX14 > d.cfg.ADXWeakThreshold:
		score += 1.0
	}

	if in.EMATrend < 0 {
		score += 1.5
	}
	if in.PriceVsVWAP < 0 {
		score += 1.0
	}

	switch {
	case in.LowerHighs && in.LowerLows:
		score += 2.0
	case in.LowerHighs:
		score += 1.0
	}

	switch {
	case in.CumulativeDelta < 0 && in.DeltaSlope < 0:
		score += 1.5
	case in.CumulativeDelta < 0:
		score += 0.5
	}

	if in.ADXSlope > 0 {
		score += 0.5
	}
	return score
}

func (d *Detector) scoreRanging(in types.RegimeInputs) float64 {
	var score float64

	switch {
	case in.ADX14 < d.cfg.ADXWeakThreshold:
		score += 2.0
	case in.ADX14 < d.cfg.ADXTrendThreshold:
		score += 1.0
	}

	if abs(in.PriceVsVWAP) < 0.5 {
		score += 1.0
	}
	if !(in.HigherHighs || in.LowerLows) {
		score += 1.5
	}

	switch {
	case in.RangeBars >= 3:
		score += 2.0
	case in.RangeBars >= 2:
		score += 1.0
	}

	if abs(in.CumulativeDelta) < 500 {
		score += 1.0
	}
	if in.ATRPercentile < 50 {
		score += 1.0
	}
	return score
}

func (d *Detector) scoreVolatile(in types.RegimeInputs) float64 {
	var score float64

	switch {
	case in.ATRPercentile > d.cfg.ATRExtremePercentile:
		score += 2.5
	case in.ATRPercentile > d.cfg.ATRHighPercentile:
		score += 1.5
	}

	if in.BarRangeAvg > in.ATR14*1.5 {
		score += 1.5
	}
	if in.VolumeVsAverage > 2.0 {
		score += 1.0
	}
	if in.ADX14 >= d.cfg.ADXWeakThreshold && in.ADX14 <= d.cfg.ADXTrendThreshold && in.ADXSlope < 0 {
		score += 1.0
	}
	if abs(in.DeltaSlope) > 100 {
		score += 1.0
	}
	return score
}

func (d *Detector) update(regime types.Regime, confidence float64, now time.Time) types.RegimeResult {
	if regime != d.currentRegime {
		d.regimeCount = 1
	} else {
		d.regimeCount++
	}

	last := len(d.history) - 1
	if last < 0 || d.history[last].regime != regime || abs(d.history[last].confidence-confidence) > 0.2 {
		d.history = append(d.history, historyEntry{at: now, regime: regime, confidence: confidence})
		if len(d.history) > 100 {
			d.history = d.history[len(d.history)-100:]
		}
	}

	d.currentRegime = regime
	d.confidence = confidence
	return types.RegimeResult{Regime: regime, Confidence: confidence}
}

// RegimeDuration reports how many consecutive classifications landed on the
// current regime.
func (d *Detector) RegimeDuration() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regimeCount
}

// Reset returns the detector to its NO_TRADE starting state.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.currentRegime = types.RegimeNoTrade
	d.confidence = 0
	d.history = nil
	d.regimeCount = 0
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
