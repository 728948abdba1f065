// Package router filters detector signals through the current market
// regime, approving or rejecting each one and scaling position size by
// regime.
package router

import (
	"fmt"
	"sync"
	"time"

	"orderflow-engine/internal/regime"
	"orderflow-engine/pkg/types"
)

// RegimeProfile is one row of the regime→strategy routing table: which
// patterns trade, the directional bias (empty means both directions), and
// the position-size multiplier applied when a signal from this regime fills.
type RegimeProfile struct {
	EnabledPatterns  map[types.Pattern]bool
	Bias             types.Direction // "" means no bias restriction
	SizeMultiplier   float64
	Description      string
}

// RegimeMap is the routing table: which patterns a regime permits, its
// directional bias, and its position-size multiplier. Ported from
// STRATEGY_REGIME_MAP.
var RegimeMap = map[types.Regime]RegimeProfile{
	types.RegimeTrendingUp: {
		EnabledPatterns: patternSet(
			types.PatternStackedBuyImbalance,
			types.PatternBuyingAbsorption,
			types.PatternSellingExhaustion,
			types.PatternBullishDeltaDivergence,
			types.PatternBuyImbalance,
		),
		Bias:           types.Long,
		SizeMultiplier: 1.0,
		Description:    "Trend following - favor long entries with momentum",
	},
	types.RegimeTrendingDown: {
		EnabledPatterns: patternSet(
			types.PatternStackedSellImbalance,
			types.PatternSellingAbsorption,
			types.PatternBuyingExhaustion,
			types.PatternBearishDeltaDivergence,
			types.PatternSellImbalance,
		),
		Bias:           types.Short,
		SizeMultiplier: 1.0,
		Description:    "Trend following - favor short entries with momentum",
	},
	types.RegimeRanging: {
		EnabledPatterns: patternSet(
			types.PatternBuyingExhaustion,
			types.PatternSellingExhaustion,
			types.PatternBuyingAbsorption,
			types.PatternSellingAbsorption,
			types.PatternUnfinishedHigh,
			types.PatternUnfinishedLow,
		),
		Bias:           "",
		SizeMultiplier: 0.75,
		Description:    "Mean reversion - trade extremes and reversals",
	},
	types.RegimeVolatile: {
		EnabledPatterns: patternSet(
			types.PatternStackedBuyImbalance,
			types.PatternStackedSellImbalance,
		),
		Bias:           "",
		SizeMultiplier: 0.5,
		Description:    "High volatility - only trade strongest signals",
	},
	types.RegimeNoTrade: {
		EnabledPatterns: patternSet(),
		Bias:            "",
		SizeMultiplier:  0,
		Description:     "No trading - sit out",
	},
}

func patternSet(patterns ...types.Pattern) map[types.Pattern]bool {
	set := make(map[types.Pattern]bool, len(patterns))
	for _, p := range patterns {
		set[p] = true
	}
	return set
}

// Config tunes the router's approval thresholds.
type Config struct {
	MinSignalStrength  float64
	MinRegimeConfidence float64
}

// DefaultConfig matches the original's 0.5 strength / 0.6 confidence floors.
func DefaultConfig() Config {
	return Config{MinSignalStrength: 0.5, MinRegimeConfidence: 0.6}
}

// Router evaluates signals against the live regime classification.
type Router struct {
	mu  sync.Mutex
	cfg Config

	inputsCalc *regime.InputsCalculator
	detector   *regime.Detector

	currentRegime types.Regime
	confidence    float64

	evaluated, approved, rejected int
}

// New returns a Router wired to its own inputs calculator and detector.
func New(cfg Config, inputsCfg regime.InputsConfig, detectorCfg regime.DetectorConfig) *Router {
	return &Router{
		cfg:           cfg,
		inputsCalc:    regime.NewInputsCalculator(inputsCfg),
		detector:      regime.NewDetector(detectorCfg),
		currentRegime: types.RegimeNoTrade,
	}
}

// OnBar feeds a completed bar into the regime pipeline, updating the
// router's live regime/confidence.
func (r *Router) OnBar(bar *types.FootprintBar, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inputsCalc.AddBar(bar)
	inputs := r.inputsCalc.Calculate(now)
	result := r.detector.Classify(inputs, now)
	r.currentRegime = result.Regime
	r.confidence = result.Confidence
}

// Evaluate annotates signal with the current regime and an approve/reject
// decision, checked in this order: pattern not enabled for the regime,
// direction conflicts with the regime's bias, strength below minimum,
// regime confidence below minimum.
func (r *Router) Evaluate(signal types.Signal) types.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evaluated++
	signal.Regime = r.currentRegime

	profile, ok := RegimeMap[r.currentRegime]
	if !ok {
		return r.reject(signal, "unknown regime")
	}

	if !profile.EnabledPatterns[signal.Pattern] {
		return r.reject(signal, fmt.Sprintf("pattern not enabled for %s", r.currentRegime))
	}

	if profile.Bias != "" && signal.Direction != profile.Bias {
		return r.reject(signal, fmt.Sprintf("direction %s conflicts with %s bias", signal.Direction, profile.Bias))
	}

	if signal.Strength < r.cfg.MinSignalStrength {
		return r.reject(signal, fmt.Sprintf("strength %.2f below minimum %.2f", signal.Strength, r.cfg.MinSignalStrength))
	}

	if r.confidence < r.cfg.MinRegimeConfidence {
		return r.reject(signal, fmt.Sprintf("regime confidence %.2f below minimum %.2f", r.confidence, r.cfg.MinRegimeConfidence))
	}

	signal.Approved = true
	r.approved++
	return signal
}

func (r *Router) reject(signal types.Signal, reason string) types.Signal {
	signal.Approved = false
	signal.RejectionReason = reason
	r.rejected++
	return signal
}

// PositionSizeMultiplier returns the current regime's size scaling factor.
func (r *Router) PositionSizeMultiplier() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RegimeMap[r.currentRegime].SizeMultiplier
}

// CurrentBias returns the current regime's directional bias, or "" for both.
func (r *Router) CurrentBias() types.Direction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RegimeMap[r.currentRegime].Bias
}

// State is a snapshot of the router's live regime and approval statistics.
type State struct {
	CurrentRegime   types.Regime
	Confidence      float64
	RegimeDuration  int
	Bias            types.Direction
	SizeMultiplier  float64
	Description     string
	Evaluated       int
	Approved        int
	Rejected        int
	ApprovalRate    float64
}

// State returns a point-in-time snapshot of the router's status.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile := RegimeMap[r.currentRegime]
	var approvalRate float64
	if r.evaluated > 0 {
		approvalRate = float64(r.approved) / float64(r.evaluated)
	}

	return State{
		CurrentRegime:  r.currentRegime,
		Confidence:     r.confidence,
		RegimeDuration: r.detector.RegimeDuration(),
		Bias:           profile.Bias,
		SizeMultiplier: profile.SizeMultiplier,
		Description:    profile.Description,
		Evaluated:      r.evaluated,
		Approved:       r.approved,
		Rejected:       r.rejected,
		ApprovalRate:   approvalRate,
	}
}

// Reset clears router state including the underlying regime pipeline.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.detector.Reset()
	r.inputsCalc.Reset()
	r.currentRegime = types.RegimeNoTrade
	r.confidence = 0
	r.evaluated, r.approved, r.rejected = 0, 0, 0
}
