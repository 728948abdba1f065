package router

import (
	"testing"

	"orderflow-engine/internal/regime"
	"orderflow-engine/pkg/types"
)

func newTestRouter() *Router {
	return New(DefaultConfig(), regime.DefaultInputsConfig(), regime.DefaultDetectorConfig())
}

// A fresh router starts in NO_TRADE, which enables no pattern.
func TestEvaluateRejectsDisabledPatternInNoTrade(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	signal := types.Signal{Pattern: types.PatternBuyImbalance, Direction: types.Long, Strength: 0.9}
	got := r.Evaluate(signal)

	if got.Approved {
		t.Errorf("Evaluate() approved = true in NO_TRADE regime, want false")
	}
	if got.RejectionReason == "" {
		t.Errorf("Evaluate() rejection reason empty, want a reason")
	}
}

func TestEvaluateRejectsBiasConflict(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	// Set the regime directly (same package) rather than warming up the
	// classifier with bars.
	r.currentRegime = types.RegimeTrendingUp
	r.confidence = 0.9
	got := r.Evaluate(types.Signal{Pattern: types.PatternBuyImbalance, Direction: types.Short, Strength: 0.9})
	if got.Approved {
		t.Errorf("Evaluate() approved a SHORT signal in TRENDING_UP (LONG bias), want rejected")
	}

	profile := RegimeMap[types.RegimeTrendingUp]
	if profile.Bias != types.Long {
		t.Fatalf("RegimeMap[TRENDING_UP].Bias = %v, want LONG", profile.Bias)
	}
	if profile.EnabledPatterns[types.PatternSellImbalance] {
		t.Errorf("RegimeMap[TRENDING_UP] should not enable SELL_IMBALANCE")
	}
}

func TestRegimeMapNoTradeDisablesEverything(t *testing.T) {
	t.Parallel()

	profile := RegimeMap[types.RegimeNoTrade]
	if len(profile.EnabledPatterns) != 0 {
		t.Errorf("RegimeMap[NO_TRADE].EnabledPatterns = %v, want empty", profile.EnabledPatterns)
	}
	if profile.SizeMultiplier != 0 {
		t.Errorf("RegimeMap[NO_TRADE].SizeMultiplier = %v, want 0", profile.SizeMultiplier)
	}
}

func TestStateApprovalRateZeroBeforeAnyEvaluation(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	state := r.State()
	if state.ApprovalRate != 0 {
		t.Errorf("ApprovalRate before evaluation = %v, want 0", state.ApprovalRate)
	}
	if state.CurrentRegime != types.RegimeNoTrade {
		t.Errorf("CurrentRegime = %v, want NO_TRADE", state.CurrentRegime)
	}
}
