package indicators

import "testing"

func TestEMASeedsWithSMA(t *testing.T) {
	t.Parallel()

	values := []float64{1, 2, 3, 4, 5, 6}
	got := EMA(values, 3)
	wantSeed := (1.0 + 2 + 3) / 3
	for i := 0; i < 3; i++ {
		if got[i] != wantSeed {
			t.Errorf("EMA[%d] = %v, want seed %v", i, got[i], wantSeed)
		}
	}
	if len(got) != len(values) {
		t.Fatalf("len(EMA) = %d, want %d", len(got), len(values))
	}
}

func TestSMAGrowingWindow(t *testing.T) {
	t.Parallel()

	got := SMA([]float64{2, 4, 6, 8}, 2)
	want := []float64{2, 3, 5, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SMA[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTrueRangeFirstBarIsHighMinusLow(t *testing.T) {
	t.Parallel()

	bars := []OHLC{{High: 10, Low: 8, Close: 9}}
	got := TrueRange(bars)
	if got[0] != 2 {
		t.Errorf("TrueRange[0] = %v, want 2", got[0])
	}
}

func TestADXRequiresWarmup(t *testing.T) {
	t.Parallel()

	bars := make([]OHLC, 10)
	for i := range bars {
		bars[i] = OHLC{High: float64(i + 1), Low: float64(i), Close: float64(i) + 0.5}
	}
	got := ADX(bars, 14)
	for _, v := range got {
		if v != 0 {
			t.Errorf("ADX before warm-up should be all zero, got %v", v)
		}
	}
}

func TestSlopePositiveForRisingSeries(t *testing.T) {
	t.Parallel()

	got := Slope([]float64{1, 2, 3, 4, 5}, 5)
	if got <= 0 {
		t.Errorf("Slope() = %v, want > 0 for rising series", got)
	}
}

func TestPercentileBoundaries(t *testing.T) {
	t.Parallel()

	dist := []float64{1, 2, 3, 4, 5}
	if got := Percentile(0, dist); got != 0 {
		t.Errorf("Percentile(below all) = %v, want 0", got)
	}
	if got := Percentile(6, dist); got != 100 {
		t.Errorf("Percentile(above all) = %v, want 100", got)
	}
}

func TestCheckHigherHighsAndLows(t *testing.T) {
	t.Parallel()

	highs := []float64{10, 11, 12, 13, 14}
	if !CheckHigherHighs(highs, 5) {
		t.Error("CheckHigherHighs() = false, want true for monotonic highs")
	}

	lows := []float64{5, 6, 7, 8, 9}
	if !CheckHigherLows(lows, 5) {
		t.Error("CheckHigherLows() = false, want true for monotonic lows")
	}
}

func TestCountRangeBoundBars(t *testing.T) {
	t.Parallel()

	highs := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10}
	lows := []float64{9, 9, 9, 9, 9, 9, 9, 9, 9, 9}
	got := CountRangeBoundBars(highs, lows, 10)
	if got != 10 {
		t.Errorf("CountRangeBoundBars() = %d, want 10 for a flat series", got)
	}
}
