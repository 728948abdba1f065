package constants

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestTickSizeForPrefixFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		symbol string
		want   decimal.Decimal
	}{
		{"MES", decimal.NewFromFloat(0.25)},
		{"MESZ25", decimal.NewFromFloat(0.25)},
		{"ESZ25", decimal.NewFromFloat(0.25)},
		{"GCZ25", decimal.NewFromFloat(0.10)},
		{"UNKNOWN", decimal.NewFromFloat(0.25)},
	}

	for _, tt := range tests {
		if got := TickSizeFor(tt.symbol); !got.Equal(tt.want) {
			t.Errorf("TickSizeFor(%q) = %s, want %s", tt.symbol, got, tt.want)
		}
	}
}

func TestTickValueForES(t *testing.T) {
	t.Parallel()

	if got := TickValueFor("ESZ25"); !got.Equal(decimal.NewFromFloat(12.50)) {
		t.Errorf("TickValueFor(ESZ25) = %s, want 12.50", got)
	}
}

func TestProfileForDefaultsToMES(t *testing.T) {
	t.Parallel()

	p := ProfileFor("ZZZ")
	if p.StopTicks != SymbolProfiles["MES"].StopTicks {
		t.Errorf("ProfileFor(ZZZ).StopTicks = %d, want MES default %d", p.StopTicks, SymbolProfiles["MES"].StopTicks)
	}
}

func TestNormalizePriceSnapsToTick(t *testing.T) {
	t.Parallel()

	got := NormalizePrice(decimal.NewFromFloat(5000.13), "ES")
	want := decimal.NewFromFloat(5000.25)
	if !got.Equal(want) {
		t.Errorf("NormalizePrice(5000.13, ES) = %s, want %s", got, want)
	}
}
