package feed

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/pkg/types"
)

func TestHistoricalReplaysTicksInOrder(t *testing.T) {
	t.Parallel()

	ticks := []types.Tick{
		{Timestamp: time.Now(), Symbol: "ES", Price: decimal.NewFromInt(5000), Volume: 1, Side: types.Ask},
		{Timestamp: time.Now(), Symbol: "ES", Price: decimal.NewFromInt(5001), Volume: 2, Side: types.Bid},
	}
	h := NewHistorical(ticks, false)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	var got []types.Tick
	for tick := range h.Ticks() {
		got = append(got, tick)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d ticks, want 2", len(got))
	}
	if !got[0].Price.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("first tick price = %v, want 5000", got[0].Price)
	}
}

func TestHistoricalStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ticks := make([]types.Tick, 100)
	for i := range ticks {
		ticks[i] = types.Tick{Timestamp: time.Now(), Symbol: "ES", Price: decimal.NewFromInt(5000), Volume: 1, Side: types.Ask}
	}
	h := NewHistorical(ticks, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.Run(ctx)
	if err == nil {
		t.Errorf("Run() with cancelled context = nil error, want context.Canceled")
	}
}

func TestHistoricalCloseIsNoOp(t *testing.T) {
	t.Parallel()

	h := NewHistorical(nil, false)
	if err := h.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}
