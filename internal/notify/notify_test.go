package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"orderflow-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAlertDailyLossLimitSendsWebhook(t *testing.T) {
	t.Parallel()

	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := New(DefaultConfig(srv.URL), testLogger())
	ok := n.AlertDailyLossLimit(context.Background(), decimal.NewFromInt(-500))
	if !ok {
		t.Fatalf("AlertDailyLossLimit() = false, want true")
	}
	if len(received.Embeds) != 1 {
		t.Fatalf("received %d embeds, want 1", len(received.Embeds))
	}
	if received.Embeds[0].Color != colors[LevelSessionHalt] {
		t.Errorf("embed color = %#x, want %#x", received.Embeds[0].Color, colors[LevelSessionHalt])
	}
}

func TestDisabledNotifierIsNoOp(t *testing.T) {
	t.Parallel()

	n := New(Config{}, testLogger())
	if n.AlertSystemError(context.Background(), "boom", "") {
		t.Errorf("AlertSystemError() = true with no webhook configured, want false")
	}
}

func TestAlertOnTradesRespectsConfigFlag(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL) // AlertOnTrades defaults to false
	n := New(cfg, testLogger())

	pos := types.Position{Symbol: "ES", Side: types.Long, Size: 1, EntryPrice: decimal.NewFromInt(5000)}
	if n.AlertTradeOpened(context.Background(), pos) {
		t.Errorf("AlertTradeOpened() = true with AlertOnTrades=false, want false")
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("webhook called %d times, want 0", calls)
	}

	cfg.AlertOnTrades = true
	n = New(cfg, testLogger())
	if !n.AlertTradeOpened(context.Background(), pos) {
		t.Errorf("AlertTradeOpened() = false with AlertOnTrades=true, want true")
	}
}

func TestAlertDailyDigestBuildsRegimeBreakdown(t *testing.T) {
	t.Parallel()

	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := New(DefaultConfig(srv.URL), testLogger())
	digest := Digest{
		Date:            "2026-07-29",
		StartingBalance: decimal.NewFromInt(2500),
		EndingBalance:   decimal.NewFromInt(2750),
		DayPnL:          decimal.NewFromInt(250),
		Trades:          3,
		Wins:            2,
		Losses:          1,
		WinRate:         66.7,
		RegimeBreakdown: map[types.Regime]int{types.RegimeTrendingUp: 2, types.RegimeRanging: 1},
		CurrentPosition: "FLAT",
	}
	if !n.AlertDailyDigest(context.Background(), digest) {
		t.Fatalf("AlertDailyDigest() = false, want true")
	}
	if len(received.Embeds[0].Fields) == 0 {
		t.Errorf("digest embed has no fields")
	}
}
