// Package dashboard runs the read-only HTTP status server: a health check,
// a JSON snapshot of engine/tier/execution state, and the Prometheus
// /metrics endpoint. It never accepts control input — all mutation happens
// through the engine itself.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderflow-engine/internal/config"
	"orderflow-engine/internal/engine"
	"orderflow-engine/internal/metrics"
)

// Snapshot is the JSON shape served from /api/snapshot.
type Snapshot struct {
	Timestamp time.Time             `json:"timestamp"`
	Symbol    string                `json:"symbol"`
	Mode      string                `json:"mode"`
	Halted    bool                  `json:"halted"`
	HaltReason string               `json:"halt_reason,omitempty"`
	Open      int                   `json:"open_positions"`
	Trades    int                   `json:"completed_trades"`
	Wins      int                   `json:"wins"`
	Losses    int                   `json:"losses"`
	WinRate   float64               `json:"win_rate"`
	DailyPnL  string                `json:"daily_pnl"`
	Tier      string                `json:"tier"`
	Balance   string                `json:"balance"`
}

func buildSnapshot(eng *engine.Engine) Snapshot {
	state := eng.ExecutionState()
	stats := eng.Statistics()
	tier := eng.TierState()

	return Snapshot{
		Timestamp:  time.Now(),
		Symbol:     state.Symbol,
		Mode:       string(state.Mode),
		Halted:     state.IsHalted,
		HaltReason: state.HaltReason,
		Open:       state.OpenPositions,
		Trades:     state.CompletedTrades,
		Wins:       state.WinCount,
		Losses:     state.LossCount,
		WinRate:    stats.WinRate * 100,
		DailyPnL:   state.DailyPnL.StringFixed(2),
		Tier:       tier.TierName,
		Balance:    tier.Balance.StringFixed(2),
	}
}

// Server is the status HTTP server. Start/Stop mirror the teacher's
// net/http.Server lifecycle.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

// NewServer builds a status server bound to cfg.Port, reading state from
// eng and exposing m's registry at /metrics.
func NewServer(cfg config.DashboardConfig, eng *engine.Engine, m *metrics.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(buildSnapshot(eng)); err != nil {
			logger.Error("encode snapshot", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	})

	if m != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	}

	return &Server{
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With("component", "dashboard"),
	}
}

// Start blocks until the server is stopped or fails to bind.
func (s *Server) Start() error {
	s.logger.Info("dashboard starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}
