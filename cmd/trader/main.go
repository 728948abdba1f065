// Command trader is the order-flow futures trading engine's entry point.
//
//	trader run              — run against the configured live/paper data feed
//	trader backtest <file>  — replay a CSV tick file through the full pipeline
//
// Architecture:
//
//	internal/feed       — live WebSocket tick feed (auto-reconnect) or historical replay
//	internal/aggregator — tick-to-footprint-bar aggregation, cumulative delta, volume profile
//	internal/detectors  — the five order-flow pattern detectors
//	internal/regime     — regime feature calculation + five-regime classifier
//	internal/router     — regime-gated signal approval and position-size scaling
//	internal/execution  — bracket orders, paper/live fills, P&L, halt/resume
//	internal/tier       — capital-tier ladder and additive position sizing
//	internal/broker     — live order routing, rate-limited REST client
//	internal/store      — crash-safe JSON snapshot + SQLite tick/bar log
//	internal/notify     — Discord webhook alerts and the daily digest
//	internal/scheduler  — cron-driven auto-flatten and digest firing
//	internal/metrics    — Prometheus counters/gauges
//	internal/engine     — orchestrator wiring all of the above together
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "Order-flow futures trading engine",
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "configs/config.yaml", "path to config.yaml")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(backtestCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
