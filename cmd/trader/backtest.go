package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"orderflow-engine/internal/config"
	"orderflow-engine/internal/engine"
	"orderflow-engine/internal/feed"
	"orderflow-engine/pkg/types"
)

var backtestPace bool

var backtestCmd = &cobra.Command{
	Use:   "backtest <tick-file.csv>",
	Short: "Replay a recorded CSV tick file through the full pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runBacktest,
}

func init() {
	backtestCmd.Flags().BoolVar(&backtestPace, "pace", false, "sleep between ticks for the recorded inter-tick gap")
}

// loadTickFile reads a CSV tick file with header
// timestamp,symbol,price,volume,side (side is "BID" or "ASK").
func loadTickFile(path string) ([]types.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tick file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 5 {
		return nil, fmt.Errorf("expected at least 5 columns, got %d", len(header))
	}

	var ticks []types.Tick
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		ts, err := time.Parse(time.RFC3339Nano, row[0])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", row[0], err)
		}

		price, err := decimal.NewFromString(row[2])
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", row[2], err)
		}

		volume, err := strconv.ParseInt(row[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse volume %q: %w", row[3], err)
		}

		side := types.Ask
		if row[4] == string(types.Bid) {
			side = types.Bid
		}

		ticks = append(ticks, types.Tick{
			Timestamp: ts,
			Symbol:    row[1],
			Price:     price,
			Volume:    volume,
			Side:      side,
		})
	}

	return ticks, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.DryRun = true

	logger := newLogger(cfg.Logging)

	ticks, err := loadTickFile(args[0])
	if err != nil {
		return err
	}
	if len(ticks) == 0 {
		return fmt.Errorf("tick file %q contains no rows", args[0])
	}
	logger.Info("replaying tick file", "path", args[0], "ticks", len(ticks))

	historicalFeed := feed.NewHistorical(ticks, backtestPace)

	deps, closeDeps, err := buildDependencies(cfg, logger, historicalFeed)
	if err != nil {
		return err
	}
	defer closeDeps()

	inputsCfg, detectorCfg := buildRegimeConfigs(cfg)
	session := buildSession(cfg)
	session.BypassTradingHours = true

	eng := engine.New(session, inputsCfg, detectorCfg, buildRouterConfig(), deps, logger)
	if err := eng.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	<-historicalFeed.Done()
	eng.Stop()

	printBacktestReport(eng)
	return nil
}

func printBacktestReport(eng *engine.Engine) {
	stats := eng.Statistics()
	state := eng.ExecutionState()
	tierState := eng.TierState()

	fmt.Println()
	fmt.Println("=== Backtest Report ===")
	fmt.Printf("Trades:        %d (win %d / loss %d)\n", state.CompletedTrades, state.WinCount, state.LossCount)
	fmt.Printf("Win rate:      %.1f%%\n", stats.WinRate*100)
	fmt.Printf("Total P&L:     %s\n", stats.TotalPnL.StringFixed(2))
	fmt.Printf("Profit factor: %.2f\n", stats.ProfitFactor)
	fmt.Printf("Largest win:   %s\n", stats.LargestWin.StringFixed(2))
	fmt.Printf("Largest loss:  %s\n", stats.LargestLoss.StringFixed(2))
	fmt.Printf("Ending tier:   %s (balance %s)\n", tierState.TierName, tierState.Balance.StringFixed(2))
}
