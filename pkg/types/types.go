// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the engine — ticks, footprint
// bars, signals, regimes, and the execution/tier entities built on top of
// them. It has no dependencies on internal packages, so it can be imported
// by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side is the aggressor side of a tick: BID means a market-sell lifted the
// bid, ASK means a market-buy lifted the offer.
type Side string

const (
	Bid Side = "BID"
	Ask Side = "ASK"
)

// Direction is the directional bias of a Signal, Position, or Trade.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Pattern tags the kind of order-flow signature a detector found.
type Pattern string

const (
	PatternBuyImbalance           Pattern = "BUY_IMBALANCE"
	PatternSellImbalance          Pattern = "SELL_IMBALANCE"
	PatternStackedBuyImbalance    Pattern = "STACKED_BUY_IMBALANCE"
	PatternStackedSellImbalance   Pattern = "STACKED_SELL_IMBALANCE"
	PatternBuyingExhaustion       Pattern = "BUYING_EXHAUSTION"
	PatternSellingExhaustion      Pattern = "SELLING_EXHAUSTION"
	PatternBuyingAbsorption       Pattern = "BUYING_ABSORPTION"
	PatternSellingAbsorption      Pattern = "SELLING_ABSORPTION"
	PatternBullishDeltaDivergence Pattern = "BULLISH_DELTA_DIVERGENCE"
	PatternBearishDeltaDivergence Pattern = "BEARISH_DELTA_DIVERGENCE"
	PatternUnfinishedHigh         Pattern = "UNFINISHED_HIGH"
	PatternUnfinishedLow          Pattern = "UNFINISHED_LOW"
	PatternUnfinishedRevisited    Pattern = "UNFINISHED_REVISITED"
)

// Regime is the prevailing market-state classification.
type Regime string

const (
	RegimeTrendingUp   Regime = "TRENDING_UP"
	RegimeTrendingDown Regime = "TRENDING_DOWN"
	RegimeRanging      Regime = "RANGING"
	RegimeVolatile     Regime = "VOLATILE"
	RegimeNoTrade      Regime = "NO_TRADE"
)

// ExitReason records why a Position was closed.
type ExitReason string

const (
	ExitTarget      ExitReason = "TARGET"
	ExitStop        ExitReason = "STOP"
	ExitManual      ExitReason = "MANUAL"
	ExitHalted      ExitReason = "HALTED"
	ExitTimeout     ExitReason = "TIMEOUT"
	ExitAutoFlatten ExitReason = "AUTO_FLATTEN"
)

// SessionMode selects paper (simulated fills) or live (broker-routed) trading.
type SessionMode string

const (
	ModePaper SessionMode = "paper"
	ModeLive  SessionMode = "live"
)

// ————————————————————————————————————————————————————————————————————————
// Tick ingestion
// ————————————————————————————————————————————————————————————————————————

// Tick is a single trade print from the data feed. Timestamps are
// microsecond precision; Price is pre-snapped to the symbol's tick size by
// the adapter (the aggregator snaps again defensively).
type Tick struct {
	Timestamp time.Time
	Symbol    string
	Price     decimal.Decimal
	Volume    int64
	Side      Side
}

// ————————————————————————————————————————————————————————————————————————
// Footprint bar
// ————————————————————————————————————————————————————————————————————————

// PriceLevel tracks bid/ask volume transacted at one price within a bar.
// Volumes only grow while the bar is open; the level is frozen at bar close.
type PriceLevel struct {
	Price     decimal.Decimal
	BidVolume int64
	AskVolume int64
}

// TotalVolume is BidVolume + AskVolume at this level.
func (l PriceLevel) TotalVolume() int64 { return l.BidVolume + l.AskVolume }

// Delta is AskVolume - BidVolume (buy-aggressor minus sell-aggressor) at this level.
func (l PriceLevel) Delta() int64 { return l.AskVolume - l.BidVolume }

// FootprintBar is a fixed-duration bar annotated with per-price bid/ask volume.
type FootprintBar struct {
	Symbol    string
	StartTime time.Time
	EndTime   time.Time
	Timeframe time.Duration

	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal

	Levels map[string]*PriceLevel // keyed by Price.String(), snapped to tick size
}

// TotalVolume sums TotalVolume across every level in the bar.
func (b *FootprintBar) TotalVolume() int64 {
	var total int64
	for _, l := range b.Levels {
		total += l.TotalVolume()
	}
	return total
}

// Delta sums Delta across every level: buy_volume - sell_volume for the bar.
func (b *FootprintBar) Delta() int64 {
	var total int64
	for _, l := range b.Levels {
		total += l.Delta()
	}
	return total
}

// BuyVolume sums AskVolume (buy-aggressor volume) across the bar.
func (b *FootprintBar) BuyVolume() int64 {
	var total int64
	for _, l := range b.Levels {
		total += l.AskVolume
	}
	return total
}

// SellVolume sums BidVolume (sell-aggressor volume) across the bar.
func (b *FootprintBar) SellVolume() int64 {
	var total int64
	for _, l := range b.Levels {
		total += l.BidVolume
	}
	return total
}

// SortedLevels returns the bar's price levels ordered by ascending price.
func (b *FootprintBar) SortedLevels() []*PriceLevel {
	out := make([]*PriceLevel, 0, len(b.Levels))
	for _, l := range b.Levels {
		out = append(out, l)
	}
	sortLevelsByPrice(out)
	return out
}

func sortLevelsByPrice(levels []*PriceLevel) {
	for i := 1; i < len(levels); i++ {
		for j := i; j > 0 && levels[j].Price.LessThan(levels[j-1].Price); j-- {
			levels[j], levels[j-1] = levels[j-1], levels[j]
		}
	}
}

// ————————————————————————————————————————————————————————————————————————
// Signals and regime inputs
// ————————————————————————————————————————————————————————————————————————

// Signal is a detector's candidate trade, annotated by the router.
type Signal struct {
	Timestamp       time.Time
	Symbol          string
	Pattern         Pattern
	Direction       Direction
	Strength        float64 // clamped to [0,1]
	Price           decimal.Decimal
	Details         map[string]float64
	Regime          Regime
	Approved        bool
	RejectionReason string
}

// RegimeInputs is the full feature set the classifier consumes, recomputed
// once per completed bar from the buffered bar history.
type RegimeInputs struct {
	ADX14    float64
	ADXSlope float64

	EMAFast  float64
	EMASlow  float64
	EMATrend float64 // EMAFast - EMASlow

	PriceVsVWAP float64

	ATR14         float64
	ATRPercentile float64
	BarRangeAvg   float64

	VolumeVsAverage float64

	CumulativeDelta float64
	DeltaSlope      float64

	HigherHighs bool
	HigherLows  bool
	LowerHighs  bool
	LowerLows   bool
	RangeBars   int

	MinutesSinceOpen int
	MinutesToClose   int
	IsNewsWindow     bool
}

// RegimeResult is the classifier's output for one bar close.
type RegimeResult struct {
	Regime     Regime
	Confidence float64
}

// ————————————————————————————————————————————————————————————————————————
// Execution entities
// ————————————————————————————————————————————————————————————————————————

// BracketOrder is one logical order that creates a stop and a target leg on fill.
type BracketOrder struct {
	BracketID   string
	SignalID    string
	Symbol      string
	Side        Direction
	Size        int
	EntryPrice  decimal.Decimal
	StopPrice   decimal.Decimal
	TargetPrice decimal.Decimal

	IsActive bool
	IsFilled bool
	IsClosed bool

	CreatedAt time.Time
}

// Position is an open trade, owned exclusively by the execution engine.
// TickSize/TickValue are captured at entry so a later symbol or tier change
// never corrupts an already-open position's P&L math.
type Position struct {
	PositionID string
	BracketID  string
	Symbol     string
	Side       Direction
	Size       int
	EntryPrice decimal.Decimal
	EntryTime  time.Time

	CurrentPrice  decimal.Decimal
	UnrealizedPnL decimal.Decimal

	StopPrice   decimal.Decimal
	TargetPrice decimal.Decimal

	TickSize  decimal.Decimal
	TickValue decimal.Decimal
}

// UpdatePnL recomputes UnrealizedPnL from the current price using the
// position's own captured tick size/value, never the engine's current ones.
func (p *Position) UpdatePnL(currentPrice decimal.Decimal) decimal.Decimal {
	p.CurrentPrice = currentPrice
	diff := currentPrice.Sub(p.EntryPrice)
	if p.Side == Short {
		diff = diff.Neg()
	}
	ticks := diff.Div(p.TickSize)
	p.UnrealizedPnL = ticks.Mul(p.TickValue).Mul(decimal.NewFromInt(int64(p.Size)))
	return p.UnrealizedPnL
}

// Trade is an immutable record of a closed position.
type Trade struct {
	Symbol     string
	Side       Direction
	Size       int
	EntryPrice decimal.Decimal
	EntryTime  time.Time
	ExitPrice  decimal.Decimal
	ExitTime   time.Time
	ExitReason ExitReason

	PnL      decimal.Decimal
	PnLTicks int64

	Pattern Pattern
	Regime  Regime
}

// TradingSession is the immutable configuration for one trading day/run.
type TradingSession struct {
	Mode        SessionMode
	Symbol      string
	Timeframe   time.Duration
	SessionOpen time.Time
	SessionEnd  time.Time

	DailyProfitTarget   decimal.Decimal
	DailyLossLimit      decimal.Decimal
	MaxPositionSize     int
	MaxConcurrentTrades int
	StopLossTicks       int
	TakeProfitTicks     int

	PaperStartingBalance decimal.Decimal
	PaperSlippageTicks   int
	ConservativeFills    bool
	BypassTradingHours   bool
}

// TierState is the persisted capital/position-sizing state.
type TierState struct {
	Balance             decimal.Decimal
	TierIndex           int
	TierName            string
	Instrument          string
	MaxContracts        int
	DailyLossLimit      decimal.Decimal
	ScalingEnabled      bool
	SessionStartBalance decimal.Decimal
	SessionPnL          decimal.Decimal
	WinStreak           int
	LossStreak          int
}
