// Package constants holds the persisted symbol table: tick size, per-tick
// dollar value, and detector tuning per instrument. These are the hard-coded
// constants spec'd in the external-interfaces contract, not runtime config.
package constants

import "github.com/shopspring/decimal"

// TickSizes maps an instrument family to its minimum price increment.
var TickSizes = map[string]decimal.Decimal{
	"ES":  decimal.NewFromFloat(0.25),
	"MES": decimal.NewFromFloat(0.25),
	"NQ":  decimal.NewFromFloat(0.25),
	"MNQ": decimal.NewFromFloat(0.25),
	"CL":  decimal.NewFromFloat(0.01),
	"GC":  decimal.NewFromFloat(0.10),
	"SI":  decimal.NewFromFloat(0.005),
	"RTY": decimal.NewFromFloat(0.10),
	"M2K": decimal.NewFromFloat(0.10),
	"YM":  decimal.NewFromFloat(1.0),
	"MYM": decimal.NewFromFloat(1.0),
	"SPY": decimal.NewFromFloat(0.01),
	"QQQ": decimal.NewFromFloat(0.01),
	"IWM": decimal.NewFromFloat(0.01),
}

// TickValues maps an instrument family to its dollar value per tick.
var TickValues = map[string]decimal.Decimal{
	"ES":  decimal.NewFromFloat(12.50),
	"MES": decimal.NewFromFloat(1.25),
	"NQ":  decimal.NewFromFloat(5.00),
	"MNQ": decimal.NewFromFloat(0.50),
	"CL":  decimal.NewFromFloat(10.00),
	"GC":  decimal.NewFromFloat(10.00),
	"SI":  decimal.NewFromFloat(25.00),
	"RTY": decimal.NewFromFloat(5.00),
	"M2K": decimal.NewFromFloat(0.50),
	"YM":  decimal.NewFromFloat(5.00),
	"MYM": decimal.NewFromFloat(0.50),
	"SPY": decimal.NewFromFloat(0.01),
	"QQQ": decimal.NewFromFloat(0.01),
	"IWM": decimal.NewFromFloat(0.01),
}

var defaultTickSize = decimal.NewFromFloat(0.25)
var defaultTickValue = decimal.NewFromFloat(1.25)

// SymbolProfile holds per-instrument detector tuning and default bracket distances.
type SymbolProfile struct {
	ImbalanceMinVolume  int64
	AbsorptionMinVolume int64
	TypicalBarVolume    int64
	StopTicks           int
	TargetTicks         int
}

// SymbolProfiles maps an instrument family to its tuning defaults.
var SymbolProfiles = map[string]SymbolProfile{
	"ES":  {ImbalanceMinVolume: 20, AbsorptionMinVolume: 150, TypicalBarVolume: 5000, StopTicks: 16, TargetTicks: 24},
	"MES": {ImbalanceMinVolume: 5, AbsorptionMinVolume: 30, TypicalBarVolume: 500, StopTicks: 16, TargetTicks: 24},
	"NQ":  {ImbalanceMinVolume: 15, AbsorptionMinVolume: 100, TypicalBarVolume: 3000, StopTicks: 20, TargetTicks: 32},
	"MNQ": {ImbalanceMinVolume: 5, AbsorptionMinVolume: 25, TypicalBarVolume: 300, StopTicks: 20, TargetTicks: 32},
	"CL":  {ImbalanceMinVolume: 30, AbsorptionMinVolume: 200, TypicalBarVolume: 8000, StopTicks: 20, TargetTicks: 30},
	"GC":  {ImbalanceMinVolume: 15, AbsorptionMinVolume: 100, TypicalBarVolume: 2000, StopTicks: 20, TargetTicks: 30},
	"SPY": {ImbalanceMinVolume: 1000, AbsorptionMinVolume: 5000, TypicalBarVolume: 100000, StopTicks: 50, TargetTicks: 100},
	"QQQ": {ImbalanceMinVolume: 500, AbsorptionMinVolume: 3000, TypicalBarVolume: 50000, StopTicks: 50, TargetTicks: 100},
}

// symbolBase tries the 3-char prefix first (MES, MNQ), then the 2-char
// prefix (ES, NQ, CL, GC) — matches the original's symbol[:3]/symbol[:2] lookup.
func symbolBase(symbol string, has func(string) bool) string {
	if len(symbol) >= 3 && has(symbol[:3]) {
		return symbol[:3]
	}
	if len(symbol) >= 2 && has(symbol[:2]) {
		return symbol[:2]
	}
	return ""
}

func hasTickSize(k string) bool { _, ok := TickSizes[k]; return ok }

// TickSizeFor returns the tick size for a symbol, defaulting to 0.25.
func TickSizeFor(symbol string) decimal.Decimal {
	base := symbolBase(symbol, hasTickSize)
	if base == "" {
		return defaultTickSize
	}
	return TickSizes[base]
}

// TickValueFor returns the dollar value per tick for a symbol, defaulting to 1.25.
func TickValueFor(symbol string) decimal.Decimal {
	base := symbolBase(symbol, hasTickSize)
	if base == "" {
		return defaultTickValue
	}
	v, ok := TickValues[base]
	if !ok {
		return defaultTickValue
	}
	return v
}

func hasProfile(k string) bool { _, ok := SymbolProfiles[k]; return ok }

// ProfileFor returns the tuning profile for a symbol, defaulting to MES's.
func ProfileFor(symbol string) SymbolProfile {
	base := symbolBase(symbol, hasProfile)
	if base == "" {
		return SymbolProfiles["MES"]
	}
	return SymbolProfiles[base]
}

// NormalizePrice rounds price to the nearest valid tick increment for symbol.
func NormalizePrice(price decimal.Decimal, symbol string) decimal.Decimal {
	tickSize := TickSizeFor(symbol)
	return price.DivRound(tickSize, 8).Round(0).Mul(tickSize)
}
