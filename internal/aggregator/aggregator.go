// Package aggregator turns an ordered tick stream into footprint bars, and
// maintains the cumulative-delta and volume-profile read models built on top
// of completed bars. It is the sole owner of bar-in-progress state; callers
// drive it exclusively through ProcessTick on the hot path.
package aggregator

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/internal/constants"
	"orderflow-engine/pkg/types"
)

// BarObserver is invoked once per completed bar, in registration order.
type BarObserver func(*types.FootprintBar)

// Aggregator converts ticks into FootprintBars of fixed duration.
// All mutation happens on the hot-path goroutine; the mutex only guards
// reads from other goroutines (dashboard snapshot, tests).
type Aggregator struct {
	mu sync.RWMutex

	symbol    string
	timeframe time.Duration

	current   *types.FootprintBar
	completed []*types.FootprintBar
	maxHist   int

	observers []BarObserver

	delta   *CumulativeDelta
	profile *VolumeProfile
}

// New creates an Aggregator for symbol with the given bar duration.
// maxHistory bounds the completed-bar buffer (0 means unbounded).
func New(symbol string, timeframe time.Duration, maxHistory int) *Aggregator {
	return &Aggregator{
		symbol:    symbol,
		timeframe: timeframe,
		maxHist:   maxHistory,
		delta:     NewCumulativeDelta(1000),
		profile:   NewVolumeProfile(),
	}
}

// OnBarComplete registers an observer invoked after each completed bar.
func (a *Aggregator) OnBarComplete(obs BarObserver) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, obs)
}

// bucketStart floors ts to the nearest timeframe boundary (wall-clock
// aligned, never to the first tick).
func (a *Aggregator) bucketStart(ts time.Time) time.Time {
	secs := ts.Unix()
	tf := int64(a.timeframe.Seconds())
	bucket := (secs / tf) * tf
	return time.Unix(bucket, 0).UTC()
}

// ProcessTick feeds one tick into the current bar. It returns the
// just-completed bar if this tick crossed a bucket boundary, else nil.
func (a *Aggregator) ProcessTick(tick types.Tick) *types.FootprintBar {
	price := constants.NormalizePrice(tick.Price, tick.Symbol)
	bucket := a.bucketStart(tick.Timestamp)

	a.mu.Lock()
	var closed *types.FootprintBar

	if a.current == nil {
		a.current = a.newBar(bucket, price)
	} else if bucket.After(a.current.StartTime) {
		closed = a.current
		a.current = a.newBar(bucket, price)
	}

	a.addTickToBar(a.current, price, tick)
	a.mu.Unlock()

	if closed != nil {
		a.completeBar(closed)
	}
	return closed
}

func (a *Aggregator) newBar(bucket time.Time, price decimal.Decimal) *types.FootprintBar {
	return &types.FootprintBar{
		Symbol:    a.symbol,
		StartTime: bucket,
		EndTime:   bucket.Add(a.timeframe),
		Timeframe: a.timeframe,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Levels:    make(map[string]*types.PriceLevel),
	}
}

func (a *Aggregator) addTickToBar(bar *types.FootprintBar, price decimal.Decimal, tick types.Tick) {
	if price.GreaterThan(bar.High) {
		bar.High = price
	}
	if price.LessThan(bar.Low) {
		bar.Low = price
	}
	bar.Close = price

	key := price.String()
	level, ok := bar.Levels[key]
	if !ok {
		level = &types.PriceLevel{Price: price}
		bar.Levels[key] = level
	}
	if tick.Side == types.Ask {
		level.AskVolume += tick.Volume
	} else {
		level.BidVolume += tick.Volume
	}
}

// completeBar files the bar into history, updates the auxiliary read
// models, and notifies observers — all after the lock is released so a
// slow observer never blocks ProcessTick's caller from re-entering.
func (a *Aggregator) completeBar(bar *types.FootprintBar) {
	a.mu.Lock()
	a.completed = append(a.completed, bar)
	if a.maxHist > 0 && len(a.completed) > a.maxHist {
		a.completed = a.completed[len(a.completed)-a.maxHist:]
	}
	observers := make([]BarObserver, len(a.observers))
	copy(observers, a.observers)
	a.mu.Unlock()

	a.delta.Update(bar.Delta())
	a.profile.AddBar(bar)

	for _, obs := range observers {
		obs(bar)
	}
}

// GetRecentBars returns up to the last n completed bars, oldest first.
func (a *Aggregator) GetRecentBars(n int) []*types.FootprintBar {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if n <= 0 || n >= len(a.completed) {
		out := make([]*types.FootprintBar, len(a.completed))
		copy(out, a.completed)
		return out
	}
	out := make([]*types.FootprintBar, n)
	copy(out, a.completed[len(a.completed)-n:])
	return out
}

// CumulativeDelta returns the aggregator's running delta read model.
func (a *Aggregator) CumulativeDelta() *CumulativeDelta { return a.delta }

// VolumeProfile returns the aggregator's cross-bar volume profile.
func (a *Aggregator) VolumeProfile() *VolumeProfile { return a.profile }

// Reset clears all aggregator state (bar history, current bar, and the
// auxiliary read models). Used between sessions / in tests.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.current = nil
	a.completed = nil
	a.mu.Unlock()

	a.delta.Reset()
	a.profile.Reset()
}

// ————————————————————————————————————————————————————————————————————————
// Cumulative delta
// ————————————————————————————————————————————————————————————————————————

// CumulativeDelta maintains a running sum of per-bar delta and exposes a
// slope estimate over its most recent history.
type CumulativeDelta struct {
	mu      sync.RWMutex
	running int64
	history []int64 // running total after each bar
	maxLen  int
}

// NewCumulativeDelta creates a tracker bounding its history to maxLen entries.
func NewCumulativeDelta(maxLen int) *CumulativeDelta {
	return &CumulativeDelta{maxLen: maxLen}
}

// Update adds one bar's delta to the running total.
func (c *CumulativeDelta) Update(barDelta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running += barDelta
	c.history = append(c.history, c.running)
	if c.maxLen > 0 && len(c.history) > c.maxLen {
		c.history = c.history[len(c.history)-c.maxLen:]
	}
}

// Value returns the current cumulative delta.
func (c *CumulativeDelta) Value() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Slope estimates the cumulative-delta trend via linear regression over the
// last 5 values (the aggregator-level slope, distinct from RegimeInputs'
// 10-bar delta_slope computed separately in the regime package).
func (c *CumulativeDelta) Slope() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	const window = 5
	if len(c.history) < 2 {
		return 0
	}
	recent := c.history
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	n := len(recent)

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range recent {
		x := float64(i)
		y := float64(v)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := float64(n)*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (float64(n)*sumXY - sumX*sumY) / denom
}

// Reset clears the tracker back to zero.
func (c *CumulativeDelta) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = 0
	c.history = nil
}

// ————————————————————————————————————————————————————————————————————————
// Volume profile
// ————————————————————————————————————————————————————————————————————————

// VolumeProfile aggregates per-price volume across multiple bars to derive
// the point of control and value area.
type VolumeProfile struct {
	mu     sync.RWMutex
	volume map[string]int64 // price string -> total volume
	prices map[string]decimal.Decimal
}

// NewVolumeProfile creates an empty cross-bar volume profile.
func NewVolumeProfile() *VolumeProfile {
	return &VolumeProfile{
		volume: make(map[string]int64),
		prices: make(map[string]decimal.Decimal),
	}
}

// AddBar folds one completed bar's levels into the profile.
func (v *VolumeProfile) AddBar(bar *types.FootprintBar) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for key, level := range bar.Levels {
		v.volume[key] += level.TotalVolume()
		v.prices[key] = level.Price
	}
}

type profileEntry struct {
	price  decimal.Decimal
	volume int64
}

func (v *VolumeProfile) sortedEntries() []profileEntry {
	entries := make([]profileEntry, 0, len(v.volume))
	for key, vol := range v.volume {
		entries = append(entries, profileEntry{price: v.prices[key], volume: vol})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].price.LessThan(entries[j].price) })
	return entries
}

// POC returns the price level with maximum total volume, and whether any
// data is present.
func (v *VolumeProfile) POC() (decimal.Decimal, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var best profileEntry
	found := false
	for key, vol := range v.volume {
		if !found || vol > best.volume {
			best = profileEntry{price: v.prices[key], volume: vol}
			found = true
		}
	}
	return best.price, found
}

// ValueArea returns the narrowest contiguous price range containing at
// least `pct` (default 0.70) of total volume, built by sorting levels by
// volume descending and accumulating until the threshold is met, then
// reporting the low/high of the accumulated set.
func (v *VolumeProfile) ValueArea(pct float64) (low, high decimal.Decimal, ok bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(v.volume) == 0 {
		return decimal.Zero, decimal.Zero, false
	}

	entries := v.sortedEntries()
	var total int64
	for _, e := range entries {
		total += e.volume
	}
	if total == 0 {
		return decimal.Zero, decimal.Zero, false
	}

	byVolume := make([]profileEntry, len(entries))
	copy(byVolume, entries)
	sort.Slice(byVolume, func(i, j int) bool { return byVolume[i].volume > byVolume[j].volume })

	included := make(map[string]bool)
	var accumulated int64
	threshold := float64(total) * pct
	for _, e := range byVolume {
		included[e.price.String()] = true
		accumulated += e.volume
		if float64(accumulated) >= threshold {
			break
		}
	}

	found := false
	for _, e := range entries {
		if !included[e.price.String()] {
			continue
		}
		if !found {
			low, high = e.price, e.price
			found = true
			continue
		}
		if e.price.LessThan(low) {
			low = e.price
		}
		if e.price.GreaterThan(high) {
			high = e.price
		}
	}
	return low, high, found
}

// HighVolumeNodes returns prices whose volume share exceeds thresholdPct
// (default 0.10) of total profile volume.
func (v *VolumeProfile) HighVolumeNodes(thresholdPct float64) []decimal.Decimal {
	return v.nodesAboveOrBelow(thresholdPct, true)
}

// LowVolumeNodes returns prices whose volume share is below thresholdPct
// (default 0.05) of total profile volume.
func (v *VolumeProfile) LowVolumeNodes(thresholdPct float64) []decimal.Decimal {
	return v.nodesAboveOrBelow(thresholdPct, false)
}

func (v *VolumeProfile) nodesAboveOrBelow(thresholdPct float64, above bool) []decimal.Decimal {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var total int64
	for _, vol := range v.volume {
		total += vol
	}
	if total == 0 {
		return nil
	}

	var out []decimal.Decimal
	for key, vol := range v.volume {
		share := float64(vol) / float64(total)
		if (above && share > thresholdPct) || (!above && share < thresholdPct) {
			out = append(out, v.prices[key])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	return out
}

// Reset clears all accumulated profile data.
func (v *VolumeProfile) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.volume = make(map[string]int64)
	v.prices = make(map[string]decimal.Decimal)
}
