// Package scheduler runs the time-of-day trading tasks that don't belong in
// the hot tick-processing path: auto-flatten ahead of market close and the
// end-of-session Discord digest. Both are registered as cron entries rather
// than polled, using github.com/robfig/cron/v3.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Config tunes when the scheduled tasks fire, in market-local time.
type Config struct {
	MarketClose              time.Time // only hour/minute are used
	FlattenBeforeCloseMinutes int
	DigestTime               time.Time // only hour/minute are used
	Location                 *time.Location
}

// DefaultConfig matches the original's 4:00 PM close, 5-minute pre-close
// flatten, and 4:00 PM digest, in America/New_York.
func DefaultConfig() Config {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	close := time.Date(0, 1, 1, 16, 0, 0, 0, loc)
	return Config{
		MarketClose:               close,
		FlattenBeforeCloseMinutes: 5,
		DigestTime:                close,
		Location:                  loc,
	}
}

// Scheduler runs auto-flatten and daily-digest callbacks on a cron schedule.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	logger *slog.Logger

	flattenCallback func()
	digestCallback  func()
}

// New creates a Scheduler. Register callbacks with OnFlatten/OnDigest before
// calling Start.
func New(cfg Config, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		logger: logger.With("component", "scheduler"),
		cron:   cron.New(cron.WithLocation(cfg.Location)),
	}

	flattenAt := cfg.MarketClose.Add(-time.Duration(cfg.FlattenBeforeCloseMinutes) * time.Minute)
	flattenSpec := fmt.Sprintf("%d %d * * 1-5", flattenAt.Minute(), flattenAt.Hour())
	digestSpec := fmt.Sprintf("%d %d * * 1-5", cfg.DigestTime.Minute(), cfg.DigestTime.Hour())

	if _, err := s.cron.AddFunc(flattenSpec, s.runFlatten); err != nil {
		return nil, fmt.Errorf("register flatten job: %w", err)
	}
	if _, err := s.cron.AddFunc(digestSpec, s.runDigest); err != nil {
		return nil, fmt.Errorf("register digest job: %w", err)
	}

	return s, nil
}

// OnFlatten registers the callback invoked at the auto-flatten time.
func (s *Scheduler) OnFlatten(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flattenCallback = fn
}

// OnDigest registers the callback invoked at the daily digest time.
func (s *Scheduler) OnDigest(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digestCallback = fn
}

func (s *Scheduler) runFlatten() {
	s.mu.Lock()
	cb := s.flattenCallback
	s.mu.Unlock()

	s.logger.Info("auto-flatten triggered")
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in flatten callback", "recover", r)
		}
	}()
	cb()
}

func (s *Scheduler) runDigest() {
	s.mu.Lock()
	cb := s.digestCallback
	s.mu.Unlock()

	s.logger.Info("daily digest triggered")
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in digest callback", "recover", r)
		}
	}()
	cb()
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// earlyCloseDates lists trading dates that close early (1:00 PM ET),
// ported from the original's holiday calendar.
var earlyCloseDates = map[string]bool{
	"2024-11-29": true,
	"2024-12-24": true,
	"2025-07-03": true,
	"2025-11-28": true,
	"2025-12-24": true,
}

// marketHolidays lists dates the market is closed entirely.
var marketHolidays = map[string]bool{
	"2024-11-28": true,
	"2024-12-25": true,
	"2025-01-01": true,
	"2025-01-20": true,
	"2025-02-17": true,
	"2025-04-18": true,
	"2025-05-26": true,
	"2025-06-19": true,
	"2025-07-04": true,
	"2025-09-01": true,
	"2025-11-27": true,
	"2025-12-25": true,
}

// MarketCloseTime returns the close time for the given date's trading
// session, accounting for early-close holidays.
func MarketCloseTime(date time.Time) time.Time {
	dateStr := date.Format("2006-01-02")
	hour := 16
	if earlyCloseDates[dateStr] {
		hour = 13
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, 0, 0, 0, date.Location())
}

// IsMarketHoliday reports whether date is a market holiday.
func IsMarketHoliday(date time.Time) bool {
	return marketHolidays[date.Format("2006-01-02")]
}

// IsTradingDay reports whether date is a weekday and not a market holiday.
func IsTradingDay(date time.Time) bool {
	if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
		return false
	}
	return !IsMarketHoliday(date)
}
