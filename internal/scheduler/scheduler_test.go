package scheduler

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRegistersBothJobs(t *testing.T) {
	t.Parallel()

	s, err := New(DefaultConfig(), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(s.cron.Entries()) != 2 {
		t.Errorf("registered %d cron entries, want 2", len(s.cron.Entries()))
	}
}

func TestRunFlattenInvokesCallback(t *testing.T) {
	t.Parallel()

	s, err := New(DefaultConfig(), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	called := false
	s.OnFlatten(func() { called = true })
	s.runFlatten()

	if !called {
		t.Errorf("flatten callback was not invoked")
	}
}

func TestRunDigestRecoversFromPanic(t *testing.T) {
	t.Parallel()

	s, err := New(DefaultConfig(), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.OnDigest(func() { panic("boom") })
	// Must not propagate the panic to the caller.
	s.runDigest()
}

func TestMarketCloseTimeEarlyClose(t *testing.T) {
	t.Parallel()

	thanksgivingFriday := time.Date(2024, 11, 29, 0, 0, 0, 0, time.UTC)
	close := MarketCloseTime(thanksgivingFriday)
	if close.Hour() != 13 {
		t.Errorf("close hour = %d, want 13 (early close)", close.Hour())
	}

	ordinary := time.Date(2024, 11, 27, 0, 0, 0, 0, time.UTC)
	close = MarketCloseTime(ordinary)
	if close.Hour() != 16 {
		t.Errorf("close hour = %d, want 16 (standard close)", close.Hour())
	}
}

func TestIsTradingDayExcludesWeekendsAndHolidays(t *testing.T) {
	t.Parallel()

	saturday := time.Date(2025, 11, 29, 0, 0, 0, 0, time.UTC)
	if IsTradingDay(saturday) {
		t.Errorf("IsTradingDay(Saturday) = true, want false")
	}

	thanksgiving := time.Date(2025, 11, 27, 0, 0, 0, 0, time.UTC)
	if IsTradingDay(thanksgiving) {
		t.Errorf("IsTradingDay(Thanksgiving) = true, want false")
	}

	ordinary := time.Date(2025, 11, 24, 0, 0, 0, 0, time.UTC) // Monday
	if !IsTradingDay(ordinary) {
		t.Errorf("IsTradingDay(ordinary Monday) = false, want true")
	}
}
