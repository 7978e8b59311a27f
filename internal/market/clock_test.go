package market_test

import (
	"TradeArena/internal/market"
	"testing"
	"time"
)

var eastern = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}()

// et builds an Eastern wall-clock instant. 2026-08-26 is a Wednesday.
func et(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, eastern)
}

// ============================================================================
// Test: IsOpen
// ============================================================================

func TestIsOpen_DuringSession(t *testing.T) {
	clock := market.NewClock()

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"wednesday noon", et(2026, time.August, 26, 12, 0), true},
		{"opening bell", et(2026, time.August, 26, 9, 30), true},
		{"minute before open", et(2026, time.August, 26, 9, 29), false},
		{"closing bell is closed", et(2026, time.August, 26, 16, 0), false},
		{"minute before close", et(2026, time.August, 26, 15, 59), true},
		{"early morning", et(2026, time.August, 26, 6, 0), false},
		{"evening", et(2026, time.August, 26, 20, 0), false},
		{"saturday", et(2026, time.August, 29, 12, 0), false},
		{"sunday", et(2026, time.August, 30, 12, 0), false},
	}

	for _, tc := range cases {
		if got := clock.IsOpen(tc.now); got != tc.want {
			t.Errorf("%s: IsOpen(%v) = %v, want %v", tc.name, tc.now, got, tc.want)
		}
	}
}

func TestIsOpen_ConvertsToEastern(t *testing.T) {
	clock := market.NewClock()

	// 18:00 UTC on a Wednesday is 14:00 Eastern in August (EDT), so open.
	now := time.Date(2026, time.August, 26, 18, 0, 0, 0, time.UTC)
	if !clock.IsOpen(now) {
		t.Errorf("IsOpen(%v) = false, want true (14:00 ET)", now)
	}

	// 22:00 UTC is 18:00 Eastern, after the close.
	now = time.Date(2026, time.August, 26, 22, 0, 0, 0, time.UTC)
	if clock.IsOpen(now) {
		t.Errorf("IsOpen(%v) = true, want false (18:00 ET)", now)
	}
}

// ============================================================================
// Test: NextOpen
// ============================================================================

func TestNextOpen_BeforeOpenSameDay(t *testing.T) {
	clock := market.NewClock()

	now := et(2026, time.August, 26, 7, 0) // Wednesday pre-market
	want := et(2026, time.August, 26, 9, 30)
	if got := clock.NextOpen(now); !got.Equal(want) {
		t.Errorf("NextOpen(%v) = %v, want %v", now, got, want)
	}
}

func TestNextOpen_EveningRollsToNextDay(t *testing.T) {
	clock := market.NewClock()

	now := et(2026, time.August, 26, 18, 0) // Wednesday evening
	want := et(2026, time.August, 27, 9, 30)
	if got := clock.NextOpen(now); !got.Equal(want) {
		t.Errorf("NextOpen(%v) = %v, want %v", now, got, want)
	}
}

func TestNextOpen_FridayEveningSkipsWeekend(t *testing.T) {
	clock := market.NewClock()

	now := et(2026, time.August, 28, 17, 0) // Friday after close
	want := et(2026, time.August, 31, 9, 30) // Monday
	if got := clock.NextOpen(now); !got.Equal(want) {
		t.Errorf("NextOpen(%v) = %v, want %v", now, got, want)
	}
}

func TestNextOpen_Weekend(t *testing.T) {
	clock := market.NewClock()

	now := et(2026, time.August, 29, 11, 0) // Saturday morning
	want := et(2026, time.August, 31, 9, 30)
	if got := clock.NextOpen(now); !got.Equal(want) {
		t.Errorf("NextOpen(%v) = %v, want %v", now, got, want)
	}
}

func TestNextOpen_IsWeekdayMorning(t *testing.T) {
	clock := market.NewClock()

	now := et(2026, time.August, 28, 20, 15) // Friday night
	next := clock.NextOpen(now)

	if !next.After(now) {
		t.Fatalf("NextOpen(%v) = %v, not after now", now, next)
	}
	if wd := next.Weekday(); wd == time.Saturday || wd == time.Sunday {
		t.Errorf("NextOpen landed on %v", wd)
	}
	if next.Hour() != 9 || next.Minute() != 30 {
		t.Errorf("NextOpen time = %02d:%02d, want 09:30", next.Hour(), next.Minute())
	}
}
