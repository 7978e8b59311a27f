package market

import "time"

// US equity market session: 09:30–16:00 Eastern, Monday–Friday.
const (
	openMinute  = 9*60 + 30
	closeMinute = 16 * 60
)

var eastern = mustLoadEastern()

func mustLoadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic("market: load America/New_York: " + err.Error())
	}
	return loc
}

// Clock answers market-hours questions for the US equity session.
// The zero value is usable.
type Clock struct{}

// NewClock returns a market clock.
func NewClock() Clock {
	return Clock{}
}

// IsOpen reports whether the market is open at the given instant:
// Monday–Friday, 09:30 (inclusive) to 16:00 (exclusive) US Eastern.
func (Clock) IsOpen(now time.Time) bool {
	et := now.In(eastern)

	switch et.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minutes := et.Hour()*60 + et.Minute()
	return minutes >= openMinute && minutes < closeMinute
}

// NextOpen returns the next weekday 09:30 Eastern open. Callers must only
// invoke it while the market is closed: from inside the session it returns
// the already-elapsed 09:30 of the same day.
func (Clock) NextOpen(now time.Time) time.Time {
	et := now.In(eastern)

	next := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, eastern)

	// Session over for today: candidate moves to tomorrow.
	if et.Hour() >= 16 {
		next = next.AddDate(0, 0, 1)
	}

	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}

	return next
}
