// Package clock grounds spec.md's C2: monotonic now plus IST-aware
// day/week/month boundaries used by the quota gate (C8) and scheduled
// jobs (C11). No example repo in the pack imports a calendar/timezone
// library beyond stdlib time, so this stays on the standard library —
// there is no ecosystem dependency to wire here.
package clock

import "time"

// IST is the fixed timezone every daily/weekly/monthly reset is keyed
// against (spec.md glossary: "IST: Asia/Kolkata timezone; governs all
// daily/weekly resets").
var IST = mustLoadIST()

func mustLoadIST() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Asia/Kolkata has no DST and a fixed +5:30 offset; fall back
		// to a fixed-offset zone if the tzdata package is unavailable
		// in a minimal container image.
		return time.FixedZone("IST", 5*3600+30*60)
	}
	return loc
}

// Clock is the single source of "now" so tests can substitute a fixed
// time without touching the real clock.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock backed by time.Now.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Fixed is a test Clock that always returns the same instant.
type Fixed struct{ At time.Time }

func (f Fixed) Now() time.Time { return f.At }

// DailyPeriodKey returns the IST calendar-date key for a daily quota
// counter or daily scheduled job, e.g. "2026-07-31".
func DailyPeriodKey(t time.Time) string {
	return t.In(IST).Format("2006-01-02")
}

// WeeklyPeriodKey returns the IST ISO-week key, e.g. "2026-W31".
func WeeklyPeriodKey(t time.Time) string {
	year, week := t.In(IST).ISOWeek()
	return itoa(year) + "-W" + weekPad(week)
}

func weekPad(week int) string {
	if week < 10 {
		return "0" + itoa(week)
	}
	return itoa(week)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := [20]byte{}
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

// MonthlyPeriodKey returns the IST year-month key, e.g. "2026-07".
func MonthlyPeriodKey(t time.Time) string {
	return t.In(IST).Format("2006-01")
}

// NextDailyReset returns the IST midnight that starts the next daily
// period after t.
func NextDailyReset(t time.Time) time.Time {
	ist := t.In(IST)
	next := time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST).AddDate(0, 0, 1)
	return next
}

// NextWeeklyReset returns the next IST Monday midnight after t.
func NextWeeklyReset(t time.Time) time.Time {
	ist := t.In(IST)
	daysUntilMonday := (8 - int(ist.Weekday())) % 7
	if daysUntilMonday == 0 {
		daysUntilMonday = 7
	}
	base := time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST)
	return base.AddDate(0, 0, daysUntilMonday)
}

// NextMonthlyReset returns the first of the next IST month after t.
func NextMonthlyReset(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), 1, 0, 0, 0, 0, IST).AddDate(0, 1, 0)
}
