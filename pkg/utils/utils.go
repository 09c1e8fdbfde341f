package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayLayout is the compact calendar-day format used in receipt numbers.
const DayLayout = "20060102"

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DaysBetween counts calendar days from `from` to `to` in loc. It is negative
// when `to` falls on an earlier day. Times of day are ignored.
func DaysBetween(from, to time.Time, loc *time.Location) int {
	start := StartOfDay(from, loc)
	end := StartOfDay(to, loc)
	// Date arithmetic on UTC midnights avoids DST-shortened days.
	startUTC := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	endUTC := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(endUTC.Sub(startUTC).Hours() / 24)
}

// CalculateDueDate returns the calendar day that is `days` after start, at midnight in loc.
func CalculateDueDate(start time.Time, days int, loc *time.Location) time.Time {
	return StartOfDay(start, loc).AddDate(0, 0, days)
}

// IsDateOverdue reports whether dueDate's calendar day is before today's.
func IsDateOverdue(dueDate, today time.Time, loc *time.Location) bool {
	return DaysBetween(dueDate, today, loc) > 0
}

// DayKey formats t's calendar day in loc as YYYYMMDD.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}

// Percentage returns part/whole*100 rounded to 2 places, or zero when whole is zero.
func Percentage(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).Round(2)
}
