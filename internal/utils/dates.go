package utils

import "time"

// ISODate is the date-only layout used for flags and storage.
const ISODate = "2006-01-02"

// MidnightLocal truncates t to 00:00 of its calendar day in local time.
func MidnightLocal(t time.Time) time.Time {
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}

// DaysBetween returns the number of calendar days from the local date of
// from to the local date of to. It is negative when to is earlier.
// DST shifts do not affect the result.
func DaysBetween(from, to time.Time) int {
	from = from.In(time.Local)
	to = to.In(time.Local)
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// DateFromDays returns local midnight of the day that is days after now.
func DateFromDays(now time.Time, days int) time.Time {
	return MidnightLocal(now).AddDate(0, 0, days)
}

// NormalizeDate returns a copy of d truncated to local midnight, or nil.
func NormalizeDate(d *time.Time) *time.Time {
	if d == nil {
		return nil
	}
	n := MidnightLocal(*d)
	return &n
}
