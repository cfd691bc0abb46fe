// Package schedule computes oToken expiry times. All arithmetic is in UTC.
package schedule

import "time"

// Window describes when expiry prices become pushable
type Window struct {
	Hour    int
	Weekday time.Weekday
}

// DefaultWindow is Friday 08:00 UTC
var DefaultWindow = Window{Hour: 8, Weekday: time.Friday}

// ExpiryTimestamp returns today's date in UTC at hour:00:00
func ExpiryTimestamp(now time.Time, hour int) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
}

// Expiry returns the expiry timestamp for the day containing now
func (w Window) Expiry(now time.Time) time.Time {
	return ExpiryTimestamp(now, w.Hour)
}

// Contains reports whether now falls on the expiry weekday at or after the expiry hour
func (w Window) Contains(now time.Time) bool {
	now = now.UTC()
	return now.Weekday() == w.Weekday && now.Hour() >= w.Hour
}

// Next returns the next expiry at or after now
func (w Window) Next(now time.Time) time.Time {
	expiry := w.Expiry(now)
	days := (int(w.Weekday) - int(expiry.Weekday()) + 7) % 7
	expiry = expiry.AddDate(0, 0, days)
	if expiry.Before(now) {
		expiry = expiry.AddDate(0, 0, 7)
	}
	return expiry
}
