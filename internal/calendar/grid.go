// Package calendar builds the month grid shown by the booking wizard.
package calendar

import (
	"time"

	"github.com/wolfman30/velo-booking/internal/booking"
)

// Month identifies a displayed calendar month.
type Month struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// MonthOf returns the month containing d.
func MonthOf(d booking.Date) Month {
	return Month{Year: d.Year, Month: d.Month}
}

// First returns the first day of the month.
func (m Month) First() booking.Date {
	return booking.Date{Year: m.Year, Month: m.Month, Day: 1}
}

// Days returns the number of days in the month.
func (m Month) Days() int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Next returns the following month.
func (m Month) Next() Month {
	return MonthOf(booking.DateOf(time.Date(m.Year, m.Month+1, 1, 0, 0, 0, 0, time.UTC)))
}

// Prev returns the preceding month.
func (m Month) Prev() Month {
	return MonthOf(booking.DateOf(time.Date(m.Year, m.Month-1, 1, 0, 0, 0, 0, time.UTC)))
}

// Before reports whether m is earlier than other.
func (m Month) Before(other Month) bool {
	return m.First().Before(other.First())
}

// Day is a single tagged calendar cell.
type Day struct {
	Date        booking.Date `json:"date"`
	Past        bool         `json:"is_past"`
	Closed      bool         `json:"is_closed"`
	FullyBooked bool         `json:"is_fully_booked"`
	Selected    bool         `json:"is_selected"`
	Today       bool         `json:"is_today"`
}

// Disabled reports whether the day cannot be chosen.
func (d Day) Disabled() bool {
	return d.Past || d.Closed || d.FullyBooked
}

// Options are the inputs to Build.
type Options struct {
	Month          Month
	Today          booking.Date
	ClosedWeekdays []time.Weekday
	// FullyBooked reports whether a date is in the fully-booked marker set.
	FullyBooked func(booking.Date) bool
	Selected    *booking.Date
}

// Build returns every day of the month tagged for rendering. It has no side
// effects; "today" is supplied by the caller.
func Build(opts Options) []Day {
	closed := make(map[time.Weekday]bool, len(opts.ClosedWeekdays))
	for _, wd := range opts.ClosedWeekdays {
		closed[wd] = true
	}

	n := opts.Month.Days()
	days := make([]Day, 0, n)
	for i := 1; i <= n; i++ {
		date := booking.Date{Year: opts.Month.Year, Month: opts.Month.Month, Day: i}
		day := Day{
			Date:   date,
			Past:   date.Before(opts.Today),
			Closed: closed[date.Weekday()],
			Today:  date == opts.Today,
		}
		if opts.FullyBooked != nil {
			day.FullyBooked = opts.FullyBooked(date)
		}
		if opts.Selected != nil {
			day.Selected = *opts.Selected == date
		}
		days = append(days, day)
	}
	return days
}

// Selectable reports whether date would be enabled in a grid built with the
// same options. It is the check the wizard applies before accepting a date.
func Selectable(date booking.Date, opts Options) bool {
	if date.Before(opts.Today) {
		return false
	}
	for _, wd := range opts.ClosedWeekdays {
		if date.Weekday() == wd {
			return false
		}
	}
	if opts.FullyBooked != nil && opts.FullyBooked(date) {
		return false
	}
	return true
}
