// Package timegrid produces the 30-minute booking grid for a calendar date in
// the club's fixed timezone and classifies grid points against the clock and
// the recurring priority window.
package timegrid

import (
	"fmt"
	"time"
)

// DateLayout is the canonical text form of a booking date.
const DateLayout = "2006-01-02"

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// PriorityWindow is a recurring band of local time on selected weekdays during
// which bar bookings take precedence over mahjong.
type PriorityWindow struct {
	Days  []time.Weekday
	Start TimeOfDay
	End   TimeOfDay // exclusive; may be MinutesPerDay for "until midnight"
	// Release is how long before a slot the priority lapses. Zero keeps the
	// window restricted right up to the slot.
	Release time.Duration
}

// Options configures a Grid.
type Options struct {
	Location       *time.Location
	LastStart      TimeOfDay // latest selectable start; defaults to 23:30
	OvernightUntil TimeOfDay // latest end time on the following date, e.g. 02:00
	Priority       PriorityWindow
	Clock          Clock
}

// Grid is the Time-Grid Service.
type Grid struct {
	loc            *time.Location
	lastStart      TimeOfDay
	overnightUntil TimeOfDay
	priority       PriorityWindow
	clock          Clock
}

// New creates a Grid. A nil location means UTC and a nil clock uses the system clock.
func New(opts Options) *Grid {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	lastStart := opts.LastStart
	if lastStart <= 0 || lastStart >= MinutesPerDay {
		lastStart = MinutesPerDay - SlotMinutes
	}
	return &Grid{
		loc:            loc,
		lastStart:      lastStart,
		overnightUntil: opts.OvernightUntil,
		priority:       opts.Priority,
		clock:          clock,
	}
}

func (g *Grid) Location() *time.Location { return g.loc }
func (g *Grid) Clock() Clock             { return g.clock }

// Now returns the current instant in the resource timezone.
func (g *Grid) Now() time.Time {
	return g.clock.Now().In(g.loc)
}

// Today returns local midnight of the current resource-timezone date.
func (g *Grid) Today() time.Time {
	return g.Date(g.Now())
}

// Date truncates t to local midnight in the resource timezone.
func (g *Grid) Date(t time.Time) time.Time {
	t = t.In(g.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, g.loc)
}

// ParseDate parses a YYYY-MM-DD date in the resource timezone.
func (g *Grid) ParseDate(raw string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, raw, g.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", raw, err)
	}
	return d, nil
}

// AddDays moves a date by whole calendar days, DST-safe.
func (g *Grid) AddDays(date time.Time, days int) time.Time {
	date = g.Date(date)
	return time.Date(date.Year(), date.Month(), date.Day()+days, 0, 0, 0, 0, g.loc)
}

// Instant resolves a date and time of day to an absolute instant. Overnight
// times roll onto the following date.
func (g *Grid) Instant(date time.Time, t TimeOfDay) time.Time {
	date = g.Date(date)
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, g.loc)
}

// Points returns every grid point of the date, 00:00 through 23:30.
func (g *Grid) Points(date time.Time) []TimeOfDay {
	points := make([]TimeOfDay, 0, MinutesPerDay/SlotMinutes)
	for p := TimeOfDay(0); p < MinutesPerDay; p += SlotMinutes {
		points = append(points, p)
	}
	return points
}

// SelectableStarts returns the grid points a booking may start at. A booking
// may not start after the last-start cutoff even though it may end after midnight.
func (g *Grid) SelectableStarts(date time.Time) []TimeOfDay {
	all := g.Points(date)
	starts := all[:0:0]
	for _, p := range all {
		if p <= g.lastStart {
			starts = append(starts, p)
		}
	}
	return starts
}

// LastStart is the latest selectable start time.
func (g *Grid) LastStart() TimeOfDay { return g.lastStart }

// EndChoices returns the end times selectable for a given start: every grid
// point after start up to midnight plus the overnight allowance.
func (g *Grid) EndChoices(date time.Time, start TimeOfDay) []TimeOfDay {
	limit := TimeOfDay(MinutesPerDay) + g.overnightUntil
	var ends []TimeOfDay
	for p := start + SlotMinutes; p <= limit; p += SlotMinutes {
		ends = append(ends, p)
	}
	return ends
}

// MaxEnd is the latest end time a reservation may carry.
func (g *Grid) MaxEnd() TimeOfDay {
	return TimeOfDay(MinutesPerDay) + g.overnightUntil
}

// IsPast reports whether date+t is at or before the current instant.
func (g *Grid) IsPast(date time.Time, t TimeOfDay) bool {
	return !g.Instant(date, t).After(g.Now())
}

// IsPriorityWindow reports whether t on date falls inside the recurring
// priority window.
func (g *Grid) IsPriorityWindow(t TimeOfDay, date time.Time) bool {
	if len(g.priority.Days) == 0 || g.priority.End <= g.priority.Start {
		return false
	}
	weekday := g.Date(date).Weekday()
	matched := false
	for _, d := range g.priority.Days {
		if d == weekday {
			matched = true
			break
		}
	}
	return matched && Within(t, g.priority.Start, g.priority.End)
}

// PriorityActive reports whether the priority window still restricts the slot
// at date+t. Once the slot is closer than the release period, the claim lapses.
func (g *Grid) PriorityActive(date time.Time, t TimeOfDay) bool {
	if g.priority.Release <= 0 {
		return true
	}
	return g.Instant(date, t).Sub(g.Now()) > g.priority.Release
}
