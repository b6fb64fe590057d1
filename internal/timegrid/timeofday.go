package timegrid

import (
	"fmt"
	"strconv"
	"strings"
)

// SlotMinutes is the spacing between two grid points.
const SlotMinutes = 30

// MinutesPerDay is the first minute that belongs to the following date.
const MinutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time expressed in minutes since local midnight.
// Values at or past MinutesPerDay describe the early hours of the next date
// and are only valid as reservation end times.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from an hour and minute.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay accepts "15:04" or "15:04:05". Hours up to 47 are accepted so
// that overnight end times such as "25:30" round-trip through String.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 47 {
		return 0, fmt.Errorf("invalid time %q: bad hour", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid time %q: bad minute", raw)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec != 0 {
			return 0, fmt.Errorf("invalid time %q: seconds must be 00", raw)
		}
	}
	return NewTimeOfDay(hour, minute), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// OnGrid reports whether t lands exactly on a grid point.
func (t TimeOfDay) OnGrid() bool {
	return t >= 0 && int(t)%SlotMinutes == 0
}

// Overnight reports whether t belongs to the following calendar date.
func (t TimeOfDay) Overnight() bool {
	return t >= MinutesPerDay
}

// Spanned returns every grid point in [start, end). Points past midnight are
// included as-is (>= MinutesPerDay) so callers can map them onto the next date.
func Spanned(start, end TimeOfDay) []TimeOfDay {
	if end <= start {
		return nil
	}
	first := start
	if rem := int(first) % SlotMinutes; rem != 0 {
		first += TimeOfDay(SlotMinutes - rem)
	}
	points := make([]TimeOfDay, 0, int(end-first)/SlotMinutes+1)
	for p := first; p < end; p += SlotMinutes {
		points = append(points, p)
	}
	return points
}

// Within reports whether p lies in the half-open interval [start, end).
func Within(p, start, end TimeOfDay) bool {
	return p >= start && p < end
}
