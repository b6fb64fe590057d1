// Package bookingrules enforces the creation-time booking rules: the booking
// horizon, past start times, interval sanity and the bar duration cap. It
// never touches storage.
package bookingrules

import (
	"time"

	"github.com/haochenhowardyang/club-reservation-service/internal/models"
	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
)

type Rules struct {
	HorizonDays int
	// Bar parties smaller than BarPartyThreshold may book at most BarDurationLimit.
	BarDurationLimit  time.Duration
	BarPartyThreshold int
}

func DefaultRules() Rules {
	return Rules{
		HorizonDays:       14,
		BarDurationLimit:  2 * time.Hour,
		BarPartyThreshold: 4,
	}
}

type Validator struct {
	grid  *timegrid.Grid
	rules Rules
}

func NewValidator(grid *timegrid.Grid, rules Rules) *Validator {
	return &Validator{grid: grid, rules: rules}
}

// ValidateCreate checks, in order: booking horizon, past start, interval,
// grid alignment, party size, bar duration cap. The first violated rule is
// returned as a *models.ValidationError.
func (v *Validator) ValidateCreate(date time.Time, start, end timegrid.TimeOfDay, resource models.ResourceType, partySize int) error {
	if !resource.Valid() {
		return models.NewValidationError(models.ReasonResourceType, "unknown resource type %q", resource)
	}

	today := v.grid.Today()
	date = v.grid.Date(date)
	last := v.grid.AddDays(today, v.rules.HorizonDays)
	if date.Before(today) || date.After(last) {
		return models.NewValidationError(models.ReasonHorizon,
			"date %s is outside the booking window %s to %s",
			date.Format(timegrid.DateLayout), today.Format(timegrid.DateLayout), last.Format(timegrid.DateLayout))
	}

	if date.Equal(today) && v.grid.IsPast(date, start) {
		return models.NewValidationError(models.ReasonPastTime, "start %s has already passed", start)
	}

	if end <= start {
		return models.NewValidationError(models.ReasonInvalidRange, "end %s must be after start %s", end, start)
	}

	if !start.OnGrid() || !end.OnGrid() {
		return models.NewValidationError(models.ReasonOffGrid, "times must fall on %d-minute boundaries", timegrid.SlotMinutes)
	}
	if start > v.grid.LastStart() {
		return models.NewValidationError(models.ReasonOffGrid, "start %s is after the last start %s", start, v.grid.LastStart())
	}
	if end > v.grid.MaxEnd() {
		return models.NewValidationError(models.ReasonInvalidRange, "end %s is after the latest end %s", end, v.grid.MaxEnd())
	}

	if partySize < 1 {
		return models.NewValidationError(models.ReasonPartySize, "party size must be at least 1")
	}

	if resource == models.ResourceBar && partySize < v.rules.BarPartyThreshold {
		duration := time.Duration(end-start) * time.Minute
		if duration > v.rules.BarDurationLimit {
			return models.NewValidationError(models.ReasonDurationLimit,
				"bar bookings for fewer than %d guests are limited to %s", v.rules.BarPartyThreshold, v.rules.BarDurationLimit)
		}
	}

	return nil
}
