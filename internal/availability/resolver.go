// Package availability computes per-slot status for a resource type on a date
// by intersecting reservations, admin blocks, shared-room exclusivity and the
// priority window.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/haochenhowardyang/club-reservation-service/internal/models"
	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
)

// Store is the read side of the repository the resolver needs.
type Store interface {
	ListActiveReservationsByDate(ctx context.Context, date time.Time) ([]models.Reservation, error)
	ListBlockedSlotsByDate(ctx context.Context, date time.Time) ([]models.BlockedSlot, error)
}

type Resolver struct {
	grid  *timegrid.Grid
	store Store
}

func NewResolver(grid *timegrid.Grid, store Store) *Resolver {
	return &Resolver{grid: grid, store: store}
}

// ComputeStatus returns the status of every grid point of date for the given
// resource type. It has no side effects.
func (r *Resolver) ComputeStatus(ctx context.Context, date time.Time, resource models.ResourceType) ([]models.SlotState, error) {
	if !resource.Valid() {
		return nil, models.NewValidationError(models.ReasonResourceType, "unknown resource type %q", resource)
	}
	snap, err := LoadSnapshot(ctx, r.store, r.grid, date)
	if err != nil {
		return nil, err
	}
	states := snap.Evaluate(resource)
	log.Ctx(ctx).Debug().
		Str("component", "availability").
		Str("date", snap.Date().Format(timegrid.DateLayout)).
		Str("resource", string(resource)).
		Int("points", len(states)).
		Msg("Computed slot status")
	return states, nil
}

// interval is a half-open range in minutes relative to the snapshot's base
// date, so a reservation from the previous evening that runs past midnight
// lands at negative start minutes.
type interval struct {
	id        int64
	resource  models.ResourceType
	start     int
	end       int
	confirmed bool
}

func (iv interval) covers(p int) bool {
	return p >= iv.start && p < iv.end
}

// Snapshot is a consistent read of everything that can occupy a date: the
// active reservations and blocks of the date and of its neighbours.
type Snapshot struct {
	grid         *timegrid.Grid
	date         time.Time
	reservations []interval
	blocks       []interval
}

// LoadSnapshot reads the day before, the date, and the day after. Run it on a
// transaction-bound store to make a later commit decision atomic with the read.
func LoadSnapshot(ctx context.Context, store Store, grid *timegrid.Grid, date time.Time) (*Snapshot, error) {
	date = grid.Date(date)
	snap := &Snapshot{grid: grid, date: date}
	for _, offset := range []int{-1, 0, 1} {
		day := grid.AddDays(date, offset)
		base := offset * timegrid.MinutesPerDay

		reservations, err := store.ListActiveReservationsByDate(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("load reservations for %s: %w", day.Format(timegrid.DateLayout), err)
		}
		for _, res := range reservations {
			if !res.Active() {
				continue
			}
			snap.reservations = append(snap.reservations, interval{
				id:        res.ID,
				resource:  res.Type,
				start:     base + int(res.Start),
				end:       base + int(res.End),
				confirmed: res.Status == models.ReservationConfirmed,
			})
		}

		blocks, err := store.ListBlockedSlotsByDate(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("load blocked slots for %s: %w", day.Format(timegrid.DateLayout), err)
		}
		for _, b := range blocks {
			snap.blocks = append(snap.blocks, interval{
				id:       b.ID,
				resource: b.Type,
				start:    base + int(b.Start),
				end:      base + int(b.End),
			})
		}
	}
	return snap, nil
}

func (s *Snapshot) Date() time.Time { return s.date }

// ConfirmedOnly returns a copy of the snapshot in which waitlisted
// reservations no longer occupy their slots. Promotion decisions use it so
// that two queued requests for the same slot cannot hold each other back.
func (s *Snapshot) ConfirmedOnly() *Snapshot {
	out := &Snapshot{grid: s.grid, date: s.date, blocks: s.blocks}
	for _, r := range s.reservations {
		if r.confirmed {
			out.reservations = append(out.reservations, r)
		}
	}
	return out
}

// Evaluate computes the status of each grid point of the snapshot date.
func (s *Snapshot) Evaluate(resource models.ResourceType) []models.SlotState {
	points := s.grid.Points(s.date)
	states := make([]models.SlotState, 0, len(points))
	for _, p := range points {
		states = append(states, models.SlotState{
			Time:   p,
			Status: s.StatusAt(resource, p, 0),
		})
	}
	return states
}

// StatusAt classifies one point (minutes relative to the snapshot date; values
// past midnight address the next date). Reservation excludeID is ignored, which
// lets a caller recheck a reservation against everything but itself.
//
// Precedence is fixed: past > blocked > booked(own) > booked(cross) >
// restricted > available.
func (s *Snapshot) StatusAt(resource models.ResourceType, p timegrid.TimeOfDay, excludeID int64) models.SlotStatus {
	rel := int(p)
	day, local := s.locate(p)

	if s.grid.IsPast(day, local) {
		return models.SlotPast
	}
	for _, b := range s.blocks {
		if b.resource == resource && b.covers(rel) {
			return models.SlotBlocked
		}
	}
	for _, r := range s.reservations {
		if r.id != excludeID && r.resource == resource && r.covers(rel) {
			return models.SlotBooked
		}
	}
	if other := resource.Other(); other != "" {
		for _, r := range s.reservations {
			if r.id != excludeID && r.resource == other && r.covers(rel) {
				return models.SlotBooked
			}
		}
	}
	if resource == models.ResourceMahjong &&
		s.grid.IsPriorityWindow(local, day) &&
		s.grid.PriorityActive(day, local) {
		return models.SlotRestricted
	}
	return models.SlotAvailable
}

// SpanAvailable reports whether every grid point in [start, end) is available
// for the resource, along with the first point that is not.
func (s *Snapshot) SpanAvailable(resource models.ResourceType, start, end timegrid.TimeOfDay, excludeID int64) (bool, timegrid.TimeOfDay, models.SlotStatus) {
	for _, p := range timegrid.Spanned(start, end) {
		if status := s.StatusAt(resource, p, excludeID); status != models.SlotAvailable {
			return false, p, status
		}
	}
	return true, 0, models.SlotAvailable
}

// locate maps a relative point onto its calendar date and local time of day.
func (s *Snapshot) locate(p timegrid.TimeOfDay) (time.Time, timegrid.TimeOfDay) {
	day := s.date
	for p >= timegrid.MinutesPerDay {
		day = s.grid.AddDays(day, 1)
		p -= timegrid.MinutesPerDay
	}
	return day, p
}
