// internal/models/reservation.go
package models

import (
	"time"

	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
)

type ReservationStatus string

const (
	ReservationConfirmed  ReservationStatus = "confirmed"
	ReservationWaitlisted ReservationStatus = "waitlisted"
	ReservationCancelled  ReservationStatus = "cancelled"
)

// Active reservations occupy their slots; cancelled ones never do.
func (s ReservationStatus) Active() bool {
	return s == ReservationConfirmed || s == ReservationWaitlisted
}

type Reservation struct {
	ID        int64              `json:"id"`
	UserID    string             `json:"userId"`
	Type      ResourceType       `json:"type"`
	Date      time.Time          `json:"date"`
	Start     timegrid.TimeOfDay `json:"start"`
	End       timegrid.TimeOfDay `json:"end"`
	PartySize int                `json:"partySize"`
	Status    ReservationStatus  `json:"status"`
	Notes     string             `json:"notes,omitempty"`
	GameID    *int64             `json:"gameId,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

func (r Reservation) Active() bool { return r.Status.Active() }

// Duration is the booked length of the reservation.
func (r Reservation) Duration() time.Duration {
	return time.Duration(r.End-r.Start) * time.Minute
}

// Covers reports whether the grid point (on the reservation's own date) lies
// inside [Start, End).
func (r Reservation) Covers(p timegrid.TimeOfDay) bool {
	return timegrid.Within(p, r.Start, r.End)
}

// CanTransition enforces the one-directional status lifecycle.
func (s ReservationStatus) CanTransition(to ReservationStatus) bool {
	switch s {
	case ReservationConfirmed:
		return to == ReservationCancelled
	case ReservationWaitlisted:
		return to == ReservationConfirmed || to == ReservationCancelled
	default:
		return false
	}
}
