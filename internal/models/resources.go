// internal/models/resources.go
package models

import (
	"strings"
	"time"

	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
)

type ResourceType string

const (
	ResourceBar     ResourceType = "bar"
	ResourceMahjong ResourceType = "mahjong"
	ResourcePoker   ResourceType = "poker"
)

const (
	RoomShared = "shared"
	RoomPoker  = "poker"
)

var ResourceTypes = []ResourceType{ResourceBar, ResourceMahjong, ResourcePoker}

func ParseResourceType(raw string) (ResourceType, error) {
	switch ResourceType(strings.ToLower(strings.TrimSpace(raw))) {
	case ResourceBar:
		return ResourceBar, nil
	case ResourceMahjong:
		return ResourceMahjong, nil
	case ResourcePoker:
		return ResourcePoker, nil
	default:
		return "", NewValidationError(ReasonResourceType, "unknown resource type %q", raw)
	}
}

func (t ResourceType) Valid() bool {
	return t == ResourceBar || t == ResourceMahjong || t == ResourcePoker
}

// Room names the physical room a resource type occupies. Bar and mahjong
// share one room and are mutually exclusive in time.
func (t ResourceType) Room() string {
	if t == ResourcePoker {
		return RoomPoker
	}
	return RoomShared
}

// SharesRoom reports whether the type competes for the shared room.
func (t ResourceType) SharesRoom() bool {
	return t == ResourceBar || t == ResourceMahjong
}

// Other returns the other shared-room type, or "" for poker.
func (t ResourceType) Other() ResourceType {
	switch t {
	case ResourceBar:
		return ResourceMahjong
	case ResourceMahjong:
		return ResourceBar
	default:
		return ""
	}
}

type SlotStatus string

const (
	SlotAvailable  SlotStatus = "available"
	SlotBooked     SlotStatus = "booked"
	SlotBlocked    SlotStatus = "blocked"
	SlotRestricted SlotStatus = "restricted"
	SlotPast       SlotStatus = "past"
)

// SlotState pairs a grid point with its computed status.
type SlotState struct {
	Time   timegrid.TimeOfDay `json:"time"`
	Status SlotStatus         `json:"status"`
}

// BlockedSlot is an admin-imposed unavailable window for bar or mahjong.
type BlockedSlot struct {
	ID     int64              `json:"id"`
	Type   ResourceType       `json:"type"`
	Date   time.Time          `json:"date"`
	Start  timegrid.TimeOfDay `json:"start"`
	End    timegrid.TimeOfDay `json:"end"`
	Reason string             `json:"reason,omitempty"`
}

// Covers reports whether the grid point lies inside [Start, End).
func (b BlockedSlot) Covers(p timegrid.TimeOfDay) bool {
	return timegrid.Within(p, b.Start, b.End)
}

// User is the single domain user. ID is the stable identifier: an E.164
// phone number or a lower-cased email address.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Strikes   int       `json:"strikes"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}

// Actor is the user on whose behalf an operation runs.
type Actor struct {
	UserID  string
	IsAdmin bool
}
