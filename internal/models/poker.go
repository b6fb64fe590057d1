// internal/models/poker.go
package models

import (
	"time"

	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
)

type GameStatus string

const (
	GameOpen   GameStatus = "open"
	GameClosed GameStatus = "closed"
)

type PokerGame struct {
	ID         int64              `json:"id"`
	Date       time.Time          `json:"date"`
	Start      timegrid.TimeOfDay `json:"start"`
	BlindLevel string             `json:"blindLevel"`
	Status     GameStatus         `json:"status"`
	Notes      string             `json:"notes,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

type WaitlistStatus string

const (
	WaitlistWaiting   WaitlistStatus = "waiting"
	WaitlistConfirmed WaitlistStatus = "confirmed"
	WaitlistDeclined  WaitlistStatus = "declined"
)

type WaitlistEntry struct {
	ID        int64          `json:"id"`
	GameID    int64          `json:"gameId"`
	UserID    string         `json:"userId"`
	Position  int            `json:"position"`
	Status    WaitlistStatus `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type TokenPurpose string

const (
	PurposeJoinInvite         TokenPurpose = "join_invite"
	PurposeConfirmReservation TokenPurpose = "confirm_reservation"
)

type TokenStatus string

const (
	TokenPending   TokenStatus = "pending"
	TokenSent      TokenStatus = "sent"
	TokenConfirmed TokenStatus = "confirmed"
	TokenDeclined  TokenStatus = "declined"
	TokenExpired   TokenStatus = "expired"
	TokenFailed    TokenStatus = "failed"
)

// Usable reports whether a token in this status may still be consumed.
func (s TokenStatus) Usable() bool {
	return s == TokenPending || s == TokenSent
}

// TokenResponse is the answer a user gives through a token link.
type TokenResponse string

const (
	ResponseConfirmed TokenResponse = "confirmed"
	ResponseDeclined  TokenResponse = "declined"
)

type NotificationToken struct {
	Token     string       `json:"token"`
	GameID    int64        `json:"gameId"`
	UserID    string       `json:"userId"`
	Purpose   TokenPurpose `json:"purpose"`
	Status    TokenStatus  `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
	SentAt    *time.Time   `json:"sentAt,omitempty"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// ExpiredAt reports whether the token is past its expiry at now.
func (t NotificationToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
