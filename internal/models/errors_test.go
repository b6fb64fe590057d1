package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{NewValidationError(ReasonHorizon, "too far"), "ValidationFailed"},
		{fmt.Errorf("cancel: %w", ErrAlreadyCancelled), "AlreadyCancelled"},
		{ErrUserNotFound, "NotFound"},
		{ErrTokenNotFound, "NotFound"},
		{Unavailable("identity pool", errors.New("timeout")), "DependencyUnavailable"},
		{fmt.Errorf("%w: 9 of 9 seats taken", ErrCapacityReached), "CapacityReached"},
		{errors.New("disk full"), "Internal"},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestValidationReason(t *testing.T) {
	err := fmt.Errorf("create: %w", NewValidationError(ReasonDurationLimit, "limit %s", "2h"))
	if got := ValidationReason(err); got != ReasonDurationLimit {
		t.Fatalf("reason = %q", got)
	}
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatal("validation errors must match ErrValidationFailed")
	}
	if ValidationReason(ErrNotFound) != "" {
		t.Fatal("non-validation errors carry no reason")
	}
}

func TestReservationStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to ReservationStatus
		want     bool
	}{
		{ReservationWaitlisted, ReservationConfirmed, true},
		{ReservationWaitlisted, ReservationCancelled, true},
		{ReservationConfirmed, ReservationCancelled, true},
		{ReservationConfirmed, ReservationWaitlisted, false},
		{ReservationCancelled, ReservationConfirmed, false},
		{ReservationCancelled, ReservationCancelled, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestResourceTypes(t *testing.T) {
	if ResourceBar.Other() != ResourceMahjong || ResourceMahjong.Other() != ResourceBar || ResourcePoker.Other() != "" {
		t.Fatal("unexpected Other mapping")
	}
	if ResourcePoker.SharesRoom() || !ResourceBar.SharesRoom() {
		t.Fatal("unexpected SharesRoom")
	}
	if got, err := ParseResourceType(" Mahjong "); err != nil || got != ResourceMahjong {
		t.Fatalf("ParseResourceType = %q, %v", got, err)
	}
	if _, err := ParseResourceType("karaoke"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}
