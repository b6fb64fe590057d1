package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/haochenhowardyang/club-reservation-service/internal/models"
	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
)

// FormatSlot renders a date and time range the way members see it.
func FormatSlot(date time.Time, start, end timegrid.TimeOfDay) string {
	day := date.Format("Monday, Jan 2")
	if end <= start {
		return fmt.Sprintf("%s at %s", day, start)
	}
	return fmt.Sprintf("%s, %s - %s", day, start, end)
}

func resourceLabel(t models.ResourceType) string {
	switch t {
	case models.ResourceBar:
		return "Bar"
	case models.ResourceMahjong:
		return "Mahjong"
	case models.ResourcePoker:
		return "Poker"
	}
	return "Reservation"
}

func tokenLink(baseURL, token string, response models.TokenResponse) string {
	return fmt.Sprintf("%s/t/%s?response=%s", strings.TrimRight(baseURL, "/"), token, response)
}

// TokenMessage builds the invite or seat-confirmation request carrying a
// single-use token.
func TokenMessage(game models.PokerGame, tok models.NotificationToken, baseURL string, sentAt time.Time) Message {
	when := FormatSlot(game.Date, game.Start, game.Start)
	expires := tok.ExpiresAt.In(game.Date.Location()).Format("Jan 2 3:04 PM")

	var subject, intro string
	kind := KindJoinInvite
	switch tok.Purpose {
	case models.PurposeConfirmReservation:
		kind = KindConfirmReservation
		subject = "A poker seat opened up"
		intro = fmt.Sprintf("A seat opened up at the poker game on %s.", when)
	default:
		subject = "You're invited to poker"
		intro = fmt.Sprintf("You're invited to join the waitlist for the poker game on %s.", when)
	}

	lines := []string{intro}
	if game.BlindLevel != "" {
		lines = append(lines, fmt.Sprintf("Blinds: %s", game.BlindLevel))
	}
	lines = append(lines,
		"",
		fmt.Sprintf("Accept: %s", tokenLink(baseURL, tok.Token, models.ResponseConfirmed)),
		fmt.Sprintf("Decline: %s", tokenLink(baseURL, tok.Token, models.ResponseDeclined)),
		"",
		fmt.Sprintf("This link can be used once and expires %s.", expires),
	)

	return Message{
		UserID:  tok.UserID,
		Kind:    kind,
		Subject: subject,
		Body:    strings.Join(lines, "\n"),
		GameID:  game.ID,
		Token:   tok.Token,
		SentAt:  sentAt,
	}
}

// WaitlistConfirmedMessage tells a player their seat is confirmed.
func WaitlistConfirmedMessage(game models.PokerGame, userID string, sentAt time.Time) Message {
	return Message{
		UserID:  userID,
		Kind:    KindWaitlistConfirmed,
		Subject: "Poker seat confirmed",
		Body:    fmt.Sprintf("Your seat at the poker game on %s is confirmed.", FormatSlot(game.Date, game.Start, game.Start)),
		GameID:  game.ID,
		SentAt:  sentAt,
	}
}

// PromotionMessage tells a member their waitlisted booking is now confirmed.
func PromotionMessage(res models.Reservation, sentAt time.Time) Message {
	msg := Message{
		UserID:  res.UserID,
		Kind:    KindReservationPromoted,
		Subject: fmt.Sprintf("%s booking confirmed", resourceLabel(res.Type)),
		Body: fmt.Sprintf("Good news: a spot opened up and your %s booking for %s is now confirmed.",
			strings.ToLower(resourceLabel(res.Type)), FormatSlot(res.Date, res.Start, res.End)),
		SentAt: sentAt,
	}
	if res.GameID != nil {
		msg.GameID = *res.GameID
	}
	return msg
}
