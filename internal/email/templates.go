package email

import (
	"fmt"
	"strings"

	"github.com/haochenhowardyang/club-reservation-service/internal/notify"
)

type Email struct {
	Subject string
	Body    string
}

// BuildEmail wraps a notification in the club's email framing.
func BuildEmail(clubName, recipientName string, msg notify.Message) Email {
	clubName = strings.TrimSpace(clubName)
	if clubName == "" {
		clubName = "the club"
	}
	subject := strings.TrimSpace(msg.Subject)
	if subject == "" {
		subject = "Club notification"
	}
	subject = fmt.Sprintf("%s - %s", subject, clubName)

	greeting := "Hi,"
	if name := strings.TrimSpace(recipientName); name != "" {
		greeting = fmt.Sprintf("Hi %s,", name)
	}

	lines := []string{
		greeting,
		"",
		strings.TrimSpace(msg.Body),
		"",
		fmt.Sprintf("See you at %s.", clubName),
	}
	return Email{
		Subject: subject,
		Body:    strings.Join(lines, "\n"),
	}
}
