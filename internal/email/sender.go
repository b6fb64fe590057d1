package email

import (
	"context"

	"github.com/haochenhowardyang/club-reservation-service/internal/models"
)

// EmailSender provides a testable abstraction over SES delivery.
type EmailSender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// ContactLookup resolves a user's contact details.
type ContactLookup interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}
