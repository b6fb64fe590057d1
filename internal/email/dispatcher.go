package email

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/haochenhowardyang/club-reservation-service/internal/models"
	"github.com/haochenhowardyang/club-reservation-service/internal/notify"
)

const defaultSendTimeout = 5 * time.Second

// Dispatcher delivers notifications as email to the user's address on file.
type Dispatcher struct {
	sender   EmailSender
	contacts ContactLookup
	clubName string
	timeout  time.Duration
}

func NewDispatcher(sender EmailSender, contacts ContactLookup, clubName string, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Dispatcher{sender: sender, contacts: contacts, clubName: clubName, timeout: timeout}
}

// Dispatch implements notify.Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, msg notify.Message) error {
	if d == nil || d.sender == nil || d.contacts == nil {
		return fmt.Errorf("email dispatcher is not configured")
	}

	user, err := d.contacts.GetUser(ctx, msg.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrUserNotFound
		}
		return fmt.Errorf("load contact for %s: %w", msg.UserID, err)
	}
	recipient := strings.TrimSpace(user.Email)
	if recipient == "" && strings.Contains(user.ID, "@") {
		recipient = user.ID
	}
	if recipient == "" {
		return notify.ErrNoRecipient
	}

	mail := BuildEmail(d.clubName, user.Name, msg)
	sendCtx, cancel := newEmailContext(ctx, d.timeout)
	defer cancel()
	if err := d.sender.Send(sendCtx, recipient, mail.Subject, mail.Body); err != nil {
		return err
	}

	log.Ctx(ctx).Debug().
		Str("component", "email").
		Str("user_id", msg.UserID).
		Str("kind", string(msg.Kind)).
		Msg("Notification email sent")
	return nil
}
