// Package notify is the outbound notification collaborator. Dispatch is best
// effort: callers only ever dispatch state that has already been committed and
// a failed delivery never undoes that state.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelLog   Channel = "log"
)

type Kind string

const (
	KindJoinInvite          Kind = "join_invite"
	KindConfirmReservation  Kind = "confirm_reservation"
	KindReservationPromoted Kind = "reservation_promoted"
	KindWaitlistConfirmed   Kind = "waitlist_confirmed"
)

// Message is one notification to one user.
type Message struct {
	UserID  string    `json:"userId"`
	Channel Channel   `json:"channel"`
	Kind    Kind      `json:"kind"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	GameID  int64     `json:"gameId,omitempty"`
	Token   string    `json:"token,omitempty"`
	SentAt  time.Time `json:"sentAt"`
}

// ErrNoRecipient is returned by a dispatcher that has no address for the user
// on its channel.
var ErrNoRecipient = errors.New("no recipient address")

// ErrThrottled is returned when the per-user send budget is exhausted.
var ErrThrottled = errors.New("notification throttled")

type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, msg Message) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LogDispatcher writes every message to the structured log. It is the
// fallback channel when no transport is configured.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(ctx context.Context, msg Message) error {
	log.Ctx(ctx).Info().
		Str("component", "notify").
		Str("user_id", msg.UserID).
		Str("channel", string(msg.Channel)).
		Str("kind", string(msg.Kind)).
		Int64("game_id", msg.GameID).
		Str("subject", msg.Subject).
		Msg("Notification dispatched to log")
	return nil
}

// Fanout delivers a message through every dispatcher. It succeeds when at
// least one dispatcher succeeds.
type Fanout []Dispatcher

// Transports fans out to the given delivery transports. The log sink is used
// only when there are none: it never fails, so alongside a real transport it
// would report every failed delivery as sent.
func Transports(ds ...Dispatcher) Fanout {
	var out Fanout
	for _, d := range ds {
		if d != nil {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return Fanout{LogDispatcher{}}
	}
	return out
}

func (f Fanout) Dispatch(ctx context.Context, msg Message) error {
	if len(f) == 0 {
		return nil
	}
	var errs []error
	delivered := false
	for _, d := range f {
		if d == nil {
			continue
		}
		if err := d.Dispatch(ctx, msg); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered = true
	}
	if delivered {
		return nil
	}
	return errors.Join(errs...)
}

const defaultSendTimeout = 5 * time.Second

// Send dispatches msg on a context detached from the caller's cancellation and
// bounded by timeout. msg.SentAt is stamped by the caller from its clock.
// Failures are logged and returned so the caller can record them; they must
// not be propagated as operation failures.
func Send(ctx context.Context, d Dispatcher, msg Message, timeout time.Duration) error {
	if d == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := d.Dispatch(sendCtx, msg); err != nil {
		log.Ctx(ctx).Warn().
			Err(err).
			Str("component", "notify").
			Str("user_id", msg.UserID).
			Str("kind", string(msg.Kind)).
			Int64("game_id", msg.GameID).
			Msg("Notification dispatch failed")
		return fmt.Errorf("dispatch %s to %s: %w", msg.Kind, msg.UserID, err)
	}
	return nil
}
