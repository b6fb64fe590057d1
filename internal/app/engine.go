// Package app assembles the engine from configuration. Both binaries build
// their dependencies here so the server and the operator CLI run the same
// wiring.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/haochenhowardyang/club-reservation-service/internal/availability"
	"github.com/haochenhowardyang/club-reservation-service/internal/bookingrules"
	"github.com/haochenhowardyang/club-reservation-service/internal/cognito"
	"github.com/haochenhowardyang/club-reservation-service/internal/config"
	"github.com/haochenhowardyang/club-reservation-service/internal/db"
	"github.com/haochenhowardyang/club-reservation-service/internal/email"
	"github.com/haochenhowardyang/club-reservation-service/internal/identity"
	"github.com/haochenhowardyang/club-reservation-service/internal/models"
	"github.com/haochenhowardyang/club-reservation-service/internal/notify"
	"github.com/haochenhowardyang/club-reservation-service/internal/ratelimit"
	"github.com/haochenhowardyang/club-reservation-service/internal/reservations"
	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
	"github.com/haochenhowardyang/club-reservation-service/internal/waitlist"
)

type Engine struct {
	Config       *config.Config
	DB           *db.DB
	Grid         *timegrid.Grid
	Resolver     *availability.Resolver
	Validator    *bookingrules.Validator
	Users        *identity.Store
	Cognito      *cognito.CognitoClient
	Notifier     notify.Dispatcher
	Waitlist     *waitlist.Machine
	Reservations *reservations.Manager

	closers []func() error
}

// Options override pieces of the default wiring, mostly for tests.
type Options struct {
	Clock timegrid.Clock
	// Notifier replaces the configured dispatch chain.
	Notifier notify.Dispatcher
	// Transports are added to the configured ones behind the throttle.
	Transports []notify.Dispatcher
}

// New opens the database and builds every component. Transports that are
// not configured are skipped; with none at all messages go to the log.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Engine, error) {
	logger := log.With().Str("component", "app").Logger()

	gridOpts, err := cfg.GridOptions(opts.Clock)
	if err != nil {
		return nil, err
	}
	database, err := db.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	e := &Engine{Config: cfg, DB: database}
	e.closers = append(e.closers, database.Close)

	e.Grid = timegrid.New(gridOpts)
	e.Resolver = availability.NewResolver(e.Grid, database.Queries)
	e.Validator = bookingrules.NewValidator(e.Grid, bookingrules.Rules{
		HorizonDays:       cfg.Resource.BookingHorizonDays,
		BarDurationLimit:  cfg.Resource.BarDurationLimit,
		BarPartyThreshold: cfg.Resource.BarDurationPartyThreshold,
	})

	identityOpts := identity.Options{
		DefaultRegion: cfg.Identity.DefaultRegion,
		Timeout:       cfg.Identity.Timeout,
	}
	if cfg.Identity.CognitoPoolID != "" {
		client, err := cognito.NewClient(ctx, cfg.Identity.CognitoPoolID)
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("cognito client: %w", err)
		}
		e.Cognito = client
		identityOpts.Remote = client
		logger.Info().Str("pool_id", cfg.Identity.CognitoPoolID).Msg("Remote identity lookup enabled")
	}
	e.Users = identity.NewStore(database.Queries, identityOpts)

	e.Notifier = opts.Notifier
	if e.Notifier == nil {
		e.Notifier, err = e.buildNotifier(ctx, opts.Transports)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
	}

	e.Waitlist = waitlist.NewMachine(database, e.Grid, waitlist.Options{
		Directory:     e.Users,
		StrikeLimit:   cfg.Identity.StrikeLimit,
		Capacity:      waitlist.FixedCapacity(cfg.Poker.MaxPlayers),
		SessionLength: cfg.Poker.SessionLength,
		JoinInviteTTL: cfg.Tokens.JoinInviteTTL,
		ConfirmTTL:    cfg.Tokens.ConfirmReservationTTL,
		Notifier:      e.Notifier,
		NotifyTimeout: cfg.Notifications.Timeout,
		BaseURL:       cfg.App.BaseURL,
	})
	e.Reservations = reservations.NewManager(database, e.Grid, e.Validator, reservations.Options{
		Directory:     e.Users,
		StrikeLimit:   cfg.Identity.StrikeLimit,
		Games:         e.Waitlist,
		Notifier:      e.Notifier,
		NotifyTimeout: cfg.Notifications.Timeout,
		OnPromote:     logPromotion,
	})
	return e, nil
}

// buildNotifier fans out to every configured transport behind one
// per-recipient throttle.
func (e *Engine) buildNotifier(ctx context.Context, extra []notify.Dispatcher) (notify.Dispatcher, error) {
	cfg := e.Config.Notifications
	logger := log.With().Str("component", "app").Logger()

	var transports []notify.Dispatcher
	if cfg.SESSender != "" {
		ses, err := email.NewSESClient(ctx, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.SESRegion, cfg.SESSender)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		transports = append(transports, email.NewDispatcher(ses, e.DB.Queries, e.Config.App.Name, cfg.Timeout))
		logger.Info().Str("sender", cfg.SESSender).Msg("Email notifications enabled")
	}
	if cfg.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("amqp publisher: %w", err)
		}
		e.closers = append(e.closers, publisher.Close)
		transports = append(transports, publisher)
		logger.Info().Str("queue", cfg.AMQPQueue).Msg("Queue notifications enabled")
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Cooldown:   cfg.Cooldown,
		MaxPerHour: cfg.MaxPerHour,
	})
	e.closers = append(e.closers, func() error {
		limiter.Close()
		return nil
	})
	transports = append(transports, extra...)
	if len(transports) == 0 {
		logger.Info().Msg("No notification transport configured, logging messages instead")
	}
	return notify.NewThrottled(notify.Transports(transports...), limiter), nil
}

func logPromotion(ctx context.Context, cancelled models.Reservation, promoted []models.Reservation) {
	event := log.Ctx(ctx).Info().
		Str("component", "promotion").
		Int64("cancelled_id", cancelled.ID).
		Str("resource", string(cancelled.Type)).
		Int("promoted", len(promoted))
	ids := make([]int64, 0, len(promoted))
	for _, p := range promoted {
		ids = append(ids, p.ID)
	}
	event.Ints64("promoted_ids", ids).Msg("Promotion hook fired")
}

// Close releases transports and the database in reverse order of creation.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
