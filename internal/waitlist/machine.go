// Package waitlist runs the poker waitlist: ordered entries per game, seat
// confirmation against the game's capacity, single-use notification tokens,
// and closing games whose start time has passed.
package waitlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/haochenhowardyang/club-reservation-service/internal/db"
	"github.com/haochenhowardyang/club-reservation-service/internal/identity"
	"github.com/haochenhowardyang/club-reservation-service/internal/models"
	"github.com/haochenhowardyang/club-reservation-service/internal/notify"
	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
)

const (
	defaultSessionLength = 4 * time.Hour
	defaultJoinInviteTTL = 24 * time.Hour
	defaultConfirmTTL    = 2 * time.Hour
	maxJoinAttempts      = 3
)

// CapacityRule decides how many confirmed seats a game holds.
type CapacityRule interface {
	Capacity(game models.PokerGame) int
}

// FixedCapacity seats the same number of players at every game.
type FixedCapacity int

func (c FixedCapacity) Capacity(models.PokerGame) int { return int(c) }

type Options struct {
	Directory   identity.Directory
	StrikeLimit int
	Capacity    CapacityRule
	// SessionLength is the span recorded on a seat reservation.
	SessionLength time.Duration
	JoinInviteTTL time.Duration
	ConfirmTTL    time.Duration
	Notifier      notify.Dispatcher
	NotifyTimeout time.Duration
	// BaseURL prefixes the token links sent to players.
	BaseURL string
	// NewToken generates token strings; nil uses 32 random bytes.
	NewToken func() (string, error)
}

type Machine struct {
	db   *db.DB
	grid *timegrid.Grid
	opts Options
}

func NewMachine(database *db.DB, grid *timegrid.Grid, opts Options) *Machine {
	if opts.Capacity == nil {
		opts.Capacity = FixedCapacity(9)
	}
	if opts.SessionLength <= 0 {
		opts.SessionLength = defaultSessionLength
	}
	if opts.JoinInviteTTL <= 0 {
		opts.JoinInviteTTL = defaultJoinInviteTTL
	}
	if opts.ConfirmTTL <= 0 {
		opts.ConfirmTTL = defaultConfirmTTL
	}
	if opts.NewToken == nil {
		opts.NewToken = func() (string, error) { return randomToken(32) }
	}
	return &Machine{db: database, grid: grid, opts: opts}
}

func (m *Machine) now() time.Time { return m.grid.Now() }

func gameNotFound(id int64) error {
	return fmt.Errorf("poker game %d: %w", id, models.ErrNotFound)
}

func (m *Machine) loadGame(ctx context.Context, q *db.Queries, id int64) (models.PokerGame, error) {
	game, err := q.GetPokerGame(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PokerGame{}, gameNotFound(id)
		}
		return models.PokerGame{}, fmt.Errorf("load poker game %d: %w", id, err)
	}
	return game, nil
}

// JoinResult is the outcome of a join. AlreadyOnWaitlist is set when the
// user was already queued; Entry then carries the original position.
type JoinResult struct {
	Entry             models.WaitlistEntry
	AlreadyOnWaitlist bool
}

// Join appends the user to the game's waitlist. Joining twice is not an
// error: the existing entry is returned.
func (m *Machine) Join(ctx context.Context, gameID int64, userID string) (JoinResult, error) {
	if _, err := m.AutoCloseExpiredGames(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Int64("game_id", gameID).Msg("Auto-close before join failed")
	}
	userID, err := identity.CheckEligible(ctx, m.opts.Directory, userID, m.opts.StrikeLimit)
	if err != nil {
		return JoinResult{}, err
	}
	logger := log.Ctx(ctx).With().
		Str("component", "waitlist").
		Int64("game_id", gameID).
		Str("user_id", userID).
		Logger()

	var result JoinResult
	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		err := m.db.RunInTx(ctx, func(txdb *db.DB) error {
			var err error
			result, err = m.joinTx(ctx, txdb, gameID, userID)
			return err
		})
		if err == nil {
			break
		}
		if db.IsUniqueViolation(err) && attempt < maxJoinAttempts-1 {
			logger.Debug().Err(err).Int("attempt", attempt+1).Msg("Waitlist join collided, retrying")
			continue
		}
		return JoinResult{}, err
	}

	event := logger.Info().Int("position", result.Entry.Position)
	if result.AlreadyOnWaitlist {
		event.Msg("User already on waitlist")
	} else {
		event.Msg("User joined waitlist")
	}
	return result, nil
}

func (m *Machine) joinTx(ctx context.Context, txdb *db.DB, gameID int64, userID string) (JoinResult, error) {
	game, err := m.loadGame(ctx, txdb.Queries, gameID)
	if err != nil {
		return JoinResult{}, err
	}

	if game.Status != models.GameOpen {
		return JoinResult{}, models.ErrGameNotOpen
	}

	existing, err := txdb.Queries.GetWaitlistEntry(ctx, gameID, userID)
	switch {
	case err == nil:
		return JoinResult{Entry: existing, AlreadyOnWaitlist: true}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return JoinResult{}, fmt.Errorf("load waitlist entry: %w", err)
	}

	entry, err := txdb.Queries.CreateWaitlistEntry(ctx, gameID, userID, m.now())
	if err != nil {
		return JoinResult{}, err
	}
	return JoinResult{Entry: entry}, nil
}

// ConfirmResult describes a confirmed seat. Created is false when the seat
// already existed and nothing was written.
type ConfirmResult struct {
	Entry       models.WaitlistEntry
	Reservation models.Reservation
	Created     bool
}

// Confirm is the admin action that seats a waiting player.
func (m *Machine) Confirm(ctx context.Context, gameID int64, userID string) (ConfirmResult, error) {
	if _, err := m.AutoCloseExpiredGames(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Auto-close before confirm failed")
	}
	userID, err := identity.Canonical(m.opts.Directory, userID)
	if err != nil {
		return ConfirmResult{}, err
	}

	var (
		result ConfirmResult
		game   models.PokerGame
	)
	err = m.db.RunInTx(ctx, func(txdb *db.DB) error {
		var err error
		game, err = m.loadGame(ctx, txdb.Queries, gameID)
		if err != nil {
			return err
		}
		entry, err := txdb.Queries.GetWaitlistEntry(ctx, gameID, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("waitlist entry for %s: %w", userID, models.ErrNotFound)
			}
			return fmt.Errorf("load waitlist entry: %w", err)
		}
		result, err = m.seatTx(ctx, txdb, game, entry)
		if err != nil {
			return err
		}
		if _, err := txdb.Queries.ExpireOutstandingTokens(ctx, gameID, userID, models.PurposeConfirmReservation); err != nil {
			return fmt.Errorf("expire seat offers: %w", err)
		}
		return nil
	})
	if err != nil {
		return ConfirmResult{}, err
	}

	logger := log.Ctx(ctx)
	logger.Info().
		Str("component", "waitlist").
		Int64("game_id", gameID).
		Str("user_id", userID).
		Int64("reservation_id", result.Reservation.ID).
		Bool("created", result.Created).
		Msg("Waitlist entry confirmed")
	if result.Created {
		_ = notify.Send(ctx, m.opts.Notifier, notify.WaitlistConfirmedMessage(game, userID, m.now()), m.opts.NotifyTimeout)
	}
	return result, nil
}

// seatTx moves a waiting entry to confirmed and materializes its poker
// reservation. An entry that is already confirmed with a live seat is
// returned unchanged.
func (m *Machine) seatTx(ctx context.Context, txdb *db.DB, game models.PokerGame, entry models.WaitlistEntry) (ConfirmResult, error) {
	q := txdb.Queries
	existing, err := q.GetActiveGameReservation(ctx, game.ID, entry.UserID)
	switch {
	case err == nil:
		if entry.Status == models.WaitlistWaiting {
			if _, err := q.UpdateWaitlistEntryStatus(ctx, entry.ID, models.WaitlistConfirmed, m.now()); err != nil {
				return ConfirmResult{}, err
			}
			entry.Status = models.WaitlistConfirmed
		}
		return ConfirmResult{Entry: entry, Reservation: existing}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return ConfirmResult{}, fmt.Errorf("load seat: %w", err)
	}

	// A confirmed entry whose seat was cancelled gave the seat up; it is
	// not re-seated.
	if entry.Status != models.WaitlistWaiting {
		return ConfirmResult{}, fmt.Errorf("no waiting entry for %s (status %s): %w", entry.UserID, entry.Status, models.ErrNotFound)
	}
	if !m.seatable(game) {
		return ConfirmResult{}, models.ErrGameNotOpen
	}

	seated, err := q.CountConfirmedGameReservations(ctx, game.ID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if capacity := m.opts.Capacity.Capacity(game); seated >= capacity {
		return ConfirmResult{}, fmt.Errorf("%w: %d of %d seats taken", models.ErrCapacityReached, seated, capacity)
	}

	now := m.now()
	ok, err := q.UpdateWaitlistEntryStatus(ctx, entry.ID, models.WaitlistConfirmed, now)
	if err != nil {
		return ConfirmResult{}, err
	}
	if !ok {
		return ConfirmResult{}, models.ErrConflictLost
	}
	entry.Status = models.WaitlistConfirmed

	gameID := game.ID
	res, err := q.CreateReservation(ctx, db.CreateReservationParams{
		UserID:    entry.UserID,
		Type:      models.ResourcePoker,
		Date:      game.Date,
		Start:     game.Start,
		End:       game.Start + timegrid.TimeOfDay(m.opts.SessionLength/time.Minute),
		PartySize: 1,
		Status:    models.ReservationConfirmed,
		Notes:     "poker seat",
		GameID:    &gameID,
		Now:       now,
	})
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("create seat reservation: %w", err)
	}
	return ConfirmResult{Entry: entry, Reservation: res, Created: true}, nil
}

// PromoteNextTx seats the earliest waiting player when the game has room.
// It runs inside the caller's transaction and returns nil when nobody was
// promoted.
func (m *Machine) PromoteNextTx(ctx context.Context, txdb *db.DB, gameID int64) (*models.Reservation, error) {
	game, err := m.loadGame(ctx, txdb.Queries, gameID)
	if err != nil {
		return nil, err
	}
	if !m.seatable(game) {
		return nil, nil
	}
	next, err := txdb.Queries.NextWaitingEntry(ctx, gameID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load next waiting entry: %w", err)
	}
	result, err := m.seatTx(ctx, txdb, game, next)
	if err != nil {
		if errors.Is(err, models.ErrCapacityReached) {
			return nil, nil
		}
		return nil, err
	}
	log.Ctx(ctx).Info().
		Str("component", "waitlist").
		Int64("game_id", gameID).
		Str("user_id", next.UserID).
		Int("position", next.Position).
		Msg("Promoted next waiting player")
	return &result.Reservation, nil
}

// RemoveEntry hard-deletes a user's entry regardless of its status.
func (m *Machine) RemoveEntry(ctx context.Context, gameID int64, userID string) error {
	userID, err := identity.Canonical(m.opts.Directory, userID)
	if err != nil {
		return err
	}
	return m.db.RunInTx(ctx, func(txdb *db.DB) error {
		entry, err := txdb.Queries.GetWaitlistEntry(ctx, gameID, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("waitlist entry for %s: %w", userID, models.ErrNotFound)
			}
			return err
		}
		if _, err := txdb.Queries.DeleteWaitlistEntry(ctx, entry.ID); err != nil {
			return fmt.Errorf("delete waitlist entry: %w", err)
		}
		log.Ctx(ctx).Info().
			Str("component", "waitlist").
			Int64("game_id", gameID).
			Str("user_id", userID).
			Int("position", entry.Position).
			Msg("Waitlist entry removed")
		return nil
	})
}

func (m *Machine) ListEntries(ctx context.Context, gameID int64) ([]models.WaitlistEntry, error) {
	if _, err := m.loadGame(ctx, m.db.Queries, gameID); err != nil {
		return nil, err
	}
	return m.db.Queries.ListWaitlistEntries(ctx, gameID)
}
