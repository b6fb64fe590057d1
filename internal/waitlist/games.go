package waitlist

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/haochenhowardyang/club-reservation-service/internal/db"
	"github.com/haochenhowardyang/club-reservation-service/internal/models"
	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
)

type CreateGameRequest struct {
	Date       time.Time
	Start      timegrid.TimeOfDay
	BlindLevel string
	Notes      string
}

func (m *Machine) CreateGame(ctx context.Context, req CreateGameRequest) (models.PokerGame, error) {
	if !req.Start.OnGrid() || req.Start >= timegrid.MinutesPerDay {
		return models.PokerGame{}, models.NewValidationError(models.ReasonOffGrid, "start %s is not a grid point", req.Start)
	}
	date := m.grid.Date(req.Date)
	if m.grid.IsPast(date, req.Start) {
		return models.PokerGame{}, models.NewValidationError(models.ReasonPastTime, "game start %s %s has already passed", date.Format(timegrid.DateLayout), req.Start)
	}
	game, err := m.db.Queries.CreatePokerGame(ctx, db.CreatePokerGameParams{
		Date:       date,
		Start:      req.Start,
		BlindLevel: req.BlindLevel,
		Notes:      req.Notes,
		Now:        m.now(),
	})
	if err != nil {
		return models.PokerGame{}, fmt.Errorf("create poker game: %w", err)
	}
	log.Ctx(ctx).Info().
		Str("component", "waitlist").
		Int64("game_id", game.ID).
		Str("date", date.Format(timegrid.DateLayout)).
		Str("start", req.Start.String()).
		Msg("Poker game created")
	return game, nil
}

// seatable reports whether the game still takes seats: it is open and its
// start has not passed. A started game counts as closed even before a sweep
// has recorded it.
func (m *Machine) seatable(game models.PokerGame) bool {
	return game.Status == models.GameOpen && !m.grid.IsPast(game.Date, game.Start)
}

// closeGameTx closes the game and expires its tokens inside the caller's
// transaction. It reports whether this call did the closing.
func closeGameTx(ctx context.Context, q *db.Queries, gameID int64, now time.Time) (bool, int64, error) {
	closed, err := q.ClosePokerGame(ctx, gameID, now)
	if err != nil {
		return false, 0, err
	}
	expired, err := q.ExpireTokensForGame(ctx, gameID)
	if err != nil {
		return false, 0, fmt.Errorf("expire tokens: %w", err)
	}
	return closed, expired, nil
}

// AutoCloseExpiredGames closes every open game whose start has passed and
// expires its tokens. Each game is closed in its own transaction; a failure
// is logged and does not stop the sweep. Safe to run concurrently and
// repeatedly.
func (m *Machine) AutoCloseExpiredGames(ctx context.Context) (int, error) {
	games, err := m.db.Queries.ListOpenPokerGames(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open games: %w", err)
	}
	if len(games) == 0 {
		return 0, nil
	}

	logger := log.Ctx(ctx)
	closed := 0
	for _, game := range games {
		if !m.grid.IsPast(game.Date, game.Start) {
			continue
		}

		var (
			didClose bool
			expired  int64
		)
		err := m.db.RunInTx(ctx, func(txdb *db.DB) error {
			var err error
			didClose, expired, err = closeGameTx(ctx, txdb.Queries, game.ID, m.now())
			return err
		})
		if err != nil {
			logger.Error().Err(err).
				Int64("game_id", game.ID).
				Msg("Failed to auto-close poker game")
			continue
		}
		if !didClose {
			continue
		}
		closed++
		logger.Info().
			Int64("game_id", game.ID).
			Str("date", game.Date.Format(timegrid.DateLayout)).
			Str("start", game.Start.String()).
			Int64("expired_tokens", expired).
			Msg("Auto-closed poker game")
	}
	return closed, nil
}

// ExpireTokensForGame expires every non-terminal token of a game.
func (m *Machine) ExpireTokensForGame(ctx context.Context, gameID int64) (int64, error) {
	n, err := m.db.Queries.ExpireTokensForGame(ctx, gameID)
	if err != nil {
		return 0, fmt.Errorf("expire tokens for game %d: %w", gameID, err)
	}
	return n, nil
}

// ExpireDueTokens is the batch form of the lazy expiry check.
func (m *Machine) ExpireDueTokens(ctx context.Context) (int64, error) {
	n, err := m.db.Queries.ExpireDueTokens(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("expire due tokens: %w", err)
	}
	if n > 0 {
		log.Ctx(ctx).Info().Int64("expired_tokens", n).Msg("Expired due notification tokens")
	}
	return n, nil
}

// CloseGame closes a game manually. Closing an already closed game only
// re-expires any stray tokens.
func (m *Machine) CloseGame(ctx context.Context, gameID int64) error {
	var expired int64
	err := m.db.RunInTx(ctx, func(txdb *db.DB) error {
		if _, err := m.loadGame(ctx, txdb.Queries, gameID); err != nil {
			return err
		}
		var err error
		_, expired, err = closeGameTx(ctx, txdb.Queries, gameID, m.now())
		return err
	})
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().
		Str("component", "waitlist").
		Int64("game_id", gameID).
		Int64("expired_tokens", expired).
		Msg("Poker game closed")
	return nil
}

// DeleteGame expires the game's tokens, cancels its seats and removes it.
func (m *Machine) DeleteGame(ctx context.Context, gameID int64) error {
	var cancelled int64
	err := m.db.RunInTx(ctx, func(txdb *db.DB) error {
		if _, err := m.loadGame(ctx, txdb.Queries, gameID); err != nil {
			return err
		}
		if _, err := txdb.Queries.ExpireTokensForGame(ctx, gameID); err != nil {
			return fmt.Errorf("expire tokens: %w", err)
		}
		var err error
		cancelled, err = txdb.Queries.CancelGameReservations(ctx, gameID, m.now())
		if err != nil {
			return fmt.Errorf("cancel seats: %w", err)
		}
		if _, err := txdb.Queries.DeletePokerGame(ctx, gameID); err != nil {
			return fmt.Errorf("delete game: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().
		Str("component", "waitlist").
		Int64("game_id", gameID).
		Int64("cancelled_seats", cancelled).
		Msg("Poker game deleted")
	return nil
}

// ListOpenGames sweeps finished games first so callers never see a game that
// should already be closed.
func (m *Machine) ListOpenGames(ctx context.Context) ([]models.PokerGame, error) {
	if _, err := m.AutoCloseExpiredGames(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Auto-close before listing games failed")
	}
	return m.db.Queries.ListOpenPokerGames(ctx)
}
