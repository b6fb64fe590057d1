package waitlist

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/haochenhowardyang/club-reservation-service/internal/db"
	"github.com/haochenhowardyang/club-reservation-service/internal/models"
	"github.com/haochenhowardyang/club-reservation-service/internal/notify"
)

// randomToken returns n random bytes hex encoded.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (m *Machine) ttlFor(purpose models.TokenPurpose) time.Duration {
	if purpose == models.PurposeConfirmReservation {
		return m.opts.ConfirmTTL
	}
	return m.opts.JoinInviteTTL
}

// IssueToken creates a pending token for (game, user, purpose). Any token for
// the same triple that is still usable is expired first, so at most one is
// ever live. A non-positive ttl uses the configured default for the purpose.
func (m *Machine) IssueToken(ctx context.Context, gameID int64, userID string, purpose models.TokenPurpose, ttl time.Duration) (models.NotificationToken, error) {
	switch purpose {
	case models.PurposeJoinInvite, models.PurposeConfirmReservation:
	default:
		return models.NotificationToken{}, fmt.Errorf("%w: unknown token purpose %q", models.ErrValidationFailed, purpose)
	}
	if ttl <= 0 {
		ttl = m.ttlFor(purpose)
	}
	if m.opts.Directory != nil {
		var err error
		if userID, err = m.opts.Directory.Normalize(userID); err != nil {
			return models.NotificationToken{}, err
		}
		ok, err := m.opts.Directory.EnsureUserExists(ctx, userID)
		if err != nil {
			return models.NotificationToken{}, err
		}
		if !ok {
			return models.NotificationToken{}, models.ErrUserNotFound
		}
	}

	value, err := m.opts.NewToken()
	if err != nil {
		return models.NotificationToken{}, err
	}

	var (
		tok      models.NotificationToken
		replaced int64
	)
	now := m.now()
	err = m.db.RunInTx(ctx, func(txdb *db.DB) error {
		game, err := m.loadGame(ctx, txdb.Queries, gameID)
		if err != nil {
			return err
		}
		if game.Status != models.GameOpen {
			return models.ErrGameNotOpen
		}
		replaced, err = txdb.Queries.ExpireOutstandingTokens(ctx, gameID, userID, purpose)
		if err != nil {
			return fmt.Errorf("expire previous tokens: %w", err)
		}
		tok, err = txdb.Queries.CreateToken(ctx, db.CreateTokenParams{
			Token:     value,
			GameID:    gameID,
			UserID:    userID,
			Purpose:   purpose,
			Now:       now,
			ExpiresAt: now.Add(ttl),
		})
		if err != nil {
			return fmt.Errorf("create token: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.NotificationToken{}, err
	}

	log.Ctx(ctx).Info().
		Str("component", "waitlist_tokens").
		Int64("game_id", gameID).
		Str("user_id", userID).
		Str("purpose", string(purpose)).
		Int64("replaced", replaced).
		Time("expires_at", tok.ExpiresAt).
		Msg("Notification token issued")
	return tok, nil
}

// MarkSent records that the token's notification went out.
func (m *Machine) MarkSent(ctx context.Context, token string) error {
	ok, err := m.db.Queries.MarkTokenSent(ctx, token, m.now())
	if err != nil {
		return fmt.Errorf("mark token sent: %w", err)
	}
	if !ok {
		return m.tokenStateError(ctx, token)
	}
	return nil
}

// MarkFailed records that the token's notification could not be delivered.
func (m *Machine) MarkFailed(ctx context.Context, token string) error {
	ok, err := m.db.Queries.MarkTokenFailed(ctx, token)
	if err != nil {
		return fmt.Errorf("mark token failed: %w", err)
	}
	if !ok {
		return m.tokenStateError(ctx, token)
	}
	return nil
}

// tokenStateError explains why a pending-only transition did not apply.
func (m *Machine) tokenStateError(ctx context.Context, token string) error {
	tok, err := m.db.Queries.GetToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrTokenNotFound
		}
		return err
	}
	if tok.Status == models.TokenExpired {
		return models.ErrTokenExpired
	}
	return fmt.Errorf("%w: token is %s", models.ErrTokenAlreadyUsed, tok.Status)
}

// Invite issues a token and dispatches it. Delivery is best effort: the
// token is marked sent or failed and returned either way.
func (m *Machine) Invite(ctx context.Context, gameID int64, userID string, purpose models.TokenPurpose) (models.NotificationToken, error) {
	tok, err := m.IssueToken(ctx, gameID, userID, purpose, 0)
	if err != nil {
		return models.NotificationToken{}, err
	}
	game, err := m.loadGame(ctx, m.db.Queries, gameID)
	if err != nil {
		return tok, err
	}

	msg := notify.TokenMessage(game, tok, m.opts.BaseURL, m.now())
	if m.opts.Notifier == nil {
		return tok, nil
	}
	if sendErr := notify.Send(ctx, m.opts.Notifier, msg, m.opts.NotifyTimeout); sendErr != nil {
		if err := m.MarkFailed(ctx, tok.Token); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("component", "waitlist_tokens").Msg("Failed to mark token failed")
		}
	} else if err := m.MarkSent(ctx, tok.Token); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("component", "waitlist_tokens").Msg("Failed to mark token sent")
	}

	refreshed, err := m.db.Queries.GetToken(ctx, tok.Token)
	if err != nil {
		return tok, nil
	}
	return refreshed, nil
}

// ConsumeResult is what a token response changed.
type ConsumeResult struct {
	Token       models.NotificationToken
	Entry       *models.WaitlistEntry
	Reservation *models.Reservation
}

// ConsumeToken applies a user's response through a single-use token. The
// status swap and the resulting waitlist or seat transition commit together,
// so of two concurrent calls exactly one succeeds.
func (m *Machine) ConsumeToken(ctx context.Context, token string, response models.TokenResponse) (ConsumeResult, error) {
	if response != models.ResponseConfirmed && response != models.ResponseDeclined {
		return ConsumeResult{}, fmt.Errorf("%w: unknown response %q", models.ErrValidationFailed, response)
	}

	var (
		result    ConsumeResult
		game      models.PokerGame
		expired   bool
		newlySeat bool
	)
	now := m.now()
	err := m.db.RunInTx(ctx, func(txdb *db.DB) error {
		q := txdb.Queries
		tok, err := q.GetToken(ctx, token)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrTokenNotFound
			}
			return fmt.Errorf("load token: %w", err)
		}
		if !tok.Status.Usable() {
			if tok.Status == models.TokenExpired {
				return models.ErrTokenExpired
			}
			return fmt.Errorf("%w: token is %s", models.ErrTokenAlreadyUsed, tok.Status)
		}
		if tok.ExpiredAt(now) {
			// Record the lazy expiry; the caller still gets TokenExpired.
			if _, err := q.ExpireToken(ctx, token); err != nil {
				return fmt.Errorf("expire token: %w", err)
			}
			expired = true
			return nil
		}

		game, err = m.loadGame(ctx, q, tok.GameID)
		if err != nil {
			return err
		}
		if !m.seatable(game) {
			// Started or closed: close it and expire every token it issued.
			closed, n, err := closeGameTx(ctx, q, game.ID, now)
			if err != nil {
				return err
			}
			log.Ctx(ctx).Info().
				Str("component", "waitlist_tokens").
				Int64("game_id", game.ID).
				Bool("closed", closed).
				Int64("expired_tokens", n).
				Msg("Token used after game start")
			expired = true
			return nil
		}

		won, err := q.ConsumeToken(ctx, token, models.TokenStatus(response), now)
		if err != nil {
			return err
		}
		if !won {
			return models.ErrTokenAlreadyUsed
		}
		tok.Status = models.TokenStatus(response)
		result.Token = tok

		switch tok.Purpose {
		case models.PurposeJoinInvite:
			if response == models.ResponseDeclined {
				return nil
			}
			joined, err := m.joinTx(ctx, txdb, game.ID, tok.UserID)
			if err != nil {
				return err
			}
			result.Entry = &joined.Entry
		case models.PurposeConfirmReservation:
			entry, err := q.GetWaitlistEntry(ctx, game.ID, tok.UserID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("waitlist entry for %s: %w", tok.UserID, models.ErrNotFound)
				}
				return err
			}
			if response == models.ResponseDeclined {
				if entry.Status == models.WaitlistWaiting {
					if _, err := q.UpdateWaitlistEntryStatus(ctx, entry.ID, models.WaitlistDeclined, now); err != nil {
						return err
					}
					entry.Status = models.WaitlistDeclined
				}
				result.Entry = &entry
				return nil
			}
			seated, err := m.seatTx(ctx, txdb, game, entry)
			if err != nil {
				return err
			}
			result.Entry = &seated.Entry
			result.Reservation = &seated.Reservation
			newlySeat = seated.Created
		}
		return nil
	})
	if err != nil {
		return ConsumeResult{}, err
	}
	if expired {
		return ConsumeResult{}, models.ErrTokenExpired
	}

	event := log.Ctx(ctx).Info().
		Str("component", "waitlist_tokens").
		Int64("game_id", result.Token.GameID).
		Str("user_id", result.Token.UserID).
		Str("purpose", string(result.Token.Purpose)).
		Str("response", string(response))
	if result.Entry != nil {
		event.Int("position", result.Entry.Position)
	}
	event.Msg("Notification token consumed")

	if newlySeat {
		_ = notify.Send(ctx, m.opts.Notifier, notify.WaitlistConfirmedMessage(game, result.Token.UserID, m.now()), m.opts.NotifyTimeout)
	}
	return result, nil
}
