// internal/db/tokens.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/haochenhowardyang/club-reservation-service/internal/models"
)

const tokenColumns = `token, game_id, user_id, purpose, status, created_at, sent_at, expires_at`

func scanToken(row rowScanner) (models.NotificationToken, error) {
	var (
		t       models.NotificationToken
		purpose string
		status  string
		sentAt  sql.NullTime
	)
	if err := row.Scan(&t.Token, &t.GameID, &t.UserID, &purpose, &status, &t.CreatedAt, &sentAt, &t.ExpiresAt); err != nil {
		return models.NotificationToken{}, err
	}
	t.Purpose = models.TokenPurpose(purpose)
	t.Status = models.TokenStatus(status)
	if sentAt.Valid {
		sent := sentAt.Time
		t.SentAt = &sent
	}
	return t, nil
}

type CreateTokenParams struct {
	Token     string
	GameID    int64
	UserID    string
	Purpose   models.TokenPurpose
	Now       time.Time
	ExpiresAt time.Time
}

func (q *Queries) CreateToken(ctx context.Context, arg CreateTokenParams) (models.NotificationToken, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO notification_tokens (token, game_id, user_id, purpose, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?)
		RETURNING `+tokenColumns,
		arg.Token, arg.GameID, arg.UserID, string(arg.Purpose), Timestamp(arg.Now), Timestamp(arg.ExpiresAt),
	)
	return scanToken(row)
}

func (q *Queries) GetToken(ctx context.Context, token string) (models.NotificationToken, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM notification_tokens WHERE token = ?`, token)
	return scanToken(row)
}

func (q *Queries) ListTokensForGame(ctx context.Context, gameID int64) ([]models.NotificationToken, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+tokenColumns+` FROM notification_tokens WHERE game_id = ? ORDER BY created_at, token`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var out []models.NotificationToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ExpireOutstandingTokens expires the usable tokens of a (game, user, purpose)
// so a freshly issued token is the only live one.
func (q *Queries) ExpireOutstandingTokens(ctx context.Context, gameID int64, userID string, purpose models.TokenPurpose) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, `
		UPDATE notification_tokens SET status = 'expired'
		WHERE game_id = ? AND user_id = ? AND purpose = ? AND status IN ('pending', 'sent')`,
		gameID, userID, string(purpose),
	))
}

// ExpireTokensForGame expires every non-terminal token of a game.
func (q *Queries) ExpireTokensForGame(ctx context.Context, gameID int64) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, `
		UPDATE notification_tokens SET status = 'expired'
		WHERE game_id = ? AND status IN ('pending', 'sent')`,
		gameID,
	))
}

// ExpireDueTokens expires every non-terminal token whose expiry has passed.
func (q *Queries) ExpireDueTokens(ctx context.Context, now time.Time) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, `
		UPDATE notification_tokens SET status = 'expired'
		WHERE status IN ('pending', 'sent') AND expires_at <= ?`,
		Timestamp(now),
	))
}

// ExpireToken marks one token expired if it is still usable.
func (q *Queries) ExpireToken(ctx context.Context, token string) (bool, error) {
	n, err := rowsAffected(q.db.ExecContext(ctx, `
		UPDATE notification_tokens SET status = 'expired'
		WHERE token = ? AND status IN ('pending', 'sent')`,
		token,
	))
	return n == 1, err
}

// MarkTokenSent records a successful dispatch: pending -> sent.
func (q *Queries) MarkTokenSent(ctx context.Context, token string, now time.Time) (bool, error) {
	n, err := rowsAffected(q.db.ExecContext(ctx, `
		UPDATE notification_tokens SET status = 'sent', sent_at = ?
		WHERE token = ? AND status = 'pending'`,
		Timestamp(now), token,
	))
	return n == 1, err
}

// MarkTokenFailed records a failed dispatch: pending -> failed.
func (q *Queries) MarkTokenFailed(ctx context.Context, token string) (bool, error) {
	n, err := rowsAffected(q.db.ExecContext(ctx, `
		UPDATE notification_tokens SET status = 'failed'
		WHERE token = ? AND status = 'pending'`,
		token,
	))
	return n == 1, err
}

// ConsumeToken is the single-use compare-and-swap: it moves a usable,
// unexpired token to the response status and reports whether this call won.
func (q *Queries) ConsumeToken(ctx context.Context, token string, to models.TokenStatus, now time.Time) (bool, error) {
	n, err := rowsAffected(q.db.ExecContext(ctx, `
		UPDATE notification_tokens SET status = ?
		WHERE token = ? AND status IN ('pending', 'sent') AND expires_at > ?`,
		string(to), token, Timestamp(now),
	))
	if err != nil {
		return false, fmt.Errorf("consume token: %w", err)
	}
	return n == 1, nil
}
