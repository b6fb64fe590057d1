// internal/db/users.go
package db

import (
	"context"
	"fmt"

	"github.com/haochenhowardyang/club-reservation-service/internal/models"
)

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Strikes, &u.IsAdmin, &u.CreatedAt); err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (q *Queries) GetUser(ctx context.Context, id string) (models.User, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, strikes, is_admin, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// UpsertUser inserts a user or refreshes its contact fields. Strikes and the
// admin flag are left alone on conflict.
func (q *Queries) UpsertUser(ctx context.Context, u models.User) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, phone, is_admin)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE users.name END,
			email = CASE WHEN excluded.email <> '' THEN excluded.email ELSE users.email END,
			phone = CASE WHEN excluded.phone <> '' THEN excluded.phone ELSE users.phone END`,
		u.ID, u.Name, u.Email, u.Phone, u.IsAdmin,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (q *Queries) SetUserStrikes(ctx context.Context, id string, strikes int) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, `UPDATE users SET strikes = ? WHERE id = ?`, strikes, id))
}

func (q *Queries) AddUserStrike(ctx context.Context, id string) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, `UPDATE users SET strikes = strikes + 1 WHERE id = ?`, id))
}

// PurgeCounts reports how many rows a user purge removed per table.
type PurgeCounts struct {
	Tokens       int64
	Entries      int64
	Reservations int64
	Users        int64
}

// PurgeUser removes a user and everything owned by them in one transaction.
func (db *DB) PurgeUser(ctx context.Context, id string) (PurgeCounts, error) {
	var counts PurgeCounts
	err := db.RunInTx(ctx, func(txdb *DB) error {
		steps := []struct {
			query string
			dest  *int64
		}{
			{`DELETE FROM notification_tokens WHERE user_id = ?`, &counts.Tokens},
			{`DELETE FROM waitlist_entries WHERE user_id = ?`, &counts.Entries},
			{`DELETE FROM reservations WHERE user_id = ?`, &counts.Reservations},
			{`DELETE FROM users WHERE id = ?`, &counts.Users},
		}
		for _, step := range steps {
			n, err := rowsAffected(txdb.Queries.db.ExecContext(ctx, step.query, id))
			if err != nil {
				return fmt.Errorf("purge user %s: %w", id, err)
			}
			*step.dest = n
		}
		if counts.Users == 0 {
			return models.ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		return PurgeCounts{}, err
	}
	return counts, nil
}
