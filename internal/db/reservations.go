// internal/db/reservations.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/haochenhowardyang/club-reservation-service/internal/models"
	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
)

const reservationColumns = `id, user_id, resource_type, date, start_min, end_min, party_size, status, notes, game_id, created_at, updated_at`

func (q *Queries) scanReservation(row rowScanner) (models.Reservation, error) {
	var (
		r        models.Reservation
		date     string
		start    int
		end      int
		gameID   sql.NullInt64
		resource string
		status   string
	)
	if err := row.Scan(&r.ID, &r.UserID, &resource, &date, &start, &end, &r.PartySize, &status, &r.Notes, &gameID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return models.Reservation{}, err
	}
	d, err := q.parseDate(date)
	if err != nil {
		return models.Reservation{}, err
	}
	r.Type = models.ResourceType(resource)
	r.Status = models.ReservationStatus(status)
	r.Date = d
	r.Start = timegrid.TimeOfDay(start)
	r.End = timegrid.TimeOfDay(end)
	if gameID.Valid {
		id := gameID.Int64
		r.GameID = &id
	}
	return r, nil
}

func (q *Queries) scanReservations(rows *sql.Rows) ([]models.Reservation, error) {
	defer rows.Close()
	var out []models.Reservation
	for rows.Next() {
		r, err := q.scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type CreateReservationParams struct {
	UserID    string
	Type      models.ResourceType
	Date      time.Time
	Start     timegrid.TimeOfDay
	End       timegrid.TimeOfDay
	PartySize int
	Status    models.ReservationStatus
	Notes     string
	GameID    *int64
	Now       time.Time
}

func (q *Queries) CreateReservation(ctx context.Context, arg CreateReservationParams) (models.Reservation, error) {
	now := Timestamp(arg.Now)
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO reservations (user_id, resource_type, date, start_min, end_min, party_size, status, notes, game_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+reservationColumns,
		arg.UserID, string(arg.Type), q.formatDate(arg.Date), int(arg.Start), int(arg.End), arg.PartySize,
		string(arg.Status), arg.Notes, nullInt64(arg.GameID), now, now,
	)
	return q.scanReservation(row)
}

func (q *Queries) GetReservation(ctx context.Context, id int64) (models.Reservation, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	return q.scanReservation(row)
}

// ListActiveReservationsByDate returns confirmed and waitlisted reservations of
// every type on the given date, oldest first.
func (q *Queries) ListActiveReservationsByDate(ctx context.Context, date time.Time) ([]models.Reservation, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE date = ? AND status IN ('confirmed', 'waitlisted')
		ORDER BY id`,
		q.formatDate(date),
	)
	if err != nil {
		return nil, fmt.Errorf("list active reservations: %w", err)
	}
	return q.scanReservations(rows)
}

// ListWaitlistedReservations returns waitlisted reservations for a room on a
// date in queue order.
func (q *Queries) ListWaitlistedReservations(ctx context.Context, date time.Time, types []models.ResourceType) ([]models.Reservation, error) {
	if len(types) == 0 {
		return nil, nil
	}
	args := []interface{}{q.formatDate(date)}
	placeholders := ""
	for i, t := range types {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, string(t))
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE date = ? AND status = 'waitlisted' AND resource_type IN (`+placeholders+`)
		ORDER BY created_at, id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list waitlisted reservations: %w", err)
	}
	return q.scanReservations(rows)
}

func (q *Queries) ListReservationsForUser(ctx context.Context, userID string, from time.Time) ([]models.Reservation, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE user_id = ? AND date >= ?
		ORDER BY date, start_min, id`,
		userID, q.formatDate(from),
	)
	if err != nil {
		return nil, fmt.Errorf("list user reservations: %w", err)
	}
	return q.scanReservations(rows)
}

// UpdateReservationStatus moves a reservation from one status to another and
// reports whether the row was still in the expected status.
func (q *Queries) UpdateReservationStatus(ctx context.Context, id int64, from, to models.ReservationStatus, now time.Time) (bool, error) {
	n, err := rowsAffected(q.db.ExecContext(ctx, `
		UPDATE reservations SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), Timestamp(now), id, string(from),
	))
	if err != nil {
		return false, fmt.Errorf("update reservation status: %w", err)
	}
	return n == 1, nil
}

// GetActiveGameReservation returns the non-cancelled poker reservation a user
// holds for a game.
func (q *Queries) GetActiveGameReservation(ctx context.Context, gameID int64, userID string) (models.Reservation, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE game_id = ? AND user_id = ? AND status <> 'cancelled'`,
		gameID, userID,
	)
	return q.scanReservation(row)
}

// CountConfirmedGameReservations counts the seats taken at a game.
func (q *Queries) CountConfirmedGameReservations(ctx context.Context, gameID int64) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reservations WHERE game_id = ? AND status = 'confirmed'`,
		gameID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count game reservations: %w", err)
	}
	return n, nil
}

type CreateBlockedSlotParams struct {
	Type   models.ResourceType
	Date   time.Time
	Start  timegrid.TimeOfDay
	End    timegrid.TimeOfDay
	Reason string
}

func (q *Queries) CreateBlockedSlot(ctx context.Context, arg CreateBlockedSlotParams) (models.BlockedSlot, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO blocked_slots (resource_type, date, start_min, end_min, reason)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		string(arg.Type), q.formatDate(arg.Date), int(arg.Start), int(arg.End), arg.Reason,
	).Scan(&id)
	if err != nil {
		return models.BlockedSlot{}, fmt.Errorf("create blocked slot: %w", err)
	}
	return models.BlockedSlot{
		ID:     id,
		Type:   arg.Type,
		Date:   arg.Date,
		Start:  arg.Start,
		End:    arg.End,
		Reason: arg.Reason,
	}, nil
}

// ListBlockedSlotsByDate returns blocks of every shared-room type on a date.
func (q *Queries) ListBlockedSlotsByDate(ctx context.Context, date time.Time) ([]models.BlockedSlot, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, resource_type, date, start_min, end_min, reason
		FROM blocked_slots
		WHERE date = ?
		ORDER BY start_min, id`,
		q.formatDate(date),
	)
	if err != nil {
		return nil, fmt.Errorf("list blocked slots: %w", err)
	}
	defer rows.Close()

	var out []models.BlockedSlot
	for rows.Next() {
		var (
			b        models.BlockedSlot
			resource string
			d        string
			start    int
			end      int
		)
		if err := rows.Scan(&b.ID, &resource, &d, &start, &end, &b.Reason); err != nil {
			return nil, err
		}
		parsed, err := q.parseDate(d)
		if err != nil {
			return nil, err
		}
		b.Type = models.ResourceType(resource)
		b.Date = parsed
		b.Start = timegrid.TimeOfDay(start)
		b.End = timegrid.TimeOfDay(end)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (q *Queries) DeleteBlockedSlot(ctx context.Context, id int64) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, `DELETE FROM blocked_slots WHERE id = ?`, id))
}

// CancelGameReservations cancels every active seat at a game.
func (q *Queries) CancelGameReservations(ctx context.Context, gameID int64, now time.Time) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, `
		UPDATE reservations SET status = 'cancelled', updated_at = ?
		WHERE game_id = ? AND status <> 'cancelled'`,
		Timestamp(now), gameID,
	))
}
