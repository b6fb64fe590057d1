// internal/db/poker.go
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/haochenhowardyang/club-reservation-service/internal/models"
	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
)

const gameColumns = `id, date, start_min, blind_level, status, notes, created_at, updated_at`

func (q *Queries) scanGame(row rowScanner) (models.PokerGame, error) {
	var (
		g      models.PokerGame
		date   string
		start  int
		status string
	)
	if err := row.Scan(&g.ID, &date, &start, &g.BlindLevel, &status, &g.Notes, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return models.PokerGame{}, err
	}
	d, err := q.parseDate(date)
	if err != nil {
		return models.PokerGame{}, err
	}
	g.Date = d
	g.Start = timegrid.TimeOfDay(start)
	g.Status = models.GameStatus(status)
	return g, nil
}

type CreatePokerGameParams struct {
	Date       time.Time
	Start      timegrid.TimeOfDay
	BlindLevel string
	Notes      string
	Now        time.Time
}

func (q *Queries) CreatePokerGame(ctx context.Context, arg CreatePokerGameParams) (models.PokerGame, error) {
	now := Timestamp(arg.Now)
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO poker_games (date, start_min, blind_level, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, 'open', ?, ?, ?)
		RETURNING `+gameColumns,
		q.formatDate(arg.Date), int(arg.Start), arg.BlindLevel, arg.Notes, now, now,
	)
	return q.scanGame(row)
}

func (q *Queries) GetPokerGame(ctx context.Context, id int64) (models.PokerGame, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM poker_games WHERE id = ?`, id)
	return q.scanGame(row)
}

func (q *Queries) ListOpenPokerGames(ctx context.Context) ([]models.PokerGame, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+gameColumns+` FROM poker_games WHERE status = 'open' ORDER BY date, start_min, id`)
	if err != nil {
		return nil, fmt.Errorf("list open games: %w", err)
	}
	defer rows.Close()

	var out []models.PokerGame
	for rows.Next() {
		g, err := q.scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ClosePokerGame closes an open game; it reports false when the game was
// already closed.
func (q *Queries) ClosePokerGame(ctx context.Context, id int64, now time.Time) (bool, error) {
	n, err := rowsAffected(q.db.ExecContext(ctx, `
		UPDATE poker_games SET status = 'closed', updated_at = ?
		WHERE id = ? AND status = 'open'`,
		Timestamp(now), id,
	))
	if err != nil {
		return false, fmt.Errorf("close game: %w", err)
	}
	return n == 1, nil
}

func (q *Queries) DeletePokerGame(ctx context.Context, id int64) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, `DELETE FROM poker_games WHERE id = ?`, id))
}

const entryColumns = `id, game_id, user_id, position, status, created_at, updated_at`

func scanEntry(row rowScanner) (models.WaitlistEntry, error) {
	var (
		e      models.WaitlistEntry
		status string
	)
	if err := row.Scan(&e.ID, &e.GameID, &e.UserID, &e.Position, &status, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return models.WaitlistEntry{}, err
	}
	e.Status = models.WaitlistStatus(status)
	return e, nil
}

// CreateWaitlistEntry appends a waiting entry at the next free position. The
// position is derived inside the statement so it cannot collide with a
// position left behind by a removed entry.
func (q *Queries) CreateWaitlistEntry(ctx context.Context, gameID int64, userID string, now time.Time) (models.WaitlistEntry, error) {
	ts := Timestamp(now)
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO waitlist_entries (game_id, user_id, position, status, created_at, updated_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM waitlist_entries WHERE game_id = ?), 'waiting', ?, ?)
		RETURNING `+entryColumns,
		gameID, userID, gameID, ts, ts,
	)
	return scanEntry(row)
}

func (q *Queries) GetWaitlistEntry(ctx context.Context, gameID int64, userID string) (models.WaitlistEntry, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM waitlist_entries WHERE game_id = ? AND user_id = ?`,
		gameID, userID,
	)
	return scanEntry(row)
}

func (q *Queries) GetWaitlistEntryByID(ctx context.Context, id int64) (models.WaitlistEntry, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM waitlist_entries WHERE id = ?`, id)
	return scanEntry(row)
}

// NextWaitingEntry returns the earliest-position waiting entry of a game.
func (q *Queries) NextWaitingEntry(ctx context.Context, gameID int64) (models.WaitlistEntry, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE game_id = ? AND status = 'waiting'
		ORDER BY position, id
		LIMIT 1`,
		gameID,
	)
	return scanEntry(row)
}

func (q *Queries) ListWaitlistEntries(ctx context.Context, gameID int64) ([]models.WaitlistEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM waitlist_entries WHERE game_id = ? ORDER BY position, id`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("list waitlist entries: %w", err)
	}
	defer rows.Close()

	var out []models.WaitlistEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateWaitlistEntryStatus moves an entry out of the waiting state and
// reports whether it was still waiting.
func (q *Queries) UpdateWaitlistEntryStatus(ctx context.Context, id int64, to models.WaitlistStatus, now time.Time) (bool, error) {
	n, err := rowsAffected(q.db.ExecContext(ctx, `
		UPDATE waitlist_entries SET status = ?, updated_at = ?
		WHERE id = ? AND status = 'waiting'`,
		string(to), Timestamp(now), id,
	))
	if err != nil {
		return false, fmt.Errorf("update waitlist entry: %w", err)
	}
	return n == 1, nil
}

func (q *Queries) DeleteWaitlistEntry(ctx context.Context, id int64) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, `DELETE FROM waitlist_entries WHERE id = ?`, id))
}
