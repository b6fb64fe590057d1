// internal/db/queries.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds every statement the engine runs. Bind it to a *sql.Tx through
// DB.WithTx to run several statements atomically.
type Queries struct {
	db  DBTX
	loc *time.Location
}

func NewQueries(db DBTX, loc *time.Location) *Queries {
	if loc == nil {
		loc = time.UTC
	}
	return &Queries{db: db, loc: loc}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Timestamp normalizes an instant for storage. Stored instants are UTC at
// second precision so text comparisons in SQL order correctly.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func (q *Queries) formatDate(d time.Time) string {
	return d.In(q.loc).Format(timegrid.DateLayout)
}

func (q *Queries) parseDate(raw string) (time.Time, error) {
	d, err := time.ParseInLocation(timegrid.DateLayout, raw, q.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored date %q: %w", raw, err)
	}
	return d, nil
}

// IsUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY
// constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func rowsAffected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
