package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/haochenhowardyang/club-reservation-service/internal/db"
	"github.com/haochenhowardyang/club-reservation-service/internal/models"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
// Dates are interpreted in UTC.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()
	return NewTestDBIn(t, time.UTC)
}

// NewTestDBIn is NewTestDB with dates interpreted in loc.
func NewTestDBIn(t *testing.T, loc *time.Location) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath, loc)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// InsertUser adds a user to the test database.
func InsertUser(t *testing.T, database *db.DB, id string) {
	t.Helper()

	if err := database.Queries.UpsertUser(context.Background(), models.User{ID: id, Name: id}); err != nil {
		t.Fatalf("insert user %s: %v", id, err)
	}
}

// MockClock is a controllable clock for tests.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewMockClock(now time.Time) *MockClock {
	return &MockClock{now: now}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *MockClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
