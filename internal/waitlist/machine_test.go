package waitlist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haochenhowardyang/club-reservation-service/internal/db"
	"github.com/haochenhowardyang/club-reservation-service/internal/identity"
	"github.com/haochenhowardyang/club-reservation-service/internal/models"
	"github.com/haochenhowardyang/club-reservation-service/internal/notify"
	"github.com/haochenhowardyang/club-reservation-service/internal/testutil"
	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
)

type fakeNotifier struct {
	sent atomic.Int32
	fail atomic.Bool
	mu   sync.Mutex
	last notify.Message
}

func (f *fakeNotifier) Dispatch(ctx context.Context, msg notify.Message) error {
	f.mu.Lock()
	f.last = msg
	f.mu.Unlock()
	if f.fail.Load() {
		return errors.New("smtp unavailable")
	}
	f.sent.Add(1)
	return nil
}

func (f *fakeNotifier) lastMessage() notify.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type testMachine struct {
	*Machine
	db       *db.DB
	grid     *timegrid.Grid
	clock    *testutil.MockClock
	notifier *fakeNotifier
	tokens   atomic.Int32
}

// Wednesday 2026-03-04 09:00 UTC, two-seat table.
func newTestMachine(t *testing.T, members ...string) *testMachine {
	t.Helper()
	tm := &testMachine{
		db:       testutil.NewTestDB(t),
		clock:    testutil.NewMockClock(time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)),
		notifier: &fakeNotifier{},
	}
	tm.grid = timegrid.New(timegrid.Options{Location: time.UTC, Clock: tm.clock})
	users := identity.NewStore(tm.db.Queries, identity.Options{})
	tm.Machine = NewMachine(tm.db, tm.grid, Options{
		Directory:   users,
		StrikeLimit: 3,
		Capacity:    FixedCapacity(2),
		Notifier:    tm.notifier,
		BaseURL:     "https://club.example.com",
		NewToken: func() (string, error) {
			return fmt.Sprintf("tok-%d", tm.tokens.Add(1)), nil
		},
	})
	for _, id := range members {
		testutil.InsertUser(t, tm.db, id)
	}
	return tm
}

func (tm *testMachine) game(t *testing.T, daysAhead int) models.PokerGame {
	t.Helper()
	game, err := tm.CreateGame(context.Background(), CreateGameRequest{
		Date:       tm.grid.AddDays(tm.grid.Today(), daysAhead),
		Start:      timegrid.NewTimeOfDay(20, 0),
		BlindLevel: "1/2",
	})
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	return game
}

func TestJoin_Idempotent(t *testing.T) {
	tm := newTestMachine(t, "a@example.com", "b@example.com")
	ctx := context.Background()
	game := tm.game(t, 1)

	first, err := tm.Join(ctx, game.ID, "a@example.com")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if first.AlreadyOnWaitlist || first.Entry.Position != 1 {
		t.Fatalf("unexpected first join %+v", first)
	}
	second, err := tm.Join(ctx, game.ID, "a@example.com")
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if !second.AlreadyOnWaitlist || second.Entry.Position != first.Entry.Position || second.Entry.ID != first.Entry.ID {
		t.Fatalf("expected same entry back, got %+v", second)
	}

	other, err := tm.Join(ctx, game.ID, "b@example.com")
	if err != nil {
		t.Fatalf("join b: %v", err)
	}
	if other.Entry.Position != 2 {
		t.Fatalf("expected position 2, got %d", other.Entry.Position)
	}

	entries, err := tm.ListEntries(ctx, game.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestJoin_ConcurrentPositionsAreDistinct(t *testing.T) {
	members := []string{"p1@example.com", "p2@example.com", "p3@example.com", "p4@example.com", "p5@example.com"}
	tm := newTestMachine(t, members...)
	ctx := context.Background()
	game := tm.game(t, 1)

	var wg sync.WaitGroup
	for _, user := range members {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			if _, err := tm.Join(ctx, game.ID, user); err != nil {
				t.Errorf("join %s: %v", user, err)
			}
		}(user)
	}
	wg.Wait()

	entries, err := tm.ListEntries(ctx, game.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	seen := make(map[int]bool)
	for _, e := range entries {
		if seen[e.Position] {
			t.Fatalf("duplicate position %d", e.Position)
		}
		seen[e.Position] = true
	}
	if len(entries) != len(members) {
		t.Fatalf("expected %d entries, got %d", len(members), len(entries))
	}
}

func TestJoin_Rejections(t *testing.T) {
	tm := newTestMachine(t, "a@example.com")
	ctx := context.Background()
	game := tm.game(t, 1)

	if _, err := tm.Join(ctx, game.ID, "ghost@example.com"); !errors.Is(err, models.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := tm.Join(ctx, 9999, "a@example.com"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := tm.CloseGame(ctx, game.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := tm.Join(ctx, game.ID, "a@example.com"); !errors.Is(err, models.ErrGameNotOpen) {
		t.Fatalf("expected ErrGameNotOpen, got %v", err)
	}
}

func TestConfirm_IdempotentAndCapacity(t *testing.T) {
	tm := newTestMachine(t, "a@example.com", "b@example.com", "c@example.com")
	ctx := context.Background()
	game := tm.game(t, 1)

	for _, user := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		if _, err := tm.Join(ctx, game.ID, user); err != nil {
			t.Fatalf("join %s: %v", user, err)
		}
	}

	first, err := tm.Confirm(ctx, game.ID, "a@example.com")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !first.Created || first.Entry.Status != models.WaitlistConfirmed {
		t.Fatalf("unexpected confirm %+v", first)
	}
	if first.Reservation.End != game.Start+timegrid.NewTimeOfDay(4, 0) {
		t.Fatalf("expected a four hour seat, got %s-%s", first.Reservation.Start, first.Reservation.End)
	}
	again, err := tm.Confirm(ctx, game.ID, "a@example.com")
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if again.Created || again.Reservation.ID != first.Reservation.ID {
		t.Fatalf("second confirm must not create a seat, got %+v", again)
	}

	if _, err := tm.Confirm(ctx, game.ID, "b@example.com"); err != nil {
		t.Fatalf("confirm b: %v", err)
	}
	if _, err := tm.Confirm(ctx, game.ID, "c@example.com"); !errors.Is(err, models.ErrCapacityReached) {
		t.Fatalf("expected ErrCapacityReached, got %v", err)
	}
	seated, err := tm.db.Queries.CountConfirmedGameReservations(ctx, game.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if seated != 2 {
		t.Fatalf("expected 2 seats, got %d", seated)
	}
	if tm.notifier.sent.Load() != 2 {
		t.Fatalf("expected two seat notices, got %d", tm.notifier.sent.Load())
	}
}

func TestInvite_ReissueExpiresPriorToken(t *testing.T) {
	tm := newTestMachine(t, "a@example.com")
	ctx := context.Background()
	game := tm.game(t, 1)

	first, err := tm.Invite(ctx, game.ID, "a@example.com", models.PurposeJoinInvite)
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if first.Status != models.TokenSent {
		t.Fatalf("expected sent, got %s", first.Status)
	}
	if msg := tm.notifier.lastMessage(); msg.Token != first.Token || msg.Kind != notify.KindJoinInvite {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg := tm.notifier.lastMessage(); !msg.SentAt.Equal(tm.clock.Now()) {
		t.Fatalf("SentAt = %v, want grid clock %v", msg.SentAt, tm.clock.Now())
	}

	second, err := tm.Invite(ctx, game.ID, "a@example.com", models.PurposeJoinInvite)
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if second.Token == first.Token {
		t.Fatal("expected a fresh token")
	}
	old, err := tm.db.Queries.GetToken(ctx, first.Token)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if old.Status != models.TokenExpired {
		t.Fatalf("prior token should be expired, got %s", old.Status)
	}
	if _, err := tm.ConsumeToken(ctx, first.Token, models.ResponseConfirmed); !errors.Is(err, models.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired for the replaced token, got %v", err)
	}
}

func TestInvite_DeliveryFailureMarksFailed(t *testing.T) {
	tm := newTestMachine(t, "a@example.com")
	ctx := context.Background()
	game := tm.game(t, 1)
	tm.notifier.fail.Store(true)

	tok, err := tm.Invite(ctx, game.ID, "a@example.com", models.PurposeJoinInvite)
	if err != nil {
		t.Fatalf("invite should succeed despite delivery failure: %v", err)
	}
	if tok.Status != models.TokenFailed {
		t.Fatalf("expected failed, got %s", tok.Status)
	}
	if _, err := tm.ConsumeToken(ctx, tok.Token, models.ResponseConfirmed); !errors.Is(err, models.ErrTokenAlreadyUsed) {
		t.Fatalf("a failed token is not usable, got %v", err)
	}
}

func TestConsumeToken_SingleUseUnderConcurrency(t *testing.T) {
	tm := newTestMachine(t, "a@example.com")
	ctx := context.Background()
	game := tm.game(t, 1)

	tok, err := tm.IssueToken(ctx, game.ID, "a@example.com", models.PurposeJoinInvite, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		failures  atomic.Int32
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tm.ConsumeToken(ctx, tok.Token, models.ResponseConfirmed)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, models.ErrTokenAlreadyUsed), errors.Is(err, models.ErrTokenExpired):
				failures.Add(1)
			default:
				t.Errorf("unexpected error kind %s: %v", models.KindOf(err), err)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 1 || failures.Load() != 1 {
		t.Fatalf("expected one success and one failure, got %d and %d", successes.Load(), failures.Load())
	}
	entries, err := tm.ListEntries(ctx, game.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one waitlist entry, got %d", len(entries))
	}
}

func TestConsumeToken_LazyExpiry(t *testing.T) {
	tm := newTestMachine(t, "a@example.com")
	ctx := context.Background()
	game := tm.game(t, 2)

	tok, err := tm.IssueToken(ctx, game.ID, "a@example.com", models.PurposeJoinInvite, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tm.clock.Advance(time.Hour)

	if _, err := tm.ConsumeToken(ctx, tok.Token, models.ResponseConfirmed); !errors.Is(err, models.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	stored, err := tm.db.Queries.GetToken(ctx, tok.Token)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if stored.Status != models.TokenExpired {
		t.Fatalf("lazy expiry should be recorded, got %s", stored.Status)
	}
	if _, err := tm.ConsumeToken(ctx, "no-such-token", models.ResponseConfirmed); !errors.Is(err, models.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestConsumeToken_ConfirmReservation(t *testing.T) {
	tm := newTestMachine(t, "a@example.com", "b@example.com")
	ctx := context.Background()
	game := tm.game(t, 1)

	for _, user := range []string{"a@example.com", "b@example.com"} {
		if _, err := tm.Join(ctx, game.ID, user); err != nil {
			t.Fatalf("join: %v", err)
		}
	}

	accept, err := tm.IssueToken(ctx, game.ID, "a@example.com", models.PurposeConfirmReservation, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	result, err := tm.ConsumeToken(ctx, accept.Token, models.ResponseConfirmed)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if result.Reservation == nil || result.Entry.Status != models.WaitlistConfirmed {
		t.Fatalf("expected a seat, got %+v", result)
	}
	if msg := tm.notifier.lastMessage(); msg.Kind != notify.KindWaitlistConfirmed || msg.UserID != "a@example.com" {
		t.Fatalf("expected seat notice, got %+v", msg)
	}

	decline, err := tm.IssueToken(ctx, game.ID, "b@example.com", models.PurposeConfirmReservation, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	result, err = tm.ConsumeToken(ctx, decline.Token, models.ResponseDeclined)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if result.Reservation != nil || result.Entry.Status != models.WaitlistDeclined {
		t.Fatalf("expected declined entry, got %+v", result)
	}
}

func TestAutoCloseExpiredGames(t *testing.T) {
	tm := newTestMachine(t, "a@example.com", "b@example.com")
	ctx := context.Background()
	yesterday := tm.grid.AddDays(tm.grid.Today(), -1)

	stale, err := tm.db.Queries.CreatePokerGame(ctx, db.CreatePokerGameParams{
		Date:  yesterday,
		Start: timegrid.NewTimeOfDay(20, 0),
		Now:   tm.clock.Now(),
	})
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	for i, user := range []string{"a@example.com", "b@example.com"} {
		if _, err := tm.db.Queries.CreateToken(ctx, db.CreateTokenParams{
			Token:     fmt.Sprintf("stale-%d", i),
			GameID:    stale.ID,
			UserID:    user,
			Purpose:   models.PurposeJoinInvite,
			Now:       tm.clock.Now(),
			ExpiresAt: tm.clock.Now().Add(24 * time.Hour),
		}); err != nil {
			t.Fatalf("create token: %v", err)
		}
	}
	upcoming := tm.game(t, 1)

	closed, err := tm.AutoCloseExpiredGames(ctx)
	if err != nil {
		t.Fatalf("auto-close: %v", err)
	}
	if closed != 1 {
		t.Fatalf("expected one game closed, got %d", closed)
	}

	game, err := tm.db.Queries.GetPokerGame(ctx, stale.ID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if game.Status != models.GameClosed {
		t.Fatalf("expected closed, got %s", game.Status)
	}
	tokens, err := tm.db.Queries.ListTokensForGame(ctx, stale.ID)
	if err != nil {
		t.Fatalf("list tokens: %v", err)
	}
	for _, tok := range tokens {
		if tok.Status != models.TokenExpired {
			t.Fatalf("token %s: expected expired, got %s", tok.Token, tok.Status)
		}
	}

	open, err := tm.db.Queries.GetPokerGame(ctx, upcoming.ID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if open.Status != models.GameOpen {
		t.Fatalf("future game must stay open, got %s", open.Status)
	}

	again, err := tm.AutoCloseExpiredGames(ctx)
	if err != nil || again != 0 {
		t.Fatalf("second sweep should be a no-op, got %d, %v", again, err)
	}
}

func TestDeleteGameCancelsSeats(t *testing.T) {
	tm := newTestMachine(t, "a@example.com")
	ctx := context.Background()
	game := tm.game(t, 1)

	if _, err := tm.Join(ctx, game.ID, "a@example.com"); err != nil {
		t.Fatalf("join: %v", err)
	}
	seat, err := tm.Confirm(ctx, game.ID, "a@example.com")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := tm.DeleteGame(ctx, game.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	res, err := tm.db.Queries.GetReservation(ctx, seat.Reservation.ID)
	if err != nil {
		t.Fatalf("get reservation: %v", err)
	}
	if res.Status != models.ReservationCancelled {
		t.Fatalf("expected seat cancelled, got %s", res.Status)
	}
	if err := tm.DeleteGame(ctx, game.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveEntry(t *testing.T) {
	tm := newTestMachine(t, "a@example.com")
	ctx := context.Background()
	game := tm.game(t, 1)

	if _, err := tm.Join(ctx, game.ID, "a@example.com"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := tm.RemoveEntry(ctx, game.ID, "a@example.com"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := tm.RemoveEntry(ctx, game.ID, "a@example.com"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConsumeToken_AfterGameStartClosesGame(t *testing.T) {
	tm := newTestMachine(t, "a@example.com", "b@example.com")
	ctx := context.Background()
	game := tm.game(t, 0)

	if _, err := tm.Join(ctx, game.ID, "a@example.com"); err != nil {
		t.Fatalf("join: %v", err)
	}
	var tokens []models.NotificationToken
	for _, user := range []string{"a@example.com", "b@example.com"} {
		tok, err := tm.IssueToken(ctx, game.ID, user, models.PurposeConfirmReservation, 24*time.Hour)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		tokens = append(tokens, tok)
	}

	// 21:00, an hour after the game started; no sweep has run.
	tm.clock.Advance(12 * time.Hour)

	if _, err := tm.ConsumeToken(ctx, tokens[0].Token, models.ResponseConfirmed); !errors.Is(err, models.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	seated, err := tm.db.Queries.CountConfirmedGameReservations(ctx, game.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if seated != 0 {
		t.Fatalf("no seat may be created after the start, got %d", seated)
	}

	stored, err := tm.db.Queries.GetPokerGame(ctx, game.ID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if stored.Status != models.GameClosed {
		t.Fatalf("expected the game to be closed, got %s", stored.Status)
	}
	for _, tok := range tokens {
		got, err := tm.db.Queries.GetToken(ctx, tok.Token)
		if err != nil {
			t.Fatalf("get token: %v", err)
		}
		if got.Status != models.TokenExpired {
			t.Fatalf("token %s: expected expired, got %s", tok.Token, got.Status)
		}
	}
}

func TestConfirm_AfterGameStart(t *testing.T) {
	tm := newTestMachine(t, "a@example.com")
	ctx := context.Background()
	game := tm.game(t, 0)

	if _, err := tm.Join(ctx, game.ID, "a@example.com"); err != nil {
		t.Fatalf("join: %v", err)
	}
	tm.clock.Advance(11*time.Hour + 30*time.Minute)

	if _, err := tm.Confirm(ctx, game.ID, "a@example.com"); !errors.Is(err, models.ErrGameNotOpen) {
		t.Fatalf("expected ErrGameNotOpen, got %v", err)
	}
	stored, err := tm.db.Queries.GetPokerGame(ctx, game.ID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if stored.Status != models.GameClosed {
		t.Fatalf("expected the game to be closed, got %s", stored.Status)
	}
}

func TestConfirm_CancelledSeatIsNotReseated(t *testing.T) {
	tm := newTestMachine(t, "a@example.com")
	ctx := context.Background()
	game := tm.game(t, 1)

	if _, err := tm.Join(ctx, game.ID, "a@example.com"); err != nil {
		t.Fatalf("join: %v", err)
	}
	seat, err := tm.Confirm(ctx, game.ID, "a@example.com")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := tm.db.Queries.UpdateReservationStatus(ctx, seat.Reservation.ID, models.ReservationConfirmed, models.ReservationCancelled, tm.clock.Now()); err != nil {
		t.Fatalf("cancel seat: %v", err)
	}

	if _, err := tm.Confirm(ctx, game.ID, "a@example.com"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	seated, err := tm.db.Queries.CountConfirmedGameReservations(ctx, game.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if seated != 0 {
		t.Fatalf("expected no live seat, got %d", seated)
	}
}

func TestMixedCaseEmailUsesStoredID(t *testing.T) {
	tm := newTestMachine(t, "a@example.com")
	ctx := context.Background()
	game := tm.game(t, 1)

	joined, err := tm.Join(ctx, game.ID, "A@Example.com")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.Entry.UserID != "a@example.com" {
		t.Fatalf("entry user = %q", joined.Entry.UserID)
	}
	again, err := tm.Join(ctx, game.ID, "a@EXAMPLE.com")
	if err != nil || !again.AlreadyOnWaitlist {
		t.Fatalf("second join: %+v, %v", again, err)
	}

	tok, err := tm.IssueToken(ctx, game.ID, "A@EXAMPLE.COM", models.PurposeConfirmReservation, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok.UserID != "a@example.com" {
		t.Fatalf("token user = %q", tok.UserID)
	}

	result, err := tm.Confirm(ctx, game.ID, "A@example.com")
	if err != nil || result.Reservation.UserID != "a@example.com" {
		t.Fatalf("confirm: %+v, %v", result, err)
	}
}
