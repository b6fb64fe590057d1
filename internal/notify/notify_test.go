package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haochenhowardyang/club-reservation-service/internal/models"
	"github.com/haochenhowardyang/club-reservation-service/internal/ratelimit"
	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recorder) Dispatch(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestFanout(t *testing.T) {
	ok := &recorder{}
	broken := &recorder{err: errors.New("broker down")}
	msg := Message{UserID: "a@example.com", Kind: KindWaitlistConfirmed}

	if err := (Fanout{broken, ok}).Dispatch(context.Background(), msg); err != nil {
		t.Fatalf("one working dispatcher should be enough, got %v", err)
	}
	if ok.count() != 1 {
		t.Fatalf("expected delivery, got %d", ok.count())
	}

	err := (Fanout{broken, &recorder{err: ErrNoRecipient}}).Dispatch(context.Background(), msg)
	if !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("expected joined errors, got %v", err)
	}
	if err := (Fanout{}).Dispatch(context.Background(), msg); err != nil {
		t.Fatalf("empty fanout is a no-op, got %v", err)
	}
}

func TestTransports_LogSinkOnlyWithoutTransport(t *testing.T) {
	msg := Message{UserID: "a@example.com", Kind: KindJoinInvite}

	fallback := Transports(nil)
	if len(fallback) != 1 {
		t.Fatalf("expected the log sink alone, got %d dispatchers", len(fallback))
	}
	if _, ok := fallback[0].(LogDispatcher); !ok {
		t.Fatalf("expected LogDispatcher, got %T", fallback[0])
	}

	broken := &recorder{err: errors.New("ses rejected")}
	if err := Transports(broken).Dispatch(context.Background(), msg); err == nil {
		t.Fatal("a failed transport must surface even though logging cannot fail")
	}
}

func TestThrottled(t *testing.T) {
	clock := &mockClock{now: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)}
	limiter := ratelimit.New(&ratelimit.Config{Cooldown: time.Minute, MaxPerHour: 5, Clock: clock})
	defer limiter.Close()

	next := &recorder{}
	d := NewThrottled(next, limiter)
	msg := Message{UserID: "a@example.com", Channel: ChannelEmail}

	if err := d.Dispatch(context.Background(), msg); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := d.Dispatch(context.Background(), msg); !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled inside cooldown, got %v", err)
	}
	if err := d.Dispatch(context.Background(), Message{UserID: "b@example.com", Channel: ChannelEmail}); err != nil {
		t.Fatalf("other recipients are unaffected, got %v", err)
	}
	clock.Advance(time.Minute)
	if err := d.Dispatch(context.Background(), msg); err != nil {
		t.Fatalf("send after cooldown: %v", err)
	}
	if next.count() != 3 {
		t.Fatalf("expected 3 deliveries, got %d", next.count())
	}
}

func TestSend_DetachesFromCallerAndReportsFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stamp := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	var sawCancelled bool
	d := DispatcherFunc(func(ctx context.Context, msg Message) error {
		sawCancelled = ctx.Err() != nil
		if !msg.SentAt.Equal(stamp) {
			t.Errorf("SentAt = %v, want the caller's %v", msg.SentAt, stamp)
		}
		return nil
	})
	if err := Send(ctx, d, Message{UserID: "a@example.com", SentAt: stamp}, time.Second); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sawCancelled {
		t.Fatal("dispatch must not inherit the caller's cancellation")
	}

	failing := DispatcherFunc(func(ctx context.Context, msg Message) error { return ErrNoRecipient })
	if err := Send(context.Background(), failing, Message{UserID: "a@example.com"}, 0); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("expected wrapped ErrNoRecipient, got %v", err)
	}
	if err := Send(context.Background(), nil, Message{}, 0); err != nil {
		t.Fatalf("nil dispatcher is a no-op, got %v", err)
	}
}

func TestTokenMessage(t *testing.T) {
	date := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	game := models.PokerGame{ID: 7, Date: date, Start: timegrid.NewTimeOfDay(20, 0), BlindLevel: "1/2"}
	tok := models.NotificationToken{
		Token:     "abc123",
		GameID:    7,
		UserID:    "a@example.com",
		Purpose:   models.PurposeConfirmReservation,
		ExpiresAt: date.Add(18 * time.Hour),
	}

	sentAt := date.Add(-2 * time.Hour)
	msg := TokenMessage(game, tok, "https://club.example.com/", sentAt)
	if msg.Kind != KindConfirmReservation || msg.GameID != 7 || msg.Token != "abc123" || !msg.SentAt.Equal(sentAt) {
		t.Fatalf("unexpected message %+v", msg)
	}
	for _, want := range []string{
		"https://club.example.com/t/abc123?response=confirmed",
		"https://club.example.com/t/abc123?response=declined",
		"Blinds: 1/2",
	} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}

	tok.Purpose = models.PurposeJoinInvite
	if TokenMessage(game, tok, "", sentAt).Kind != KindJoinInvite {
		t.Fatal("expected join invite kind")
	}
}

func TestPromotionMessage(t *testing.T) {
	gameID := int64(3)
	res := models.Reservation{
		UserID: "a@example.com",
		Type:   models.ResourcePoker,
		Date:   time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC),
		Start:  timegrid.NewTimeOfDay(20, 0),
		End:    timegrid.NewTimeOfDay(24, 0),
		GameID: &gameID,
	}
	msg := PromotionMessage(res, res.Date)
	if msg.Kind != KindReservationPromoted || msg.GameID != 3 || msg.UserID != "a@example.com" {
		t.Fatalf("unexpected message %+v", msg)
	}
}
