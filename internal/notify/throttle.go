package notify

import (
	"context"
	"fmt"

	"github.com/haochenhowardyang/club-reservation-service/internal/ratelimit"
)

// Throttled wraps a dispatcher with a per-user, per-channel send budget.
type Throttled struct {
	next    Dispatcher
	limiter *ratelimit.Limiter
}

func NewThrottled(next Dispatcher, limiter *ratelimit.Limiter) *Throttled {
	return &Throttled{next: next, limiter: limiter}
}

func (t *Throttled) Dispatch(ctx context.Context, msg Message) error {
	if t.limiter == nil {
		return t.next.Dispatch(ctx, msg)
	}
	result := t.limiter.Allow(msg.UserID, string(msg.Channel))
	if !result.Allowed {
		ratelimit.LogRateLimitExceeded(string(msg.Channel), msg.UserID, result.Reason, result.RetryAfter)
		return fmt.Errorf("%w: %s, retry after %s", ErrThrottled, result.Reason, result.RetryAfter)
	}
	return t.next.Dispatch(ctx, msg)
}
