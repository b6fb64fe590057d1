// Package ratelimit throttles outbound notifications per recipient.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

// realClock implements Clock using the system time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds rate limit configuration.
type Config struct {
	Cooldown   time.Duration // Minimum time between two sends to one recipient (default: 60s)
	MaxPerHour int           // Max sends per recipient per hour (default: 10)

	// Clock for testing (nil uses real time)
	Clock Clock
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		Cooldown:   60 * time.Second,
		MaxPerHour: 10,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string // For logging
}

// entry tracks request counts and timestamps.
type entry struct {
	count   int
	firstAt time.Time // First send in window
	lastAt  time.Time // Most recent send (for cooldown)
}

// Limiter enforces a per-recipient cooldown and hourly cap.
type Limiter struct {
	config *Config
	clock  Clock
	mu     sync.Mutex
	// Keyed by hash of recipient and channel
	sends map[string]*entry

	// Cleanup goroutine management
	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

// New creates a new rate limiter with the given config.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        cfg,
		clock:         clock,
		sends:         make(map[string]*entry),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// Check reports whether a send to recipient on channel is allowed without
// recording it.
func (l *Limiter) Check(recipient, channel string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	key := l.hashKey(channel+":", normalizeIdentifier(recipient))

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.check(key, now)
}

// Allow checks and, when allowed, records the send in one step so two
// concurrent senders cannot both squeeze under the limit.
func (l *Limiter) Allow(recipient, channel string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	key := l.hashKey(channel+":", normalizeIdentifier(recipient))

	l.mu.Lock()
	defer l.mu.Unlock()
	result := l.check(key, now)
	if result.Allowed {
		l.record(key, now)
	}
	return result
}

// Record records a send that happened outside Allow.
func (l *Limiter) Record(recipient, channel string) {
	now := l.clock.Now()
	key := l.hashKey(channel+":", normalizeIdentifier(recipient))

	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(key, now)
}

func (l *Limiter) check(key string, now time.Time) LimitResult {
	e := l.sends[key]
	if e == nil {
		return LimitResult{Allowed: true}
	}

	elapsed := now.Sub(e.lastAt)
	if elapsed < l.config.Cooldown {
		return LimitResult{
			Allowed:    false,
			RetryAfter: l.config.Cooldown - elapsed,
			Reason:     "cooldown",
		}
	}

	if l.config.MaxPerHour > 0 && now.Sub(e.firstAt) < time.Hour && e.count >= l.config.MaxPerHour {
		return LimitResult{
			Allowed:    false,
			RetryAfter: time.Hour - now.Sub(e.firstAt),
			Reason:     "hourly_limit",
		}
	}

	return LimitResult{Allowed: true}
}

func (l *Limiter) record(key string, now time.Time) {
	e := l.sends[key]
	if e == nil || now.Sub(e.firstAt) >= time.Hour {
		l.sends[key] = &entry{count: 1, firstAt: now, lastAt: now}
		return
	}
	e.count++
	e.lastAt = now
}

func (l *Limiter) hashKey(prefix, value string) string {
	hash := sha256.Sum256([]byte(value))
	return prefix + hex.EncodeToString(hash[:8])
}

// normalizeIdentifier lowercases the identifier so one user maps to one key.
func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.sends {
		if now.Sub(e.lastAt) > time.Hour {
			delete(l.sends, k)
		}
	}
}

// SanitizeIdentifier masks an identifier for logging.
func SanitizeIdentifier(identifier string) string {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if strings.Contains(identifier, "@") {
		parts := strings.Split(identifier, "@")
		if len(parts[0]) > 2 {
			return parts[0][:2] + "***@" + parts[1]
		}
		return "***@" + parts[1]
	}
	// Phone: show last 4 digits
	if len(identifier) >= 4 {
		return "***" + identifier[len(identifier)-4:]
	}
	return "***"
}

// LogRateLimitExceeded logs a throttled notification with a masked recipient.
func LogRateLimitExceeded(channel, identifier, reason string, retryAfter time.Duration) {
	log.Warn().
		Str("event", "rate_limit_exceeded").
		Str("channel", channel).
		Str("identifier", SanitizeIdentifier(identifier)).
		Str("reason", reason).
		Dur("retry_after", retryAfter).
		Msg("Notification rate limit exceeded")
}
