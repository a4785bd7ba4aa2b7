package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vantage-cms/vantage-cms/internal/platform/httpx"
)

// LoginThrottle caps failed login attempts per email within a rolling
// window, backed by Redis. A nil client disables throttling.
type LoginThrottle struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
}

// NewLoginThrottle constructs a throttle.
func NewLoginThrottle(client *redis.Client, maxAttempts int, window time.Duration) *LoginThrottle {
	return &LoginThrottle{client: client, maxAttempts: maxAttempts, window: window}
}

// Check fails with httpx.ErrRateLimited when the email has exhausted its
// attempts.
func (t *LoginThrottle) Check(ctx context.Context, email string) error {
	if t == nil || t.client == nil {
		return nil
	}
	count, err := t.client.Get(ctx, t.key(email)).Int()
	if err != nil && err != redis.Nil {
		// Throttling is advisory; a broken cache must not lock everyone out.
		return nil
	}
	if count >= t.maxAttempts {
		return fmt.Errorf("auth: login attempts exhausted: %w", httpx.ErrRateLimited)
	}
	return nil
}

// RecordFailure counts a failed attempt and arms the window expiry.
func (t *LoginThrottle) RecordFailure(ctx context.Context, email string) error {
	if t == nil || t.client == nil {
		return nil
	}
	key := t.key(email)
	count, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		return t.client.Expire(ctx, key, t.window).Err()
	}
	return nil
}

// Reset clears the attempt counter after a successful login.
func (t *LoginThrottle) Reset(ctx context.Context, email string) error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Del(ctx, t.key(email)).Err()
}

func (t *LoginThrottle) key(email string) string {
	return "auth:login_attempts:" + strings.ToLower(email)
}
