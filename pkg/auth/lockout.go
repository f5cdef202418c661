package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// LockoutPolicy tracks failed platform-admin logins in Redis and locks the
// account after too many failures inside the window. Only platform admins
// are subject to lockout; organization and legacy logins are not counted.
type LockoutPolicy struct {
	client       *redis.Client
	MaxFailures  int
	Window       time.Duration
	LockDuration time.Duration
}

// NewLockoutPolicy creates a lockout policy with the default thresholds:
// 5 failures within 15 minutes locks the account for 30 minutes.
func NewLockoutPolicy(client *redis.Client) *LockoutPolicy {
	return &LockoutPolicy{
		client:       client,
		MaxFailures:  5,
		Window:       15 * time.Minute,
		LockDuration: 30 * time.Minute,
	}
}

func failureKey(adminID int64) string { return fmt.Sprintf("lockout:failures:%d", adminID) }
func lockKey(adminID int64) string    { return fmt.Sprintf("lockout:locked:%d", adminID) }

// IsLocked reports whether the admin account is currently locked
func (p *LockoutPolicy) IsLocked(ctx context.Context, adminID int64) (bool, error) {
	n, err := p.client.Exists(ctx, lockKey(adminID)).Result()
	if err != nil {
		return false, fmt.Errorf("lockout check failed: %w", err)
	}
	return n > 0, nil
}

// RecordFailure counts a failed login. It returns true when this failure
// tripped the lock.
func (p *LockoutPolicy) RecordFailure(ctx context.Context, adminID int64) (bool, error) {
	key := failureKey(adminID)

	count, err := p.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to count login failure: %w", err)
	}
	if count == 1 {
		// First failure in a fresh window
		if err := p.client.Expire(ctx, key, p.Window).Err(); err != nil {
			return false, fmt.Errorf("failed to set failure window: %w", err)
		}
	}

	if count < int64(p.MaxFailures) {
		return false, nil
	}

	if err := p.client.Set(ctx, lockKey(adminID), "1", p.LockDuration).Err(); err != nil {
		return false, fmt.Errorf("failed to lock account: %w", err)
	}
	if err := p.client.Del(ctx, key).Err(); err != nil {
		return true, fmt.Errorf("failed to reset failure count: %w", err)
	}
	return true, nil
}

// Reset clears the failure count after a successful login. An active lock
// is not cleared; it expires on its own.
func (p *LockoutPolicy) Reset(ctx context.Context, adminID int64) error {
	if err := p.client.Del(ctx, failureKey(adminID)).Err(); err != nil {
		return fmt.Errorf("failed to reset failure count: %w", err)
	}
	return nil
}
