package concurrency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Limiter bounds in-flight calls per campaign with a Redis counter.
//
// TryAcquire increments first and compares the post-value, decrementing on
// reject, so the cap is never exceeded in the steady state regardless of how
// many acquirers race. The counter can drift upward if a worker dies between
// acquire and release; Reset gives operators the remedy, and the key TTL
// bounds how long drift survives an idle campaign.
type Limiter struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLimiter constructs a concurrency limiter.
func NewLimiter(client *redis.Client, ttl time.Duration) *Limiter {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Limiter{client: client, ttl: ttl}
}

// TryAcquire attempts to reserve a slot for the campaign. It never blocks:
// a denied acquire is reported as false so the caller can reschedule.
func (l *Limiter) TryAcquire(ctx context.Context, campaignID uuid.UUID, cap int) (bool, error) {
	if cap <= 0 {
		return false, fmt.Errorf("concurrency acquire: cap must be positive, got %d", cap)
	}

	key := l.key(campaignID)
	current, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("concurrency acquire: %w", err)
	}

	if current > int64(cap) {
		if err := l.client.Decr(ctx, key).Err(); err != nil {
			return false, fmt.Errorf("concurrency acquire: rollback: %w", err)
		}
		return false, nil
	}

	if err := l.client.PExpire(ctx, key, l.ttl).Err(); err != nil {
		return true, fmt.Errorf("concurrency acquire: refresh ttl: %w", err)
	}
	return true, nil
}

// Release frees a previously acquired slot. The Lua floor keeps a stray
// release from driving the counter negative.
func (l *Limiter) Release(ctx context.Context, campaignID uuid.UUID) error {
	script := redis.NewScript(`
local key = KEYS[1]
local current = tonumber(redis.call('GET', key) or '0')
if current <= 0 then
  redis.call('DEL', key)
  return 0
end
return redis.call('DECR', key)
`)
	if _, err := script.Run(ctx, l.client, []string{l.key(campaignID)}).Int(); err != nil {
		return fmt.Errorf("concurrency release: %w", err)
	}
	return nil
}

// Reset clears the campaign's counter. Operator action for drift recovery.
func (l *Limiter) Reset(ctx context.Context, campaignID uuid.UUID) error {
	if err := l.client.Del(ctx, l.key(campaignID)).Err(); err != nil {
		return fmt.Errorf("concurrency reset: %w", err)
	}
	return nil
}

// Active returns the campaign's current counter value.
func (l *Limiter) Active(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	val, err := l.client.Get(ctx, l.key(campaignID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("concurrency active: %w", err)
	}
	return val, nil
}

func (l *Limiter) key(campaignID uuid.UUID) string {
	return fmt.Sprintf("outbound:campaign:%s:active", campaignID.String())
}
