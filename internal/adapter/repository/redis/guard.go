package redis

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iho/tradebook/internal/usecase"
)

// SubmissionGuard implements usecase.SubmissionGuard with one SETNX key per
// counterparty. The TTL releases keys left behind by a crashed process.
type SubmissionGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewSubmissionGuard creates a new SubmissionGuard. A non-positive ttl
// falls back to usecase.SubmissionLockTTL.
func NewSubmissionGuard(client *redis.Client, ttl time.Duration) *SubmissionGuard {
	if ttl <= 0 {
		ttl = usecase.SubmissionLockTTL
	}

	return &SubmissionGuard{
		client: client,
		prefix: "payment-lock:",
		ttl:    ttl,
	}
}

// releaseScript deletes the lock only while it still holds the caller's
// token, so a holder that outlived its TTL cannot free its successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire claims key. It returns false when another submission holds it.
func (g *SubmissionGuard) Acquire(ctx context.Context, key string) (string, bool, error) {
	token := ulid.Make().String()

	ok, err := g.client.SetNX(ctx, g.prefix+key, token, g.ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}

	return token, true, nil
}

// Release frees key if token still owns it.
func (g *SubmissionGuard) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, g.client, []string{g.prefix + key}, token).Err()
}
