package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript only deletes the lock if it still holds the value we set,
// so a lock that expired and was re-acquired by someone else is never
// released out from under them.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// MessageLock implements spec §5's idempotency lock: "SET key value NX EX
// ttl"; successful acquisition returns true; failed-processing callers
// MUST release to re-enable retries; successful callers leave it in place
// for its TTL.
type MessageLock struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMessageLock builds a MessageLock with the given hold duration.
func NewMessageLock(rdb *redis.Client, ttl time.Duration) *MessageLock {
	return &MessageLock{rdb: rdb, ttl: ttl}
}

func lockKey(messageID string) string {
	return "lock:v1:" + messageID
}

// Acquire attempts to claim messageID for processing under token,
// reporting whether the lock was taken. The same token must be passed to
// Release.
func (l *MessageLock) Acquire(ctx context.Context, messageID, token string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, lockKey(messageID), token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: acquire lock: %w", err)
	}
	return ok, nil
}

// Release frees messageID's lock, but only if token still owns it.
func (l *MessageLock) Release(ctx context.Context, messageID, token string) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{lockKey(messageID)}, token).Err(); err != nil {
		return fmt.Errorf("dedup: release lock: %w", err)
	}
	return nil
}
