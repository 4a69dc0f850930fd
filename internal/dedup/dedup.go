// Package dedup implements spec §4.1's request deduplication and rate
// limiting, and §5's idempotency-lock contract. All three are built on the
// shared KV (Redis): an atomic SET NX EX lock, a Lua INCR+EXPIRE script,
// and (as an in-process safety net layered under the Lua limiter) a
// per-key token bucket grounded on the teacher's
// internal/terminal/ratelimit.go.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the deduplication window from spec §4.1.
const DefaultTTL = 30 * time.Second

// Deduplicator maps request fingerprints to the job id they produced,
// guaranteeing "for a given fingerprint, at most one in-flight job id is
// returned across all ingress replicas" (spec §4.1, testable property 1).
type Deduplicator struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDeduplicator builds a Deduplicator with the given TTL (DefaultTTL if
// zero).
func NewDeduplicator(rdb *redis.Client, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Deduplicator{rdb: rdb, ttl: ttl}
}

func fingerprintKey(fingerprint string) string {
	return "dedup:v1:" + fingerprint
}

// Reserve atomically associates fingerprint with jobID if no association
// exists yet, returning (existingJobID, true) when a prior caller already
// won the race, or (jobID, false) when this call created the association.
//
// Built on SET NX (create-if-absent) rather than GET-then-SET to avoid the
// race two concurrent ingress replicas would otherwise hit.
func (d *Deduplicator) Reserve(ctx context.Context, fingerprint, jobID string) (string, bool, error) {
	key := fingerprintKey(fingerprint)
	ok, err := d.rdb.SetNX(ctx, key, jobID, d.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("dedup: reserve: %w", err)
	}
	if ok {
		return jobID, false, nil
	}
	existing, err := d.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			// Lost the race to a TTL expiry between SetNX and Get; retry
			// once as a fresh reservation.
			return d.Reserve(ctx, fingerprint, jobID)
		}
		return "", false, fmt.Errorf("dedup: read existing: %w", err)
	}
	return existing, true, nil
}
