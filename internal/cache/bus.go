// Package cache implements the multi-tier cache & invalidation fabric of
// spec §4.4: a Redis Pub/Sub bus carrying typed invalidation events, a
// Database Notification Bridge that re-publishes Postgres LISTEN/NOTIFY
// payloads onto that bus, and a generic TTL-bounded per-process cache used
// by internal/resolvers as the safety net under event-driven invalidation.
//
// The bus's reconnect-with-backoff subscribe loop is grounded on the
// teacher's internal/heartbeat/config_subscriber.go, generalized from one
// node-config channel to the typed event catalogue below.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is a typed invalidation notification. Topic follows the
// "{kind}/{scope}" shape from spec §4.4, e.g. "apiKey/user", "cascade/admin".
type Event struct {
	Topic string `json:"topic"`
	ID    string `json:"id,omitempty"` // user id / config id / personality id, depending on Topic
}

// Topic kinds (spec §4.4's event catalogue).
const (
	TopicAPIKey      = "apiKey"
	TopicLLMConfig   = "llmConfig"
	TopicPersona     = "persona"
	TopicCascade     = "cascade"
	TopicPersonality = "personality"
	TopicChannel     = "channel"
	TopicDenylist    = "denylist"
)

const busChannel = "cache:v1:invalidation"

// Handler mutates a subscriber's local state in response to an Event. It
// must be a pure function from event to cache mutation, per spec §4.4's
// consumer contract, and idempotent (clearAll subsumes narrower
// invalidations, and the bus may redeliver/reorder events).
type Handler func(Event)

// Bus publishes and fans out invalidation events over Redis Pub/Sub.
type Bus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewBus wraps an existing Redis client for the invalidation channel.
func NewBus(rdb *redis.Client, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{rdb: rdb, logger: logger}
}

// Publish fans an event out to all replicas. Failures are logged and
// swallowed per spec §7 ("invalidation-bus failures are logged and
// swallowed by update paths; the DB is the source of truth") — callers
// should never fail a write because the cache couldn't be told about it.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("cache bus: marshal event failed", "topic", ev.Topic, "error", err)
		return
	}
	if err := b.rdb.Publish(ctx, busChannel, payload).Err(); err != nil {
		b.logger.Warn("cache bus: publish failed, relying on DB as source of truth", "topic", ev.Topic, "error", err)
	}
}

// Subscribe registers handler for every event, connecting with exponential
// backoff (1s doubling to a 60s ceiling, giving up after 20 attempts, per
// spec §4.4). It returns a cleanup function that stops the subscriber's
// background goroutine; calling it does not unregister other subscribers
// sharing the same Bus connection.
func (b *Bus) Subscribe(ctx context.Context, handler Handler) (cleanup func()) {
	ctx, cancel := context.WithCancel(ctx)
	go b.subscribeLoop(ctx, handler)
	return cancel
}

func (b *Bus) subscribeLoop(ctx context.Context, handler Handler) {
	const (
		minBackoff  = time.Second
		maxBackoff  = 60 * time.Second
		maxAttempts = 20
	)

	backoff := minBackoff
	attempts := 0

	for {
		if ctx.Err() != nil {
			return
		}

		pubsub := b.rdb.Subscribe(ctx, busChannel)
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			attempts++
			if attempts >= maxAttempts {
				b.logger.Error("cache bus: giving up after repeated subscribe failures",
					"attempts", attempts, "error", err)
				return
			}
			b.logger.Warn("cache bus: subscribe failed, retrying", "attempt", attempts, "backoff", backoff, "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		// Connected: reset backoff and read until the connection drops.
		attempts = 0
		backoff = minBackoff
		ch := pubsub.Channel()

	readLoop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, open := <-ch:
				if !open {
					pubsub.Close()
					break readLoop
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("cache bus: malformed event, dropping", "error", err)
					continue
				}
				handler(ev)
			}
		}
	}
}

// ClearAllTopic is a synthetic topic some publishers may use to mean
// "invalidate everything of every kind"; handlers treat it as subsuming
// all narrower topics (spec §4.4, §5 ordering guarantees).
const ClearAllTopic = "*"

// Matches reports whether ev should be treated as invalidating the given
// topic prefix (e.g. "apiKey") — either an exact/nested match or a
// clearAll event.
func (ev Event) Matches(prefix string) bool {
	if ev.Topic == ClearAllTopic {
		return true
	}
	return ev.Topic == prefix || strings.HasPrefix(ev.Topic, prefix+"/")
}
