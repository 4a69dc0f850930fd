package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

const notifyChannel = "cache_invalidation"

// DBBridge connects to Postgres, LISTENs on "cache_invalidation", validates
// each payload, and re-publishes it on the Bus — the second of spec §4.4's
// two event sources (the first being inline application-write publishes
// via Bus.Publish directly).
type DBBridge struct {
	connString string
	bus        *Bus
	logger     *slog.Logger
}

// NewDBBridge builds a bridge that will dial connString independently of
// the main connection pool, since LISTEN/NOTIFY requires a dedicated
// long-lived connection.
func NewDBBridge(connString string, bus *Bus, logger *slog.Logger) *DBBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBBridge{connString: connString, bus: bus, logger: logger}
}

// Run blocks, listening and re-publishing until ctx is cancelled,
// reconnecting with the same exponential backoff as Bus.Subscribe (1s
// doubling to 60s, giving up after 20 attempts).
func (b *DBBridge) Run(ctx context.Context) {
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

		if err := b.listenOnce(ctx); err != nil {
			attempts++
			if attempts >= maxAttempts {
				b.logger.Error("db notification bridge: giving up after repeated failures",
					"attempts", attempts, "error", err)
				return
			}
			b.logger.Warn("db notification bridge: connection failed, retrying",
				"attempt", attempts, "backoff", backoff, "error", err)
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

		// listenOnce only returns nil if ctx was cancelled mid-listen.
		attempts = 0
		backoff = minBackoff
	}
}

func (b *DBBridge) listenOnce(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, b.connString)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	b.logger.Info("db notification bridge: listening", "channel", notifyChannel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		ev, ok := b.validate(notification.Payload)
		if !ok {
			continue
		}
		b.bus.Publish(ctx, ev)
	}
}

// validate parses and sanity-checks a raw NOTIFY payload before trusting it
// enough to re-broadcast on the KV bus.
func (b *DBBridge) validate(payload string) (Event, bool) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		b.logger.Warn("db notification bridge: malformed payload, dropping", "error", err)
		return Event{}, false
	}
	if ev.Topic == "" {
		b.logger.Warn("db notification bridge: payload missing topic, dropping")
		return Event{}, false
	}
	return ev, true
}
