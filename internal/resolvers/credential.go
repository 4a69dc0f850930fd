// Package resolvers implements the per-process hot-lookup caches of
// spec §4.4 (API key, LLM config, persona, cascade) as consumers of
// internal/cache's invalidation bus, falling back to internal/store/postgres
// on a cache miss. Each cache registers a pure event→mutation subscriber
// per the bus's consumer contract.
package resolvers

import (
	"context"
	"fmt"
	"time"

	"github.com/aceteam-ai/conduit/internal/cache"
	"github.com/aceteam-ai/conduit/internal/models"
)

// DefaultTTL is the production safety-net TTL for hot caches (spec §4.4:
// 1s under test, 60s in production). Callers running under test should
// construct resolvers with a shorter TTL directly.
const DefaultTTL = 60 * time.Second

// CredentialStore is the relational seam CredentialCache needs.
type CredentialStore interface {
	GetCredential(ctx context.Context, userID, serviceTag string, credType models.CredentialType, key []byte) (*models.UserCredential, error)
}

// CredentialCache is the per-user API key hot cache.
type CredentialCache struct {
	store   CredentialStore
	encKey  []byte
	entries *cache.TTLCache[string, *models.UserCredential]
}

// NewCredentialCache builds the cache and subscribes it to the bus's
// apiKey/{all|user} topic family.
func NewCredentialCache(ctx context.Context, bus *cache.Bus, store CredentialStore, encKey []byte, ttl time.Duration) *CredentialCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &CredentialCache{
		store:   store,
		encKey:  encKey,
		entries: cache.NewTTLCache[string, *models.UserCredential](ttl),
	}
	if bus != nil {
		bus.Subscribe(ctx, c.handleEvent)
	}
	return c
}

func credentialKey(userID, serviceTag string, credType models.CredentialType) string {
	return fmt.Sprintf("%s:%s:%s", userID, serviceTag, credType)
}

func (c *CredentialCache) handleEvent(ev cache.Event) {
	if !ev.Matches(cache.TopicAPIKey) {
		return
	}
	if ev.ID == "" {
		c.entries.Clear()
		return
	}
	userID := ev.ID
	c.entries.InvalidateMatching(func(k string) bool {
		return len(k) >= len(userID)+1 && k[:len(userID)+1] == userID+":"
	})
}

// Get returns the decrypted credential for a user/service/type, consulting
// the cache before the store.
func (c *CredentialCache) Get(ctx context.Context, userID, serviceTag string, credType models.CredentialType) (*models.UserCredential, error) {
	key := credentialKey(userID, serviceTag, credType)
	if v, ok := c.entries.Get(key); ok {
		return v, nil
	}
	cred, err := c.store.GetCredential(ctx, userID, serviceTag, credType, c.encKey)
	if err != nil {
		return nil, err
	}
	c.entries.Set(key, cred)
	return cred, nil
}
