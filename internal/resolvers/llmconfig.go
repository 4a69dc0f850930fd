package resolvers

import (
	"context"
	"fmt"
	"time"

	"github.com/aceteam-ai/conduit/internal/cache"
	"github.com/aceteam-ai/conduit/internal/models"
)

// LLMConfigStore is the relational seam LLMConfigCache needs.
type LLMConfigStore interface {
	GetUserPersonalityConfig(ctx context.Context, userID, personalityID string) (*models.UserPersonalityConfig, error)
	GetLLMConfig(ctx context.Context, id string) (*models.LLMConfig, error)
}

// LLMConfigCache is the per-user, per-personality sampling-profile override
// hot cache.
type LLMConfigCache struct {
	store   LLMConfigStore
	entries *cache.TTLCache[string, *models.LLMConfig]
}

// NewLLMConfigCache builds the cache and subscribes it to the bus's
// llmConfig/{all|user|config} topic family.
func NewLLMConfigCache(ctx context.Context, bus *cache.Bus, store LLMConfigStore, ttl time.Duration) *LLMConfigCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &LLMConfigCache{
		store:   store,
		entries: cache.NewTTLCache[string, *models.LLMConfig](ttl),
	}
	if bus != nil {
		bus.Subscribe(ctx, c.handleEvent)
	}
	return c
}

func llmConfigKey(userID, personalityID string) string {
	return fmt.Sprintf("%s:%s", userID, personalityID)
}

func (c *LLMConfigCache) handleEvent(ev cache.Event) {
	if !ev.Matches(cache.TopicLLMConfig) {
		return
	}
	// Keys are userID:personalityID and do not carry the config id, so an
	// event naming a config id clears every entry rather than guessing
	// which ones reference it.
	if ev.ID == "" || ev.Topic == cache.TopicLLMConfig+"/config" {
		c.entries.Clear()
		return
	}
	// Otherwise ev.ID names a user: drop every entry keyed under it.
	id := ev.ID
	c.entries.InvalidateMatching(func(k string) bool {
		return len(k) >= len(id)+1 && k[:len(id)+1] == id+":" || k == id
	})
}

// Resolve returns the effective LLM config override for userID on
// personalityID, or nil if the user has none (callers fall back to the
// personality's own defaults).
func (c *LLMConfigCache) Resolve(ctx context.Context, userID, personalityID string) (*models.LLMConfig, error) {
	key := llmConfigKey(userID, personalityID)
	if v, ok := c.entries.Get(key); ok {
		return v, nil
	}

	upc, err := c.store.GetUserPersonalityConfig(ctx, userID, personalityID)
	if err != nil {
		return nil, err
	}
	if upc == nil || upc.LLMConfigID == "" {
		c.entries.Set(key, nil)
		return nil, nil
	}

	cfg, err := c.store.GetLLMConfig(ctx, upc.LLMConfigID)
	if err != nil {
		return nil, err
	}
	c.entries.Set(key, cfg)
	return cfg, nil
}
