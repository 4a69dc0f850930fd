package resolvers

import (
	"context"
	"time"

	"github.com/aceteam-ai/conduit/internal/cache"
	"github.com/aceteam-ai/conduit/internal/models"
)

// PersonaStore is the relational seam PersonaCache needs.
type PersonaStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetPersona(ctx context.Context, id string) (*models.Persona, error)
}

// PersonaCache is the per-user default-persona hot cache.
type PersonaCache struct {
	store   PersonaStore
	entries *cache.TTLCache[string, *models.Persona]
}

// NewPersonaCache builds the cache and subscribes it to the bus's
// persona/{all|user} topic family.
func NewPersonaCache(ctx context.Context, bus *cache.Bus, store PersonaStore, ttl time.Duration) *PersonaCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &PersonaCache{
		store:   store,
		entries: cache.NewTTLCache[string, *models.Persona](ttl),
	}
	if bus != nil {
		bus.Subscribe(ctx, c.handleEvent)
	}
	return c
}

func (c *PersonaCache) handleEvent(ev cache.Event) {
	if !ev.Matches(cache.TopicPersona) {
		return
	}
	if ev.ID == "" {
		c.entries.Clear()
		return
	}
	c.entries.Invalidate(ev.ID)
}

// ResolveDefault returns userID's default persona, resolving the user
// record first to find the persona id.
func (c *PersonaCache) ResolveDefault(ctx context.Context, userID string) (*models.Persona, error) {
	if v, ok := c.entries.Get(userID); ok {
		return v, nil
	}
	user, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.DefaultPersona == "" {
		return nil, nil
	}
	persona, err := c.store.GetPersona(ctx, user.DefaultPersona)
	if err != nil {
		return nil, err
	}
	c.entries.Set(userID, persona)
	return persona, nil
}
