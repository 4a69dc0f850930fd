package resolvers

import (
	"context"
	"testing"
	"time"

	"github.com/aceteam-ai/conduit/internal/cache"
	"github.com/aceteam-ai/conduit/internal/models"
)

type fakePersonaStore struct {
	user        *models.User
	persona     *models.Persona
	userCalls   int
	personaCalls int
}

func (f *fakePersonaStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	f.userCalls++
	return f.user, nil
}

func (f *fakePersonaStore) GetPersona(ctx context.Context, id string) (*models.Persona, error) {
	f.personaCalls++
	return f.persona, nil
}

func TestPersonaCacheResolveDefaultAndCache(t *testing.T) {
	store := &fakePersonaStore{
		user:    &models.User{ID: "u1", DefaultPersona: "p1"},
		persona: &models.Persona{ID: "p1", Name: "Alice"},
	}
	c := NewPersonaCache(context.Background(), nil, store, time.Minute)

	for i := 0; i < 3; i++ {
		p, err := c.ResolveDefault(context.Background(), "u1")
		if err != nil {
			t.Fatal(err)
		}
		if p == nil || p.Name != "Alice" {
			t.Fatalf("unexpected persona: %+v", p)
		}
	}
	if store.userCalls != 1 || store.personaCalls != 1 {
		t.Fatalf("expected single store round trip, got user=%d persona=%d", store.userCalls, store.personaCalls)
	}
}

func TestPersonaCacheNoDefaultPersona(t *testing.T) {
	store := &fakePersonaStore{user: &models.User{ID: "u1"}}
	c := NewPersonaCache(context.Background(), nil, store, time.Minute)

	p, err := c.ResolveDefault(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Fatalf("expected nil persona, got %+v", p)
	}
}

func TestPersonaCacheInvalidation(t *testing.T) {
	store := &fakePersonaStore{
		user:    &models.User{ID: "u1", DefaultPersona: "p1"},
		persona: &models.Persona{ID: "p1", Name: "Alice"},
	}
	c := NewPersonaCache(context.Background(), nil, store, time.Minute)
	if _, err := c.ResolveDefault(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}

	store.persona = &models.Persona{ID: "p1", Name: "Renamed"}
	c.handleEvent(cache.Event{Topic: cache.TopicPersona + "/user", ID: "u1"})

	p, err := c.ResolveDefault(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Renamed" {
		t.Fatalf("expected refetch after invalidation, got %q", p.Name)
	}
}
