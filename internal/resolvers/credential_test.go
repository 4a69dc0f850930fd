package resolvers

import (
	"context"
	"testing"
	"time"

	"github.com/aceteam-ai/conduit/internal/cache"
	"github.com/aceteam-ai/conduit/internal/models"
)

type fakeCredentialStore struct {
	calls int
	cred  *models.UserCredential
}

func (f *fakeCredentialStore) GetCredential(ctx context.Context, userID, serviceTag string, credType models.CredentialType, key []byte) (*models.UserCredential, error) {
	f.calls++
	return f.cred, nil
}

func TestCredentialCacheHitsStoreOnceThenCaches(t *testing.T) {
	store := &fakeCredentialStore{cred: &models.UserCredential{ID: "c1", UserID: "u1", ServiceTag: "openrouter", Ciphertext: "sk-test"}}
	c := NewCredentialCache(context.Background(), nil, store, nil, time.Minute)

	for i := 0; i < 3; i++ {
		cred, err := c.Get(context.Background(), "u1", "openrouter", models.CredentialTypeLLMAPIKey)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if cred == nil || cred.Ciphertext != "sk-test" {
			t.Fatalf("unexpected credential: %+v", cred)
		}
	}
	if store.calls != 1 {
		t.Fatalf("expected 1 store call with caching, got %d", store.calls)
	}
}

func TestCredentialCacheUserInvalidation(t *testing.T) {
	store := &fakeCredentialStore{cred: &models.UserCredential{Ciphertext: "sk-a"}}
	c := NewCredentialCache(context.Background(), nil, store, nil, time.Minute)

	if _, err := c.Get(context.Background(), "u1", "openrouter", models.CredentialTypeLLMAPIKey); err != nil {
		t.Fatal(err)
	}
	store.cred = &models.UserCredential{Ciphertext: "sk-b"}

	c.handleEvent(cache.Event{Topic: cache.TopicAPIKey + "/user", ID: "u1"})

	cred, err := c.Get(context.Background(), "u1", "openrouter", models.CredentialTypeLLMAPIKey)
	if err != nil {
		t.Fatal(err)
	}
	if cred.Ciphertext != "sk-b" {
		t.Fatalf("expected invalidated entry to refetch, got %q", cred.Ciphertext)
	}
}

func TestCredentialCacheClearAll(t *testing.T) {
	store := &fakeCredentialStore{cred: &models.UserCredential{Ciphertext: "sk-a"}}
	c := NewCredentialCache(context.Background(), nil, store, nil, time.Minute)

	if _, err := c.Get(context.Background(), "u1", "openrouter", models.CredentialTypeLLMAPIKey); err != nil {
		t.Fatal(err)
	}
	c.handleEvent(cache.Event{Topic: cache.ClearAllTopic})
	if _, err := c.Get(context.Background(), "u1", "openrouter", models.CredentialTypeLLMAPIKey); err != nil {
		t.Fatal(err)
	}
	if store.calls != 2 {
		t.Fatalf("expected a refetch after clearAll, got %d calls", store.calls)
	}
}
