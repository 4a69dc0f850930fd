package resolvers

import (
	"context"
	"testing"
	"time"

	"github.com/aceteam-ai/conduit/internal/cache"
	"github.com/aceteam-ai/conduit/internal/models"
)

type fakeLLMConfigStore struct {
	upc *models.UserPersonalityConfig
	cfg *models.LLMConfig
}

func (f *fakeLLMConfigStore) GetUserPersonalityConfig(ctx context.Context, userID, personalityID string) (*models.UserPersonalityConfig, error) {
	return f.upc, nil
}

func (f *fakeLLMConfigStore) GetLLMConfig(ctx context.Context, id string) (*models.LLMConfig, error) {
	return f.cfg, nil
}

func TestLLMConfigResolveNoOverride(t *testing.T) {
	store := &fakeLLMConfigStore{}
	c := NewLLMConfigCache(context.Background(), nil, store, time.Minute)

	cfg, err := c.Resolve(context.Background(), "u1", "pers1")
	if err != nil {
		t.Fatal(err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config with no override, got %+v", cfg)
	}
}

func TestLLMConfigResolveWithOverride(t *testing.T) {
	store := &fakeLLMConfigStore{
		upc: &models.UserPersonalityConfig{UserID: "u1", PersonalityID: "pers1", LLMConfigID: "cfg1"},
		cfg: &models.LLMConfig{ID: "cfg1", ModelID: "openrouter/gpt-x", Temperature: 0.9},
	}
	c := NewLLMConfigCache(context.Background(), nil, store, time.Minute)

	cfg, err := c.Resolve(context.Background(), "u1", "pers1")
	if err != nil {
		t.Fatal(err)
	}
	if cfg == nil || cfg.ModelID != "openrouter/gpt-x" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLLMConfigInvalidationByUserID(t *testing.T) {
	store := &fakeLLMConfigStore{
		upc: &models.UserPersonalityConfig{UserID: "u1", PersonalityID: "pers1", LLMConfigID: "cfg1"},
		cfg: &models.LLMConfig{ID: "cfg1", ModelID: "model-a"},
	}
	c := NewLLMConfigCache(context.Background(), nil, store, time.Minute)
	if _, err := c.Resolve(context.Background(), "u1", "pers1"); err != nil {
		t.Fatal(err)
	}

	store.cfg = &models.LLMConfig{ID: "cfg1", ModelID: "model-b"}
	c.handleEvent(cache.Event{Topic: cache.TopicLLMConfig + "/user", ID: "u1"})

	cfg, err := c.Resolve(context.Background(), "u1", "pers1")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ModelID != "model-b" {
		t.Fatalf("expected refetch after invalidation, got %q", cfg.ModelID)
	}
}
