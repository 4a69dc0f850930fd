package resolvers

import (
	"context"
	"testing"
	"time"

	"github.com/aceteam-ai/conduit/internal/models"
)

type fakePersonalityStore struct {
	personality *models.Personality
}

func (f *fakePersonalityStore) GetPersonality(ctx context.Context, id string) (*models.Personality, error) {
	return f.personality, nil
}

type fakeChannelStore struct {
	channel *models.ActivatedChannel
}

func (f *fakeChannelStore) GetActivatedChannel(ctx context.Context, channelID string) (*models.ActivatedChannel, error) {
	return f.channel, nil
}

func newTestCascadeResolver(t *testing.T, personality *models.Personality, channel *models.ActivatedChannel) *CascadeResolver {
	t.Helper()
	personas := NewPersonaCache(context.Background(), nil, &fakePersonaStore{}, time.Minute)
	llmConfigs := NewLLMConfigCache(context.Background(), nil, &fakeLLMConfigStore{}, time.Minute)
	return NewCascadeResolver(context.Background(), nil,
		&fakePersonalityStore{personality: personality},
		&fakeChannelStore{channel: channel},
		llmConfigs, personas, time.Minute)
}

func TestCascadeResolvePersonalityDefaults(t *testing.T) {
	r := newTestCascadeResolver(t, &models.Personality{
		ID: "pers1", DisplayName: "Nova", ModelID: "openrouter/base", Temperature: 0.7, MaxTokens: 512,
	}, nil)

	eff, source, err := r.Resolve(context.Background(), "pers1", "u1", "")
	if err != nil {
		t.Fatal(err)
	}
	if eff.ModelID != "openrouter/base" || source != "request" {
		t.Fatalf("unexpected resolution: %+v source=%q", eff, source)
	}
}

func TestCascadeResolveChannelOverride(t *testing.T) {
	r := newTestCascadeResolver(t,
		&models.Personality{ID: "pers1", ModelID: "openrouter/base", Temperature: 0.7},
		&models.ActivatedChannel{
			ChannelID:     "chan1",
			PersonalityID: "pers1",
			ConfigOverrides: map[string]any{
				"modelId":     "openrouter/override",
				"temperature": 0.2,
			},
		})

	eff, source, err := r.Resolve(context.Background(), "pers1", "u1", "chan1")
	if err != nil {
		t.Fatal(err)
	}
	if eff.ModelID != "openrouter/override" || eff.Temperature != 0.2 {
		t.Fatalf("expected channel override applied, got %+v", eff)
	}
	if source != "channel-override" {
		t.Fatalf("expected channel-override source, got %q", source)
	}
}

func TestCascadeResolveCachesResult(t *testing.T) {
	calls := 0
	personality := &models.Personality{ID: "pers1", ModelID: "openrouter/base"}
	store := countingPersonalityStore{inner: &fakePersonalityStore{personality: personality}, calls: &calls}
	personas := NewPersonaCache(context.Background(), nil, &fakePersonaStore{}, time.Minute)
	llmConfigs := NewLLMConfigCache(context.Background(), nil, &fakeLLMConfigStore{}, time.Minute)
	r := NewCascadeResolver(context.Background(), nil, store, &fakeChannelStore{}, llmConfigs, personas, time.Minute)

	for i := 0; i < 3; i++ {
		if _, _, err := r.Resolve(context.Background(), "pers1", "u1", ""); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected cascade result cached after first resolve, got %d store calls", calls)
	}
}

type countingPersonalityStore struct {
	inner PersonalityStore
	calls *int
}

func (c countingPersonalityStore) GetPersonality(ctx context.Context, id string) (*models.Personality, error) {
	*c.calls++
	return c.inner.GetPersonality(ctx, id)
}
