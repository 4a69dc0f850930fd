package resolvers

import (
	"context"
	"fmt"
	"time"

	"github.com/aceteam-ai/conduit/internal/cache"
	"github.com/aceteam-ai/conduit/internal/models"
	"github.com/aceteam-ai/conduit/internal/pipeline"
)

// PersonalityStore is the relational seam CascadeResolver needs for the
// personality base configuration.
type PersonalityStore interface {
	GetPersonality(ctx context.Context, id string) (*models.Personality, error)
}

// ChannelStore is the relational seam CascadeResolver needs for
// channel-level overrides.
type ChannelStore interface {
	GetActivatedChannel(ctx context.Context, channelID string) (*models.ActivatedChannel, error)
}

// CascadeResolver implements pipeline.ConfigResolver (spec §4.3 stage 2),
// resolving a personality's effective configuration through the override
// cascade: personality defaults → per-user config/persona overrides →
// per-channel config overrides. Its own result cache registers on the
// bus's cascade/{all|admin|user|personality} family plus "personality" and
// "channel", since either upstream source invalidates a cached cascade.
type CascadeResolver struct {
	personalities PersonalityStore
	channels      ChannelStore
	llmConfigs    *LLMConfigCache
	personas      *PersonaCache

	entries *cache.TTLCache[string, EffectivePersonalityResult]
}

// EffectivePersonalityResult bundles a resolved EffectivePersonality with
// the config-source label stage 2 reports, so both can share one cache
// entry.
type EffectivePersonalityResult struct {
	Personality pipeline.EffectivePersonality
	Source      string
}

var _ pipeline.ConfigResolver = (*CascadeResolver)(nil)

// NewCascadeResolver builds the resolver and subscribes its result cache
// to the bus.
func NewCascadeResolver(ctx context.Context, bus *cache.Bus, personalities PersonalityStore, channels ChannelStore, llmConfigs *LLMConfigCache, personas *PersonaCache, ttl time.Duration) *CascadeResolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &CascadeResolver{
		personalities: personalities,
		channels:      channels,
		llmConfigs:    llmConfigs,
		personas:      personas,
		entries:       cache.NewTTLCache[string, EffectivePersonalityResult](ttl),
	}
	if bus != nil {
		bus.Subscribe(ctx, r.handleEvent)
	}
	return r
}

func cascadeKey(personalityID, userID, channelID string) string {
	return fmt.Sprintf("%s:%s:%s", personalityID, userID, channelID)
}

func (r *CascadeResolver) handleEvent(ev cache.Event) {
	if ev.Matches(cache.TopicCascade) || ev.Matches(cache.TopicPersonality) || ev.Matches(cache.TopicChannel) {
		if ev.ID == "" {
			r.entries.Clear()
			return
		}
		id := ev.ID
		r.entries.InvalidateMatching(func(k string) bool {
			return containsSegment(k, id)
		})
	}
}

func containsSegment(key, id string) bool {
	for _, seg := range splitColon(key) {
		if seg == id {
			return true
		}
	}
	return false
}

func splitColon(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// Resolve implements pipeline.ConfigResolver.
func (r *CascadeResolver) Resolve(ctx context.Context, personalityID, userID, channelID string) (pipeline.EffectivePersonality, string, error) {
	key := cascadeKey(personalityID, userID, channelID)
	if v, ok := r.entries.Get(key); ok {
		return v.Personality, v.Source, nil
	}

	result, err := r.resolve(ctx, personalityID, userID, channelID)
	if err != nil {
		return pipeline.EffectivePersonality{}, "", err
	}
	r.entries.Set(key, result)
	return result.Personality, result.Source, nil
}

func (r *CascadeResolver) resolve(ctx context.Context, personalityID, userID, channelID string) (EffectivePersonalityResult, error) {
	base, err := r.personalities.GetPersonality(ctx, personalityID)
	if err != nil {
		return EffectivePersonalityResult{}, fmt.Errorf("resolvers: load personality %q: %w", personalityID, err)
	}
	if base == nil {
		return EffectivePersonalityResult{}, fmt.Errorf("resolvers: personality %q not found", personalityID)
	}

	eff := pipeline.EffectivePersonality{
		ID:                   base.ID,
		DisplayName:          base.DisplayName,
		SystemPromptTemplate: base.SystemPromptTemplate,
		ModelID:              base.ModelID,
		VisionModel:          base.VisionModel,
		Temperature:          base.Temperature,
		MaxTokens:            base.MaxTokens,
		ContextWindowBudget:  base.ContextWindowBudget,
	}
	source := "request"

	if persona, err := r.personas.ResolveDefault(ctx, userID); err == nil && persona != nil {
		eff.PersonaFields = map[string]string{
			"name":          persona.Name,
			"preferredName": persona.PreferredName,
			"pronouns":      persona.Pronouns,
			"description":   persona.Description,
		}
	}

	if llmCfg, err := r.llmConfigs.Resolve(ctx, userID, personalityID); err == nil && llmCfg != nil {
		eff.ModelID = llmCfg.ModelID
		eff.Temperature = llmCfg.Temperature
		eff.MaxTokens = llmCfg.MaxTokens
		source = "user-override"
	}

	if channelID != "" {
		channel, err := r.channels.GetActivatedChannel(ctx, channelID)
		if err == nil && channel != nil {
			applyChannelOverrides(&eff, channel.ConfigOverrides)
			source = "channel-override"
		}
	}

	return EffectivePersonalityResult{Personality: eff, Source: source}, nil
}

// applyChannelOverrides merges a config-overrides document onto eff. Only
// the keys a channel is allowed to override are honored; unrecognized keys
// and values of the wrong type are ignored. The PATCH handler stores
// overrides without checking them, so such keys can reach this function.
func applyChannelOverrides(eff *pipeline.EffectivePersonality, overrides map[string]any) {
	if overrides == nil {
		return
	}
	if v, ok := overrides["modelId"].(string); ok && v != "" {
		eff.ModelID = v
	}
	if v, ok := overrides["visionModel"].(string); ok && v != "" {
		eff.VisionModel = v
	}
	if v, ok := overrides["temperature"].(float64); ok {
		eff.Temperature = v
	}
	if v, ok := overrides["maxTokens"].(float64); ok {
		eff.MaxTokens = int(v)
	}
	if v, ok := overrides["systemPromptTemplate"].(string); ok && v != "" {
		eff.SystemPromptTemplate = v
	}
}
