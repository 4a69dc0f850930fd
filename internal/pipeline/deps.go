package pipeline

import (
	"context"
	"time"

	"github.com/aceteam-ai/conduit/internal/llm"
)

// ConfigResolver resolves the effective personality configuration for a
// request, applying the user/channel override cascade (spec §4.3 stage 2).
// Implemented by internal/resolvers against the cache-fabric + store.
type ConfigResolver interface {
	Resolve(ctx context.Context, personalityID, userID, channelID string) (EffectivePersonality, string, error)
}

// AuthResolver resolves which API key (if any) a generation should use,
// preferring BYOK and falling back to guest mode (spec §4.3 stage 3).
type AuthResolver interface {
	Resolve(ctx context.Context, userID string, cfg EffectivePersonality) (AuthResolution, error)
}

// MemoryRetriever performs the waterfall vector-similarity query of spec
// §4.3 stage 5.
type MemoryRetriever interface {
	Waterfall(ctx context.Context, params WaterfallParams) ([]MemoryResult, error)
}

// WaterfallParams carries the waterfall retrieval budget split.
type WaterfallParams struct {
	// PersonaID scopes retrieval to one persona's memories (required);
	// memory ids are derived from persona∥personality∥content hash, so
	// omitting it would leak memories across personas sharing a
	// personality.
	PersonaID          string
	PersonalityID      string
	ChannelID          string
	QueryText          string
	TotalBudget        int
	ChannelBudgetRatio float64 // clamped to [0,1] by the caller

	// ExcludeNewerThan, when non-zero, excludes memories created at or
	// after this time — the oldest timestamp visible in the current
	// conversation window (stage 4), so the model never retrieves a memory
	// of its own most recent turns.
	ExcludeNewerThan time.Time
}

// MemoryWriter persists pending and confirmed long-term memories (stage 11).
type MemoryWriter interface {
	StagePending(ctx context.Context, personaID, personalityID, text string) (string, error)
	Commit(ctx context.Context, pendingID string) error
	RetainForRetry(ctx context.Context, pendingID string) error
}

// DeliveryStore persists the job result hand-off (stage 12).
type DeliveryStore interface {
	WritePendingDelivery(ctx context.Context, jobID, content string) error
}

// Provider is re-exported for callers that only import internal/pipeline.
type Provider = llm.Provider
