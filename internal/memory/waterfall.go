package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/aceteam-ai/conduit/internal/pipeline"
)

// searcher is the narrow seam Retriever needs from Store, kept unexported
// (and thus same-package-only) so tests can substitute a fake without
// standing up a real Milvus client.
type searcher interface {
	search(ctx context.Context, queryText, expr string, topK int) ([]searchHit, error)
}

// Retriever adapts a searcher to pipeline.MemoryRetriever, implementing
// the waterfall strategy of spec §4.3 stage 5: query the current channel
// first up to its budget share, then fall back to a global query (scoped
// by personality) for whatever budget remains.
type Retriever struct {
	store searcher
}

func NewRetriever(store *Store) *Retriever {
	return &Retriever{store: store}
}

var _ pipeline.MemoryRetriever = (*Retriever)(nil)

func (r *Retriever) Waterfall(ctx context.Context, params pipeline.WaterfallParams) ([]pipeline.MemoryResult, error) {
	ratio := pipeline.ClampChannelBudgetRatio(params.ChannelBudgetRatio)
	channelBudget := int(float64(params.TotalBudget) * ratio)
	if channelBudget == 0 && ratio > 0 && params.TotalBudget > 0 {
		// int() truncation must not zero out a nonzero share (spec §8:
		// totalLimit=1, ratio=0.5 must still reach the channel query).
		channelBudget = 1
	}

	var results []pipeline.MemoryResult
	seen := make(map[string]bool)

	if channelBudget > 0 && params.ChannelID != "" {
		channelExpr := fmt.Sprintf("channel_id == %q && personality_id == %q%s", params.ChannelID, params.PersonalityID, scopeExpr(params))
		hits, err := r.store.search(ctx, params.QueryText, channelExpr, channelBudget)
		if err != nil {
			return nil, fmt.Errorf("memory: channel-scoped waterfall query: %w", err)
		}
		for _, h := range hits {
			if seen[h.ID] {
				continue
			}
			seen[h.ID] = true
			results = append(results, pipeline.MemoryResult{ID: h.ID, Text: h.Text, Score: h.Score, ChannelID: h.ChannelID})
		}
	}

	remaining := params.TotalBudget - len(results)
	if remaining <= 0 {
		return results, nil
	}
	// The global query may use whatever budget is still unused, so a
	// channel query that under-filled its share is backfilled globally.
	fillBudget := remaining

	globalExpr := fmt.Sprintf("personality_id == %q%s", params.PersonalityID, scopeExpr(params))
	hits, err := r.store.search(ctx, params.QueryText, globalExpr, fillBudget+len(results))
	if err != nil {
		return nil, fmt.Errorf("memory: global waterfall query: %w", err)
	}
	for _, h := range hits {
		if seen[h.ID] || len(results) >= params.TotalBudget {
			continue
		}
		seen[h.ID] = true
		results = append(results, pipeline.MemoryResult{ID: h.ID, Text: h.Text, Score: h.Score, ChannelID: h.ChannelID})
	}

	return results, nil
}

// scopeExpr appends the mandatory persona scope and optional
// excludeNewerThan cutoff to a base Milvus boolean expression. Memory ids
// are derived from persona∥personality∥content hash (spec §3), so every
// query must be persona-scoped to avoid surfacing one persona's memories
// to another sharing the same personality.
func scopeExpr(params pipeline.WaterfallParams) string {
	var b strings.Builder
	if params.PersonaID != "" {
		fmt.Fprintf(&b, " && persona_id == %q", params.PersonaID)
	}
	if !params.ExcludeNewerThan.IsZero() {
		fmt.Fprintf(&b, " && created_at < %d", params.ExcludeNewerThan.UnixMilli())
	}
	return b.String()
}
