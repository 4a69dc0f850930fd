package memory

import (
	"context"
	"testing"
	"time"

	"github.com/aceteam-ai/conduit/internal/pipeline"
)

type fakeSearcher struct {
	channelHits []searchHit
	globalHits  []searchHit
	channelCall int
	globalCall  int
	lastChanTop int
	lastGlobTop int
}

func (f *fakeSearcher) search(ctx context.Context, queryText, expr string, topK int) ([]searchHit, error) {
	if containsSubstring(expr, "channel_id") {
		f.channelCall++
		f.lastChanTop = topK
		return f.channelHits, nil
	}
	f.globalCall++
	f.lastGlobTop = topK
	return f.globalHits, nil
}

func containsSubstring(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestWaterfallChannelThenGlobalFill(t *testing.T) {
	fs := &fakeSearcher{
		channelHits: []searchHit{
			{ID: "m1", Text: "channel memory", ChannelID: "c1", Score: 0.1},
		},
		globalHits: []searchHit{
			{ID: "m1", Text: "channel memory", ChannelID: "c1", Score: 0.1},
			{ID: "m2", Text: "global memory", ChannelID: "", Score: 0.3},
		},
	}
	r := &Retriever{store: fs}

	results, err := r.Waterfall(context.Background(), pipeline.WaterfallParams{
		PersonalityID:      "p1",
		ChannelID:          "c1",
		QueryText:          "hello",
		TotalBudget:        4,
		ChannelBudgetRatio: 0.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.channelCall != 1 || fs.globalCall != 1 {
		t.Fatalf("expected one channel and one global query, got %d/%d", fs.channelCall, fs.globalCall)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 deduplicated results, got %d: %+v", len(results), results)
	}
	seen := map[string]bool{}
	for _, r := range results {
		seen[r.ID] = true
	}
	if !seen["m1"] || !seen["m2"] {
		t.Fatalf("expected m1 and m2 in results, got %+v", results)
	}
}

func TestWaterfallNoChannelIDSkipsChannelQuery(t *testing.T) {
	fs := &fakeSearcher{
		globalHits: []searchHit{{ID: "g1", Text: "g", Score: 0.2}},
	}
	r := &Retriever{store: fs}

	results, err := r.Waterfall(context.Background(), pipeline.WaterfallParams{
		PersonalityID: "p1",
		QueryText:     "hi",
		TotalBudget:   3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.channelCall != 0 {
		t.Fatalf("expected no channel query without a channel id, got %d", fs.channelCall)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestWaterfallStopsAtTotalBudgetWhenChannelFills(t *testing.T) {
	fs := &fakeSearcher{
		channelHits: []searchHit{
			{ID: "m1", Score: 0.1}, {ID: "m2", Score: 0.2},
		},
	}
	r := &Retriever{store: fs}

	results, err := r.Waterfall(context.Background(), pipeline.WaterfallParams{
		PersonalityID:      "p1",
		ChannelID:          "c1",
		TotalBudget:        2,
		ChannelBudgetRatio: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.globalCall != 0 {
		t.Fatalf("expected no global query once channel results fill the budget, got %d calls", fs.globalCall)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestWaterfallChannelBudgetFlooredToOne(t *testing.T) {
	fs := &fakeSearcher{
		channelHits: []searchHit{{ID: "m1", Score: 0.1}},
	}
	r := &Retriever{store: fs}

	// spec §8 boundary case: totalLimit=1, ratio=0.5 must still reach the
	// channel query (int(1*0.5) truncates to 0 without the floor).
	_, err := r.Waterfall(context.Background(), pipeline.WaterfallParams{
		PersonalityID:      "p1",
		ChannelID:          "c1",
		TotalBudget:        1,
		ChannelBudgetRatio: 0.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.channelCall != 1 || fs.lastChanTop != 1 {
		t.Fatalf("expected channel query with topK=1, got calls=%d topK=%d", fs.channelCall, fs.lastChanTop)
	}
}

func TestWaterfallScopesByPersonaAndExcludesNewerThan(t *testing.T) {
	fs := &fakeSearcher{
		channelHits: []searchHit{{ID: "m1", Score: 0.1}},
	}
	r := &Retriever{store: fs}

	cutoff := time.UnixMilli(1700000000000)
	var capturedExpr string
	wrapped := &exprCapturingSearcher{fakeSearcher: fs, capture: &capturedExpr}
	r.store = wrapped

	_, err := r.Waterfall(context.Background(), pipeline.WaterfallParams{
		PersonaID:          "persona-1",
		PersonalityID:      "p1",
		ChannelID:          "c1",
		TotalBudget:        2,
		ChannelBudgetRatio: 1,
		ExcludeNewerThan:   cutoff,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !containsSubstring(capturedExpr, `persona_id == "persona-1"`) {
		t.Fatalf("expected expr to scope by persona_id, got %q", capturedExpr)
	}
	if !containsSubstring(capturedExpr, "created_at <") {
		t.Fatalf("expected expr to exclude newer-than cutoff, got %q", capturedExpr)
	}
}

type exprCapturingSearcher struct {
	*fakeSearcher
	capture *string
}

func (e *exprCapturingSearcher) search(ctx context.Context, queryText, expr string, topK int) ([]searchHit, error) {
	*e.capture = expr
	return e.fakeSearcher.search(ctx, queryText, expr, topK)
}
