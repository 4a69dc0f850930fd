package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/aceteam-ai/conduit/internal/llm"
)

type fakeConfigResolver struct {
	cfg EffectivePersonality
	err error
}

func (f *fakeConfigResolver) Resolve(ctx context.Context, personalityID, userID, channelID string) (EffectivePersonality, string, error) {
	return f.cfg, "request", f.err
}

type fakeAuthResolver struct {
	auth AuthResolution
	err  error
}

func (f *fakeAuthResolver) Resolve(ctx context.Context, userID string, cfg EffectivePersonality) (AuthResolution, error) {
	return f.auth, f.err
}

type fakeMemoryRetriever struct {
	results []MemoryResult
}

func (f *fakeMemoryRetriever) Waterfall(ctx context.Context, params WaterfallParams) ([]MemoryResult, error) {
	return f.results, nil
}

type fakeMemoryWriter struct{ committed bool }

func (f *fakeMemoryWriter) StagePending(ctx context.Context, personaID, personalityID, text string) (string, error) {
	return "pending-1", nil
}
func (f *fakeMemoryWriter) Commit(ctx context.Context, pendingID string) error {
	f.committed = true
	return nil
}
func (f *fakeMemoryWriter) RetainForRetry(ctx context.Context, pendingID string) error { return nil }

type fakeDeliveryStore struct {
	jobID   string
	content string
}

func (f *fakeDeliveryStore) WritePendingDelivery(ctx context.Context, jobID, content string) error {
	f.jobID, f.content = jobID, content
	return nil
}

type fakeProvider struct {
	resp *llm.ChatResponse
	err  error
}

func (f *fakeProvider) Chat(ctx context.Context, apiKey string, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return f.resp, f.err
}

func basePersonality() EffectivePersonality {
	return EffectivePersonality{
		ID:                  "p1",
		DisplayName:         "Nova",
		SystemPromptTemplate: "You are {{char}}, speaking with {{user}}.",
		ModelID:             "gpt-x",
		MaxTokens:           512,
		ContextWindowBudget: 100000,
	}
}

func TestGenerateHappyPath(t *testing.T) {
	delivery := &fakeDeliveryStore{}
	deps := Dependencies{
		ConfigResolver:  &fakeConfigResolver{cfg: basePersonality()},
		AuthResolver:    &fakeAuthResolver{auth: AuthResolution{APIKey: "byok-key"}},
		MemoryRetriever: &fakeMemoryRetriever{},
		MemoryWriter:    &fakeMemoryWriter{},
		DeliveryStore:   delivery,
		Provider:        &fakeProvider{resp: &llm.ChatResponse{Content: "Hello there!", FinishReason: "stop"}},
	}

	g := &GenerationContext{Ctx: context.Background(), JobID: "job-1", Request: Request{
		UserID: "u1", DisplayName: "Alice", MessageText: "hi",
	}}

	if err := Generate(g, deps); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if g.FinalReply != "Hello there!" {
		t.Fatalf("got reply %q", g.FinalReply)
	}
	if delivery.content != "Hello there!" || delivery.jobID != "job-1" {
		t.Fatalf("delivery store not written correctly: %+v", delivery)
	}
	if g.Auth.IsGuestMode {
		t.Fatal("expected BYOK, not guest mode")
	}
}

func TestGenerateGuestModeFallback(t *testing.T) {
	deps := Dependencies{
		ConfigResolver:  &fakeConfigResolver{cfg: basePersonality()},
		AuthResolver:    &fakeAuthResolver{err: errors.New("no credential on file")},
		MemoryRetriever: &fakeMemoryRetriever{},
		MemoryWriter:    &fakeMemoryWriter{},
		DeliveryStore:   &fakeDeliveryStore{},
		Provider:        &fakeProvider{resp: &llm.ChatResponse{Content: "hi", FinishReason: "stop"}},
	}

	g := &GenerationContext{Ctx: context.Background(), JobID: "job-2", Request: Request{
		UserID: "u1", DisplayName: "Alice", MessageText: "hi",
	}}

	if err := Generate(g, deps); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !g.Auth.IsGuestMode {
		t.Fatal("expected guest-mode degrade")
	}
	if g.Config.EffectivePersonality.ModelID != FreeModelFallback {
		t.Fatalf("expected free model substitution, got %q", g.Config.EffectivePersonality.ModelID)
	}
}

func TestGenerateGuestModePreservesAlreadyFreeModel(t *testing.T) {
	cfg := basePersonality()
	cfg.ModelID = "openrouter/mythomax:free"

	deps := Dependencies{
		ConfigResolver:  &fakeConfigResolver{cfg: cfg},
		AuthResolver:    &fakeAuthResolver{err: errors.New("no credential on file")},
		MemoryRetriever: &fakeMemoryRetriever{},
		MemoryWriter:    &fakeMemoryWriter{},
		DeliveryStore:   &fakeDeliveryStore{},
		Provider:        &fakeProvider{resp: &llm.ChatResponse{Content: "hi", FinishReason: "stop"}},
	}

	g := &GenerationContext{Ctx: context.Background(), JobID: "job-2b", Request: Request{
		UserID: "u1", DisplayName: "Alice", MessageText: "hi",
	}}

	if err := Generate(g, deps); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if g.Config.EffectivePersonality.ModelID != "openrouter/mythomax:free" {
		t.Fatalf("expected already-free model preserved, got %q", g.Config.EffectivePersonality.ModelID)
	}
}

func TestGenerateLLMFailureClassified(t *testing.T) {
	deps := Dependencies{
		ConfigResolver:  &fakeConfigResolver{cfg: basePersonality()},
		AuthResolver:    &fakeAuthResolver{auth: AuthResolution{APIKey: "k"}},
		MemoryRetriever: &fakeMemoryRetriever{},
		MemoryWriter:    &fakeMemoryWriter{},
		DeliveryStore:   &fakeDeliveryStore{},
		Provider:        &fakeProvider{err: &llm.HTTPStatusError{StatusCode: 429, Body: []byte("slow down")}},
	}

	g := &GenerationContext{Ctx: context.Background(), JobID: "job-3", Request: Request{UserID: "u1", MessageText: "hi"}}

	err := Generate(g, deps)
	if err == nil {
		t.Fatal("expected classified error")
	}
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *GenerationError, got %T", err)
	}
	if genErr.Category != CategoryRateLimit || genErr.Disposition != Transient {
		t.Fatalf("got category=%s disposition=%s", genErr.Category, genErr.Disposition)
	}
	if genErr.ReferenceID == "" {
		t.Fatal("expected non-empty reference id")
	}
}

func TestBudgetStageDropsOldestHistory(t *testing.T) {
	g := &GenerationContext{
		SystemPrompt: "short",
		Messages: []ConversationMessage{
			{Role: "user", Content: stringRepeat("a", 2000)},
			{Role: "assistant", Content: "recent"},
		},
	}
	stage := BudgetStage(50)
	if err := stage(g); err != nil {
		t.Fatalf("BudgetStage: %v", err)
	}
	if len(g.Messages) != 1 || g.Messages[0].Content != "recent" {
		t.Fatalf("expected oldest message dropped, got %+v", g.Messages)
	}
	if g.Budget.DroppedHistoryCount != 1 {
		t.Fatalf("expected 1 dropped history entry, got %d", g.Budget.DroppedHistoryCount)
	}
}

func TestPostProcessDetectsDuplicate(t *testing.T) {
	g := &GenerationContext{
		RawReply: "same reply",
		Messages: []ConversationMessage{
			{Role: "assistant", Content: "same reply"},
		},
	}
	if err := PostProcess(g); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	if !g.IsDuplicate {
		t.Fatal("expected duplicate detection to trigger")
	}
}

func TestPostProcessExtractsReasoning(t *testing.T) {
	g := &GenerationContext{RawReply: "<reasoning>thinking hard</reasoning>the answer"}
	if err := PostProcess(g); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	if g.ReasoningContent != "thinking hard" || g.FinalReply != "the answer" {
		t.Fatalf("got reasoning=%q final=%q", g.ReasoningContent, g.FinalReply)
	}
}

func stringRepeat(s string, n int) string {
	b := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		b = append(b, s...)
	}
	return string(b)
}
