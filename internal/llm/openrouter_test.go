package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenRouterTransportInjectsExtras(t *testing.T) {
	var capturedBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		capturedBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"hi"},"finish_reason":"stop"}]}`))
	}))
	defer upstream.Close()

	client := NewOpenRouterClient(OpenRouterExtras{Route: "fallback", Verbosity: "low"}, nil)
	provider := NewOpenAICompatibleProvider(upstream.URL, client)

	_, err := provider.Chat(context.Background(), "key", ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "hello"}},
		Params:   SamplingParams{Model: "m"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.Contains(capturedBody, `"route":"fallback"`) || !strings.Contains(capturedBody, `"verbosity":"low"`) {
		t.Fatalf("expected injected extras in body, got %s", capturedBody)
	}
}

func TestOpenRouterTransportRecoversContentFrom400(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"choices":[{"message":{"content":"partial"}}]}`))
	}))
	defer upstream.Close()

	client := NewOpenRouterClient(OpenRouterExtras{}, nil)
	provider := NewOpenAICompatibleProvider(upstream.URL, client)

	resp, err := provider.Chat(context.Background(), "key", ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "hello"}},
		Params:   SamplingParams{Model: "m"},
	})
	if err != nil {
		t.Fatalf("expected recovered 200, got error: %v", err)
	}
	if resp.Content != "partial" {
		t.Fatalf("got content %q, want partial", resp.Content)
	}
}

func TestOpenRouterTransportPassesThroughUnrecoverable400(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid request"}`))
	}))
	defer upstream.Close()

	client := NewOpenRouterClient(OpenRouterExtras{}, nil)
	provider := NewOpenAICompatibleProvider(upstream.URL, client)

	_, err := provider.Chat(context.Background(), "key", ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "hello"}},
		Params:   SamplingParams{Model: "m"},
	})
	if err == nil {
		t.Fatal("expected error for unrecoverable 400 body")
	}
}

func TestInjectReasoningFromStructuredDetails(t *testing.T) {
	got := injectReasoning("answer", "", []apiReasoningDetail{
		{Type: "reasoning.text", Text: "thinking..."},
		{Type: "reasoning.encrypted", Text: "opaque"},
	})
	want := "<reasoning>thinking...</reasoning>answer"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
