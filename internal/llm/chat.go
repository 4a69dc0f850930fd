// Package llm implements the outbound Chat-Completions-style call of
// spec §4.3 stage 8, including the OpenRouter custom-fetch wrapper that
// injects provider extras into the request and recovers reasoning content
// and 400-with-valid-body responses on the way back.
package llm

import "context"

// ChatMessage is one turn in a Chat-Completions-style request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SamplingParams carries the per-request generation knobs resolved by
// internal/pipeline stage 2/3 (config + auth resolution).
type SamplingParams struct {
	Model         string
	Temperature   float64
	TopP          float64
	MaxTokens     int
	StopSequences []string
	Reasoning     ReasoningOptions
}

// ReasoningOptions mirrors models.ReasoningOptions without importing the
// models package, keeping llm provider-facing and storage-agnostic.
type ReasoningOptions struct {
	Enabled bool
	Effort  string
}

// ChatRequest is the normalized request shape passed to a Provider.
type ChatRequest struct {
	Messages []ChatMessage
	Params   SamplingParams
}

// Usage reports token accounting, when the provider returns it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse is the normalized response shape returned by a Provider,
// after any provider-specific interception (e.g. OpenRouter's reasoning
// recovery) has already run.
type ChatResponse struct {
	Content      string
	FinishReason string // "stop" | "length" | "content_filter" | ...
	Usage        Usage
	StatusCode   int
}

// Provider issues a Chat-Completions-style call against an upstream LLM.
type Provider interface {
	// Chat sends req and returns the normalized response. ctx carries the
	// cancellation/timeout signal threaded from the HTTP request that
	// triggered generation (spec §5); an aborted ctx must abort the
	// in-flight HTTP call.
	Chat(ctx context.Context, apiKey string, req ChatRequest) (*ChatResponse, error)
}
