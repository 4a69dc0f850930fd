package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAICompatibleProvider calls any Chat-Completions-compatible HTTP
// endpoint. Grounded on the teacher's internal/jobs/llm_inference.go
// (HTTP POST to an OpenAI-compatible endpoint, JSON request/response,
// streaming-vs-non-streaming dispatch), generalized from a local vLLM URL
// to an arbitrary upstream base URL and bearer credential.
type OpenAICompatibleProvider struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewOpenAICompatibleProvider builds a provider against baseURL (e.g.
// "https://openrouter.ai/api/v1" or "https://api.openai.com/v1") using
// client for transport (so OpenRouter's RoundTripper wrapper can be
// installed by the caller).
func NewOpenAICompatibleProvider(baseURL string, client *http.Client) *OpenAICompatibleProvider {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &OpenAICompatibleProvider{BaseURL: baseURL, HTTPClient: client}
}

type apiChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type apiChatResponse struct {
	Choices []struct {
		Message struct {
			Content          string                `json:"content"`
			Reasoning        string                `json:"reasoning,omitempty"`
			ReasoningDetails []apiReasoningDetail   `json:"reasoning_details,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type apiReasoningDetail struct {
	Type string `json:"type"` // "reasoning.text" | "reasoning.summary" | "reasoning.encrypted"
	Text string `json:"text"`
}

// Chat issues the request and normalizes the response. Hidden reasoning
// recovery (stage 8b.i) happens here so every caller — not just the
// OpenRouter RoundTripper — benefits from it when a provider returns
// structured reasoning alongside content.
func (p *OpenAICompatibleProvider) Chat(ctx context.Context, apiKey string, req ChatRequest) (*ChatResponse, error) {
	body := apiChatRequest{
		Model:       req.Params.Model,
		Messages:    req.Messages,
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
		MaxTokens:   req.Params.MaxTokens,
		Stop:        req.Params.StopSequences,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := p.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: raw}
	}

	var parsed apiChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("llm: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	content := injectReasoning(parsed.Choices[0].Message.Content, parsed.Choices[0].Message.Reasoning, parsed.Choices[0].Message.ReasoningDetails)

	return &ChatResponse{
		Content:      content,
		FinishReason: parsed.Choices[0].FinishReason,
		StatusCode:   resp.StatusCode,
		Usage: Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}

// injectReasoning wraps hidden reasoning text in a <reasoning> tag and
// prepends it to content, per spec §4.3 stage 8b.i. "reasoning.encrypted"
// detail entries are skipped (their text is opaque to us); "reasoning.text"
// and "reasoning.summary" entries are concatenated in order.
func injectReasoning(content, reasoning string, details []apiReasoningDetail) string {
	var reasoningText string
	if reasoning != "" {
		reasoningText = reasoning
	} else {
		for _, d := range details {
			switch d.Type {
			case "reasoning.text", "reasoning.summary":
				reasoningText += d.Text
			case "reasoning.encrypted":
				// opaque to us, skipped per spec.
			}
		}
	}
	if reasoningText == "" {
		return content
	}
	return "<reasoning>" + reasoningText + "</reasoning>" + content
}

// ErrEmptyResponse is returned when a provider responds 2xx with no
// choices, mapping to the "empty-response" error category.
var ErrEmptyResponse = fmt.Errorf("llm: provider returned no choices")

// HTTPStatusError carries a non-2xx HTTP status and raw body so callers
// (internal/pipeline's error classifier) can apply status-code-first
// classification per spec §4.3's failure-semantics paragraph.
type HTTPStatusError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("llm: upstream returned HTTP %d: %s", e.StatusCode, string(e.Body))
}
