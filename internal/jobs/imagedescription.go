package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aceteam-ai/conduit/internal/llm"
	"github.com/aceteam-ai/conduit/internal/queue"
)

// ImageDescriptionPayload is the wire shape of an ImageDescription job,
// chained off an attachment staged by internal/blob before a generation
// job that references an image needs a textual description of it.
type ImageDescriptionPayload struct {
	ImageURL string `json:"imageUrl"`
	Model    string `json:"model"`
	Prompt   string `json:"prompt,omitempty"`
}

const defaultImageDescriptionPrompt = "Describe this image in one or two sentences."

type visionContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *visionImageRef `json:"image_url,omitempty"`
}

type visionImageRef struct {
	URL string `json:"url"`
}

type visionChatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string              `json:"role"`
		Content []visionContentPart `json:"content"`
	} `json:"messages"`
	MaxTokens int `json:"max_tokens,omitempty"`
}

type visionChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ImageDescriptionHandler posts an image URL to an upstream vision-capable
// chat-completions endpoint, using OpenAI's multi-part content convention
// (an array of text/image_url parts) since a plain llm.ChatMessage has no
// room for an image part. Deliberately standalone rather than routed
// through internal/llm.OpenAICompatibleProvider: that provider's ChatRequest
// is text-only by design (stage 8 never sends images, only text prompts),
// and widening it for this one job type would leak vision concerns into
// every other caller of Chat.
type ImageDescriptionHandler struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
}

var _ queue.Handler = (*ImageDescriptionHandler)(nil)

func NewImageDescriptionHandler(endpoint, apiKey string, client *http.Client) *ImageDescriptionHandler {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &ImageDescriptionHandler{Endpoint: endpoint, APIKey: apiKey, HTTPClient: client}
}

func (h *ImageDescriptionHandler) Execute(ctx context.Context, job *queue.Job) (*queue.Result, error) {
	var payload ImageDescriptionPayload
	buf, err := json.Marshal(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal image description payload: %w", err)
	}
	if err := json.Unmarshal(buf, &payload); err != nil {
		return nil, fmt.Errorf("jobs: unmarshal image description payload: %w", err)
	}
	if payload.ImageURL == "" {
		err := fmt.Errorf("jobs: image description payload missing imageUrl")
		return &queue.Result{Status: queue.ResultFailure, Err: err}, err
	}

	prompt := payload.Prompt
	if prompt == "" {
		prompt = defaultImageDescriptionPrompt
	}

	req := visionChatRequest{Model: payload.Model, MaxTokens: 300}
	req.Messages = []struct {
		Role    string              `json:"role"`
		Content []visionContentPart `json:"content"`
	}{
		{
			Role: "user",
			Content: []visionContentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &visionImageRef{URL: payload.ImageURL}},
			},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal vision request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("jobs: build vision request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	resp, err := h.HTTPClient.Do(httpReq)
	if err != nil {
		return &queue.Result{Status: queue.ResultRetry, Err: err}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jobs: read vision response: %w", err)
	}
	if resp.StatusCode >= 400 {
		statusErr := &llm.HTTPStatusError{StatusCode: resp.StatusCode, Body: raw}
		return &queue.Result{Status: queue.ResultFailure, Err: statusErr}, statusErr
	}

	var parsed visionChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("jobs: decode vision response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return &queue.Result{Status: queue.ResultFailure, Err: llm.ErrEmptyResponse}, llm.ErrEmptyResponse
	}

	return &queue.Result{
		Status: queue.ResultSuccess,
		Output: map[string]any{
			"description": parsed.Choices[0].Message.Content,
		},
	}, nil
}
