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

// AudioTranscriptionPayload is the wire shape of an AudioTranscription job,
// submitted via POST /ai/transcribe. The attachment is already staged under
// internal/blob's gateway URL by the time this job runs, so the handler
// only ever deals with a fetchable URL, never raw bytes.
type AudioTranscriptionPayload struct {
	AudioURL string `json:"audioUrl"`
	Language string `json:"language,omitempty"`
}

type transcriptionRequest struct {
	URL      string `json:"url"`
	Language string `json:"language,omitempty"`
}

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// AudioTranscriptionHandler posts a staged attachment URL to an upstream
// Whisper-compatible transcription endpoint. Conduit itself never runs a
// local inference backend (the teacher's vLLM/Ollama/llama.cpp dispatch has
// no home here) — this mirrors internal/llm's OpenAICompatibleProvider
// HTTP idiom instead: JSON request/response, bearer credential, non-2xx
// wrapped as *llm.HTTPStatusError so the same error classifier in
// internal/pipeline applies to transcription failures surfaced through a
// job chain.
type AudioTranscriptionHandler struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
}

var _ queue.Handler = (*AudioTranscriptionHandler)(nil)

func NewAudioTranscriptionHandler(endpoint, apiKey string, client *http.Client) *AudioTranscriptionHandler {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &AudioTranscriptionHandler{Endpoint: endpoint, APIKey: apiKey, HTTPClient: client}
}

func (h *AudioTranscriptionHandler) Execute(ctx context.Context, job *queue.Job) (*queue.Result, error) {
	var payload AudioTranscriptionPayload
	buf, err := json.Marshal(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal transcription payload: %w", err)
	}
	if err := json.Unmarshal(buf, &payload); err != nil {
		return nil, fmt.Errorf("jobs: unmarshal transcription payload: %w", err)
	}
	if payload.AudioURL == "" {
		return &queue.Result{Status: queue.ResultFailure, Err: fmt.Errorf("jobs: transcription payload missing audioUrl")}, fmt.Errorf("jobs: transcription payload missing audioUrl")
	}

	body, err := json.Marshal(transcriptionRequest{URL: payload.AudioURL, Language: payload.Language})
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal transcription request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("jobs: build transcription request: %w", err)
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
		return nil, fmt.Errorf("jobs: read transcription response: %w", err)
	}
	if resp.StatusCode >= 400 {
		statusErr := &llm.HTTPStatusError{StatusCode: resp.StatusCode, Body: raw}
		return &queue.Result{Status: queue.ResultFailure, Err: statusErr}, statusErr
	}

	var parsed transcriptionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("jobs: decode transcription response: %w", err)
	}

	return &queue.Result{
		Status: queue.ResultSuccess,
		Output: map[string]any{
			"text":     parsed.Text,
			"language": parsed.Language,
			"duration": parsed.Duration,
		},
	}, nil
}
