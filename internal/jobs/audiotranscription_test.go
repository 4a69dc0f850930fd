package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aceteam-ai/conduit/internal/llm"
	"github.com/aceteam-ai/conduit/internal/queue"
)

func TestAudioTranscriptionHandlerSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req transcriptionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.URL == "" {
			t.Error("expected non-empty URL in upstream request")
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization header = %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(transcriptionResponse{Text: "hello world", Language: "en"})
	}))
	defer srv.Close()

	h := NewAudioTranscriptionHandler(srv.URL, "secret", nil)
	job := &queue.Job{ID: "job-1", Type: queue.TypeAudioTranscription, Payload: map[string]any{
		"audioUrl": "https://gateway.example/temp-attachments/r1/0-clip.ogg",
	}}

	result, err := h.Execute(context.Background(), job)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Status != queue.ResultSuccess {
		t.Fatalf("status = %v, want success", result.Status)
	}
	if text, _ := result.Output["text"].(string); text != "hello world" {
		t.Errorf("text = %q, want %q", text, "hello world")
	}
}

func TestAudioTranscriptionHandlerMissingURL(t *testing.T) {
	h := NewAudioTranscriptionHandler("http://unused", "", nil)
	job := &queue.Job{ID: "job-2", Type: queue.TypeAudioTranscription, Payload: map[string]any{}}

	result, err := h.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected error for missing audioUrl")
	}
	if result.Status != queue.ResultFailure {
		t.Fatalf("status = %v, want failure", result.Status)
	}
}

func TestAudioTranscriptionHandlerUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"upstream down"}`))
	}))
	defer srv.Close()

	h := NewAudioTranscriptionHandler(srv.URL, "secret", nil)
	job := &queue.Job{ID: "job-3", Type: queue.TypeAudioTranscription, Payload: map[string]any{
		"audioUrl": "https://gateway.example/temp-attachments/r1/0-clip.ogg",
	}}

	result, err := h.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected error for 502 upstream response")
	}
	if result.Status != queue.ResultFailure {
		t.Fatalf("status = %v, want failure", result.Status)
	}
	var statusErr *llm.HTTPStatusError
	if !asHTTPStatusError(err, &statusErr) {
		t.Fatalf("expected *llm.HTTPStatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", statusErr.StatusCode)
	}
}

func asHTTPStatusError(err error, target **llm.HTTPStatusError) bool {
	if e, ok := err.(*llm.HTTPStatusError); ok {
		*target = e
		return true
	}
	return false
}
