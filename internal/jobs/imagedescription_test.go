package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aceteam-ai/conduit/internal/queue"
)

func TestImageDescriptionHandlerSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req visionChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
			t.Fatalf("expected one message with two content parts, got %+v", req.Messages)
		}
		if req.Messages[0].Content[1].ImageURL == nil || req.Messages[0].Content[1].ImageURL.URL == "" {
			t.Error("expected image_url part carrying the attachment URL")
		}
		json.NewEncoder(w).Encode(visionChatResponse{Choices: []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}{{Message: struct {
			Content string `json:"content"`
		}{Content: "a cat sitting on a windowsill"}}}})
	}))
	defer srv.Close()

	h := NewImageDescriptionHandler(srv.URL, "secret", nil)
	job := &queue.Job{ID: "job-1", Type: queue.TypeImageDescription, Payload: map[string]any{
		"imageUrl": "https://gateway.example/temp-attachments/r1/0-cat.png",
		"model":    "vision-model",
	}}

	result, err := h.Execute(context.Background(), job)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Status != queue.ResultSuccess {
		t.Fatalf("status = %v, want success", result.Status)
	}
	if desc, _ := result.Output["description"].(string); desc == "" {
		t.Error("expected non-empty description")
	}
}

func TestImageDescriptionHandlerMissingURL(t *testing.T) {
	h := NewImageDescriptionHandler("http://unused", "", nil)
	job := &queue.Job{ID: "job-2", Type: queue.TypeImageDescription, Payload: map[string]any{}}

	result, err := h.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected error for missing imageUrl")
	}
	if result.Status != queue.ResultFailure {
		t.Fatalf("status = %v, want failure", result.Status)
	}
}

func TestImageDescriptionHandlerEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(visionChatResponse{})
	}))
	defer srv.Close()

	h := NewImageDescriptionHandler(srv.URL, "secret", nil)
	job := &queue.Job{ID: "job-3", Type: queue.TypeImageDescription, Payload: map[string]any{
		"imageUrl": "https://gateway.example/temp-attachments/r1/0-cat.png",
	}}

	result, err := h.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
	if result.Status != queue.ResultFailure {
		t.Fatalf("status = %v, want failure", result.Status)
	}
}
