package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupMiniredis(t *testing.T) *Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	client, err := NewClient(context.Background(), ClientConfig{
		URL:          "redis://" + mr.Addr(),
		BlockTimeout: 100 * time.Millisecond,
		MaxAttempts:  2,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestEnqueueAndReadJob(t *testing.T) {
	ctx := context.Background()
	client := setupMiniredis(t)

	if err := client.EnsureConsumerGroup(ctx, TypeLLMGeneration); err != nil {
		t.Fatalf("EnsureConsumerGroup: %v", err)
	}

	jobID, err := client.Enqueue(ctx, TypeLLMGeneration, map[string]any{"text": "hi"}, EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job, err := client.ReadJob(ctx, TypeLLMGeneration)
	if err != nil {
		t.Fatalf("ReadJob: %v", err)
	}
	if job == nil {
		t.Fatal("expected a job, got nil")
	}
	if job.ID != jobID {
		t.Fatalf("got job id %q, want %q", job.ID, jobID)
	}
	if job.Payload["text"] != "hi" {
		t.Fatalf("got payload %v", job.Payload)
	}
}

func TestEnqueueIdempotentJobID(t *testing.T) {
	ctx := context.Background()
	client := setupMiniredis(t)
	client.EnsureConsumerGroup(ctx, TypeLLMGeneration)

	first, err := client.Enqueue(ctx, TypeLLMGeneration, map[string]any{"a": 1}, EnqueueOptions{JobID: "fixed-id"})
	if err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	second, err := client.Enqueue(ctx, TypeLLMGeneration, map[string]any{"a": 2}, EnqueueOptions{JobID: "fixed-id"})
	if err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}
	if first != second || first != "fixed-id" {
		t.Fatalf("expected idempotent id reuse, got %q then %q", first, second)
	}
}

func TestAckTransitionsToCompleted(t *testing.T) {
	ctx := context.Background()
	client := setupMiniredis(t)
	client.EnsureConsumerGroup(ctx, TypeLLMGeneration)

	client.Enqueue(ctx, TypeLLMGeneration, map[string]any{}, EnqueueOptions{})
	job, _ := client.ReadJob(ctx, TypeLLMGeneration)

	if err := client.Ack(ctx, job, map[string]any{"reply": "ok"}); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	fields, err := client.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if State(fields["state"]) != StateCompleted {
		t.Fatalf("got state %q, want completed", fields["state"])
	}
}

func TestDependenciesGateScheduledPromotion(t *testing.T) {
	ctx := context.Background()
	client := setupMiniredis(t)
	client.EnsureConsumerGroup(ctx, TypeLLMGeneration)

	depID, _ := client.Enqueue(ctx, TypeLLMGeneration, map[string]any{}, EnqueueOptions{})
	_, err := client.Enqueue(ctx, TypeLLMGeneration, map[string]any{"x": 1}, EnqueueOptions{
		Dependencies: []string{depID},
	})
	if err != nil {
		t.Fatalf("Enqueue dependent: %v", err)
	}

	// Dependency not yet completed: only the dependency job itself is ready.
	n, err := client.PromoteScheduled(ctx, TypeLLMGeneration)
	if err != nil {
		t.Fatalf("PromoteScheduled: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 promoted before dependency completes, got %d", n)
	}

	depJob, _ := client.ReadJob(ctx, TypeLLMGeneration)
	client.Ack(ctx, depJob, nil)

	n, err = client.PromoteScheduled(ctx, TypeLLMGeneration)
	if err != nil {
		t.Fatalf("PromoteScheduled after dep completion: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 promoted after dependency completes, got %d", n)
	}
}

func TestEventsWaitUntilFinishedAlreadyDone(t *testing.T) {
	ctx := context.Background()
	client := setupMiniredis(t)
	client.EnsureConsumerGroup(ctx, TypeLLMGeneration)

	client.Enqueue(ctx, TypeLLMGeneration, map[string]any{}, EnqueueOptions{JobID: "job-1"})
	job, _ := client.ReadJob(ctx, TypeLLMGeneration)
	client.Ack(ctx, job, map[string]any{"ok": true})

	events := NewEvents(client)
	ev, err := events.WaitUntilFinished(ctx, "job-1", time.Second)
	if err != nil {
		t.Fatalf("WaitUntilFinished: %v", err)
	}
	if ev.Type != "completed" {
		t.Fatalf("got event type %q, want completed", ev.Type)
	}
}
