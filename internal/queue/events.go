package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event is a typed completion notification delivered over the Pub/Sub
// bus, the Go-native expression of spec §4.2's "completion events
// observable by other jobs" and DESIGN NOTES' "event-emitter (queue-events)
// API... expressible as channels/streams of typed completion events".
type Event struct {
	Type      string         `json:"type"` // "completed" | "failed"
	JobID     string         `json:"jobId"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Events exposes the waitable-completion half of the queue contract.
type Events struct {
	client *Client
}

// NewEvents wraps a Client for completion-event consumption.
func NewEvents(client *Client) *Events { return &Events{client: client} }

// WaitUntilFinished blocks until jobID reaches StateCompleted or
// StateFailed, or timeout elapses, returning the terminal event.
//
// It first checks the persisted job status (the job may have already
// finished before the caller subscribed), then falls back to the Pub/Sub
// channel, matching the teacher's pattern of treating Redis as the source
// of truth and Pub/Sub as a low-latency nudge rather than the only signal.
func (e *Events) WaitUntilFinished(ctx context.Context, jobID string, timeout time.Duration) (*Event, error) {
	if ev, ok, err := e.checkStatus(ctx, jobID); err != nil {
		return nil, err
	} else if ok {
		return ev, nil
	}

	sub := e.client.Subscribe(ctx, jobID)
	defer sub.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Re-check after subscribing, closing the race between the initial
	// status check and the subscription becoming active.
	if ev, ok, err := e.checkStatus(ctx, jobID); err != nil {
		return nil, err
	} else if ok {
		return ev, nil
	}

	ch := sub.Channel()
	select {
	case msg, open := <-ch:
		if !open {
			return nil, fmt.Errorf("queue: event channel closed for job %s", jobID)
		}
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			return nil, fmt.Errorf("queue: decode event: %w", err)
		}
		return &ev, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("queue: wait for job %s: %w", jobID, ctx.Err())
	}
}

func (e *Events) checkStatus(ctx context.Context, jobID string) (*Event, bool, error) {
	fields, err := e.client.GetJob(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	if fields == nil {
		return nil, false, nil
	}
	state := State(fields["state"])
	if state != StateCompleted && state != StateFailed {
		return nil, false, nil
	}
	data := map[string]any{}
	for k, v := range fields {
		if k == "state" || k == "updated_at" {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			data[k] = decoded
		} else {
			data[k] = v
		}
	}
	return &Event{
		Type:  map[State]string{StateCompleted: "completed", StateFailed: "failed"}[state],
		JobID: jobID,
		Data:  data,
	}, true, nil
}

// OnCompleted subscribes a callback that fires once when jobID completes or
// fails, running the wait in its own goroutine. The returned cancel func
// stops waiting early without invoking cb.
func (e *Events) OnCompleted(ctx context.Context, jobID string, timeout time.Duration, cb func(*Event, error)) (cancel func()) {
	ctx, cancel = context.WithCancel(ctx)
	go func() {
		ev, err := e.WaitUntilFinished(ctx, jobID, timeout)
		if ctx.Err() != nil {
			return
		}
		cb(ev, err)
	}()
	return cancel
}
