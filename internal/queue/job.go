// Package queue implements the durable typed job queue described in
// spec §4.2: Redis Streams consumer groups for persistence and fan-out,
// a Dead Letter Queue for exhausted retries, and a Pub/Sub completion-event
// bus so one job's completion can feed another's input (job chaining).
//
// The Source/Handler/Runner trio generalizes the teacher's
// internal/worker package (JobSource/JobHandler/Runner) from a single
// GPU-job Redis stream into the typed job-type catalogue below.
package queue

import "time"

// Job type tags (spec §4.2's "core path" catalogue).
const (
	TypeLLMGeneration     = "LLMGeneration"
	TypeAudioTranscription = "AudioTranscription"
	TypeImageDescription   = "ImageDescription"

	// Maintenance job types are catalogued for completeness but have no
	// handler body registered anywhere in this repo (spec §1/§9 excludes
	// them from the core).
	TypeCleanup        = "Cleanup"
	TypeMemoryBackfill = "MemoryBackfill"
)

// State is a Job's lifecycle position (spec §3, §4.2).
type State string

const (
	StateQueued    State = "queued"
	StateActive    State = "active"
	StateDelayed   State = "delayed"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job is a unit of work pulled from a Source and dispatched to a Handler.
type Job struct {
	ID          string
	Type        string
	Payload     map[string]any
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time

	// sourceQueue and messageID are source-internal bookkeeping used by
	// Ack/Nack; callers of Handler never need them.
	sourceQueue string
	messageID   string
}

// EnqueueOptions customizes Enqueue.
type EnqueueOptions struct {
	// JobID makes enqueue idempotent: re-enqueuing the same JobID returns
	// the existing job instead of creating a duplicate.
	JobID string

	// Priority influences dispatch order within a type (higher first);
	// Redis Streams has no native priority queue, so priority jobs are
	// written to a "<queue>:priority" stream consumed before the base
	// stream (see Client.publishToStream and Client.ReadJob).
	Priority int

	// Delay defers visibility of the job by the given duration.
	Delay time.Duration

	// Dependencies lists job ids that must reach StateCompleted before
	// this job becomes eligible for dispatch.
	Dependencies []string

	MaxAttempts int
}

// Result is the outcome of a Handler.Execute call.
type Result struct {
	Status   ResultStatus
	Output   map[string]any
	Err      error
	Duration time.Duration
}

// ResultStatus is the terminal or interim disposition of a job attempt.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailure ResultStatus = "failure"
	ResultRetry   ResultStatus = "retry"
)
