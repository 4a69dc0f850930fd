package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/aceteam-ai/conduit/internal/pipeline"
	"github.com/aceteam-ai/conduit/internal/queue"
)

// StopSequenceRecorder records stage 10's inferred-stop-sequence signal
// for spec §6's "GET /admin/stop-sequences" aggregation. Declared locally
// (rather than importing internal/telemetry's concrete type) so tests
// don't need a live Redis instance to exercise Execute.
type StopSequenceRecorder interface {
	Record(ctx context.Context, modelID string) error
}

// LLMGenerationHandler adapts internal/pipeline.Generate to queue.Handler,
// implementing spec §4.2's worker-side "consume(type, handler, concurrency)"
// contract for the LLMGeneration job type.
type LLMGenerationHandler struct {
	Deps      pipeline.Dependencies
	Telemetry StopSequenceRecorder // optional; nil disables recording
}

var _ queue.Handler = (*LLMGenerationHandler)(nil)

// Execute decodes job.Payload, runs the twelve-stage pipeline, and reports
// the outcome. A *pipeline.GenerationError's disposition decides whether
// the queue should retry (transient) or fail the job outright (permanent);
// that classification is exposed via IsPermanent for Runner.PermanentClassifier.
func (h *LLMGenerationHandler) Execute(ctx context.Context, job *queue.Job) (*queue.Result, error) {
	payload, err := DecodeGenerationPayload(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("jobs: decode LLMGeneration payload: %w", err)
	}

	g := &pipeline.GenerationContext{
		Ctx:     ctx,
		Request: payload.toPipelineRequest(),
		JobID:   job.ID,
	}

	if err := pipeline.Generate(g, h.Deps); err != nil {
		return &queue.Result{Status: queue.ResultFailure, Err: err}, err
	}

	if g.StopSequenceInferred && h.Telemetry != nil {
		if err := h.Telemetry.Record(ctx, g.Config.EffectivePersonality.ModelID); err != nil {
			return nil, fmt.Errorf("jobs: record stop sequence telemetry: %w", err)
		}
	}

	return &queue.Result{
		Status: queue.ResultSuccess,
		Output: map[string]any{
			"reply":            g.FinalReply,
			"isDuplicate":      g.IsDuplicate,
			"warnings":         g.Warnings,
			"droppedHistory":   g.Budget.DroppedHistoryCount,
			"droppedMemories":  g.Budget.DroppedMemoryCount,
			"promptTokens":     g.Usage.PromptTokens,
			"completionTokens": g.Usage.CompletionTokens,
		},
	}, nil
}

// IsPermanent reports whether err (as returned by Execute) represents a
// permanent failure per spec §4.3's error-disposition table, suitable as
// queue.Runner's PermanentClassifier for the LLMGeneration job type.
func IsPermanent(err error) bool {
	var genErr *pipeline.GenerationError
	if errors.As(err, &genErr) {
		return genErr.Disposition == pipeline.Permanent
	}
	return false
}
