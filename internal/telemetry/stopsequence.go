// Package telemetry implements the shared Redis counters and their
// aggregation backing spec §6's "GET /admin/stop-sequences" endpoint:
// each worker increments a shared counter whenever stage 10 infers a
// stop-sequence termination (internal/pipeline.GenerationContext.
// StopSequenceInferred), and the admin endpoint reads the aggregate back.
// Grounded on internal/cache's go-redis idiom (the same *redis.Client the
// rest of the system shares) rather than a separate metrics library, since
// spec §1 excludes telemetry/metrics emission as a non-goal — this is a
// minimal diagnostic counter, not a metrics pipeline.
package telemetry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const stopSequenceKey = "telemetry:v1:stop-sequences"

// StopSequenceRecorder increments and reads the per-model stop-sequence
// inference counters.
type StopSequenceRecorder struct {
	rdb *redis.Client
}

// NewStopSequenceRecorder wraps a shared Redis client.
func NewStopSequenceRecorder(rdb *redis.Client) *StopSequenceRecorder {
	return &StopSequenceRecorder{rdb: rdb}
}

// Record increments modelID's counter. Called by internal/jobs'
// LLMGenerationHandler after a generation completes with
// StopSequenceInferred set.
func (r *StopSequenceRecorder) Record(ctx context.Context, modelID string) error {
	if modelID == "" {
		modelID = "unknown"
	}
	if err := r.rdb.HIncrBy(ctx, stopSequenceKey, modelID, 1).Err(); err != nil {
		return fmt.Errorf("telemetry: record stop sequence: %w", err)
	}
	return nil
}

// Aggregate returns the current per-model counts, for the
// GET /admin/stop-sequences handler.
func (r *StopSequenceRecorder) Aggregate(ctx context.Context) (map[string]int64, error) {
	raw, err := r.rdb.HGetAll(ctx, stopSequenceKey).Result()
	if err != nil {
		return nil, fmt.Errorf("telemetry: aggregate stop sequences: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			out[k] = n
		}
	}
	return out, nil
}

// Reset clears all counters. Exposed for housekeeping jobs and tests; not
// wired to any HTTP route (spec's admin surface only reads).
func (r *StopSequenceRecorder) Reset(ctx context.Context) error {
	if err := r.rdb.Del(ctx, stopSequenceKey).Err(); err != nil {
		return fmt.Errorf("telemetry: reset stop sequences: %w", err)
	}
	return nil
}
