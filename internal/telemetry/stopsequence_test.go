package telemetry

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRecorder(t *testing.T) *StopSequenceRecorder {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStopSequenceRecorder(rdb)
}

func TestRecordAndAggregate(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := r.Record(ctx, "gpt-x"); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := r.Record(ctx, "gpt-y"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	counts, err := r.Aggregate(ctx)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if counts["gpt-x"] != 3 {
		t.Errorf("gpt-x count = %d, want 3", counts["gpt-x"])
	}
	if counts["gpt-y"] != 1 {
		t.Errorf("gpt-y count = %d, want 1", counts["gpt-y"])
	}
}

func TestRecordEmptyModelIDFallsBackToUnknown(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()
	if err := r.Record(ctx, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	counts, err := r.Aggregate(ctx)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if counts["unknown"] != 1 {
		t.Errorf("unknown count = %d, want 1", counts["unknown"])
	}
}

func TestReset(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()
	r.Record(ctx, "gpt-x")
	if err := r.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	counts, err := r.Aggregate(ctx)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(counts) != 0 {
		t.Errorf("expected empty counts after reset, got %v", counts)
	}
}
