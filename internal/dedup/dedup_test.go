package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRDB(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestDeduplicatorReserveReturnsSameJobForConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	d := NewDeduplicator(newTestRDB(t), time.Second)

	jobID, wasExisting, err := d.Reserve(ctx, "fp-1", "job-a")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if wasExisting || jobID != "job-a" {
		t.Fatalf("first reservation: got %q existing=%v", jobID, wasExisting)
	}

	jobID2, wasExisting2, err := d.Reserve(ctx, "fp-1", "job-b")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !wasExisting2 || jobID2 != "job-a" {
		t.Fatalf("second reservation: got %q existing=%v, want job-a existing=true", jobID2, wasExisting2)
	}
}

func TestMessageLockAcquireReleaseRetry(t *testing.T) {
	ctx := context.Background()
	lock := NewMessageLock(newTestRDB(t), time.Minute)

	ok, err := lock.Acquire(ctx, "msg-1", "token-1")
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, got ok=%v err=%v", ok, err)
	}

	ok, err = lock.Acquire(ctx, "msg-1", "token-2")
	if err != nil || ok {
		t.Fatalf("expected second acquire to fail while held, got ok=%v err=%v", ok, err)
	}

	if err := lock.Release(ctx, "msg-1", "token-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}

	ok, err = lock.Acquire(ctx, "msg-1", "token-3")
	if err != nil || !ok {
		t.Fatalf("expected retry to acquire after release, got ok=%v err=%v", ok, err)
	}
}

func TestLocalLimiterAllowsWithinBurst(t *testing.T) {
	l := NewLocalLimiter(1, 2, time.Minute)
	defer l.Stop()

	if !l.Allow("k") || !l.Allow("k") {
		t.Fatal("expected first two calls within burst to be allowed")
	}
	if l.Allow("k") {
		t.Fatal("expected third immediate call to be throttled")
	}
}
