package queue

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Runner drives a Source through a Handler, implementing the
// "consume(type, handler, concurrency)" worker-side contract of spec §4.2.
// Grounded on the teacher's internal/worker.Runner, stripped of GPU-slot
// tracking and usage-ledger recording (neither has a SPEC_FULL component).
type Runner struct {
	source      Source
	handler     Handler
	concurrency int
	logger      *slog.Logger

	// PermanentClassifier decides whether a Handler error should fail the
	// job outright (permanent) or let the queue retry it (transient). When
	// nil, every error is treated as retryable.
	PermanentClassifier func(error) bool
}

// NewRunner builds a Runner. concurrency <= 0 means sequential processing.
func NewRunner(source Source, handler Handler, concurrency int, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{source: source, handler: handler, concurrency: concurrency, logger: logger}
}

// Run blocks, pulling and dispatching jobs until ctx is cancelled or a
// SIGINT/SIGTERM is received. In-flight jobs are allowed to finish before
// Run returns.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	r.logger.Info("worker starting", "concurrency", r.concurrency)

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup

	backoff := time.Second
	const maxBackoff = 30 * time.Second

runLoop:
	for {
		select {
		case sig := <-sigs:
			r.logger.Info("received signal, shutting down", "signal", sig.String())
			cancel()
			break runLoop
		case <-ctx.Done():
			break runLoop
		default:
		}

		job, err := r.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break runLoop
			}
			r.logger.Warn("fetch error, backing off", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				break runLoop
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = time.Second
		if job == nil {
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(j *Job) {
			defer wg.Done()
			defer func() { <-sem }()
			r.processJob(ctx, j)
		}(job)
	}

	wg.Wait()
	r.logger.Info("worker shutdown complete")
	return nil
}

func (r *Runner) processJob(ctx context.Context, job *Job) {
	start := time.Now()
	r.logger.Info("job received", "jobId", job.ID, "type", job.Type, "attempt", job.Attempts)

	result, err := r.handler.Execute(ctx, job)
	duration := time.Since(start)

	if err != nil || (result != nil && result.Status == ResultFailure) {
		execErr := err
		if execErr == nil && result != nil {
			execErr = result.Err
		}
		if execErr == nil {
			execErr = errors.New("handler reported failure with no error detail")
		}
		permanent := r.PermanentClassifier != nil && r.PermanentClassifier(execErr)
		r.logger.Error("job failed", "jobId", job.ID, "duration", duration, "error", execErr, "permanent", permanent)
		if nackErr := r.source.Nack(ctx, job, execErr, permanent); nackErr != nil {
			r.logger.Error("nack failed", "jobId", job.ID, "error", nackErr)
		}
		return
	}

	if result != nil && result.Status == ResultRetry {
		r.logger.Warn("job requested retry", "jobId", job.ID, "duration", duration)
		r.source.Nack(ctx, job, result.Err, false)
		return
	}

	var output map[string]any
	if result != nil {
		output = result.Output
	}
	r.logger.Info("job completed", "jobId", job.ID, "duration", duration)
	if ackErr := r.source.Ack(ctx, job, output); ackErr != nil {
		r.logger.Error("ack failed", "jobId", job.ID, "error", ackErr)
	}
}
