package queue

import (
	"context"
	"log/slog"
	"time"
)

// Promoter periodically moves delayed/dependency-gated jobs from the
// scheduled ZSET onto their live stream once they're due and their
// dependencies (spec §4.2 enqueue option) are satisfied.
type Promoter struct {
	client    *Client
	jobTypes  []string
	interval  time.Duration
	logger    *slog.Logger
}

// NewPromoter builds a Promoter scanning the given job types.
func NewPromoter(client *Client, jobTypes []string, interval time.Duration, logger *slog.Logger) *Promoter {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Promoter{client: client, jobTypes: jobTypes, interval: interval, logger: logger}
}

// Run blocks, promoting due jobs until ctx is cancelled.
func (p *Promoter) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, jobType := range p.jobTypes {
				n, err := p.client.PromoteScheduled(ctx, jobType)
				if err != nil {
					p.logger.Warn("promote scheduled jobs failed", "type", jobType, "error", err)
					continue
				}
				if n > 0 {
					p.logger.Debug("promoted scheduled jobs", "type", jobType, "count", n)
				}
			}
		}
	}
}
