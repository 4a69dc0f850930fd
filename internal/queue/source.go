package queue

import "context"

// Source fetches jobs of a single type from the durable queue. It is the
// worker-facing half of the contract; Client.Enqueue is the ingress-facing
// half. Kept as an interface (grounded on the teacher's JobSource) so
// tests can substitute a fake without a live Redis instance.
type Source interface {
	// JobType returns the type this source consumes.
	JobType() string

	// Next blocks until a job is available or ctx is cancelled. A nil job
	// with a nil error means "no job within the block window, try again".
	Next(ctx context.Context) (*Job, error)

	// Ack acknowledges successful completion.
	Ack(ctx context.Context, job *Job, result map[string]any) error

	// Nack reports a failed attempt. permanent=true fails the job outright
	// (used for validation-class errors that retrying cannot fix);
	// permanent=false lets the queue's retry/backoff policy decide.
	Nack(ctx context.Context, job *Job, err error, permanent bool) error
}

// RedisSource is the Client-backed Source implementation.
type RedisSource struct {
	client  *Client
	jobType string
}

// NewRedisSource binds client to a single job type.
func NewRedisSource(client *Client, jobType string) *RedisSource {
	return &RedisSource{client: client, jobType: jobType}
}

// Connect ensures the consumer group exists for this source's job type.
func (s *RedisSource) Connect(ctx context.Context) error {
	return s.client.EnsureConsumerGroup(ctx, s.jobType)
}

func (s *RedisSource) JobType() string { return s.jobType }

func (s *RedisSource) Next(ctx context.Context) (*Job, error) {
	return s.client.ReadJob(ctx, s.jobType)
}

func (s *RedisSource) Ack(ctx context.Context, job *Job, result map[string]any) error {
	return s.client.Ack(ctx, job, result)
}

func (s *RedisSource) Nack(ctx context.Context, job *Job, err error, permanent bool) error {
	return s.client.Nack(ctx, job, err, permanent)
}

var _ Source = (*RedisSource)(nil)
