package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis Streams + Pub/Sub operations backing the queue.
// It is grounded on the teacher's internal/redis.Client, generalized from a
// single GPU-job stream to the typed job catalogue in job.go.
type Client struct {
	rdb           *redis.Client
	workerID      string
	consumerGroup string
	blockTimeout  time.Duration
	defaultMaxAttempts int
}

// ClientConfig configures a Client.
type ClientConfig struct {
	URL           string
	Password      string
	ConsumerGroup string
	BlockTimeout  time.Duration
	MaxAttempts   int
}

// NewClient dials Redis and returns a ready Client.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("queue: parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	group := cfg.ConsumerGroup
	if group == "" {
		group = "conduit-workers"
	}
	block := cfg.BlockTimeout
	if block == 0 {
		block = 5 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("queue: connect redis: %w", err)
	}

	return &Client{
		rdb:                rdb,
		workerID:           fmt.Sprintf("conduit-%s", uuid.NewString()[:8]),
		consumerGroup:      group,
		blockTimeout:       block,
		defaultMaxAttempts: maxAttempts,
	}, nil
}

func streamName(jobType string) string {
	return "jobs:v1:" + jobType
}

func dlqName(stream string) string {
	if strings.HasPrefix(stream, "jobs:v1:") {
		return "dlq:v1:" + strings.TrimPrefix(stream, "jobs:v1:")
	}
	parts := strings.Split(stream, ":")
	return "dlq:v1:" + parts[len(parts)-1]
}

func scheduledKey(jobType string) string {
	return "scheduled:v1:" + jobType
}

func statusKey(jobID string) string {
	return "job:v1:" + jobID + ":status"
}

func eventsChannel(jobID string) string {
	return "events:v1:" + jobID
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error { return c.rdb.Close() }

// WorkerID identifies this process among consumers in the group.
func (c *Client) WorkerID() string { return c.workerID }

// EnsureConsumerGroup creates the consumer group on jobType's base and
// priority streams if absent; ReadJob reads both.
func (c *Client) EnsureConsumerGroup(ctx context.Context, jobType string) error {
	for _, stream := range []string{streamName(jobType), streamName(jobType) + ":priority"} {
		err := c.rdb.XGroupCreateMkStream(ctx, stream, c.consumerGroup, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("queue: create consumer group for %s: %w", stream, err)
		}
	}
	return nil
}

// Enqueue persists a new job, honoring idempotent JobID, Delay and
// Dependencies. It returns the job id (either freshly created, or the
// pre-existing one when JobID names an already-enqueued job).
func (c *Client) Enqueue(ctx context.Context, jobType string, payload map[string]any, opts EnqueueOptions) (string, error) {
	jobID := opts.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	} else {
		// Idempotent create: if a status row already exists, return it.
		exists, err := c.rdb.Exists(ctx, statusKey(jobID)).Result()
		if err != nil {
			return "", fmt.Errorf("queue: check existing job: %w", err)
		}
		if exists == 1 {
			return jobID, nil
		}
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = c.defaultMaxAttempts
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("queue: marshal payload: %w", err)
	}

	if err := c.setStatus(ctx, jobID, StateQueued, nil); err != nil {
		return "", err
	}

	readyAt := time.Now()
	if opts.Delay > 0 {
		readyAt = readyAt.Add(opts.Delay)
	}

	needsScheduling := opts.Delay > 0 || len(opts.Dependencies) > 0
	if needsScheduling {
		sched := scheduledJob{
			JobID:        jobID,
			Type:         jobType,
			Payload:      payload,
			MaxAttempts:  maxAttempts,
			Priority:     opts.Priority,
			Dependencies: opts.Dependencies,
		}
		schedJSON, err := json.Marshal(sched)
		if err != nil {
			return "", fmt.Errorf("queue: marshal scheduled job: %w", err)
		}
		err = c.rdb.ZAdd(ctx, scheduledKey(jobType), redis.Z{
			Score:  float64(readyAt.UnixMilli()),
			Member: schedJSON,
		}).Err()
		if err != nil {
			return "", fmt.Errorf("queue: schedule job: %w", err)
		}
		return jobID, nil
	}

	return jobID, c.publishToStream(ctx, jobType, jobID, payloadJSON, opts.Priority)
}

type scheduledJob struct {
	JobID        string         `json:"jobId"`
	Type         string         `json:"type"`
	Payload      map[string]any `json:"payload"`
	MaxAttempts  int            `json:"maxAttempts"`
	Priority     int            `json:"priority"`
	Dependencies []string       `json:"dependencies,omitempty"`
}

func (c *Client) publishToStream(ctx context.Context, jobType, jobID string, payloadJSON []byte, priority int) error {
	stream := streamName(jobType)
	if priority > 0 {
		stream += ":priority"
	}
	return c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"jobId":   jobID,
			"type":    jobType,
			"payload": string(payloadJSON),
		},
	}).Err()
}

// DependenciesSatisfied reports whether every dependency job id has reached
// StateCompleted.
func (c *Client) DependenciesSatisfied(ctx context.Context, deps []string) (bool, error) {
	for _, dep := range deps {
		state, err := c.rdb.HGet(ctx, statusKey(dep), "state").Result()
		if err == redis.Nil {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("queue: read dependency state: %w", err)
		}
		if State(state) != StateCompleted {
			return false, nil
		}
	}
	return true, nil
}

// PromoteScheduled moves due, dependency-satisfied scheduled jobs for
// jobType onto their live stream. It is called periodically by a Promoter
// (promoter.go); jobType keeps the scan bounded to one type at a time.
func (c *Client) PromoteScheduled(ctx context.Context, jobType string) (int, error) {
	key := scheduledKey(jobType)
	now := float64(time.Now().UnixMilli())

	members, err := c.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatFloat(now, 'f', 0, 64),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: scan scheduled %s: %w", jobType, err)
	}

	promoted := 0
	for _, member := range members {
		var sched scheduledJob
		if err := json.Unmarshal([]byte(member), &sched); err != nil {
			// Corrupt entry; drop it rather than loop on it forever.
			c.rdb.ZRem(ctx, key, member)
			continue
		}

		ready, err := c.DependenciesSatisfied(ctx, sched.Dependencies)
		if err != nil {
			return promoted, err
		}
		if !ready {
			continue
		}

		payloadJSON, err := json.Marshal(sched.Payload)
		if err != nil {
			c.rdb.ZRem(ctx, key, member)
			continue
		}
		if err := c.publishToStream(ctx, sched.Type, sched.JobID, payloadJSON, sched.Priority); err != nil {
			return promoted, err
		}
		c.rdb.ZRem(ctx, key, member)
		promoted++
	}
	return promoted, nil
}

// ReadJob blocks (up to the client's BlockTimeout) for the next message
// across the priority and base streams for jobType. Returns nil, nil on
// timeout with no message.
func (c *Client) ReadJob(ctx context.Context, jobType string) (*Job, error) {
	base := streamName(jobType)
	priority := base + ":priority"

	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.consumerGroup,
		Consumer: c.workerID,
		Streams:  []string{priority, base, ">", ">"},
		Count:    1,
		Block:    c.blockTimeout,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("queue: read %s: %w", jobType, err)
	}

	for _, s := range streams {
		if len(s.Messages) == 0 {
			continue
		}
		msg := s.Messages[0]
		job, err := c.parseMessage(msg, s.Stream)
		if err != nil {
			return nil, err
		}

		deliveries, _ := c.deliveryCount(ctx, s.Stream, msg.ID)
		if int(deliveries) > job.MaxAttempts {
			if err := c.moveToDLQ(ctx, s.Stream, job, "exceeded max retry attempts"); err != nil {
				return nil, fmt.Errorf("queue: move to dlq: %w", err)
			}
			c.rdb.XAck(ctx, s.Stream, c.consumerGroup, msg.ID)
			c.setStatus(ctx, job.ID, StateFailed, map[string]any{"error": "exceeded max retry attempts"})
			return nil, nil
		}
		job.Attempts = int(deliveries)
		c.setStatus(ctx, job.ID, StateActive, nil)
		return job, nil
	}
	return nil, nil
}

func (c *Client) parseMessage(msg redis.XMessage, stream string) (*Job, error) {
	job := &Job{sourceQueue: stream, messageID: msg.ID}

	if v, ok := msg.Values["jobId"].(string); ok {
		job.ID = v
	}
	if v, ok := msg.Values["type"].(string); ok {
		job.Type = v
	}
	if v, ok := msg.Values["payload"].(string); ok {
		var payload map[string]any
		if err := json.Unmarshal([]byte(v), &payload); err != nil {
			return nil, fmt.Errorf("queue: decode payload: %w", err)
		}
		job.Payload = payload
	}
	job.MaxAttempts = c.defaultMaxAttempts
	return job, nil
}

func (c *Client) deliveryCount(ctx context.Context, stream, messageID string) (int64, error) {
	pending, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  c.consumerGroup,
		Start:  messageID,
		End:    messageID,
		Count:  1,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	return pending[0].RetryCount + 1, nil
}

func (c *Client) moveToDLQ(ctx context.Context, stream string, job *Job, reason string) error {
	payloadJSON, _ := json.Marshal(job.Payload)
	return c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqName(stream),
		Values: map[string]any{
			"jobId":         job.ID,
			"type":          job.Type,
			"reason":        reason,
			"original_msg":  job.messageID,
			"moved_at":      time.Now().UTC().Format(time.RFC3339),
			"worker_id":     c.workerID,
			"payload":       string(payloadJSON),
		},
	}).Err()
}

// Ack acknowledges successful completion of job and publishes a
// "completed" event.
func (c *Client) Ack(ctx context.Context, job *Job, result map[string]any) error {
	if err := c.rdb.XAck(ctx, job.sourceQueue, c.consumerGroup, job.messageID).Err(); err != nil {
		return fmt.Errorf("queue: ack: %w", err)
	}
	if err := c.setStatus(ctx, job.ID, StateCompleted, result); err != nil {
		return err
	}
	return c.publishEvent(ctx, job.ID, "completed", result)
}

// Nack records a failed attempt. It does NOT ack the stream message,
// leaving it to be re-delivered (and eventually DLQ'd by ReadJob) unless
// permanent is true, in which case it acks immediately and fails the job.
func (c *Client) Nack(ctx context.Context, job *Job, execErr error, permanent bool) error {
	errMsg := ""
	if execErr != nil {
		errMsg = execErr.Error()
	}
	if permanent {
		c.rdb.XAck(ctx, job.sourceQueue, c.consumerGroup, job.messageID)
		if err := c.setStatus(ctx, job.ID, StateFailed, map[string]any{"error": errMsg}); err != nil {
			return err
		}
		return c.publishEvent(ctx, job.ID, "failed", map[string]any{"error": errMsg})
	}
	return c.setStatus(ctx, job.ID, StateQueued, map[string]any{"error": errMsg, "lastAttemptFailed": true})
}

func (c *Client) setStatus(ctx context.Context, jobID string, state State, extra map[string]any) error {
	fields := map[string]any{
		"state":      string(state),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		fields[k] = string(b)
	}
	key := statusKey(jobID)
	if err := c.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("queue: set status: %w", err)
	}
	c.rdb.Expire(ctx, key, 7*24*time.Hour)
	return nil
}

// GetJob returns the current state snapshot for jobID.
func (c *Client) GetJob(ctx context.Context, jobID string) (map[string]string, error) {
	fields, err := c.rdb.HGetAll(ctx, statusKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: get job: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

func (c *Client) publishEvent(ctx context.Context, jobID, eventType string, data map[string]any) error {
	payload, err := json.Marshal(map[string]any{
		"type":      eventType,
		"jobId":     jobID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	})
	if err != nil {
		return fmt.Errorf("queue: marshal event: %w", err)
	}
	return c.rdb.Publish(ctx, eventsChannel(jobID), payload).Err()
}

// Subscribe returns a raw Pub/Sub subscription to jobID's completion
// channel, used by Events.WaitUntilFinished.
func (c *Client) Subscribe(ctx context.Context, jobID string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, eventsChannel(jobID))
}
