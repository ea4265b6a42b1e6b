// Package tasks is a redis-backed durable job queue with at-least-once
// delivery: a worker pool with exponential-backoff retries, a dead-letter
// list for jobs that exhaust their attempts, and a scheduler for recurring
// maintenance jobs.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrBackend wraps any redis failure so callers can treat queue outages as
// one transient class.
var ErrBackend = errors.New("task queue backend unavailable")

// Job is the unit of work. Payload is opaque JSON owned by the handler for
// the job's Kind.
type Job struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// Queue produces and stores jobs. Keys used, all under the prefix:
// pending (list), processing (list), delayed (zset scored by ready time),
// dead (list).
type Queue struct {
	redis  *redis.Client
	prefix string
}

// NewQueue constructs a queue over the given client. prefix namespaces all
// keys so several queues can share one redis.
func NewQueue(client *redis.Client, prefix string) *Queue {
	if prefix == "" {
		prefix = "tasks"
	}
	return &Queue{redis: client, prefix: prefix}
}

func (q *Queue) pendingKey() string    { return q.prefix + ":pending" }
func (q *Queue) processingKey() string { return q.prefix + ":processing" }
func (q *Queue) delayedKey() string    { return q.prefix + ":delayed" }
func (q *Queue) deadKey() string       { return q.prefix + ":dead" }

// Enqueue serializes payload and pushes a job, returning its id. The call
// returns as soon as redis accepts the push; execution happens in workers.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any) (string, error) {
	if kind == "" {
		return "", errors.New("empty job kind")
	}

	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", err
		}
		raw = data
	}

	job := &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    raw,
		EnqueuedAt: time.Now(),
	}

	encoded, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	if err := q.redis.LPush(ctx, q.pendingKey(), encoded).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}

	return job.ID, nil
}

// DeadJobs returns the current dead-letter contents, newest first. Jobs
// land here only after exhausting every retry; they are kept for operator
// inspection, never silently dropped.
func (q *Queue) DeadJobs(ctx context.Context) ([]*Job, error) {
	raw, err := q.redis.LRange(ctx, q.deadKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	jobs := make([]*Job, 0, len(raw))
	for _, item := range raw {
		var job Job
		if err := json.Unmarshal([]byte(item), &job); err != nil {
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// RequeueDead moves every dead job back to pending with a reset attempt
// counter. Returns how many were moved.
func (q *Queue) RequeueDead(ctx context.Context) (int, error) {
	moved := 0
	for {
		item, err := q.redis.RPop(ctx, q.deadKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return moved, nil
			}
			return moved, fmt.Errorf("%w: %v", ErrBackend, err)
		}

		var job Job
		if err := json.Unmarshal([]byte(item), &job); err != nil {
			continue
		}
		job.Attempts = 0
		job.LastError = ""

		encoded, err := json.Marshal(&job)
		if err != nil {
			continue
		}
		if err := q.redis.LPush(ctx, q.pendingKey(), encoded).Err(); err != nil {
			return moved, fmt.Errorf("%w: %v", ErrBackend, err)
		}
		moved++
	}
}

// PendingCount reports queued-but-unclaimed jobs.
func (q *Queue) PendingCount(ctx context.Context) (int64, error) {
	n, err := q.redis.LLen(ctx, q.pendingKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return n, nil
}
