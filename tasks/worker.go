package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Handler executes one job. A nil return acknowledges the job; an error
// schedules a retry until the attempt budget runs out.
type Handler func(ctx context.Context, job *Job) error

// WorkerConfig tunes the consumer side.
type WorkerConfig struct {
	// Concurrency is the number of consumer goroutines.
	Concurrency int
	// MaxAttempts is the total tries per job including the first.
	MaxAttempts int
	// RetryBase is the backoff unit: a job that failed n times waits
	// RetryBase * 2^(n-1) before its next try.
	RetryBase time.Duration
	// PollTimeout bounds each blocking pop so shutdown stays responsive.
	PollTimeout time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Minute
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	return c
}

// Worker consumes jobs from a Queue and dispatches them to registered
// handlers. Register all handlers before Run.
type Worker struct {
	queue    *Queue
	cfg      WorkerConfig
	handlers map[string]Handler
}

// NewWorker constructs a worker over the queue.
func NewWorker(queue *Queue, cfg WorkerConfig) *Worker {
	return &Worker{
		queue:    queue,
		cfg:      cfg.withDefaults(),
		handlers: make(map[string]Handler),
	}
}

// Handle registers the handler for a job kind, replacing any previous one.
func (w *Worker) Handle(kind string, h Handler) {
	w.handlers[kind] = h
}

// Run consumes until ctx is cancelled. It blocks; callers wanting a
// background worker start it in a goroutine.
func (w *Worker) Run(ctx context.Context) {
	if err := w.recoverAbandoned(ctx); err != nil && ctx.Err() == nil {
		log.Printf("tasks: recover abandoned: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := w.promoteDelayed(ctx); err != nil && ctx.Err() == nil {
			log.Printf("tasks: promote delayed: %v", err)
		}

		item, err := w.queue.redis.BRPopLPush(
			ctx, w.queue.pendingKey(), w.queue.processingKey(), w.cfg.PollTimeout,
		).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			log.Printf("tasks: pop: %v", err)
			select {
			case <-time.After(w.cfg.PollTimeout):
			case <-ctx.Done():
				return
			}
			continue
		}

		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item string) {
	// The raw item is removed from processing exactly once, whatever the
	// outcome, so the processing list cannot leak entries.
	defer func() {
		if err := w.queue.redis.LRem(context.WithoutCancel(ctx), w.queue.processingKey(), 1, item).Err(); err != nil {
			log.Printf("tasks: ack: %v", err)
		}
	}()

	var job Job
	if err := json.Unmarshal([]byte(item), &job); err != nil {
		log.Printf("tasks: undecodable job dropped: %v", err)
		return
	}

	handler, ok := w.handlers[job.Kind]
	if !ok {
		job.LastError = "no handler registered"
		w.bury(ctx, &job)
		return
	}

	job.Attempts++
	if err := handler(ctx, &job); err != nil {
		job.LastError = err.Error()
		if job.Attempts >= w.cfg.MaxAttempts {
			w.bury(ctx, &job)
			return
		}
		w.delay(ctx, &job)
	}
}

// delay parks the job in the sorted set until its backoff elapses.
func (w *Worker) delay(ctx context.Context, job *Job) {
	backoff := time.Duration(float64(w.cfg.RetryBase) * math.Pow(2, float64(job.Attempts-1)))
	readyAt := time.Now().Add(backoff)

	encoded, err := json.Marshal(job)
	if err != nil {
		log.Printf("tasks: marshal for retry: %v", err)
		return
	}
	err = w.queue.redis.ZAdd(context.WithoutCancel(ctx), w.queue.delayedKey(), redis.Z{
		Score:  float64(readyAt.Unix()),
		Member: encoded,
	}).Err()
	if err != nil {
		log.Printf("tasks: schedule retry: %v", err)
	}
}

// bury moves an exhausted job to the dead-letter list.
func (w *Worker) bury(ctx context.Context, job *Job) {
	encoded, err := json.Marshal(job)
	if err != nil {
		log.Printf("tasks: marshal for dead letter: %v", err)
		return
	}
	if err := w.queue.redis.LPush(context.WithoutCancel(ctx), w.queue.deadKey(), encoded).Err(); err != nil {
		log.Printf("tasks: dead letter: %v", err)
	}
}

// recoverAbandoned returns jobs stranded in the processing list by a
// worker that died between claim and ack to the pending list. Delivery is
// at least once, so a job the dead worker had already finished may run a
// second time.
func (w *Worker) recoverAbandoned(ctx context.Context) error {
	for {
		_, err := w.queue.redis.RPopLPush(ctx, w.queue.processingKey(), w.queue.pendingKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}
	}
}

// promoteDelayed moves due retries back to pending.
func (w *Worker) promoteDelayed(ctx context.Context) error {
	now := time.Now().Unix()

	items, err := w.queue.redis.ZRangeByScore(ctx, w.queue.delayedKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: 100,
	}).Result()
	if err != nil {
		return err
	}

	for _, item := range items {
		// ZRem first: of several workers promoting concurrently only the
		// one that removes the member re-enqueues it.
		removed, err := w.queue.redis.ZRem(ctx, w.queue.delayedKey(), item).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := w.queue.redis.LPush(ctx, w.queue.pendingKey(), item).Err(); err != nil {
			return err
		}
	}
	return nil
}
