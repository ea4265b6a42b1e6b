package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) (*Queue, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	queue := NewQueue(client, "test")
	return queue, func() {
		_ = client.Close()
		mr.Close()
	}
}

// claim pulls one pending item into processing the way a worker loop does.
func claim(t *testing.T, q *Queue) string {
	t.Helper()
	item, err := q.redis.RPopLPush(context.Background(), q.pendingKey(), q.processingKey()).Result()
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	return item
}

func TestEnqueue(t *testing.T) {
	queue, done := newTestQueue(t)
	defer done()
	ctx := context.Background()

	if _, err := queue.Enqueue(ctx, "", nil); err == nil {
		t.Fatal("empty kind must be rejected")
	}

	id, err := queue.Enqueue(ctx, "send_email", map[string]string{"to": "vera@films.example"})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if id == "" {
		t.Fatal("missing job id")
	}

	n, err := queue.PendingCount(ctx)
	if err != nil {
		t.Fatalf("pending count failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pending job, got %d", n)
	}

	var job Job
	if err := json.Unmarshal([]byte(claim(t, queue)), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.ID != id || job.Kind != "send_email" || job.Attempts != 0 {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestWorkerProcessSuccess(t *testing.T) {
	queue, done := newTestQueue(t)
	defer done()
	ctx := context.Background()

	worker := NewWorker(queue, WorkerConfig{})
	var got *Job
	worker.Handle("send_email", func(_ context.Context, job *Job) error {
		got = job
		return nil
	})

	if _, err := queue.Enqueue(ctx, "send_email", map[string]string{"to": "vera@films.example"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	worker.process(ctx, claim(t, queue))

	if got == nil || got.Kind != "send_email" || got.Attempts != 1 {
		t.Fatalf("handler saw %+v", got)
	}

	// Nothing lingers anywhere after an ack.
	for _, key := range []string{queue.pendingKey(), queue.processingKey(), queue.deadKey()} {
		n, err := queue.redis.LLen(ctx, key).Result()
		if err != nil {
			t.Fatalf("llen %s: %v", key, err)
		}
		if n != 0 {
			t.Fatalf("key %s still holds %d items", key, n)
		}
	}
}

func TestWorkerRetryThenDeadLetter(t *testing.T) {
	queue, done := newTestQueue(t)
	defer done()
	ctx := context.Background()

	worker := NewWorker(queue, WorkerConfig{MaxAttempts: 2, RetryBase: time.Millisecond})
	calls := 0
	worker.Handle("send_email", func(context.Context, *Job) error {
		calls++
		return errors.New("smtp refused")
	})

	if _, err := queue.Enqueue(ctx, "send_email", nil); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	// First failure parks the job in the delayed set.
	worker.process(ctx, claim(t, queue))
	delayed, err := queue.redis.ZRange(ctx, queue.delayedKey(), 0, -1).Result()
	if err != nil {
		t.Fatalf("zrange failed: %v", err)
	}
	if len(delayed) != 1 {
		t.Fatalf("expected 1 delayed job, got %d", len(delayed))
	}
	var parked Job
	if err := json.Unmarshal([]byte(delayed[0]), &parked); err != nil {
		t.Fatalf("decode delayed job: %v", err)
	}
	if parked.Attempts != 1 || parked.LastError != "smtp refused" {
		t.Fatalf("unexpected parked job: %+v", parked)
	}

	// Delayed scores have second granularity, so the millisecond backoff
	// may still round up to the next second. Poll until promotion lands.
	deadline := time.After(3 * time.Second)
	for {
		if err := worker.promoteDelayed(ctx); err != nil {
			t.Fatalf("promote failed: %v", err)
		}
		n, err := queue.PendingCount(ctx)
		if err != nil {
			t.Fatalf("pending count failed: %v", err)
		}
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("delayed job was never promoted")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Second failure exhausts the budget and buries the job.
	worker.process(ctx, claim(t, queue))
	dead, err := queue.DeadJobs(ctx)
	if err != nil {
		t.Fatalf("dead jobs failed: %v", err)
	}
	if len(dead) != 1 || dead[0].Attempts != 2 || dead[0].LastError != "smtp refused" {
		t.Fatalf("unexpected dead letter: %+v", dead)
	}
	if calls != 2 {
		t.Fatalf("handler ran %d times", calls)
	}
}

func TestWorkerRecoversAbandonedJobs(t *testing.T) {
	queue, done := newTestQueue(t)
	defer done()
	ctx := context.Background()

	// A claim with no matching ack is what a worker crash leaves behind.
	if _, err := queue.Enqueue(ctx, "send_email", nil); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	claim(t, queue)

	worker := NewWorker(queue, WorkerConfig{})
	if err := worker.recoverAbandoned(ctx); err != nil {
		t.Fatalf("recover failed: %v", err)
	}

	n, err := queue.PendingCount(ctx)
	if err != nil {
		t.Fatalf("pending count failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 recovered job, got %d", n)
	}
	left, err := queue.redis.LLen(ctx, queue.processingKey()).Result()
	if err != nil {
		t.Fatalf("llen processing: %v", err)
	}
	if left != 0 {
		t.Fatalf("processing list still holds %d items", left)
	}

	// Empty processing list: the sweep is a no-op.
	if err := worker.recoverAbandoned(ctx); err != nil {
		t.Fatalf("second recover failed: %v", err)
	}
}

func TestWorkerBuriesUnknownKind(t *testing.T) {
	queue, done := newTestQueue(t)
	defer done()
	ctx := context.Background()

	worker := NewWorker(queue, WorkerConfig{})
	if _, err := queue.Enqueue(ctx, "mystery", nil); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	worker.process(ctx, claim(t, queue))

	dead, err := queue.DeadJobs(ctx)
	if err != nil {
		t.Fatalf("dead jobs failed: %v", err)
	}
	if len(dead) != 1 || dead[0].LastError != "no handler registered" {
		t.Fatalf("unexpected dead letter: %+v", dead)
	}
}

func TestRequeueDead(t *testing.T) {
	queue, done := newTestQueue(t)
	defer done()
	ctx := context.Background()

	worker := NewWorker(queue, WorkerConfig{MaxAttempts: 1})
	worker.Handle("send_email", func(context.Context, *Job) error {
		return errors.New("smtp refused")
	})
	if _, err := queue.Enqueue(ctx, "send_email", nil); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	worker.process(ctx, claim(t, queue))

	moved, err := queue.RequeueDead(ctx)
	if err != nil {
		t.Fatalf("requeue failed: %v", err)
	}
	if moved != 1 {
		t.Fatalf("expected 1 requeued job, got %d", moved)
	}

	var job Job
	if err := json.Unmarshal([]byte(claim(t, queue)), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.Attempts != 0 || job.LastError != "" {
		t.Fatalf("requeue must reset retry state: %+v", job)
	}

	dead, err := queue.DeadJobs(ctx)
	if err != nil {
		t.Fatalf("dead jobs failed: %v", err)
	}
	if len(dead) != 0 {
		t.Fatalf("dead letter not drained, %d left", len(dead))
	}
}

func TestWorkerRun(t *testing.T) {
	queue, done := newTestQueue(t)
	defer done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan string, 1)
	worker := NewWorker(queue, WorkerConfig{Concurrency: 1, PollTimeout: 50 * time.Millisecond})
	worker.Handle("send_email", func(_ context.Context, job *Job) error {
		handled <- job.ID
		return nil
	})

	running := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(running)
	}()

	id, err := queue.Enqueue(ctx, "send_email", nil)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	select {
	case got := <-handled:
		if got != id {
			t.Fatalf("handled job %q, enqueued %q", got, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job was never handled")
	}

	cancel()
	select {
	case <-running:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancellation")
	}
}

func TestSchedulerEnqueuesOnCadence(t *testing.T) {
	queue, done := newTestQueue(t)
	defer done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := NewScheduler(queue, "purge_expired_backup_codes", 10*time.Millisecond)
	stopped := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(stopped)
	}()

	deadline := time.After(2 * time.Second)
	for {
		n, err := queue.PendingCount(ctx)
		if err != nil {
			t.Fatalf("pending count failed: %v", err)
		}
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("scheduler never enqueued")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancellation")
	}
}
