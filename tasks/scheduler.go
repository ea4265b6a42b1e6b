package tasks

import (
	"context"
	"log"
	"time"
)

// Scheduler enqueues a job kind on a fixed cadence. Used for the daily
// backup-code purge; the handlers behind scheduled kinds must be
// idempotent since at-least-once delivery still applies.
type Scheduler struct {
	queue    *Queue
	kind     string
	interval time.Duration
}

// NewScheduler builds a scheduler that enqueues kind every interval.
func NewScheduler(queue *Queue, kind string, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{queue: queue, kind: kind, interval: interval}
}

// Run ticks until ctx is cancelled. The first enqueue happens after one
// full interval, not immediately.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.queue.Enqueue(ctx, s.kind, nil); err != nil {
				log.Printf("tasks: schedule %s: %v", s.kind, err)
			}
		}
	}
}
