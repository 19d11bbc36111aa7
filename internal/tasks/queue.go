// Package tasks runs fire-and-forget background work dispatched from
// request handling. Work is submitted only after the triggering store
// transaction has committed; a full queue drops the item rather than
// blocking the request path.
package tasks

import (
	"context"
	"log"
	"time"

	"go.uber.org/atomic"
)

// Task is one unit of background work.
type Task struct {
	Label string
	Run   func(ctx context.Context) error
}

// Queue is a bounded worker pool for background tasks.
type Queue struct {
	tasks      chan Task
	maxWorkers int

	submitted atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
	completed atomic.Int64
}

// NewQueue creates a queue with the given worker count and buffer size.
func NewQueue(maxWorkers, maxQueueSize int) *Queue {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if maxQueueSize <= 0 {
		maxQueueSize = 64
	}
	return &Queue{
		tasks:      make(chan Task, maxQueueSize),
		maxWorkers: maxWorkers,
	}
}

// Start launches the workers. They exit when ctx is canceled.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.maxWorkers; i++ {
		go q.worker(ctx, i)
	}
}

// Submit enqueues a task. Returns false when the queue is full; the
// caller decides whether that is tolerable or needs a fallback.
func (q *Queue) Submit(label string, run func(ctx context.Context) error) bool {
	select {
	case q.tasks <- Task{Label: label, Run: run}:
		q.submitted.Inc()
		return true
	default:
		q.dropped.Inc()
		log.Printf("[Queue] dropped task %s: queue full", label)
		return false
	}
}

// Stats returns submitted/dropped/failed/completed counters.
func (q *Queue) Stats() (submitted, dropped, failed, completed int64) {
	return q.submitted.Load(), q.dropped.Load(), q.failed.Load(), q.completed.Load()
}

func (q *Queue) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			start := time.Now()
			if err := task.Run(ctx); err != nil {
				q.failed.Inc()
				log.Printf("[Queue] worker %d: task %s failed after %s: %v", id, task.Label, time.Since(start), err)
				continue
			}
			q.completed.Inc()
		}
	}
}
