package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQueueFull is returned by Enqueue when the buffer is at capacity.
var ErrQueueFull = errors.New("job queue is full")

// ErrQueueClosed is returned by Enqueue after Shutdown has begun.
var ErrQueueClosed = errors.New("job queue is shut down")

// Queue feeds submitted jobs to a fixed pool of workers, each of which
// drives Engine.Execute. Jobs run concurrently across workers but one job
// never runs on two workers at once; Execute's claim guarantees that.
type Queue struct {
	engine  *Engine
	workers int
	timeout time.Duration

	ch   chan uuid.UUID
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithWorkers sets the worker count.
func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithQueueSize sets the pending-job buffer size.
func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan uuid.UUID, n)
		}
	}
}

// WithJobTimeout caps each execution. Zero means no cap, which is the
// default: deep searches legitimately run for hours.
func WithJobTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// NewQueue creates the queue and starts its workers.
func NewQueue(e *Engine, opts ...QueueOption) *Queue {
	q := &Queue{
		engine:  e,
		workers: 4,
		ch:      make(chan uuid.UUID, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				for id := range q.ch {
					q.engine.collector.SetQueueDepth(len(q.ch))
					ctx := context.Background()
					cancel := func() {}
					if q.timeout > 0 {
						ctx, cancel = context.WithTimeout(ctx, q.timeout)
					}
					if err := q.engine.Execute(ctx, id); err != nil {
						log.Printf("worker %d: job %s: %v", workerID, id, err)
					}
					cancel()
				}
			}(i + 1)
		}
	})
}

// Enqueue hands a job id to the worker pool without blocking.
func (q *Queue) Enqueue(id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- id:
		q.engine.collector.SetQueueDepth(len(q.ch))
		return nil
	default:
		return ErrQueueFull
	}
}

// Depth reports how many jobs are waiting for a worker.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Shutdown stops accepting work and waits for in-flight jobs, up to the
// context deadline. Jobs still running when the deadline hits keep their
// recovery checkpoints; a restart picks them back up.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.wg.Wait()
	}()
	select {
	case <-ctx.Done():
		log.Printf("queue shutdown interrupted: %v", ctx.Err())
	case <-done:
	}
}
