package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/blastline/blastline/internal/pkg/queue"
)

type MemoryQueue struct {
	jobs   chan queue.Job
	mu     sync.RWMutex
	closed bool
}

func NewQueue(bufferSize int) *MemoryQueue {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &MemoryQueue{
		jobs: make(chan queue.Job, bufferSize),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job queue.Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return errors.New("queue is closed")
	}

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.New("queue is full")
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error) {
	select {
	case job, ok := <-q.jobs:
		if !ok {
			return nil, errors.New("queue is closed")
		}
		return &job, nil
	case <-time.After(timeout):
		return nil, nil // timeout, nothing queued
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Size(ctx context.Context) (int64, error) {
	return int64(len(q.jobs)), nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		close(q.jobs)
		q.closed = true
	}
	return nil
}
