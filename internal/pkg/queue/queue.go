package queue

import (
	"context"
	"time"
)

// Job is one unit of background work: run the blast identified by BlastID for
// the given outlet. Attachments and targets are loaded from storage by the
// worker, not carried on the queue.
type Job struct {
	ID         string    `json:"id"`
	OutletID   string    `json:"outletId"`
	BlastID    string    `json:"blastId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
	Size(ctx context.Context) (int64, error)
	Close() error
}
