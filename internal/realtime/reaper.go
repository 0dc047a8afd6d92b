package realtime

import (
	"context"
	"log/slog"
)

const DefaultEvictionQueueSize = 1024

// EvictionQueue is a bounded queue of handles awaiting disconnection.
type EvictionQueue struct {
	ch chan Handle
}

// NewEvictionQueue creates a queue holding up to size handles.
func NewEvictionQueue(size int) *EvictionQueue {
	if size <= 0 {
		size = DefaultEvictionQueueSize
	}
	return &EvictionQueue{ch: make(chan Handle, size)}
}

// Evict never blocks; it returns false when the queue is full.
func (q *EvictionQueue) Evict(h Handle) bool {
	select {
	case q.ch <- h:
		return true
	default:
		return false
	}
}

// Len is the number of handles waiting for the reaper.
func (q *EvictionQueue) Len() int { return len(q.ch) }

// Disconnector is the part of the Controller the Reaper needs.
type Disconnector interface {
	Disconnect(ctx context.Context, h Handle, reason string) bool
}

// Reaper disconnects handles whose delivery failed.
type Reaper struct {
	log          *slog.Logger
	queue        *EvictionQueue
	disconnector Disconnector
}

// NewReaper creates a Reaper draining queue into disconnector.
func NewReaper(log *slog.Logger, queue *EvictionQueue, disconnector Disconnector) *Reaper {
	return &Reaper{log: log, queue: queue, disconnector: disconnector}
}

// Run disconnects queued handles until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case h := <-r.queue.ch:
			if r.disconnector.Disconnect(ctx, h, "delivery failed") {
				r.log.Info("Evicted connection", "handle", h)
			}
		}
	}
}
