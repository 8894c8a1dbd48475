package session

import (
	"context"
	"sync"
)

// turnQueue is a FIFO lock: waiters acquire it in arrival order.
type turnQueue struct {
	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}

	// users is guarded by Manager.mu.
	users int
}

// acquire blocks until the caller owns the queue or ctx is done.
func (q *turnQueue) acquire(ctx context.Context) error {
	q.mu.Lock()
	if !q.busy {
		q.busy = true
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		for i, w := range q.waiters {
			if w == ch {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				q.mu.Unlock()
				return ctx.Err()
			}
		}
		q.mu.Unlock()
		// Ownership was handed over as ctx finished; pass it on.
		q.release()
		return ctx.Err()
	}
}

// release hands the queue to the oldest waiter, if any.
func (q *turnQueue) release() {
	q.mu.Lock()
	if len(q.waiters) > 0 {
		next := q.waiters[0]
		q.waiters = q.waiters[1:]
		q.mu.Unlock()
		close(next)
		return
	}
	q.busy = false
	q.mu.Unlock()
}

// pending returns how many callers are waiting.
func (q *turnQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}
