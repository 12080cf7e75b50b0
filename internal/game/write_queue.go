// internal/game/write_queue.go
package game

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// writeQueue runs durable writes in submission order on one background goroutine,
// so a later snapshot of a player never lands before an earlier one.
type writeQueue struct {
	jobs   chan func()
	done   chan struct{}
	logger *logrus.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func newWriteQueue(size int, logger *logrus.Logger) *writeQueue {
	q := &writeQueue{
		jobs:   make(chan func(), size),
		done:   make(chan struct{}),
		logger: logger,
	}
	go q.run()
	return q
}

func (q *writeQueue) run() {
	defer close(q.done)
	for job := range q.jobs {
		q.safeRun(job)
	}
}

func (q *writeQueue) safeRun(job func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Errorf("durable write panicked: %v", r)
		}
	}()
	job()
}

// Submit enqueues job. A full queue spills to its own goroutine rather than stalling the room.
func (q *writeQueue) Submit(job func()) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("write queue closed; dropping durable write")
		return
	}
	select {
	case q.jobs <- job:
	default:
		q.logger.Warn("write queue full; running durable write out of order")
		go q.safeRun(job)
	}
}

// Close stops accepting writes and waits for queued ones to finish.
func (q *writeQueue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.jobs)
		q.mu.Unlock()
		<-q.done
	})
}
