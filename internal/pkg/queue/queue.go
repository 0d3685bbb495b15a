// Package queue provides a per-game-instance serial execution chain for
// outbound render updates. Submissions apply in submission order even when
// the triggers (ticks, reactions) race each other.
package queue

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Queue chains submitted functions so each runs after all previously
// submitted ones. The chain is a linked continuation, not a worker pool;
// there is no goroutine while the queue is idle.
type Queue struct {
	mu   sync.Mutex
	tail chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Do submits fn and blocks until it has been applied. fn runs strictly after
// every function submitted before it. An error from fn is logged and
// swallowed; it never blocks later submissions.
func (q *Queue) Do(fn func() error) {
	<-q.submit(fn)
}

// Submit enqueues fn without waiting for it to be applied.
func (q *Queue) Submit(fn func() error) {
	q.submit(fn)
}

func (q *Queue) submit(fn func() error) <-chan struct{} {
	done := make(chan struct{})

	q.mu.Lock()
	prev := q.tail
	q.tail = done
	q.mu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		if err := fn(); err != nil {
			log.Debug().Err(err).Msg("Queued update failed")
		}
	}()

	return done
}
