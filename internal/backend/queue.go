package backend

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Queue implements the per-backend run queue of §4.2: a map from queueKey to
// a tail-task. When a backend serializes, queueKey is just the backendId and
// every run for that backend is totally ordered FIFO; otherwise queueKey
// includes runId and runs for that backend never block each other.
//
// Submitting a task chains it after the existing tail regardless of whether
// the prior task failed, then replaces the map entry with the new tail. The
// entry is erased only when it still equals the task that just finished —
// a later submission may have already replaced it.
//
// An optional per-queueKey token-bucket limiter throttles how often a task
// may start, layered on top of the FIFO tail-chain — useful for backends
// whose CLI enforces its own rate limit regardless of how many runs this
// queue admits.
type Queue struct {
	mu       sync.Mutex
	tails    map[string]chan struct{}
	limiters map[string]*rate.Limiter

	// RatePerSec and Burst configure the optional throttle applied to every
	// queueKey. Zero RatePerSec disables throttling entirely.
	RatePerSec float64
	Burst      int
}

// NewQueue constructs an empty run queue with no throttling.
func NewQueue() *Queue {
	return &Queue{tails: make(map[string]chan struct{})}
}

func (q *Queue) limiterFor(queueKey string) *rate.Limiter {
	if q.RatePerSec <= 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limiters == nil {
		q.limiters = make(map[string]*rate.Limiter)
	}
	lim, ok := q.limiters[queueKey]
	if !ok {
		burst := q.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(q.RatePerSec), burst)
		q.limiters[queueKey] = lim
	}
	return lim
}

// QueueKey computes the queueKey for a run against a resolved backend, per
// §4.2: backendId alone when the backend serializes, else backendId:runId.
func QueueKey(backendID, runID string, serialize bool) string {
	if serialize {
		return backendID
	}
	return backendID + ":" + runID
}

// Submit chains task after the current tail for queueKey and returns a
// channel that receives task's error (or ctx.Err() if ctx is done before
// task runs) exactly once. The caller's prior task's failure never blocks
// this one from running.
func (q *Queue) Submit(ctx context.Context, queueKey string, task func(context.Context) error) <-chan error {
	result := make(chan error, 1)
	done := make(chan struct{})

	q.mu.Lock()
	prev := q.tails[queueKey]
	q.tails[queueKey] = done
	q.mu.Unlock()

	limiter := q.limiterFor(queueKey)

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				result <- err
				q.mu.Lock()
				if q.tails[queueKey] == done {
					delete(q.tails, queueKey)
				}
				q.mu.Unlock()
				return
			}
		}

		select {
		case <-ctx.Done():
			result <- ctx.Err()
		default:
			result <- task(ctx)
		}

		q.mu.Lock()
		if q.tails[queueKey] == done {
			delete(q.tails, queueKey)
		}
		q.mu.Unlock()
	}()

	return result
}

// Depth reports the number of distinct queueKeys with an in-flight tail,
// for diagnostics (the doctor/registry-inspect surface).
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}
