// Package serial orders mutations that target the same entity.
//
// A Queue hands out turns per key in arrival order: a second caller for a
// key waits until the first releases, instead of being dropped or run
// concurrently. Different keys never wait on each other.
package serial

import (
	"context"
	"sync"
)

// Queue is a keyed FIFO lock. The zero value is ready to use.
type Queue struct {
	mu     sync.Mutex
	tails  map[string]*turn
	depths map[string]int
}

type turn struct {
	done chan struct{}
}

// Acquire waits for every earlier holder of key and returns a release func.
// release must be called exactly once. If ctx ends while waiting, Acquire
// returns ctx.Err() and the abandoned turn is passed on to the next caller
// in line once its predecessor finishes.
func (q *Queue) Acquire(ctx context.Context, key string) (release func(), err error) {
	wait, release := q.Enqueue(key)
	if err := wait(ctx); err != nil {
		go release()
		return nil, err
	}
	return release, nil
}

// Enqueue takes a place in line for key without waiting. Turns are handed
// out in Enqueue order, so a caller can reserve its place synchronously and
// wait for it on another goroutine. wait blocks until every earlier holder
// has released. release must be called exactly once, whether or not wait
// succeeded; it hands the turn on only after the predecessor is done.
func (q *Queue) Enqueue(key string) (wait func(ctx context.Context) error, release func()) {
	q.mu.Lock()
	if q.tails == nil {
		q.tails = make(map[string]*turn)
		q.depths = make(map[string]int)
	}
	prev := q.tails[key]
	mine := &turn{done: make(chan struct{})}
	q.tails[key] = mine
	q.depths[key]++
	q.mu.Unlock()

	wait = func(ctx context.Context) error {
		if prev == nil {
			return nil
		}
		select {
		case <-prev.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var once sync.Once
	release = func() {
		once.Do(func() {
			if prev != nil {
				<-prev.done
			}
			q.release(key, mine)
		})
	}
	return wait, release
}

func (q *Queue) release(key string, t *turn) {
	q.mu.Lock()
	if q.tails[key] == t {
		delete(q.tails, key)
	}
	if q.depths[key]--; q.depths[key] <= 0 {
		delete(q.depths, key)
	}
	q.mu.Unlock()
	close(t.done)
}

// Pending reports whether any caller holds or waits for key.
func (q *Queue) Pending(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.tails[key]
	return ok
}

// Len returns how many callers hold or wait for key.
func (q *Queue) Len(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depths[key]
}

// PendingKeys returns the keys that are held or awaited.
func (q *Queue) PendingKeys() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	keys := make([]string, 0, len(q.tails))
	for k := range q.tails {
		keys = append(keys, k)
	}
	return keys
}

// Do runs fn while holding key.
func (q *Queue) Do(ctx context.Context, key string, fn func() error) error {
	release, err := q.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
