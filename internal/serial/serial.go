// Package serial runs tasks one at a time per key. The game engines use it
// to serialize everything that touches a room, so command handling and
// timer transitions for the same room never interleave.
package serial

import (
	"sync"

	"chatgames/internal/logger"
)

// Runner owns one FIFO queue per key. A worker goroutine exists only while
// its queue is non-empty.
type Runner struct {
	mu       sync.Mutex
	queues   map[string][]func()
	wg       sync.WaitGroup
	draining bool
}

func NewRunner() *Runner {
	return &Runner{queues: make(map[string][]func())}
}

// Do enqueues fn behind everything already pending for key. Tasks for
// different keys run concurrently; tasks for the same key run in submit
// order. After Drain new tasks are dropped.
func (r *Runner) Do(key string, fn func()) {
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		logger.Warn("serialized task dropped during drain", "key", key)
		return
	}
	if q, ok := r.queues[key]; ok {
		r.queues[key] = append(q, fn)
		r.mu.Unlock()
		return
	}
	r.queues[key] = []func(){fn}
	r.wg.Add(1)
	r.mu.Unlock()

	go r.work(key)
}

// Drain blocks new submissions and waits for every queue to empty.
func (r *Runner) Drain() {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runner) work(key string) {
	defer r.wg.Done()
	for {
		r.mu.Lock()
		q := r.queues[key]
		if len(q) == 0 {
			delete(r.queues, key)
			r.mu.Unlock()
			return
		}
		fn := q[0]
		r.queues[key] = q[1:]
		r.mu.Unlock()

		r.run(key, fn)
	}
}

// run executes fn and keeps a panic from killing the worker loop.
func (r *Runner) run(key string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("serialized task panicked", "key", key, "panic", rec)
		}
	}()
	fn()
}
