// Package executor provides a serialized task queue: tasks submitted from any
// goroutine run one at a time, in submission order, on a single worker.
package executor

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrShutdown is returned by Submit once Shutdown has been called.
var ErrShutdown = errors.New("executor is shut down")

// Executor runs submitted tasks sequentially on one worker goroutine.
// Submit blocks only long enough to append to the queue.
type Executor struct {
	mu       sync.Mutex
	cond     *sync.Cond
	tasks    []func()
	shutdown bool
	done     chan struct{}
}

// New starts the worker goroutine and returns a ready Executor.
func New() *Executor {
	e := &Executor{done: make(chan struct{})}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

// Submit appends task to the queue.
func (e *Executor) Submit(task func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shutdown {
		return ErrShutdown
	}
	e.tasks = append(e.tasks, task)
	e.cond.Signal()
	return nil
}

// Shutdown rejects further submissions, waits for already queued tasks to
// finish, and returns. Must not be called from a task.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	if !e.shutdown {
		e.shutdown = true
		e.cond.Signal()
	}
	e.mu.Unlock()
	<-e.done
}

// IsShutdown reports whether Shutdown has been called.
func (e *Executor) IsShutdown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown
}

func (e *Executor) run() {
	for {
		e.mu.Lock()
		for len(e.tasks) == 0 && !e.shutdown {
			e.cond.Wait()
		}
		if len(e.tasks) == 0 {
			e.mu.Unlock()
			close(e.done)
			return
		}
		task := e.tasks[0]
		e.tasks[0] = nil
		e.tasks = e.tasks[1:]
		e.mu.Unlock()
		task()
	}
}
