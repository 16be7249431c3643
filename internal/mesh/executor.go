package mesh

import (
	"log/slog"
	"sync"
)

// task is a unit of work a Node schedules onto its own executor.
type task func()

// Executor is a node's single worker: one goroutine draining a FIFO task
// queue, so that everything touching a node's handshake state runs
// strictly one task at a time with no further locking. It mirrors a
// classic single-threaded reactor: a mutex-guarded queue, a condition
// variable the worker waits on, and a graceful drain-then-exit shutdown.
type Executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []task
	running bool

	started chan struct{}
	stopped chan struct{}

	logger *slog.Logger
}

// NewExecutor starts a worker goroutine and blocks until it is live, so
// that by the time NewExecutor returns, Execute is safe to call
// immediately.
func NewExecutor(name string) *Executor {
	e := &Executor{
		running: true,
		started: make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  slog.Default().With("component", "executor", "node_id", name),
	}
	e.cond = sync.NewCond(&e.mu)

	go e.loop()
	<-e.started
	return e
}

// Execute enqueues t to run on the worker goroutine. It never blocks on
// the task itself, only on acquiring the queue lock.
func (e *Executor) Execute(t task) {
	e.mu.Lock()
	e.tasks = append(e.tasks, t)
	e.mu.Unlock()
	e.cond.Signal()
}

func (e *Executor) loop() {
	e.mu.Lock()
	close(e.started)

	for {
		for len(e.tasks) == 0 && e.running {
			e.cond.Wait()
		}
		if len(e.tasks) == 0 && !e.running {
			e.mu.Unlock()
			close(e.stopped)
			return
		}

		t := e.tasks[0]
		e.tasks = e.tasks[1:]
		e.mu.Unlock()

		t()

		e.mu.Lock()
	}
}

// Shutdown stops accepting the notion of "still running" and blocks until
// every task already queued has finished executing. Tasks enqueued by other
// goroutines while Shutdown is in progress still run as long as they reach
// the queue before the worker finds it empty and exits; a task enqueued
// after that point is never run.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	e.cond.Broadcast()
	<-e.stopped
}
