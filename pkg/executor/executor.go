// Package executor runs storage operations on a fixed pool of workers.
//
// It is the bridge between the context-driven operator API and callers that
// cannot drive it themselves: foreign-function bindings and the blocking
// operator. Work is either detached (Execute) or awaited (Spawn + Await).
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/marmos91/dittostore/internal/logger"
)

// ============================================================================
// Errors
// ============================================================================

// ErrShutdown is returned for work submitted to, or still queued in, an
// executor that has been shut down. It is fatal: retrying on the same
// executor cannot succeed.
var ErrShutdown = errors.New("executor: shut down")

// PanicError reports a task that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("executor: task panicked: %v", e.Value)
}

// IsFatal reports whether err comes from the executor itself rather than
// from the work it ran.
func IsFatal(err error) bool {
	var p *PanicError
	return errors.Is(err, ErrShutdown) || errors.As(err, &p)
}

// ============================================================================
// Executor
// ============================================================================

// Options sizes an executor.
type Options struct {
	// Workers is the number of goroutines running tasks.
	// Defaults to 2 * GOMAXPROCS.
	Workers int `mapstructure:"workers" yaml:"workers" validate:"omitempty,min=1"`

	// QueueSize bounds the number of tasks waiting for a worker. Submitting
	// to a full queue blocks until a slot frees up or the submitting
	// context ends. Defaults to 16 * Workers.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size" validate:"omitempty,min=1"`
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0) * 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = o.Workers * 16
	}
	return o
}

type job struct {
	run   func()
	abort func(error)
}

// Executor is a fixed pool of workers fed by a bounded queue.
type Executor struct {
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	jobs chan job
	quit chan struct{}
	wg   sync.WaitGroup

	mu       sync.RWMutex
	closed   bool
	shutdown sync.Once
}

// New starts an executor.
func New(opts Options) *Executor {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	e := &Executor{
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan job, opts.QueueSize),
		quit:   make(chan struct{}),
	}

	e.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go e.worker()
	}
	return e
}

// Options returns the effective options.
func (e *Executor) Options() Options {
	return e.opts
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.quit:
			return
		case j := <-e.jobs:
			j.run()
		}
	}
}

// submit queues j, waiting for room while the queue is full. The wait ends
// early when ctx is done or the executor shuts down.
func (e *Executor) submit(ctx context.Context, j job) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrShutdown
	}
	select {
	case e.jobs <- j:
		return nil
	case <-e.quit:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs fn detached from the caller.
//
// fn receives the executor's own context, not the caller's: it keeps
// running after the caller returns and is only cancelled by Shutdown.
// A panic in fn is logged and swallowed. Like Spawn, it waits while the
// queue is full.
func (e *Executor) Execute(fn func(ctx context.Context)) error {
	return e.submit(context.Background(), job{
		run: func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("detached task panicked: %v\n%s", r, debug.Stack())
				}
			}()
			fn(e.ctx)
		},
		abort: func(error) {},
	})
}

// Shutdown stops accepting work, cancels the context of detached tasks,
// waits for running tasks and fails every task still queued with
// ErrShutdown. It is safe to call more than once.
func (e *Executor) Shutdown() {
	e.shutdown.Do(func() {
		close(e.quit)

		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.cancel()
		e.wg.Wait()

		for {
			select {
			case j := <-e.jobs:
				j.abort(ErrShutdown)
			default:
				return
			}
		}
	})
}

// IsShutdown reports whether Shutdown was called.
func (e *Executor) IsShutdown() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// ============================================================================
// Tasks
// ============================================================================

// Task is the handle of one spawned unit of work.
type Task[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Spawn queues fn and returns without waiting for it to run.
//
// When the queue is full Spawn blocks until a worker frees a slot. If ctx
// ends first the task settles with ctx's error and fn never runs.
//
// fn runs with ctx: unlike Execute, the spawned work belongs to the caller
// and is cancelled with it. Await returns exactly what fn returned, or
// ErrShutdown / *PanicError when the executor failed to run it.
func Spawn[T any](e *Executor, ctx context.Context, fn func(ctx context.Context) (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}

	err := e.submit(ctx, job{
		run: func() {
			defer close(t.done)
			defer func() {
				if r := recover(); r != nil {
					t.err = &PanicError{Value: r, Stack: debug.Stack()}
				}
			}()
			t.value, t.err = fn(ctx)
		},
		abort: func(err error) {
			t.err = err
			close(t.done)
		},
	})
	if err != nil {
		t.err = err
		close(t.done)
	}
	return t
}

// Await blocks until the task settled and returns its result.
//
// Calling Await from inside a task of the same executor can deadlock once
// every worker is waiting.
func (t *Task[T]) Await() (T, error) {
	<-t.done
	return t.value, t.err
}

// Done is closed once the task settled.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Run spawns fn on e and awaits it.
func Run[T any](e *Executor, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	return Spawn(e, ctx, fn).Await()
}
