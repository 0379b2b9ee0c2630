package state

import (
	"context"
	"errors"
	"sync"
)

// ErrLoopClosed is returned by Loop.Run after Close.
var ErrLoopClosed = errors.New("dispatch loop closed")

// Dispatcher hands a function over to the goroutine that owns the graph.
// Background work must write into observables only through one.
type Dispatcher interface {
	Dispatch(fn func())
}

// Inline runs fn on the calling goroutine. It is only safe when there is
// a single goroutine, as in tests.
type Inline struct{}

func (Inline) Dispatch(fn func()) { fn() }

// Locked serializes dispatched functions with a mutex. The interactive
// side must mutate the graph through Do for the exclusion to hold.
type Locked struct {
	mu sync.Mutex
}

func (l *Locked) Dispatch(fn func()) {
	l.Do(fn)
}

func (l *Locked) Do(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
}

// Loop is a bounded queue of functions drained on the interactive
// goroutine by Run or Drain. Dispatch blocks while the queue is full.
type Loop struct {
	queue chan func()
	done  chan struct{}
	once  sync.Once
}

func NewLoop(size int) *Loop {
	if size <= 0 {
		size = 64
	}
	return &Loop{
		queue: make(chan func(), size),
		done:  make(chan struct{}),
	}
}

func (l *Loop) Dispatch(fn func()) {
	select {
	case l.queue <- fn:
	case <-l.done:
	}
}

// Run executes dispatched functions until ctx ends or the loop closes.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case fn := <-l.queue:
			fn()
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return ErrLoopClosed
		}
	}
}

// Drain executes everything queued so far without blocking and returns
// how many functions ran.
func (l *Loop) Drain() int {
	n := 0
	for {
		select {
		case fn := <-l.queue:
			fn()
			n++
		default:
			return n
		}
	}
}

// Pending reports the number of queued functions.
func (l *Loop) Pending() int {
	return len(l.queue)
}

func (l *Loop) Close() {
	l.once.Do(func() { close(l.done) })
}

// Shutdown satisfies the shutdown manager.
func (l *Loop) Shutdown() {
	l.Close()
}
