package state

import (
	"sync"
	"sync/atomic"
)

// Debouncer runs fn on a background goroutine with at most one call in
// flight. Triggers arriving while a call runs collapse into a single
// follow-up call that receives the newest arguments. Each owner needs its
// own Debouncer.
type Debouncer[A any] struct {
	fn      func(A)
	onPanic func(any)

	mu      sync.Mutex
	idle    *sync.Cond
	running bool
	pending bool
	closed  bool
	latest  A

	runs    atomic.Uint64
	dropped atomic.Uint64
}

func NewDebouncer[A any](fn func(A)) *Debouncer[A] {
	d := &Debouncer[A]{fn: fn}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// OnPanic installs a handler for panics raised by fn. Without one a
// panic is swallowed so the adapter stays usable.
func (d *Debouncer[A]) OnPanic(fn func(any)) *Debouncer[A] {
	d.mu.Lock()
	d.onPanic = fn
	d.mu.Unlock()
	return d
}

// Trigger starts fn with args, or records args as the follow-up when a
// call is already running.
func (d *Debouncer[A]) Trigger(args A) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	if d.running {
		if d.pending {
			d.dropped.Add(1)
		}
		d.latest = args
		d.pending = true
		return
	}
	d.running = true
	go d.loop(args)
}

func (d *Debouncer[A]) loop(args A) {
	for {
		d.call(args)

		d.mu.Lock()
		if !d.pending || d.closed {
			var zero A
			d.latest = zero
			d.pending = false
			d.running = false
			d.idle.Broadcast()
			d.mu.Unlock()
			return
		}
		args = d.latest
		var zero A
		d.latest = zero
		d.pending = false
		d.mu.Unlock()
	}
}

func (d *Debouncer[A]) call(args A) {
	defer func() {
		if r := recover(); r != nil {
			d.mu.Lock()
			handler := d.onPanic
			d.mu.Unlock()
			if handler != nil {
				handler(r)
			}
		}
	}()
	d.runs.Add(1)
	d.fn(args)
}

// Wait blocks until no call is running or queued.
func (d *Debouncer[A]) Wait() {
	d.mu.Lock()
	for d.running {
		d.idle.Wait()
	}
	d.mu.Unlock()
}

func (d *Debouncer[A]) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Stats reports the number of executed calls and of triggers that were
// superseded before they ran.
func (d *Debouncer[A]) Stats() (runs, dropped uint64) {
	return d.runs.Load(), d.dropped.Load()
}

// Close rejects further triggers, drops a queued follow-up and waits for
// the running call.
func (d *Debouncer[A]) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.Wait()
}
