package state

import "context"

// Task runs work off the interactive goroutine through a Debouncer and
// hands the outcome back through a Dispatcher, where complete may write
// into the graph.
type Task[A, R any] struct {
	ctx       context.Context
	work      func(context.Context, A) (R, error)
	complete  func(A, R, error)
	dispatch  Dispatcher
	debouncer *Debouncer[A]
}

func NewTask[A, R any](ctx context.Context, d Dispatcher, work func(context.Context, A) (R, error), complete func(A, R, error)) *Task[A, R] {
	t := &Task[A, R]{
		ctx:      ctx,
		work:     work,
		complete: complete,
		dispatch: d,
	}
	t.debouncer = NewDebouncer(t.run)
	return t
}

func (t *Task[A, R]) run(args A) {
	if t.ctx.Err() != nil {
		return
	}
	res, err := t.work(t.ctx, args)
	t.dispatch.Dispatch(func() {
		t.complete(args, res, err)
	})
}

func (t *Task[A, R]) Trigger(args A) {
	t.debouncer.Trigger(args)
}

// Wait blocks until the work side is idle. Completions may still sit in
// the dispatcher.
func (t *Task[A, R]) Wait() {
	t.debouncer.Wait()
}

func (t *Task[A, R]) OnPanic(fn func(any)) *Task[A, R] {
	t.debouncer.OnPanic(fn)
	return t
}

func (t *Task[A, R]) Stats() (runs, dropped uint64) {
	return t.debouncer.Stats()
}

func (t *Task[A, R]) Close() {
	t.debouncer.Close()
}
