// Package gui is the fyne front end: a main window showing the session
// image with its regions and an analysis window per measured region.
// State changes reach widgets through bindings that hop onto the fyne
// goroutine.
package gui

import (
	"sync/atomic"

	"fyne.io/fyne/v2"
)

// FyneDispatcher runs functions on the fyne event goroutine.
type FyneDispatcher struct{}

func (FyneDispatcher) Dispatch(fn func()) {
	fyne.Do(fn)
}

// EventLoop runs work that touches the graph from other goroutines, such
// as shutdown steps. While the event loop runs, work is handed to it and
// waited for; after Stop it runs on the caller.
type EventLoop struct {
	stopped   atomic.Bool
	doAndWait func(func())
}

// NewEventLoop hands work over with doAndWait, fyne.DoAndWait if nil.
func NewEventLoop(doAndWait func(func())) *EventLoop {
	if doAndWait == nil {
		doAndWait = fyne.DoAndWait
	}
	return &EventLoop{doAndWait: doAndWait}
}

// Stop marks the event loop as finished.
func (l *EventLoop) Stop() {
	l.stopped.Store(true)
}

// Run executes fn on the event loop and returns when it is done.
func (l *EventLoop) Run(fn func()) {
	if l.stopped.Load() {
		fn()
		return
	}
	l.doAndWait(fn)
}
