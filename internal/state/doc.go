// Package state implements a small fine-grained reactive graph.
//
// Leaves are Values, ordered sequences of observables are Lists, named
// bundles are Composites and derived values are Computeds. All mutation
// and notification happens on one goroutine, the interactive one.
// Background work writes back through a Dispatcher.
//
// A Batch opened on a Composite or List defers every notification raised
// inside its tree until the outermost Batch ends. The deferred
// notifications are then delivered breadth first through a queue that
// collapses repeated deliveries to the same internal listener, so a
// Computed depending on several changed sources recomputes once and a
// Composite notifies its subscribers once.
package state
