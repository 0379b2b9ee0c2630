package state

import "slices"

// Observable is a node of the graph that subscribers can watch.
type Observable interface {
	Subscribe(cb Callback, opts ...SubscribeOption) *Subscription
	Unsubscribe(sub *Subscription)
	Notify()
	node() *notifier
}

// Serializer is implemented by observables that take part in snapshots.
type Serializer interface {
	Serialize() (any, error)
	Deserialize(raw any) error
}

// Callback receives the observable that notified.
type Callback func(src Observable)

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	cb          Callback
	hook        func(src Observable, q *flushQueue)
	owner       Observable
	key         any
	elementWise bool
	cancelled   bool
}

func (s *Subscription) fire(src Observable, q *flushQueue) {
	if s.cancelled {
		return
	}
	if s.hook != nil {
		s.hook(src, q)
		return
	}
	s.cb(src)
}

func (s *Subscription) dedupeKey() any {
	if s.key != nil {
		return s.key
	}
	return s
}

type subscribeOptions struct {
	immediate   bool
	elementWise bool
}

// SubscribeOption tunes a subscription.
type SubscribeOption func(*subscribeOptions)

// Immediately invokes the callback once right after subscribing.
func Immediately() SubscribeOption {
	return func(o *subscribeOptions) { o.immediate = true }
}

// ElementWise makes a list subscription fire when a held element changes.
// It has no effect on other observables.
func ElementWise() SubscribeOption {
	return func(o *subscribeOptions) { o.elementWise = true }
}

type heldState uint8

const (
	heldAll heldState = 1 << iota
	heldElements
)

// container is implemented by nodes that own other nodes.
type container interface {
	children() []Observable
}

// dependent is implemented by nodes whose notifications are derived
// from other nodes. It orders delivery inside a flush.
type dependent interface {
	dependencies() []Observable
}

type notifier struct {
	self  Observable
	subs  []*Subscription
	scope *batchScope
	held  heldState
}

func (n *notifier) subscribe(cb Callback, opts []SubscribeOption) *Subscription {
	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}
	sub := &Subscription{cb: cb, elementWise: o.elementWise}
	n.subs = append(n.subs, sub)
	if o.immediate {
		cb(n.self)
	}
	return sub
}

// listen registers an internal hook. Hooks sharing a key are delivered
// once per flush.
func (n *notifier) listen(owner Observable, key any, elementWise bool, fn func(Observable, *flushQueue)) *Subscription {
	sub := &Subscription{hook: fn, owner: owner, key: key, elementWise: elementWise}
	n.subs = append(n.subs, sub)
	return sub
}

func (n *notifier) unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	if i := slices.Index(n.subs, sub); i >= 0 {
		n.subs = slices.Delete(n.subs, i, i+1)
		sub.cancelled = true
	}
}

// emit delivers a notification. Inside a batch it is held until the batch
// ends; otherwise it joins q, or runs a fresh flush synchronously.
func (n *notifier) emit(q *flushQueue, elementsOnly bool) {
	if n.scope != nil {
		n.scope.hold(n, elementsOnly)
		return
	}
	if q != nil {
		n.enqueue(q, elementsOnly)
		return
	}
	q = newFlushQueue()
	n.enqueue(q, elementsOnly)
	q.run()
}

func (n *notifier) enqueue(q *flushQueue, elementsOnly bool) {
	for _, sub := range slices.Clone(n.subs) {
		if elementsOnly && !sub.elementWise {
			continue
		}
		q.push(sub, n.self)
	}
}
