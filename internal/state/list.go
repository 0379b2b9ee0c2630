package state

import (
	"fmt"
	"slices"
)

type entry[E Observable] struct {
	elem E
	hook *Subscription
}

// List is an ordered sequence of observables. Every structural mutation
// notifies once. Subscribers registered with ElementWise also hear
// about changes of the elements currently held.
type List[E Observable] struct {
	notifier
	entries []entry[E]
	factory func() E
}

func NewList[E Observable](items ...E) *List[E] {
	l := &List[E]{}
	l.self = l
	for _, e := range items {
		l.entries = append(l.entries, l.watch(e))
	}
	return l
}

// WithFactory sets the constructor used by Deserialize to build elements.
func (l *List[E]) WithFactory(fn func() E) *List[E] {
	l.factory = fn
	return l
}

func (l *List[E]) watch(e E) entry[E] {
	hook := e.node().listen(l, l, true, func(_ Observable, q *flushQueue) {
		l.emit(q, true)
	})
	if l.scope != nil {
		l.scope.attach(e)
	}
	return entry[E]{elem: e, hook: hook}
}

func (l *List[E]) unwatch(en entry[E]) {
	en.elem.node().unsubscribe(en.hook)
}

func (l *List[E]) normalize(i, n int) (int, error) {
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("%w: %d (length %d)", ErrIndexOutOfBounds, i, n)
	}
	return i, nil
}

func (l *List[E]) Len() int {
	return len(l.entries)
}

// At returns the element at i. Negative indices count from the end.
func (l *List[E]) At(i int) (E, error) {
	idx, err := l.normalize(i, len(l.entries))
	if err != nil {
		var zero E
		return zero, err
	}
	return l.entries[idx].elem, nil
}

// Items returns a copy of the held elements.
func (l *List[E]) Items() []E {
	out := make([]E, len(l.entries))
	for i, en := range l.entries {
		out[i] = en.elem
	}
	return out
}

// Index returns the position of e or -1.
func (l *List[E]) Index(e E) int {
	return slices.IndexFunc(l.entries, func(en entry[E]) bool {
		return Observable(en.elem) == Observable(e)
	})
}

func (l *List[E]) Append(e E) {
	l.entries = append(l.entries, l.watch(e))
	l.emit(nil, false)
}

// Insert places e before position i; i == Len appends.
func (l *List[E]) Insert(i int, e E) error {
	if i < 0 || i > len(l.entries) {
		return fmt.Errorf("%w: %d (length %d)", ErrIndexOutOfBounds, i, len(l.entries))
	}
	l.entries = slices.Insert(l.entries, i, l.watch(e))
	l.emit(nil, false)
	return nil
}

func (l *List[E]) Remove(e E) error {
	i := l.Index(e)
	if i < 0 {
		return ErrNotFound
	}
	l.unwatch(l.entries[i])
	l.entries = slices.Delete(l.entries, i, i+1)
	l.emit(nil, false)
	return nil
}

// Pop removes and returns the element at i. Pop(-1) removes the last one.
func (l *List[E]) Pop(i int) (E, error) {
	idx, err := l.normalize(i, len(l.entries))
	if err != nil {
		var zero E
		return zero, err
	}
	en := l.entries[idx]
	l.unwatch(en)
	l.entries = slices.Delete(l.entries, idx, idx+1)
	l.emit(nil, false)
	return en.elem, nil
}

func (l *List[E]) Clear() {
	for _, en := range l.entries {
		l.unwatch(en)
	}
	l.entries = nil
	l.emit(nil, false)
}

// Extend appends all items with a single notification.
func (l *List[E]) Extend(items ...E) {
	if len(items) == 0 {
		return
	}
	for _, e := range items {
		l.entries = append(l.entries, l.watch(e))
	}
	l.emit(nil, false)
}

// Replace swaps the whole content for items and notifies once.
func (l *List[E]) Replace(items ...E) {
	for _, en := range l.entries {
		l.unwatch(en)
	}
	l.entries = make([]entry[E], 0, len(items))
	for _, e := range items {
		l.entries = append(l.entries, l.watch(e))
	}
	l.emit(nil, false)
}

// Sort orders the elements stably by cmp.
func (l *List[E]) Sort(cmp func(a, b E) int) {
	slices.SortStableFunc(l.entries, func(a, b entry[E]) int {
		return cmp(a.elem, b.elem)
	})
	l.emit(nil, false)
}

func (l *List[E]) Reverse() {
	slices.Reverse(l.entries)
	l.emit(nil, false)
}

// Batch holds notifications of the list and its elements until End.
func (l *List[E]) Batch() *Batch {
	return beginBatch(l)
}

func (l *List[E]) Subscribe(cb Callback, opts ...SubscribeOption) *Subscription {
	return l.subscribe(cb, opts)
}

func (l *List[E]) Unsubscribe(sub *Subscription) {
	l.unsubscribe(sub)
}

func (l *List[E]) Notify() {
	l.emit(nil, false)
}

func (l *List[E]) node() *notifier {
	return &l.notifier
}

func (l *List[E]) children() []Observable {
	out := make([]Observable, len(l.entries))
	for i, en := range l.entries {
		out[i] = en.elem
	}
	return out
}

func (l *List[E]) dependencies() []Observable {
	return l.children()
}

func (l *List[E]) Serialize() (any, error) {
	out := make([]any, 0, len(l.entries))
	for i, en := range l.entries {
		s, ok := Observable(en.elem).(Serializer)
		if !ok {
			return nil, fmt.Errorf("element %d: %w", i, ErrNotSerializable)
		}
		v, err := s.Serialize()
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// checkKeys validates every entry of a sequence against one element
// built by the factory.
func (l *List[E]) checkKeys(raw any) error {
	if l.factory == nil {
		return ErrNoFactory
	}
	data, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("%w: expected sequence, got %T", ErrTypeMismatch, raw)
	}
	if len(data) == 0 {
		return nil
	}
	template := l.factory()
	if c, ok := Observable(template).(interface{ Close() }); ok {
		defer c.Close()
	}
	kc, ok := Observable(template).(keyChecker)
	if !ok {
		return nil
	}
	for i, v := range data {
		if err := kc.checkKeys(v); err != nil {
			return wrapDeserialize(fmt.Sprint(i), err)
		}
	}
	return nil
}

// Deserialize rebuilds the content from a sequence using the factory and
// replaces the current elements in one notification.
func (l *List[E]) Deserialize(raw any) error {
	if l.factory == nil {
		return ErrNoFactory
	}
	data, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("%w: expected sequence, got %T", ErrTypeMismatch, raw)
	}
	items := make([]E, 0, len(data))
	for i, v := range data {
		e := l.factory()
		s, ok := Observable(e).(Serializer)
		if !ok {
			return wrapDeserialize(fmt.Sprint(i), ErrNotSerializable)
		}
		if err := s.Deserialize(v); err != nil {
			return wrapDeserialize(fmt.Sprint(i), err)
		}
		items = append(items, e)
	}
	l.Replace(items...)
	return nil
}
