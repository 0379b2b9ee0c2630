package state

// Dep names a source of a Computed.
type Dep struct {
	source      Observable
	elementWise bool
}

// On depends on o notifying as a whole.
func On(o Observable) Dep {
	return Dep{source: o}
}

// OnElements depends on a list including changes of its elements.
func OnElements(o Observable) Dep {
	return Dep{source: o, elementWise: true}
}

// Computed holds the result of fn and recomputes it whenever a source
// notifies. Within one flush it recomputes at most once, after all of its
// sources have settled. A panic in fn propagates to the code that
// triggered the notification.
type Computed[T any] struct {
	*Value[T]
	fn      func() T
	deps    []Dep
	hooks   []*Subscription
	gate    Gate
	release func(old, current T)
}

// NewComputed derives a comparable value; equal results do not notify.
func NewComputed[T comparable](fn func() T, deps ...Dep) *Computed[T] {
	return newComputed(newValue(fn(), same[T]), fn, deps)
}

// NewComputedObject derives an opaque value; every recomputation notifies.
func NewComputedObject[T any](fn func() T, deps ...Dep) *Computed[T] {
	return newComputed(newValue(fn(), nil), fn, deps)
}

func newComputed[T any](v *Value[T], fn func() T, deps []Dep) *Computed[T] {
	c := &Computed[T]{Value: v, fn: fn, deps: deps}
	for _, d := range deps {
		c.hooks = append(c.hooks, d.source.node().listen(c, c, d.elementWise, c.onSource))
	}
	return c
}

// ReleaseWith installs fn to free results that are no longer held: the
// previous value after every recomputation and the last one on Dispose.
// fn gets the value now held as well and must skip old when they are the
// same resource.
func (c *Computed[T]) ReleaseWith(fn func(old, current T)) *Computed[T] {
	c.release = fn
	return c
}

func (c *Computed[T]) onSource(_ Observable, q *flushQueue) {
	if !c.gate.Allow() {
		return
	}
	c.replace(c.fn(), q)
}

// Recompute evaluates fn now.
func (c *Computed[T]) Recompute() {
	c.replace(c.fn(), nil)
}

func (c *Computed[T]) replace(x T, q *flushQueue) {
	old := c.Value.value
	c.Value.set(x, q)
	if c.release != nil {
		c.release(old, c.Value.value)
	}
}

// Suspend stops recomputation until the matching Resume.
func (c *Computed[T]) Suspend() {
	c.gate.Suspend()
}

// Resume re-enables recomputation and catches up once if a source
// changed while suspended.
func (c *Computed[T]) Resume() {
	if c.gate.Resume() {
		c.Recompute()
	}
}

// Dispose detaches the computed from its sources. With a release hook the
// held value is released and Get returns the zero value afterwards.
func (c *Computed[T]) Dispose() {
	for i, d := range c.deps {
		d.source.node().unsubscribe(c.hooks[i])
	}
	c.hooks = nil
	c.deps = nil
	if c.release != nil {
		var zero T
		old := c.Value.value
		c.Value.value = zero
		c.release(old, zero)
	}
}

func (c *Computed[T]) dependencies() []Observable {
	out := make([]Observable, len(c.deps))
	for i, d := range c.deps {
		out[i] = d.source
	}
	return out
}

func (c *Computed[T]) Serialize() (any, error) {
	return nil, ErrNotSerializable
}

func (c *Computed[T]) Deserialize(any) error {
	return ErrNotSerializable
}

func (c *Computed[T]) checkKeys(any) error {
	return ErrNotSerializable
}

// Gate suspends derived work and remembers whether any was skipped.
// The zero value is open.
type Gate struct {
	depth  int
	missed bool
}

func (g *Gate) Suspend() {
	g.depth++
}

// Resume closes one Suspend. It reports true when the gate opened and
// work was skipped in the meantime.
func (g *Gate) Resume() bool {
	if g.depth > 0 {
		g.depth--
	}
	if g.depth == 0 && g.missed {
		g.missed = false
		return true
	}
	return false
}

// Allow reports whether work may run now and records a miss otherwise.
func (g *Gate) Allow() bool {
	if g.depth > 0 {
		g.missed = true
		return false
	}
	return true
}
