package state

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Composite is a named bundle of observables. Fields are registered once
// in a constructor and cannot be rebound afterwards. A change of any
// field, including element changes of list fields, notifies the
// composite.
//
// Types embed Composite and register their fields:
//
//	p := &Point{}
//	p.X = state.Bind(&p.Composite, "x", state.NewInt(x))
type Composite struct {
	notifier
	names     []string
	fields    map[string]Observable
	transient map[string]bool
}

func (c *Composite) init() {
	if c.self == nil {
		c.self = c
	}
	if c.fields == nil {
		c.fields = make(map[string]Observable)
		c.transient = make(map[string]bool)
	}
}

// Register binds o under name. Binding a different observable to an
// existing name panics.
func (c *Composite) Register(name string, o Observable) {
	c.init()
	if o == nil {
		panic(fmt.Sprintf("state: field %q must be an observable, got nil", name))
	}
	if cur, ok := c.fields[name]; ok {
		if cur == o {
			return
		}
		panic(fmt.Sprintf("state: field %q is already bound", name))
	}
	c.fields[name] = o
	c.names = append(c.names, name)
	o.node().listen(c, c, true, func(_ Observable, q *flushQueue) {
		c.emit(q, false)
	})
	if c.scope != nil {
		c.scope.attach(o)
	}
}

// RegisterTransient binds a field that is left out of snapshots.
func (c *Composite) RegisterTransient(name string, o Observable) {
	c.Register(name, o)
	c.transient[name] = true
}

// RegisterValue binds a raw value, wrapping primitives into the matching
// Value and anything else into an object Value.
func (c *Composite) RegisterValue(name string, raw any) Observable {
	var o Observable
	switch v := raw.(type) {
	case Observable:
		o = v
	case int:
		o = NewInt(v)
	case float64:
		o = NewFloat(v)
	case string:
		o = NewString(v)
	case bool:
		o = NewBool(v)
	default:
		o = NewObject(raw)
	}
	c.Register(name, o)
	return o
}

// Bind registers o on c and returns it with its concrete type.
func Bind[T Observable](c *Composite, name string, o T) T {
	c.Register(name, o)
	return o
}

// BindTransient is Bind for fields excluded from snapshots.
func BindTransient[T Observable](c *Composite, name string, o T) T {
	c.RegisterTransient(name, o)
	return o
}

func (c *Composite) Field(name string) (Observable, bool) {
	o, ok := c.fields[name]
	return o, ok
}

// Names lists fields in registration order.
func (c *Composite) Names() []string {
	return slices.Clone(c.names)
}

// Batch holds every notification raised in the composite's tree until
// the returned token ends.
func (c *Composite) Batch() *Batch {
	c.init()
	return beginBatch(c)
}

// Update runs fn inside a batch.
func (c *Composite) Update(fn func()) {
	b := c.Batch()
	defer b.End()
	fn()
}

func (c *Composite) Subscribe(cb Callback, opts ...SubscribeOption) *Subscription {
	c.init()
	return c.subscribe(cb, opts)
}

func (c *Composite) Unsubscribe(sub *Subscription) {
	c.unsubscribe(sub)
}

func (c *Composite) Notify() {
	c.init()
	c.emit(nil, false)
}

func (c *Composite) node() *notifier {
	c.init()
	return &c.notifier
}

func (c *Composite) children() []Observable {
	out := make([]Observable, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.fields[name])
	}
	return out
}

func (c *Composite) dependencies() []Observable {
	return c.children()
}

// Serialize returns a mapping of field names to primitive values. Opaque
// and transient fields are skipped.
func (c *Composite) Serialize() (any, error) {
	out := make(map[string]any, len(c.names))
	for _, name := range c.names {
		if c.transient[name] {
			continue
		}
		s, ok := c.fields[name].(Serializer)
		if !ok {
			continue
		}
		v, err := s.Serialize()
		if errors.Is(err, ErrNotSerializable) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("serialize %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// Deserialize assigns a mapping produced by Serialize into the existing
// fields inside one batch. Keys and value types are checked against the
// field set, nested composites and list elements included, before
// anything is assigned.
func (c *Composite) Deserialize(raw any) error {
	c.init()
	if err := c.checkKeys(raw); err != nil {
		return err
	}
	data := raw.(map[string]any)

	b := c.Batch()
	defer b.End()
	for _, name := range c.names {
		v, ok := data[name]
		if !ok {
			continue
		}
		s, ok := c.fields[name].(Serializer)
		if !ok {
			return wrapDeserialize(name, ErrNotSerializable)
		}
		if err := s.Deserialize(v); err != nil {
			return wrapDeserialize(name, err)
		}
	}
	return nil
}

type keyChecker interface {
	checkKeys(raw any) error
}

func (c *Composite) checkKeys(raw any) error {
	data, ok := raw.(map[string]any)
	if !ok {
		return &DeserializeError{Err: fmt.Errorf("%w: expected mapping, got %T", ErrTypeMismatch, raw)}
	}
	for _, key := range slices.Sorted(maps.Keys(data)) {
		f, ok := c.fields[key]
		if !ok {
			return &DeserializeError{Path: []string{key}, Err: ErrUnknownField}
		}
		if kc, ok := f.(keyChecker); ok {
			if err := kc.checkKeys(data[key]); err != nil {
				return wrapDeserialize(key, err)
			}
		}
	}
	return nil
}
