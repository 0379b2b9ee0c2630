package state

import (
	"fmt"
	"math"
	"reflect"
)

// Value is a leaf observable. Values built for comparable primitives
// suppress notification when set to an equal value. Object values notify
// on every Set.
type Value[T any] struct {
	notifier
	value T
	equal func(a, b T) bool
	round func(T) T
}

func newValue[T any](v T, equal func(a, b T) bool) *Value[T] {
	val := &Value[T]{value: v, equal: equal}
	val.self = val
	return val
}

func same[T comparable](a, b T) bool { return a == b }

func NewInt(v int) *Value[int] { return newValue(v, same[int]) }
func NewFloat(v float64) *Value[float64] { return newValue(v, same[float64]) }
func NewString(v string) *Value[string] { return newValue(v, same[string]) }
func NewBool(v bool) *Value[bool] { return newValue(v, same[bool]) }

// NewFloatWithPrecision rounds every assigned value to the given number
// of decimal digits before comparing it with the current one.
func NewFloatWithPrecision(v float64, digits int) *Value[float64] {
	round := func(x float64) float64 {
		p := math.Pow(10, float64(digits))
		return math.Round(x*p) / p
	}
	val := newValue(round(v), same[float64])
	val.round = round
	return val
}

// NewObject wraps an opaque value. It never suppresses notifications and
// is skipped by serialization.
func NewObject[T any](v T) *Value[T] {
	return newValue(v, nil)
}

func (v *Value[T]) Get() T {
	return v.value
}

func (v *Value[T]) Set(x T) {
	v.set(x, nil)
}

// Update sets the result of applying fn to the current value.
func (v *Value[T]) Update(fn func(T) T) {
	v.Set(fn(v.value))
}

func (v *Value[T]) set(x T, q *flushQueue) {
	if v.round != nil {
		x = v.round(x)
	}
	if v.equal != nil && v.equal(v.value, x) {
		return
	}
	v.value = x
	v.emit(q, false)
}

func (v *Value[T]) Subscribe(cb Callback, opts ...SubscribeOption) *Subscription {
	return v.subscribe(cb, opts)
}

func (v *Value[T]) Unsubscribe(sub *Subscription) {
	v.unsubscribe(sub)
}

func (v *Value[T]) Notify() {
	v.emit(nil, false)
}

func (v *Value[T]) node() *notifier {
	return &v.notifier
}

func (v *Value[T]) Serialize() (any, error) {
	if v.equal == nil {
		return nil, ErrNotSerializable
	}
	return v.value, nil
}

func (v *Value[T]) Deserialize(raw any) error {
	if v.equal == nil {
		return ErrNotSerializable
	}
	x, err := convertTo[T](raw)
	if err != nil {
		return err
	}
	v.Set(x)
	return nil
}

func (v *Value[T]) checkKeys(raw any) error {
	if v.equal == nil {
		return ErrNotSerializable
	}
	_, err := convertTo[T](raw)
	return err
}

func (v *Value[T]) String() string {
	return fmt.Sprint(v.value)
}

// convertTo accepts JSON-decoded numbers for any numeric target type.
// Integer targets only take integral numbers that fit.
func convertTo[T any](raw any) (T, error) {
	var zero T
	if x, ok := raw.(T); ok {
		return x, nil
	}
	target := reflect.TypeOf(&zero).Elem()
	rv := reflect.ValueOf(raw)
	if !rv.IsValid() || !isNumeric(rv.Kind()) || !isNumeric(target.Kind()) {
		return zero, fmt.Errorf("%w: cannot assign %T to %s", ErrTypeMismatch, raw, target)
	}
	out := rv.Convert(target)
	if isFloat(target.Kind()) {
		return out.Interface().(T), nil
	}
	if isFloat(rv.Kind()) {
		if f := rv.Float(); f != math.Trunc(f) || math.IsInf(f, 0) {
			return zero, fmt.Errorf("%w: %v is not an integer for %s", ErrTypeMismatch, f, target)
		}
	}
	if !out.Convert(rv.Type()).Equal(rv) {
		return zero, fmt.Errorf("%w: %v overflows %s", ErrTypeMismatch, raw, target)
	}
	return out.Interface().(T), nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
