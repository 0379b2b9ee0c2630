package state

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counter(o Observable, opts ...SubscribeOption) *int {
	n := new(int)
	o.Subscribe(func(Observable) { *n++ }, opts...)
	return n
}

func TestPrimitiveSuppressesEqualValues(t *testing.T) {
	v := NewInt(1)
	calls := counter(v)

	v.Set(2)
	v.Set(2)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, 2, v.Get())

	v.Set(1)
	assert.Equal(t, 2, *calls)
}

func TestObjectAlwaysNotifies(t *testing.T) {
	buf := []int{1}
	v := NewObject(buf)
	calls := counter(v)

	v.Set(buf)
	v.Set(buf)
	assert.Equal(t, 2, *calls)
}

func TestFloatPrecisionRoundsBeforeCompare(t *testing.T) {
	v := NewFloatWithPrecision(0.5, 2)
	calls := counter(v)

	v.Set(0.501)
	assert.Equal(t, 0, *calls)
	v.Set(0.506)
	assert.Equal(t, 1, *calls)
	assert.InDelta(t, 0.51, v.Get(), 1e-12)
}

func TestSubscribeImmediatelyAndDuplicates(t *testing.T) {
	v := NewString("a")
	var seen []string
	cb := func(src Observable) { seen = append(seen, src.(*Value[string]).Get()) }

	v.Subscribe(cb, Immediately())
	v.Subscribe(cb)
	v.Set("b")

	assert.Equal(t, []string{"a", "b", "b"}, seen)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	v := NewBool(false)
	n := 0
	sub := v.Subscribe(func(Observable) { n++ })
	v.Set(true)
	v.Unsubscribe(sub)
	v.Set(false)
	assert.Equal(t, 1, n)
}

func TestUnsubscribeDuringNotify(t *testing.T) {
	v := NewInt(0)
	var second *Subscription
	hits := 0
	v.Subscribe(func(Observable) { v.Unsubscribe(second) })
	second = v.Subscribe(func(Observable) { hits++ })

	v.Set(1)
	assert.Equal(t, 0, hits)
}

func TestDeserializeConvertsJSONNumbers(t *testing.T) {
	v := NewInt(0)
	require.NoError(t, v.Deserialize(float64(7)))
	assert.Equal(t, 7, v.Get())

	err := v.Deserialize("seven")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	obj := NewObject(struct{}{})
	_, err = obj.Serialize()
	assert.ErrorIs(t, err, ErrNotSerializable)
}

func TestDeserializeRejectsLossyIntegers(t *testing.T) {
	v := NewInt(3)
	tests := []struct {
		name string
		raw  any
	}{
		{"fraction", 1.7},
		{"infinity", math.Inf(1)},
		{"nan", math.NaN()},
		{"overflow", 1e300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, v.Deserialize(tt.raw), ErrTypeMismatch)
			assert.Equal(t, 3, v.Get())
		})
	}

	small := newValue[uint8](0, same[uint8])
	assert.ErrorIs(t, small.Deserialize(float64(300)), ErrTypeMismatch)
	assert.ErrorIs(t, small.Deserialize(-1), ErrTypeMismatch)

	f := NewFloat(0)
	require.NoError(t, f.Deserialize(2))
	assert.Equal(t, 2.0, f.Get())
}
