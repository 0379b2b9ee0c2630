package gui

import (
	"image"

	"vessel-morph/internal/opencv/conversion"
	"vessel-morph/internal/opencv/safe"
	"vessel-morph/internal/state"

	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
)

// MatSource is an observable image.
type MatSource interface {
	state.Observable
	Get() *safe.Mat
}

// Binding detaches a widget from its observable.
type Binding struct {
	source state.Observable
	sub    *state.Subscription
}

func (b *Binding) Unbind() {
	if b == nil || b.sub == nil {
		return
	}
	b.source.Unsubscribe(b.sub)
	b.sub = nil
}

func bind(o state.Observable, d state.Dispatcher, apply func(), opts ...state.SubscribeOption) *Binding {
	opts = append(opts, state.Immediately())
	sub := o.Subscribe(func(state.Observable) { d.Dispatch(apply) }, opts...)
	return &Binding{source: o, sub: sub}
}

// BindImage shows src in img. An empty source clears the image.
func BindImage(src MatSource, img *canvas.Image, d state.Dispatcher) *Binding {
	return bind(src, d, func() {
		img.Image = toImage(src.Get())
		img.Refresh()
	})
}

func toImage(m *safe.Mat) image.Image {
	if m.Empty() {
		return nil
	}
	out, err := conversion.MatToImage(m)
	if err != nil {
		return nil
	}
	return out
}

// BindSlider keeps a slider and an int value in sync both ways.
func BindSlider(v *state.Value[int], s *widget.Slider, d state.Dispatcher) *Binding {
	s.OnChanged = func(x float64) { v.Set(int(x)) }
	return bind(v, d, func() {
		if int(s.Value) != v.Get() {
			s.SetValue(float64(v.Get()))
		}
	})
}

// BindFloatSlider keeps a slider and a float value in sync both ways.
func BindFloatSlider(v *state.Value[float64], s *widget.Slider, d state.Dispatcher) *Binding {
	s.OnChanged = func(x float64) { v.Set(x) }
	return bind(v, d, func() {
		if s.Value != v.Get() {
			s.SetValue(v.Get())
		}
	})
}

// BindCheck keeps a check box and a bool value in sync both ways.
func BindCheck(v *state.Value[bool], c *widget.Check, d state.Dispatcher) *Binding {
	c.OnChanged = func(b bool) { v.Set(b) }
	return bind(v, d, func() {
		if c.Checked != v.Get() {
			c.SetChecked(v.Get())
		}
	})
}

// BindLabel renders text whenever o changes.
func BindLabel(o state.Observable, l *widget.Label, text func() string, d state.Dispatcher) *Binding {
	return bind(o, d, func() {
		l.SetText(text())
	})
}
