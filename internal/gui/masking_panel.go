package gui

import (
	"fmt"

	"vessel-morph/internal/processing"
	"vessel-morph/internal/state"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

const maxMorphSize = 30

// MaskingPanel edits the threshold and cleanup of one channel mask and
// previews what the mask keeps.
type MaskingPanel struct {
	Threshold   *widget.Slider
	Opening     *widget.Check
	OpeningSize *widget.Slider
	Closing     *widget.Check
	ClosingSize *widget.Slider
	Preview     *canvas.Image

	content  fyne.CanvasObject
	bindings []*Binding
}

func NewMaskingPanel(title string, m *processing.Masking, d state.Dispatcher) *MaskingPanel {
	p := &MaskingPanel{
		Threshold:   widget.NewSlider(0, 255),
		Opening:     widget.NewCheck("Opening", nil),
		OpeningSize: widget.NewSlider(1, maxMorphSize),
		Closing:     widget.NewCheck("Closing", nil),
		ClosingSize: widget.NewSlider(1, maxMorphSize),
		Preview:     &canvas.Image{FillMode: canvas.ImageFillContain},
	}
	p.Preview.SetMinSize(fyne.NewSize(240, 240))

	thresholdLabel := widget.NewLabel("")
	p.bindings = []*Binding{
		BindSlider(m.Threshold, p.Threshold, d),
		BindCheck(m.MorphOps.Opening, p.Opening, d),
		BindSlider(m.MorphOps.OpeningSize, p.OpeningSize, d),
		BindCheck(m.MorphOps.Closing, p.Closing, d),
		BindSlider(m.MorphOps.ClosingSize, p.ClosingSize, d),
		BindImage(m.ColoredMask, p.Preview, d),
		BindLabel(m.Threshold, thresholdLabel, func() string {
			return fmt.Sprintf("Threshold: %d", m.Threshold.Get())
		}, d),
	}

	p.content = widget.NewCard(title, "", container.NewBorder(
		container.NewVBox(
			thresholdLabel, p.Threshold,
			p.Opening, p.OpeningSize,
			p.Closing, p.ClosingSize,
		),
		nil, nil, nil,
		p.Preview,
	))
	return p
}

func (p *MaskingPanel) Content() fyne.CanvasObject {
	return p.content
}

func (p *MaskingPanel) Unbind() {
	for _, b := range p.bindings {
		b.Unbind()
	}
}
