package gui

import (
	"fmt"

	"vessel-morph/internal/analysis"
	"vessel-morph/internal/morphometry"
	"vessel-morph/internal/state"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// AnalysisView shows one analysis: the two masking panels, the cell
// layer overlays and their reports.
type AnalysisView struct {
	Analysis *analysis.Analysis

	Green, Red  *MaskingPanel
	Reports     []*ReportTable
	Layers      []*canvas.Image
	AngleStep   *widget.Slider
	CopyButton  *widget.Button
	SaveButton  *widget.Button
	CloseButton *widget.Button
	content     fyne.CanvasObject
	bindings    []*Binding
}

type AnalysisActions struct {
	Copy  func(*analysis.Analysis)
	Save  func(*analysis.Analysis)
	Close func(*analysis.Analysis)
}

func NewAnalysisView(a *analysis.Analysis, actions AnalysisActions, d state.Dispatcher) *AnalysisView {
	v := &AnalysisView{
		Analysis:  a,
		Green:     NewMaskingPanel("Green channel", a.Green, d),
		Red:       NewMaskingPanel("Red channel", a.Red, d),
		AngleStep: widget.NewSlider(1, 90),
	}
	v.AngleStep.Step = 1

	angleLabel := widget.NewLabel("")
	v.bindings = append(v.bindings,
		BindFloatSlider(a.AngleStep, v.AngleStep, d),
		BindLabel(a.AngleStep, angleLabel, func() string {
			return fmt.Sprintf("Angle step: %g°", a.AngleStep.Get())
		}, d),
	)

	var layerViews []fyne.CanvasObject
	for i, layer := range a.Layers() {
		img := &canvas.Image{FillMode: canvas.ImageFillContain}
		img.SetMinSize(fyne.NewSize(240, 240))
		v.bindings = append(v.bindings, BindImage(layer.ColoredMask, img, d))
		report := NewReportTable(layer, d)
		v.Layers = append(v.Layers, img)
		v.Reports = append(v.Reports, report)
		layerViews = append(layerViews, layerCard(i, img, report))
	}

	v.CopyButton = widget.NewButton("Copy", func() { call(actions.Copy, a) })
	v.SaveButton = widget.NewButton("Save", func() { call(actions.Save, a) })
	v.CloseButton = widget.NewButton("Close", func() { call(actions.Close, a) })

	v.content = container.NewBorder(
		container.NewHBox(angleLabel, container.NewGridWrap(fyne.NewSize(200, 40), v.AngleStep)),
		container.NewHBox(v.CopyButton, v.SaveButton, v.CloseButton),
		nil, nil,
		container.NewGridWithColumns(2,
			v.Green.Content(), v.Red.Content(),
			layerViews[0], layerViews[1],
		),
	)
	return v
}

func layerCard(i int, img *canvas.Image, report *ReportTable) fyne.CanvasObject {
	report.SetColumnWidth(0, 140)
	report.SetColumnWidth(1, 120)
	return widget.NewCard(fmt.Sprintf("Cell layer %d", i+1), "",
		container.NewGridWithColumns(2, img, report))
}

func call(fn func(*analysis.Analysis), a *analysis.Analysis) {
	if fn != nil {
		fn(a)
	}
}

func (v *AnalysisView) Content() fyne.CanvasObject {
	return v.content
}

// Metrics returns the reports of both layers as shown.
func (v *AnalysisView) Metrics() [][]morphometry.Row {
	out := make([][]morphometry.Row, len(v.Reports))
	for i, r := range v.Reports {
		out[i] = r.Rows()
	}
	return out
}

func (v *AnalysisView) Unbind() {
	v.Green.Unbind()
	v.Red.Unbind()
	for _, r := range v.Reports {
		r.Unbind()
	}
	for _, b := range v.bindings {
		b.Unbind()
	}
}
