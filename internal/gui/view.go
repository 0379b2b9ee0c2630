package gui

import (
	"fmt"
	"image"
	"strings"

	"vessel-morph/internal/models"
	"vessel-morph/internal/session"
	"vessel-morph/internal/state"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// MainView shows the session image with its regions next to the region
// list. Selecting, relabelling and removing regions act on the session
// directly; everything that opens windows or dialogs goes through the
// On* callbacks.
type MainView struct {
	Canvas   *ImageCanvas
	Regions  *widget.List
	Category *widget.Select
	Remove   *widget.Button
	Analyze  *widget.Button
	Detect   *widget.Button
	Status   *widget.Label
	Summary  *widget.Label

	OnAnalyze func()
	OnDetect  func()

	session  *session.Session
	content  fyne.CanvasObject
	bindings []*Binding
}

func NewMainView(sess *session.Session, categories []string, d state.Dispatcher) *MainView {
	v := &MainView{
		Canvas:  NewImageCanvas(sess.RegionsImage.Value, d),
		Status:  widget.NewLabel("Open an image to start"),
		Summary: widget.NewLabel(""),
		session: sess,
	}
	v.Canvas.OnTapped = func(pt image.Point) { sess.AddRegionAt(pt) }
	v.Canvas.OnTappedSecondary = v.addBackgroundPoint

	v.Regions = widget.NewList(
		func() int { return sess.Regions.Len() },
		func() fyne.CanvasObject { return widget.NewLabel("00. Category 0 (predicting)") },
		func(id widget.ListItemID, o fyne.CanvasObject) {
			o.(*widget.Label).SetText(v.regionText(id))
		},
	)
	v.Regions.OnSelected = func(id widget.ListItemID) { _ = sess.Select(id) }

	v.Category = widget.NewSelect(categories, func(label string) {
		if r, ok := sess.Selected(); ok {
			r.Label.Set(label)
		}
	})
	v.Category.PlaceHolder = "Category"

	v.Remove = widget.NewButton("Remove", func() {
		if i := sess.SelectedIndex.Get(); i != session.NoSelection {
			_ = sess.RemoveRegion(i)
		}
	})
	v.Analyze = widget.NewButton("Analyze", func() {
		if v.OnAnalyze != nil {
			v.OnAnalyze()
		}
	})
	v.Detect = widget.NewButton("Detect all", func() {
		if v.OnDetect != nil {
			v.OnDetect()
		}
	})

	v.bindings = []*Binding{
		bind(sess.Regions, d, v.refreshRegions, state.ElementWise()),
		bind(sess.SelectedIndex, d, v.refreshSelection),
	}

	side := container.NewBorder(
		container.NewVBox(v.Category, container.NewGridWithColumns(3, v.Analyze, v.Detect, v.Remove)),
		v.Summary, nil, nil,
		v.Regions,
	)
	split := container.NewHSplit(v.Canvas, side)
	split.Offset = 0.75
	v.content = container.NewBorder(nil, v.Status, nil, nil, split)
	return v
}

func (v *MainView) regionText(i int) string {
	r, err := v.session.Regions.At(i)
	if err != nil {
		return ""
	}
	text := fmt.Sprintf("%d. %s", i+1, r.Label.Get())
	switch {
	case r.Status.Get() != "":
		text += " (" + r.Status.Get() + ")"
	case r.Contour.Len() == 0:
		text += " (predicting)"
	}
	return text
}

func (v *MainView) refreshRegions() {
	v.Regions.Refresh()
	v.Summary.SetText(summaryText(v.session))
	v.refreshSelection()
}

func (v *MainView) refreshSelection() {
	r, ok := v.session.Selected()
	if !ok {
		v.Regions.UnselectAll()
		v.Category.ClearSelected()
		return
	}
	v.Regions.Select(v.session.SelectedIndex.Get())
	v.Category.SetSelected(r.Label.Get())
}

// A secondary tap excludes the point from the selected region.
func (v *MainView) addBackgroundPoint(pt image.Point) {
	r, ok := v.session.Selected()
	if !ok {
		return
	}
	r.BackgroundPoints.Append(models.NewPoint(pt.X, pt.Y))
}

func summaryText(sess *session.Session) string {
	var lines []string
	for _, s := range session.Summarize(sess.RegionStats()) {
		lines = append(lines, fmt.Sprintf("%s: %d, area %.1f ± %.1f, circularity %.2f",
			s.Label, s.Count, s.MeanArea, s.StdArea, s.MeanCircularity))
	}
	return strings.Join(lines, "\n")
}

// SetStatus shows msg below the image. It must run on the fyne goroutine.
func (v *MainView) SetStatus(msg string) {
	v.Status.SetText(msg)
}

func (v *MainView) Content() fyne.CanvasObject {
	return v.content
}

func (v *MainView) Unbind() {
	v.Canvas.Unbind()
	for _, b := range v.bindings {
		b.Unbind()
	}
}
