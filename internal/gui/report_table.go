package gui

import (
	"vessel-morph/internal/morphometry"
	"vessel-morph/internal/state"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"
)

// ReportTable lists the measurements of one cell layer as name and value
// columns.
type ReportTable struct {
	*widget.Table

	rows    []morphometry.Row
	binding *Binding
}

func NewReportTable(layer *morphometry.CellLayer, d state.Dispatcher) *ReportTable {
	t := &ReportTable{}
	t.Table = widget.NewTable(
		func() (int, int) { return len(t.rows), 2 },
		func() fyne.CanvasObject { return widget.NewLabel("Inner Length 0000.00") },
		func(id widget.TableCellID, o fyne.CanvasObject) {
			label := o.(*widget.Label)
			if id.Row >= len(t.rows) {
				label.SetText("")
				return
			}
			row := t.rows[id.Row]
			if id.Col == 0 {
				label.SetText(row.Key)
			} else {
				label.SetText(row.Value)
			}
		},
	)
	t.binding = bind(layer.Report, d, func() {
		t.rows = layer.Report.Get()
		t.Refresh()
	})
	return t
}

// Rows returns what the table currently shows.
func (t *ReportTable) Rows() []morphometry.Row {
	return t.rows
}

func (t *ReportTable) Unbind() {
	t.binding.Unbind()
}
