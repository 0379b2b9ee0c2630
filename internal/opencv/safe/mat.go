package safe

import (
	"fmt"
	"image"
	"runtime"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// Mat owns a gocv.Mat. Observables hold *Mat so that identity can be
// compared by pointer, and a finalizer releases the native buffer of
// images that drop out of the graph without an explicit Close.
// A nil *Mat behaves as an empty image.
type Mat struct {
	mat    gocv.Mat
	closed atomic.Bool
	mu     sync.RWMutex
	id     uint64
}

var lastID atomic.Uint64

// NewMat allocates a zero-filled Mat.
func NewMat(rows, cols int, matType gocv.MatType) (*Mat, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", cols, rows)
	}

	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, matType)
	if m.Empty() {
		m.Close()
		return nil, fmt.Errorf("allocating %dx%d Mat failed", cols, rows)
	}
	return Wrap(m), nil
}

// Wrap takes ownership of m.
func Wrap(m gocv.Mat) *Mat {
	sm := &Mat{mat: m, id: lastID.Add(1)}
	runtime.SetFinalizer(sm, (*Mat).Close)
	return sm
}

// NewMatFromMat copies src into a new owned Mat.
func NewMatFromMat(src gocv.Mat) (*Mat, error) {
	if src.Empty() {
		return nil, fmt.Errorf("source Mat is empty")
	}
	c := src.Clone()
	if c.Empty() {
		c.Close()
		return nil, fmt.Errorf("cloning Mat failed")
	}
	return Wrap(c), nil
}

func (sm *Mat) IsValid() bool {
	return sm != nil && !sm.closed.Load()
}

// read runs fn under the read lock, or returns zero for a nil or closed
// Mat.
func read[T any](sm *Mat, zero T, fn func(m *gocv.Mat) T) T {
	if !sm.IsValid() {
		return zero
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return fn(&sm.mat)
}

func (sm *Mat) Empty() bool {
	return read(sm, true, (*gocv.Mat).Empty)
}

func (sm *Mat) Rows() int {
	return read(sm, 0, (*gocv.Mat).Rows)
}

func (sm *Mat) Cols() int {
	return read(sm, 0, (*gocv.Mat).Cols)
}

func (sm *Mat) Channels() int {
	return read(sm, 0, (*gocv.Mat).Channels)
}

func (sm *Mat) Type() gocv.MatType {
	return read(sm, gocv.MatTypeCV8UC1, (*gocv.Mat).Type)
}

// Size returns the width and height as a point.
func (sm *Mat) Size() image.Point {
	return read(sm, image.Point{}, func(m *gocv.Mat) image.Point {
		return image.Pt(m.Cols(), m.Rows())
	})
}

func (sm *Mat) Clone() (*Mat, error) {
	if !sm.IsValid() {
		return nil, fmt.Errorf("cannot clone a closed Mat")
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return NewMatFromMat(sm.mat)
}

// GetMat exposes the underlying Mat. It stays owned by sm; callers
// must not close it. An invalid Mat yields an empty one.
func (sm *Mat) GetMat() gocv.Mat {
	if !sm.IsValid() {
		return gocv.NewMat()
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.mat
}

func (sm *Mat) ID() uint64 {
	if sm == nil {
		return 0
	}
	return sm.id
}

// Close releases the native buffer. It is safe to call more than once.
func (sm *Mat) Close() {
	if sm == nil || !sm.closed.CompareAndSwap(false, true) {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.mat.Empty() {
		sm.mat.Close()
	}
	runtime.SetFinalizer(sm, nil)
}

// CloseReplaced closes old unless it is still the current Mat. It fits
// state.Computed.ReleaseWith.
func CloseReplaced(old, current *Mat) {
	if old != current {
		old.Close()
	}
}

// GetUCharAt reads the first channel of pixel (col, row).
func (sm *Mat) GetUCharAt(row, col int) (uint8, error) {
	return sm.GetUCharAt3(row, col, 0)
}

func (sm *Mat) GetUCharAt3(row, col, channel int) (uint8, error) {
	if !sm.IsValid() {
		return 0, fmt.Errorf("Mat is closed")
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if row < 0 || row >= sm.mat.Rows() || col < 0 || col >= sm.mat.Cols() {
		return 0, fmt.Errorf("pixel (%d,%d) out of bounds", col, row)
	}
	if channel < 0 || channel >= sm.mat.Channels() {
		return 0, fmt.Errorf("channel %d out of bounds", channel)
	}
	return sm.mat.GetUCharAt3(row, col, channel), nil
}
