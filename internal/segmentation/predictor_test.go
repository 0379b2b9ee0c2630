package segmentation

import (
	"context"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vessel-morph/internal/logger"
	"vessel-morph/internal/opencv/safe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type fakeModel struct {
	mu        sync.Mutex
	delay     time.Duration
	scores    []float64
	images    int
	multimask []bool
	size      image.Point
	loaded    string
}

func (f *fakeModel) SetImage(_ context.Context, img *safe.Mat) error {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images++
	f.size = img.Size()
	return nil
}

// Predict returns one mask per score, each a 21x21 square centered on
// the first prompt point.
func (f *fakeModel) Predict(_ context.Context, p Prompt, multimask bool) ([]Mask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.multimask = append(f.multimask, multimask)

	var masks []Mask
	for _, s := range f.scores {
		m, err := safe.NewMat(f.size.Y, f.size.X, gocv.MatTypeCV8UC1)
		if err != nil {
			return nil, err
		}
		if len(p.Points) > 0 {
			mat := m.GetMat()
			c := p.Points[0]
			gocv.Rectangle(&mat, image.Rect(c.X-10, c.Y-10, c.X+10, c.Y+10), color.RGBA{255, 255, 255, 0}, -1)
		}
		masks = append(masks, Mask{Mat: m, Score: s})
	}
	return masks, nil
}

type loadingModel struct {
	fakeModel
}

func (l *loadingModel) Load(_ context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = path
	return nil
}

func filled(t *testing.T, rows, cols int, v float64) *safe.Mat {
	t.Helper()
	m, err := safe.NewMat(rows, cols, gocv.MatTypeCV8UC3)
	require.NoError(t, err)
	mat := m.GetMat()
	mat.SetTo(gocv.NewScalar(v, v, v, 0))
	t.Cleanup(m.Close)
	return m
}

func newTestPredictor(model Model) *Predictor {
	p := NewPredictor(model, Options{}, logger.NewNop())
	p.Start(context.Background())
	return p
}

func TestPromptMultimask(t *testing.T) {
	box := image.Rect(0, 0, 10, 10)

	assert.True(t, PointPrompt(image.Pt(1, 1)).Multimask())
	assert.False(t, Prompt{Points: []image.Point{{1, 1}, {2, 2}}, Labels: []int{1, 0}}.Multimask())
	assert.False(t, Prompt{Points: []image.Point{{1, 1}}, Labels: []int{1}, Box: &box}.Multimask())
	assert.False(t, Prompt{Box: &box}.Multimask())

	assert.True(t, Prompt{}.Empty())
	assert.False(t, Prompt{Box: &box}.Empty())
}

func TestPromptEqual(t *testing.T) {
	a, b := image.Rect(0, 0, 5, 5), image.Rect(0, 0, 5, 5)
	assert.True(t, Prompt{Box: &a}.Equal(Prompt{Box: &b}))
	assert.False(t, Prompt{Box: &a}.Equal(Prompt{}))
	assert.True(t, PointPrompt(image.Pt(3, 4)).Equal(PointPrompt(image.Pt(3, 4))))
	assert.False(t, PointPrompt(image.Pt(3, 4)).Equal(PointPrompt(image.Pt(4, 3))))
}

func TestPredictWithoutEmbedding(t *testing.T) {
	p := newTestPredictor(&fakeModel{scores: []float64{1}})
	defer p.Shutdown()

	_, err := p.Predict(context.Background(), PointPrompt(image.Pt(5, 5)))
	assert.ErrorIs(t, err, ErrNoEmbedding)
}

func TestBlankImageClearsEmbedding(t *testing.T) {
	model := &fakeModel{scores: []float64{1}}
	p := newTestPredictor(model)
	defer p.Shutdown()

	require.NoError(t, p.SetImage(filled(t, 50, 50, 128)))
	_, err := p.Predict(context.Background(), PointPrompt(image.Pt(25, 25)))
	require.NoError(t, err)

	require.NoError(t, p.SetImage(filled(t, 50, 50, 0)))
	_, err = p.Predict(context.Background(), PointPrompt(image.Pt(25, 25)))
	assert.ErrorIs(t, err, ErrNoEmbedding)
	assert.Equal(t, 1, model.images)
}

func TestPredictWaitsForEmbeddingAndPicksBestScore(t *testing.T) {
	model := &fakeModel{delay: 50 * time.Millisecond, scores: []float64{0.2, 0.9, 0.5}}
	p := newTestPredictor(model)
	defer p.Shutdown()

	require.NoError(t, p.SetImage(filled(t, 100, 100, 50)))
	mask, err := p.Predict(context.Background(), PointPrompt(image.Pt(50, 50)))
	require.NoError(t, err)
	defer mask.Mat.Close()

	assert.Equal(t, 0.9, mask.Score)
	assert.Equal(t, 1, model.images)
	assert.Equal(t, []bool{true}, model.multimask)

	box := image.Rect(10, 10, 90, 90)
	second, err := p.Predict(context.Background(), Prompt{Points: []image.Point{{50, 50}}, Labels: []int{Foreground}, Box: &box})
	require.NoError(t, err)
	second.Mat.Close()
	assert.Equal(t, []bool{true, false}, model.multimask)
}

func TestPredictAsContour(t *testing.T) {
	p := newTestPredictor(&fakeModel{scores: []float64{1}})
	defer p.Shutdown()

	require.NoError(t, p.SetImage(filled(t, 100, 100, 50)))
	cnt, err := p.PredictAsContour(context.Background(), PointPrompt(image.Pt(40, 60)))
	require.NoError(t, err)

	require.NotEmpty(t, cnt)
	r := image.Rect(cnt[0].X, cnt[0].Y, cnt[0].X, cnt[0].Y)
	for _, pt := range cnt {
		r = r.Union(image.Rect(pt.X, pt.Y, pt.X+1, pt.Y+1))
	}
	assert.Equal(t, image.Rect(30, 50, 51, 71), r)
}

func TestPredictAfterShutdown(t *testing.T) {
	p := newTestPredictor(&fakeModel{scores: []float64{1}})
	p.Shutdown()

	_, err := p.Predict(context.Background(), PointPrompt(image.Pt(1, 1)))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.SetImage(filled(t, 10, 10, 1)), ErrClosed)
}

func TestStartFetchesAndLoadsWeights(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("weights"))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "checkpoints", "model.pt")
	model := &loadingModel{}
	p := NewPredictor(model, Options{WeightsURL: server.URL, WeightsPath: path}, logger.NewNop())
	p.Start(context.Background())
	defer p.Shutdown()

	select {
	case <-p.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("predictor did not become ready")
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))
	assert.Equal(t, path, model.loaded)
}

func TestFetchWeights(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("data"))
	}))
	defer server.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "w.pt")
	log := logger.NewNop()

	require.NoError(t, FetchWeights(context.Background(), server.URL, path, log))
	require.NoError(t, FetchWeights(context.Background(), server.URL, path, log))
	assert.Equal(t, 1, calls)

	missing := filepath.Join(dir, "other.pt")
	assert.Error(t, FetchWeights(context.Background(), server.URL+"/missing", missing, log))
	assert.NoFileExists(t, missing)
	assert.NoFileExists(t, missing+".part")

	assert.Error(t, FetchWeights(context.Background(), "", missing, log))
}
