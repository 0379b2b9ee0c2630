package storage

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"vessel-morph/internal/opencv/safe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func testSnapshot(t *testing.T) Snapshot {
	t.Helper()
	img, err := safe.NewMat(20, 30, gocv.MatTypeCV8UC3)
	require.NoError(t, err)
	t.Cleanup(img.Close)
	m := img.GetMat()
	gocv.Rectangle(&m, image.Rect(5, 5, 10, 10), color.RGBA{R: 200, G: 10, B: 20}, -1)

	mask, err := safe.NewMat(20, 30, gocv.MatTypeCV8UC1)
	require.NoError(t, err)
	t.Cleanup(mask.Close)
	mm := mask.GetMat()
	gocv.Rectangle(&mm, image.Rect(0, 0, 15, 20), color.RGBA{R: 255}, -1)

	return Snapshot{
		State: map[string]any{"threshold": 120, "unit": "μm"},
		Images: map[string]*safe.Mat{
			ImageFile:   img,
			MaskFile(0): mask,
			MaskFile(1): nil,
		},
	}
}

func assertLoaded(t *testing.T, loaded *Loaded) {
	t.Helper()
	assert.Equal(t, map[string]any{"threshold": 120.0, "unit": "μm"}, loaded.State)
	require.Contains(t, loaded.Images, ImageFile)
	require.Contains(t, loaded.Images, MaskFile(0))
	assert.NotContains(t, loaded.Images, MaskFile(1))

	img := loaded.Images[ImageFile]
	assert.Equal(t, image.Pt(30, 20), img.Size())
	assert.Equal(t, 3, img.Channels())
	red, err := img.GetUCharAt3(7, 7, 2)
	require.NoError(t, err)
	assert.Equal(t, uint8(200), red)

	mask := loaded.Images[MaskFile(0)]
	assert.Equal(t, 1, mask.Channels())
	assert.Equal(t, 15*20, gocv.CountNonZero(mask.GetMat()))
}

func TestDirectoryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(context.Background(), dir, testSnapshot(t)))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, f := range files {
		names = append(names, f.Name())
	}
	assert.ElementsMatch(t, []string{StateFile, ImageFile, "mask_0.png"}, names, "staging directory is removed")

	loaded, err := Load(dir)
	require.NoError(t, err)
	defer loaded.Close()
	assertLoaded(t, loaded)
}

func TestArchiveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.zip")
	require.NoError(t, SaveArchive(context.Background(), path, testSnapshot(t)))
	assert.NoFileExists(t, path+".part")

	loaded, err := LoadArchive(path)
	require.NoError(t, err)
	defer loaded.Close()
	assertLoaded(t, loaded)
}

func TestSaveMissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")

	err := Save(context.Background(), missing, testSnapshot(t))
	assert.ErrorIs(t, err, ErrDirectoryNotFound)

	err = SaveArchive(context.Background(), filepath.Join(missing, "a.zip"), testSnapshot(t))
	assert.ErrorIs(t, err, ErrDirectoryNotFound)
}

func TestLoadWithoutState(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrStateNotFound)

	_, err = LoadArchive(filepath.Join(dir, "none.zip"))
	assert.ErrorIs(t, err, ErrStateNotFound)

	_, err = Load(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrDirectoryNotFound)
}

func TestSaveFailsWithoutPartialWrite(t *testing.T) {
	dir := t.TempDir()
	s := testSnapshot(t)
	s.State = map[string]any{"bad": func() {}}

	require.Error(t, Save(context.Background(), dir, s))
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestSaveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	assert.ErrorIs(t, Save(ctx, dir, testSnapshot(t)), context.Canceled)
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestWriteAndOpenChooseForm(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "Result.ZIP")
	assert.True(t, IsArchive(archive))
	assert.False(t, IsArchive(dir))

	require.NoError(t, Write(context.Background(), archive, testSnapshot(t)))
	assert.FileExists(t, archive)
	loaded, err := Open(archive)
	require.NoError(t, err)
	defer loaded.Close()
	assertLoaded(t, loaded)

	out := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(out, 0o755))
	require.NoError(t, Write(context.Background(), out, testSnapshot(t)))
	assert.FileExists(t, filepath.Join(out, StateFile))
}
