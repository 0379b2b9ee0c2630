// Package storage persists a serialized state together with its images,
// either as files in a directory or as entries of a zip archive.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"vessel-morph/internal/opencv/safe"

	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

// Fixed entry names.
const (
	StateFile          = "app_state.json"
	ImageFile          = "image.png"
	CellLayerImageFile = "cell_layer_image.png"
)

var (
	ErrDirectoryNotFound = errors.New("directory not found")
	ErrStateNotFound     = errors.New("state file not found")
)

// MaskFile names the i-th mask image.
func MaskFile(i int) string {
	return fmt.Sprintf("mask_%d.png", i)
}

// Snapshot is what gets written: the serialized state and named images.
// Nil or empty images are skipped.
type Snapshot struct {
	State  any
	Images map[string]*safe.Mat
}

// Close releases the images of a snapshot that owns copies of them.
func (s Snapshot) Close() {
	for _, img := range s.Images {
		img.Close()
	}
}

// Loaded is what gets read back. State is the decoded JSON document.
type Loaded struct {
	State  map[string]any
	Images map[string]*safe.Mat
}

// Close releases all loaded images.
func (l *Loaded) Close() {
	for _, img := range l.Images {
		img.Close()
	}
}

// encode renders every entry of s in memory. Images are encoded in
// parallel; the result is keyed by entry name.
func encode(ctx context.Context, s Snapshot) (map[string][]byte, error) {
	doc, err := json.MarshalIndent(s.State, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", StateFile, err)
	}

	names := make([]string, 0, len(s.Images))
	for name, img := range s.Images {
		if img.Empty() {
			continue
		}
		if !strings.HasSuffix(name, ".png") {
			return nil, fmt.Errorf("encode %s: only png entries are supported", name)
		}
		names = append(names, name)
	}
	slices.Sort(names)

	encoded := make([][]byte, len(names))
	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		img := s.Images[name]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := encodePNG(img)
			if err != nil {
				return fmt.Errorf("encode %s: %w", name, err)
			}
			encoded[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make(map[string][]byte, len(names)+1)
	entries[StateFile] = doc
	for i, name := range names {
		entries[name] = encoded[i]
	}
	return entries, nil
}

func encodePNG(img *safe.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img.GetMat())
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	return slices.Clone(buf.GetBytes()), nil
}

// decode parses entries produced by encode.
func decode(entries map[string][]byte) (*Loaded, error) {
	doc, ok := entries[StateFile]
	if !ok {
		return nil, ErrStateNotFound
	}
	out := &Loaded{Images: make(map[string]*safe.Mat)}
	if err := json.Unmarshal(doc, &out.State); err != nil {
		return nil, fmt.Errorf("decode %s: %w", StateFile, err)
	}

	for _, name := range slices.Sorted(maps.Keys(entries)) {
		if !strings.HasSuffix(name, ".png") {
			continue
		}
		mat, err := gocv.IMDecode(entries[name], gocv.IMReadUnchanged)
		if err != nil || mat.Empty() {
			mat.Close()
			out.Close()
			return nil, fmt.Errorf("decode %s: invalid png", name)
		}
		out.Images[name] = safe.Wrap(mat)
	}
	return out, nil
}

// IsArchive reports whether path names a zip archive rather than a
// directory.
func IsArchive(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".zip")
}

// Write saves s as an archive or into a directory depending on path.
func Write(ctx context.Context, path string, s Snapshot) error {
	if IsArchive(path) {
		return SaveArchive(ctx, path, s)
	}
	return Save(ctx, path, s)
}

// Open reads what Write saved at path.
func Open(path string) (*Loaded, error) {
	if IsArchive(path) {
		return LoadArchive(path)
	}
	return Load(path)
}
