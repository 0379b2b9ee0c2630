package analysis

import (
	"context"
	"fmt"

	"vessel-morph/internal/logger"
	"vessel-morph/internal/models"
	"vessel-morph/internal/opencv/safe"
	"vessel-morph/internal/state"
	"vessel-morph/internal/storage"
)

// Keys of the saved state document.
const (
	analysisKey = "analysis"
	sessionKey  = "session"
)

// Snapshot collects the saved state: the analysis, the session it was
// cut from, the session image, the analysed crop and both masks. It reads
// the graph, so it runs on the goroutine that owns it. Images are copied;
// the snapshot may be written from any goroutine and must be closed.
func (a *Analysis) Snapshot(session state.Serializer, original *safe.Mat) (storage.Snapshot, error) {
	doc := make(map[string]any, 2)
	raw, err := a.Serialize()
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("serialize analysis: %w", err)
	}
	doc[analysisKey] = raw
	if session != nil {
		raw, err := session.Serialize()
		if err != nil {
			return storage.Snapshot{}, fmt.Errorf("serialize session: %w", err)
		}
		doc[sessionKey] = raw
	}

	images := map[string]*safe.Mat{
		storage.ImageFile:          original,
		storage.CellLayerImageFile: a.Source.Get(),
		storage.MaskFile(0):        a.Green.ProcessedMask.Get(),
		storage.MaskFile(1):        a.Red.ProcessedMask.Get(),
	}
	snap := storage.Snapshot{State: doc, Images: make(map[string]*safe.Mat, len(images))}
	for name, img := range images {
		if img.Empty() {
			continue
		}
		c, err := img.Clone()
		if err != nil {
			snap.Close()
			return storage.Snapshot{}, fmt.Errorf("copy %s: %w", name, err)
		}
		snap.Images[name] = c
	}
	return snap, nil
}

// Write stores snap at path, a directory or a .zip archive, and releases
// it. It does not touch the graph.
func (a *Analysis) Write(ctx context.Context, path string, snap storage.Snapshot) error {
	defer snap.Close()
	if err := storage.Write(ctx, path, snap); err != nil {
		return err
	}
	a.log.Info("Analysis", "result saved", map[string]interface{}{
		"path":   path,
		"images": len(snap.Images),
	})
	return nil
}

// Save snapshots and writes the result on the calling goroutine.
func (a *Analysis) Save(ctx context.Context, path string, session state.Serializer, original *safe.Mat) error {
	snap, err := a.Snapshot(session, original)
	if err != nil {
		return err
	}
	return a.Write(ctx, path, snap)
}

// Restore applies a saved result: the crop becomes the source and the
// saved parameters and contours are restored. The saved session state,
// if any, is returned for the caller to apply.
func (a *Analysis) Restore(loaded *storage.Loaded) (map[string]any, error) {
	raw, ok := loaded.State[analysisKey]
	if !ok {
		return nil, fmt.Errorf("%w: no %q entry", storage.ErrStateNotFound, analysisKey)
	}
	if img, ok := loaded.Images[storage.CellLayerImageFile]; ok {
		src, err := img.Clone()
		if err != nil {
			return nil, err
		}
		a.SetSource(src)
	}
	if err := a.Deserialize(raw); err != nil {
		return nil, fmt.Errorf("restore analysis: %w", err)
	}

	sessionState, _ := loaded.State[sessionKey].(map[string]any)
	return sessionState, nil
}

// Open loads a result saved by Save into a new analysis. The saved
// session state is returned alongside.
func Open(path string, config *models.ImageConfig, log logger.Logger) (*Analysis, map[string]any, error) {
	loaded, err := storage.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer loaded.Close()
	return FromLoaded(loaded, config, log)
}

// FromLoaded builds an analysis from an already opened result.
func FromLoaded(loaded *storage.Loaded, config *models.ImageConfig, log logger.Logger) (*Analysis, map[string]any, error) {
	img, ok := loaded.Images[storage.CellLayerImageFile]
	if !ok {
		return nil, nil, fmt.Errorf("%w: missing %s", storage.ErrStateNotFound, storage.CellLayerImageFile)
	}
	src, err := img.Clone()
	if err != nil {
		return nil, nil, err
	}

	a := New(src, 1, config, DefaultSettings(), log)
	sessionState, err := a.Restore(loaded)
	if err != nil {
		return nil, nil, err
	}
	return a, sessionState, nil
}
