package segmentation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"vessel-morph/internal/logger"
)

// FetchWeights downloads url to path unless path already exists. The
// download is written next to path and renamed when complete.
func FetchWeights(ctx context.Context, url, path string, log logger.Logger) error {
	if path == "" {
		return errors.New("no weights path configured")
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if url == "" {
		return fmt.Errorf("weights file %s missing and no download URL configured", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create weights directory: %w", err)
	}

	log.Info("Predictor", "downloading model weights", map[string]interface{}{
		"url":  url,
		"path": path,
	})
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid weights URL: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("weights download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weights download failed: %s", resp.Status)
	}

	part := path + ".part"
	file, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("failed to create weights file: %w", err)
	}

	n, err := io.Copy(file, resp.Body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(part)
		return fmt.Errorf("weights download interrupted: %w", err)
	}

	if err := os.Rename(part, path); err != nil {
		os.Remove(part)
		return fmt.Errorf("failed to move weights into place: %w", err)
	}

	log.Info("Predictor", "model weights downloaded", map[string]interface{}{
		"bytes":    n,
		"duration": time.Since(start).String(),
	})
	return nil
}
