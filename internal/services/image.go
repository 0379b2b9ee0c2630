package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vessel-morph/internal/logger"
	"vessel-morph/internal/opencv/conversion"
	"vessel-morph/internal/opencv/safe"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/tiff"
)

// ImageService decodes images into Mats and encodes them back to files.
type ImageService struct {
	log logger.Logger
}

func NewImageService(log logger.Logger) *ImageService {
	if log == nil {
		log = logger.NewNop()
	}
	return &ImageService{log: log}
}

// LoadImage reads and decodes the image at path into a BGR or grayscale
// Mat.
func (is *ImageService) LoadImage(ctx context.Context, path string) (*safe.Mat, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	return is.DecodeImage(ctx, f, filepath.Ext(path))
}

// DecodeImage decodes image data. Formats the Go decoders know (png,
// jpeg, tiff) go through image.Decode; anything else is handed to
// OpenCV.
func (is *ImageService) DecodeImage(ctx context.Context, r io.Reader, extension string) (*safe.Mat, error) {
	startTime := time.Now()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var mat *safe.Mat
	img, format, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		mat, err = conversion.ImageToMat(img)
	} else {
		format = is.determineFormat(strings.ToLower(extension), "")
		mat, err = decodeWithOpenCV(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	is.log.Debug("ImageService", "image decoded", map[string]interface{}{
		"format":   format,
		"width":    mat.Cols(),
		"height":   mat.Rows(),
		"channels": mat.Channels(),
		"bytes":    len(data),
		"duration": time.Since(startTime),
	})
	return mat, nil
}

func decodeWithOpenCV(data []byte) (*safe.Mat, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, err
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("unsupported image format")
	}
	return safe.Wrap(mat), nil
}

// SaveImage encodes mat into path; the format follows the extension.
func (is *ImageService) SaveImage(path string, mat *safe.Mat) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := is.SaveImageToWriter(f, mat, is.determineFormat(strings.ToLower(filepath.Ext(path)), "png")); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SaveImageToWriter encodes mat as format (png or jpeg) into writer.
func (is *ImageService) SaveImageToWriter(writer io.Writer, mat *safe.Mat, format string) error {
	img, err := conversion.MatToImage(mat)
	if err != nil {
		return fmt.Errorf("no image data to save: %w", err)
	}
	return is.saveToWriter(writer, img, format)
}

// FitImage returns a copy of mat whose longer side is at most limit.
func (is *ImageService) FitImage(mat *safe.Mat, limit int) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(mat, "image fitting"); err != nil {
		return nil, err
	}
	w, h := conversion.FitWithin(mat.Cols(), mat.Rows(), limit)
	return conversion.ResizeMat(mat, w, h, gocv.InterpolationArea)
}

func (is *ImageService) saveToWriter(writer io.Writer, img image.Image, format string) error {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return jpeg.Encode(writer, img, &jpeg.Options{Quality: 95})
	default:
		return png.Encode(writer, img)
	}
}

// determineFormat maps a lowercase extension to a format name, falling
// back to detectedFormat for unknown extensions.
func (is *ImageService) determineFormat(extension, detectedFormat string) string {
	switch extension {
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".png":
		return "png"
	case ".bmp":
		return "bmp"
	case ".tiff", ".tif":
		return "tiff"
	default:
		if detectedFormat != "" {
			return detectedFormat
		}
		return "png"
	}
}

// SupportedExtensions lists the file extensions offered when picking an
// image.
func (is *ImageService) SupportedExtensions() []string {
	return []string{".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp"}
}
