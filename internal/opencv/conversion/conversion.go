package conversion

import (
	"fmt"
	"image"

	"vessel-morph/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// ConvertToGrayscale returns a single channel copy of src.
func ConvertToGrayscale(src *safe.Mat) (*safe.Mat, error) {
	return convertChannels(src, "grayscale conversion", gocv.MatTypeCV8UC1, 1, map[int]gocv.ColorConversionCode{
		3: gocv.ColorBGRToGray,
		4: gocv.ColorBGRAToGray,
	})
}

// ConvertToBGR returns a three channel copy of src, expanding grayscale
// and dropping alpha.
func ConvertToBGR(src *safe.Mat) (*safe.Mat, error) {
	return convertChannels(src, "BGR conversion", gocv.MatTypeCV8UC3, 3, map[int]gocv.ColorConversionCode{
		1: gocv.ColorGrayToBGR,
		4: gocv.ColorBGRAToBGR,
	})
}

// convertChannels clones src when it already has dstChannels channels,
// and otherwise applies the code registered for its channel count.
func convertChannels(src *safe.Mat, operation string, dstType gocv.MatType, dstChannels int, codes map[int]gocv.ColorConversionCode) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, operation); err != nil {
		return nil, err
	}
	if src.Channels() == dstChannels {
		return src.Clone()
	}

	code, ok := codes[src.Channels()]
	if !ok {
		return nil, fmt.Errorf("%s: unsupported channel count %d", operation, src.Channels())
	}

	dst, err := safe.NewMat(src.Rows(), src.Cols(), dstType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	srcMat, dstMat := src.GetMat(), dst.GetMat()
	gocv.CvtColor(srcMat, &dstMat, code)
	return dst, nil
}

// ExtractChannel copies one channel of a BGR image into a single channel Mat.
func ExtractChannel(src *safe.Mat, channel int) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "channel extraction"); err != nil {
		return nil, err
	}
	if err := safe.ValidateChannel(channel, src.Channels(), "channel extraction"); err != nil {
		return nil, err
	}

	planes := gocv.Split(src.GetMat())
	var picked gocv.Mat
	for i, p := range planes {
		if i == channel {
			picked = p
			continue
		}
		p.Close()
	}

	return safe.Wrap(picked), nil
}

// MatToImage converts a 1, 3 or 4 channel Mat into an image.Image.
func MatToImage(src *safe.Mat) (image.Image, error) {
	if err := safe.ValidateMatForOperation(src, "Mat to image conversion"); err != nil {
		return nil, err
	}

	switch src.Channels() {
	case 1, 3, 4:
		mat := src.GetMat()
		return mat.ToImage()
	default:
		return nil, fmt.Errorf("unsupported channel count: %d", src.Channels())
	}
}

// ImageToMat converts img into an owned Mat. Grayscale images
// stay single channel, everything else becomes BGR.
func ImageToMat(img image.Image) (*safe.Mat, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	var (
		mat gocv.Mat
		err error
	)
	switch typedImg := img.(type) {
	case *image.Gray:
		mat, err = gocv.ImageGrayToMatGray(typedImg)
	default:
		mat, err = gocv.ImageToMatRGB(img)
	}
	if err != nil {
		return nil, fmt.Errorf("image conversion failed: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("image conversion produced an empty Mat")
	}

	return safe.Wrap(mat), nil
}
