package conversion

import (
	"fmt"
	"image"

	"vessel-morph/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// ResizeMat resizes Mat to new dimensions using specified interpolation
func ResizeMat(src *safe.Mat, newWidth, newHeight int, interpolation gocv.InterpolationFlags) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "Mat resizing"); err != nil {
		return nil, err
	}

	if err := safe.ValidateDimensions(newWidth, newHeight, "Mat resizing"); err != nil {
		return nil, err
	}

	if src.Cols() == newWidth && src.Rows() == newHeight {
		return src.Clone()
	}

	dst, err := safe.NewMat(newHeight, newWidth, src.Type())
	if err != nil {
		return nil, err
	}

	srcMat := src.GetMat()
	dstMat := dst.GetMat()

	gocv.Resize(srcMat, &dstMat, image.Pt(newWidth, newHeight), 0, 0, interpolation)

	return dst, nil
}

// FitWithin scales width and height down so that the longer side is at
// most limit. Sizes already inside the limit are returned unchanged.
func FitWithin(width, height, limit int) (int, int) {
	if limit <= 0 || (width <= limit && height <= limit) {
		return width, height
	}

	if width >= height {
		return limit, max(1, height*limit/width)
	}
	return max(1, width*limit/height), limit
}

// CropMat copies the rectangle r of src into a new Mat.
func CropMat(src *safe.Mat, r image.Rectangle) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "Mat cropping"); err != nil {
		return nil, err
	}

	if r.Empty() || !r.In(image.Rect(0, 0, src.Cols(), src.Rows())) {
		return nil, fmt.Errorf("crop region %v exceeds Mat bounds %dx%d", r, src.Cols(), src.Rows())
	}

	srcMat := src.GetMat()
	region := srcMat.Region(r)
	defer region.Close()

	return safe.NewMatFromMat(region)
}
