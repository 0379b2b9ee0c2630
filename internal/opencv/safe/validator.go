package safe

import (
	"fmt"

	"gocv.io/x/gocv"
)

// maxSide bounds either dimension of a Mat created by this module.
const maxSide = 32768

// ValidateMatForOperation rejects nil, closed and empty Mats. The
// operation name ends up in the error.
func ValidateMatForOperation(mat *Mat, operation string) error {
	switch {
	case mat == nil:
		return fmt.Errorf("%s: Mat is nil", operation)
	case !mat.IsValid():
		return fmt.Errorf("%s: Mat is closed", operation)
	case mat.Empty():
		return fmt.Errorf("%s: Mat is empty", operation)
	}
	return nil
}

// ValidateMask checks that mat is a single channel 8-bit image.
func ValidateMask(mat *Mat, operation string) error {
	if err := ValidateMatForOperation(mat, operation); err != nil {
		return err
	}
	if t := mat.Type(); t != gocv.MatTypeCV8UC1 {
		return fmt.Errorf("%s: mask must be CV_8UC1, got type %d", operation, int(t))
	}
	return nil
}

func ValidateDimensions(width, height int, operation string) error {
	if width <= 0 || height <= 0 || width > maxSide || height > maxSide {
		return fmt.Errorf("%s: dimensions %dx%d outside 1..%d", operation, width, height, maxSide)
	}
	return nil
}

func ValidateChannel(channel, channels int, operation string) error {
	if channel < 0 || channel >= channels {
		return fmt.Errorf("%s: channel %d out of range [0, %d)", operation, channel, channels)
	}
	return nil
}
