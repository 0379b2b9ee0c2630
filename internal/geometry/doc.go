// Package geometry holds the measurement algorithms that operate on
// binary masks and point sequences: radial contour sampling, polygon
// perimeter, inner/outer thickness, ring masks and overlap counting.
//
// Masks are single channel 8-bit Mats where any nonzero pixel is
// foreground. Degenerate input (empty masks, contours with fewer than
// three points) yields zero or empty results instead of errors.
package geometry
