package common

import "cmp"

// CeilDiv returns the smallest integer n such that n*divisor >= value.
//
// Parameters:
//   - value: the dividend
//   - divisor: the divisor, must be non-zero
//
// Returns:
//   - uint32: value / divisor rounded towards positive infinity
func CeilDiv(value, divisor uint32) uint32 {
	return (value + divisor - 1) / divisor
}

// DispatchSize computes the 2-D workgroup grid needed to cover a width x height image with
// square tiles of the given edge length. The Z dimension is always 1.
//
// Parameters:
//   - width: the image width in pixels
//   - height: the image height in pixels
//   - tile: the workgroup edge length declared by the kernel
//
// Returns:
//   - [3]uint32: the workgroup counts in x, y and z
func DispatchSize(width, height, tile uint32) [3]uint32 {
	return [3]uint32{CeilDiv(width, tile), CeilDiv(height, tile), 1}
}

// Clamp limits v to the closed range [lo, hi].
func Clamp[T cmp.Ordered](v, lo, hi T) T {
	return min(max(v, lo), hi)
}
