// Package warp resamples image buffers through affine transforms.
//
// Resampling is inverse-mapped: each destination pixel looks up its source
// position, so the output has no holes regardless of scale. The transform
// passed in is the forward map (source to destination) as produced by the
// geometry fitters; Resample inverts it once up front.
//
// # Edge Policies
//
//   - EdgeClamp: sample the nearest edge pixel
//   - EdgeConstant: write a fixed fill value
//   - EdgeSkip: leave the destination pixel untouched (zero)
//
// For bilinear interpolation a position counts as inside when it lies within
// [0, Width-1] x [0, Height-1], so all four neighbours exist.
//
// # Concurrency
//
// Destination rows are independent. With Config.Workers above one, rows are
// split into contiguous bands that run on separate goroutines.
package warp
