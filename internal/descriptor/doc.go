// Package descriptor turns keypoints into comparable feature vectors.
//
// Two descriptor kinds are provided:
//
//   - Binary: BRIEF bit strings compared by Hamming distance
//   - Vector: normalised intensity patches compared by Euclidean distance
//
// Both implement Distance against their own kind, which is the contract the
// matching package relies on.
//
// # BRIEF
//
// A BRIEF pattern is a list of point pairs around the keypoint. Each pair
// contributes one bit: 1 when the first point is brighter than the second.
// The pattern is generated once from a seed, so descriptors computed by two
// BRIEF values with the same configuration are directly comparable.
//
// The steered variant pre-rotates the pattern into AngleBins orientations and
// picks the one closest below each keypoint's Angle, which makes the bits
// tolerant to in-plane rotation.
//
// # Borders
//
// Samples outside the image are clamped to the nearest edge pixel. Every
// keypoint therefore receives a descriptor, and output slices are always
// index-aligned with their keypoint input.
package descriptor
