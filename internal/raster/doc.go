// Package raster provides typed, addressable 2D pixel storage.
//
// A Buffer holds interleaved samples in a single contiguous slice. Rows may be
// padded: Stride is the number of samples between the start of one row and the
// start of the next, and is always at least Width*Channels.
//
// # Coordinate System
//
// Coordinates follow the image convention used across this module:
//   - (0,0) is the top-left pixel
//   - X increases rightward, Y increases downward
//   - Channel c addresses the c-th interleaved sample of a pixel
//
// # Access Paths
//
// Every accessor comes in two tiers:
//
//   - Checked (At, Set, Row): validate coordinates and return ErrOutOfBounds.
//   - Unchecked (AtUnchecked, SetUnchecked): compute the offset directly.
//
// The unchecked tier exists for inner loops. Callers must validate the whole
// range they intend to touch once, outside the loop. Out-of-range unchecked
// access either panics on the underlying slice or silently reads a sample from
// a neighbouring row; neither is detected.
//
// # Thread Safety
//
// A Buffer has no internal locking. Concurrent reads are safe; concurrent
// writes must target disjoint pixels.
package raster
