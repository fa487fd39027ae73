// Package matching pairs descriptors from two images by nearest-neighbour
// search with Lowe's ratio test.
//
// Match is generic over any descriptor type that can measure its distance to
// another value of the same type, so Hamming-compared bit strings and
// Euclidean-compared vectors share one implementation.
//
// The search is brute force, O(n*m) distance evaluations. That is fast enough
// for the hundreds to low thousands of keypoints a single image pair yields.
package matching
