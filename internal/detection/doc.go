// Package detection finds corner keypoints with the FAST segment test.
//
// A pixel is a corner when a long enough contiguous arc of a discrete circle
// around it is uniformly brighter, or uniformly darker, than the pixel itself
// by more than a threshold. The detector is tuned for registration of
// photographs, scans and diagrams: it is cheap, deterministic and has no
// training step.
//
// # Pipeline
//
//  1. Ring construction: Ring(radius) traces the sampling circle once
//  2. Compass pre-test: the four cardinal ring samples reject most pixels early
//  3. Arc test: every circular window of MinArcLength samples is scored
//  4. Non-maximum suppression: weaker neighbours inside a square window drop out
//  5. Ranking: survivors are sorted by descending score and optionally capped
//  6. Orientation: each keypoint receives an intensity-centroid angle
//
// # Coordinate System
//
// Keypoint coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// Pixels closer than RingRadius to any border are never reported.
//
// # Scores
//
// A keypoint's score is the smallest absolute intensity difference within its
// strongest qualifying arc, so it is always greater than the configured
// threshold. Scores are comparable only between runs on the same channel
// with the same ring radius.
//
// # Determinism
//
// Detection has no random component. Ties in score are broken by raster
// order, both during suppression and in the final ordering, so identical
// input always produces an identical keypoint slice.
package detection
