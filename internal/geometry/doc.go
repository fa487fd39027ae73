// Package geometry fits planar models to points and correspondences.
//
// # Models
//
//   - Affine: 2x3 transform (linear part plus translation)
//   - Conic: general second-degree curve, convertible to an Ellipse
//   - Homography: 3x3 projective transform; every Affine is one
//
// # Fitting
//
// FitConic and FitAffine are linear least-squares solvers built on gonum.
// Both normalise their input coordinates (centroid at the origin, mean
// distance sqrt(2)) before building the design matrix and undo that mapping
// on the result, so results do not degrade for points far from the origin.
//
// FitConicWith selects the conic estimator through ConicConfig: plain least
// squares, iterative reweighting, Taubin, renormalization or fundamental
// numerical scheme (FNS). The weighted methods account for how noise in each
// point propagates into the algebraic distance and are less biased on noisy
// arcs. FitConic uses least squares.
//
// FitHomography is the normalised direct linear transform over at least four
// correspondences.
//
// FitAffineRANSAC wraps FitAffine with seeded random sampling for
// correspondence sets that contain outliers, such as descriptor matches.
//
// # Errors
//
// Fits never fall back to a default model:
//   - ErrUnderdetermined: fewer observations than the model needs
//   - ErrDegenerateInput: observations that do not pin down a unique model
//   - ErrNotEllipse: a conic that has no real elliptical form
//   - ErrNoConsensus: RANSAC found too few inliers
//
// All functions are pure: identical input yields identical output.
package geometry
