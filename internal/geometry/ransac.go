package geometry

import (
	"errors"
	"fmt"
	"math/rand"
)

// RANSACConfig controls robust affine estimation.
type RANSACConfig struct {
	// Iterations is the number of random minimal samples drawn.
	Iterations int `json:"iterations"`

	// Threshold is the reprojection distance below which a pair counts as an
	// inlier.
	Threshold float64 `json:"threshold"`

	// MinInliers is the smallest consensus set accepted. Values below 3 are
	// raised to 3.
	MinInliers int `json:"min_inliers"`

	// Seed drives sampling; equal seeds give equal results.
	Seed int64 `json:"seed"`
}

// DefaultRANSACConfig returns settings suited to pixel-space keypoint
// correspondences.
func DefaultRANSACConfig() RANSACConfig {
	return RANSACConfig{
		Iterations: 2000,
		Threshold:  3.0,
		MinInliers: 3,
		Seed:       1,
	}
}

// FitAffineRANSAC estimates an affine transform from pairs contaminated by
// outliers.
//
// Each iteration fits an exact transform to 3 randomly chosen pairs and
// counts the pairs it maps within Threshold. The largest consensus set wins,
// earlier samples winning ties, and the transform is refitted by least
// squares over those inliers.
//
// Returns the transform and the ascending indices of its inliers.
func FitAffineRANSAC(pairs []PointPair, cfg RANSACConfig) (Affine, []int, error) {
	n := len(pairs)
	if n < 3 {
		return Affine{}, nil, fmt.Errorf("%w: affine needs 3 pairs, got %d", ErrUnderdetermined, n)
	}
	if cfg.Iterations <= 0 || !(cfg.Threshold > 0) {
		return Affine{}, nil, fmt.Errorf("geometry: invalid RANSAC config: %d iterations, threshold %v", cfg.Iterations, cfg.Threshold)
	}
	minInliers := max(cfg.MinInliers, 3)

	rng := rand.New(rand.NewSource(cfg.Seed))
	sample := make([]PointPair, 3)

	var best []int
	var bestModel Affine
	for iter := 0; iter < cfg.Iterations; iter++ {
		i, j, k := pickThree(rng, n)
		sample[0], sample[1], sample[2] = pairs[i], pairs[j], pairs[k]

		model, err := FitAffine(sample)
		if err != nil {
			continue
		}

		inliers := collectInliers(pairs, model, cfg.Threshold)
		if len(inliers) > len(best) {
			best = inliers
			bestModel = model
			if len(best) == n {
				break
			}
		}
	}

	if len(best) < minInliers {
		return Affine{}, nil, fmt.Errorf("%w: best consensus %d of %d pairs, need %d", ErrNoConsensus, len(best), n, minInliers)
	}

	subset := make([]PointPair, len(best))
	for i, idx := range best {
		subset[i] = pairs[idx]
	}
	refit, err := FitAffine(subset)
	if err != nil {
		if errors.Is(err, ErrDegenerateInput) {
			return bestModel, best, nil
		}
		return Affine{}, nil, err
	}
	return refit, best, nil
}

// pickThree draws three distinct indices in [0, n).
func pickThree(rng *rand.Rand, n int) (int, int, int) {
	i := rng.Intn(n)
	j := rng.Intn(n - 1)
	if j >= i {
		j++
	}
	k := rng.Intn(n - 2)
	lo, hi := min(i, j), max(i, j)
	if k >= lo {
		k++
	}
	if k >= hi {
		k++
	}
	return i, j, k
}

func collectInliers(pairs []PointPair, model Affine, threshold float64) []int {
	inliers := make([]int, 0, len(pairs))
	for i, p := range pairs {
		if model.Apply(p.Src).Distance(p.Dst) < threshold {
			inliers = append(inliers, i)
		}
	}
	return inliers
}
