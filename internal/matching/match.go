package matching

import (
	"errors"
	"fmt"
	"math"
)

// ErrEmptyInput reports that one of the descriptor sets handed to the matcher
// has no entries. Match itself never returns it; see CheckInputs.
var ErrEmptyInput = errors.New("matching: empty descriptor set")

// Metric is implemented by descriptors that can be compared with their own
// kind. Distance must be non-negative and symmetric.
type Metric[D any] interface {
	Distance(other D) float64
}

// Correspondence pairs descriptor QueryIndex of set A with descriptor
// TrainIndex of set B.
type Correspondence struct {
	QueryIndex int     `json:"query_index"`
	TrainIndex int     `json:"train_index"`
	Distance   float64 `json:"distance"`
}

// Config controls which nearest-neighbour candidates become correspondences.
type Config struct {
	// MaxDistance is a strict upper bound on the best distance.
	MaxDistance float64 `json:"max_distance"`

	// AmbiguityRatio is a strict upper bound on best/second-best distance.
	// The test is skipped when B has fewer than two entries.
	AmbiguityRatio float64 `json:"ambiguity_ratio"`

	// MutualCheck additionally requires the A entry to be the best match of
	// its B entry in the reverse direction.
	MutualCheck bool `json:"mutual_check"`
}

// DefaultConfig returns thresholds suited to 256-bit BRIEF descriptors.
func DefaultConfig() Config {
	return Config{
		MaxDistance:    64,
		AmbiguityRatio: 0.8,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !(c.MaxDistance > 0) {
		return fmt.Errorf("matching: max distance must be positive, got %v", c.MaxDistance)
	}
	if !(c.AmbiguityRatio > 0) {
		return fmt.Errorf("matching: ambiguity ratio must be positive, got %v", c.AmbiguityRatio)
	}
	return nil
}

// CheckInputs returns ErrEmptyInput when either set is empty.
func CheckInputs[D any](a, b []D) error {
	if len(a) == 0 {
		return fmt.Errorf("%w: query set", ErrEmptyInput)
	}
	if len(b) == 0 {
		return fmt.Errorf("%w: train set", ErrEmptyInput)
	}
	return nil
}

// Match finds, for every descriptor in a, its nearest neighbour in b and
// keeps the pair when it passes the distance and ambiguity tests.
//
// Rules:
//   - The best candidate is the smallest distance; ties go to the lowest
//     index in b.
//   - The second best is the smallest distance over all other entries of b
//     and may equal the best.
//   - A pair is kept when best < MaxDistance and best/second < AmbiguityRatio.
//     Two exact duplicates (best == second == 0) count as ratio 0.
//   - Matching is one-directional. Several entries of a may claim the same
//     entry of b unless MutualCheck is set.
//
// The result is ordered by QueryIndex. Empty inputs or total rejection give
// an empty, non-nil slice.
//
// Match does not validate cfg. Both thresholds are strict upper bounds, so
// the zero Config rejects every pair; start from DefaultConfig or check a
// hand-built Config with Validate.
func Match[D Metric[D]](a, b []D, cfg Config) []Correspondence {
	out := make([]Correspondence, 0)
	if len(a) == 0 || len(b) == 0 {
		return out
	}

	var reverse []int
	if cfg.MutualCheck {
		reverse = make([]int, len(b))
		for j := range b {
			reverse[j], _, _ = nearest(b[j], a)
		}
	}

	for i := range a {
		best, bestDist, secondDist := nearest(a[i], b)
		if !(bestDist < cfg.MaxDistance) {
			continue
		}
		if len(b) >= 2 && !(ratio(bestDist, secondDist) < cfg.AmbiguityRatio) {
			continue
		}
		if cfg.MutualCheck && reverse[best] != i {
			continue
		}
		out = append(out, Correspondence{
			QueryIndex: i,
			TrainIndex: best,
			Distance:   bestDist,
		})
	}
	return out
}

// nearest scans candidates for the closest and second-closest distance to q.
func nearest[D Metric[D]](q D, candidates []D) (best int, bestDist, secondDist float64) {
	best = -1
	bestDist = math.Inf(1)
	secondDist = math.Inf(1)
	for j, c := range candidates {
		d := q.Distance(c)
		switch {
		case d < bestDist:
			secondDist = bestDist
			best, bestDist = j, d
		case d < secondDist:
			secondDist = d
		}
	}
	return best, bestDist, secondDist
}

func ratio(best, second float64) float64 {
	if best == 0 {
		return 0
	}
	return best / second
}
