package descriptor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ironsheep/feature-tools-mcp/internal/detection"
	"github.com/ironsheep/feature-tools-mcp/internal/raster"
)

// Vector is a real-valued descriptor compared by Euclidean distance.
type Vector []float64

// Distance returns the L2 distance to o. Vectors of different length are
// infinitely far apart.
func (v Vector) Distance(o Vector) float64 {
	if len(v) != len(o) {
		return math.Inf(1)
	}
	if len(v) == 0 {
		return 0
	}
	return floats.Distance(v, o, 2)
}

// PatchVectors builds a normalised intensity-patch descriptor for every
// keypoint.
//
// Each vector holds the (2*radius+1)^2 samples of the square window around the
// keypoint in raster order, shifted to zero mean and scaled to unit L2 norm.
// A flat patch stays the zero vector. Samples outside the buffer clamp to the
// nearest edge pixel. The output is index-aligned with kps.
func PatchVectors(buf *raster.Buffer[uint8], kps []detection.Keypoint, radius int) ([]Vector, error) {
	if buf == nil {
		return nil, fmt.Errorf("%w: nil buffer", raster.ErrInvalidDimensions)
	}
	if buf.Channels != 1 {
		return nil, fmt.Errorf("%w: patch vectors need a single-channel buffer, got %d channels", raster.ErrInvalidDimensions, buf.Channels)
	}
	if radius < 0 {
		return nil, fmt.Errorf("%w: patch radius %d", ErrInvalidConfig, radius)
	}

	side := 2*radius + 1
	out := make([]Vector, len(kps))
	for i, kp := range kps {
		v := make(Vector, 0, side*side)
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				v = append(v, float64(sampleClamped(buf, kp.X+dx, kp.Y+dy)))
			}
		}

		mean := floats.Sum(v) / float64(len(v))
		floats.AddConst(-mean, v)
		if norm := floats.Norm(v, 2); norm > 1e-12 {
			floats.Scale(1/norm, v)
		} else {
			for j := range v {
				v[j] = 0
			}
		}
		out[i] = v
	}
	return out, nil
}
