package imaging

import (
	"fmt"
	"math"

	"github.com/ironsheep/feature-tools-mcp/internal/raster"
)

// DifferenceThreshold is the absolute intensity difference above which two
// samples count as different.
const DifferenceThreshold = 10

// Comparison summarizes how closely two equally sized buffers agree.
type Comparison struct {
	SimilarityScore float64 `json:"similarity_score"`
	SamplesDiffer   int     `json:"samples_different"`
	SamplesCompared int     `json:"samples_compared"`
	AverageDiff     float64 `json:"average_diff"`
}

// Compare measures agreement between a and b sample by sample.
//
// When mask is non-nil only pixels whose mask value is non-zero take part;
// mask must be single-channel and the size of a. The registration pipeline
// uses the mask to ignore pixels that the warp filled from outside the moving
// image. With nothing to compare the similarity is 0.
func Compare(a, b, mask *raster.Buffer[uint8]) (*Comparison, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: nil buffer", raster.ErrInvalidDimensions)
	}
	if !a.SameShape(b) {
		return nil, fmt.Errorf("%w: %dx%dx%d vs %dx%dx%d", raster.ErrInvalidDimensions,
			a.Width, a.Height, a.Channels, b.Width, b.Height, b.Channels)
	}
	if mask != nil && (mask.Width != a.Width || mask.Height != a.Height || mask.Channels != 1) {
		return nil, fmt.Errorf("%w: mask is %dx%dx%d", raster.ErrInvalidDimensions, mask.Width, mask.Height, mask.Channels)
	}

	compared, differ := 0, 0
	var total float64
	for y := 0; y < a.Height; y++ {
		for x := 0; x < a.Width; x++ {
			if mask != nil && mask.AtUnchecked(x, y, 0) == 0 {
				continue
			}
			for c := 0; c < a.Channels; c++ {
				d := absDiff(a.AtUnchecked(x, y, c), b.AtUnchecked(x, y, c))
				total += float64(d)
				if d > DifferenceThreshold {
					differ++
				}
				compared++
			}
		}
	}

	result := &Comparison{SamplesDiffer: differ, SamplesCompared: compared}
	if compared == 0 {
		return result, nil
	}
	result.SimilarityScore = math.Round((1-float64(differ)/float64(compared))*1000) / 1000
	result.AverageDiff = math.Round(total/float64(compared)*100) / 100
	return result, nil
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
