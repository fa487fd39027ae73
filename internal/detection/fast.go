package detection

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ironsheep/feature-tools-mcp/internal/raster"
)

// ErrInvalidConfig is returned when detector parameters are inconsistent.
var ErrInvalidConfig = errors.New("detection: invalid config")

// Keypoint is a detected corner.
//
// Keypoints are plain values; the detector never retains references to the
// buffer they were found in.
type Keypoint struct {
	// X and Y are the pixel position of the corner centre.
	X int `json:"x"`
	Y int `json:"y"`

	// Score is the corner strength: the smallest absolute intensity
	// difference inside the strongest qualifying ring arc. Higher is better.
	Score float64 `json:"score"`

	// Radius is the ring radius the corner was tested at.
	Radius float64 `json:"radius"`

	// Angle is the intensity-centroid orientation in radians, in (-π, π].
	Angle float64 `json:"angle"`
}

// Config controls the FAST corner test and non-maximum suppression.
type Config struct {
	// Threshold is the intensity margin t: ring samples must be brighter
	// than center+t or darker than center-t to count.
	Threshold float64 `json:"threshold"`

	// MinArcLength is the number of contiguous qualifying ring samples
	// required for a corner.
	MinArcLength int `json:"min_arc_length"`

	// RingRadius is the radius of the sampling circle.
	RingRadius int `json:"ring_radius"`

	// SuppressionRadius is the half-size of the square NMS window. Zero
	// disables suppression.
	SuppressionRadius int `json:"suppression_radius"`

	// MaxKeypoints caps the output after sorting. Zero means unlimited.
	MaxKeypoints int `json:"max_keypoints"`

	// Channel selects the sample channel scanned in multi-channel buffers.
	Channel int `json:"channel"`
}

// DefaultConfig returns the FAST-9/16 settings used when callers supply no
// overrides.
func DefaultConfig() Config {
	return Config{
		Threshold:         20,
		MinArcLength:      9,
		RingRadius:        3,
		SuppressionRadius: 3,
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.RingRadius <= 0 {
		return fmt.Errorf("%w: ring radius %d", ErrInvalidConfig, c.RingRadius)
	}
	n := len(Ring(c.RingRadius))
	if c.MinArcLength <= 0 || c.MinArcLength > n {
		return fmt.Errorf("%w: arc length %d for a %d-sample ring", ErrInvalidConfig, c.MinArcLength, n)
	}
	if c.Threshold < 0 || math.IsNaN(c.Threshold) {
		return fmt.Errorf("%w: threshold %v", ErrInvalidConfig, c.Threshold)
	}
	if c.SuppressionRadius < 0 || c.MaxKeypoints < 0 || c.Channel < 0 {
		return fmt.Errorf("%w: negative suppression radius, keypoint cap or channel", ErrInvalidConfig)
	}
	return nil
}

// Detect finds FAST corners in buf.
//
// Parameters:
//   - buf: Source buffer. Only cfg.Channel is scanned.
//   - cfg: Detector parameters; see DefaultConfig.
//
// Returns:
//   - []Keypoint: Corners sorted by descending score. Equal scores keep raster
//     order (top-to-bottom, then left-to-right). Empty, never nil, when no
//     corner is found.
//   - error: raster.ErrInvalidDimensions for a nil buffer or missing channel,
//     ErrInvalidConfig for bad parameters.
//
// # Algorithm
//
//  1. Every pixel at least RingRadius away from all four borders is a
//     candidate. Border pixels are skipped; the image never wraps.
//  2. A compass pre-test on the four cardinal ring samples rejects candidates
//     that cannot possibly contain a long enough arc.
//  3. The full test looks for MinArcLength contiguous ring samples (the ring
//     itself is circular) that are all brighter than center+t or all darker
//     than center-t. The score is the best such arc's weakest difference.
//  4. Non-maximum suppression keeps a candidate only if it beats every other
//     candidate inside its (2R+1)x(2R+1) window. Higher score beats lower;
//     on equal scores the earlier pixel in raster order wins.
//
// Detect is deterministic: identical input yields an identical slice.
func Detect(buf *raster.Buffer[uint8], cfg Config) ([]Keypoint, error) {
	if buf == nil {
		return nil, fmt.Errorf("%w: nil buffer", raster.ErrInvalidDimensions)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Channel >= buf.Channels {
		return nil, fmt.Errorf("%w: channel %d of %d", raster.ErrInvalidDimensions, cfg.Channel, buf.Channels)
	}

	candidates := scan(buf, cfg)
	kept := suppress(candidates, buf.Width, buf.Height, cfg.SuppressionRadius)

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	if cfg.MaxKeypoints > 0 && len(kept) > cfg.MaxKeypoints {
		kept = kept[:cfg.MaxKeypoints]
	}

	for i := range kept {
		kept[i].Angle = Orientation(buf, cfg.Channel, kept[i].X, kept[i].Y, cfg.RingRadius)
	}
	return kept, nil
}

// scan runs the corner test over every interior pixel and returns the
// accepted candidates in raster order.
func scan(buf *raster.Buffer[uint8], cfg Config) []Keypoint {
	r := cfg.RingRadius
	ring := Ring(r)
	n := len(ring)
	arc := cfg.MinArcLength
	t := cfg.Threshold

	candidates := make([]Keypoint, 0)
	if buf.Width < 2*r+1 || buf.Height < 2*r+1 {
		return candidates
	}

	// Sample offsets relative to the centre sample, precomputed once. The
	// scan below stays inside [r, w-r) x [r, h-r), so every ring sample is
	// in bounds and the unchecked path is safe.
	offsets := make([]int, n)
	for i, o := range ring {
		offsets[i] = o.DY*buf.Stride + o.DX*buf.Channels
	}
	quarter := n / 4
	compass := [4]int{0, quarter, 2 * quarter, 3 * quarter}
	need := 4 * arc / n

	diffs := make([]float64, n)
	pix := buf.Pix

	for y := r; y < buf.Height-r; y++ {
		for x := r; x < buf.Width-r; x++ {
			base := buf.Offset(x, y, cfg.Channel)
			center := float64(pix[base])

			if need > 0 {
				var bright, dark int
				for _, i := range compass {
					d := float64(pix[base+offsets[i]]) - center
					if d > t {
						bright++
					} else if d < -t {
						dark++
					}
				}
				if bright < need && dark < need {
					continue
				}
			}

			for i, off := range offsets {
				diffs[i] = float64(pix[base+off]) - center
			}

			score := math.Max(arcScore(diffs, arc, t, 1), arcScore(diffs, arc, t, -1))
			if score > 0 {
				candidates = append(candidates, Keypoint{
					X:      x,
					Y:      y,
					Score:  score,
					Radius: float64(r),
				})
			}
		}
	}
	return candidates
}

// arcScore returns the strength of the strongest circular window of arc
// samples whose signed differences all exceed t in the direction sign, or 0
// if no window qualifies. Strength is the smallest |difference| in the window.
func arcScore(diffs []float64, arc int, t float64, sign float64) float64 {
	n := len(diffs)
	best := 0.0
	for start := 0; start < n; start++ {
		weakest := math.Inf(1)
		ok := true
		for k := 0; k < arc; k++ {
			d := sign * diffs[(start+k)%n]
			if d <= t || d <= 0 {
				ok = false
				break
			}
			if d < weakest {
				weakest = d
			}
		}
		if ok && weakest > best {
			best = weakest
		}
	}
	return best
}

// suppress applies windowed non-maximum suppression. candidates must be in
// raster order; the result preserves that order.
func suppress(candidates []Keypoint, width, height, radius int) []Keypoint {
	if radius == 0 || len(candidates) == 0 {
		out := make([]Keypoint, len(candidates))
		copy(out, candidates)
		return out
	}

	// index[y*width+x] holds 1+position in candidates, 0 for empty pixels.
	index := make([]int, width*height)
	for i, kp := range candidates {
		index[kp.Y*width+kp.X] = i + 1
	}

	kept := make([]Keypoint, 0, len(candidates))
	for i, kp := range candidates {
		if isLocalMax(candidates, index, i, width, height, radius) {
			kept = append(kept, kp)
		}
	}
	return kept
}

func isLocalMax(candidates []Keypoint, index []int, i, width, height, radius int) bool {
	kp := candidates[i]
	y0, y1 := max(kp.Y-radius, 0), min(kp.Y+radius, height-1)
	x0, x1 := max(kp.X-radius, 0), min(kp.X+radius, width-1)
	self := kp.Y*width + kp.X

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			pos := y*width + x
			j := index[pos]
			if j == 0 || pos == self {
				continue
			}
			other := candidates[j-1]
			if other.Score > kp.Score || (other.Score == kp.Score && pos < self) {
				return false
			}
		}
	}
	return true
}

// Orientation returns the intensity-centroid angle of the square patch of
// the given radius around (cx, cy), in radians. Pixels outside the buffer are
// ignored. A flat patch yields 0.
func Orientation(buf *raster.Buffer[uint8], channel, cx, cy, radius int) float64 {
	var m10, m01 float64
	for y := cy - radius; y <= cy+radius; y++ {
		if y < 0 || y >= buf.Height {
			continue
		}
		for x := cx - radius; x <= cx+radius; x++ {
			if x < 0 || x >= buf.Width {
				continue
			}
			v := float64(buf.AtUnchecked(x, y, channel))
			m10 += float64(x-cx) * v
			m01 += float64(y-cy) * v
		}
	}
	return math.Atan2(m01, m10)
}
