package descriptor

import (
	"errors"
	"fmt"
	"image"
	"math"
	"math/rand"

	"github.com/anthonynsimon/bild/blur"

	"github.com/ironsheep/feature-tools-mcp/internal/detection"
	"github.com/ironsheep/feature-tools-mcp/internal/raster"
)

// ErrInvalidConfig is returned when BRIEF parameters are inconsistent.
var ErrInvalidConfig = errors.New("descriptor: invalid config")

// BRIEFConfig holds the parameters of the binary test pattern.
type BRIEFConfig struct {
	// PatchSize is the side length of the square sampling window.
	PatchSize int `json:"patch_size"`

	// Bits is the number of binary tests, and so the descriptor length.
	Bits int `json:"bits"`

	// Seed drives test-pair generation. Equal seeds give equal patterns.
	Seed int64 `json:"seed"`

	// SmoothSigma is the Gaussian pre-smoothing radius. Zero disables it.
	SmoothSigma float64 `json:"smooth_sigma"`

	// Steered rotates the pattern to each keypoint's Angle, quantised to
	// AngleBins discrete orientations.
	Steered   bool `json:"steered"`
	AngleBins int  `json:"angle_bins"`
}

// DefaultBRIEFConfig returns the 256-bit, 31x31 pattern from the original
// BRIEF paper with light smoothing.
func DefaultBRIEFConfig() BRIEFConfig {
	return BRIEFConfig{
		PatchSize:   31,
		Bits:        256,
		Seed:        0x5eed,
		SmoothSigma: 2,
		AngleBins:   30,
	}
}

// Validate checks the configuration.
func (c BRIEFConfig) Validate() error {
	if c.PatchSize < 3 {
		return fmt.Errorf("%w: patch size %d", ErrInvalidConfig, c.PatchSize)
	}
	if c.Bits <= 0 {
		return fmt.Errorf("%w: %d bits", ErrInvalidConfig, c.Bits)
	}
	if c.SmoothSigma < 0 || math.IsNaN(c.SmoothSigma) {
		return fmt.Errorf("%w: smoothing sigma %v", ErrInvalidConfig, c.SmoothSigma)
	}
	if c.Steered && c.AngleBins <= 0 {
		return fmt.Errorf("%w: %d angle bins", ErrInvalidConfig, c.AngleBins)
	}
	return nil
}

// TestPair is one binary test: the descriptor bit is set when the sample at
// P is brighter than the sample at Q. Both are offsets from the keypoint.
type TestPair struct {
	P detection.Offset `json:"p"`
	Q detection.Offset `json:"q"`
}

// BRIEF computes binary descriptors from a fixed, pre-generated test pattern.
// A BRIEF is immutable after construction and safe for concurrent use.
type BRIEF struct {
	cfg     BRIEFConfig
	pairs   []TestPair
	steered [][]TestPair
}

// NewBRIEF generates the test pattern for cfg.
//
// Test points are drawn from an isotropic Gaussian with sigma PatchSize/5,
// rounded and clipped to the patch. A pair whose two points coincide is
// redrawn. When cfg.Steered is set, AngleBins rotated copies of the pattern
// are also built, each rounded and clipped the same way.
func NewBRIEF(cfg BRIEFConfig) (*BRIEF, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	half := cfg.PatchSize / 2
	sigma := float64(cfg.PatchSize) / 5

	draw := func() detection.Offset {
		return detection.Offset{
			DX: clip(rng.NormFloat64()*sigma, half),
			DY: clip(rng.NormFloat64()*sigma, half),
		}
	}

	pairs := make([]TestPair, cfg.Bits)
	for i := range pairs {
		p := draw()
		q := draw()
		for q == p {
			q = draw()
		}
		pairs[i] = TestPair{P: p, Q: q}
	}

	b := &BRIEF{cfg: cfg, pairs: pairs}
	if cfg.Steered {
		b.steered = make([][]TestPair, cfg.AngleBins)
		pitch := 2 * math.Pi / float64(cfg.AngleBins)
		for k := range b.steered {
			b.steered[k] = rotatePairs(pairs, float64(k)*pitch, half)
		}
	}
	return b, nil
}

// Config returns the configuration the pattern was built from.
func (b *BRIEF) Config() BRIEFConfig {
	return b.cfg
}

// Pairs returns a copy of the unrotated test pattern.
func (b *BRIEF) Pairs() []TestPair {
	out := make([]TestPair, len(b.pairs))
	copy(out, b.pairs)
	return out
}

// Describe computes one descriptor per keypoint, index-aligned with kps.
//
// buf must be a single-channel buffer. Test samples falling outside the
// buffer are clamped to the nearest edge pixel, so keypoints near the border
// still receive a descriptor and the output length always equals len(kps).
func (b *BRIEF) Describe(buf *raster.Buffer[uint8], kps []detection.Keypoint) ([]Binary, error) {
	if buf == nil {
		return nil, fmt.Errorf("%w: nil buffer", raster.ErrInvalidDimensions)
	}
	if buf.Channels != 1 {
		return nil, fmt.Errorf("%w: BRIEF needs a single-channel buffer, got %d channels", raster.ErrInvalidDimensions, buf.Channels)
	}

	src := buf
	if b.cfg.SmoothSigma > 0 {
		var err error
		if src, err = smooth(buf, b.cfg.SmoothSigma); err != nil {
			return nil, err
		}
	}

	out := make([]Binary, len(kps))
	for i, kp := range kps {
		pattern := b.pairs
		if b.cfg.Steered {
			pattern = b.steered[angleBin(kp.Angle, len(b.steered))]
		}

		d := NewBinary(len(pattern))
		for j, pair := range pattern {
			p := sampleClamped(src, kp.X+pair.P.DX, kp.Y+pair.P.DY)
			q := sampleClamped(src, kp.X+pair.Q.DX, kp.Y+pair.Q.DY)
			if p > q {
				d.Words[j/64] |= 1 << (uint(j) % 64)
			}
		}
		out[i] = d
	}
	return out, nil
}

func clip(v float64, half int) int {
	r := int(math.Round(v))
	if r < -half {
		return -half
	}
	if r > half {
		return half
	}
	return r
}

func rotatePairs(pairs []TestPair, theta float64, half int) []TestPair {
	sin, cos := math.Sincos(theta)
	rot := func(o detection.Offset) detection.Offset {
		x, y := float64(o.DX), float64(o.DY)
		return detection.Offset{
			DX: clip(cos*x-sin*y, half),
			DY: clip(sin*x+cos*y, half),
		}
	}
	out := make([]TestPair, len(pairs))
	for i, p := range pairs {
		out[i] = TestPair{P: rot(p.P), Q: rot(p.Q)}
	}
	return out
}

// angleBin maps an angle in radians onto one of n equal sectors starting at 0.
func angleBin(angle float64, n int) int {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 0
	}
	a := math.Mod(angle, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	k := int(a / (2 * math.Pi / float64(n)))
	if k >= n {
		k = n - 1
	}
	return k
}

func sampleClamped(buf *raster.Buffer[uint8], x, y int) uint8 {
	x = min(max(x, 0), buf.Width-1)
	y = min(max(y, 0), buf.Height-1)
	return buf.AtUnchecked(x, y, 0)
}

// smooth blurs a single-channel buffer with bild's Gaussian kernel.
func smooth(buf *raster.Buffer[uint8], sigma float64) (*raster.Buffer[uint8], error) {
	out, err := raster.New[uint8](buf.Width, buf.Height, 1)
	if err != nil {
		return nil, err
	}
	gray := &image.Gray{
		Pix:    buf.Pix,
		Stride: buf.Stride,
		Rect:   buf.Bounds(),
	}
	blurred := blur.Gaussian(gray, sigma)

	for y := 0; y < buf.Height; y++ {
		row := blurred.Pix[y*blurred.Stride:]
		for x := 0; x < buf.Width; x++ {
			out.Pix[y*out.Stride+x] = row[x*4]
		}
	}
	return out, nil
}
