package warp

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/feature-tools-mcp/internal/geometry"
	"github.com/ironsheep/feature-tools-mcp/internal/raster"
)

// edgeGrace lets bilinear lookups that land a rounding error past the last
// row or column still count as inside.
const edgeGrace = 1e-9

// Interpolation selects how source samples are combined.
type Interpolation int

const (
	// Nearest takes the closest source pixel, rounding half away from zero.
	Nearest Interpolation = iota
	// Bilinear blends the four enclosing source pixels.
	Bilinear
)

func (i Interpolation) String() string {
	switch i {
	case Nearest:
		return "nearest"
	case Bilinear:
		return "bilinear"
	}
	return fmt.Sprintf("Interpolation(%d)", int(i))
}

// ParseInterpolation parses "nearest" or "bilinear".
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nearest":
		return Nearest, nil
	case "bilinear", "":
		return Bilinear, nil
	}
	return 0, fmt.Errorf("unknown interpolation %q (use nearest or bilinear)", s)
}

// Edge selects what happens to destination pixels whose source lies outside
// the source buffer.
type Edge int

const (
	// EdgeClamp samples the nearest edge pixel.
	EdgeClamp Edge = iota
	// EdgeConstant writes Config.Fill.
	EdgeConstant
	// EdgeSkip leaves the destination pixel at its zero value.
	EdgeSkip
)

func (e Edge) String() string {
	switch e {
	case EdgeClamp:
		return "clamp"
	case EdgeConstant:
		return "constant"
	case EdgeSkip:
		return "skip"
	}
	return fmt.Sprintf("Edge(%d)", int(e))
}

// ParseEdge parses "clamp", "constant" or "skip".
func ParseEdge(s string) (Edge, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "clamp":
		return EdgeClamp, nil
	case "constant", "":
		return EdgeConstant, nil
	case "skip":
		return EdgeSkip, nil
	}
	return 0, fmt.Errorf("unknown edge policy %q (use clamp, constant or skip)", s)
}

// Config controls resampling.
type Config struct {
	Interpolation Interpolation `json:"interpolation"`
	Edge          Edge          `json:"edge"`

	// Fill is written to outside pixels under EdgeConstant. Integer sample
	// types round and saturate it.
	Fill float64 `json:"fill"`

	// Workers is the number of row bands resampled concurrently. Values
	// below 2 resample serially.
	Workers int `json:"workers"`
}

// DefaultConfig returns bilinear interpolation with a zero constant border.
func DefaultConfig() Config {
	return Config{
		Interpolation: Bilinear,
		Edge:          EdgeConstant,
		Workers:       1,
	}
}

// Resample maps src through the forward transform fwd into a new
// width x height buffer with src's channel count.
//
// Every destination pixel (x, y) is inverse-mapped to the source position
// fwd⁻¹(x, y) and sampled there with cfg.Interpolation. Positions outside
// the source are resolved by cfg.Edge.
//
// Errors:
//   - raster.ErrInvalidDimensions: nil source or non-positive output size
//   - geometry.ErrDegenerateInput: fwd is not invertible
//
// The output does not depend on cfg.Workers.
func Resample[T raster.Sample](src *raster.Buffer[T], fwd geometry.Affine, width, height int, cfg Config) (*raster.Buffer[T], error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", raster.ErrInvalidDimensions)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: output size %dx%d", raster.ErrInvalidDimensions, width, height)
	}
	if cfg.Interpolation != Nearest && cfg.Interpolation != Bilinear {
		return nil, fmt.Errorf("warp: unsupported interpolation %v", cfg.Interpolation)
	}
	if cfg.Edge != EdgeClamp && cfg.Edge != EdgeConstant && cfg.Edge != EdgeSkip {
		return nil, fmt.Errorf("warp: unsupported edge policy %v", cfg.Edge)
	}

	inv, err := fwd.Invert()
	if err != nil {
		return nil, fmt.Errorf("invert transform: %w", err)
	}

	dst, err := raster.New[T](width, height, src.Channels)
	if err != nil {
		return nil, err
	}

	r := &resampler[T]{
		src:  src,
		dst:  dst,
		inv:  inv,
		cfg:  cfg,
		fill: raster.FromFloat64[T](cfg.Fill),
	}

	workers := min(max(cfg.Workers, 1), height)
	if workers == 1 {
		r.rows(0, height)
		return dst, nil
	}

	var g errgroup.Group
	band := (height + workers - 1) / workers
	for y0 := 0; y0 < height; y0 += band {
		y0 := y0 // per-iteration copy; go directive is 1.21
		y1 := min(y0+band, height)
		g.Go(func() error {
			r.rows(y0, y1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dst, nil
}

type resampler[T raster.Sample] struct {
	src  *raster.Buffer[T]
	dst  *raster.Buffer[T]
	inv  geometry.Affine
	cfg  Config
	fill T
}

// rows fills destination rows [y0, y1). Bands touch disjoint rows, so
// concurrent calls never write the same sample.
func (r *resampler[T]) rows(y0, y1 int) {
	for y := y0; y < y1; y++ {
		for x := 0; x < r.dst.Width; x++ {
			p := r.inv.Apply(geometry.Point{X: float64(x), Y: float64(y)})
			if r.cfg.Interpolation == Nearest {
				r.nearest(x, y, p)
			} else {
				r.bilinear(x, y, p)
			}
		}
	}
}

func (r *resampler[T]) outside(x, y int) {
	if r.cfg.Edge == EdgeConstant {
		for c := 0; c < r.dst.Channels; c++ {
			r.dst.SetUnchecked(x, y, c, r.fill)
		}
	}
}

func (r *resampler[T]) nearest(x, y int, p geometry.Point) {
	w, h := r.src.Width, r.src.Height
	sx := math.Round(p.X)
	sy := math.Round(p.Y)

	if !(sx >= 0 && sx < float64(w) && sy >= 0 && sy < float64(h)) {
		if r.cfg.Edge != EdgeClamp {
			r.outside(x, y)
			return
		}
		sx = clampf(sx, 0, float64(w-1))
		sy = clampf(sy, 0, float64(h-1))
	}

	ix, iy := int(sx), int(sy)
	for c := 0; c < r.dst.Channels; c++ {
		r.dst.SetUnchecked(x, y, c, r.src.AtUnchecked(ix, iy, c))
	}
}

func (r *resampler[T]) bilinear(x, y int, p geometry.Point) {
	maxX, maxY := float64(r.src.Width-1), float64(r.src.Height-1)
	sx, sy := p.X, p.Y

	if !(sx >= 0 && sx <= maxX+edgeGrace && sy >= 0 && sy <= maxY+edgeGrace) {
		if r.cfg.Edge != EdgeClamp {
			r.outside(x, y)
			return
		}
	}
	sx = clampf(sx, 0, maxX)
	sy = clampf(sy, 0, maxY)

	x0, y0 := int(math.Floor(sx)), int(math.Floor(sy))
	x1, y1 := min(x0+1, r.src.Width-1), min(y0+1, r.src.Height-1)
	fx, fy := sx-float64(x0), sy-float64(y0)

	for c := 0; c < r.dst.Channels; c++ {
		v00 := float64(r.src.AtUnchecked(x0, y0, c))
		v10 := float64(r.src.AtUnchecked(x1, y0, c))
		v01 := float64(r.src.AtUnchecked(x0, y1, c))
		v11 := float64(r.src.AtUnchecked(x1, y1, c))

		top := v00*(1-fx) + v10*fx
		bottom := v01*(1-fx) + v11*fx
		r.dst.SetUnchecked(x, y, c, raster.FromFloat64[T](top*(1-fy)+bottom*fy))
	}
}

func clampf(v, lo, hi float64) float64 {
	if v < lo || math.IsNaN(v) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
