package geometry

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnderdetermined is returned when a fit receives fewer observations
	// than the model has degrees of freedom.
	ErrUnderdetermined = errors.New("geometry: underdetermined fit")

	// ErrDegenerateInput is returned when the observations cannot determine a
	// unique model, e.g. collinear or coincident points, or when a transform
	// has no inverse.
	ErrDegenerateInput = errors.New("geometry: degenerate input")

	// ErrNotEllipse is returned by Conic.Ellipse for parabolas, hyperbolas and
	// imaginary ellipses.
	ErrNotEllipse = errors.New("geometry: conic is not a real ellipse")

	// ErrNoConsensus is returned when RANSAC finds no model supported by
	// enough inliers.
	ErrNoConsensus = errors.New("geometry: no consensus")
)

// Point is a 2D point with floating-point coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to another point.
func (p Point) Distance(o Point) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// PointPair is one correspondence: Src in the moving frame, Dst in the
// reference frame.
type PointPair struct {
	Src Point `json:"src"`
	Dst Point `json:"dst"`
}

// Affine is a 2x3 affine transform:
//
//	x' = A*x + B*y + TX
//	y' = C*x + D*y + TY
type Affine struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	TX float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	TY float64 `json:"ty"`
}

// Identity returns the identity transform.
func Identity() Affine {
	return Affine{A: 1, D: 1}
}

// Translation returns a pure translation.
func Translation(tx, ty float64) Affine {
	return Affine{A: 1, D: 1, TX: tx, TY: ty}
}

// Scale returns an axis-aligned scaling about the origin.
func Scale(sx, sy float64) Affine {
	return Affine{A: sx, D: sy}
}

// Rotation returns a rotation by radians about center combined with a
// uniform scale. Positive angles turn +X towards +Y.
func Rotation(radians float64, center Point, scale float64) Affine {
	sin, cos := math.Sincos(radians)
	a, c := scale*cos, scale*sin
	return Affine{
		A:  a,
		B:  -c,
		TX: center.X - a*center.X + c*center.Y,
		C:  c,
		D:  a,
		TY: center.Y - c*center.X - a*center.Y,
	}
}

// FromMatrix builds a transform from row-major coefficients
// [A, B, TX, C, D, TY].
func FromMatrix(m [6]float64) Affine {
	return Affine{A: m[0], B: m[1], TX: m[2], C: m[3], D: m[4], TY: m[5]}
}

// Matrix returns the row-major coefficients [A, B, TX, C, D, TY].
func (t Affine) Matrix() [6]float64 {
	return [6]float64{t.A, t.B, t.TX, t.C, t.D, t.TY}
}

// Apply maps p through the transform.
func (t Affine) Apply(p Point) Point {
	return Point{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// Det returns the determinant of the linear part.
func (t Affine) Det() float64 {
	return t.A*t.D - t.B*t.C
}

// Compose returns the transform that applies o first, then t.
func (t Affine) Compose(o Affine) Affine {
	return Affine{
		A:  t.A*o.A + t.B*o.C,
		B:  t.A*o.B + t.B*o.D,
		TX: t.A*o.TX + t.B*o.TY + t.TX,
		C:  t.C*o.A + t.D*o.C,
		D:  t.C*o.B + t.D*o.D,
		TY: t.C*o.TX + t.D*o.TY + t.TY,
	}
}

// Invert returns the inverse transform. A singular linear part yields
// ErrDegenerateInput.
func (t Affine) Invert() (Affine, error) {
	det := t.Det()
	scale := math.Max(math.Abs(t.A)+math.Abs(t.B), math.Abs(t.C)+math.Abs(t.D))
	if det == 0 || math.IsNaN(det) || math.Abs(det) <= 1e-12*scale*scale {
		return Affine{}, fmt.Errorf("%w: determinant %g", ErrDegenerateInput, det)
	}

	inv := 1 / det
	return Affine{
		A:  t.D * inv,
		B:  -t.B * inv,
		TX: (t.B*t.TY - t.D*t.TX) * inv,
		C:  -t.C * inv,
		D:  t.A * inv,
		TY: (t.C*t.TX - t.A*t.TY) * inv,
	}, nil
}

// ReprojectionError returns the mean distance between t(Src) and Dst over
// pairs. An empty set yields +Inf.
func ReprojectionError(pairs []PointPair, t Affine) float64 {
	if len(pairs) == 0 {
		return math.Inf(1)
	}
	var total float64
	for _, p := range pairs {
		total += t.Apply(p.Src).Distance(p.Dst)
	}
	return total / float64(len(pairs))
}

// normalization is the similarity that moves a point set's centroid to the
// origin and scales its mean distance from the centroid to sqrt(2).
type normalization struct {
	mx, my float64
	s      float64
}

func normalize(points []Point) (normalization, bool) {
	var mx, my float64
	for _, p := range points {
		mx += p.X
		my += p.Y
	}
	n := float64(len(points))
	mx /= n
	my /= n

	var mean float64
	for _, p := range points {
		mean += math.Hypot(p.X-mx, p.Y-my)
	}
	mean /= n
	if !(mean > 0) || math.IsInf(mean, 0) {
		return normalization{}, false
	}
	return normalization{mx: mx, my: my, s: math.Sqrt2 / mean}, true
}

func (nm normalization) apply(p Point) (float64, float64) {
	return (p.X - nm.mx) * nm.s, (p.Y - nm.my) * nm.s
}
