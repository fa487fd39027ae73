package geometry

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// rankTolerance is the relative singular-value cutoff below which a design
// matrix column space is treated as rank deficient.
const rankTolerance = 1e-10

// Conic holds the coefficients of A*x² + B*x*y + C*y² + D*x + E*y + F = 0.
// Fitted conics have unit Euclidean norm and a non-negative leading
// coefficient.
type Conic struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
	D float64 `json:"d"`
	E float64 `json:"e"`
	F float64 `json:"f"`
}

// Ellipse is the geometric form of an elliptical conic.
type Ellipse struct {
	Center    Point   `json:"center"`
	SemiMajor float64 `json:"semi_major"`
	SemiMinor float64 `json:"semi_minor"`

	// Angle is the direction of the major axis in radians, in [-π/2, π/2).
	Angle float64 `json:"angle"`
}

// Residual returns the algebraic distance of p from the conic.
func (q Conic) Residual(p Point) float64 {
	return q.A*p.X*p.X + q.B*p.X*p.Y + q.C*p.Y*p.Y + q.D*p.X + q.E*p.Y + q.F
}

// Discriminant returns B² - 4AC. It is negative for ellipses.
func (q Conic) Discriminant() float64 {
	return q.B*q.B - 4*q.A*q.C
}

// Ellipse converts the conic to centre, semi-axes and orientation.
// Non-elliptical or imaginary conics yield ErrNotEllipse.
func (q Conic) Ellipse() (Ellipse, error) {
	disc := q.Discriminant()
	if !(disc < 0) {
		return Ellipse{}, fmt.Errorf("%w: discriminant %g", ErrNotEllipse, disc)
	}

	x0 := (2*q.C*q.D - q.B*q.E) / disc
	y0 := (2*q.A*q.E - q.B*q.D) / disc
	f0 := q.Residual(Point{X: x0, Y: y0})

	// Eigenvalues of the quadratic form [[A, B/2], [B/2, C]].
	mid := (q.A + q.C) / 2
	r := math.Hypot((q.A-q.C)/2, q.B/2)
	lmax, lmin := mid+r, mid-r

	// For a real ellipse both eigenvalues share a sign opposite to f0.
	amin, amaj := -f0/lmax, -f0/lmin
	if !(amin > 0) || !(amaj > 0) || math.IsInf(amaj, 0) {
		return Ellipse{}, fmt.Errorf("%w: imaginary or degenerate axes", ErrNotEllipse)
	}
	if amin > amaj {
		amin, amaj = amaj, amin
	}

	// 0.5*atan2(B, A-C) points along the eigenvector of lmax. With both
	// eigenvalues positive that is the minor axis; flip to the major.
	theta := 0.5 * math.Atan2(q.B, q.A-q.C)
	if lmax > 0 {
		theta += math.Pi / 2
	}

	return Ellipse{
		Center:    Point{X: x0, Y: y0},
		SemiMajor: math.Sqrt(amaj),
		SemiMinor: math.Sqrt(amin),
		Angle:     halfTurn(theta),
	}, nil
}

// ConicMethod selects the estimator FitConicWith uses.
type ConicMethod int

const (
	// LeastSquares minimises the algebraic distance: the smallest right
	// singular vector of the design matrix.
	LeastSquares ConicMethod = iota

	// IterativeReweight repeats the least-squares fit with each point
	// weighted by the inverse variance of its algebraic distance.
	IterativeReweight

	// Taubin minimises the algebraic distance subject to a normalisation
	// by the mean point covariance, removing most of the least-squares bias.
	Taubin

	// Renormalization iterates the Taubin problem with inverse-variance
	// weights.
	Renormalization

	// FNS (fundamental numerical scheme) minimises the Sampson error.
	FNS
)

var conicMethodNames = map[ConicMethod]string{
	LeastSquares:      "least_squares",
	IterativeReweight: "iterative_reweight",
	Taubin:            "taubin",
	Renormalization:   "renormalization",
	FNS:               "fns",
}

func (m ConicMethod) String() string {
	if name, ok := conicMethodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("ConicMethod(%d)", int(m))
}

// ParseConicMethod parses a method name as printed by String. An empty
// string selects LeastSquares.
func ParseConicMethod(s string) (ConicMethod, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LeastSquares, nil
	}
	for m, name := range conicMethodNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown conic method %q (use least_squares, iterative_reweight, taubin, renormalization or fns)", s)
}

// ConicConfig controls FitConicWith.
type ConicConfig struct {
	Method ConicMethod `json:"method"`

	// MaxIterations bounds the iterative methods. Ignored by LeastSquares
	// and Taubin.
	MaxIterations int `json:"max_iterations"`

	// Tolerance stops an iterative method once successive unit-norm
	// solutions differ by less than this.
	Tolerance float64 `json:"tolerance"`
}

// DefaultConicConfig returns plain least squares with 100 iterations and a
// 1e-7 tolerance for the iterative methods.
func DefaultConicConfig() ConicConfig {
	return ConicConfig{
		Method:        LeastSquares,
		MaxIterations: 100,
		Tolerance:     1e-7,
	}
}

// Validate reports whether the config can be used.
func (c ConicConfig) Validate() error {
	if _, ok := conicMethodNames[c.Method]; !ok {
		return fmt.Errorf("geometry: invalid conic config: unknown method %v", c.Method)
	}
	if c.MaxIterations <= 0 || !(c.Tolerance > 0) {
		return fmt.Errorf("geometry: invalid conic config: %d iterations, tolerance %v", c.MaxIterations, c.Tolerance)
	}
	return nil
}

// FitConic fits a general conic to points by total least squares. It is
// FitConicWith using DefaultConicConfig.
func FitConic(points []Point) (Conic, error) {
	return FitConicWith(points, DefaultConicConfig())
}

// FitConicWith fits a general conic to points with the configured
// estimator.
//
// Points are first normalised so their centroid sits at the origin with mean
// distance sqrt(2). Each point contributes the design row
// (x², xy, y², x, y, 1). The estimator works on the normalised rows; its
// solution is mapped back to the original coordinates and scaled to unit
// norm.
//
// Errors:
//   - ErrUnderdetermined: fewer than 5 points
//   - ErrDegenerateInput: coincident points, or a design matrix whose rank is
//     below 5 (collinear points, for example), so the conic is not unique
func FitConicWith(points []Point, cfg ConicConfig) (Conic, error) {
	if err := cfg.Validate(); err != nil {
		return Conic{}, err
	}
	if len(points) < 5 {
		return Conic{}, fmt.Errorf("%w: conic needs 5 points, got %d", ErrUnderdetermined, len(points))
	}
	nm, ok := normalize(points)
	if !ok {
		return Conic{}, fmt.Errorf("%w: points are coincident", ErrDegenerateInput)
	}

	data := newConicData(points, nm)
	design := mat.NewDense(len(points), conicSize, nil)
	for i, xi := range data.xi {
		design.SetRow(i, xi.RawVector().Data)
	}

	var svd mat.SVD
	if !svd.Factorize(design, mat.SVDFullV) {
		return Conic{}, fmt.Errorf("%w: SVD did not converge", ErrDegenerateInput)
	}

	values := make([]float64, conicSize)
	copy(values, svd.Values(nil))
	if values[0] == 0 || values[4] <= rankTolerance*values[0] {
		return Conic{}, fmt.Errorf("%w: design matrix rank below 5", ErrDegenerateInput)
	}

	var v mat.Dense
	svd.VTo(&v)
	theta := mat.NewVecDense(conicSize, nil)
	theta.CopyVec(v.ColView(conicSize - 1))

	var err error
	switch cfg.Method {
	case IterativeReweight:
		theta, err = data.iterativeReweight(theta, cfg)
	case Taubin:
		theta, err = data.taubin()
	case Renormalization:
		theta, err = data.renormalization(cfg)
	case FNS:
		theta, err = data.fns(theta, cfg)
	}
	if err != nil {
		return Conic{}, err
	}

	return denormalizeConic(theta.RawVector().Data, nm)
}

// denormalizeConic maps the coefficients of a conic fitted in normalised
// coordinates back to the original frame.
func denormalizeConic(theta []float64, nm normalization) (Conic, error) {
	a, b, c := theta[0], theta[1], theta[2]
	d, e, f := theta[3], theta[4], theta[5]

	s, mx, my := nm.s, nm.mx, nm.my
	s2 := s * s
	coef := []float64{
		a * s2,
		b * s2,
		c * s2,
		-2*a*s2*mx - b*s2*my + d*s,
		-b*s2*mx - 2*c*s2*my + e*s,
		a*s2*mx*mx + b*s2*mx*my + c*s2*my*my - d*s*mx - e*s*my + f,
	}

	norm := floats.Norm(coef, 2)
	if !(norm > 0) {
		return Conic{}, fmt.Errorf("%w: zero conic", ErrDegenerateInput)
	}
	floats.Scale(1/norm, coef)
	canonicalSign(coef)

	return Conic{A: coef[0], B: coef[1], C: coef[2], D: coef[3], E: coef[4], F: coef[5]}, nil
}

// canonicalSign flips coef so that its first non-negligible entry is positive.
func canonicalSign(coef []float64) {
	for _, v := range coef {
		if math.Abs(v) <= 1e-15 {
			continue
		}
		if v < 0 {
			floats.Scale(-1, coef)
		}
		return
	}
}

// halfTurn maps an angle onto [-π/2, π/2).
func halfTurn(a float64) float64 {
	a = math.Mod(a, math.Pi)
	if a >= math.Pi/2 {
		a -= math.Pi
	} else if a < -math.Pi/2 {
		a += math.Pi
	}
	return a
}
