package geometry

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// FitAffine computes the least-squares affine transform mapping every Src to
// its Dst.
//
// Source points are normalised before solving so that the design matrix
// [x y 1] stays well conditioned at any coordinate scale; the solution is
// mapped back afterwards. The system is solved by QR decomposition.
//
// Errors:
//   - ErrUnderdetermined: fewer than 3 pairs
//   - ErrDegenerateInput: all source points coincide or lie on one line
func FitAffine(pairs []PointPair) (Affine, error) {
	n := len(pairs)
	if n < 3 {
		return Affine{}, fmt.Errorf("%w: affine needs 3 pairs, got %d", ErrUnderdetermined, n)
	}

	src := make([]Point, n)
	for i, p := range pairs {
		src[i] = p.Src
	}
	nm, ok := normalize(src)
	if !ok {
		return Affine{}, fmt.Errorf("%w: source points are coincident", ErrDegenerateInput)
	}

	design := mat.NewDense(n, 3, nil)
	rhs := mat.NewDense(n, 2, nil)
	for i, p := range pairs {
		u, v := nm.apply(p.Src)
		design.SetRow(i, []float64{u, v, 1})
		rhs.Set(i, 0, p.Dst.X)
		rhs.Set(i, 1, p.Dst.Y)
	}

	var svd mat.SVD
	if !svd.Factorize(design, mat.SVDNone) {
		return Affine{}, fmt.Errorf("%w: SVD did not converge", ErrDegenerateInput)
	}
	values := svd.Values(nil)
	if values[0] == 0 || values[2] <= rankTolerance*values[0] {
		return Affine{}, fmt.Errorf("%w: source points are collinear", ErrDegenerateInput)
	}

	var qr mat.QR
	qr.Factorize(design)

	var params mat.Dense
	if err := qr.SolveTo(&params, false, rhs); err != nil {
		return Affine{}, fmt.Errorf("%w: %v", ErrDegenerateInput, err)
	}

	// x' = a*u + b*v + t with u = s*(x-mx), v = s*(y-my).
	s, mx, my := nm.s, nm.mx, nm.my
	expand := func(col int) (float64, float64, float64) {
		a, b, t := params.At(0, col), params.At(1, col), params.At(2, col)
		return a * s, b * s, t - a*s*mx - b*s*my
	}
	A, B, TX := expand(0)
	C, D, TY := expand(1)

	return Affine{A: A, B: B, TX: TX, C: C, D: D, TY: TY}, nil
}
