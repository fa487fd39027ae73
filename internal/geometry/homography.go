package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Homography is a row-major 3x3 projective transform:
//
//	x' = (h0*x + h1*y + h2) / (h6*x + h7*y + h8)
//	y' = (h3*x + h4*y + h5) / (h6*x + h7*y + h8)
//
// Fitted homographies are scaled so that h8 = 1 unless h8 vanishes, in
// which case they have unit Frobenius norm.
type Homography [9]float64

// Homography returns t as a projective transform.
func (t Affine) Homography() Homography {
	return Homography{t.A, t.B, t.TX, t.C, t.D, t.TY, 0, 0, 1}
}

// Apply maps p through h. It reports false when p lies on the line h sends
// to infinity.
func (h Homography) Apply(p Point) (Point, bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if w == 0 {
		return Point{}, false
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// FitHomography estimates the homography mapping each Src to its Dst by the
// normalised direct linear transform.
//
// Source and destination points are normalised independently (centroid at
// the origin, mean distance sqrt(2)). Each pair contributes two rows of the
// 2n x 9 design matrix; the solution is its right singular vector for the
// smallest singular value, mapped back through both normalisations.
//
// Errors:
//   - ErrUnderdetermined: fewer than 4 pairs
//   - ErrDegenerateInput: coincident points, or configurations (three of
//     four sources collinear, for example) that leave the homography
//     ambiguous
func FitHomography(pairs []PointPair) (Homography, error) {
	n := len(pairs)
	if n < 4 {
		return Homography{}, fmt.Errorf("%w: homography needs 4 pairs, got %d", ErrUnderdetermined, n)
	}
	src := make([]Point, n)
	dst := make([]Point, n)
	for i, p := range pairs {
		src[i], dst[i] = p.Src, p.Dst
	}
	ns, ok := normalize(src)
	if !ok {
		return Homography{}, fmt.Errorf("%w: source points are coincident", ErrDegenerateInput)
	}
	nd, ok := normalize(dst)
	if !ok {
		return Homography{}, fmt.Errorf("%w: destination points are coincident", ErrDegenerateInput)
	}

	design := mat.NewDense(2*n, 9, nil)
	for i, p := range pairs {
		x, y := ns.apply(p.Src)
		u, v := nd.apply(p.Dst)
		design.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y, -u})
		design.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y, -v})
	}

	var svd mat.SVD
	if !svd.Factorize(design, mat.SVDFullV) {
		return Homography{}, fmt.Errorf("%w: SVD did not converge", ErrDegenerateInput)
	}
	values := svd.Values(nil)
	if values[0] == 0 || values[7] <= rankTolerance*values[0] {
		return Homography{}, fmt.Errorf("%w: design matrix rank below 8", ErrDegenerateInput)
	}

	var v mat.Dense
	svd.VTo(&v)
	hn := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, v.At(i, 8))
	}

	// H = Td⁻¹ · Hn · Ts
	ts := mat.NewDense(3, 3, []float64{
		ns.s, 0, -ns.s * ns.mx,
		0, ns.s, -ns.s * ns.my,
		0, 0, 1,
	})
	tdInv := mat.NewDense(3, 3, []float64{
		1 / nd.s, 0, nd.mx,
		0, 1 / nd.s, nd.my,
		0, 0, 1,
	})
	var full mat.Dense
	full.Product(tdInv, hn, ts)

	var h Homography
	for i := range h {
		h[i] = full.At(i/3, i%3)
	}
	return h.normalized()
}

func (h Homography) normalized() (Homography, error) {
	var norm float64
	for _, v := range h {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if !(norm > 0) {
		return Homography{}, fmt.Errorf("%w: zero homography", ErrDegenerateInput)
	}
	scale := 1 / norm
	if math.Abs(h[8]) > rankTolerance*norm {
		scale = 1 / h[8]
	}
	for i := range h {
		h[i] *= scale
	}
	return h, nil
}
