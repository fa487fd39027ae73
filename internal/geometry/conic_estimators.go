package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// conicSize is the length of the carrier vector (x², xy, y², x, y, 1).
const conicSize = 6

// minVariance keeps inverse-variance weights finite for points where the
// current conic has a vanishing gradient.
const minVariance = 1e-12

// conicData holds, for every normalised point, the carrier vector xi and the
// two gradient rows whose outer products sum to its first-order covariance,
// V0[xi] = gx·gxᵀ + gy·gyᵀ.
type conicData struct {
	xi []*mat.VecDense
	gx []*mat.VecDense
	gy []*mat.VecDense
}

func newConicData(points []Point, nm normalization) conicData {
	d := conicData{
		xi: make([]*mat.VecDense, len(points)),
		gx: make([]*mat.VecDense, len(points)),
		gy: make([]*mat.VecDense, len(points)),
	}
	for i, p := range points {
		u, v := nm.apply(p)
		d.xi[i] = mat.NewVecDense(conicSize, []float64{u * u, u * v, v * v, u, v, 1})
		d.gx[i] = mat.NewVecDense(conicSize, []float64{2 * u, v, 0, 1, 0, 0})
		d.gy[i] = mat.NewVecDense(conicSize, []float64{0, u, 2 * v, 0, 1, 0})
	}
	return d
}

// moments returns the weighted moment matrix M = Σ w·xi·xiᵀ / n and the
// weighted covariance N = Σ w·V0[xi] / n. A nil w weights every point 1.
func (d conicData) moments(w []float64) (m, n *mat.SymDense) {
	m = mat.NewSymDense(conicSize, nil)
	n = mat.NewSymDense(conicSize, nil)
	inv := 1 / float64(len(d.xi))
	for i := range d.xi {
		wi := inv
		if w != nil {
			wi *= w[i]
		}
		m.SymRankOne(m, wi, d.xi[i])
		n.SymRankOne(n, wi, d.gx[i])
		n.SymRankOne(n, wi, d.gy[i])
	}
	return m, n
}

// variance returns thetaᵀ·V0[xi_i]·theta.
func (d conicData) variance(i int, theta *mat.VecDense) float64 {
	a := mat.Dot(d.gx[i], theta)
	b := mat.Dot(d.gy[i], theta)
	return a*a + b*b
}

// weights returns the inverse variance of every point's algebraic distance
// under theta.
func (d conicData) weights(theta *mat.VecDense) []float64 {
	w := make([]float64, len(d.xi))
	for i := range w {
		w[i] = 1 / math.Max(d.variance(i, theta), minVariance)
	}
	return w
}

func (d conicData) iterativeReweight(theta *mat.VecDense, cfg ConicConfig) (*mat.VecDense, error) {
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		m, _ := d.moments(d.weights(theta))
		next, err := smallestEigenvector(m, false)
		if err != nil {
			return nil, err
		}
		if settle(next, theta, cfg.Tolerance) {
			return next, nil
		}
		theta = next
	}
	return theta, nil
}

func (d conicData) taubin() (*mat.VecDense, error) {
	m, n := d.moments(nil)
	return constrainedMin(m, n)
}

func (d conicData) renormalization(cfg ConicConfig) (*mat.VecDense, error) {
	theta, err := d.taubin()
	if err != nil {
		return nil, err
	}
	plain, _ := d.moments(nil)
	residual := mat.Inner(theta, plain, theta)

	for iter := 1; iter < cfg.MaxIterations; iter++ {
		m, n := d.moments(d.weights(theta))
		next, err := constrainedMin(m, n)
		if err != nil {
			return nil, err
		}
		// Stop before the weighted problem drifts away from the data.
		r := mat.Inner(next, plain, next)
		if r > 10*residual {
			break
		}
		residual = r
		if settle(next, theta, cfg.Tolerance) {
			return next, nil
		}
		theta = next
	}
	return theta, nil
}

// fns iterates X(theta)·theta = λ·theta towards λ = 0, where
// X = M - L and L = Σ w²·(xi·theta)²·V0[xi] / n.
func (d conicData) fns(theta *mat.VecDense, cfg ConicConfig) (*mat.VecDense, error) {
	plain, _ := d.moments(nil)
	residual := mat.Inner(theta, plain, theta)
	inv := 1 / float64(len(d.xi))

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		w := d.weights(theta)
		x, _ := d.moments(w)
		for i := range d.xi {
			e := mat.Dot(d.xi[i], theta)
			alpha := -inv * w[i] * w[i] * e * e
			x.SymRankOne(x, alpha, d.gx[i])
			x.SymRankOne(x, alpha, d.gy[i])
		}

		next, err := smallestEigenvector(x, true)
		if err != nil {
			return nil, err
		}
		r := mat.Inner(next, plain, next)
		if r > 10*residual {
			break
		}
		residual = r
		if settle(next, theta, cfg.Tolerance) {
			return next, nil
		}
		theta = next
	}
	return theta, nil
}

// settle flips next onto the side of prev and reports whether the two
// differ by less than tol.
func settle(next, prev *mat.VecDense, tol float64) bool {
	if mat.Dot(next, prev) < 0 {
		next.ScaleVec(-1, next)
	}
	var diff mat.VecDense
	diff.SubVec(next, prev)
	return mat.Norm(&diff, 2) < tol
}

// smallestEigenvector returns the unit eigenvector of s for its smallest
// eigenvalue, or for the eigenvalue closest to zero when byMagnitude is set.
func smallestEigenvector(s mat.Symmetric, byMagnitude bool) (*mat.VecDense, error) {
	var es mat.EigenSym
	if !es.Factorize(s, true) {
		return nil, fmt.Errorf("%w: eigendecomposition did not converge", ErrDegenerateInput)
	}
	values := es.Values(nil)
	best := 0
	if byMagnitude {
		for i, v := range values {
			if math.Abs(v) < math.Abs(values[best]) {
				best = i
			}
		}
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	out := mat.NewVecDense(len(values), nil)
	out.CopyVec(vecs.ColView(best))
	return out, nil
}

// constrainedMin minimises thetaᵀ·M·theta subject to thetaᵀ·N·theta = 1 for
// a positive semi-definite N, returning theta scaled to unit norm.
//
// N is diagonalised as V·diag(λ)·Vᵀ. Components along its null space are
// unconstrained and eliminated through the Schur complement of M; the
// remaining problem is whitened by λ^(-1/2) and solved as an ordinary
// symmetric eigenproblem.
func constrainedMin(m, n *mat.SymDense) (*mat.VecDense, error) {
	var es mat.EigenSym
	if !es.Factorize(n, true) {
		return nil, fmt.Errorf("%w: eigendecomposition did not converge", ErrDegenerateInput)
	}
	lambda := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	size := len(lambda)
	tol := rankTolerance * lambda[size-1]
	k := 0
	for k < size && lambda[k] <= tol {
		k++
	}
	if k == size {
		return nil, fmt.Errorf("%w: zero point covariance", ErrDegenerateInput)
	}
	r := size - k

	v1 := vecs.Slice(0, size, k, size)
	var schur mat.Dense
	schur.Product(v1.T(), m, v1)

	// g = M22⁻¹·M21 maps constrained components to the optimal free ones.
	var g mat.Dense
	var v2 mat.Matrix
	if k > 0 {
		v2 = vecs.Slice(0, size, 0, k)
		var m22, m21 mat.Dense
		m22.Product(v2.T(), m, v2)
		m21.Product(v2.T(), m, v1)
		if err := g.Solve(&m22, &m21); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDegenerateInput, err)
		}
		var corr mat.Dense
		corr.Mul(m21.T(), &g)
		schur.Sub(&schur, &corr)
	}

	whitened := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			sym := 0.5 * (schur.At(i, j) + schur.At(j, i))
			whitened.SetSym(i, j, sym/math.Sqrt(lambda[k+i]*lambda[k+j]))
		}
	}
	psi, err := smallestEigenvector(whitened, false)
	if err != nil {
		return nil, err
	}

	phi := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		phi.SetVec(i, psi.AtVec(i)/math.Sqrt(lambda[k+i]))
	}
	theta := mat.NewVecDense(size, nil)
	theta.MulVec(v1, phi)
	if k > 0 {
		var free, tail mat.VecDense
		free.MulVec(&g, phi)
		tail.MulVec(v2, &free)
		theta.SubVec(theta, &tail)
	}

	norm := mat.Norm(theta, 2)
	if !(norm > 0) {
		return nil, fmt.Errorf("%w: zero conic", ErrDegenerateInput)
	}
	theta.ScaleVec(1/norm, theta)
	return theta, nil
}
