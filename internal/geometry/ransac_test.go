package geometry

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// contaminatedPairs maps a grid through m and replaces every outlierEvery-th
// destination with a far-off point
func contaminatedPairs(m Affine, outlierEvery int) ([]PointPair, []int) {
	var pairs []PointPair
	var inliers []int
	rng := rand.New(rand.NewSource(7))
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			src := Point{X: float64(x * 20), Y: float64(y * 15)}
			dst := m.Apply(src)
			i := len(pairs)
			if i%outlierEvery == 0 {
				dst = Point{X: rng.Float64()*500 + 1000, Y: rng.Float64()*500 - 2000}
			} else {
				inliers = append(inliers, i)
			}
			pairs = append(pairs, PointPair{Src: src, Dst: dst})
		}
	}
	return pairs, inliers
}

func TestFitAffineRANSAC_RejectsOutliers(t *testing.T) {
	m := Affine{A: 0.9, B: -0.2, TX: 30, C: 0.15, D: 1.1, TY: -12}
	pairs, wantInliers := contaminatedPairs(m, 4)

	got, inliers, err := FitAffineRANSAC(pairs, DefaultRANSACConfig())
	if err != nil {
		t.Fatalf("FitAffineRANSAC failed: %v", err)
	}
	approxAffine(t, got, m, 1e-6)
	if diff := cmp.Diff(wantInliers, inliers); diff != "" {
		t.Errorf("inliers mismatch (-want +got):\n%s", diff)
	}

	// Plain least squares is pulled off by the outliers.
	ls, err := FitAffine(pairs)
	if err != nil {
		t.Fatalf("FitAffine failed: %v", err)
	}
	if e := ReprojectionError(pairs, ls); e < 1 {
		t.Errorf("expected outliers to disturb least squares, mean error %v", e)
	}
}

func TestFitAffineRANSAC_SeedDeterminism(t *testing.T) {
	pairs, _ := contaminatedPairs(Rotation(0.3, Point{X: 50, Y: 40}, 1.1), 3)
	cfg := DefaultRANSACConfig()
	cfg.Iterations = 50

	a, ia, errA := FitAffineRANSAC(pairs, cfg)
	b, ib, errB := FitAffineRANSAC(pairs, cfg)
	if errA != nil || errB != nil {
		t.Fatalf("FitAffineRANSAC failed: %v, %v", errA, errB)
	}
	if a != b || !cmp.Equal(ia, ib) {
		t.Errorf("same seed gave different results: %+v %v vs %+v %v", a, ia, b, ib)
	}
}

func TestFitAffineRANSAC_Errors(t *testing.T) {
	short := pairsThrough(Identity(), []Point{{0, 0}, {1, 0}})
	if _, _, err := FitAffineRANSAC(short, DefaultRANSACConfig()); !errors.Is(err, ErrUnderdetermined) {
		t.Errorf("two pairs: got %v, want ErrUnderdetermined", err)
	}

	collinear := pairsThrough(Identity(), []Point{{0, 0}, {1, 1}, {2, 2}, {3, 3}})
	if _, _, err := FitAffineRANSAC(collinear, DefaultRANSACConfig()); !errors.Is(err, ErrNoConsensus) {
		t.Errorf("collinear: got %v, want ErrNoConsensus", err)
	}

	pairs := pairsThrough(Identity(), []Point{{0, 0}, {1, 0}, {0, 1}})
	cfg := DefaultRANSACConfig()
	cfg.MinInliers = 4
	if _, _, err := FitAffineRANSAC(pairs, cfg); !errors.Is(err, ErrNoConsensus) {
		t.Errorf("MinInliers above pair count: got %v, want ErrNoConsensus", err)
	}

	cfg = DefaultRANSACConfig()
	cfg.Iterations = 0
	if _, _, err := FitAffineRANSAC(pairs, cfg); err == nil {
		t.Error("zero iterations: expected error")
	}
}

func TestPickThree_Distinct(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, n := range []int{3, 4, 10} {
		for iter := 0; iter < 500; iter++ {
			i, j, k := pickThree(rng, n)
			if i == j || j == k || i == k {
				t.Fatalf("n=%d: repeated index in (%d,%d,%d)", n, i, j, k)
			}
			for _, v := range []int{i, j, k} {
				if v < 0 || v >= n {
					t.Fatalf("n=%d: index %d out of range", n, v)
				}
			}
		}
	}
}
