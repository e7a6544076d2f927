package unmix

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"dotrecon/internal/models"
)

var testTable = models.ExtinctionTable{
	{Wavelength: 760, HbO: 1.5, HbR: 3.8},
	{Wavelength: 850, HbO: 2.5, HbR: 1.8},
}

// TestExtinctionMatrix verifies the layout and scaling of the extinction
// matrix.
func TestExtinctionMatrix(t *testing.T) {
	e, err := ExtinctionMatrix(testTable, []float64{760, 850})
	if err != nil {
		t.Fatalf("ExtinctionMatrix failed: %v", err)
	}
	if r, c := e.Dims(); r != 2 || c != 2 {
		t.Fatalf("expected 2x2 matrix, got %dx%d", r, c)
	}
	if got := e.At(0, 0); got != 1.5*ExtinctionScale {
		t.Errorf("E[0,0]: expected scaled HbO coefficient, got %v", got)
	}
	if got := e.At(1, 1); got != 1.8*ExtinctionScale {
		t.Errorf("E[1,1]: expected scaled HbR coefficient, got %v", got)
	}

	if _, err := ExtinctionMatrix(testTable, []float64{690}); err == nil {
		t.Errorf("expected an error for an untabulated wavelength")
	}
}

// TestPseudoInverse verifies the Moore-Penrose identity A * pinv(A) * A = A
// on a square and a wide matrix.
func TestPseudoInverse(t *testing.T) {
	cases := []struct {
		name string
		a    *mat.Dense
	}{
		{"Square", mat.NewDense(2, 2, []float64{4, 7, 2, 6})},
		{"Wide", mat.NewDense(1, 2, []float64{3, 4})},
		{"Tall", mat.NewDense(3, 2, []float64{1, 0, 0, 1, 1, 1})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pinv, err := PseudoInverse(tc.a)
			if err != nil {
				t.Fatalf("PseudoInverse failed: %v", err)
			}
			rows, cols := tc.a.Dims()
			if pr, pc := pinv.Dims(); pr != cols || pc != rows {
				t.Fatalf("expected %dx%d pseudo-inverse, got %dx%d", cols, rows, pr, pc)
			}

			var tmp, back mat.Dense
			tmp.Mul(tc.a, pinv)
			back.Mul(&tmp, tc.a)
			if !mat.EqualApprox(&back, tc.a, 1e-12) {
				t.Errorf("A*pinv(A)*A != A:\ngot %v\nwant %v", mat.Formatted(&back), mat.Formatted(tc.a))
			}
		})
	}
}

// TestUnmixerRecovers verifies that known chromophore values survive a
// mix-then-unmix round trip through the scaled extinction matrix.
func TestUnmixerRecovers(t *testing.T) {
	wavelengths := []float64{760, 850}
	oxy := []float64{1.0, -0.4, 0.7}
	deoxy := []float64{0.2, 0.9, -1.5}
	n := len(oxy)

	e, err := ExtinctionMatrix(testTable, wavelengths)
	if err != nil {
		t.Fatalf("ExtinctionMatrix failed: %v", err)
	}
	muaStack := mat.NewDense(2, n, nil)
	for w := 0; w < 2; w++ {
		for i := 0; i < n; i++ {
			muaStack.Set(w, i, e.At(w, 0)*oxy[i]+e.At(w, 1)*deoxy[i])
		}
	}

	u, err := NewUnmixer(testTable, wavelengths)
	if err != nil {
		t.Fatalf("NewUnmixer failed: %v", err)
	}
	chromo, err := u.Apply(muaStack)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	for i := 0; i < n; i++ {
		if got := chromo.At(0, i); math.Abs(got-oxy[i]) > 1e-10 {
			t.Errorf("oxy node %d: expected %v, got %v", i, oxy[i], got)
		}
		if got := chromo.At(1, i); math.Abs(got-deoxy[i]) > 1e-10 {
			t.Errorf("deoxy node %d: expected %v, got %v", i, deoxy[i], got)
		}
	}
}

// TestUnmixerSingleWavelength documents the under-determined case: one
// wavelength still yields a defined, finite minimum-norm estimate.
func TestUnmixerSingleWavelength(t *testing.T) {
	u, err := NewUnmixer(testTable, []float64{850})
	if err != nil {
		t.Fatalf("NewUnmixer failed: %v", err)
	}
	chromo, err := u.Apply(mat.NewDense(1, 2, []float64{0.01, -0.02}))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if r, c := chromo.Dims(); r != 2 || c != 2 {
		t.Fatalf("expected 2x2 chromophore matrix, got %dx%d", r, c)
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if v := chromo.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("minimum-norm estimate at (%d,%d) is not finite: %v", i, j, v)
			}
		}
	}
}

// TestUnmixerShapeCheck verifies the wavelength-count check on input.
func TestUnmixerShapeCheck(t *testing.T) {
	u, err := NewUnmixer(testTable, []float64{760, 850})
	if err != nil {
		t.Fatalf("NewUnmixer failed: %v", err)
	}
	if _, err := u.Apply(mat.NewDense(3, 2, nil)); err == nil {
		t.Errorf("expected an error for a mismatched wavelength count")
	}
}

// TestCondition sanity-checks the conditioning diagnostic.
func TestCondition(t *testing.T) {
	cond, err := Condition(testTable, []float64{760, 850})
	if err != nil {
		t.Fatalf("Condition failed: %v", err)
	}
	if cond < 1 || cond > 100 {
		t.Errorf("expected a modest condition number for well-separated wavelengths, got %v", cond)
	}
}
