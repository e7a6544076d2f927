// Package unmix recovers oxy- and deoxy-hemoglobin concentration changes
// from multi-wavelength absorption images via known molar extinction
// coefficients.
package unmix

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"dotrecon/internal/models"
)

// ExtinctionScale is the fixed normalization applied to tabulated
// extinction coefficients before the unmixing matrix is inverted. It is
// a preserved constant of the processing chain; changing it rescales
// every chromophore image.
const ExtinctionScale = 1e-3

// ErrSingular is returned when the extinction matrix cannot be
// factorized.
var ErrSingular = errors.New("unmix: extinction matrix factorization failed")

// ExtinctionMatrix builds the (wavelengths x 2) matrix of scaled
// extinction coefficients, column 0 oxy- and column 1 deoxy-hemoglobin,
// for the given wavelengths in order.
func ExtinctionMatrix(table models.ExtinctionTable, wavelengths []float64) (*mat.Dense, error) {
	if len(wavelengths) == 0 {
		return nil, fmt.Errorf("unmix: no wavelengths supplied")
	}
	e := mat.NewDense(len(wavelengths), 2, nil)
	for i, wl := range wavelengths {
		entry, ok := table.Lookup(wl)
		if !ok {
			return nil, fmt.Errorf("unmix: no extinction coefficients tabulated for %.1f nm", wl)
		}
		e.Set(i, 0, entry.HbO*ExtinctionScale)
		e.Set(i, 1, entry.HbR*ExtinctionScale)
	}
	return e, nil
}

// PseudoInverse returns the Moore-Penrose pseudo-inverse of a via thin
// SVD, with singular values below the usual machine-precision tolerance
// treated as zero.
//
// The result is defined for any shape: an under-determined system (more
// columns than rows) yields the minimum-norm solution when the result is
// used as a left-multiplier.
func PseudoInverse(a *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, ErrSingular
	}

	rows, cols := a.Dims()
	s := svd.Values(nil)
	tol := float64(max(rows, cols)) * s[0] * 2.220446049250313e-16
	inv := make([]float64, len(s))
	for i, v := range s {
		if v > tol {
			inv[i] = 1 / v
		}
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var tmp mat.Dense
	tmp.Mul(&v, mat.NewDiagDense(len(inv), inv))
	pinv := mat.NewDense(cols, rows, nil)
	pinv.Mul(&tmp, u.T())
	return pinv, nil
}

// Unmixer converts stacked per-wavelength absorption vectors into
// chromophore concentration vectors. The conversion matrix is computed
// once and reused across frames.
type Unmixer struct {
	// pinv is the (2 x wavelengths) pseudo-inverse of the scaled
	// extinction matrix.
	pinv *mat.Dense
}

// NewUnmixer builds an Unmixer for the given wavelengths. With two
// well-separated wavelengths the unmixing is an exact least-squares
// solve; with a single wavelength it is under-determined and yields the
// minimum-norm estimate, which is well defined but physically weak.
func NewUnmixer(table models.ExtinctionTable, wavelengths []float64) (*Unmixer, error) {
	e, err := ExtinctionMatrix(table, wavelengths)
	if err != nil {
		return nil, err
	}
	pinv, err := PseudoInverse(e)
	if err != nil {
		return nil, err
	}
	return &Unmixer{pinv: pinv}, nil
}

// Apply unmixes a (wavelengths x N) stacked absorption matrix into a
// (2 x N) chromophore matrix, row 0 oxy- and row 1 deoxy-hemoglobin.
func (u *Unmixer) Apply(muaStack *mat.Dense) (*mat.Dense, error) {
	wl, n := muaStack.Dims()
	_, expect := u.pinv.Dims()
	if wl != expect {
		return nil, fmt.Errorf("unmix: absorption stack has %d wavelength rows, unmixer expects %d", wl, expect)
	}
	chromo := mat.NewDense(2, n, nil)
	chromo.Mul(u.pinv, muaStack)
	return chromo, nil
}

// Condition returns the 2-norm condition number of the scaled extinction
// matrix for the given wavelengths, as a diagnostic for how well posed
// the unmixing is. Returns +Inf for a rank-deficient matrix.
func Condition(table models.ExtinctionTable, wavelengths []float64) (float64, error) {
	e, err := ExtinctionMatrix(table, wavelengths)
	if err != nil {
		return 0, err
	}
	var svd mat.SVD
	if ok := svd.Factorize(e, mat.SVDThin); !ok {
		return 0, ErrSingular
	}
	s := svd.Values(nil)
	if s[len(s)-1] == 0 {
		return math.Inf(1), nil
	}
	return s[0] / s[len(s)-1], nil
}
