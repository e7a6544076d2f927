package spatial

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"

	"dotrecon/internal/models"
)

func testMapping(volNodes, surfNodes int, gm []float64) *models.SpatialMapping {
	mapping := &models.SpatialMapping{
		Volume:  models.HeadVolumeMesh{Nodes: make([][3]float64, volNodes)},
		Surface: models.CorticalSurfaceMesh{Nodes: make([][3]float64, surfNodes)},
	}
	if gm != nil {
		mapping.Vol2GM = mat.NewDense(surfNodes, volNodes, gm)
	}
	return mapping
}

// TestVolumeRegime checks the basis-free volume regime: the input vector
// is the volume image, the surface image comes from vol2gm.
func TestVolumeRegime(t *testing.T) {
	// Surface node 0 averages volume nodes 0 and 1; node 1 copies node 2.
	mapping := testMapping(3, 2, []float64{
		0.5, 0.5, 0,
		0, 0, 1,
	})

	m, err := NewMapper(mapping, nil, false)
	if err != nil {
		t.Fatalf("NewMapper failed: %v", err)
	}
	if m.InputNodeCount() != 3 {
		t.Errorf("expected input node count 3, got %d", m.InputNodeCount())
	}
	if !m.ProducesVolume() {
		t.Errorf("volume regime must produce volume vectors")
	}

	v := mat.NewVecDense(3, []float64{2, 4, 6})
	volume, surface, err := m.Apply(v)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !mat.Equal(volume, v) {
		t.Errorf("volume output should be the input vector, got %v", mat.Formatted(volume))
	}
	if surface.AtVec(0) != 3 || surface.AtVec(1) != 6 {
		t.Errorf("surface output: expected [3 6], got %v", mat.Formatted(surface))
	}
}

// TestCortexRegime checks the basis-free cortex regime: the vector is
// already surface-space and no volume output exists.
func TestCortexRegime(t *testing.T) {
	mapping := testMapping(10, 4, nil)

	m, err := NewMapper(mapping, nil, true)
	if err != nil {
		t.Fatalf("NewMapper failed: %v", err)
	}
	if m.InputNodeCount() != 4 {
		t.Errorf("expected input node count 4 (surface), got %d", m.InputNodeCount())
	}
	if m.ProducesVolume() {
		t.Errorf("cortex regime must not produce volume vectors")
	}

	v := mat.NewVecDense(4, []float64{1, 2, 3, 4})
	volume, surface, err := m.Apply(v)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if volume != nil {
		t.Errorf("cortex regime returned a volume vector")
	}
	if !mat.Equal(surface, v) {
		t.Errorf("surface output should be the input vector, got %v", mat.Formatted(surface))
	}
}

// TestBasisRegime checks the reduced-basis regime: lift to the volume
// mesh, then vol2gm to the surface.
func TestBasisRegime(t *testing.T) {
	// Two basis nodes lifted onto three volume nodes.
	basisDef := &models.BasisDefinition{
		Dims: [3]int{2, 1, 1},
		BasisToVolume: mat.NewDense(3, 2, []float64{
			1, 0,
			0, 1,
			1, 1,
		}),
	}
	basis, err := NewMatrixBasis(basisDef)
	if err != nil {
		t.Fatalf("NewMatrixBasis failed: %v", err)
	}

	mapping := testMapping(3, 1, []float64{1, 1, 1})
	m, err := NewMapper(mapping, basis, false)
	if err != nil {
		t.Fatalf("NewMapper failed: %v", err)
	}
	if m.InputNodeCount() != 2 {
		t.Errorf("expected input node count 2 (basis), got %d", m.InputNodeCount())
	}

	v := mat.NewVecDense(2, []float64{3, 5})
	volume, surface, err := m.Apply(v)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := []float64{3, 5, 8}
	for i, w := range want {
		if volume.AtVec(i) != w {
			t.Errorf("volume node %d: expected %v, got %v", i, w, volume.AtVec(i))
		}
	}
	if surface.AtVec(0) != 16 {
		t.Errorf("surface node 0: expected 16, got %v", surface.AtVec(0))
	}
}

// TestMapperValidation checks construction-time dimension checks.
func TestMapperValidation(t *testing.T) {
	t.Run("MissingVol2GM", func(t *testing.T) {
		if _, err := NewMapper(testMapping(3, 2, nil), nil, false); !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})

	t.Run("Vol2GMShape", func(t *testing.T) {
		mapping := testMapping(3, 2, []float64{1, 0, 0, 0, 1, 0})
		// Lie about the surface mesh size.
		mapping.Surface.Nodes = make([][3]float64, 5)
		if _, err := NewMapper(mapping, nil, false); !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})

	t.Run("BasisLiftShape", func(t *testing.T) {
		basis, err := NewMatrixBasis(&models.BasisDefinition{
			BasisToVolume: mat.NewDense(4, 2, nil),
		})
		if err != nil {
			t.Fatalf("NewMatrixBasis failed: %v", err)
		}
		mapping := testMapping(3, 2, []float64{1, 0, 0, 0, 1, 0})
		if _, err := NewMapper(mapping, basis, false); !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})

	t.Run("InputLength", func(t *testing.T) {
		mapping := testMapping(3, 2, []float64{1, 0, 0, 0, 1, 0})
		m, err := NewMapper(mapping, nil, false)
		if err != nil {
			t.Fatalf("NewMapper failed: %v", err)
		}
		if _, _, err := m.Apply(mat.NewVecDense(2, nil)); !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})
}
