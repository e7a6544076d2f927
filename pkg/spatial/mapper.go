// Package spatial transforms reconstructed node-space vectors between the
// three spatial representations of a reconstruction: the reduced basis
// grid, the head volume mesh, and the cortical surface mesh.
package spatial

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"dotrecon/internal/models"
)

// ErrDimensionMismatch is returned when mesh, basis and operator
// dimensions are inconsistent with each other.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// BasisMapper lifts reduced-basis vectors into head-volume space.
//
// How the lifting is realized (an explicit matrix, an on-the-fly mesh
// basis) is an implementation detail; the reconstruction core only ever
// calls this interface.
type BasisMapper interface {
	// BasisToVolume maps a basis-space vector to a volume-mesh vector.
	BasisToVolume(v *mat.VecDense) (*mat.VecDense, error)

	// BasisNodeCount returns the expected input vector length.
	BasisNodeCount() int

	// VolumeNodeCount returns the output vector length.
	VolumeNodeCount() int
}

// matrixBasis is a BasisMapper backed by an explicit lifting matrix.
type matrixBasis struct {
	lift *mat.Dense
}

// NewMatrixBasis wraps a basis definition's lifting matrix as a
// BasisMapper.
func NewMatrixBasis(basis *models.BasisDefinition) (BasisMapper, error) {
	if basis == nil || basis.BasisToVolume == nil {
		return nil, fmt.Errorf("%w: basis definition has no basis-to-volume operator", ErrDimensionMismatch)
	}
	return &matrixBasis{lift: basis.BasisToVolume}, nil
}

func (b *matrixBasis) BasisToVolume(v *mat.VecDense) (*mat.VecDense, error) {
	rows, cols := b.lift.Dims()
	if v.Len() != cols {
		return nil, fmt.Errorf("%w: basis vector length %d, lifting operator expects %d", ErrDimensionMismatch, v.Len(), cols)
	}
	out := mat.NewVecDense(rows, nil)
	out.MulVec(b.lift, v)
	return out, nil
}

func (b *matrixBasis) BasisNodeCount() int {
	_, cols := b.lift.Dims()
	return cols
}

func (b *matrixBasis) VolumeNodeCount() int {
	rows, _ := b.lift.Dims()
	return rows
}

// Mapper applies one of three mutually exclusive mapping regimes to a
// reconstructed node-space vector:
//
//  1. a basis is present: lift basis vector to the volume mesh, then map
//     the volume vector onto the surface via vol2gm;
//  2. no basis, cortex-space reconstruction: the vector is already in
//     surface space and is used directly, with no volume output;
//  3. no basis, volume-space reconstruction: the vector is in volume-mesh
//     space, the surface vector is obtained via vol2gm.
type Mapper struct {
	basis  BasisMapper
	vol2gm *mat.Dense
	cortex bool

	volumeNodes  int
	surfaceNodes int
}

// NewMapper builds a Mapper for the given spatial mapping artifact.
// basis may be nil when the inverse operator works in mesh space;
// cortex selects the surface-space regime when no basis is present.
func NewMapper(mapping *models.SpatialMapping, basis BasisMapper, cortex bool) (*Mapper, error) {
	if mapping == nil {
		return nil, fmt.Errorf("%w: no spatial mapping supplied", ErrDimensionMismatch)
	}

	volumeNodes := len(mapping.Volume.Nodes)
	surfaceNodes := len(mapping.Surface.Nodes)

	m := &Mapper{
		basis:        basis,
		vol2gm:       mapping.Vol2GM,
		cortex:       cortex,
		volumeNodes:  volumeNodes,
		surfaceNodes: surfaceNodes,
	}

	// The cortex regime without a basis is the only one that never
	// touches vol2gm; every other regime requires it.
	if basis == nil && cortex {
		if surfaceNodes == 0 {
			return nil, fmt.Errorf("%w: cortical surface mesh has no nodes", ErrDimensionMismatch)
		}
		return m, nil
	}

	if mapping.Vol2GM == nil {
		return nil, fmt.Errorf("%w: spatial mapping has no volume-to-surface operator", ErrDimensionMismatch)
	}
	gmRows, gmCols := mapping.Vol2GM.Dims()
	if gmRows != surfaceNodes {
		return nil, fmt.Errorf("%w: vol2gm has %d rows, surface mesh has %d nodes", ErrDimensionMismatch, gmRows, surfaceNodes)
	}
	if gmCols != volumeNodes {
		return nil, fmt.Errorf("%w: vol2gm has %d columns, volume mesh has %d nodes", ErrDimensionMismatch, gmCols, volumeNodes)
	}

	if basis != nil && basis.VolumeNodeCount() != volumeNodes {
		return nil, fmt.Errorf("%w: basis lifts to %d nodes, volume mesh has %d", ErrDimensionMismatch, basis.VolumeNodeCount(), volumeNodes)
	}

	return m, nil
}

// InputNodeCount returns the node-space vector length the active regime
// expects, which must match the inverse operator's native node count.
func (m *Mapper) InputNodeCount() int {
	switch {
	case m.basis != nil:
		return m.basis.BasisNodeCount()
	case m.cortex:
		return m.surfaceNodes
	default:
		return m.volumeNodes
	}
}

// VolumeNodeCount returns the head volume mesh node count.
func (m *Mapper) VolumeNodeCount() int { return m.volumeNodes }

// SurfaceNodeCount returns the cortical surface mesh node count.
func (m *Mapper) SurfaceNodeCount() int { return m.surfaceNodes }

// ProducesVolume reports whether the active regime yields a volume-space
// vector at all. The cortex regime without a basis does not.
func (m *Mapper) ProducesVolume() bool {
	return m.basis != nil || !m.cortex
}

// Apply maps a reconstructed node-space vector into volume and surface
// space. volume is nil in the cortex regime. The input vector is not
// modified.
func (m *Mapper) Apply(v *mat.VecDense) (volume, surface *mat.VecDense, err error) {
	if v.Len() != m.InputNodeCount() {
		return nil, nil, fmt.Errorf("%w: node vector length %d, mapper expects %d", ErrDimensionMismatch, v.Len(), m.InputNodeCount())
	}

	switch {
	case m.basis != nil:
		volume, err = m.basis.BasisToVolume(v)
		if err != nil {
			return nil, nil, err
		}
	case m.cortex:
		return nil, v, nil
	default:
		volume = v
	}

	surface = mat.NewVecDense(m.surfaceNodes, nil)
	surface.MulVec(m.vol2gm, volume)
	return volume, surface, nil
}
