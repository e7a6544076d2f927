package models

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// Channel describes a single source-detector measurement channel.
type Channel struct {
	// WavelengthIndex is the index into the series wavelength list
	// identifying which laser wavelength this channel was measured at.
	WavelengthIndex int

	// Active marks the channel as usable after quality screening.
	// Inactive channels are excluded from reconstruction.
	Active bool
}

// MeasurementSeries holds a preprocessed optical measurement recording:
// a frames-by-channels matrix of optical-density changes plus the channel
// metadata needed to slice it per wavelength.
//
// The channel ordering is a hard contract: the columns of any inverse
// operator applied to this series are assumed to follow the same order.
type MeasurementSeries struct {
	// ID identifies the source recording, carried into provenance.
	ID string

	// Data is the frames x channels matrix of optical-density changes.
	Data *mat.Dense

	// Channels carries per-column wavelength and screening metadata.
	// len(Channels) must equal the column count of Data.
	Channels []Channel

	// Wavelengths lists the laser wavelengths in nm, indexed by
	// Channel.WavelengthIndex.
	Wavelengths []float64

	// Extinction provides molar extinction coefficients for the
	// wavelengths present in this series.
	Extinction ExtinctionTable
}

// FrameCount returns the number of measurement frames in the series.
func (s *MeasurementSeries) FrameCount() int {
	if s.Data == nil {
		return 0
	}
	frames, _ := s.Data.Dims()
	return frames
}

// ChannelCount returns the number of measurement channels per frame.
func (s *MeasurementSeries) ChannelCount() int {
	return len(s.Channels)
}

// WavelengthCount returns the number of distinct laser wavelengths.
func (s *MeasurementSeries) WavelengthCount() int {
	return len(s.Wavelengths)
}

// ExtinctionEntry holds the molar extinction coefficients of oxy- and
// deoxy-hemoglobin at one wavelength.
type ExtinctionEntry struct {
	// Wavelength in nm.
	Wavelength float64

	// HbO is the oxy-hemoglobin extinction coefficient.
	HbO float64

	// HbR is the deoxy-hemoglobin extinction coefficient.
	HbR float64
}

// ExtinctionTable maps wavelengths to hemoglobin extinction coefficients.
type ExtinctionTable []ExtinctionEntry

// Lookup returns the extinction coefficients for the given wavelength.
// The second return value is false when the wavelength is not tabulated.
func (t ExtinctionTable) Lookup(wavelength float64) (ExtinctionEntry, bool) {
	for _, e := range t {
		if e.Wavelength == wavelength {
			return e, true
		}
	}
	return ExtinctionEntry{}, false
}

// OperatorSettings records the configuration an inverse operator was
// computed with. When an operator is supplied to a run, these values take
// precedence over caller-requested ones for the fields they cover.
type OperatorSettings struct {
	// Method is the reconstruction method: "standard" or "multispectral".
	Method string

	// Space is the reconstruction space: "volume" or "cortex".
	Space string

	// Reg is the regularization method used to invert the Jacobian.
	Reg string

	// HyperParameter is the regularization hyperparameter, a scalar or
	// a vector of values.
	HyperParameter []float64
}

// LogEntry is one (key, value) pair of an artifact provenance log.
type LogEntry struct {
	Key   string
	Value string
}

// InverseOperator is a regularized (pseudo-)inverse of a forward
// sensitivity matrix. It maps active-channel measurement vectors into
// node-space absorption or chromophore estimates.
//
// Exactly one of Combined and PerWavelength is populated: Combined for a
// multispectral operator (rows packed oxy then deoxy, 2N x totalActive),
// PerWavelength for standard per-wavelength operators (N x active_w each).
type InverseOperator struct {
	// ID identifies the operator artifact, carried into provenance.
	ID string

	// Combined is the single multispectral inversion matrix, or nil.
	Combined *mat.Dense

	// PerWavelength holds one inversion matrix per wavelength, or nil.
	PerWavelength []*mat.Dense

	// Basis describes the reduced basis the operator reconstructs into,
	// when one was used; nil when the operator works in mesh space.
	Basis *BasisDefinition

	// Recorded is the configuration the operator was computed with.
	Recorded OperatorSettings

	// Log is the operator's provenance log.
	Log []LogEntry
}

// IsMultispectral reports whether the operator is a single combined
// multispectral inversion.
func (op *InverseOperator) IsMultispectral() bool {
	return op.Combined != nil
}

// NodeCount returns N, the number of reconstruction nodes the operator
// maps into. For a multispectral operator the row count is 2N.
func (op *InverseOperator) NodeCount() int {
	if op.Combined != nil {
		rows, _ := op.Combined.Dims()
		return rows / 2
	}
	if len(op.PerWavelength) > 0 && op.PerWavelength[0] != nil {
		rows, _ := op.PerWavelength[0].Dims()
		return rows
	}
	return 0
}

// BasisDefinition describes a reduced reconstruction basis: a regular
// grid bounding the head volume, together with the linear operator that
// lifts basis-space vectors into volume-mesh space.
type BasisDefinition struct {
	// Dims are the grid dimensions of the basis.
	Dims [3]int

	// BasisToVolume is the volumeNodes x basisNodes lifting matrix.
	BasisToVolume *mat.Dense
}

// NodeCount returns the number of basis nodes.
func (b *BasisDefinition) NodeCount() int {
	if b.BasisToVolume == nil {
		return b.Dims[0] * b.Dims[1] * b.Dims[2]
	}
	_, cols := b.BasisToVolume.Dims()
	return cols
}

// HeadVolumeMesh is the tetrahedral head mesh the forward model was
// built on. Only the node set matters to reconstruction.
type HeadVolumeMesh struct {
	// Nodes are the mesh node coordinates in mm.
	Nodes [][3]float64
}

// CorticalSurfaceMesh is the grey-matter surface mesh used for surface
// image output.
type CorticalSurfaceMesh struct {
	// Nodes are the surface node coordinates in mm.
	Nodes [][3]float64
}

// SpatialMapping bundles the spatial representations a reconstruction
// moves between: the head volume mesh, the cortical surface mesh, and
// the fixed volume-to-surface mapping operator.
type SpatialMapping struct {
	// ID identifies the mapping artifact.
	ID string

	// Volume is the head volume mesh.
	Volume HeadVolumeMesh

	// Surface is the cortical surface mesh.
	Surface CorticalSurfaceMesh

	// Vol2GM is the surfaceNodes x volumeNodes operator mapping volume
	// node vectors onto the cortical surface.
	Vol2GM *mat.Dense
}

// Jacobian is the forward sensitivity matrix set, one matrix per
// wavelength. It is only passed through to an operator provider; the
// reconstruction engine never applies it directly.
type Jacobian struct {
	// PerWavelength holds one channels x nodes sensitivity matrix per
	// wavelength.
	PerWavelength []*mat.Dense
}

// Image is one reconstructed image sequence: a chromophore or a
// per-wavelength absorption image, in volume and surface space.
type Image struct {
	// Name labels the image, e.g. "HbO", "HbR" or "mua_850nm".
	Name string

	// Volume is the frames x volumeNodes image, or nil when volume
	// output is suppressed.
	Volume *mat.Dense

	// Surface is the frames x surfaceNodes image.
	Surface *mat.Dense
}

// ImageSet is the reconstruction output: one Image per chromophore or
// per wavelength, in frame order.
type ImageSet struct {
	Images []Image
}

// Find returns the image with the given name, or nil.
func (set *ImageSet) Find(name string) *Image {
	for i := range set.Images {
		if set.Images[i].Name == name {
			return &set.Images[i]
		}
	}
	return nil
}

// Provenance records where an image set came from: source artifacts and
// the effective configuration of the run that produced it.
type Provenance struct {
	// CreatedAt is the reconstruction timestamp.
	CreatedAt time.Time

	// SeriesID identifies the source measurement series.
	SeriesID string

	// OperatorID identifies the inverse operator used.
	OperatorID string

	// Method, Space and Reg are the effective (merged) configuration.
	Method string
	Space  string
	Reg    string

	// HyperParameter is the effective regularization hyperparameter.
	HyperParameter []float64

	// Log carries additional (key, value) pairs.
	Log []LogEntry
}
