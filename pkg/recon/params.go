package recon

import (
	"fmt"
	"runtime"
	"strings"

	"dotrecon/internal/models"
)

// ReconMethod selects the reconstruction strategy.
type ReconMethod int

const (
	// MethodStandard inverts each wavelength independently and unmixes
	// chromophores spectrally afterwards.
	MethodStandard ReconMethod = iota

	// MethodMultispectral applies a single combined inversion across all
	// wavelengths, producing chromophore images directly.
	MethodMultispectral
)

// ParseReconMethod parses a reconstruction method name.
func ParseReconMethod(s string) (ReconMethod, error) {
	switch strings.ToLower(s) {
	case "standard":
		return MethodStandard, nil
	case "multispectral":
		return MethodMultispectral, nil
	}
	return 0, fmt.Errorf("%w: unrecognized reconMethod %q", ErrInvalidConfiguration, s)
}

func (m ReconMethod) String() string {
	if m == MethodMultispectral {
		return "multispectral"
	}
	return "standard"
}

// ReconSpace selects the native node space of the reconstruction.
type ReconSpace int

const (
	// SpaceVolume reconstructs into the head volume mesh (or a reduced
	// basis bounding it).
	SpaceVolume ReconSpace = iota

	// SpaceCortex reconstructs directly onto the cortical surface mesh.
	SpaceCortex
)

// ParseReconSpace parses a reconstruction space name.
func ParseReconSpace(s string) (ReconSpace, error) {
	switch strings.ToLower(s) {
	case "volume":
		return SpaceVolume, nil
	case "cortex":
		return SpaceCortex, nil
	}
	return 0, fmt.Errorf("%w: unrecognized reconSpace %q", ErrInvalidConfiguration, s)
}

func (s ReconSpace) String() string {
	if s == SpaceCortex {
		return "cortex"
	}
	return "volume"
}

// RegMethod names the regularization scheme used to invert the Jacobian.
// It is forwarded to the operator provider and recorded in provenance;
// the engine itself never branches on it.
type RegMethod int

const (
	RegTikhonov RegMethod = iota
	RegCovariance
	RegSpatial
)

// ParseRegMethod parses a regularization method name.
func ParseRegMethod(s string) (RegMethod, error) {
	switch strings.ToLower(s) {
	case "tikhonov":
		return RegTikhonov, nil
	case "covariance":
		return RegCovariance, nil
	case "spatial":
		return RegSpatial, nil
	}
	return 0, fmt.Errorf("%w: unrecognized regMethod %q", ErrInvalidConfiguration, s)
}

func (r RegMethod) String() string {
	switch r {
	case RegCovariance:
		return "covariance"
	case RegSpatial:
		return "spatial"
	}
	return "tikhonov"
}

// ImageType selects which images the run produces.
type ImageType int

const (
	// ImageHaem produces oxy-/deoxy-hemoglobin concentration images.
	ImageHaem ImageType = iota

	// ImageMuA produces per-wavelength absorption images.
	ImageMuA

	// ImageBoth produces both.
	ImageBoth
)

// ParseImageType parses an image type name.
func ParseImageType(s string) (ImageType, error) {
	switch strings.ToLower(s) {
	case "haem":
		return ImageHaem, nil
	case "mua":
		return ImageMuA, nil
	case "both":
		return ImageBoth, nil
	}
	return 0, fmt.Errorf("%w: unrecognized imageType %q", ErrInvalidConfiguration, s)
}

func (t ImageType) String() string {
	switch t {
	case ImageMuA:
		return "mua"
	case ImageBoth:
		return "both"
	}
	return "haem"
}

// Provider computes an inverse operator when the caller did not supply
// one. It is the single potentially long-running external call of a run
// and is invoked at most once.
type Provider interface {
	ComputeInverseOperator(jac *models.Jacobian, series *models.MeasurementSeries,
		mapping *models.SpatialMapping, cfg Resolved) (*models.InverseOperator, error)
}

// Sink receives the finished image set. Implementations must not write
// anything when persist is false; the engine is a pure function of its
// inputs until this call.
type Sink interface {
	Save(set *models.ImageSet, prov *models.Provenance, persist bool) error
}

// Params holds the reconstruction configuration and artifact handles for
// one run.
type Params struct {
	// Method is the reconstruction strategy.
	Method ReconMethod

	// Space is the native reconstruction space.
	Space ReconSpace

	// Reg is the regularization method, forwarded to the operator
	// provider.
	Reg RegMethod

	// HyperParameter is the regularization hyperparameter, a scalar
	// (length 1) or a vector of values.
	HyperParameter []float64

	// Image selects which images to produce. MuA and Both require the
	// standard method.
	Image ImageType

	// SaveVolumeImages keeps volume-space images in the output; when
	// false all volume arrays are cleared after reconstruction.
	SaveVolumeImages bool

	// Persist forwards the finished image set to the sink for writing.
	Persist bool

	// Workers bounds frame-level parallelism; zero means all CPUs.
	Workers int

	// Series is the measurement series to reconstruct.
	Series *models.MeasurementSeries

	// Operator is an existing inverse operator. When set, its recorded
	// configuration overrides Method, Space, Reg and HyperParameter.
	Operator *models.InverseOperator

	// Mapping is the spatial mapping artifact.
	Mapping *models.SpatialMapping

	// Jacobian and Provider are used, once, to compute an inverse
	// operator when Operator is nil.
	Jacobian *models.Jacobian
	Provider Provider

	// Sink receives the finished image set; nil disables hand-off.
	Sink Sink
}

// Resolved is the effective configuration of a run after validation and
// after merging an existing operator's recorded settings.
type Resolved struct {
	Method           ReconMethod
	Space            ReconSpace
	Reg              RegMethod
	HyperParameter   []float64
	Image            ImageType
	SaveVolumeImages bool
	Persist          bool
	Workers          int
}

// Resolve validates the caller configuration and merges in the recorded
// settings of a supplied inverse operator. The recorded hyperparameter,
// method, regularization and space take precedence over the caller's
// values; the returned Resolved is the configuration actually in effect,
// and the one reported in provenance.
func Resolve(p *Params) (Resolved, error) {
	res := Resolved{
		Method:           p.Method,
		Space:            p.Space,
		Reg:              p.Reg,
		HyperParameter:   p.HyperParameter,
		Image:            p.Image,
		SaveVolumeImages: p.SaveVolumeImages,
		Persist:          p.Persist,
		Workers:          p.Workers,
	}

	if p.Operator != nil {
		var err error
		if res, err = mergeRecorded(res, p.Operator.Recorded); err != nil {
			return Resolved{}, err
		}
	}

	if len(res.HyperParameter) == 0 {
		return Resolved{}, fmt.Errorf("%w: no regularization hyperparameter", ErrInvalidConfiguration)
	}

	// The compatibility check runs on the merged configuration: an
	// operator recorded as multispectral rules out mua output no matter
	// what the caller asked for.
	if res.Image != ImageHaem && res.Method != MethodStandard {
		return Resolved{}, fmt.Errorf("%w: imageType %q requires reconMethod standard, got %q",
			ErrInvalidConfiguration, res.Image, res.Method)
	}

	if res.Workers <= 0 {
		res.Workers = runtime.NumCPU()
	}
	return res, nil
}

// mergeRecorded overlays an operator's recorded settings onto the caller
// configuration. Empty recorded fields leave the caller's value alone.
func mergeRecorded(res Resolved, rec models.OperatorSettings) (Resolved, error) {
	var err error
	if rec.Method != "" {
		if res.Method, err = ParseReconMethod(rec.Method); err != nil {
			return res, fmt.Errorf("operator recorded settings: %w", err)
		}
	}
	if rec.Space != "" {
		if res.Space, err = ParseReconSpace(rec.Space); err != nil {
			return res, fmt.Errorf("operator recorded settings: %w", err)
		}
	}
	if rec.Reg != "" {
		if res.Reg, err = ParseRegMethod(rec.Reg); err != nil {
			return res, fmt.Errorf("operator recorded settings: %w", err)
		}
	}
	if len(rec.HyperParameter) > 0 {
		res.HyperParameter = append([]float64(nil), rec.HyperParameter...)
	}
	return res, nil
}
