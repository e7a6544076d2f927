package recon

import (
	"errors"

	"dotrecon/pkg/spatial"
)

// Error taxonomy of the reconstruction engine. Every failure returned by
// this package wraps one of these sentinels, so callers can classify with
// errors.Is. All configuration and dimension checks run before the frame
// loop: a run either fails eagerly with no output, or completes.
var (
	// ErrInvalidConfiguration marks an unrecognized or inconsistent
	// configuration, such as requesting mua images from a multispectral
	// reconstruction.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrMissingInput marks a run that has neither an inverse operator
	// nor the inputs required to compute one.
	ErrMissingInput = errors.New("missing input")

	// ErrDimensionMismatch marks disagreeing channel counts between the
	// measurement series and the inverse operator, or inconsistent
	// basis/mesh dimensions.
	ErrDimensionMismatch = spatial.ErrDimensionMismatch
)
