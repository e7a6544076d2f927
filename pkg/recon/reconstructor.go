// Package recon is the linear image-reconstruction engine: it applies a
// precomputed regularized inverse sensitivity operator to preprocessed
// optical measurement frames and produces spatial images of absorption
// and hemoglobin concentration changes.
package recon

import (
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"dotrecon/internal/models"
	"dotrecon/pkg/spatial"
	"dotrecon/pkg/unmix"
)

// Reconstructor runs the reconstruction pipeline for one measurement
// series:
//
//  1. Resolve and validate the configuration, merging in the recorded
//     settings of a supplied inverse operator.
//  2. Obtain the inverse operator, computing it through the provider
//     when the caller did not supply one.
//  3. Validate every channel, node and mesh dimension eagerly.
//  4. Reconstruct frames, in parallel across frame blocks.
//  5. Apply suppression rules, attach provenance, hand off to the sink.
type Reconstructor struct {
	params   *Params
	resolved Resolved

	operator *models.InverseOperator
	mapper   *spatial.Mapper
	cols     [][]int
	unmixer  *unmix.Unmixer
	asm      *assembler

	// chromoAt/muaAt locate image groups in the assembler; -1 when the
	// group is not produced.
	chromoAt int
	muaAt    int
}

// NewReconstructor creates a reconstructor for the given parameters.
func NewReconstructor(params *Params) *Reconstructor {
	return &Reconstructor{params: params}
}

// Resolved returns the effective configuration after Process has merged
// any operator-recorded settings. Zero value before Process runs.
func (r *Reconstructor) Resolved() Resolved {
	return r.resolved
}

// Process runs the full pipeline and returns the reconstructed image set
// with its provenance. The run is side-effect-free until the final sink
// hand-off; any failure aborts the whole run with no partial output.
func (r *Reconstructor) Process() (*models.ImageSet, *models.Provenance, error) {
	res, err := Resolve(r.params)
	if err != nil {
		return nil, nil, err
	}
	r.resolved = res

	if err := r.prepare(); err != nil {
		return nil, nil, err
	}
	if err := r.reconstructFrames(); err != nil {
		return nil, nil, err
	}
	return r.finalize()
}

// prepare obtains the operator and runs every eager check: nothing after
// this point should be able to fail on a well-formed frame.
func (r *Reconstructor) prepare() error {
	p := r.params
	if p.Series == nil {
		return fmt.Errorf("%w: no measurement series supplied", ErrMissingInput)
	}
	if p.Mapping == nil {
		return fmt.Errorf("%w: no spatial mapping supplied", ErrMissingInput)
	}

	r.operator = p.Operator
	if r.operator == nil {
		if p.Provider == nil || p.Jacobian == nil {
			return fmt.Errorf("%w: neither an inverse operator nor a Jacobian and provider to compute one", ErrMissingInput)
		}
		op, err := p.Provider.ComputeInverseOperator(p.Jacobian, p.Series, p.Mapping, r.resolved)
		if err != nil {
			return fmt.Errorf("%w: inverse operator computation failed: %v", ErrMissingInput, err)
		}
		r.operator = op
	}

	if r.operator.IsMultispectral() != (r.resolved.Method == MethodMultispectral) {
		return fmt.Errorf("%w: operator form is %s but effective reconMethod is %s",
			ErrInvalidConfiguration, methodOfOperator(r.operator), r.resolved.Method)
	}

	r.cols = activeColumns(p.Series)
	if err := checkDimensions(p.Series, r.operator, r.cols); err != nil {
		return err
	}

	var basis spatial.BasisMapper
	if r.operator.Basis != nil {
		var err error
		if basis, err = spatial.NewMatrixBasis(r.operator.Basis); err != nil {
			return err
		}
	}
	mapper, err := spatial.NewMapper(p.Mapping, basis, r.resolved.Space == SpaceCortex)
	if err != nil {
		return err
	}
	if mapper.InputNodeCount() != r.operator.NodeCount() {
		return fmt.Errorf("%w: operator reconstructs %d nodes, spatial mapping expects %d",
			ErrDimensionMismatch, r.operator.NodeCount(), mapper.InputNodeCount())
	}
	r.mapper = mapper

	needUnmix := r.resolved.Method == MethodStandard && r.resolved.Image != ImageMuA
	if needUnmix {
		u, err := unmix.NewUnmixer(p.Series.Extinction, p.Series.Wavelengths)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMissingInput, err)
		}
		r.unmixer = u
	}

	// Output layout: chromophore images first, then one absorption image
	// per wavelength.
	var names []string
	r.chromoAt, r.muaAt = -1, -1
	if r.resolved.Method == MethodMultispectral || r.resolved.Image != ImageMuA {
		r.chromoAt = len(names)
		names = append(names, "HbO", "HbR")
	}
	if r.resolved.Method == MethodStandard && r.resolved.Image != ImageHaem {
		r.muaAt = len(names)
		for _, wl := range p.Series.Wavelengths {
			names = append(names, fmt.Sprintf("mua_%gnm", wl))
		}
	}
	r.asm = newAssembler(p.Series.FrameCount(), names,
		r.mapper.VolumeNodeCount(), r.mapper.SurfaceNodeCount(),
		r.mapper.ProducesVolume(), r.muaAt)
	return nil
}

func methodOfOperator(op *models.InverseOperator) string {
	if op.IsMultispectral() {
		return "multispectral"
	}
	return "standard"
}

// reconstructFrames fans frames out over worker goroutines. Frames are
// independent, operators and mapping matrices are read-only, and every
// frame writes only its own output rows, so workers share nothing but
// the inputs.
func (r *Reconstructor) reconstructFrames() error {
	frames := r.params.Series.FrameCount()
	if frames == 0 {
		return nil
	}

	workers := r.resolved.Workers
	if workers > frames {
		workers = frames
	}
	framesPerWorker := (frames + workers - 1) / workers

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			start := worker * framesPerWorker
			end := start + framesPerWorker
			if end > frames {
				end = frames
			}

			// Per-worker scratch for the stacked absorption matrix.
			var muaStack *mat.Dense
			if r.resolved.Method == MethodStandard {
				muaStack = mat.NewDense(r.params.Series.WavelengthCount(), r.operator.NodeCount(), nil)
			}

			for f := start; f < end; f++ {
				if err := r.reconstructFrame(f, muaStack); err != nil {
					errs[worker] = fmt.Errorf("frame %d: %w", f, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// reconstructFrame computes, maps and stores every image of one frame.
func (r *Reconstructor) reconstructFrame(frame int, muaStack *mat.Dense) error {
	n := r.operator.NodeCount()

	if r.resolved.Method == MethodMultispectral {
		y := combinedFrameVector(r.params.Series, r.cols, frame)
		node := mat.NewVecDense(2*n, nil)
		node.MulVec(r.operator.Combined, y)

		// Combined operators pack oxy node values first, deoxy second.
		hbo := node.SliceVec(0, n).(*mat.VecDense)
		hbr := node.SliceVec(n, 2*n).(*mat.VecDense)
		if err := r.storeFrame(frame, r.chromoAt, hbo); err != nil {
			return err
		}
		return r.storeFrame(frame, r.chromoAt+1, hbr)
	}

	node := mat.NewVecDense(n, nil)
	for w := range r.cols {
		y := frameVector(r.params.Series, r.cols[w], frame)
		node.MulVec(r.operator.PerWavelength[w], y)
		muaStack.SetRow(w, node.RawVector().Data)

		if r.muaAt >= 0 {
			if err := r.storeFrame(frame, r.muaAt+w, node); err != nil {
				return err
			}
		}
	}

	if r.chromoAt < 0 {
		return nil
	}

	// Spectral unmixing needs every wavelength of this frame; the loop
	// above is the barrier.
	chromo, err := r.unmixer.Apply(muaStack)
	if err != nil {
		return err
	}
	hbo := mat.NewVecDense(n, chromo.RawRowView(0))
	hbr := mat.NewVecDense(n, chromo.RawRowView(1))
	if err := r.storeFrame(frame, r.chromoAt, hbo); err != nil {
		return err
	}
	return r.storeFrame(frame, r.chromoAt+1, hbr)
}

// storeFrame maps one node vector through the spatial regimes and writes
// it into the frame's output rows.
func (r *Reconstructor) storeFrame(frame, image int, node *mat.VecDense) error {
	volume, surface, err := r.mapper.Apply(node)
	if err != nil {
		return err
	}
	r.asm.setFrame(frame, image, volume, surface)
	return nil
}

// finalize applies suppression, attaches provenance, and hands the
// result to the sink.
func (r *Reconstructor) finalize() (*models.ImageSet, *models.Provenance, error) {
	set := r.asm.finalize(r.resolved)

	prov := &models.Provenance{
		CreatedAt:      time.Now(),
		SeriesID:       r.params.Series.ID,
		OperatorID:     r.operator.ID,
		Method:         r.resolved.Method.String(),
		Space:          r.resolved.Space.String(),
		Reg:            r.resolved.Reg.String(),
		HyperParameter: append([]float64(nil), r.resolved.HyperParameter...),
		Log:            append([]models.LogEntry(nil), r.operator.Log...),
	}

	if r.params.Sink != nil {
		if err := r.params.Sink.Save(set, prov, r.resolved.Persist); err != nil {
			return nil, nil, fmt.Errorf("saving image set: %w", err)
		}
	}
	return set, prov, nil
}
