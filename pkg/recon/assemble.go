package recon

import (
	"gonum.org/v1/gonum/mat"

	"dotrecon/internal/models"
)

// assembler accumulates per-frame node vectors into frames x nodes image
// arrays. Each frame owns its own row, so parallel frame workers write
// without contention.
type assembler struct {
	frames int
	images []models.Image
	muaAt  int // index of the first per-wavelength mua image, or -1
}

// newAssembler preallocates the output arrays. names lists the images in
// output order; muaAt is the index of the first per-wavelength absorption
// image (-1 when none). Volume arrays are only allocated when the mapping
// regime produces volume vectors at all.
func newAssembler(frames int, names []string, volNodes, surfNodes int, produceVolume bool, muaAt int) *assembler {
	a := &assembler{frames: frames, muaAt: muaAt}
	a.images = make([]models.Image, len(names))
	for i, name := range names {
		a.images[i].Name = name
		a.images[i].Surface = mat.NewDense(frames, surfNodes, nil)
		if produceVolume {
			a.images[i].Volume = mat.NewDense(frames, volNodes, nil)
		}
	}
	return a
}

// setFrame stores one frame of one image. volume may be nil in the
// cortex regime.
func (a *assembler) setFrame(frame, image int, volume, surface *mat.VecDense) {
	a.images[image].Surface.SetRow(frame, surface.RawVector().Data)
	if volume != nil && a.images[image].Volume != nil {
		a.images[image].Volume.SetRow(frame, volume.RawVector().Data)
	}
}

// finalize applies the suppression rules and returns the image set.
// Volume arrays are dropped when volume output is disabled or the
// reconstruction space is the cortex; per-wavelength mua volume arrays
// are additionally dropped when only haemoglobin output was requested.
func (a *assembler) finalize(res Resolved) *models.ImageSet {
	dropAll := !res.SaveVolumeImages || res.Space == SpaceCortex
	for i := range a.images {
		if dropAll {
			a.images[i].Volume = nil
			continue
		}
		if res.Image == ImageHaem && a.muaAt >= 0 && i >= a.muaAt {
			a.images[i].Volume = nil
		}
	}
	return &models.ImageSet{Images: a.images}
}
