package recon

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"dotrecon/internal/models"
)

// ImageSummary holds descriptive statistics of one reconstructed image
// sequence, computed over its surface array.
type ImageSummary struct {
	Name   string
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Summarize computes per-image summary statistics for a run report.
func Summarize(set *models.ImageSet) []ImageSummary {
	summaries := make([]ImageSummary, 0, len(set.Images))
	for _, img := range set.Images {
		if img.Surface == nil {
			continue
		}
		data := img.Surface.RawMatrix().Data
		if len(data) == 0 {
			continue
		}
		summaries = append(summaries, ImageSummary{
			Name:   img.Name,
			Mean:   stat.Mean(data, nil),
			StdDev: stat.StdDev(data, nil),
			Min:    floats.Min(data),
			Max:    floats.Max(data),
		})
	}
	return summaries
}
