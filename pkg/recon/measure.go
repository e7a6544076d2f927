package recon

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"dotrecon/internal/models"
)

// activeColumns returns, per wavelength index, the series column indices
// that are active at that wavelength, in stored channel order.
//
// This ordering is the column contract of the inverse operator: the k-th
// selected channel of a wavelength multiplies the k-th column of that
// wavelength's inversion matrix. Reordering here would not fail, it would
// silently corrupt every image.
func activeColumns(series *models.MeasurementSeries) [][]int {
	cols := make([][]int, series.WavelengthCount())
	for i, ch := range series.Channels {
		if !ch.Active {
			continue
		}
		if ch.WavelengthIndex < 0 || ch.WavelengthIndex >= len(cols) {
			continue
		}
		cols[ch.WavelengthIndex] = append(cols[ch.WavelengthIndex], i)
	}
	return cols
}

// frameVector extracts the active-channel measurement vector of one frame
// for the given column selection, negated to the sign convention the
// inverse operator expects (measurement = -dOD).
func frameVector(series *models.MeasurementSeries, cols []int, frame int) *mat.VecDense {
	row := series.Data.RawRowView(frame)
	v := mat.NewVecDense(len(cols), nil)
	for k, c := range cols {
		v.SetVec(k, row[c])
	}
	floats.Scale(-1, v.RawVector().Data)
	return v
}

// combinedFrameVector concatenates all wavelengths' frame vectors in
// wavelength-major order, the layout a combined multispectral operator's
// columns assume.
func combinedFrameVector(series *models.MeasurementSeries, cols [][]int, frame int) *mat.VecDense {
	total := 0
	for _, c := range cols {
		total += len(c)
	}
	v := mat.NewVecDense(total, nil)
	row := series.Data.RawRowView(frame)
	k := 0
	for _, c := range cols {
		for _, col := range c {
			v.SetVec(k, -row[col])
			k++
		}
	}
	return v
}

// checkDimensions verifies, before any frame is touched, that the
// measurement series and the inverse operator agree on channel counts.
func checkDimensions(series *models.MeasurementSeries, op *models.InverseOperator, cols [][]int) error {
	if series.Data == nil {
		return fmt.Errorf("%w: measurement series has no data", ErrDimensionMismatch)
	}
	_, dataCols := series.Data.Dims()
	if dataCols != series.ChannelCount() {
		return fmt.Errorf("%w: series has %d data columns but %d channel descriptors",
			ErrDimensionMismatch, dataCols, series.ChannelCount())
	}

	if op.IsMultispectral() {
		total := 0
		for _, c := range cols {
			total += len(c)
		}
		rows, opCols := op.Combined.Dims()
		if opCols != total {
			return fmt.Errorf("%w: combined operator has %d columns, series has %d active channels",
				ErrDimensionMismatch, opCols, total)
		}
		if rows%2 != 0 {
			return fmt.Errorf("%w: combined operator has odd row count %d, expected 2N packing",
				ErrDimensionMismatch, rows)
		}
		return nil
	}

	if len(op.PerWavelength) != len(cols) {
		return fmt.Errorf("%w: operator covers %d wavelengths, series has %d",
			ErrDimensionMismatch, len(op.PerWavelength), len(cols))
	}
	nodes := op.NodeCount()
	for w, m := range op.PerWavelength {
		rows, opCols := m.Dims()
		if opCols != len(cols[w]) {
			return fmt.Errorf("%w: operator for wavelength %d has %d columns, series has %d active channels",
				ErrDimensionMismatch, w, opCols, len(cols[w]))
		}
		if rows != nodes {
			return fmt.Errorf("%w: operator for wavelength %d maps to %d nodes, wavelength 0 maps to %d",
				ErrDimensionMismatch, w, rows, nodes)
		}
	}
	return nil
}
