// Package store reads and writes dotrecon artifacts as YAML files:
// measurement series, inverse operators, spatial mappings and
// reconstructed image sets.
package store

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"dotrecon/internal/models"
)

// Matrix is the on-disk form of a dense matrix: a list of equal-length rows.
type Matrix struct {
	Rows [][]float64 `yaml:"rows"`
}

// Dense converts the on-disk form into a gonum matrix.
func (m Matrix) Dense() (*mat.Dense, error) {
	if len(m.Rows) == 0 {
		return nil, fmt.Errorf("store: empty matrix")
	}
	cols := len(m.Rows[0])
	d := mat.NewDense(len(m.Rows), cols, nil)
	for i, row := range m.Rows {
		if len(row) != cols {
			return nil, fmt.Errorf("store: ragged matrix, row %d has %d values, row 0 has %d", i, len(row), cols)
		}
		d.SetRow(i, row)
	}
	return d, nil
}

// NewMatrix converts a gonum matrix into the on-disk form.
func NewMatrix(d *mat.Dense) Matrix {
	rows, cols := d.Dims()
	m := Matrix{Rows: make([][]float64, rows)}
	for i := 0; i < rows; i++ {
		m.Rows[i] = make([]float64, cols)
		copy(m.Rows[i], d.RawRowView(i))
	}
	return m
}

type channelYAML struct {
	WavelengthIndex int  `yaml:"wavelengthIndex"`
	Active          bool `yaml:"active"`
}

type extinctionYAML struct {
	Wavelength float64 `yaml:"wavelength"`
	HbO        float64 `yaml:"hbo"`
	HbR        float64 `yaml:"hbr"`
}

type measurementFile struct {
	ID          string           `yaml:"id"`
	Wavelengths []float64        `yaml:"wavelengths"`
	Channels    []channelYAML    `yaml:"channels"`
	Data        Matrix           `yaml:"data"`
	Extinction  []extinctionYAML `yaml:"extinction"`
}

// LoadMeasurementSeries reads a measurement series artifact.
func LoadMeasurementSeries(path string) (*models.MeasurementSeries, error) {
	var file measurementFile
	if err := readYAML(path, &file); err != nil {
		return nil, err
	}

	data, err := file.Data.Dense()
	if err != nil {
		return nil, fmt.Errorf("measurement series %s: %w", path, err)
	}

	series := &models.MeasurementSeries{
		ID:          file.ID,
		Data:        data,
		Wavelengths: file.Wavelengths,
	}
	for _, ch := range file.Channels {
		series.Channels = append(series.Channels, models.Channel{
			WavelengthIndex: ch.WavelengthIndex,
			Active:          ch.Active,
		})
	}
	for _, e := range file.Extinction {
		series.Extinction = append(series.Extinction, models.ExtinctionEntry{
			Wavelength: e.Wavelength,
			HbO:        e.HbO,
			HbR:        e.HbR,
		})
	}
	return series, nil
}

type basisYAML struct {
	Dims          [3]int `yaml:"dims"`
	BasisToVolume Matrix `yaml:"basisToVolume"`
}

type logYAML struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type recordedYAML struct {
	Method         string    `yaml:"reconMethod"`
	Space          string    `yaml:"reconSpace"`
	Reg            string    `yaml:"regMethod"`
	HyperParameter []float64 `yaml:"hyperParameter"`
}

type operatorFile struct {
	ID            string       `yaml:"id"`
	Combined      *Matrix      `yaml:"combined,omitempty"`
	PerWavelength []Matrix     `yaml:"perWavelength,omitempty"`
	Basis         *basisYAML   `yaml:"basis,omitempty"`
	Recorded      recordedYAML `yaml:"recorded"`
	Log           []logYAML    `yaml:"log,omitempty"`
}

// LoadInverseOperator reads an inverse operator artifact.
func LoadInverseOperator(path string) (*models.InverseOperator, error) {
	var file operatorFile
	if err := readYAML(path, &file); err != nil {
		return nil, err
	}

	op := &models.InverseOperator{
		ID: file.ID,
		Recorded: models.OperatorSettings{
			Method:         file.Recorded.Method,
			Space:          file.Recorded.Space,
			Reg:            file.Recorded.Reg,
			HyperParameter: file.Recorded.HyperParameter,
		},
	}
	for _, e := range file.Log {
		op.Log = append(op.Log, models.LogEntry{Key: e.Key, Value: e.Value})
	}

	var err error
	if file.Combined != nil {
		if op.Combined, err = file.Combined.Dense(); err != nil {
			return nil, fmt.Errorf("inverse operator %s: %w", path, err)
		}
	}
	for w, m := range file.PerWavelength {
		d, err := m.Dense()
		if err != nil {
			return nil, fmt.Errorf("inverse operator %s, wavelength %d: %w", path, w, err)
		}
		op.PerWavelength = append(op.PerWavelength, d)
	}
	if op.Combined != nil && len(op.PerWavelength) > 0 {
		return nil, fmt.Errorf("inverse operator %s: has both combined and per-wavelength matrices", path)
	}
	if op.Combined == nil && len(op.PerWavelength) == 0 {
		return nil, fmt.Errorf("inverse operator %s: has no inversion matrices", path)
	}

	if file.Basis != nil {
		lift, err := file.Basis.BasisToVolume.Dense()
		if err != nil {
			return nil, fmt.Errorf("inverse operator %s, basis: %w", path, err)
		}
		op.Basis = &models.BasisDefinition{Dims: file.Basis.Dims, BasisToVolume: lift}
	}
	return op, nil
}

type mappingFile struct {
	ID           string       `yaml:"id"`
	VolumeNodes  [][3]float64 `yaml:"volumeNodes"`
	SurfaceNodes [][3]float64 `yaml:"surfaceNodes"`
	Vol2GM       *Matrix      `yaml:"vol2gm,omitempty"`
}

// LoadSpatialMapping reads a spatial mapping artifact.
func LoadSpatialMapping(path string) (*models.SpatialMapping, error) {
	var file mappingFile
	if err := readYAML(path, &file); err != nil {
		return nil, err
	}

	mapping := &models.SpatialMapping{
		ID:      file.ID,
		Volume:  models.HeadVolumeMesh{Nodes: file.VolumeNodes},
		Surface: models.CorticalSurfaceMesh{Nodes: file.SurfaceNodes},
	}
	if file.Vol2GM != nil {
		d, err := file.Vol2GM.Dense()
		if err != nil {
			return nil, fmt.Errorf("spatial mapping %s: %w", path, err)
		}
		mapping.Vol2GM = d
	}
	return mapping, nil
}

// readYAML reads and unmarshals a whole YAML file.
func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading artifact file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("error parsing artifact file %s: %w", path, err)
	}
	return nil
}
