package store

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"dotrecon/internal/models"
)

// ImageWriter persists finished image sets under a directory, one YAML
// file per image plus a provenance file. It implements the engine's Sink
// interface; with persist=false nothing is written.
type ImageWriter struct {
	// Dir is the output directory, created on first write.
	Dir string
}

type imageFile struct {
	Name    string  `yaml:"name"`
	Volume  *Matrix `yaml:"volume,omitempty"`
	Surface Matrix  `yaml:"surface"`
}

type provenanceFile struct {
	CreatedAt      string    `yaml:"createdAt"`
	SeriesID       string    `yaml:"seriesId"`
	OperatorID     string    `yaml:"operatorId"`
	Method         string    `yaml:"reconMethod"`
	Space          string    `yaml:"reconSpace"`
	Reg            string    `yaml:"regMethod"`
	HyperParameter []float64 `yaml:"hyperParameter"`
	Log            []logYAML `yaml:"log,omitempty"`
}

// Save writes the image set and its provenance. A persist=false call is
// a no-op so that return-only runs stay side-effect free.
func (w *ImageWriter) Save(set *models.ImageSet, prov *models.Provenance, persist bool) error {
	if !persist {
		return nil
	}
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, img := range set.Images {
		file := imageFile{Name: img.Name}
		if img.Surface != nil {
			file.Surface = NewMatrix(img.Surface)
		}
		if img.Volume != nil {
			m := NewMatrix(img.Volume)
			file.Volume = &m
		}
		path := filepath.Join(w.Dir, img.Name+".yaml")
		if err := writeYAML(path, &file); err != nil {
			return err
		}
	}

	provFile := provenanceFile{
		CreatedAt:      prov.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		SeriesID:       prov.SeriesID,
		OperatorID:     prov.OperatorID,
		Method:         prov.Method,
		Space:          prov.Space,
		Reg:            prov.Reg,
		HyperParameter: prov.HyperParameter,
	}
	for _, e := range prov.Log {
		provFile.Log = append(provFile.Log, logYAML{Key: e.Key, Value: e.Value})
	}
	return writeYAML(filepath.Join(w.Dir, "provenance.yaml"), &provFile)
}

// writeYAML marshals and writes one YAML file.
func writeYAML(path string, in interface{}) error {
	data, err := yaml.Marshal(in)
	if err != nil {
		return fmt.Errorf("error marshaling %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return nil
}
