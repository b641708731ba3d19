package export

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/sigjitter/internal/errors"
	"codeberg.org/mutker/sigjitter/internal/report"
	"gopkg.in/yaml.v3"
)

// Document is the YAML form of one batch of runs.
type Document struct {
	UUID      string    `yaml:"uuid"`
	Timestamp time.Time `yaml:"timestamp"`
	Passed    bool      `yaml:"passed"`
	Runs      []Run     `yaml:"runs"`
}

// Run is the YAML form of a RunReport.
type Run struct {
	Name             string    `yaml:"name"`
	Kind             string    `yaml:"kind"`
	Passed           bool      `yaml:"passed"`
	SamplesPerSecond float64   `yaml:"samples_per_second,omitempty"`
	Stats            *RunStats `yaml:"stats,omitempty"`
	Times            []float64 `yaml:"times,flow"`
	States           []int     `yaml:"states,flow"`
	Log              string    `yaml:"log"`
}

// RunStats holds jitter statistics in milliseconds.
type RunStats struct {
	Transitions int     `yaml:"transitions"`
	Failed      int     `yaml:"failed"`
	Mean        float64 `yaml:"mean_ms"`
	Std         float64 `yaml:"std_ms"`
	Min         float64 `yaml:"min_ms"`
	Max         float64 `yaml:"max_ms"`
}

// NewDocument groups reports of one batch. UUID and timestamp are taken from
// the first report.
func NewDocument(reports []*report.RunReport) Document {
	doc := Document{Passed: true, Runs: make([]Run, 0, len(reports))}

	for i, r := range reports {
		if i == 0 {
			doc.UUID = r.UUID()
			doc.Timestamp = r.Timestamp()
		}
		doc.Passed = doc.Passed && r.Passed()

		run := Run{
			Name:             r.Name(),
			Kind:             string(r.Kind()),
			Passed:           r.Passed(),
			SamplesPerSecond: r.Throughput().Achieved,
			Times:            r.Times(),
			States:           r.States(),
			Log:              r.Log(),
		}
		if s, ok := r.Stats(); ok {
			run.Stats = &RunStats{
				Transitions: s.Count,
				Failed:      s.Failed,
				Mean:        s.Mean,
				Std:         s.Std,
				Min:         s.Min,
				Max:         s.Max,
			}
		}
		doc.Runs = append(doc.Runs, run)
	}

	return doc
}

// WriteYAML encodes the batch document of reports to w.
func WriteYAML(w io.Writer, reports []*report.RunReport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(NewDocument(reports)); err != nil {
		return errors.New().Wrap(ErrWriteYAML, err)
	}
	if err := enc.Close(); err != nil {
		return errors.New().Wrap(ErrWriteYAML, err)
	}

	return nil
}

// WriteYAMLFile writes the batch document to <dir>/<uuid>.yaml and returns the
// path.
func WriteYAMLFile(dir string, reports []*report.RunReport) (string, error) {
	errFactory := errors.New()

	if len(reports) == 0 {
		return "", errFactory.WithData(ErrWriteYAML, "no reports")
	}

	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", errFactory.Wrap(ErrWriteYAML, err)
	}

	path := filepath.Join(dir, reports[0].UUID()+".yaml")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, defaultFilePerm)
	if err != nil {
		return "", errFactory.Wrap(ErrWriteYAML, err)
	}

	if err := WriteYAML(f, reports); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errFactory.Wrap(ErrWriteYAML, err)
	}

	return path, nil
}

// ReadYAML decodes a batch document.
func ReadYAML(r io.Reader) (Document, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, errors.New().Wrap(ErrReadYAML, err)
	}
	return doc, nil
}
