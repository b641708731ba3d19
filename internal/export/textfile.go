// Package export writes run reports for consumers outside the process: a
// Prometheus textfile for node_exporter's textfile collector and a YAML
// document per batch.
package export

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"

	"codeberg.org/mutker/sigjitter/internal/errors"
	"codeberg.org/mutker/sigjitter/internal/jitter"
	"codeberg.org/mutker/sigjitter/internal/report"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

const (
	ErrWriteTextfile = errors.ErrorCode("export_write_textfile_failed")
	ErrWriteYAML     = errors.ErrorCode("export_write_yaml_failed")
	ErrReadYAML      = errors.ErrorCode("export_read_yaml_failed")

	namespace = "sigjitter_"

	defaultFilePerm = 0o644
	defaultDirPerm  = 0o755
)

type family struct {
	name string
	help string
	// value returns the sample for a report, or false to skip it.
	value func(r *report.RunReport) (float64, bool)
}

var families = []family{
	{
		name: "run_passed",
		help: "Whether the run passed (1) or failed (0).",
		value: func(r *report.RunReport) (float64, bool) {
			return boolValue(r.Passed()), true
		},
	},
	{
		name: "run_timestamp_seconds",
		help: "Unix time of the batch the run belongs to.",
		value: func(r *report.RunReport) (float64, bool) {
			return float64(r.Timestamp().UnixNano()) / 1e9, true
		},
	},
	{
		name: "samples_per_second",
		help: "Achieved read rate over the measurement window.",
		value: func(r *report.RunReport) (float64, bool) {
			tp := r.Throughput()
			return tp.Achieved, tp.Elapsed > 0
		},
	},
	{
		name: "transitions",
		help: "Number of recorded signal transitions.",
		value: func(r *report.RunReport) (float64, bool) {
			return float64(r.TransitionCount()), r.Kind() != report.KindThroughput
		},
	},
	{
		name: "failed_ratio",
		help: "Fraction of analyzed transitions whose jitter exceeded the budget.",
		value: func(r *report.RunReport) (float64, bool) {
			s, ok := r.Stats()
			return s.FailedFraction, ok
		},
	},
}

// jitterStats is exported as one family with a stat label.
var jitterStats = []struct {
	label string
	value func(s jitter.Statistics) float64
}{
	{"mean", func(s jitter.Statistics) float64 { return s.Mean }},
	{"std", func(s jitter.Statistics) float64 { return s.Std }},
	{"min", func(s jitter.Statistics) float64 { return s.Min }},
	{"max", func(s jitter.Statistics) float64 { return s.Max }},
}

// MetricFamilies converts reports into gauge families labelled by run name and
// batch uuid. Families with no samples are omitted.
func MetricFamilies(reports []*report.RunReport) []*dto.MetricFamily {
	var out []*dto.MetricFamily

	for _, f := range families {
		mf := newGauge(f.name, f.help)
		for _, r := range reports {
			if v, ok := f.value(r); ok {
				mf.Metric = append(mf.Metric, gauge(v, runLabels(r)...))
			}
		}
		if len(mf.Metric) > 0 {
			out = append(out, mf)
		}
	}

	mf := newGauge("jitter_ms", "Statistics of absolute jitter in milliseconds.")
	for _, r := range reports {
		stats, ok := r.Stats()
		if !ok {
			continue
		}
		for _, s := range jitterStats {
			mf.Metric = append(mf.Metric, gauge(s.value(stats), append(runLabels(r), label("stat", s.label))...))
		}
	}
	if len(mf.Metric) > 0 {
		out = append(out, mf)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })

	return out
}

// WriteText writes the reports in the Prometheus text exposition format.
func WriteText(w io.Writer, reports []*report.RunReport) error {
	for _, mf := range MetricFamilies(reports) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return errors.New().Wrap(ErrWriteTextfile, err)
		}
	}
	return nil
}

// WriteTextfile replaces path with the text exposition of reports. The file is
// written next to its destination and renamed so a collector never reads a
// partial file.
func WriteTextfile(path string, reports []*report.RunReport) error {
	errFactory := errors.New()

	var buf bytes.Buffer
	if err := WriteText(&buf, reports); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return errFactory.Wrap(ErrWriteTextfile, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errFactory.Wrap(ErrWriteTextfile, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return errFactory.Wrap(ErrWriteTextfile, err)
	}
	if err := tmp.Close(); err != nil {
		return errFactory.Wrap(ErrWriteTextfile, err)
	}
	if err := os.Chmod(tmp.Name(), defaultFilePerm); err != nil {
		return errFactory.Wrap(ErrWriteTextfile, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errFactory.Wrap(ErrWriteTextfile, err)
	}

	return nil
}

func newGauge(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(namespace + name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func gauge(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{
		Label: labels,
		Gauge: &dto.Gauge{Value: proto.Float64(v)},
	}
}

func runLabels(r *report.RunReport) []*dto.LabelPair {
	return []*dto.LabelPair{label("name", r.Name()), label("uuid", r.UUID())}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
