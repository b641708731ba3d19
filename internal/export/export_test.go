package export_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/sigjitter/internal/export"
	"codeberg.org/mutker/sigjitter/internal/jitter"
	"codeberg.org/mutker/sigjitter/internal/report"
	"codeberg.org/mutker/sigjitter/internal/sampler"
	"codeberg.org/mutker/sigjitter/internal/signal"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const batch = "00112233445566778899aabbccddeeff"

var stamp = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func reports(t *testing.T) []*report.RunReport {
	t.Helper()

	c := &sampler.Capture{Reads: 20000, Elapsed: 2 * time.Second, Aligned: true}
	c.Transitions = []sampler.Transition{
		{Delay: time.Second, State: signal.Low, At: time.Second},
		{Delay: 1005 * time.Millisecond, State: signal.High, At: 2005 * time.Millisecond},
	}
	res, err := jitter.Analyze(c.Transitions, jitter.OptionsFor(2000, 10, c))
	require.NoError(t, err)

	jr, err := report.FromJitter(report.Meta{Name: "signal-jitter", UUID: batch, Timestamp: stamp}, c, res, 100)
	require.NoError(t, err)

	tr, err := report.FromThroughput(report.Meta{Name: "daq-sampling-irregular", UUID: batch, Timestamp: stamp},
		&sampler.Capture{Reads: 40, Elapsed: time.Second}, 100)
	require.NoError(t, err)

	return []*report.RunReport{jr, tr}
}

func parse(t *testing.T, b []byte) map[string]*dto.MetricFamily {
	t.Helper()
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(bytes.NewReader(b))
	require.NoError(t, err)
	return mfs
}

func valueFor(t *testing.T, mf *dto.MetricFamily, labels map[string]string) float64 {
	t.Helper()
	require.NotNil(t, mf)

	for _, m := range mf.GetMetric() {
		matched := 0
		for _, lp := range m.GetLabel() {
			if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
				matched++
			}
		}
		if matched == len(labels) {
			return m.GetGauge().GetValue()
		}
	}

	t.Fatalf("no sample in %s matches %v", mf.GetName(), labels)
	return 0
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteText(&buf, reports(t)))

	mfs := parse(t, buf.Bytes())

	passed := mfs["sigjitter_run_passed"]
	require.NotNil(t, passed)
	assert.Len(t, passed.GetMetric(), 2)
	assert.Equal(t, dto.MetricType_GAUGE, passed.GetType())
	assert.Equal(t, 1.0, valueFor(t, passed, map[string]string{"name": "signal-jitter", "uuid": batch}))
	assert.Equal(t, 0.0, valueFor(t, passed, map[string]string{"name": "daq-sampling-irregular"}))

	rate := mfs["sigjitter_samples_per_second"]
	assert.InDelta(t, 10000, valueFor(t, rate, map[string]string{"name": "signal-jitter"}), 1e-9)
	assert.InDelta(t, 40, valueFor(t, rate, map[string]string{"name": "daq-sampling-irregular"}), 1e-9)

	transitions := mfs["sigjitter_transitions"]
	require.NotNil(t, transitions)
	assert.Len(t, transitions.GetMetric(), 1, "throughput runs have no transitions")

	jit := mfs["sigjitter_jitter_ms"]
	require.NotNil(t, jit)
	assert.Len(t, jit.GetMetric(), 4)
	assert.InDelta(t, 2.5, valueFor(t, jit, map[string]string{"stat": "mean"}), 1e-6)
	assert.InDelta(t, 5, valueFor(t, jit, map[string]string{"stat": "max"}), 1e-6)

	assert.InDelta(t, float64(stamp.Unix()),
		valueFor(t, mfs["sigjitter_run_timestamp_seconds"], map[string]string{"name": "signal-jitter"}), 1e-3)
}

func TestMetricFamiliesEmpty(t *testing.T) {
	assert.Empty(t, export.MetricFamilies(nil))
}

func TestWriteTextfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collector", "sigjitter.prom")

	require.NoError(t, export.WriteTextfile(path, reports(t)))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, parse(t, b), "sigjitter_run_passed")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestYAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()

	path, err := export.WriteYAMLFile(dir, reports(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, batch+".yaml"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	doc, err := export.ReadYAML(f)
	require.NoError(t, err)

	assert.Equal(t, batch, doc.UUID)
	assert.True(t, stamp.Equal(doc.Timestamp))
	assert.False(t, doc.Passed, "one failed run fails the batch")
	require.Len(t, doc.Runs, 2)

	run := doc.Runs[0]
	assert.Equal(t, "signal-jitter", run.Name)
	assert.Equal(t, "jitter", run.Kind)
	assert.True(t, run.Passed)
	assert.InDeltaSlice(t, []float64{1, 2.005}, run.Times, 1e-9)
	assert.Equal(t, []int{0, 1}, run.States)
	require.NotNil(t, run.Stats)
	assert.Equal(t, 2, run.Stats.Transitions)
	assert.Contains(t, run.Log, "PASS")

	assert.Nil(t, doc.Runs[1].Stats)
	assert.Empty(t, doc.Runs[1].Times)
}

func TestWriteYAMLFileRequiresReports(t *testing.T) {
	_, err := export.WriteYAMLFile(t.TempDir(), nil)
	assert.Error(t, err)
}
