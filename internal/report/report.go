// Package report assembles the immutable RunReport handed to persistence and
// export once a run has been analyzed.
package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"codeberg.org/mutker/sigjitter/internal/errors"
	"codeberg.org/mutker/sigjitter/internal/jitter"
	"codeberg.org/mutker/sigjitter/internal/sampler"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const ErrInvalidMeta = errors.ErrorCode("report_invalid_meta")

// Kind tells which analysis produced a report.
type Kind string

const (
	KindJitter     Kind = "jitter"
	KindThroughput Kind = "throughput"
	KindDegenerate Kind = "degenerate"
)

// Meta identifies a run. UUID and Timestamp are shared by every run of a batch.
type Meta struct {
	Name      string
	UUID      string
	Timestamp time.Time
}

func (m Meta) validate() error {
	switch {
	case m.Name == "":
		return errors.New().WithData(ErrInvalidMeta, "name is required")
	case m.UUID == "":
		return errors.New().WithData(ErrInvalidMeta, "uuid is required")
	case m.Timestamp.IsZero():
		return errors.New().WithData(ErrInvalidMeta, "timestamp is required")
	}
	return nil
}

// Throughput is the read-rate verdict of a run, independent of jitter.
type Throughput struct {
	Reads    int
	Elapsed  time.Duration
	Achieved float64
	Minimum  float64
}

func throughputOf(c *sampler.Capture, minRate float64) Throughput {
	return Throughput{
		Reads:    c.Reads,
		Elapsed:  c.Elapsed,
		Achieved: c.SamplesPerSecond(),
		Minimum:  minRate,
	}
}

// Met reports whether the achieved rate reaches the minimum.
func (t Throughput) Met() bool {
	return t.Achieved >= t.Minimum
}

// Err returns an ErrUnderSampled error when the minimum was not met.
func (t Throughput) Err() error {
	if t.Met() {
		return nil
	}
	return errors.New().WithData(errors.ErrUnderSampled, struct {
		Achieved float64
		Minimum  float64
	}{
		Achieved: t.Achieved,
		Minimum:  t.Minimum,
	})
}

// RunReport is the terminal record of one run. It is never modified after
// construction; accessors return copies.
type RunReport struct {
	meta       Meta
	kind       Kind
	passed     bool
	times      []float64
	states     []int
	log        string
	stats      *jitter.Statistics
	throughput Throughput
}

func (r *RunReport) Name() string           { return r.meta.Name }
func (r *RunReport) UUID() string           { return r.meta.UUID }
func (r *RunReport) Timestamp() time.Time   { return r.meta.Timestamp }
func (r *RunReport) Kind() Kind             { return r.kind }
func (r *RunReport) Passed() bool           { return r.passed }
func (r *RunReport) Log() string            { return r.log }
func (r *RunReport) Throughput() Throughput { return r.throughput }
func (r *RunReport) Times() []float64       { return append([]float64{}, r.times...) }
func (r *RunReport) States() []int          { return append([]int{}, r.states...) }
func (r *RunReport) TransitionCount() int   { return len(r.states) }
func (r *RunReport) Meta() Meta             { return r.meta }
func (r *RunReport) String() string         { return fmt.Sprintf("%s (%s)", r.meta.Name, verdict(r.passed)) }

// Stats returns the jitter statistics, if the run was analyzed for jitter.
func (r *RunReport) Stats() (jitter.Statistics, bool) {
	if r.stats == nil {
		return jitter.Statistics{}, false
	}
	return *r.stats, true
}

// FromJitter builds the report of a square-wave run. Passed follows the jitter
// verdict only; an under-sampled run is noted in the log and in Throughput.
func FromJitter(meta Meta, c *sampler.Capture, res *jitter.Result, minRate float64) (*RunReport, error) {
	if err := meta.validate(); err != nil {
		return nil, err
	}

	tp := throughputOf(c, minRate)
	stats := res.Stats

	var b strings.Builder
	b.WriteString(meta.Name)
	line(&b, 1, res.Summary())
	line(&b, 1, fmt.Sprintf("%s, Transitions: %d, Failed: %.1f%%",
		rateText(tp.Achieved), stats.Count, stats.FailedFraction*100))
	if !tp.Met() {
		line(&b, 2, underSampledText(tp))
	}
	for _, d := range res.Diagnostics() {
		line(&b, 2, d)
	}

	times, states := series(c.Transitions)

	return &RunReport{
		meta:       meta,
		kind:       KindJitter,
		passed:     res.Passed,
		times:      times,
		states:     states,
		log:        b.String(),
		stats:      &stats,
		throughput: tp,
	}, nil
}

// FromThroughput builds the report of a read-rate run, which passes when the
// achieved rate reaches minRate.
func FromThroughput(meta Meta, c *sampler.Capture, minRate float64) (*RunReport, error) {
	if err := meta.validate(); err != nil {
		return nil, err
	}

	tp := throughputOf(c, minRate)

	var b strings.Builder
	b.WriteString(meta.Name)
	line(&b, 1, rateText(tp.Achieved))
	if tp.Met() {
		line(&b, 2, "PASS")
	} else {
		line(&b, 2, "FAIL - "+underSampledText(tp))
	}

	return &RunReport{
		meta:       meta,
		kind:       KindThroughput,
		passed:     tp.Met(),
		times:      []float64{},
		states:     []int{},
		log:        b.String(),
		throughput: tp,
	}, nil
}

// FromFailure builds a failed report for a run whose analysis could not
// complete, such as one that observed no transitions. c may be nil when
// sampling itself failed.
func FromFailure(meta Meta, c *sampler.Capture, minRate float64, cause error) (*RunReport, error) {
	if err := meta.validate(); err != nil {
		return nil, err
	}

	r := &RunReport{
		meta:   meta,
		kind:   KindDegenerate,
		times:  []float64{},
		states: []int{},
	}

	var b strings.Builder
	b.WriteString(meta.Name)
	if c != nil {
		r.throughput = throughputOf(c, minRate)
		r.times, r.states = series(c.Transitions)
		line(&b, 1, fmt.Sprintf("%s, Transitions: %d", rateText(r.throughput.Achieved), len(c.Transitions)))
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	line(&b, 2, "FAIL - "+msg)
	r.log = b.String()

	return r, nil
}

// Restore rebuilds a report from persisted fields. Statistics and throughput
// are not persisted and stay empty.
func Restore(meta Meta, kind Kind, passed bool, times []float64, states []int, log string) *RunReport {
	return &RunReport{
		meta:   meta,
		kind:   kind,
		passed: passed,
		times:  append([]float64{}, times...),
		states: append([]int{}, states...),
		log:    log,
	}
}

// series converts transitions into cumulative elapsed seconds and 0/1 states.
func series(ts []sampler.Transition) ([]float64, []int) {
	times := make([]float64, len(ts))
	states := make([]int, len(ts))

	var total time.Duration
	for i, tr := range ts {
		total += tr.Delay
		times[i] = total.Seconds()
		states[i] = int(tr.State)
	}

	return times, states
}

var printer = message.NewPrinter(language.English)

func rateText(rate float64) string {
	return printer.Sprintf("Samples per second: %d", int64(math.Round(rate)))
}

func underSampledText(tp Throughput) string {
	return fmt.Sprintf("Samples per second below minimum of %g", tp.Minimum)
}

func line(b *strings.Builder, indent int, s string) {
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("\t", indent))
	b.WriteString(s)
}

func verdict(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}
