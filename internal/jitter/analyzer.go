// Package jitter turns recorded transitions into per-transition jitter, summary
// statistics and a pass/fail verdict against a jitter budget.
package jitter

import (
	"fmt"
	"math"
	"strings"
	"time"

	"codeberg.org/mutker/sigjitter/internal/errors"
	"codeberg.org/mutker/sigjitter/internal/sampler"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const ErrInvalidOptions = errors.ErrorCode("jitter_invalid_options")

// Options configures an analysis.
type Options struct {
	ExpectedHalfPeriodMs float64
	MaxJitterMs          float64

	// DiscardFirst drops the first transition, whose delay was measured from an
	// arbitrary start rather than a signal edge. Set it for captures taken
	// without pre-roll alignment.
	DiscardFirst bool
}

// OptionsFor derives Options for a capture of a square wave with the given
// period. Unaligned captures discard their first transition.
func OptionsFor(periodMs, maxJitterMs float64, c *sampler.Capture) Options {
	return Options{
		ExpectedHalfPeriodMs: periodMs / 2,
		MaxJitterMs:          maxJitterMs,
		DiscardFirst:         !c.Aligned,
	}
}

// Sample is the jitter of one kept transition.
type Sample struct {
	// Index is the position among kept transitions.
	Index    int
	DelayMs  float64
	JitterMs float64
}

// Exceeds reports whether the sample is outside the budget.
func (s Sample) Exceeds(maxJitterMs float64) bool {
	return math.Abs(s.JitterMs) > maxJitterMs
}

// Statistics aggregates |jitter| over all kept samples.
type Statistics struct {
	Count          int
	Failed         int
	FailedFraction float64
	Mean           float64
	Std            float64
	Min            float64
	Max            float64
}

// Result is the outcome of Analyze. It holds no references to its input.
type Result struct {
	Samples   []Sample
	Discarded int
	Stats     Statistics
	Passed    bool

	MaxJitterMs float64

	// Log is the multi-line diagnostic: summary line followed by one line per
	// failing transition, or PASS.
	Log string
}

// Failures returns the samples whose jitter exceeds the budget.
func (r *Result) Failures() []Sample {
	var out []Sample
	for _, s := range r.Samples {
		if s.Exceeds(r.MaxJitterMs) {
			out = append(out, s)
		}
	}
	return out
}

// Summary is the one-line statistics summary.
func (r *Result) Summary() string {
	return fmt.Sprintf("Mean: %.3fms, Std: %.3fms, Min: %.3fms, Max: %.3fms",
		r.Stats.Mean, r.Stats.Std, r.Stats.Min, r.Stats.Max)
}

// Diagnostics returns one FAIL line per failing transition, or a single PASS.
func (r *Result) Diagnostics() []string {
	failures := r.Failures()
	if len(failures) == 0 {
		return []string{"PASS"}
	}

	lines := make([]string, 0, len(failures))
	for _, s := range failures {
		lines = append(lines, fmt.Sprintf("FAIL - Jitter of transition %03d is over %gms: %8.3fms",
			s.Index, r.MaxJitterMs, s.JitterMs))
	}
	return lines
}

// Analyze computes jitter for every kept transition. It fails with
// ErrMeasurementDegenerate when no transition is left to analyze.
func Analyze(transitions []sampler.Transition, opts Options) (*Result, error) {
	errFactory := errors.New()

	if !(opts.ExpectedHalfPeriodMs > 0) || math.IsInf(opts.ExpectedHalfPeriodMs, 1) {
		return nil, errFactory.WithData(ErrInvalidOptions, "expected half period must be positive and finite")
	}
	if !(opts.MaxJitterMs >= 0) || math.IsInf(opts.MaxJitterMs, 1) {
		return nil, errFactory.WithData(ErrInvalidOptions, "max jitter must be finite and not negative")
	}

	kept := transitions
	discarded := 0
	if opts.DiscardFirst && len(kept) > 0 {
		kept = kept[1:]
		discarded = 1
	}

	if len(kept) == 0 {
		return nil, errFactory.WithData(errors.ErrMeasurementDegenerate, struct {
			Transitions int
			Discarded   int
		}{
			Transitions: len(transitions),
			Discarded:   discarded,
		})
	}

	samples := make([]Sample, len(kept))
	abs := make([]float64, len(kept))
	failed := 0
	for i, tr := range kept {
		delayMs := durationMs(tr.Delay)
		j := delayMs - opts.ExpectedHalfPeriodMs

		samples[i] = Sample{Index: i, DelayMs: delayMs, JitterMs: j}
		abs[i] = math.Abs(j)

		if abs[i] > opts.MaxJitterMs {
			failed++
		}
	}

	mean, std := stat.PopMeanStdDev(abs, nil)

	res := &Result{
		Samples:   samples,
		Discarded: discarded,
		Stats: Statistics{
			Count:          len(samples),
			Failed:         failed,
			FailedFraction: float64(failed) / float64(len(samples)),
			Mean:           mean,
			Std:            std,
			Min:            floats.Min(abs),
			Max:            floats.Max(abs),
		},
		Passed:      failed == 0,
		MaxJitterMs: opts.MaxJitterMs,
	}
	res.Log = renderLog(res)

	return res, nil
}

func renderLog(r *Result) string {
	var b strings.Builder
	b.WriteString(r.Summary())
	for _, line := range r.Diagnostics() {
		b.WriteString("\n\t")
		b.WriteString(line)
	}
	return b.String()
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
