// Package runner executes measurement scenarios one after another. Every run
// gets a fresh source, its capture is analyzed into a report, and the report
// is handed to the results recorder.
package runner

import (
	"context"
	"math"
	"strings"
	"time"

	"codeberg.org/mutker/sigjitter/internal/clock"
	"codeberg.org/mutker/sigjitter/internal/daq"
	"codeberg.org/mutker/sigjitter/internal/errors"
	"codeberg.org/mutker/sigjitter/internal/jitter"
	"codeberg.org/mutker/sigjitter/internal/logger"
	"codeberg.org/mutker/sigjitter/internal/report"
	"codeberg.org/mutker/sigjitter/internal/results"
	"codeberg.org/mutker/sigjitter/internal/sampler"
	"codeberg.org/mutker/sigjitter/internal/signal"
	"github.com/google/uuid"
)

// Options configures every run of a Runner.
type Options struct {
	Duration            time.Duration
	PeriodMs            float64
	MaxJitterMs         float64
	MinSamplesPerSecond float64

	PreRoll        bool
	PreRollTimeout time.Duration

	NoiseProbability float64
	FlukeProbability float64
	MaxReadDelay     time.Duration

	Device  string
	Channel string
	// NamePrefix is prepended to scenario names in reports.
	NamePrefix string

	// Clock defaults to a monotonic clock.
	Clock clock.Clock
	// NewRand returns the randomness for one run's generator. Nil uses a
	// time-seeded generator per run.
	NewRand func(sc Scenario) signal.Rand
	// NewPacer returns the pacer of an irregular run. Nil uses a
	// sampler.RandomPacer bounded by MaxReadDelay.
	NewPacer func(maxDelay time.Duration) sampler.Pacer
}

func (o Options) halfPeriod() time.Duration {
	return time.Duration(o.PeriodMs / 2 * float64(time.Millisecond))
}

func (o Options) maxJitter() time.Duration {
	return time.Duration(o.MaxJitterMs * float64(time.Millisecond))
}

// Outcome is the result of one scenario. Report is set whenever the run got far
// enough to be judged; Err carries the measurement error, if any.
type Outcome struct {
	Scenario Scenario
	Report   *report.RunReport
	Err      error
}

// Passed reports whether the run produced a passing report without errors.
func (o Outcome) Passed() bool {
	return o.Err == nil && o.Report != nil && o.Report.Passed()
}

// Runner runs scenarios for one batch. All reports it produces share the
// batch uuid and timestamp.
type Runner struct {
	opts  Options
	store results.Recorder
	log   logger.Logger

	batchID string
	batchAt time.Time
}

// New returns a Runner with a fresh batch identity.
func New(opts Options, store results.Recorder, log logger.Logger) (*Runner, error) {
	errFactory := errors.New()

	switch {
	case opts.Duration <= 0:
		return nil, errFactory.WithData(errors.ErrInvalidDuration, opts.Duration.String())
	case !positive(opts.PeriodMs):
		return nil, errFactory.WithData(errors.ErrInvalidPeriod, opts.PeriodMs)
	case !positive(opts.MaxJitterMs):
		return nil, errFactory.WithData(errors.ErrInvalidJitter, opts.MaxJitterMs)
	case !positive(opts.MinSamplesPerSecond):
		return nil, errFactory.WithData(errors.ErrInvalidRate, opts.MinSamplesPerSecond)
	}

	if opts.Clock == nil {
		opts.Clock = clock.Monotonic()
	}
	if opts.Device == "" {
		opts.Device = daq.DefaultDeviceName
	}
	if opts.Channel == "" {
		opts.Channel = opts.Device + "/port0/line0"
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Runner{
		opts:    opts,
		store:   store,
		log:     log,
		batchID: strings.ReplaceAll(uuid.NewString(), "-", ""),
		batchAt: time.Now(),
	}, nil
}

// positive rejects NaN and infinities along with non-positive values.
func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// Batch returns the identity shared by every report of this runner.
func (r *Runner) Batch() (id string, at time.Time) {
	return r.batchID, r.batchAt
}

// Run executes scenarios sequentially and records every report. It stops
// early only when ctx is canceled. A recording failure does not stop the
// suite; the first one is returned after all scenarios ran.
func (r *Runner) Run(ctx context.Context, scs []Scenario) ([]Outcome, error) {
	errFactory := errors.New()

	outcomes := make([]Outcome, 0, len(scs))
	var recordErr error

	for _, sc := range scs {
		if err := ctx.Err(); err != nil {
			return outcomes, errFactory.Wrap(errors.ErrCanceled, err)
		}

		out := r.RunScenario(ctx, sc)
		if errors.HasCode(out.Err, errors.ErrCanceled) {
			return outcomes, out.Err
		}
		outcomes = append(outcomes, out)

		if out.Report == nil || r.store == nil {
			continue
		}
		if err := r.store.Record(ctx, out.Report); err != nil {
			r.log.Error().
				Err(err).
				Str("scenario", sc.Name).
				Msg("Failed to record run report")
			if recordErr == nil {
				recordErr = errFactory.Wrap(errors.ErrRecordResults, err)
			}
		}
	}

	return outcomes, recordErr
}

// RunScenario performs a single measurement.
func (r *Runner) RunScenario(ctx context.Context, sc Scenario) Outcome {
	out := Outcome{Scenario: sc}
	meta := report.Meta{Name: r.name(sc), UUID: r.batchID, Timestamp: r.batchAt}

	r.log.Info().
		Str("scenario", sc.Name).
		Str("mode", sc.Mode.String()).
		Dur("duration", r.opts.Duration).
		Msg("Starting run")

	capture, err := r.capture(ctx, sc)
	if err != nil {
		out.Err = err
		if !errors.HasCode(err, errors.ErrCanceled) {
			out.Report, _ = report.FromFailure(meta, nil, r.opts.MinSamplesPerSecond, err)
		}
		r.logOutcome(out)
		return out
	}

	switch sc.Mode {
	case ModeThroughput:
		out.Report, out.Err = report.FromThroughput(meta, capture, r.opts.MinSamplesPerSecond)
	default:
		res, err := jitter.Analyze(capture.Transitions, jitter.OptionsFor(r.opts.PeriodMs, r.opts.MaxJitterMs, capture))
		if err != nil {
			out.Err = err
			out.Report, _ = report.FromFailure(meta, capture, r.opts.MinSamplesPerSecond, err)
			break
		}
		out.Report, out.Err = report.FromJitter(meta, capture, res, r.opts.MinSamplesPerSecond)
	}

	if out.Err == nil && out.Report != nil {
		out.Err = out.Report.Throughput().Err()
	}

	r.logOutcome(out)
	return out
}

func (r *Runner) capture(ctx context.Context, sc Scenario) (*sampler.Capture, error) {
	src, closeSrc, err := r.source(sc)
	if err != nil {
		return nil, err
	}
	defer closeSrc()

	opts := sampler.Options{
		Duration:       r.opts.Duration,
		PreRoll:        sc.Mode == ModeJitter && r.opts.PreRoll,
		PreRollTimeout: r.opts.PreRollTimeout,
	}
	if sc.Irregular {
		opts.Pacer = r.pacer()
	}

	loop, err := sampler.New(src, r.opts.Clock, opts)
	if err != nil {
		return nil, err
	}

	return loop.Run(ctx)
}

// source builds the fresh Source of one run. The returned func releases the
// DAQ task behind it.
func (r *Runner) source(sc Scenario) (signal.Source, func(), error) {
	device := daq.NewDevice(r.opts.Device)
	task := device.NewTask()
	release := func() {
		if err := task.Close(); err != nil {
			r.log.Debug().Err(err).Msg("Failed to close DAQ task")
		}
	}

	if err := task.AddDIChannel(r.opts.Channel); err != nil {
		release()
		return nil, nil, err
	}

	params := signal.Params{
		Clock:            r.opts.Clock,
		HalfPeriod:       r.opts.halfPeriod(),
		MaxJitter:        r.opts.maxJitter(),
		NoiseProbability: r.opts.NoiseProbability,
		FlukeProbability: r.opts.FlukeProbability,
		Task:             task,
	}
	if r.opts.NewRand != nil {
		params.Rand = r.opts.NewRand(sc)
	}

	src, err := signal.New(sc.Source, params)
	if err != nil {
		release()
		return nil, nil, err
	}

	return src, release, nil
}

func (r *Runner) pacer() sampler.Pacer {
	if r.opts.NewPacer != nil {
		return r.opts.NewPacer(r.opts.MaxReadDelay)
	}
	return sampler.NewRandomPacer(r.opts.MaxReadDelay)
}

func (r *Runner) name(sc Scenario) string {
	if r.opts.NamePrefix == "" {
		return sc.Name
	}
	return r.opts.NamePrefix + "/" + sc.Name
}

func (r *Runner) logOutcome(out Outcome) {
	var ev *logger.LogEvent
	if out.Passed() {
		ev = r.log.Info()
	} else {
		ev = r.log.Warn()
	}

	ev.Str("scenario", out.Scenario.Name)
	if out.Report != nil {
		ev.Bool("passed", out.Report.Passed()).
			Int("transitions", out.Report.TransitionCount()).
			Float64("samples_per_second", out.Report.Throughput().Achieved)
	}
	if appErr, ok := asAppError(out.Err); ok {
		ev.Str("error_code", string(appErr.Code()))
	}
	ev.Err(out.Err).Msg("Run finished")
}

func asAppError(err error) (errors.Error, bool) {
	var appErr errors.Error
	if err != nil && errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
