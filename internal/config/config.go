// Package config loads runner settings from defaults, an optional TOML file,
// the environment and command-line flags, in increasing order of precedence.
package config

import (
	"math"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/sigjitter/internal/errors"
	"codeberg.org/mutker/sigjitter/internal/logger"
	"codeberg.org/mutker/sigjitter/internal/signal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix  = "SIGJITTER"
	DefaultConfigName = "sigjitter"
	DefaultLogLevel   = string(LogLevelInfo)

	// AllScenarios selects every known scenario.
	AllScenarios = "all"
)

// Config keys
const (
	KeyDuration         = "duration"
	KeyMaxJitterMs      = "max_jitter_ms"
	KeyPeriodMs         = "period_ms"
	KeyMinSamplesPerSec = "min_samples_per_second"
	KeyPreRoll          = "preroll"
	KeyPreRollTimeout   = "preroll_timeout"
	KeyScenarios        = "scenarios"
	KeySource           = "source"
	KeyNoiseProbability = "noise_probability"
	KeyFlukeProbability = "fluke_probability"
	KeyMaxReadDelay     = "max_read_delay"
	KeyDevice           = "device"
	KeyChannel          = "channel"
	KeyName             = "name"
	KeyLogLevel         = "log_level"
	KeyResults          = "results"
	KeyResultsDB        = "results_db"
	KeyTextfile         = "textfile"
	KeyReportDir        = "report_dir"
)

// bareEnv binds keys to environment names used without the prefix.
var bareEnv = map[string]string{
	KeyDuration:         "TEST_DURATION_SECONDS",
	KeyMaxJitterMs:      "MAX_JITTER_MS",
	KeyPeriodMs:         "PERIOD_MS",
	KeyMinSamplesPerSec: "MIN_SAMPLES_PER_SECOND",
}

type Config struct {
	// Duration of each measurement window.
	Duration            time.Duration
	MaxJitterMs         float64
	PeriodMs            float64
	MinSamplesPerSecond float64

	PreRoll        bool
	PreRollTimeout time.Duration

	Scenarios []string
	// Source, when set, replaces Scenarios with the single scenario driven by
	// that source kind.
	Source string

	NoiseProbability float64
	FlukeProbability float64
	MaxReadDelay     time.Duration

	Device  string
	Channel string
	// Name prefixes every run name when set.
	Name string

	LogLevel  string
	Results   bool
	ResultsDB string
	Textfile  string
	ReportDir string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyDuration, 11.0)
	v.SetDefault(KeyMaxJitterMs, 10.0)
	v.SetDefault(KeyPeriodMs, 2000.0)
	v.SetDefault(KeyMinSamplesPerSec, 100.0)
	v.SetDefault(KeyPreRoll, true)
	v.SetDefault(KeyPreRollTimeout, "0s")
	v.SetDefault(KeyScenarios, []string{AllScenarios})
	v.SetDefault(KeySource, "")
	v.SetDefault(KeyNoiseProbability, 0.000075)
	v.SetDefault(KeyFlukeProbability, 0.000075)
	v.SetDefault(KeyMaxReadDelay, "50ms")
	v.SetDefault(KeyDevice, "Dev1")
	v.SetDefault(KeyChannel, "Dev1/port0/line0")
	v.SetDefault(KeyName, "")
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyResults, false)
	v.SetDefault(KeyResultsDB, "/var/lib/sigjitter/results.db")
	v.SetDefault(KeyTextfile, "")
	v.SetDefault(KeyReportDir, "")
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("sigjitter", pflag.ContinueOnError)

	fs.String("config", "", "Path to a TOML config file")
	fs.Float64(KeyDuration, 11, "Measurement window in seconds")
	fs.Float64("max-jitter-ms", 10, "Jitter budget in milliseconds")
	fs.Float64("period-ms", 2000, "Expected square wave period in milliseconds")
	fs.Float64("min-samples-per-second", 100, "Minimum acceptable read rate")
	fs.Bool(KeyPreRoll, true, "Wait for a first transition before opening the window")
	fs.Duration("preroll-timeout", 0, "Bound on the pre-roll wait (defaults to the duration)")
	fs.StringSlice(KeyScenarios, []string{AllScenarios}, "Scenarios to run, or \"all\"")
	fs.String(KeySource, "", "Run only the scenario of this source (square, jitter, randomness, fluke, daq)")
	fs.Float64("noise-probability", 0.000075, "Per-read probability of a spurious flip")
	fs.Float64("fluke-probability", 0.000075, "Per-read probability of a single-read glitch")
	fs.Duration("max-read-delay", 50*time.Millisecond, "Upper bound of the random pause in irregular scenarios")
	fs.String(KeyDevice, "Dev1", "DAQ device name")
	fs.String(KeyChannel, "Dev1/port0/line0", "Digital input channel")
	fs.String(KeyName, "", "Prefix for run names")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool(KeyResults, false, "Store run reports in the results database")
	fs.String("results-db", "/var/lib/sigjitter/results.db", "Path to the results database")
	fs.String(KeyTextfile, "", "Write a Prometheus textfile to this path")
	fs.String("report-dir", "", "Write a YAML batch report into this directory")

	return fs
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	return bindErr
}

// Load reads configuration from all sources and validates it.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if !o.argsSet {
		o.args = os.Args[1:]
	}

	v := viper.New()
	setDefaults(v)

	fs := newFlagSet()
	if err := fs.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	if err := bindFlags(v, fs); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, env := range bareEnv {
		if err := v.BindEnv(key, o.envPrefix+"_"+strings.ToUpper(key), env); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	if err := readConfigFile(v, o, fs); err != nil {
		return nil, err
	}

	seconds := v.GetFloat64(KeyDuration)
	if !positive(seconds) {
		return nil, errFactory.Wrap(errors.ErrInvalidDuration, &fieldError{
			field:  KeyDuration,
			value:  seconds,
			reason: "must be positive and finite",
		})
	}

	cfg := &Config{
		Duration:            time.Duration(seconds * float64(time.Second)),
		MaxJitterMs:         v.GetFloat64(KeyMaxJitterMs),
		PeriodMs:            v.GetFloat64(KeyPeriodMs),
		MinSamplesPerSecond: v.GetFloat64(KeyMinSamplesPerSec),
		PreRoll:             v.GetBool(KeyPreRoll),
		PreRollTimeout:      v.GetDuration(KeyPreRollTimeout),
		Scenarios:           splitList(v.GetStringSlice(KeyScenarios)),
		Source:              strings.ToLower(strings.TrimSpace(v.GetString(KeySource))),
		NoiseProbability:    v.GetFloat64(KeyNoiseProbability),
		FlukeProbability:    v.GetFloat64(KeyFlukeProbability),
		MaxReadDelay:        v.GetDuration(KeyMaxReadDelay),
		Device:              v.GetString(KeyDevice),
		Channel:             v.GetString(KeyChannel),
		Name:                v.GetString(KeyName),
		LogLevel:            strings.ToLower(v.GetString(KeyLogLevel)),
		Results:             v.GetBool(KeyResults),
		ResultsDB:           v.GetString(KeyResultsDB),
		Textfile:            v.GetString(KeyTextfile),
		ReportDir:           v.GetString(KeyReportDir),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readConfigFile(v *viper.Viper, o *options, fs *pflag.FlagSet) error {
	errFactory := errors.New()

	path := o.configPath
	if p, _ := fs.GetString("config"); p != "" {
		path = p
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	return nil
}

// splitList accepts both repeated values and comma separated ones.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// positive rejects NaN and infinities along with non-positive values.
func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

func probability(p float64) bool {
	return p >= 0 && p <= 1
}

func validSource(s string) bool {
	_, err := signal.ParseKind(s)
	return err == nil
}

// Validate checks every field and returns the first problem found.
func (c *Config) Validate() error {
	errFactory := errors.New()

	invalid := func(code errors.ErrorCode, field string, value interface{}, reason string) error {
		return errFactory.Wrap(code, &fieldError{field: field, value: value, reason: reason})
	}

	switch {
	case c.Duration <= 0:
		return invalid(errors.ErrInvalidDuration, KeyDuration, c.Duration, "must be positive")
	case !positive(c.PeriodMs):
		return invalid(errors.ErrInvalidPeriod, KeyPeriodMs, c.PeriodMs, "must be positive and finite")
	case !positive(c.MaxJitterMs):
		return invalid(errors.ErrInvalidJitter, KeyMaxJitterMs, c.MaxJitterMs, "must be positive and finite")
	case c.MaxJitterMs >= c.PeriodMs/2:
		return invalid(errors.ErrInvalidJitter, KeyMaxJitterMs, c.MaxJitterMs, "must be below half the period")
	case !positive(c.MinSamplesPerSecond):
		return invalid(errors.ErrInvalidRate, KeyMinSamplesPerSec, c.MinSamplesPerSecond, "must be positive and finite")
	case c.PreRollTimeout < 0:
		return invalid(errors.ErrInvalidDuration, KeyPreRollTimeout, c.PreRollTimeout, "must not be negative")
	case c.MaxReadDelay < 0:
		return invalid(errors.ErrInvalidDuration, KeyMaxReadDelay, c.MaxReadDelay, "must not be negative")
	case !probability(c.NoiseProbability):
		return invalid(errors.ErrInvalidConfig, KeyNoiseProbability, c.NoiseProbability, "must be within [0, 1]")
	case !probability(c.FlukeProbability):
		return invalid(errors.ErrInvalidConfig, KeyFlukeProbability, c.FlukeProbability, "must be within [0, 1]")
	case len(c.Scenarios) == 0:
		return invalid(errors.ErrInvalidScenario, KeyScenarios, c.Scenarios, "at least one scenario is required")
	case c.Source != "" && !validSource(c.Source):
		return invalid(errors.ErrInvalidScenario, KeySource, c.Source, "unknown source kind")
	case c.Device == "":
		return invalid(errors.ErrInvalidConfig, KeyDevice, c.Device, "must not be empty")
	case c.Results && c.ResultsDB == "":
		return invalid(errors.ErrInvalidConfig, KeyResultsDB, c.ResultsDB, "required when results are enabled")
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return invalid(errors.ErrInvalidLogLevel, KeyLogLevel, c.LogLevel, "must be debug, info, warning or error")
	}

	return nil
}
