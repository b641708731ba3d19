package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/sigjitter/internal/config"
	"codeberg.org/mutker/sigjitter/internal/errors"
	"codeberg.org/mutker/sigjitter/internal/export"
	"codeberg.org/mutker/sigjitter/internal/logger"
	"codeberg.org/mutker/sigjitter/internal/pid"
	"codeberg.org/mutker/sigjitter/internal/report"
	"codeberg.org/mutker/sigjitter/internal/results"
	"codeberg.org/mutker/sigjitter/internal/runner"
	sigsrc "codeberg.org/mutker/sigjitter/internal/signal"
)

var (
	cfg       *config.Config
	scenarios []runner.Scenario
)

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(2)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(2)
	}
	logger.Debug().Msg("Config loaded")

	scenarios, err = selectScenarios()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid scenario selection")
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	release, err := pid.Acquire(cfg.Device)
	if err != nil {
		logger.Error().Err(err).Str("device", cfg.Device).Msg("failed to acquire device")
		return 2
	}
	defer func() {
		if err := release(); err != nil {
			logger.Debug().Err(err).Msg("failed to remove pid file")
		}
	}()

	store, err := results.NewService(results.Config{
		Enabled:         cfg.Results,
		DBPath:          cfg.ResultsDB,
		BackupOnMigrate: true,
	}, logger.Default())
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize results store")
		return 2
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close results store")
		}
	}()

	r, err := runner.New(runnerOptions(), store, logger.Default())
	if err != nil {
		logger.Error().Err(err).Msg("failed to create runner")
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	id, _ := r.Batch()
	logger.Info().Str("uuid", id).Int("scenarios", len(scenarios)).Msg("Starting batch")

	outcomes, err := r.Run(ctx, scenarios)
	if err != nil {
		if errors.HasCode(err, errors.ErrCanceled) {
			logger.Warn().Msg("Batch canceled")
			return 1
		}
		logger.Error().Err(err).Msg("error while running scenarios")
	}

	reports := make([]*report.RunReport, 0, len(outcomes))
	passed := err == nil
	for _, out := range outcomes {
		if out.Report != nil {
			fmt.Println(out.Report.Log())
			reports = append(reports, out.Report)
		}
		passed = passed && out.Passed()
	}

	if !writeExports(reports) {
		passed = false
	}

	if !passed {
		logger.Info().Str("uuid", id).Msg("Batch failed")
		return 1
	}
	logger.Info().Str("uuid", id).Msg("Batch passed")
	return 0
}

func selectScenarios() ([]runner.Scenario, error) {
	if cfg.Source == "" {
		return runner.Select(cfg.Scenarios)
	}

	kind, err := sigsrc.ParseKind(cfg.Source)
	if err != nil {
		return nil, err
	}
	sc, err := runner.ForSource(kind)
	if err != nil {
		return nil, err
	}
	return []runner.Scenario{sc}, nil
}

func runnerOptions() runner.Options {
	return runner.Options{
		Duration:            cfg.Duration,
		PeriodMs:            cfg.PeriodMs,
		MaxJitterMs:         cfg.MaxJitterMs,
		MinSamplesPerSecond: cfg.MinSamplesPerSecond,
		PreRoll:             cfg.PreRoll,
		PreRollTimeout:      cfg.PreRollTimeout,
		NoiseProbability:    cfg.NoiseProbability,
		FlukeProbability:    cfg.FlukeProbability,
		MaxReadDelay:        cfg.MaxReadDelay,
		Device:              cfg.Device,
		Channel:             cfg.Channel,
		NamePrefix:          cfg.Name,
	}
}

func writeExports(reports []*report.RunReport) bool {
	if len(reports) == 0 {
		return true
	}

	ok := true
	if cfg.Textfile != "" {
		if err := export.WriteTextfile(cfg.Textfile, reports); err != nil {
			logger.Error().Err(err).Str("path", cfg.Textfile).Msg("failed to write textfile")
			ok = false
		}
	}
	if cfg.ReportDir != "" {
		path, err := export.WriteYAMLFile(cfg.ReportDir, reports)
		if err != nil {
			logger.Error().Err(err).Str("dir", cfg.ReportDir).Msg("failed to write batch report")
			ok = false
		} else {
			logger.Debug().Str("path", path).Msg("Batch report written")
		}
	}
	return ok
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
