package cli

// This file contains the default action: run the selected tests, print the
// summary and record the run in the history.

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/mborgerson/xemu-test/ci"
	"github.com/mborgerson/xemu-test/compare"
	"github.com/mborgerson/xemu-test/disk"
	"github.com/mborgerson/xemu-test/env"
	"github.com/mborgerson/xemu-test/harness"
	"github.com/mborgerson/xemu-test/history"
	"github.com/mborgerson/xemu-test/model"
	"github.com/mborgerson/xemu-test/process"
	"github.com/mborgerson/xemu-test/runner"
	"github.com/mborgerson/xemu-test/suites"
	"github.com/mborgerson/xemu-test/video"
)

// LogName is the harness log written to the results root.
const LogName = "xemutest.log"

func (a *App) run(ctx *cli.Context) error {
	startTime := time.Now()

	cfg, err := configFromContext(ctx)
	if err != nil {
		return err
	}

	e, err := cfg.Environment()
	if err != nil {
		return err
	}
	resultsRoot, err := cfg.ResultsRoot()
	if err != nil {
		return err
	}
	dataRoot, err := cfg.DataRoot()
	if err != nil {
		return err
	}
	workDir, err := cfg.WorkDirectory()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(resultsRoot, 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	logFile, err := os.Create(filepath.Join(resultsRoot, LogName))
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	defer logFile.Close()

	reporter := ci.FromEnv()
	logger := a.logger.Output(zerolog.MultiLevelWriter(a.console, logFile))
	if reporter.Enabled() {
		logger = logger.Hook(reporter.Hook(AppName))
	}

	entries, err := suites.Default().Select(cfg.Tests)
	if err != nil {
		return err
	}

	logger.Info().
		Str("private", e.PrivatePath).
		Str("results", resultsRoot).
		Str("data", dataRoot).
		Str("xemu", e.XemuPath).
		Str("work_dir", workDir).
		Int("tests", len(entries)).
		Msg("Starting test run")

	if err := e.Validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid environment")
		return cli.Exit(err.Error(), 1)
	}
	warnDisabledTools(logger, e)

	runCtx, stop := signal.NotifyContext(contextOf(ctx), os.Interrupt)
	defer stop()

	sctx := suites.Context{
		Logger:        logger,
		Env:           e,
		DataRoot:      dataRoot,
		ResultsRoot:   resultsRoot,
		Deps:          buildDeps(logger, cfg, e, workDir),
		Grouper:       reporter,
		MaxIterations: cfg.MaxIterations,
		Renderers:     cfg.Renderers,
	}

	tests := make([]harness.Test, 0, len(entries))
	for _, entry := range entries {
		tests = append(tests, entry.New(sctx))
	}

	summary := runner.New(logger, tests, runner.WithGrouper(reporter)).Run(runCtx)

	fmt.Fprintln(a.stdout, summary.Table(a.color))
	if err := reporter.WriteSummary(summary.JobSummary()); err != nil {
		logger.Warn().Err(err).Msg("Failed to write job summary")
	}

	if err := logFile.Sync(); err != nil {
		logger.Debug().Err(err).Msg("Failed to sync log file")
	}

	run := &model.Run{
		ID:        uuid.NewString(),
		Timestamp: startTime,
		Args:      os.Args,
		WorkDir:   workDir,
		ExitCode:  summary.ExitCode(),
		Duration:  time.Since(startTime),
		Target: &model.Target{
			OS:   runtime.GOOS,
			Arch: runtime.GOARCH,
			CI:   reporter.Enabled(),
		},
		Tools: &model.Tools{
			Xemu:           e.XemuPath,
			Ffmpeg:         e.FfmpegPath,
			PerceptualDiff: e.PerceptualDiffPath,
		},
		Tests: summary.Results,
	}
	run.Artifacts = history.Artifacts(resultsRoot, LogName, run.Tests)

	if _, err := history.Record(logger, resultsRoot, run); err != nil {
		logger.Warn().Err(err).Msg("Failed to record run")
	}

	if code := summary.ExitCode(); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// buildDeps wires the collaborators shared by every test of a run.
func buildDeps(logger zerolog.Logger, cfg Config, e env.Environment, workDir string) harness.Deps {
	codec := disk.NewPyFatx(logger, cfg.Python)

	var recorder func(output string) process.Recorder
	if e.VideoCaptureEnabled() {
		recorder = func(output string) process.Recorder {
			return video.New(logger, e.FfmpegPath, output)
		}
	}

	return harness.Deps{
		Env:        e,
		WorkDir:    workDir,
		Image:      disk.New(logger, filepath.Join(workDir, harness.ImageName), codec),
		Comparator: compare.New(logger, e.PerceptualDiffPath),
		Launchers:  harness.DefaultLaunchers(logger, e, recorder, process.WithWindowLocator(process.NewWindowLocator(logger))),
	}
}

func warnDisabledTools(logger zerolog.Logger, e env.Environment) {
	if !e.VideoCaptureEnabled() {
		logger.Warn().Msg("Video capture is disabled")
	}
	if !e.DiffEnabled() {
		logger.Warn().Msg("Golden image comparison is disabled, results will be unverified")
	}
}

func contextOf(ctx *cli.Context) context.Context {
	if ctx.Context != nil {
		return ctx.Context
	}
	return context.Background()
}

func (a *App) tests(_ *cli.Context) error {
	for _, name := range suites.Default().Names() {
		fmt.Fprintln(a.stdout, name)
	}
	return nil
}
