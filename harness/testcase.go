// Package harness drives a single emulator run: it prepares the disk image,
// launches xemu, extracts what the guest wrote and hands the results to a
// Strategy for validation.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/mborgerson/xemu-test/compare"
	"github.com/mborgerson/xemu-test/disk"
	"github.com/mborgerson/xemu-test/emuconfig"
	"github.com/mborgerson/xemu-test/env"
	"github.com/mborgerson/xemu-test/model"
	"github.com/mborgerson/xemu-test/process"
)

const (
	// DefaultTimeout is the wall-clock budget of a launch.
	DefaultTimeout = 60 * time.Second

	// MountDirName is the directory in the work dir receiving the extracted image.
	MountDirName = "xemu-hdd-mount"

	// ImageName is the disk image file in the work dir.
	ImageName = "test.img"

	// EmulatorLogName captures the emulator stdout and stderr.
	EmulatorLogName = "xemu.log"

	// CaptureName is the video recorded during a launch.
	CaptureName = "capture.mp4"
)

// State is the lifecycle state of a TestCase.
type State int

const (
	StateCreated State = iota
	StatePreparing
	StateRunning
	StateExtracting
	StateAnalyzing
	StatePassed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePreparing:
		return "preparing"
	case StateRunning:
		return "running"
	case StateExtracting:
		return "extracting"
	case StateAnalyzing:
		return "analyzing"
	case StatePassed:
		return "passed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Launcher runs the emulator process. process.Runner implements it.
type Launcher interface {
	Launch(ctx context.Context, cmd process.Command, timeout time.Duration, stdout io.Writer) (process.Result, error)
}

// LauncherFactory returns the launcher for a run whose results go to resultsPath.
type LauncherFactory func(resultsPath string) Launcher

// DefaultLaunchers builds process runners, recording each launch to
// capture.mp4 in the results directory when video capture is enabled.
func DefaultLaunchers(logger zerolog.Logger, e env.Environment, recorder func(output string) process.Recorder, opts ...process.Option) LauncherFactory {
	return func(resultsPath string) Launcher {
		o := append([]process.Option(nil), opts...)
		if e.VideoCaptureEnabled() && recorder != nil {
			o = append(o, process.WithRecorder(recorder(filepath.Join(resultsPath, CaptureName))))
		}
		return process.New(logger, o...)
	}
}

// Deps are the collaborators shared by every TestCase of a run.
type Deps struct {
	Env        env.Environment
	WorkDir    string
	Image      *disk.Image
	DiskSize   int64
	Comparator *compare.Comparator
	Launchers  LauncherFactory
}

// Options describe one emulator run.
type Options struct {
	// Name of the test, used for the result
	Name string
	// Disc image loaded into the DVD drive, optional
	ISOPath string
	// Directory inside the extracted image holding the guest results
	GuestResultsPath string
	// Host directory receiving this run's results
	ResultsPath string
	// Wall-clock budget for the emulator
	Timeout time.Duration
	// Extra emulator configuration applied over the defaults
	Overlays []emuconfig.Overlay
}

// TestCase runs the emulator once and validates the outcome with a Strategy.
type TestCase struct {
	logger   zerolog.Logger
	opts     Options
	deps     Deps
	strategy Strategy
	state    State
	goos     string
}

// NewTestCase creates a TestCase in the created state.
func NewTestCase(logger zerolog.Logger, opts Options, deps Deps, strategy Strategy) *TestCase {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if deps.DiskSize == 0 {
		deps.DiskSize = disk.DefaultSize
	}
	return &TestCase{
		logger:   logger.With().Str("component", "harness").Str("test", opts.Name).Logger(),
		opts:     opts,
		deps:     deps,
		strategy: strategy,
		state:    StateCreated,
		goos:     runtime.GOOS,
	}
}

// Name returns the name of the test.
func (tc *TestCase) Name() string {
	return tc.opts.Name
}

// State returns the current lifecycle state.
func (tc *TestCase) State() State {
	return tc.state
}

// Run executes the test case. Failures before analysis are returned as an
// error together with a failed result; validation failures only fail the
// result.
func (tc *TestCase) Run(ctx context.Context) (*model.TestResult, error) {
	start := time.Now()
	result := model.NewTestResult(tc.opts.Name)

	launch, err := tc.execute(ctx)
	if err != nil {
		tc.state = StateFailed
		result.Fail(err.Error(), time.Since(start))
		tc.logger.Error().Err(err).Str("state", tc.state.String()).Msg("Test setup failed")
		return result, err
	}

	tc.state = StateAnalyzing
	if err := tc.analyze(ctx, launch, result); err != nil {
		result.Fail(err.Error(), time.Since(start))
	} else {
		result.Finish(time.Since(start))
	}

	if result.Status == model.TestStatusFailed {
		tc.state = StateFailed
		tc.logger.Error().Str("message", result.Message).Msg("Test failed")
	} else {
		tc.state = StatePassed
		tc.logger.Info().Dur("duration", result.Duration).Msg("Test passed")
	}
	return result, nil
}

func (tc *TestCase) execute(ctx context.Context) (process.Result, error) {
	tc.state = StatePreparing
	if err := os.RemoveAll(tc.opts.ResultsPath); err != nil {
		return process.Result{}, fmt.Errorf("failed to clear results directory: %w", err)
	}
	if err := os.MkdirAll(tc.opts.ResultsPath, 0o755); err != nil {
		return process.Result{}, fmt.Errorf("failed to create results directory: %w", err)
	}
	if tc.opts.ISOPath != "" {
		if _, err := os.Stat(tc.opts.ISOPath); err != nil {
			return process.Result{}, fmt.Errorf("%w: disc image %s", ErrMissingArtifact, tc.opts.ISOPath)
		}
	}

	tc.logger.Info().Str("image", tc.deps.Image.Path()).Msg("Preparing HDD image")
	if err := tc.deps.Image.Prepare(ctx, tc.deps.DiskSize); err != nil {
		return process.Result{}, err
	}
	if err := tc.strategy.PrepareGuestState(ctx, tc.deps.Image); err != nil {
		return process.Result{}, fmt.Errorf("failed to prepare guest state: %w", err)
	}

	configPath := filepath.Join(tc.deps.WorkDir, emuconfig.FileName)
	cfg := emuconfig.New(
		emuconfig.Defaults(),
		emuconfig.Files(tc.deps.Env.BootROMPath(), tc.deps.Env.FlashPath(), tc.deps.Image.Path()),
	)
	for _, o := range tc.opts.Overlays {
		cfg = cfg.With(o)
	}
	if err := cfg.WriteFile(configPath); err != nil {
		return process.Result{}, err
	}

	tc.state = StateRunning
	logFile, err := os.Create(filepath.Join(tc.opts.ResultsPath, EmulatorLogName))
	if err != nil {
		return process.Result{}, fmt.Errorf("failed to create emulator log: %w", err)
	}
	defer logFile.Close()

	cmd := BuildCommand(tc.deps.Env, configPath, tc.opts.ISOPath, tc.goos)
	cmd.Dir = tc.deps.WorkDir
	launch, err := tc.deps.Launchers(tc.opts.ResultsPath).Launch(ctx, cmd, tc.opts.Timeout, logFile)
	if err != nil {
		return launch, fmt.Errorf("failed to launch xemu: %w", err)
	}

	tc.state = StateExtracting
	mount := filepath.Join(tc.deps.WorkDir, MountDirName)
	if err := tc.deps.Image.ExtractTo(ctx, mount); err != nil {
		return launch, err
	}
	guest := filepath.Join(mount, filepath.FromSlash(tc.opts.GuestResultsPath))
	tc.logger.Info().Str("from", guest).Str("to", tc.opts.ResultsPath).Msg("Copying test results")
	if err := copyTree(guest, tc.opts.ResultsPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return launch, fmt.Errorf("%w: guest results %s: %v", ErrMissingArtifact, tc.opts.GuestResultsPath, err)
		}
		return launch, fmt.Errorf("failed to copy results: %w", err)
	}
	return launch, nil
}

func (tc *TestCase) analyze(ctx context.Context, launch process.Result, result *model.TestResult) (err error) {
	if td, ok := tc.strategy.(GuestTeardown); ok {
		defer func() {
			if terr := td.TeardownGuestState(ctx, tc.deps.Image); terr != nil {
				tc.logger.Warn().Err(terr).Msg("Failed to tear down guest state")
			}
		}()
	}

	return tc.strategy.ValidateResults(ctx, &Analysis{
		Name:        tc.opts.Name,
		ResultsPath: tc.opts.ResultsPath,
		Launch:      launch,
		Result:      result,
		Comparator:  tc.deps.Comparator,
		Logger:      tc.logger,
	})
}

// BuildCommand builds the emulator command line. Fullscreen is requested
// except on Windows or when disabled in the environment.
func BuildCommand(e env.Environment, configPath, isoPath, goos string) process.Command {
	args := []string{"-config_path", configPath}
	if isoPath != "" {
		args = append(args, "-dvd_path", isoPath)
	}
	if goos != "windows" && !e.DisableFullscreen {
		args = append(args, "-full-screen")
	}
	return process.Command{Path: e.XemuPath, Args: args}
}
