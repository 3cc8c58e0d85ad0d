// Package pgraph runs the nxdk_pgraph_tests suite inside the emulator until
// every test has been attempted, then checks the rendered images against
// the golden set.
package pgraph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/mborgerson/xemu-test/disk"
	"github.com/mborgerson/xemu-test/emuconfig"
	"github.com/mborgerson/xemu-test/harness"
	"github.com/mborgerson/xemu-test/model"
)

const (
	// SuiteName is the name of the test reported to the runner.
	SuiteName = "TestNxdkPgraphTests"
	// ISOName is the disc image of the suite in the test data directory.
	ISOName = "nxdk_pgraph_tests_xiso.iso"
	// GuestResultsPath is the results directory inside the extracted image.
	GuestResultsPath = "nxdk_pgraph_tests"
	// IterationTimeout is the wall-clock budget of one iteration.
	IterationTimeout = 30 * time.Minute
)

// DefaultRenderers returns the renderers exercised on goos.
func DefaultRenderers(goos string) []string {
	if goos == "darwin" {
		return []string{"opengl"}
	}
	return []string{"opengl", "vulkan"}
}

// GoldenPath returns the golden image root inside the test data directory.
func GoldenPath(dataPath string) string {
	return filepath.Join(dataPath, "nxdk_pgraph_tests_golden_results", "results")
}

// Options configure a Suite.
type Options struct {
	// Test data directory holding the disc image and golden results
	DataPath string
	// Results directory of the suite
	ResultsPath string
	// Renderers to sweep, DefaultRenderers when empty
	Renderers []string
	// Iteration bound per renderer, zero for none
	MaxIterations int
	// Budget of one iteration, IterationTimeout when zero
	Timeout time.Duration
}

// Suite is the exhaustive nxdk_pgraph_tests run. It implements harness.Test.
type Suite struct {
	logger   zerolog.Logger
	opts     Options
	deps     harness.Deps
	grouper  harness.Grouper
	executor Executor
}

// SuiteOption is a function that configures a Suite.
type SuiteOption func(*Suite)

// WithGrouper folds each renderer sweep into a log group.
func WithGrouper(g harness.Grouper) SuiteOption {
	return func(s *Suite) {
		s.grouper = g
	}
}

// WithExecutor replaces the emulator backed executor.
func WithExecutor(e Executor) SuiteOption {
	return func(s *Suite) {
		s.executor = e
	}
}

// NewSuite creates a Suite.
func NewSuite(logger zerolog.Logger, opts Options, deps harness.Deps, sopts ...SuiteOption) *Suite {
	if opts.Timeout == 0 {
		opts.Timeout = IterationTimeout
	}
	s := &Suite{
		logger:  logger.With().Str("component", "pgraph").Logger(),
		opts:    opts,
		deps:    deps,
		grouper: harness.NoGroups{},
	}
	s.executor = &caseExecutor{logger: logger, opts: opts, deps: deps}
	for _, opt := range sopts {
		opt(s)
	}
	return s
}

// Name returns the name of the suite.
func (s *Suite) Name() string {
	return SuiteName
}

// Run sweeps every renderer and compares the produced images.
func (s *Suite) Run(ctx context.Context) (*model.TestResult, error) {
	start := time.Now()
	result := model.NewTestResult(SuiteName)
	abort := func(err error) (*model.TestResult, error) {
		result.Fail(err.Error(), time.Since(start))
		return result, err
	}

	golden := GoldenPath(s.opts.DataPath)
	if info, err := os.Stat(golden); err != nil || !info.IsDir() {
		return abort(fmt.Errorf("%w: golden results %s", harness.ErrMissingArtifact, golden))
	}

	if err := os.RemoveAll(s.opts.ResultsPath); err != nil {
		return abort(fmt.Errorf("failed to clear results directory: %w", err))
	}
	if err := os.MkdirAll(s.opts.ResultsPath, 0o755); err != nil {
		return abort(fmt.Errorf("failed to create results directory: %w", err))
	}

	renderers := s.opts.Renderers
	if len(renderers) == 0 {
		renderers = DefaultRenderers(runtime.GOOS)
	}

	ledger := NewLedger()
	reconciler := NewReconciler(s.logger, s.executor, WithMaxIterations(s.opts.MaxIterations))
	for _, renderer := range renderers {
		err := s.grouper.Group("Renderer: "+renderer, func() error {
			n, err := reconciler.Reconcile(ctx, renderer, ledger)
			s.logger.Info().Str("renderer", renderer).Int("iterations", n).Msg("Renderer sweep finished")
			return err
		})
		if err != nil {
			return abort(fmt.Errorf("renderer %s: %w", renderer, err))
		}
	}

	failed := 0
	err := s.grouper.Group("Analyzing results (golden image comparison)", func() error {
		mismatches, err := s.deps.Comparator.CompareAll(ctx, s.opts.ResultsPath, golden, StripRendererIteration)
		if err != nil {
			return err
		}
		ledger.ApplyComparisons(mismatches, s.deps.Comparator.Enabled())
		failed = ledger.Report(result)
		return nil
	})
	if err != nil {
		return abort(err)
	}

	for _, sub := range result.Subtests {
		if sub.Status == model.TestStatusFailed {
			s.logger.Error().Str("test", sub.Name).Str("message", sub.Message).Msg("Subtest failed")
		}
	}

	if failed > 0 {
		result.Fail(fmt.Sprintf("%d test(s) failed", failed), time.Since(start))
		return result, nil
	}
	result.Finish(time.Since(start))
	return result, nil
}

// caseExecutor runs each iteration as a harness.TestCase.
type caseExecutor struct {
	logger zerolog.Logger
	opts   Options
	deps   harness.Deps
}

func (e *caseExecutor) RunIteration(ctx context.Context, renderer string, iteration int, skip []TestID) (string, error) {
	resultsPath := filepath.Join(e.opts.ResultsPath, renderer, fmt.Sprintf("iteration_%d", iteration))

	tc := harness.NewTestCase(e.logger, harness.Options{
		Name:             fmt.Sprintf("%s/%s/iteration_%d", SuiteName, renderer, iteration),
		ISOPath:          filepath.Join(e.opts.DataPath, ISOName),
		GuestResultsPath: GuestResultsPath,
		ResultsPath:      resultsPath,
		Timeout:          e.opts.Timeout,
		Overlays:         []emuconfig.Overlay{emuconfig.Renderer(renderer)},
	}, e.deps, &iterationStrategy{config: BuildGuestConfig(skip)})

	if _, err := tc.Run(ctx); err != nil {
		return "", err
	}
	return filepath.Join(resultsPath, ProgressLogName), nil
}

// iterationStrategy seeds the guest config of one iteration. The results
// are judged once all iterations ran.
type iterationStrategy struct {
	config GuestConfig
}

func (s *iterationStrategy) PrepareGuestState(ctx context.Context, image *disk.Image) error {
	data, err := s.config.Marshal()
	if err != nil {
		return err
	}
	vol := image.Volume(GuestConfigDrive)
	if err := vol.Mkdir(ctx, GuestConfigDir); err != nil {
		return err
	}
	return vol.Write(ctx, GuestConfigPath, data)
}

func (s *iterationStrategy) ValidateResults(_ context.Context, a *harness.Analysis) error {
	a.WarnIfPartial()
	return nil
}
