package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/mborgerson/xemu-test/compare"
	"github.com/mborgerson/xemu-test/disk"
	"github.com/mborgerson/xemu-test/model"
	"github.com/mborgerson/xemu-test/process"
)

// ErrMissingArtifact is returned when a file the guest should have written
// is not present in the results.
var ErrMissingArtifact = errors.New("missing artifact")

// Test is anything the runner can execute.
type Test interface {
	Name() string
	// Run executes the test. The returned result is never nil. An error is
	// returned when the test could not be carried out at all.
	Run(ctx context.Context) (*model.TestResult, error)
}

// Grouper folds the output of fn under a title. ci.Reporter implements it.
type Grouper interface {
	Group(title string, fn func() error) error
}

// NoGroups is a Grouper that runs fn without any folding.
type NoGroups struct{}

func (NoGroups) Group(_ string, fn func() error) error {
	return fn()
}

// Strategy is the part of a TestCase that varies between tests.
type Strategy interface {
	// PrepareGuestState seeds the freshly formatted disk image.
	PrepareGuestState(ctx context.Context, image *disk.Image) error
	// ValidateResults inspects the extracted results. It may add subtests
	// to a.Result; a returned error fails the test with its message.
	ValidateResults(ctx context.Context, a *Analysis) error
}

// GuestTeardown is implemented by strategies that clean the disk image up
// after analysis. It runs whether or not validation succeeded.
type GuestTeardown interface {
	TeardownGuestState(ctx context.Context, image *disk.Image) error
}

// Analysis is what a Strategy gets to look at after the emulator ran.
type Analysis struct {
	Name        string
	ResultsPath string
	Launch      process.Result
	Result      *model.TestResult
	Comparator  *compare.Comparator
	Logger      zerolog.Logger
}

// ArtifactPath returns the host path of a file in the results directory.
func (a *Analysis) ArtifactPath(name string) string {
	return filepath.Join(a.ResultsPath, filepath.FromSlash(name))
}

// ReadArtifact reads a file from the results directory. A missing file is
// reported as ErrMissingArtifact.
func (a *Analysis) ReadArtifact(name string) ([]byte, error) {
	b, err := os.ReadFile(a.ArtifactPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return b, nil
}

// WarnIfPartial logs when the launch did not end cleanly, meaning the
// results are likely incomplete.
func (a *Analysis) WarnIfPartial() {
	switch {
	case a.Launch.TimedOut():
		a.Logger.Warn().Msg("xemu exited due to timeout, results are likely partial")
	case a.Launch.ExitCode != nil && *a.Launch.ExitCode != 0:
		a.Logger.Warn().
			Int("exit_code", *a.Launch.ExitCode).
			Msg("xemu terminated due to error, results may be partial due to a crash")
	}
}
