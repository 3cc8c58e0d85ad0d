package suites

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/mborgerson/xemu-test/disk"
	"github.com/mborgerson/xemu-test/harness"
)

const (
	// XBEName is the name of the test-xbe test.
	XBEName = "TestXBE"
	// XBEISOName is the disc image of test-xbe in its data directory.
	XBEISOName = "tester.iso"
	// MarkerName is the file test-xbe leaves in its results directory.
	MarkerName = "results.txt"
	// MarkerSuccess is the content of a passing marker file.
	MarkerSuccess = "Success"
)

// XBEStrategy checks the marker file written by test-xbe.
type XBEStrategy struct{}

func (XBEStrategy) PrepareGuestState(context.Context, *disk.Image) error {
	return nil
}

func (XBEStrategy) ValidateResults(_ context.Context, a *harness.Analysis) error {
	a.WarnIfPartial()

	data, err := a.ReadArtifact(MarkerName)
	if err != nil {
		return err
	}
	got := strings.TrimSpace(string(data))
	if got == MarkerSuccess {
		return nil
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(MarkerSuccess + "\n"),
		B:        difflib.SplitLines(got + "\n"),
		FromFile: "expected",
		ToFile:   MarkerName,
		Context:  1,
	})
	if err != nil {
		return fmt.Errorf("%s does not report success", MarkerName)
	}
	return fmt.Errorf("%s does not report success:\n%s", MarkerName, diff)
}

// NewXBE builds the test-xbe test.
func NewXBE(c Context) harness.Test {
	return harness.NewTestCase(c.Logger, harness.Options{
		Name:             XBEName,
		ISOPath:          filepath.Join(c.DataPath(XBEName), XBEISOName),
		GuestResultsPath: "results",
		ResultsPath:      c.ResultsPath(XBEName),
		Timeout:          harness.DefaultTimeout,
	}, c.Deps, XBEStrategy{})
}
