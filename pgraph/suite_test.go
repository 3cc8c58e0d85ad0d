package pgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/mborgerson/xemu-test/compare"
	"github.com/mborgerson/xemu-test/disk"
	"github.com/mborgerson/xemu-test/disk/disktest"
	"github.com/mborgerson/xemu-test/env"
	"github.com/mborgerson/xemu-test/harness"
	"github.com/mborgerson/xemu-test/model"
	"github.com/mborgerson/xemu-test/process"
)

const fakeDiff = `#!/bin/sh
if cmp -s "$4" "$5"; then
  exit 0
fi
echo "FAIL: Images are visibly different" >&2
exit 1
`

type recordingGrouper struct {
	titles []string
}

func (g *recordingGrouper) Group(title string, fn func() error) error {
	g.titles = append(g.titles, title)
	return fn()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newSuiteOptions(t *testing.T) Options {
	t.Helper()
	data := filepath.Join(t.TempDir(), SuiteName)
	golden := GoldenPath(data)
	writeFile(t, filepath.Join(golden, "Lighting", "spot.png"), "spot")
	writeFile(t, filepath.Join(golden, "Lighting", "point.png"), "point")
	return Options{
		DataPath:    data,
		ResultsPath: filepath.Join(t.TempDir(), "results", SuiteName),
		Renderers:   []string{"opengl", "vulkan"},
	}
}

var sweep = []string{
	"Starting Lighting::spot\nCompleted 'spot' in 10ms\nStarting Lighting::point\nCompleted 'point' in 20ms\n",
	"",
}

func TestSuite_RunUnverifiedWithoutDiff(t *testing.T) {
	opts := newSuiteOptions(t)
	exec := &scriptedExecutor{dir: t.TempDir(), logs: sweep}
	grouper := &recordingGrouper{}

	deps := harness.Deps{Comparator: compare.New(zerolog.Nop(), "")}
	s := NewSuite(zerolog.Nop(), opts, deps, WithExecutor(exec), WithGrouper(grouper))
	require.Equal(t, SuiteName, s.Name())

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.TestStatusPassed, res.Status)

	passed, failed, unverified := res.Counts()
	require.Zero(t, passed)
	require.Zero(t, failed)
	require.Equal(t, 4, unverified)
	require.Equal(t, []string{
		"Renderer: opengl",
		"Renderer: vulkan",
		"Analyzing results (golden image comparison)",
	}, grouper.titles)
	require.Len(t, exec.skips, 4)
}

func TestSuite_RunComparesImages(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	script := filepath.Join(t.TempDir(), "perceptualdiff")
	require.NoError(t, os.WriteFile(script, []byte(fakeDiff), 0o755))

	opts := newSuiteOptions(t)
	opts.Renderers = []string{"opengl"}
	exec := &scriptedExecutor{
		dir:  t.TempDir(),
		logs: sweep,
		onRun: func(renderer string, iteration int) {
			if iteration != 0 {
				return
			}
			dir := filepath.Join(opts.ResultsPath, renderer, "iteration_0", "Lighting")
			writeFile(t, filepath.Join(dir, "spot.png"), "spot")
			writeFile(t, filepath.Join(dir, "point.png"), "garbled")
		},
	}

	deps := harness.Deps{Comparator: compare.New(zerolog.Nop(), script)}
	res, err := NewSuite(zerolog.Nop(), opts, deps, WithExecutor(exec)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.TestStatusFailed, res.Status)
	require.Equal(t, "1 test(s) failed", res.Message)

	require.Equal(t, []model.TestResult{
		{Name: "opengl::Lighting::spot", Status: model.TestStatusPassed, Duration: 10 * time.Millisecond},
		{Name: "opengl::Lighting::point", Status: model.TestStatusFailed, Message: "FAIL: Images are visibly different\n", Duration: 20 * time.Millisecond},
	}, res.Subtests)
}

func TestSuite_MissingGolden(t *testing.T) {
	opts := newSuiteOptions(t)
	opts.DataPath = filepath.Join(t.TempDir(), "absent")
	exec := &scriptedExecutor{dir: t.TempDir(), logs: sweep}

	res, err := NewSuite(zerolog.Nop(), opts, harness.Deps{}, WithExecutor(exec)).Run(context.Background())
	require.ErrorIs(t, err, harness.ErrMissingArtifact)
	require.Equal(t, model.TestStatusFailed, res.Status)
	require.Empty(t, exec.skips)
}

func TestSuite_UnmatchedSequenceFails(t *testing.T) {
	opts := newSuiteOptions(t)
	exec := &scriptedExecutor{dir: t.TempDir(), logs: []string{"Completed 'spot' in 1ms\n"}}

	res, err := NewSuite(zerolog.Nop(), opts, harness.Deps{Comparator: compare.New(zerolog.Nop(), "")}, WithExecutor(exec)).Run(context.Background())
	require.ErrorIs(t, err, ErrUnmatchedSequence)
	require.Equal(t, model.TestStatusFailed, res.Status)
}

// guestLauncher plays the in-guest suite: it reads the config seeded on
// drive E, runs every test that is not skipped and writes the progress log.
type guestLauncher struct {
	t       *testing.T
	codec   *disktest.MemCodec
	tests   []TestID
	configs []GuestConfig
	cmds    []process.Command
}

func (g *guestLauncher) Launch(_ context.Context, cmd process.Command, _ time.Duration, _ io.Writer) (process.Result, error) {
	g.cmds = append(g.cmds, cmd)

	raw, ok := g.codec.File(GuestConfigDrive, GuestConfigPath)
	require.True(g.t, ok)
	var cfg GuestConfig
	require.NoError(g.t, json.Unmarshal(raw, &cfg))
	g.configs = append(g.configs, cfg)

	log := ""
	for _, id := range g.tests {
		if cfg.TestSuites[id.Suite][id.Name].Skipped {
			continue
		}
		log += fmt.Sprintf("Starting %s\nCompleted '%s' in 5ms\n", id, id.Name)
		g.codec.Guest("c", "/nxdk_pgraph_tests/"+id.Suite+"/"+id.Name+".png", []byte(id.Name))
	}
	g.codec.Guest("c", "/nxdk_pgraph_tests/"+ProgressLogName, []byte(log))

	code := 0
	return process.Result{State: process.StateExited, ExitCode: &code}, nil
}

func TestSuite_RunsIterationsThroughHarness(t *testing.T) {
	opts := newSuiteOptions(t)
	opts.Renderers = []string{"vulkan"}
	writeFile(t, filepath.Join(opts.DataPath, ISOName), "iso")

	work := t.TempDir()
	codec := disktest.NewMemCodec(afero.NewOsFs())
	launcher := &guestLauncher{
		t:     t,
		codec: codec,
		tests: []TestID{{"Lighting", "spot"}, {"Lighting", "point"}},
	}
	deps := harness.Deps{
		Env:        env.Environment{XemuPath: "xemu", DisableFullscreen: true},
		WorkDir:    work,
		Image:      disk.New(zerolog.Nop(), filepath.Join(work, harness.ImageName), codec),
		DiskSize:   4096,
		Comparator: compare.New(zerolog.Nop(), ""),
		Launchers:  func(string) harness.Launcher { return launcher },
	}

	res, err := NewSuite(zerolog.Nop(), opts, deps).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.TestStatusPassed, res.Status)
	require.Len(t, res.Subtests, 2)

	require.Len(t, launcher.configs, 2)
	require.Empty(t, launcher.configs[0].TestSuites)
	require.True(t, launcher.configs[1].TestSuites["Lighting"]["spot"].Skipped)
	require.True(t, launcher.configs[1].TestSuites["Lighting"]["point"].Skipped)

	require.FileExists(t, filepath.Join(opts.ResultsPath, "vulkan", "iteration_0", "Lighting", "spot.png"))
	require.FileExists(t, filepath.Join(opts.ResultsPath, "vulkan", "iteration_1", ProgressLogName))

	toml, err := os.ReadFile(filepath.Join(work, "xemu.toml"))
	require.NoError(t, err)
	require.Contains(t, string(toml), "VULKAN")
}

func TestDefaultRenderers(t *testing.T) {
	require.Equal(t, []string{"opengl"}, DefaultRenderers("darwin"))
	require.Equal(t, []string{"opengl", "vulkan"}, DefaultRenderers("linux"))
	require.Equal(t, []string{"opengl", "vulkan"}, DefaultRenderers("windows"))
}
