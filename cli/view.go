package cli

// This file contains the view command for displaying a run from history.

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/mborgerson/xemu-test/history"
	"github.com/mborgerson/xemu-test/model"
	"github.com/mborgerson/xemu-test/runner"
)

func removeFirstDashDash(in []string) []string {
	if len(in) > 0 && in[0] == "--" {
		return in[1:]
	}
	return in
}

// parseViewArgs splits RESULTS from the optional ID or index, which defaults
// to the last run. A "--" may precede a negative index.
func parseViewArgs(in []string) (resultsRoot, ref string, err error) {
	if len(in) == 0 {
		return "", "", fmt.Errorf("expected RESULTS argument")
	}
	rest := removeFirstDashDash(in[1:])
	switch len(rest) {
	case 0:
		return in[0], "0", nil
	case 1:
		return in[0], rest[0], nil
	}
	return "", "", fmt.Errorf("unexpected arguments: %v", rest[1:])
}

func (a *App) view(ctx *cli.Context) error {
	results, ref, err := parseViewArgs(ctx.Args().Slice())
	if err != nil {
		return err
	}
	resultsRoot, err := absPath(results)
	if err != nil {
		return err
	}

	entries, err := history.LoadEntries(a.logger, resultsRoot)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	if len(entries) == 0 {
		return fmt.Errorf("no history entries found")
	}

	entry, err := history.Find(entries, ref)
	if err != nil {
		return err
	}

	a.displayRun(a.stdout, entry)

	if ctx.Bool("log") {
		return displayEmulatorLogs(a.stdout, resultsRoot, entry.Run.Artifacts)
	}
	return nil
}

func (a *App) displayRun(w io.Writer, entry *history.Entry) {
	run := entry.Run

	fmt.Fprintf(w, "=== Run: %s ===\n", history.ShortID(run.ID))
	fmt.Fprintf(w, "Time: %s\n", run.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Duration: %s\n", run.Duration)
	fmt.Fprintf(w, "Exit Code: %d\n", run.ExitCode)
	if run.WorkDir != "" {
		fmt.Fprintf(w, "Working Dir: %s\n", run.WorkDir)
	}
	if run.Tools != nil {
		fmt.Fprintf(w, "xemu: %s\n", run.Tools.Xemu)
		fmt.Fprintf(w, "ffmpeg: %s\n", toolOrDisabled(run.Tools.Ffmpeg))
		fmt.Fprintf(w, "perceptualdiff: %s\n", toolOrDisabled(run.Tools.PerceptualDiff))
	}
	fmt.Fprintln(w)

	summary := runner.Summary{Results: run.Tests, Duration: run.Duration}
	fmt.Fprintln(w, summary.Table(a.color))

	for _, t := range run.Tests {
		for _, sub := range t.Subtests {
			if sub.Status != model.TestStatusFailed {
				continue
			}
			fmt.Fprintf(w, "FAIL %s / %s", t.Name, sub.Name)
			if sub.Message != "" {
				fmt.Fprintf(w, ": %s", sub.Message)
			}
			fmt.Fprintln(w)
		}
	}

	if len(run.Artifacts) > 0 {
		fmt.Fprintln(w)
		for _, artifact := range run.Artifacts {
			fmt.Fprintf(w, "%s: %s (%.1f KB)\n", artifact.Type, artifact.File, float64(artifact.Size)/1024)
		}
	}
	fmt.Fprintf(w, "\nHistory directory: %s\n", entry.FullPath)
}

func displayEmulatorLogs(w io.Writer, resultsRoot string, artifacts []model.Artifact) error {
	for _, artifact := range artifacts {
		if artifact.Type != model.ArtifactTypeEmulatorLog {
			continue
		}
		path := filepath.Join(resultsRoot, filepath.FromSlash(artifact.File))
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read emulator log: %w", err)
		}
		fmt.Fprintf(w, "\n=== %s ===\n", artifact.File)
		fmt.Fprintln(w, string(data))
	}
	return nil
}

func toolOrDisabled(path string) string {
	if path == "" {
		return "disabled"
	}
	return path
}
