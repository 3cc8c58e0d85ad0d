package cli

// This file contains the list command for displaying previous runs.

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mborgerson/xemu-test/history"
)

func (a *App) list(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected RESULTS argument")
	}
	resultsRoot, err := absPath(ctx.Args().First())
	if err != nil {
		return err
	}

	entries, err := history.LoadEntries(a.logger, resultsRoot)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	printEntries(a.stdout, filterEntries(entries, ctx.Bool("failed")), ctx.Int("limit"))
	return nil
}

func filterEntries(entries []history.Entry, failedOnly bool) []history.Entry {
	if !failedOnly {
		return entries
	}
	var filtered []history.Entry
	for _, entry := range entries {
		if entry.Run.ExitCode != 0 {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// printEntries prints entries, which are sorted newest first, up to limit.
func printEntries(w io.Writer, entries []history.Entry, limit int) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history entries found")
		return
	}

	displayRuns := entries
	if limit > 0 && limit < len(displayRuns) {
		displayRuns = displayRuns[:limit]
	}

	fmt.Fprintf(w, "\n=== History (%d total) ===\n\n", len(entries))

	for _, entry := range displayRuns {
		run := entry.Run
		timestamp := run.Timestamp.Format("2006-01-02 15:04:05")
		duration := run.Duration.Round(time.Millisecond)

		status := "✓"
		if run.ExitCode != 0 {
			status = "✗"
		}

		fmt.Fprintf(w, "%s  %s  [%s]  exit=%d  id=%s\n", status, timestamp, duration, run.ExitCode, history.ShortID(run.ID))

		// Skip the program name
		if len(run.Args) > 1 {
			fmt.Fprintf(w, "   Args: %s\n", strings.Join(run.Args[1:], " "))
		}
		if run.Target != nil && run.Target.OS != "" && run.Target.Arch != "" {
			fmt.Fprintf(w, "   Host: %s/%s", run.Target.OS, run.Target.Arch)
			if run.Target.CI {
				fmt.Fprint(w, " (ci)")
			}
			fmt.Fprintln(w)
		}
		if len(run.Tests) > 0 {
			var tests []string
			for _, t := range run.Tests {
				tests = append(tests, fmt.Sprintf("%s=%s", t.Name, t.Status))
			}
			fmt.Fprintf(w, "   Tests: %s\n", strings.Join(tests, " "))
		}
		for _, artifact := range run.Artifacts {
			fmt.Fprintf(w, "   %s: %s (%.1f KB)\n", artifact.Type, artifact.File, float64(artifact.Size)/1024)
		}
		fmt.Fprintf(w, "   %s\n", entry.FullPath)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\nView run: %s view RESULTS <ID>\n", AppName)
}
