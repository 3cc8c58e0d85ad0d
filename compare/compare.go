// Package compare pairs images produced by a run with their golden
// counterparts and checks them with perceptualdiff.
package compare

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"
)

const (
	// DiffDirName is the directory under the results root that receives
	// difference images. It is never walked.
	DiffDirName = "_diffs"

	// DefaultTimeout bounds a single perceptualdiff invocation.
	DefaultTimeout = 2 * time.Minute
)

// Transform maps the slash separated path of a results directory, relative
// to the results root ("." for the root itself), to the matching directory
// relative to the golden root.
type Transform func(dir string) string

// Identity is the default Transform.
func Identity(dir string) string {
	return dir
}

// Comparator runs perceptualdiff over result trees.
type Comparator struct {
	logger   zerolog.Logger
	diffPath string
	timeout  time.Duration
}

// Option is a function that configures a Comparator.
type Option func(*Comparator)

// WithTimeout sets the per-image timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Comparator) {
		c.timeout = d
	}
}

// New creates a Comparator using the perceptualdiff binary at diffPath.
// An empty diffPath disables comparison.
func New(logger zerolog.Logger, diffPath string, opts ...Option) *Comparator {
	c := &Comparator{
		logger:   logger.With().Str("component", "compare").Logger(),
		diffPath: diffPath,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether a perceptualdiff binary is configured.
func (c *Comparator) Enabled() bool {
	return c.diffPath != ""
}

// BuildArgs builds the perceptualdiff arguments comparing actual to golden.
func BuildArgs(golden, actual, diff string) []string {
	args := []string{"--verbose"}
	if diff != "" {
		args = append(args, "--output", diff)
	}
	return append(args, golden, actual)
}

// CompareAll compares every .png below resultsRoot against goldenRoot and
// returns the diagnostics of mismatching images keyed by their slash
// separated path relative to resultsRoot. Images without a golden
// counterpart are logged and skipped. Only failures to walk the tree are
// returned as errors.
func (c *Comparator) CompareAll(ctx context.Context, resultsRoot, goldenRoot string, transform Transform) (map[string]string, error) {
	failed := make(map[string]string)
	if !c.Enabled() {
		c.logger.Warn().Msg("Missing perceptual diff, skipping result analysis")
		return failed, nil
	}
	if transform == nil {
		transform = Identity
	}

	diffRoot := filepath.Join(resultsRoot, DiffDirName)
	if err := os.RemoveAll(diffRoot); err != nil {
		return nil, fmt.Errorf("failed to clear diff directory: %w", err)
	}
	if err := os.MkdirAll(diffRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create diff directory: %w", err)
	}

	err := filepath.WalkDir(resultsRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == DiffDirName && p != resultsRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), ".png") {
			return nil
		}

		rel, err := filepath.Rel(resultsRoot, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		dir := path.Dir(rel)

		golden := filepath.Join(goldenRoot, filepath.FromSlash(transform(dir)), d.Name())
		if info, err := os.Stat(golden); err != nil || !info.Mode().IsRegular() {
			c.logger.Warn().Str("golden", golden).Str("actual", p).Msg("Missing golden image")
			return nil
		}

		diff := filepath.Join(diffRoot, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(diff), 0o755); err != nil {
			return fmt.Errorf("failed to create diff directory: %w", err)
		}

		if match, message := c.CompareImages(ctx, golden, p, diff); !match {
			c.logger.Warn().Str("actual", p).Msg("Generated image does not match golden")
			failed[rel] = message
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", resultsRoot, err)
	}

	return failed, nil
}

// CompareImages runs perceptualdiff on a single pair and returns whether the
// images match and the tool's diagnostic output.
func (c *Comparator) CompareImages(ctx context.Context, golden, actual, diff string) (bool, string) {
	if !c.Enabled() {
		return true, ""
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := BuildArgs(golden, actual, diff)
	c.logger.Debug().
		Str("command", shellescape.QuoteCommand(append([]string{c.diffPath}, args...))).
		Msg("Comparing images")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.diffPath, args...)
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return true, stderr.String()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return false, stderr.String()
	}
	return false, fmt.Sprintf("failed to run perceptualdiff: %v", err)
}
