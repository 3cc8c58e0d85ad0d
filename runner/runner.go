// Package runner executes the selected tests one after the other and
// summarises their outcome.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mborgerson/xemu-test/harness"
	"github.com/mborgerson/xemu-test/model"
)

// Runner executes tests sequentially.
type Runner struct {
	logger  zerolog.Logger
	tests   []harness.Test
	grouper harness.Grouper
}

// Option is a function that configures a Runner.
type Option func(*Runner)

// WithGrouper folds each test into a log group.
func WithGrouper(g harness.Grouper) Option {
	return func(r *Runner) {
		r.grouper = g
	}
}

// New creates a Runner for tests.
func New(logger zerolog.Logger, tests []harness.Test, opts ...Option) *Runner {
	r := &Runner{
		logger:  logger.With().Str("component", "runner").Logger(),
		tests:   tests,
		grouper: harness.NoGroups{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every test. A failing test never stops the run; once ctx is
// done the remaining tests are reported failed without running.
func (r *Runner) Run(ctx context.Context) Summary {
	start := time.Now()
	summary := Summary{}

	for i, test := range r.tests {
		name := test.Name()

		if err := ctx.Err(); err != nil {
			res := model.NewTestResult(name)
			res.Fail(fmt.Sprintf("not run: %v", err), 0)
			summary.Results = append(summary.Results, *res)
			continue
		}

		r.logger.Info().Int("index", i).Str("test", name).Msg("Running test")
		_ = r.grouper.Group(fmt.Sprintf("Test %d - %s", i, name), func() error {
			res, err := test.Run(ctx)
			if res == nil {
				res = model.NewTestResult(name)
				res.Fail("no result", 0)
			}
			if err != nil {
				r.logger.Error().Err(err).Int("index", i).Str("test", name).Msg("Test setup failed")
			} else if res.Status == model.TestStatusFailed {
				r.logger.Error().Int("index", i).Str("test", name).Str("message", res.Message).Msg("Test failed")
			} else {
				r.logger.Info().Int("index", i).Str("test", name).Dur("duration", res.Duration).Msg("Test passed")
			}
			summary.Results = append(summary.Results, *res)
			return err
		})
	}

	summary.Duration = time.Since(start)
	return summary
}
