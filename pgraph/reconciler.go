package pgraph

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Executor runs one iteration of the guest suite with the given tests
// skipped and returns the path of the progress log it produced.
type Executor interface {
	RunIteration(ctx context.Context, renderer string, iteration int, skip []TestID) (string, error)
}

// Reconciler re-runs the guest suite until an iteration makes no progress,
// skipping every test seen in an earlier iteration. A test that takes the
// emulator down is marked incomplete and skipped from then on.
type Reconciler struct {
	logger        zerolog.Logger
	executor      Executor
	parser        *Parser
	maxIterations int
}

// ReconcilerOption is a function that configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithMaxIterations bounds the number of iterations per renderer. Zero
// means no bound.
func WithMaxIterations(n int) ReconcilerOption {
	return func(r *Reconciler) {
		r.maxIterations = n
	}
}

// NewReconciler creates a Reconciler driving executor.
func NewReconciler(logger zerolog.Logger, executor Executor, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		logger:   logger.With().Str("component", "pgraph").Logger(),
		executor: executor,
		parser:   NewParser(logger),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile runs iterations for renderer, recording their outcome in ledger,
// and returns the number of iterations that ran.
func (r *Reconciler) Reconcile(ctx context.Context, renderer string, ledger *Ledger) (int, error) {
	var seen []TestID

	for iteration := 0; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return iteration, err
		}
		if r.maxIterations > 0 && iteration >= r.maxIterations {
			r.logger.Warn().
				Str("renderer", renderer).
				Int("iterations", iteration).
				Msg("Iteration limit reached, results are partial")
			return iteration, nil
		}

		logPath, err := r.executor.RunIteration(ctx, renderer, iteration, seen)
		if err != nil {
			return iteration, fmt.Errorf("iteration %d failed: %w", iteration, err)
		}

		progress, err := r.parser.ParseFile(logPath)
		if err != nil {
			return iteration, fmt.Errorf("iteration %d: %w", iteration, err)
		}

		for _, c := range progress.Completed {
			ledger.Record(Key{Renderer: renderer, ID: c.ID}, Result{
				Status:   StatusCompleted,
				Duration: c.Duration,
			})
			seen = append(seen, c.ID)
		}
		for _, id := range progress.Incomplete {
			ledger.Record(Key{Renderer: renderer, ID: id}, Result{
				Status:  StatusIncomplete,
				Message: "Test did not complete",
			})
			seen = append(seen, id)
		}

		r.logger.Info().
			Str("renderer", renderer).
			Int("iteration", iteration).
			Int("completed", len(progress.Completed)).
			Int("incomplete", len(progress.Incomplete)).
			Msg("Iteration finished")

		if progress.Empty() {
			return iteration + 1, nil
		}
	}
}
