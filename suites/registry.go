// Package suites lists the tests xemutest knows how to run.
package suites

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/mborgerson/xemu-test/env"
	"github.com/mborgerson/xemu-test/harness"
	"github.com/mborgerson/xemu-test/pgraph"
)

// Context carries what a Factory needs to build a test.
type Context struct {
	Logger zerolog.Logger
	Env    env.Environment
	// Root of the test data; each test reads from a subdirectory named after it
	DataRoot string
	// Root of the results; each test writes to a subdirectory named after it
	ResultsRoot string
	Deps        harness.Deps
	Grouper     harness.Grouper
	// Iteration bound of the pgraph sweep per renderer, zero for none
	MaxIterations int
	// Renderers of the pgraph sweep, platform default when empty
	Renderers []string
}

// DataPath returns the test data directory of the named test.
func (c Context) DataPath(name string) string {
	return filepath.Join(c.DataRoot, name)
}

// ResultsPath returns the results directory of the named test.
func (c Context) ResultsPath(name string) string {
	return filepath.Join(c.ResultsRoot, name)
}

// Factory builds a test.
type Factory func(c Context) harness.Test

// Entry is a registered test.
type Entry struct {
	Name string
	New  Factory
}

// Registry holds tests in registration order.
type Registry struct {
	entries []Entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Default returns a Registry with every built-in test.
func Default() *Registry {
	r := NewRegistry()
	r.Register(XBEName, NewXBE)
	r.Register(pgraph.SuiteName, NewPgraph)
	return r
}

// Register adds a test. Registering a name twice replaces the factory.
func (r *Registry) Register(name string, f Factory) {
	for i := range r.entries {
		if r.entries[i].Name == name {
			r.entries[i].New = f
			return
		}
	}
	r.entries = append(r.entries, Entry{Name: name, New: f})
}

// Names returns the registered test names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Select returns the entries matching any of the glob patterns, in
// registration order. No patterns selects everything. A pattern that
// matches nothing is an error.
func (r *Registry) Select(patterns []string) ([]Entry, error) {
	if len(patterns) == 0 {
		return append([]Entry(nil), r.entries...), nil
	}

	selected := make([]bool, len(r.entries))
	for _, p := range patterns {
		matched := false
		for i, e := range r.entries {
			ok, err := path.Match(p, e.Name)
			if err != nil {
				return nil, fmt.Errorf("invalid test pattern %q: %w", p, err)
			}
			if ok {
				selected[i] = true
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("no test matches %q (available: %v)", p, r.Names())
		}
	}

	var out []Entry
	for i, e := range r.entries {
		if selected[i] {
			out = append(out, e)
		}
	}
	return out, nil
}

// NewPgraph builds the nxdk_pgraph_tests sweep.
func NewPgraph(c Context) harness.Test {
	var opts []pgraph.SuiteOption
	if c.Grouper != nil {
		opts = append(opts, pgraph.WithGrouper(c.Grouper))
	}
	return pgraph.NewSuite(c.Logger, pgraph.Options{
		DataPath:      c.DataPath(pgraph.SuiteName),
		ResultsPath:   c.ResultsPath(pgraph.SuiteName),
		Renderers:     c.Renderers,
		MaxIterations: c.MaxIterations,
	}, c.Deps, opts...)
}
