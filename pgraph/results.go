package pgraph

import (
	"path"
	"strings"
	"time"

	"github.com/mborgerson/xemu-test/model"
)

// Status is the state of one guest test for one renderer.
type Status int

const (
	// StatusIncomplete means the test started but never completed.
	StatusIncomplete Status = iota
	// StatusCompleted means the test ran and awaits comparison.
	StatusCompleted
	// StatusDiffered means the output does not match the golden images.
	StatusDiffered
	// StatusMatched means the output matches the golden images.
	StatusMatched
)

func (s Status) String() string {
	switch s {
	case StatusIncomplete:
		return "INCOMPLETE"
	case StatusCompleted:
		return "COMPLETED"
	case StatusDiffered:
		return "DIFFERED"
	case StatusMatched:
		return "MATCHED"
	}
	return "UNKNOWN"
}

// Key identifies a result across renderers.
type Key struct {
	Renderer string
	ID       TestID
}

// SubtestName is the name of the reported subtest.
func (k Key) SubtestName() string {
	return k.Renderer + "::" + k.ID.Suite + "::" + k.ID.Name
}

// KeyFromImagePath maps an image path relative to the suite results root,
// "renderer/iteration_N/Suite/Test.png", to the key of the test that
// produced it.
func KeyFromImagePath(rel string) (Key, bool) {
	parts := strings.Split(path.Clean(rel), "/")
	if len(parts) < 4 {
		return Key{}, false
	}
	name := parts[3]
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[:i]
	}
	return Key{Renderer: parts[0], ID: TestID{Suite: parts[2], Name: name}}, true
}

// StripRendererIteration maps a results directory to its golden directory
// by dropping the renderer and iteration components.
func StripRendererIteration(dir string) string {
	parts := strings.Split(dir, "/")
	if len(parts) <= 2 {
		return "."
	}
	return path.Join(parts[2:]...)
}

// Result is the outcome of one guest test for one renderer.
type Result struct {
	Status   Status
	Message  string
	Duration time.Duration
}

// Ledger collects results across iterations and renderers. Results are
// kept in the order their key was first recorded.
type Ledger struct {
	order   []Key
	results map[Key]*Result
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{results: map[Key]*Result{}}
}

// Record stores r under k, replacing any earlier result.
func (l *Ledger) Record(k Key, r Result) {
	if _, ok := l.results[k]; !ok {
		l.order = append(l.order, k)
	}
	l.results[k] = &r
}

// Get returns the result stored under k.
func (l *Ledger) Get(k Key) (Result, bool) {
	r, ok := l.results[k]
	if !ok {
		return Result{}, false
	}
	return *r, true
}

// Len returns the number of recorded results.
func (l *Ledger) Len() int {
	return len(l.order)
}

// Keys returns the recorded keys in order.
func (l *Ledger) Keys() []Key {
	return append([]Key(nil), l.order...)
}

// ApplyComparisons marks the tests owning a mismatching image as differed.
// When comparison was performed, every other completed test is matched;
// otherwise they stay completed and are reported unverified.
func (l *Ledger) ApplyComparisons(failed map[string]string, compared bool) {
	for rel, message := range failed {
		k, ok := KeyFromImagePath(rel)
		if !ok {
			continue
		}
		if r, ok := l.results[k]; ok {
			r.Status = StatusDiffered
			r.Message = message
		}
	}
	if !compared {
		return
	}
	for _, r := range l.results {
		if r.Status == StatusCompleted {
			r.Status = StatusMatched
		}
	}
}

// Report adds one subtest per recorded result to tr and returns the number
// of failed subtests.
func (l *Ledger) Report(tr *model.TestResult) int {
	failed := 0
	for _, k := range l.order {
		r := l.results[k]

		var status model.TestStatus
		switch r.Status {
		case StatusMatched:
			status = model.TestStatusPassed
		case StatusCompleted:
			status = model.TestStatusUnverified
		default:
			status = model.TestStatusFailed
			failed++
		}

		message := r.Message
		if status == model.TestStatusPassed {
			message = ""
		}
		tr.AddSubtest(k.SubtestName(), status, message, r.Duration)
	}
	return failed
}
