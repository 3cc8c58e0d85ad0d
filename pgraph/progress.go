package pgraph

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ProgressLogName is the progress log written by the guest next to its results.
const ProgressLogName = "pgraph_progress_log.txt"

// closingLine is the last line of a log whose run ended normally.
const closingLine = "Testing completed normally, closing log."

var (
	startingRe  = regexp.MustCompile(`^Starting (?P<suite>.*?)::(?P<test>.*)`)
	completedRe = regexp.MustCompile(`Completed '(?P<test>.*?)' in (?P<duration>.*)`)
)

// ErrUnmatchedSequence is returned when Starting and Completed lines do not pair up.
var ErrUnmatchedSequence = errors.New("unmatched starting/completed sequence")

// TestID identifies one test inside the guest suite.
type TestID struct {
	Suite string
	Name  string
}

func (id TestID) String() string {
	return id.Suite + "::" + id.Name
}

// Completion is a test that both started and completed.
type Completion struct {
	ID TestID
	// Duration as written by the guest
	RawDuration string
	// Duration parsed from RawDuration, zero when it could not be parsed
	Duration time.Duration
}

// Progress is what one iteration of the guest suite got through.
type Progress struct {
	Completed  []Completion
	Incomplete []TestID
}

// Empty reports whether the iteration ran nothing at all.
func (p Progress) Empty() bool {
	return len(p.Completed) == 0 && len(p.Incomplete) == 0
}

// Parser reads progress logs.
type Parser struct {
	logger zerolog.Logger
}

// NewParser creates a Parser.
func NewParser(logger zerolog.Logger) *Parser {
	return &Parser{logger: logger.With().Str("component", "pgraph").Logger()}
}

// ParseFile parses the progress log at path.
func (p *Parser) ParseFile(path string) (Progress, error) {
	f, err := os.Open(path)
	if err != nil {
		return Progress{}, fmt.Errorf("failed to open progress log: %w", err)
	}
	defer f.Close()
	return p.Parse(f)
}

// Parse parses a progress log. Every Starting line must be followed by the
// Completed line of the same test before the next Starting line; a
// trailing Starting line marks its test as incomplete.
func (p *Parser) Parse(reader io.Reader) (Progress, error) {
	var progress Progress
	var started *TestID

	r := bufio.NewReader(reader)
	for {
		raw, readErr := r.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return Progress{}, fmt.Errorf("error reading progress log: %w", readErr)
		}
		if readErr != nil && raw == "" {
			break
		}

		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := startingRe.FindStringSubmatch(line); m != nil {
			if started != nil {
				return Progress{}, fmt.Errorf("%w: %s started while %s was running", ErrUnmatchedSequence, m[2], started)
			}
			started = &TestID{Suite: m[1], Name: m[2]}
			continue
		}

		if m := completedRe.FindStringSubmatch(line); m != nil {
			if started == nil || started.Name != m[1] {
				return Progress{}, fmt.Errorf("%w: %s completed without being started", ErrUnmatchedSequence, m[1])
			}
			progress.Completed = append(progress.Completed, Completion{
				ID:          *started,
				RawDuration: m[2],
				Duration:    parseDuration(m[2]),
			})
			started = nil
			continue
		}

		if line == closingLine {
			continue
		}

		p.logger.Warn().Str("line", truncate(line, maxLoggedLine)).Int("length", len(line)).Msg("Unexpected log entry")
	}

	if started != nil {
		p.logger.Warn().Str("test", started.String()).Msg("Test was not completed")
		progress.Incomplete = append(progress.Incomplete, *started)
	}
	return progress, nil
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		return 0
	}
	return d
}

// maxLoggedLine bounds how much of an unexpected line is logged.
const maxLoggedLine = 256

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
