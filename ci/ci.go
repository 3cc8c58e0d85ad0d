// Package ci improves the log output of runs inside GitHub Actions: log
// groups, workflow annotations and the job summary page. Outside of
// Actions every helper is a no-op.
package ci

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	envActions = "GITHUB_ACTIONS"
	envSummary = "GITHUB_STEP_SUMMARY"
)

// Level is the severity of an annotation.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelNotice  Level = "notice"
)

// Annotation carries the optional location of an annotation.
type Annotation struct {
	File    string
	Line    int
	EndLine int
	Title   string
}

// Reporter writes workflow commands to the job log.
type Reporter struct {
	out         io.Writer
	enabled     bool
	summaryPath string
}

// New creates a Reporter writing to out and reading its environment through getenv.
func New(out io.Writer, getenv func(string) string) *Reporter {
	return &Reporter{
		out:         out,
		enabled:     getenv(envActions) == "true",
		summaryPath: getenv(envSummary),
	}
}

// FromEnv creates a Reporter for the current process.
func FromEnv() *Reporter {
	return New(os.Stdout, os.Getenv)
}

// Enabled reports whether the process runs inside GitHub Actions.
func (r *Reporter) Enabled() bool {
	return r.enabled
}

// Group runs fn inside a collapsible log group.
func (r *Reporter) Group(title string, fn func() error) error {
	if r.enabled {
		fmt.Fprintf(r.out, "::group::%s\n", escapeData(title))
		defer fmt.Fprintln(r.out, "::endgroup::")
	}
	return fn()
}

// Annotate emits an annotation shown on the workflow summary.
func (r *Reporter) Annotate(level Level, message string, a Annotation) {
	if !r.enabled {
		return
	}

	var params []string
	if a.File != "" {
		params = append(params, "file="+escapeProperty(a.File))
	}
	if a.Line > 0 {
		params = append(params, fmt.Sprintf("line=%d", a.Line))
	}
	if a.EndLine > 0 {
		params = append(params, fmt.Sprintf("endLine=%d", a.EndLine))
	}
	if a.Title != "" {
		params = append(params, "title="+escapeProperty(a.Title))
	}

	if len(params) > 0 {
		fmt.Fprintf(r.out, "::%s %s::%s\n", level, strings.Join(params, ","), escapeData(message))
		return
	}
	fmt.Fprintf(r.out, "::%s::%s\n", level, escapeData(message))
}

// Error emits an error annotation.
func (r *Reporter) Error(message, title string) {
	r.Annotate(LevelError, message, Annotation{Title: title})
}

// Warning emits a warning annotation.
func (r *Reporter) Warning(message, title string) {
	r.Annotate(LevelWarning, message, Annotation{Title: title})
}

// Notice emits a notice annotation.
func (r *Reporter) Notice(message, title string) {
	r.Annotate(LevelNotice, message, Annotation{Title: title})
}

// WriteSummary appends s to the job summary file. Nothing is written when
// the summary file is not configured.
func (r *Reporter) WriteSummary(s *JobSummary) error {
	if r.summaryPath == "" {
		return nil
	}
	f, err := os.OpenFile(r.summaryPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open job summary: %w", err)
	}
	if _, err := io.WriteString(f, s.String()+"\n"); err != nil {
		f.Close()
		return fmt.Errorf("failed to write job summary: %w", err)
	}
	return f.Close()
}

// Hook returns a zerolog hook turning warnings and errors into annotations.
func (r *Reporter) Hook(title string) zerolog.Hook {
	return AnnotationHook{reporter: r, title: title}
}

// AnnotationHook emits an annotation for every warning or error logged.
type AnnotationHook struct {
	reporter *Reporter
	title    string
}

// Run implements zerolog.Hook.
func (h AnnotationHook) Run(_ *zerolog.Event, level zerolog.Level, message string) {
	if message == "" {
		return
	}
	switch {
	case level >= zerolog.ErrorLevel && level <= zerolog.PanicLevel:
		h.reporter.Error(message, h.title)
	case level == zerolog.WarnLevel:
		h.reporter.Warning(message, h.title)
	}
}

func escapeData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	return strings.ReplaceAll(s, "\n", "%0A")
}

func escapeProperty(s string) string {
	s = escapeData(s)
	s = strings.ReplaceAll(s, ":", "%3A")
	return strings.ReplaceAll(s, ",", "%2C")
}
