// Package process launches the emulator under test and watches it until it
// exits or its wall-clock budget runs out.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is how often a running process is checked.
const DefaultPollInterval = time.Second

// DefaultWaitDelay bounds how long output is drained after the process
// exited or was killed. Descendants still holding the output open are cut off.
const DefaultWaitDelay = 5 * time.Second

// State is the lifecycle state of a launched process.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateExited
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Command describes a process to launch.
type Command struct {
	Path string
	Args []string
	Dir  string
}

// String renders the command shell-quoted, for logging.
func (c Command) String() string {
	return shellescape.QuoteCommand(append([]string{c.Path}, c.Args...))
}

// Result is the outcome of Launch.
type Result struct {
	State State
	// ExitCode is nil when the process was killed.
	ExitCode *int
	Duration time.Duration
}

// TimedOut reports whether the process had to be killed.
func (r Result) TimedOut() bool {
	return r.State == StateKilled
}

// Succeeded reports whether the process exited on its own with code 0.
func (r Result) Succeeded() bool {
	return r.State == StateExited && r.ExitCode != nil && *r.ExitCode == 0
}

// Recorder captures the process output while it runs. Failures of a
// recorder never fail a launch.
type Recorder interface {
	Start(ctx context.Context, region *Rect) error
	Stop() error
}

// Runner launches one process at a time.
type Runner struct {
	logger       zerolog.Logger
	pollInterval time.Duration
	waitDelay    time.Duration
	recorder     Recorder
	locator      WindowLocator
	state        State
}

// Option is a function that configures a Runner.
type Option func(*Runner)

// WithPollInterval sets how often the process is checked.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) {
		r.pollInterval = d
	}
}

// WithWaitDelay sets how long output is drained once the process is gone.
func WithWaitDelay(d time.Duration) Option {
	return func(r *Runner) {
		r.waitDelay = d
	}
}

// WithRecorder attaches a recorder that brackets every launch.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithWindowLocator sets the locator used to find the capture region.
func WithWindowLocator(l WindowLocator) Option {
	return func(r *Runner) {
		r.locator = l
	}
}

// New creates a Runner.
func New(logger zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		logger:       logger.With().Str("component", "process").Logger(),
		pollInterval: DefaultPollInterval,
		waitDelay:    DefaultWaitDelay,
		locator:      NoopWindowLocator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the state of the last launch.
func (r *Runner) State() State {
	return r.state
}

// Launch starts cmd and blocks until it exits or timeout elapses, in which
// case it is killed. Output of the process goes to stdout. The recorder, if
// any, is started once the process runs and stopped before Launch returns.
//
// An error is only returned when the process could not be started.
func (r *Runner) Launch(ctx context.Context, cmd Command, timeout time.Duration, stdout io.Writer) (Result, error) {
	r.state = StateNotStarted

	c := exec.Command(cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdout = stdout
	c.Stderr = stdout
	c.WaitDelay = r.waitDelay

	r.logger.Info().
		Str("command", cmd.String()).
		Str("dir", cmd.Dir).
		Dur("timeout", timeout).
		Msg("Launching process")

	start := time.Now()
	if err := c.Start(); err != nil {
		return Result{State: r.state}, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	r.state = StateRunning

	done := make(chan error, 1)
	go func() {
		done <- c.Wait()
	}()

	r.startRecorder(ctx, c.Process.Pid)
	defer r.stopRecorder()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			return r.exited(c, err, time.Since(start)), nil
		case <-ctx.Done():
			r.logger.Warn().Err(ctx.Err()).Msg("Launch cancelled. Terminating.")
			return r.kill(c, done, start), nil
		case now := <-ticker.C:
			if now.Sub(start) > timeout {
				r.logger.Warn().Dur("timeout", timeout).Msg("Timeout exceeded. Terminating.")
				return r.kill(c, done, start), nil
			}
		}
	}
}

func (r *Runner) exited(c *exec.Cmd, err error, elapsed time.Duration) Result {
	code := -1
	var exitErr *exec.ExitError
	if c.ProcessState != nil {
		code = c.ProcessState.ExitCode()
	} else if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		r.logger.Warn().Dur("wait_delay", r.waitDelay).Msg("Process output still open after exit, closed it")
	} else if err != nil && !errors.As(err, &exitErr) {
		r.logger.Debug().Err(err).Msg("Wait returned an error")
	}

	r.state = StateExited
	if code != 0 {
		r.logger.Error().Int("exit_code", code).Dur("elapsed", elapsed).Msg("Process exited with non-zero code")
	} else {
		r.logger.Info().Int("exit_code", code).Dur("elapsed", elapsed).Msg("Process exited")
	}
	return Result{State: StateExited, ExitCode: &code, Duration: elapsed}
}

func (r *Runner) kill(c *exec.Cmd, done <-chan error, start time.Time) Result {
	if err := c.Process.Kill(); err != nil {
		r.logger.Debug().Err(err).Msg("Kill returned an error")
	}
	if err := <-done; errors.Is(err, exec.ErrWaitDelay) {
		r.logger.Warn().Dur("wait_delay", r.waitDelay).Msg("Process output still open after kill, closed it")
	}
	r.state = StateKilled
	elapsed := time.Since(start)
	r.logger.Info().Dur("elapsed", elapsed).Msg("Process killed")
	return Result{State: StateKilled, Duration: elapsed}
}

func (r *Runner) startRecorder(ctx context.Context, pid int) {
	if r.recorder == nil {
		return
	}
	region, err := r.locator.Locate(ctx, pid)
	if err != nil {
		r.logger.Warn().Err(err).Int("pid", pid).Msg("Failed to locate process window")
		region = nil
	}
	if err := r.recorder.Start(ctx, region); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to start recorder")
	}
}

func (r *Runner) stopRecorder() {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Stop(); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to stop recorder")
	}
}
