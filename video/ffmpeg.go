package video

// ffmpeg.go records the screen while the emulator runs. Recording is best
// effort: the process runner logs and ignores every error returned here.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"

	"github.com/mborgerson/xemu-test/process"
)

// DefaultStopTimeout bounds how long Stop waits for ffmpeg to finalise the file.
const DefaultStopTimeout = 5 * time.Second

// ErrNoRegion is returned by BuildArgs when the platform needs an explicit
// capture region and none is known.
var ErrNoRegion = errors.New("no capture region")

// Options contains the parameters of an ffmpeg screen capture.
type Options struct {
	GOOS    string        // Target platform, selects the grab device
	Display string        // X11 display (Linux only, default :0)
	Region  *process.Rect // Screen region (required on Windows)
	Output  string        // Output video file
}

// BuildArgs builds the ffmpeg arguments for a screen capture.
func BuildArgs(opts Options) ([]string, error) {
	args := []string{"-loglevel", "error"}

	if opts.GOOS == "windows" {
		if opts.Region == nil {
			return nil, ErrNoRegion
		}
		args = append(args,
			"-framerate", "60",
			"-video_size", fmt.Sprintf("%dx%d", opts.Region.W, opts.Region.H),
			"-f", "gdigrab",
			"-offset_x", fmt.Sprintf("%d", opts.Region.X),
			"-offset_y", fmt.Sprintf("%d", opts.Region.Y),
			"-i", "desktop",
			"-c:v", "libx264",
			"-pix_fmt", "yuv420p",
		)
	} else {
		display := opts.Display
		if display == "" {
			display = ":0"
		}
		args = append(args,
			"-video_size", "640x480",
			"-f", "x11grab",
			"-i", display,
			"-c:v", "libx264",
			"-preset", "fast",
			"-profile:v", "baseline",
			"-pix_fmt", "yuv420p",
		)
	}

	return append(args, opts.Output, "-y"), nil
}

// Recorder drives one ffmpeg process per launch.
// It implements process.Recorder.
type Recorder struct {
	logger      zerolog.Logger
	ffmpegPath  string
	output      string
	goos        string
	display     string
	stopTimeout time.Duration

	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan error
}

// Option is a function that configures a Recorder.
type Option func(*Recorder)

// WithPlatform overrides the platform used to pick the grab device.
func WithPlatform(goos string) Option {
	return func(r *Recorder) {
		r.goos = goos
	}
}

// WithDisplay overrides the X11 display to capture.
func WithDisplay(display string) Option {
	return func(r *Recorder) {
		r.display = display
	}
}

// WithStopTimeout sets how long Stop waits before killing ffmpeg.
func WithStopTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		r.stopTimeout = d
	}
}

// New creates a Recorder writing to output.
func New(logger zerolog.Logger, ffmpegPath, output string, opts ...Option) *Recorder {
	r := &Recorder{
		logger:      logger.With().Str("component", "video").Logger(),
		ffmpegPath:  ffmpegPath,
		output:      output,
		goos:        runtime.GOOS,
		display:     os.Getenv("DISPLAY"),
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Output returns the path of the video file.
func (r *Recorder) Output() string {
	return r.output
}

// Start launches ffmpeg. On Windows the capture is skipped when region is nil.
func (r *Recorder) Start(_ context.Context, region *process.Rect) error {
	if r.cmd != nil {
		return fmt.Errorf("recorder already running")
	}

	args, err := BuildArgs(Options{
		GOOS:    r.goos,
		Display: r.display,
		Region:  region,
		Output:  r.output,
	})
	if errors.Is(err, ErrNoRegion) {
		r.logger.Info().Msg("Video capture disabled because the emulator window could not be found")
		return nil
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(r.output), 0o755); err != nil {
		return fmt.Errorf("failed to create capture directory: %w", err)
	}

	cmd := exec.Command(r.ffmpegPath, args...)
	cmd.Stdout = r.logger
	cmd.Stderr = r.logger
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stdin: %w", err)
	}

	r.logger.Info().
		Str("output", r.output).
		Str("command", shellescape.QuoteCommand(append([]string{r.ffmpegPath}, args...))).
		Msg("Launching ffmpeg")

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	r.cmd = cmd
	r.stdin = stdin
	r.done = make(chan error, 1)
	go func() {
		r.done <- cmd.Wait()
	}()
	return nil
}

// Stop asks ffmpeg to quit and waits up to the stop timeout for it to
// finish writing, killing it otherwise. Stop is a no-op when not recording.
func (r *Recorder) Stop() error {
	if r.cmd == nil {
		return nil
	}
	defer func() {
		r.cmd = nil
		r.stdin = nil
		r.done = nil
	}()

	r.logger.Info().Msg("Shutting down ffmpeg")
	if _, err := io.WriteString(r.stdin, "q\n"); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to send quit to ffmpeg")
	}
	_ = r.stdin.Close()

	timer := time.NewTimer(r.stopTimeout)
	defer timer.Stop()

	select {
	case err := <-r.done:
		if err != nil {
			return fmt.Errorf("ffmpeg exited with error: %w", err)
		}
		return nil
	case <-timer.C:
		if err := r.cmd.Process.Kill(); err != nil {
			r.logger.Debug().Err(err).Msg("Kill returned an error")
		}
		<-r.done
		return fmt.Errorf("ffmpeg did not exit within %s", r.stopTimeout)
	}
}
