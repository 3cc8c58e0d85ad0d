package disk

// pyfatx.go drives the pyfatx Python package, which implements the FATX
// filesystem used by the emulator's hard disk.

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"
)

const pyfatxScript = `import sys
from pyfatx import Fatx
op, image = sys.argv[1], sys.argv[2]
if op == "create":
    Fatx.create(image, int(sys.argv[3]))
elif op == "format":
    Fatx.format(image)
elif op == "mkdir":
    Fatx(image, drive=sys.argv[3]).mkdir(sys.argv[4])
elif op == "write":
    Fatx(image, drive=sys.argv[3]).write(sys.argv[4], sys.stdin.buffer.read())
else:
    sys.exit("unknown operation " + op)
`

// PyFatx is a Codec backed by the pyfatx Python package.
type PyFatx struct {
	logger zerolog.Logger
	python string
}

// NewPyFatx returns a codec that runs the given Python interpreter.
// An empty interpreter selects python3 (python on Windows).
func NewPyFatx(logger zerolog.Logger, python string) *PyFatx {
	if python == "" {
		python = "python3"
		if runtime.GOOS == "windows" {
			python = "python"
		}
	}
	return &PyFatx{
		logger: logger.With().Str("component", "pyfatx").Logger(),
		python: python,
	}
}

func (p *PyFatx) Create(ctx context.Context, imagePath string, size int64) error {
	return p.script(ctx, nil, "create", imagePath, strconv.FormatInt(size, 10))
}

func (p *PyFatx) Format(ctx context.Context, imagePath string) error {
	return p.script(ctx, nil, "format", imagePath)
}

func (p *PyFatx) Mkdir(ctx context.Context, imagePath, drive, dir string) error {
	return p.script(ctx, nil, "mkdir", imagePath, drive, dir)
}

func (p *PyFatx) Write(ctx context.Context, imagePath, drive, name string, data []byte) error {
	return p.script(ctx, bytes.NewReader(data), "write", imagePath, drive, name)
}

// Extract runs "python -m pyfatx -x" from inside dest.
func (p *PyFatx) Extract(ctx context.Context, imagePath, dest string) error {
	args := []string{"-m", "pyfatx", "-x", imagePath}
	return p.run(ctx, dest, nil, args)
}

func (p *PyFatx) script(ctx context.Context, stdin io.Reader, args ...string) error {
	return p.run(ctx, "", stdin, append([]string{"-c", pyfatxScript}, args...))
}

func (p *PyFatx) run(ctx context.Context, dir string, stdin io.Reader, args []string) error {
	cmd := exec.CommandContext(ctx, p.python, args...)
	cmd.Dir = dir
	cmd.Stdin = stdin

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// The inline script is noise in the log, show the operation only.
	logged := args
	if len(args) > 1 && args[0] == "-c" {
		logged = append([]string{"-c", "<pyfatx>"}, args[2:]...)
	}
	p.logger.Debug().
		Str("command", shellescape.QuoteCommand(append([]string{p.python}, logged...))).
		Str("dir", dir).
		Msg("Running pyfatx")

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pyfatx failed: %w (stderr: %s)", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
