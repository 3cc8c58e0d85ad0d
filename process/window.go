package process

import (
	"context"
	"regexp"
)

// Rect is a screen region in pixels.
type Rect struct {
	X, Y int
	W, H int
}

// WindowLocator finds the on-screen client area of a process window, so a
// recorder can capture just that region.
type WindowLocator interface {
	// Locate returns nil without error when the platform has no window
	// automation.
	Locate(ctx context.Context, pid int) (*Rect, error)
}

// NoopWindowLocator never finds a window. Recorders fall back to their
// default capture region.
type NoopWindowLocator struct{}

func (NoopWindowLocator) Locate(context.Context, int) (*Rect, error) {
	return nil, nil
}

// XemuWindowTitle matches the title of the emulator main window.
var XemuWindowTitle = regexp.MustCompile(`^xemu \| v.+`)

const (
	// CaptureWidth and CaptureHeight are the client area size the emulator
	// window is resized to before it is recorded.
	CaptureWidth  = 640
	CaptureHeight = 480
)

// OuterSize returns the window size whose client area is width x height,
// keeping the decorations of a window currently measuring window with
// client area client.
func OuterSize(client, window Rect, width, height int) (int, int) {
	return width + (window.W - client.W), height + (window.H - client.H)
}
