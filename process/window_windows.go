//go:build windows

package process

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/windows"
)

const (
	// DefaultWindowTimeout bounds the wait for the emulator window to appear.
	DefaultWindowTimeout = 10 * time.Second

	windowPollInterval = 100 * time.Millisecond
)

var (
	user32                   = windows.NewLazySystemDLL("user32.dll")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procGetClientRect        = user32.NewProc("GetClientRect")
	procGetWindowRect        = user32.NewProc("GetWindowRect")
	procClientToScreen       = user32.NewProc("ClientToScreen")
	procMoveWindow           = user32.NewProc("MoveWindow")
)

// EnumWindows callbacks are never released, so a single one serves every
// search. searchMu guards the search it reports to.
var (
	enumOnce     sync.Once
	enumCallback uintptr
	searchMu     sync.Mutex
	search       *windowSearch
)

type windowSearch struct {
	pid   uint32
	title *regexp.Regexp
	found windows.HWND
}

func enumWindowsProc(hwnd windows.HWND, _ uintptr) uintptr {
	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err != nil || pid != search.pid {
		return 1
	}
	if !windows.IsWindowVisible(hwnd) || !search.title.MatchString(windowText(hwnd)) {
		return 1
	}
	search.found = hwnd
	return 0
}

// Win32WindowLocator finds the emulator window of a process, resizes its
// client area to the capture size and returns the client area in screen
// coordinates.
type Win32WindowLocator struct {
	logger  zerolog.Logger
	title   *regexp.Regexp
	width   int
	height  int
	timeout time.Duration
}

// NewWindowLocator returns the window locator of the platform.
func NewWindowLocator(logger zerolog.Logger) WindowLocator {
	return &Win32WindowLocator{
		logger:  logger.With().Str("component", "window").Logger(),
		title:   XemuWindowTitle,
		width:   CaptureWidth,
		height:  CaptureHeight,
		timeout: DefaultWindowTimeout,
	}
}

func (l *Win32WindowLocator) Locate(ctx context.Context, pid int) (*Rect, error) {
	hwnd, err := l.find(ctx, uint32(pid))
	if err != nil {
		return nil, err
	}

	client, err := clientRect(hwnd)
	if err != nil {
		return nil, err
	}
	window, err := windowRect(hwnd)
	if err != nil {
		return nil, err
	}

	w, h := OuterSize(client, window, l.width, l.height)
	if r, _, err := procMoveWindow.Call(uintptr(hwnd), 0, 0, uintptr(w), uintptr(h), 1); r == 0 {
		return nil, fmt.Errorf("failed to move window: %w", err)
	}

	client, err = clientRect(hwnd)
	if err != nil {
		return nil, err
	}
	origin := struct{ X, Y int32 }{}
	if r, _, err := procClientToScreen.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&origin))); r == 0 {
		return nil, fmt.Errorf("failed to map client area to screen: %w", err)
	}

	region := &Rect{X: int(origin.X), Y: int(origin.Y), W: client.W, H: client.H}
	l.logger.Info().
		Int("x", region.X).
		Int("y", region.Y).
		Int("w", region.W).
		Int("h", region.H).
		Msg("xemu window located")
	return region, nil
}

// find polls until a visible window of pid with a matching title exists.
func (l *Win32WindowLocator) find(ctx context.Context, pid uint32) (windows.HWND, error) {
	enumOnce.Do(func() {
		enumCallback = windows.NewCallback(enumWindowsProc)
	})

	deadline := time.NewTimer(l.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(windowPollInterval)
	defer ticker.Stop()

	for {
		if hwnd := enumerate(pid, l.title); hwnd != 0 {
			return hwnd, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-deadline.C:
			return 0, fmt.Errorf("no window matching %q for pid %d after %s", l.title, pid, l.timeout)
		case <-ticker.C:
		}
	}
}

func enumerate(pid uint32, title *regexp.Regexp) windows.HWND {
	searchMu.Lock()
	defer searchMu.Unlock()

	search = &windowSearch{pid: pid, title: title}
	defer func() { search = nil }()

	// EnumWindows reports an error when the callback stops the enumeration.
	_ = windows.EnumWindows(enumCallback, nil)
	return search.found
}

func windowText(hwnd windows.HWND) string {
	n, _, _ := procGetWindowTextLengthW.Call(uintptr(hwnd))
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf)
}

func clientRect(hwnd windows.HWND) (Rect, error) {
	return rectOf(procGetClientRect, hwnd)
}

func windowRect(hwnd windows.HWND) (Rect, error) {
	return rectOf(procGetWindowRect, hwnd)
}

func rectOf(proc *windows.LazyProc, hwnd windows.HWND) (Rect, error) {
	var r windows.Rect
	if ok, _, err := proc.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&r))); ok == 0 {
		if errors.Is(err, windows.ERROR_SUCCESS) {
			err = errors.New("call failed")
		}
		return Rect{}, fmt.Errorf("failed to query %s: %w", proc.Name, err)
	}
	return Rect{
		X: int(r.Left),
		Y: int(r.Top),
		W: int(r.Right - r.Left),
		H: int(r.Bottom - r.Top),
	}, nil
}
