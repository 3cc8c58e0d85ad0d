// Package env holds the run configuration shared by every test case.
package env

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Disabled is accepted in place of an optional tool path to turn the tool off.
const Disabled = "DISABLE"

// ErrMissingFirmware is returned by Validate when a private firmware blob is absent.
var ErrMissingFirmware = errors.New("missing firmware")

// Environment encapsulates the information needed to run the tests.
// It is built once at startup and passed by value afterwards.
type Environment struct {
	// Directory holding bios.bin and mcpx.bin
	PrivatePath string
	// Emulator binary
	XemuPath string
	// ffmpeg binary, empty when video capture is disabled
	FfmpegPath string
	// perceptualdiff binary, empty when image comparison is disabled
	PerceptualDiffPath string
	// Run the emulator windowed instead of fullscreen
	DisableFullscreen bool
}

// VideoCaptureEnabled reports whether runs should be recorded.
func (e Environment) VideoCaptureEnabled() bool {
	return e.FfmpegPath != ""
}

// DiffEnabled reports whether produced images can be compared.
func (e Environment) DiffEnabled() bool {
	return e.PerceptualDiffPath != ""
}

// FlashPath returns the path of the flash ROM.
func (e Environment) FlashPath() string {
	return filepath.Join(e.PrivatePath, "bios.bin")
}

// BootROMPath returns the path of the MCPX boot ROM.
func (e Environment) BootROMPath() string {
	return filepath.Join(e.PrivatePath, "mcpx.bin")
}

// Validate checks that the private firmware files exist.
func (e Environment) Validate() error {
	for _, p := range []string{e.FlashPath(), e.BootROMPath()} {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrMissingFirmware, p)
		}
		if info.IsDir() {
			return fmt.Errorf("%w: %s is a directory", ErrMissingFirmware, p)
		}
	}
	return nil
}

// DefaultXemuPath returns the emulator binary used when none is configured.
func DefaultXemuPath() string {
	if runtime.GOOS == "windows" {
		if cwd, err := os.Getwd(); err == nil {
			return filepath.Join(cwd, "xemu.exe")
		}
		return "xemu.exe"
	}
	return "xemu"
}

// ToolName returns the platform specific executable name of a tool.
func ToolName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}
