//go:build !windows

package process

import "github.com/rs/zerolog"

// NewWindowLocator returns the window locator of the platform. Only Windows
// captures a window region; elsewhere the recorder grabs the display.
func NewWindowLocator(zerolog.Logger) WindowLocator {
	return NoopWindowLocator{}
}
