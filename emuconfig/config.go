// Package emuconfig builds the xemu.toml handed to the emulator. A Config is
// an ordered list of overlays; later overlays win key by key.
package emuconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the name of the config file in the working directory.
const FileName = "xemu.toml"

// Overlay is a partial TOML document. Nested tables are maps.
type Overlay map[string]any

// Config is an immutable stack of overlays.
type Config struct {
	overlays []Overlay
}

// New returns a Config made of the given overlays, applied in order.
func New(overlays ...Overlay) Config {
	return Config{overlays: append([]Overlay(nil), overlays...)}
}

// With returns a new Config with o applied on top. c is not modified.
func (c Config) With(o Overlay) Config {
	overlays := make([]Overlay, 0, len(c.overlays)+1)
	overlays = append(overlays, c.overlays...)
	return Config{overlays: append(overlays, o)}
}

// Resolve merges all overlays into a single document.
func (c Config) Resolve() map[string]any {
	out := make(map[string]any)
	for _, o := range c.overlays {
		merge(out, o)
	}
	return out
}

// Marshal renders the resolved document as TOML.
func (c Config) Marshal() ([]byte, error) {
	b, err := toml.Marshal(c.Resolve())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal emulator config: %w", err)
	}
	return b, nil
}

// WriteFile writes the resolved document to path.
func (c Config) WriteFile(path string) error {
	b, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write emulator config: %w", err)
	}
	return nil
}

func merge(dst map[string]any, src map[string]any) {
	for k, v := range src {
		table, ok := asTable(v)
		if !ok {
			dst[k] = v
			continue
		}
		existing, ok := asTable(dst[k])
		if !ok {
			existing = make(map[string]any)
		} else {
			existing = clone(existing)
		}
		merge(existing, table)
		dst[k] = existing
	}
}

func asTable(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case Overlay:
		return map[string]any(t), true
	case map[string]any:
		return t, true
	}
	return nil, false
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Defaults disables everything that would get in the way of an unattended run.
func Defaults() Overlay {
	return Overlay{
		"general": Overlay{
			"show_welcome":   false,
			"skip_boot_anim": true,
			"updates": Overlay{
				"check": false,
			},
		},
		"display": Overlay{
			"ui": Overlay{
				"show_menubar": false,
			},
		},
		"net": Overlay{
			"enable": false,
		},
		"sys": Overlay{
			"mem_limit": "64",
		},
	}
}

// Files points the emulator at its firmware and hard disk image.
func Files(bootROM, flashROM, hdd string) Overlay {
	return Overlay{
		"sys": Overlay{
			"files": Overlay{
				"bootrom_path":  bootROM,
				"flashrom_path": flashROM,
				"hdd_path":      hdd,
			},
		},
	}
}

// Renderer selects the graphics backend, e.g. "opengl" or "vulkan".
func Renderer(name string) Overlay {
	return Overlay{
		"display": Overlay{
			"renderer": strings.ToUpper(name),
		},
	}
}
