package cli

// This file contains the optional YAML configuration file. Every field can
// also be given on the command line; flags win over the file.

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mborgerson/xemu-test/env"
)

// Config is the harness configuration.
type Config struct {
	Private        string   `yaml:"private"`
	Results        string   `yaml:"results"`
	Data           string   `yaml:"data"`
	Xemu           string   `yaml:"xemu"`
	Ffmpeg         string   `yaml:"ffmpeg"`
	PerceptualDiff string   `yaml:"perceptualdiff"`
	Python         string   `yaml:"python"`
	NoFullscreen   bool     `yaml:"no_fullscreen"`
	WorkDir        string   `yaml:"work_dir"`
	Tests          []string `yaml:"tests"`
	Renderers      []string `yaml:"renderers"`
	MaxIterations  int      `yaml:"max_iterations"`
}

// LoadConfig reads a YAML configuration file. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// configFromContext loads the --config file, if any, and applies the flags
// and positional arguments that were set over it.
func configFromContext(ctx *cli.Context) (Config, error) {
	var cfg Config
	if path := ctx.String("config"); path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}

	if ctx.NArg() > 0 {
		cfg.Private = ctx.Args().Get(0)
	}
	if ctx.NArg() > 1 {
		cfg.Results = ctx.Args().Get(1)
	}
	if ctx.NArg() > 2 {
		return Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(ctx.Args().Slice()[2:], " "))
	}

	for name, dst := range map[string]*string{
		"data":           &cfg.Data,
		"xemu":           &cfg.Xemu,
		"ffmpeg":         &cfg.Ffmpeg,
		"perceptualdiff": &cfg.PerceptualDiff,
		"python":         &cfg.Python,
		"work-dir":       &cfg.WorkDir,
	} {
		if ctx.IsSet(name) {
			*dst = ctx.String(name)
		}
	}
	if ctx.IsSet("no-fullscreen") {
		cfg.NoFullscreen = ctx.Bool("no-fullscreen")
	}
	if ctx.IsSet("test") {
		cfg.Tests = ctx.StringSlice("test")
	}
	if ctx.IsSet("renderer") {
		cfg.Renderers = ctx.StringSlice("renderer")
	}
	if ctx.IsSet("max-iterations") {
		cfg.MaxIterations = ctx.Int("max-iterations")
	}

	if cfg.Private == "" || cfg.Results == "" {
		return Config{}, fmt.Errorf("PRIVATE and RESULTS are required")
	}
	return cfg, nil
}

// Environment resolves the configuration into the run environment. Paths
// are made absolute; optional tools default to their executable name and
// are turned off with DISABLE.
func (c Config) Environment() (env.Environment, error) {
	private, err := absPath(c.Private)
	if err != nil {
		return env.Environment{}, err
	}

	xemu := env.DefaultXemuPath()
	if c.Xemu != "" {
		if xemu, err = absPath(c.Xemu); err != nil {
			return env.Environment{}, err
		}
	}

	return env.Environment{
		PrivatePath:        private,
		XemuPath:           xemu,
		FfmpegPath:         optionalTool(c.Ffmpeg, "ffmpeg"),
		PerceptualDiffPath: optionalTool(c.PerceptualDiff, "perceptualdiff"),
		DisableFullscreen:  c.NoFullscreen,
	}, nil
}

// ResultsRoot returns the absolute results directory.
func (c Config) ResultsRoot() (string, error) {
	return absPath(c.Results)
}

// DataRoot returns the test data directory, by default the data directory
// next to the executable.
func (c Config) DataRoot() (string, error) {
	if c.Data != "" {
		return absPath(c.Data)
	}
	exe, err := os.Executable()
	if err != nil {
		return absPath("data")
	}
	return filepath.Join(filepath.Dir(exe), "data"), nil
}

// WorkDirectory returns where the emulator config and disk image live, by
// default the current directory.
func (c Config) WorkDirectory() (string, error) {
	if c.WorkDir != "" {
		return absPath(c.WorkDir)
	}
	return os.Getwd()
}

func optionalTool(value, name string) string {
	switch value {
	case env.Disabled:
		return ""
	case "":
		return env.ToolName(name)
	}
	return expandUser(value)
}

func absPath(p string) (string, error) {
	abs, err := filepath.Abs(expandUser(p))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", p, err)
	}
	return abs, nil
}

func expandUser(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}
