package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

const AppName = "xemutest"

type App struct {
	logger zerolog.Logger
	// console is the human readable log writer on stderr
	console io.Writer
	// stdout receives command output such as the summary table
	stdout io.Writer
	// color reports whether stdout is a terminal
	color bool
	cli   *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339Nano,
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	}

	app := &App{
		logger:  log.Output(console),
		console: console,
		stdout:  os.Stdout,
		color:   term.IsTerminal(int(os.Stdout.Fd())),
		cli: &cli.App{
			Name:      AppName,
			Usage:     "Run the automated xemu test suites",
			ArgsUsage: "PRIVATE RESULTS",
			Description: `Runs every registered test against an xemu binary.

PRIVATE is the directory holding the firmware files bios.bin and mcpx.bin.
RESULTS receives one directory per test, the harness log xemutest.log and
the run history.

The exit status is 0 when no test failed and 1 otherwise.`,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:    "verbose",
					Aliases: []string{"v"},
					Usage:   "Enable verbose (debug) logging",
				},
				&cli.StringFlag{
					Name:    "config",
					Aliases: []string{"c"},
					Usage:   "YAML file with default settings, overridden by flags",
				},
				&cli.StringFlag{
					Name:  "data",
					Usage: "Path to test data (e.g., disc images)",
				},
				&cli.StringFlag{
					Name:  "xemu",
					Usage: "Path to the xemu binary",
				},
				&cli.StringFlag{
					Name:  "ffmpeg",
					Usage: "Path to the ffmpeg binary or DISABLE",
				},
				&cli.StringFlag{
					Name:  "perceptualdiff",
					Usage: "Path to the perceptualdiff binary or DISABLE",
				},
				&cli.StringFlag{
					Name:  "python",
					Usage: "Python interpreter with the pyfatx package installed",
				},
				&cli.BoolFlag{
					Name:  "no-fullscreen",
					Usage: "Force xemu to run in a window",
				},
				&cli.StringFlag{
					Name:  "work-dir",
					Usage: "Directory for xemu.toml and the disk image (default: current directory)",
				},
				&cli.StringSliceFlag{
					Name:    "test",
					Aliases: []string{"t"},
					Usage:   "Only run tests matching this glob, may be repeated",
				},
				&cli.StringSliceFlag{
					Name:  "renderer",
					Usage: "Renderer for the pgraph tests, may be repeated (default: platform dependent)",
				},
				&cli.IntFlag{
					Name:  "max-iterations",
					Usage: "Bound the emulator restarts per renderer of the pgraph tests (0: unbounded)",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Action = app.run
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "tests",
		Usage:  "List the available tests",
		Action: app.tests,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "list",
		Usage:     "List previous runs",
		ArgsUsage: "RESULTS",
		Action:    app.list,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
			&cli.BoolFlag{
				Name:  "failed",
				Usage: "Only show runs with failed tests",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "view",
		Usage:     "View a previous run",
		ArgsUsage: "RESULTS [ID|INDEX]",
		Action:    app.view,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "log",
				Usage: "Print the emulator logs of the run",
			},
		},
		Description: `View a run from the history of a results directory.

Arguments:
  0           View last run (default)
  -1          View 2nd last run
  <hex-id>    View run matching the hex ID prefix

Examples:
  xemutest view results           # View last run
  xemutest view results -- -1     # View 2nd last run
  xemutest view results abc123    # View run with ID starting with abc123`,
	})
	return app
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && len(commit) >= 8 {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}
