package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/willabides/kongplete"
)

var (
	version = "dev"
	commit  = "none"
)

type CLI struct {
	Config string `short:"c" type:"path" env:"BTU_CONFIG" help:"Config file (.yaml or .toml). Defaults to ~/.btu/config.yaml"`

	Start     StartCmd     `cmd:"" help:"Start the scheduler daemon"`
	Stop      StopCmd      `cmd:"" help:"Stop the scheduler daemon"`
	Status    StatusCmd    `cmd:"" help:"Show daemon status"`
	Ping      PingCmd      `cmd:"" help:"Check that the daemon answers"`
	Reload    ReloadCmd    `cmd:"" help:"Load or reload a task schedule"`
	Cancel    CancelCmd    `cmd:"" help:"Cancel an active task schedule"`
	Schedules SchedulesCmd `cmd:"" help:"Inspect task schedule definitions"`
	Logs      LogsCmd      `cmd:"" help:"Show daemon logs"`
	Version   VersionCmd   `cmd:"" help:"Show version"`

	InstallCompletions kongplete.InstallCompletions `cmd:"" help:"Install shell completions"`
}

func main() {
	cli := CLI{}
	parser := kong.Must(&cli,
		kong.Name("btu"),
		kong.Description("Task scheduler daemon and control client"),
		kong.UsageOnError(),
	)

	kongplete.Complete(parser,
		kongplete.WithPredictor("schedule", newScheduleIDPredictor()),
	)

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := ctx.Run(&cli); err != nil {
		os.Exit(reportError(err))
	}
}

// reportError prints err and returns the process exit code.
func reportError(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Message != "" {
			fmt.Fprintln(os.Stderr, exitErr.Message)
		}
		return exitErr.Code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitError
}
