package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	. "github.com/streamingfast/cli"
	"github.com/streamingfast/logging"
	"go.uber.org/zap"
)

// Version is set via ldflags at build time
var version = "dev"

var zlog, _ = logging.PackageLogger("firstrun", "github.com/streamingfast/firstrun/cmd/firstrun")

func init() {
	logging.InstantiateLoggers(logging.WithDefaultLevel(zap.WarnLevel))
}

func main() {
	Run(
		"firstrun <command>",
		"Container entrypoint running one-time database initialization before handing off to a shell",

		ConfigureVersion(version),
		ConfigureViper("FIRSTRUN"),

		// Default command (no subcommand = entrypoint), takes no flags
		Execute(entrypointE),

		EntrypointCommand,
		StatusCommand,
		PlanCommand,
		MarkCommand,
		ResetCommand,
		ConfigCommand,

		OnCommandError(func(err error) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			zlog.Debug("command error", zap.Error(err))
			os.Exit(1)
		}),
	)
}

func configFlag(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "Configuration file (default: $FIRSTRUN_CONFIG or "+defaultConfigPathHint+")")
}
