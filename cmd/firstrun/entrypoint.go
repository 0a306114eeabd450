package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	. "github.com/streamingfast/cli"
	"github.com/streamingfast/firstrun"
	"go.uber.org/zap"
)

var EntrypointCommand = Command(entrypointE,
	"entrypoint",
	"Run the container entrypoint (same as running without a command)",
	Description(`
		Checks the first-run marker file. When it is absent, runs the setup
		script and submits the configured SQL scripts through the database
		client, then writes the marker. When it is present, initialization is
		skipped.

		In every case the process is then replaced by the configured shell
		($SHELL, /bin/bash or /bin/sh when none is configured).

		Failures of the initialization commands are logged but never prevent
		the shell handoff. With marker_policy "always" the marker is written
		even when initialization fails, with "on_success" the next start
		retries.
	`),
	Flags(func(flags *pflag.FlagSet) {
		configFlag(flags)
		flags.Bool("force", false, "Run initialization even if the marker exists")
		flags.Bool("no-shell", false, "Exit after initialization instead of starting the shell")
	}),
)

// entrypointE is the container entrypoint
func entrypointE(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := firstrun.EntrypointOptions{
		Config:  config,
		Stdout:  cmd.OutOrStdout(),
		Force:   boolFlag(cmd, "force"),
		NoShell: boolFlag(cmd, "no-shell"),
	}

	zlog.Debug("running entrypoint",
		zap.String("marker", config.MarkerPath),
		zap.Bool("force", opts.Force),
		zap.Bool("no_shell", opts.NoShell))

	ctx, stop := commandContext(cmd)
	defer stop()

	return firstrun.RunEntrypoint(ctx, opts)
}
