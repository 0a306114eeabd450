package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	. "github.com/streamingfast/cli"
)

var MarkCommand = Command(markE,
	"mark",
	"Write the marker without running initialization",
	Description(`
		Creates the marker file so the next container start skips
		initialization. Useful when the database was bootstrapped by other
		means.
	`),
	Flags(func(flags *pflag.FlagSet) {
		configFlag(flags)
	}),
)

var ResetCommand = Command(resetE,
	"reset",
	"Remove the marker so the next start runs initialization again",
	Description(`
		Deletes the marker file. The next container start treats itself as
		the first one and runs the setup and SQL scripts again.

		Asks for confirmation unless --yes is given.
	`),
	Flags(func(flags *pflag.FlagSet) {
		configFlag(flags)
		flags.BoolP("yes", "y", false, "Do not ask for confirmation")
	}),
)

// markE writes the marker
func markE(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := gateFor(config).Mark(); err != nil {
		return err
	}

	cmd.Printf("Marker written at %s\n", config.MarkerPath)
	return nil
}

// resetE removes the marker
func resetE(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	gate := gateFor(config)
	initialized, err := gate.Initialized()
	if err != nil {
		return err
	}
	if !initialized {
		cmd.Printf("No marker at %s, nothing to reset\n", config.MarkerPath)
		return nil
	}

	if !boolFlag(cmd, "yes") {
		answeredYes, _ := AskConfirmation("%s", fmt.Sprintf("Remove %s? The next start will run initialization again", config.MarkerPath))
		if !answeredYes {
			cmd.Println("Aborted")
			return nil
		}
	}

	if err := gate.Reset(); err != nil {
		return err
	}

	cmd.Printf("Marker removed from %s\n", config.MarkerPath)
	return nil
}
