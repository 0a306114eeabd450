package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	. "github.com/streamingfast/cli"
)

var ConfigCommand = Command(configE,
	"config",
	"Print the effective configuration",
	Description(`
		Prints the configuration after defaults and environment overrides
		(FIRSTRUN_MARKER, FIRSTRUN_MARKER_POLICY) are applied, as YAML.
		Inline passwords are masked.
	`),
	Flags(func(flags *pflag.FlagSet) {
		configFlag(flags)
	}),
)

// configE prints the effective configuration
func configE(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	data, err := config.Marshal()
	if err != nil {
		return err
	}

	cmd.Print(string(data))
	return nil
}
