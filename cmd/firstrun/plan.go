package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	. "github.com/streamingfast/cli"
	"github.com/streamingfast/firstrun"
)

var PlanCommand = Command(planE,
	"plan",
	"List the initialization commands without running them",
	Description(`
		Prints, in order, the commands the entrypoint runs on first start.
		Database passwords are masked.
	`),
	Flags(func(flags *pflag.FlagSet) {
		configFlag(flags)
	}),
)

// planE prints the initialization steps
func planE(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	steps := firstrun.NewInitializer(config, nil).Plan()
	if len(steps) == 0 {
		cmd.Println("No initialization steps configured")
		return nil
	}

	for i, step := range steps {
		cmd.Printf("%d. [%s] %s\n", i+1, step.Name, step.Command)
	}
	return nil
}
