package main

import (
	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	. "github.com/streamingfast/cli"
)

var (
	labelStyle   = lipgloss.NewStyle().Faint(true)
	doneStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	pendingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
)

var StatusCommand = Command(statusE,
	"status",
	"Show whether first-run initialization already happened",
	Description(`
		Reports the marker file state and the settings the entrypoint would
		use on the next start: marker path and policy, setup script, database
		endpoint and the SQL scripts submitted on first start.
	`),
	Flags(func(flags *pflag.FlagSet) {
		configFlag(flags)
	}),
)

// statusE prints the marker state and resolved settings
func statusE(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	initialized, err := gateFor(config).Initialized()
	if err != nil {
		return err
	}

	state := pendingStyle.Render("pending (next start runs initialization)")
	if initialized {
		state = doneStyle.Render("initialized")
	}

	cmd.Printf("%s %s\n", labelStyle.Render("State:        "), state)
	cmd.Printf("%s %s\n", labelStyle.Render("Marker:       "), config.MarkerPath)
	cmd.Printf("%s %s\n", labelStyle.Render("Policy:       "), config.MarkerPolicy)

	setup := config.SetupScript
	if setup == "" {
		setup = "(none)"
	}
	cmd.Printf("%s %s\n", labelStyle.Render("Setup script: "), setup)
	cmd.Printf("%s %s\n", labelStyle.Render("Database:     "), config.Database.Endpoint())

	if len(config.Database.Scripts) == 0 {
		cmd.Printf("%s (none)\n", labelStyle.Render("SQL scripts:  "))
	} else {
		cmd.Println(labelStyle.Render("SQL scripts:"))
		for _, script := range config.Database.Scripts {
			cmd.Printf("  - %s: %s as %s\n", script.Name, script.Path, script.User)
		}
	}

	return nil
}
