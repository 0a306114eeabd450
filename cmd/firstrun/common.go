package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/streamingfast/firstrun"
)

const defaultConfigPathHint = firstrun.DefaultConfigPath

// loadConfig resolves the configuration path from the --config flag when the
// command defines it, then FIRSTRUN_CONFIG, then the default location.
func loadConfig(cmd *cobra.Command) (*firstrun.Config, error) {
	configPath := firstrun.ResolveConfigPath(stringFlag(cmd, "config"))

	config, err := firstrun.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return config, nil
}

// stringFlag returns the flag value or "" when the command has no such flag.
// The root command runs the entrypoint without declaring any flag.
func stringFlag(cmd *cobra.Command, name string) string {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		return ""
	}
	return flag.Value.String()
}

func boolFlag(cmd *cobra.Command, name string) bool {
	if cmd.Flags().Lookup(name) == nil {
		return false
	}
	value, _ := cmd.Flags().GetBool(name)
	return value
}

func gateFor(config *firstrun.Config) *firstrun.Gate {
	return firstrun.NewGate(config.MarkerPath, config.MarkerPolicy)
}

// commandContext returns the command context canceled on SIGINT or SIGTERM so
// a container stop interrupts a running initialization.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
