package firstrun

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const maskedSecret = "***"

// Step is one initialization command
type Step struct {
	// Name identifies the step, "setup" or "sql:<script name>"
	Name    string
	Command Command
}

// Initializer performs the one-time initialization: the setup script, then
// one database client invocation per configured SQL script.
type Initializer struct {
	config *Config
	runner Runner
}

// NewInitializer creates an initializer running its steps through runner
func NewInitializer(config *Config, runner Runner) *Initializer {
	return &Initializer{config: config, runner: runner}
}

// Plan returns the ordered steps without running anything
func (i *Initializer) Plan() []Step {
	var steps []Step

	if i.config.SetupScript != "" {
		steps = append(steps, Step{
			Name:    "setup",
			Command: Command{Path: i.config.SetupScript},
		})
	}

	for _, script := range i.config.Database.Scripts {
		steps = append(steps, Step{
			Name:    "sql:" + script.Name,
			Command: SQLPlusCommand(i.config.Database, script),
		})
	}

	return steps
}

// Run executes every step in order. A failing step does not stop the
// following ones, all failures are returned combined.
func (i *Initializer) Run(ctx context.Context) error {
	steps := i.Plan()
	zlog.Info("starting initialization", zap.Int("steps", len(steps)))

	var errs error
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, fmt.Errorf("initialization interrupted before step %s: %w", step.Name, err))
		}

		zlog.Info("running initialization step",
			zap.String("step", step.Name),
			zap.Stringer("cmd", step.Command))

		if err := i.runner.Run(ctx, step.Command); err != nil {
			zlog.Warn("initialization step failed, continuing",
				zap.String("step", step.Name),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("step %s: %w", step.Name, err))
			continue
		}

		zlog.Info("initialization step completed", zap.String("step", step.Name))
	}

	zlog.Info("initialization finished",
		zap.Int("steps", len(steps)),
		zap.Int("failed", len(multierr.Errors(errs))))

	return errs
}

// SQLPlusCommand builds the silent client invocation submitting script under
// its account: <client> -S user/password@host:port/service @path
func SQLPlusCommand(db DatabaseConfig, script SQLScript) Command {
	endpoint := db.Endpoint()
	connect := fmt.Sprintf("%s/%s@%s", script.User, script.ResolvePassword(), endpoint)
	display := fmt.Sprintf("%s -S %s/%s@%s @%s", db.Client, script.User, maskedSecret, endpoint, script.Path)

	return Command{
		Path:    db.Client,
		Args:    []string{"-S", connect, "@" + script.Path},
		Display: display,
	}
}
