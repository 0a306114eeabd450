package firstrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Branch lines printed on stdout, one per run.
const (
	FirstStartupMessage    = "First container startup"
	NotFirstStartupMessage = "Not first container startup"
	ForcedStartupMessage   = "Not first container startup, initialization forced"
)

// ExecFunc replaces the current process image, it only returns on error.
// syscall.Exec is the production implementation.
type ExecFunc func(argv0 string, argv []string, envv []string) error

// EntrypointOptions configures RunEntrypoint
type EntrypointOptions struct {
	Config *Config

	// Runner executes initialization commands (default: ExecRunner with Config.StepTimeout)
	Runner Runner

	// Stdout receives the branch line (default: os.Stdout)
	Stdout io.Writer

	// Exec performs the shell handoff (default: syscall.Exec)
	Exec ExecFunc

	// Force runs initialization even when the marker exists
	Force bool

	// NoShell returns after the gate instead of handing off to the shell
	NoShell bool
}

// RunEntrypoint executes the container entrypoint: it loads the env file,
// resolves the first-run gate, runs initialization when needed, then hands
// the process over to the shell. Initialization failures are logged and never
// prevent the handoff. Marker read/write failures are returned.
func RunEntrypoint(ctx context.Context, opts EntrypointOptions) error {
	config := opts.Config
	if config == nil {
		return fmt.Errorf("entrypoint config is required")
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	runner := opts.Runner
	if runner == nil {
		runner = NewExecRunner(config.StepTimeout)
	}
	execFn := opts.Exec
	if execFn == nil {
		execFn = syscall.Exec
	}

	// Closed explicitly before exec, the handoff never returns on success.
	elog, closeLog := openRunLog(config.LogFile)
	defer closeLog()

	elog.Info("entrypoint starting",
		zap.String("marker", config.MarkerPath),
		zap.String("policy", string(config.MarkerPolicy)),
		zap.Bool("force", opts.Force),
		zap.Bool("no_shell", opts.NoShell))
	logEnvironment(elog)

	if config.EnvFile != "" {
		count, err := LoadEnvFile(config.EnvFile)
		if err != nil {
			elog.Error("failed to load env file", zap.String("path", config.EnvFile), zap.Error(err))
			return fmt.Errorf("failed to load env file: %w", err)
		}
		elog.Info("loaded env file", zap.String("path", config.EnvFile), zap.Int("count", count))
	}

	gate := NewGate(config.MarkerPath, config.MarkerPolicy)
	initializer := NewInitializer(config, runner)

	announced := false
	action := func(ctx context.Context) error {
		if !announced {
			fmt.Fprintln(stdout, FirstStartupMessage)
		}
		return initializer.Run(ctx)
	}

	var outcome Outcome
	var err error
	if opts.Force {
		done, statErr := gate.Initialized()
		if statErr != nil {
			elog.Error("first-run gate failed", zap.Error(statErr))
			return fmt.Errorf("first-run gate: %w", statErr)
		}
		if done {
			fmt.Fprintln(stdout, ForcedStartupMessage)
			announced = true
		}
		outcome, err = gate.Force(ctx, action)
	} else {
		outcome, err = gate.EnsureInitialized(ctx, action)
	}

	var markerErr *MarkerError
	switch {
	case errors.As(err, &markerErr) && outcome == PerformedNow:
		// Initialization ran but its completion could not be recorded, the
		// next start initializes again.
		elog.Error("failed to record initialization", zap.Error(err))
		zlog.Warn("failed to record initialization, next start will initialize again", zap.Error(err))
	case errors.As(err, &markerErr):
		elog.Error("first-run gate failed", zap.Error(err))
		return fmt.Errorf("first-run gate: %w", err)
	case err != nil:
		elog.Warn("initialization completed with errors", zap.Error(err))
		zlog.Warn("initialization completed with errors", zap.Error(err))
	case outcome == AlreadyDone:
		fmt.Fprintln(stdout, NotFirstStartupMessage)
	}

	elog.Info("gate resolved", zap.Stringer("outcome", outcome))

	if opts.NoShell || config.Shell == ShellNone {
		elog.Info("shell handoff disabled")
		zlog.Info("shell handoff disabled, exiting", zap.Stringer("outcome", outcome))
		return nil
	}

	shellPath, argv, err := ResolveShell(config)
	if err != nil {
		elog.Error("failed to resolve shell", zap.Error(err))
		return err
	}

	elog.Info("handing off to shell", zap.String("path", shellPath), zap.Strings("argv", argv))
	zlog.Info("handing off to shell", zap.String("path", shellPath), zap.Strings("argv", argv))
	closeLog()

	if err := execFn(shellPath, argv, os.Environ()); err != nil {
		return fmt.Errorf("failed to exec shell %s: %w", shellPath, err)
	}
	return nil
}

// ResolveShell picks the handoff program: the configured shell, then $SHELL,
// /bin/bash and /bin/sh. A configured shell that cannot be found is an error
// rather than a fallback.
func ResolveShell(config *Config) (string, []string, error) {
	var path string
	if config.Shell != "" {
		p, err := findExecutable(config.Shell)
		if err != nil {
			return "", nil, fmt.Errorf("configured shell %q not found: %w", config.Shell, err)
		}
		path = p
	} else {
		for _, candidate := range []string{os.Getenv("SHELL"), "/bin/bash", "/bin/sh"} {
			if candidate == "" {
				continue
			}
			if p, err := findExecutable(candidate); err == nil {
				path = p
				break
			}
		}
		if path == "" {
			return "", nil, fmt.Errorf("no shell found ($SHELL, /bin/bash, /bin/sh)")
		}
	}

	argv := append([]string{filepath.Base(path)}, config.ShellArgs...)
	return path, argv, nil
}

func findExecutable(name string) (string, error) {
	if !strings.Contains(name, "/") {
		return exec.LookPath(name)
	}

	info, err := os.Stat(name)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", name)
	}
	if info.Mode()&0111 == 0 {
		return "", fmt.Errorf("%s is not executable", name)
	}
	return name, nil
}

// ReadEnvFile reads KEY=value lines from path. Blank lines and lines starting
// with # are skipped. A missing file yields no entries and no error.
func ReadEnvFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	var envs []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			envs = append(envs, line)
		}
	}

	return envs, nil
}

// LoadEnvFile reads path and sets every entry in the process environment so
// initialization commands and the shell inherit them. Entries without '=' are
// skipped. Returns the number of variables set.
func LoadEnvFile(path string) (int, error) {
	envs, err := ReadEnvFile(path)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, env := range envs {
		key, value, ok := strings.Cut(env, "=")
		if !ok || key == "" {
			zlog.Debug("skipping invalid env entry", zap.String("path", path))
			continue
		}

		if err := os.Setenv(key, value); err != nil {
			return count, fmt.Errorf("failed to set %s: %w", key, err)
		}
		count++
		zlog.Debug("loaded environment variable", zap.String("key", key))
	}

	return count, nil
}

// openRunLog opens the per-run log file in append mode. When path is empty or
// can't be opened a nop logger is returned.
func openRunLog(path string) (*zap.Logger, func()) {
	if path == "" {
		return zap.NewNop(), func() {}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		zlog.Debug("run log unavailable", zap.String("path", path), zap.Error(err))
		return zap.NewNop(), func() {}
	}

	fmt.Fprintf(f, "\n========== firstrun entrypoint new run at %s ==========\n", time.Now().Format(time.RFC3339))

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(f),
		zap.DebugLevel,
	)
	logger := zap.New(core)

	closed := false
	return logger, func() {
		if closed {
			return
		}
		closed = true
		_ = logger.Sync()
		f.Close()
	}
}

// logEnvironment records the variables that matter to the database client
func logEnvironment(elog *zap.Logger) {
	interesting := []string{
		"HOME", "USER", "SHELL", "PATH",
		"ORACLE_HOME", "ORACLE_SID", "TNS_ADMIN", "LD_LIBRARY_PATH",
		MarkerPathEnvVar, MarkerPolicyEnvVar, ConfigPathEnvVar,
	}

	for _, key := range interesting {
		if val := os.Getenv(key); val != "" {
			elog.Debug("env", zap.String("key", key), zap.String("value", val))
		}
	}
}
