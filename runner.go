package firstrun

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Command is one external process invocation
type Command struct {
	// Path is the program to run, looked up in PATH when it has no slash
	Path string

	// Args are the arguments after the program name
	Args []string

	// Display is the command line shown in logs and plans, with secrets masked.
	// Defaults to Path and Args joined by spaces.
	Display string
}

// String returns the loggable form of the command
func (c Command) String() string {
	if c.Display != "" {
		return c.Display
	}
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Runner runs external commands to completion
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands as child processes. Stdin is not connected so
// interactive clients see EOF, output is streamed to Stdout and Stderr.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer

	// Timeout bounds every command, zero means no timeout
	Timeout time.Duration
}

// NewExecRunner creates a runner writing to the process stdout and stderr
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr, Timeout: timeout}
}

// Run executes cmd and waits for it. A nonzero exit status is returned as an
// error wrapping *exec.ExitError.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Stdout = r.Stdout
	c.Stderr = r.Stderr

	zlog.Debug("executing command", zap.Stringer("cmd", cmd))

	start := time.Now()
	err := c.Run()
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s timed out after %s: %w", cmd.Path, r.Timeout, err)
		}
		return fmt.Errorf("%s failed: %w", cmd.Path, err)
	}

	zlog.Debug("command completed", zap.Stringer("cmd", cmd), zap.Duration("elapsed", elapsed))
	return nil
}
