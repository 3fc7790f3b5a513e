// Package command runs short-lived external tools and captures their output.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrFailed indicates that a command exited unsuccessfully.
var ErrFailed = errors.New("command failed")

// Output is the captured result of a finished command.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Spec describes a command to run.
type Spec struct {
	// Stdout replaces the captured stdout buffer when set.
	Stdout io.Writer
	Logger *slog.Logger
	Name   string
	Args   []string
	Env    []string
	Dir    string
}

// Run executes spec and waits for it to finish. A non-zero exit status is
// reported as [ErrFailed] with the captured stderr in the message.
func Run(ctx context.Context, spec Spec) (*Output, error) {
	logger := spec.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...) //nolint:gosec // Tool paths are resolved by the caller.
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	if spec.Stdout != nil {
		cmd.Stdout = spec.Stdout
	}

	cmd.Stderr = &stderr

	logger.Debug("running command", slog.String("cmd", String(spec.Name, spec.Args)))

	err := cmd.Run()

	out := &Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, fmt.Errorf("%w: %s ended with exit code %d\n%s",
			ErrFailed, spec.Name, exitErr.ExitCode(), strings.TrimSpace(out.Stderr))
	}

	if err != nil {
		return out, fmt.Errorf("run %s: %w", spec.Name, err)
	}

	return out, nil
}

// String renders name and args as a single line for logs.
func String(name string, args []string) string {
	var sb strings.Builder

	sb.WriteString(name)

	for _, arg := range args {
		sb.WriteByte(' ')

		if arg == "" || strings.ContainsAny(arg, " \t\"'") {
			sb.WriteString(fmt.Sprintf("%q", arg))
		} else {
			sb.WriteString(arg)
		}
	}

	return sb.String()
}
