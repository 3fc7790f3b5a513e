package cargo

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"sort"

	"go.jacobcolvin.com/cargo-pgo/internal/command"
)

// MessageFormat is the message format requested from cargo.
const MessageFormat = "json-diagnostic-rendered-ansi"

var (
	// ErrBuildFailed indicates that cargo exited with a non-zero status.
	ErrBuildFailed = errors.New("cargo build failed")
	// ErrUnknownCommand indicates an unsupported cargo command name.
	ErrUnknownCommand = errors.New("unknown cargo command")
)

// Command is a cargo subcommand that cargo-pgo can wrap.
type Command string

const (
	CommandBuild Command = "build"
	CommandTest  Command = "test"
	CommandRun   Command = "run"
	CommandBench Command = "bench"
)

// Commands returns all supported commands.
func Commands() []Command {
	return []Command{CommandBuild, CommandTest, CommandRun, CommandBench}
}

// ParseCommand parses a cargo command name.
func ParseCommand(s string) (Command, error) {
	for _, c := range Commands() {
		if string(c) == s {
			return c, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// release reports whether --release must be added for c. cargo bench
// already builds with an optimized profile.
func (c Command) release() bool {
	return c != CommandBench
}

// Invocation describes a single cargo run.
type Invocation struct {
	// Composition carries the compiler flags from [Composer.Compose].
	Composition Composition
	Command     Command
	// DefaultTarget is passed as --target unless Args already has one.
	// Building for an explicit target keeps build scripts and proc macros
	// uninstrumented.
	DefaultTarget string
	Args          Args
}

// CommandLine returns the arguments passed to cargo for inv, without the
// cargo binary itself.
//
// Arguments added by cargo-pgo come first, so that a "--" in the user's
// arguments keeps its meaning.
func (inv Invocation) CommandLine() []string {
	args := []string{string(inv.Command), "--message-format", MessageFormat}

	if inv.Command.release() && !inv.Args.HasProfile {
		args = append(args, "--release")
	}

	if !inv.Args.HasTarget && inv.DefaultTarget != "" {
		args = append(args, "--target", inv.DefaultTarget)
	}

	args = append(args, inv.Composition.Args...)
	args = append(args, inv.Args.Filtered...)

	return args
}

// Runner starts cargo processes.
type Runner struct {
	// Stdin is connected to cargo's stdin, e.g. for cargo run.
	Stdin io.Reader
	// Stderr receives cargo's stderr unmodified. Defaults to [os.Stderr].
	Stderr io.Writer
	Logger *slog.Logger
	// Cargo is the path of the cargo binary.
	Cargo string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Environ is the base environment of the child. Nil means
	// [os.Environ].
	Environ []string
}

// Start spawns cargo for inv. The caller must consume the events of the
// returned [Build] and then call [Build.Wait].
func (r *Runner) Start(ctx context.Context, inv Invocation) (*Build, error) {
	logger := r.logger()
	args := inv.CommandLine()

	cmd := exec.CommandContext(ctx, r.Cargo, args...) //nolint:gosec // Cargo path is resolved by the toolchain locator.
	cmd.Dir = r.Dir
	cmd.Stdin = r.Stdin
	cmd.Stderr = r.Stderr

	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	cmd.Env = mergeEnv(r.Environ, inv.Composition.Env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("cargo stdout: %w", err)
	}

	logger.Debug("executing cargo",
		slog.String("cmd", command.String(r.Cargo, args)),
		slog.Any("env", inv.Composition.Env),
	)

	err = cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("start cargo: %w", err)
	}

	return &Build{
		cmd:    cmd,
		reader: bufio.NewReader(stdout),
	}, nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}

	return slog.Default()
}

// Build is a running cargo process and its stream of [Event] values.
//
// Events are read one at a time from cargo's stdout; they are never buffered
// beyond a single line. The stream can be consumed once.
type Build struct {
	cmd    *exec.Cmd
	reader *bufio.Reader
	err    error
	done   bool
}

// Next returns the next event. It returns [io.EOF] once cargo has closed its
// stdout.
func (b *Build) Next() (Event, error) {
	if b.done {
		if b.err != nil {
			return nil, b.err
		}

		return nil, io.EOF
	}

	line, err := b.reader.ReadBytes('\n')
	if len(line) > 0 {
		if err != nil {
			b.finish(err)
		}

		return ParseEvent(line), nil
	}

	b.finish(err)

	return b.Next()
}

// Events returns an iterator over the remaining events. Iteration stops at
// the end of the stream or after yielding a read error.
func (b *Build) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := b.Next()
			if errors.Is(err, io.EOF) {
				return
			}

			if !yield(ev, err) || err != nil {
				return
			}
		}
	}
}

// Wait drains any unread output and waits for cargo to exit. A non-zero exit
// status is reported as [ErrBuildFailed].
func (b *Build) Wait() error {
	if !b.done {
		_, err := io.Copy(io.Discard, b.reader)
		b.finish(err)
	}

	err := b.cmd.Wait()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}

	if err != nil {
		return fmt.Errorf("wait for cargo: %w", err)
	}

	return nil
}

// ExitError reports a cargo process that exited unsuccessfully. It matches
// [ErrBuildFailed] with [errors.Is].
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%v: cargo exited with code %d", ErrBuildFailed, e.Code)
}

func (e *ExitError) Is(target error) bool {
	return target == ErrBuildFailed
}

func (b *Build) finish(err error) {
	b.done = true

	if err != nil && !errors.Is(err, io.EOF) {
		b.err = fmt.Errorf("read cargo output: %w", err)
	}
}

// mergeEnv returns base (or the process environment) with overrides applied.
func mergeEnv(base []string, overrides map[string]string) []string {
	if base == nil {
		base = os.Environ()
	}

	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key := kv
		for i := range len(kv) {
			if kv[i] == '=' && i > 0 {
				key = kv[:i]
				break
			}
		}

		if _, ok := overrides[key]; ok {
			continue
		}

		out = append(out, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}

	return out
}
