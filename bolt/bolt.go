// Package bolt rewrites built binaries with llvm-bolt.
//
// A [Rewriter] first instruments a binary, producing a sibling
// "<name>-bolt-instrumented" binary that writes one profile shard per process
// when run. After the shards are merged, it optimizes the original binary
// with the merged profile into "<name>-bolt-optimized".
//
// Both stages use a default flag set unless [Options] carries an override
// string, which replaces the defaults entirely.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"

	"go.jacobcolvin.com/cargo-pgo/internal/command"
)

const (
	// InstrumentedSuffix is appended to the name of instrumented binaries.
	InstrumentedSuffix = "-bolt-instrumented"
	// OptimizedSuffix is appended to the name of optimized binaries.
	OptimizedSuffix = "-bolt-optimized"

	// ShardPrefix is the file name prefix of profile shards. llvm-bolt
	// appends ".<pid>.fdata".
	ShardPrefix = "profile"
)

var (
	// ErrInvalidArgs indicates an override string that cannot be split.
	ErrInvalidArgs = errors.New("invalid BOLT arguments")
	// ErrRewriteFailed indicates that llvm-bolt failed.
	ErrRewriteFailed = errors.New("llvm-bolt failed")
)

// DefaultInstrumentArgs keeps debug information usable in the instrumented
// binary.
func DefaultInstrumentArgs() []string {
	return []string{"-update-debug-sections"}
}

// DefaultOptimizeArgs is the layout optimization pipeline applied when no
// override is given.
func DefaultOptimizeArgs() []string {
	return []string{
		"-reorder-blocks=ext-tsp",
		"-reorder-functions=hfsort",
		"-split-functions=2",
		"-split-all-cold",
		"-jump-tables=move",
		"-use-gnu-stack",
		"-split-eh",
		"-lite=1",
		"-icf=1",
		"-relocs",
		"-update-debug-sections",
		"-dyno-stats",
	}
}

// SplitArgs splits s into arguments the way a POSIX shell would, honoring
// quotes and escapes. Shell operators such as "|" or ";" are ordinary word
// characters, since no shell is involved. An empty string yields no
// arguments.
func SplitArgs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return []string{}, nil
	}

	p := shellwords.NewParser()

	args, err := p.Parse(escapeOperators(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidArgs, s, err)
	}

	if p.Position != -1 {
		return nil, fmt.Errorf("%w: %q: unexpected shell operator at offset %d",
			ErrInvalidArgs, s, p.Position)
	}

	return args, nil
}

// escapeOperators escapes the characters that make [shellwords.Parser] stop
// or fail when they appear outside of quotes.
func escapeOperators(s string) string {
	var (
		b              strings.Builder
		single, double bool
		escaped        bool
	)

	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && !single:
			escaped = true
		case r == '\'' && !double:
			single = !single
		case r == '"' && !single:
			double = !double
		case !single && !double && strings.ContainsRune(";&|<>()`", r):
			b.WriteByte('\\')
		}

		b.WriteRune(r)
	}

	return b.String()
}

// Options configures the flags passed to llvm-bolt.
type Options struct {
	// InstrumentArgs replaces [DefaultInstrumentArgs] when not nil. An empty
	// string means no extra flags.
	InstrumentArgs *string
	// OptimizeArgs replaces [DefaultOptimizeArgs] when not nil. An empty
	// string means no extra flags.
	OptimizeArgs *string
}

// Validate checks that the override strings can be split.
func (o Options) Validate() error {
	_, err := o.instrumentArgs()
	if err != nil {
		return err
	}

	_, err = o.optimizeArgs()

	return err
}

func (o Options) instrumentArgs() ([]string, error) {
	if o.InstrumentArgs == nil {
		return DefaultInstrumentArgs(), nil
	}

	return SplitArgs(*o.InstrumentArgs)
}

func (o Options) optimizeArgs() ([]string, error) {
	if o.OptimizeArgs == nil {
		return DefaultOptimizeArgs(), nil
	}

	return SplitArgs(*o.OptimizeArgs)
}

// Rewriter runs llvm-bolt.
type Rewriter struct {
	Logger *slog.Logger
	// Bolt is the path of llvm-bolt.
	Bolt    string
	Options Options
}

// InstrumentedPath returns the path of the instrumented sibling of binary.
func InstrumentedPath(binary string) string {
	return sibling(binary, InstrumentedSuffix)
}

// OptimizedPath returns the path of the optimized sibling of binary.
func OptimizedPath(binary string) string {
	return sibling(binary, OptimizedSuffix)
}

func sibling(binary, suffix string) string {
	base := filepath.Base(binary)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	return filepath.Join(filepath.Dir(binary), stem+suffix)
}

// Instrument writes an instrumented copy of binary whose runs append shards
// to profileDir, one file per process. It returns the instrumented path.
func (r *Rewriter) Instrument(ctx context.Context, binary, profileDir string) (string, error) {
	extra, err := r.Options.instrumentArgs()
	if err != nil {
		return "", err
	}

	err = os.MkdirAll(profileDir, 0o755)
	if err != nil {
		return "", fmt.Errorf("create BOLT profile directory: %w", err)
	}

	out := InstrumentedPath(binary)
	args := []string{
		"-instrument", binary,
		"--instrumentation-file-append-pid",
		"--instrumentation-file", filepath.Join(profileDir, ShardPrefix),
		"-o", out,
	}
	args = append(args, extra...)

	err = r.run(ctx, args)
	if err != nil {
		return "", fmt.Errorf("instrument %s: %w", binary, err)
	}

	return out, nil
}

// Optimize writes an optimized copy of binary using the merged profile and
// returns its path. An empty profile runs llvm-bolt without profile data.
func (r *Rewriter) Optimize(ctx context.Context, binary, profile string) (string, error) {
	extra, err := r.Options.optimizeArgs()
	if err != nil {
		return "", err
	}

	out := OptimizedPath(binary)
	args := []string{binary}

	if profile != "" {
		args = append(args, "-data", profile)
	}

	args = append(args, "-o", out)
	args = append(args, extra...)

	err = r.run(ctx, args)
	if err != nil {
		return "", fmt.Errorf("optimize %s: %w", binary, err)
	}

	return out, nil
}

func (r *Rewriter) run(ctx context.Context, args []string) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out, err := command.Run(ctx, command.Spec{
		Logger: logger,
		Name:   r.Bolt,
		Args:   args,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRewriteFailed, err)
	}

	logger.Debug("llvm-bolt finished",
		slog.String("stdout", out.Stdout),
		slog.String("stderr", out.Stderr),
	)

	return nil
}
