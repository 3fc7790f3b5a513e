// Package toolchain resolves the external programs cargo-pgo drives: cargo,
// rustc, llvm-profdata, llvm-bolt and merge-fdata.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.jacobcolvin.com/cargo-pgo/internal/command"
)

// ErrToolNotFound indicates that a required program could not be located.
var ErrToolNotFound = errors.New("tool not found")

// Tool names an external program.
type Tool string

const (
	Cargo      Tool = "cargo"
	Rustc      Tool = "rustc"
	Profdata   Tool = "llvm-profdata"
	Bolt       Tool = "llvm-bolt"
	MergeFdata Tool = "merge-fdata"
)

// Tools returns every tool the locator knows about.
func Tools() []Tool {
	return []Tool{Cargo, Rustc, Profdata, Bolt, MergeFdata}
}

// InstallHint tells the user how to obtain t.
func (t Tool) InstallHint() string {
	switch t {
	case Profdata:
		return "Try installing `llvm-profdata` using `rustup component add llvm-tools-preview` " +
			"or build LLVM manually and add its `bin` directory to PATH."
	case Bolt, MergeFdata:
		return "Build LLVM with BOLT and add its `bin` directory to PATH."
	case Cargo, Rustc:
		return "Install a Rust toolchain with rustup (https://rustup.rs)."
	}

	return ""
}

// Locator finds tools and caches the results. The zero value searches PATH
// and the process environment.
type Locator struct {
	// Overrides maps a tool to an explicit path, e.g. from configuration.
	Overrides map[Tool]string
	// LookPath defaults to [exec.LookPath].
	LookPath func(file string) (string, error)
	// Getenv defaults to [os.Getenv]. Use [EnvLookup] to read CARGO and
	// RUSTC from an environment snapshot instead.
	Getenv func(key string) string
	Logger *slog.Logger

	cache map[Tool]string
	mu    sync.Mutex
}

// Find returns the path of tool, or an error wrapping [ErrToolNotFound] that
// carries an install hint.
func (l *Locator) Find(ctx context.Context, tool Tool) (string, error) {
	l.mu.Lock()
	if path, ok := l.cache[tool]; ok {
		l.mu.Unlock()
		return path, nil
	}
	l.mu.Unlock()

	path, err := l.find(ctx, tool)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cache == nil {
		l.cache = map[Tool]string{}
	}

	l.cache[tool] = path

	return path, nil
}

func (l *Locator) find(ctx context.Context, tool Tool) (string, error) {
	if path, ok := l.Overrides[tool]; ok && path != "" {
		return l.resolve(tool, path)
	}

	switch tool {
	case Cargo:
		if path := l.getenv("CARGO"); path != "" {
			return l.resolve(tool, path)
		}

	case Rustc:
		if path := l.getenv("RUSTC"); path != "" {
			return l.resolve(tool, path)
		}

	case Profdata:
		path, err := l.sysrootProfdata(ctx)
		if err == nil {
			return path, nil
		}

		l.logger().Debug("llvm-profdata not found in rustc sysroot", slog.Any("err", err))

		path, err = l.resolve(tool, string(tool))
		if err != nil {
			return "", err
		}

		l.logger().Warn("llvm-profdata was resolved from PATH, make sure that its version is compatible with rustc",
			slog.String("path", path),
			slog.String("hint", "rustup component add llvm-tools-preview"),
		)

		return path, nil

	case Bolt, MergeFdata:
	}

	return l.resolve(tool, string(tool))
}

// sysrootProfdata looks for the llvm-profdata installed by the
// llvm-tools-preview component next to rustc's target libraries.
func (l *Locator) sysrootProfdata(ctx context.Context) (string, error) {
	rustc, err := l.Find(ctx, Rustc)
	if err != nil {
		return "", err
	}

	out, err := command.Run(ctx, command.Spec{
		Logger: l.logger(),
		Name:   rustc,
		Args:   []string{"--print", "target-libdir"},
	})
	if err != nil {
		return "", err
	}

	libdir := strings.TrimSpace(out.Stdout)
	path := filepath.Join(filepath.Dir(libdir), "bin", string(Profdata))

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	return path, nil
}

// resolve turns name into an absolute executable path. Names without a
// separator are searched in PATH.
func (l *Locator) resolve(tool Tool, name string) (string, error) {
	lookPath := l.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	path, err := lookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: could not find `%s` (%w). %s", ErrToolNotFound, tool, err, tool.InstallHint())
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil //nolint:nilerr // A relative path still works for exec.
	}

	return abs, nil
}

// EnvLookup returns a Getenv for [Locator] that reads environ, a list of
// "KEY=value" entries as returned by [os.Environ]. Later entries win.
func EnvLookup(environ []string) func(key string) string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k != "" {
			m[k] = v
		}
	}

	return func(key string) string {
		return m[key]
	}
}

func (l *Locator) getenv(key string) string {
	if l.Getenv != nil {
		return l.Getenv(key)
	}

	return os.Getenv(key)
}

func (l *Locator) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}

	return slog.Default()
}
