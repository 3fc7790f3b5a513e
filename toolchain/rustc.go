package toolchain

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"go.jacobcolvin.com/cargo-pgo/internal/command"
)

const (
	// MinimumRustc is the oldest rustc with stable PGO flags.
	MinimumRustc = "v1.39"
	// ConfigRustc is the first release whose cargo accepts --config.
	ConfigRustc = "v1.63"
)

var (
	// ErrInvalidVersion indicates unparseable `rustc -vV` output.
	ErrInvalidVersion = errors.New("invalid rustc version output")
	// ErrRustcTooOld indicates a rustc older than [MinimumRustc].
	ErrRustcTooOld = errors.New("rustc is too old")
)

// RustcInfo is the parsed output of `rustc -vV`.
type RustcInfo struct {
	// Host is the host target triple, e.g. x86_64-unknown-linux-gnu.
	Host string
	// Release is the version as printed by rustc, e.g. 1.75.0-nightly.
	Release string
}

// ParseRustcInfo parses the verbose version output of rustc.
func ParseRustcInfo(out string) (*RustcInfo, error) {
	var info RustcInfo

	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}

		switch strings.TrimSpace(key) {
		case "host":
			info.Host = strings.TrimSpace(value)
		case "release":
			info.Release = strings.TrimSpace(value)
		}
	}

	if info.Host == "" || info.Release == "" {
		return nil, fmt.Errorf("%w: missing host or release", ErrInvalidVersion)
	}

	if !semver.IsValid(info.Version()) {
		return nil, fmt.Errorf("%w: release %q", ErrInvalidVersion, info.Release)
	}

	return &info, nil
}

// Version returns the release in the "v"-prefixed form used by
// [golang.org/x/mod/semver].
func (r *RustcInfo) Version() string {
	return "v" + r.Release
}

// AtLeast reports whether the release is at least minor version v (e.g.
// "v1.63"), ignoring pre-release channels.
func (r *RustcInfo) AtLeast(v string) bool {
	return semver.Compare(semver.MajorMinor(r.Version()), v) >= 0
}

// CheckMinimum returns an error wrapping [ErrRustcTooOld] when the release
// predates stable PGO flags.
func (r *RustcInfo) CheckMinimum() error {
	if r.AtLeast(MinimumRustc) {
		return nil
	}

	return fmt.Errorf("%w: %s is older than %s", ErrRustcTooOld, r.Release, strings.TrimPrefix(MinimumRustc, "v"))
}

// SupportsConfig reports whether cargo accepts --config build.rustflags.
func (r *RustcInfo) SupportsConfig() bool {
	return r.AtLeast(ConfigRustc)
}

// Rustc runs `rustc -vV` and parses the result.
func (l *Locator) Rustc(ctx context.Context) (*RustcInfo, error) {
	rustc, err := l.Find(ctx, Rustc)
	if err != nil {
		return nil, err
	}

	out, err := command.Run(ctx, command.Spec{
		Logger: l.logger(),
		Name:   rustc,
		Args:   []string{"-vV"},
	})
	if err != nil {
		return nil, fmt.Errorf("query rustc version: %w", err)
	}

	return ParseRustcInfo(out.Stdout)
}
