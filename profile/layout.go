package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidTarget indicates a target name that cannot be used as a
// directory name.
var ErrInvalidTarget = errors.New("invalid target name")

// Kind is a profiling technique.
type Kind int

const (
	// KindPGO is source-level profile-guided optimization with rustc.
	KindPGO Kind = iota
	// KindBOLT is post-link binary layout optimization with llvm-bolt.
	KindBOLT
)

// String returns "PGO" or "BOLT".
func (k Kind) String() string {
	if k == KindBOLT {
		return "BOLT"
	}

	return "PGO"
}

// Dir is the name of the directory holding profiles of kind k.
func (k Kind) Dir() string {
	if k == KindBOLT {
		return "bolt-profiles"
	}

	return "pgo-profiles"
}

// Extension is the file extension of raw shards of kind k.
func (k Kind) Extension() string {
	if k == KindBOLT {
		return ".fdata"
	}

	return ".profraw"
}

// Layout computes profile paths below a root directory.
type Layout struct {
	Root string
}

// NewLayout returns the layout rooted at override, or at buildRoot when
// override is empty.
func NewLayout(buildRoot, override string) Layout {
	if override != "" {
		return Layout{Root: override}
	}

	return Layout{Root: buildRoot}
}

// KindDir returns the directory of all profiles of kind k.
func (l Layout) KindDir(k Kind) string {
	return filepath.Join(l.Root, k.Dir())
}

// TargetDir returns the directory of target's profiles of kind k. The
// directory name is exactly the target name.
func (l Layout) TargetDir(k Kind, target string) (string, error) {
	if target == "" || target == "." || target == ".." ||
		strings.ContainsAny(target, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}

	return filepath.Join(l.KindDir(k), target), nil
}

// Ensure creates target's directory for kind k and returns its path.
func (l Layout) Ensure(k Kind, target string) (string, error) {
	dir, err := l.TargetDir(k, target)
	if err != nil {
		return "", err
	}

	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return "", fmt.Errorf("create profile directory: %w", err)
	}

	return dir, nil
}

// Reset removes everything in target's directory for kind k and recreates
// it empty.
func (l Layout) Reset(k Kind, target string) (string, error) {
	dir, err := l.TargetDir(k, target)
	if err != nil {
		return "", err
	}

	err = os.RemoveAll(dir)
	if err != nil {
		return "", fmt.Errorf("clear profile directory: %w", err)
	}

	return l.Ensure(k, target)
}

// Clean removes the profile directories of every kind. Directories that do
// not exist are not an error.
func (l Layout) Clean() ([]string, error) {
	var (
		removed []string
		errs    []error
	)

	for _, k := range []Kind{KindPGO, KindBOLT} {
		dir := l.KindDir(k)

		_, err := os.Stat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		err = os.RemoveAll(dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", dir, err))
			continue
		}

		removed = append(removed, dir)
	}

	return removed, errors.Join(errs...)
}
