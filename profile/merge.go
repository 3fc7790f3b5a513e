package profile

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"lukechampine.com/blake3"

	"go.jacobcolvin.com/cargo-pgo/internal/command"
)

// BOLTMergedName is the file name of a merged BOLT profile.
const BOLTMergedName = "merged.profdata"

// maxArgShards is the number of shards above which llvm-profdata reads its
// inputs from a file list instead of the command line.
const maxArgShards = 512

var (
	// ErrNoProfiles indicates that no shards were found for a target.
	ErrNoProfiles = errors.New("no profile files were found")
	// ErrMergeFailed indicates that the merge tool failed.
	ErrMergeFailed = errors.New("failed to merge profiles")
)

// Merged is a merged profile ready to be consumed by a build.
type Merged struct {
	// Target is the profile namespace the shards came from.
	Target string
	// Path is the absolute path of the merged profile.
	Path string
	// Hash is the hex BLAKE3 hash of the content. Empty for BOLT profiles.
	Hash string
	Size int64
	// Shards summarizes the merged inputs.
	Shards Stats
}

// Merger combines raw shards into a single profile per target.
type Merger struct {
	Logger *slog.Logger
	// Profdata is the path of llvm-profdata, used for PGO.
	Profdata string
	// MergeFdata is the path of merge-fdata, used for BOLT.
	MergeFdata string
	// TempDir holds profiles while they are written. Empty means
	// [os.TempDir].
	TempDir string
}

// MergePGO merges the .profraw shards in dir into
// dir/merged-<hash>.profdata.
//
// Merging identical shards twice yields the same file name. The merged file
// only appears in dir once it is complete.
func (m *Merger) MergePGO(ctx context.Context, dir, target string) (*Merged, error) {
	shards, stats, err := m.shards(dir, KindPGO)
	if err != nil {
		return nil, err
	}

	tmp, err := m.tempFile("cargo-pgo-*.profdata")
	if err != nil {
		return nil, err
	}

	args := []string{"merge", "-o", tmp}

	if len(shards) > maxArgShards {
		list, err := m.inputList(shards)
		if err != nil {
			removeQuietly(tmp)
			return nil, err
		}
		defer removeQuietly(list)

		args = append(args, "--input-files", list)
	} else {
		for _, s := range shards {
			args = append(args, s.Path)
		}
	}

	_, err = command.Run(ctx, command.Spec{
		Logger: m.logger(),
		Name:   m.Profdata,
		Args:   args,
	})
	if err != nil {
		removeQuietly(tmp)
		return nil, fmt.Errorf("%w: %w", ErrMergeFailed, err)
	}

	hash, err := HashFile(tmp)
	if err != nil {
		removeQuietly(tmp)
		return nil, err
	}

	dest := filepath.Join(dir, "merged-"+hash+".profdata")

	size, err := moveFile(tmp, dest)
	if err != nil {
		removeQuietly(tmp)
		return nil, err
	}

	m.logger().Info("merged PGO profiles", slog.String("path", dest))

	return &Merged{Target: target, Path: dest, Hash: hash, Size: size, Shards: stats}, nil
}

// MergeBOLT merges the .fdata shards in dir into dir/merged.profdata.
func (m *Merger) MergeBOLT(ctx context.Context, dir, target string) (*Merged, error) {
	shards, stats, err := m.shards(dir, KindBOLT)
	if err != nil {
		return nil, err
	}

	f, err := m.createTemp("cargo-pgo-*.fdata")
	if err != nil {
		return nil, err
	}

	tmp := f.Name()

	args := make([]string, 0, len(shards))
	for _, s := range shards {
		args = append(args, s.Path)
	}

	_, err = command.Run(ctx, command.Spec{
		Logger: m.logger(),
		Name:   m.MergeFdata,
		Args:   args,
		Stdout: f,
	})

	closeErr := f.Close()

	if err == nil && closeErr != nil {
		err = fmt.Errorf("write merged profile: %w", closeErr)
	}

	if err != nil {
		removeQuietly(tmp)
		return nil, fmt.Errorf("%w: %w", ErrMergeFailed, err)
	}

	dest := filepath.Join(dir, BOLTMergedName)

	size, err := moveFile(tmp, dest)
	if err != nil {
		removeQuietly(tmp)
		return nil, err
	}

	m.logger().Info("merged BOLT profiles", slog.String("path", dest))

	return &Merged{Target: target, Path: dest, Size: size, Shards: stats}, nil
}

// shards discovers and reports the shards of dir, failing when there are
// none.
func (m *Merger) shards(dir string, k Kind) ([]Shard, Stats, error) {
	shards, err := Discover(m.logger(), dir, k)
	if err != nil {
		return nil, Stats{}, err
	}

	if len(shards) == 0 {
		return nil, Stats{}, fmt.Errorf("%w at %s. Did you execute the instrumented binary?", ErrNoProfiles, dir)
	}

	stats := StatsOf(shards)

	m.logger().Info(fmt.Sprintf("found %s profiles", k),
		slog.Int("files", stats.Count),
		slog.String("size", stats.String()),
		slog.String("dir", dir),
	)

	return shards, stats, nil
}

func (m *Merger) inputList(shards []Shard) (string, error) {
	f, err := m.createTemp("cargo-pgo-inputs-*.txt")
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, s := range shards {
		sb.WriteString(s.Path)
		sb.WriteByte('\n')
	}

	_, err = io.WriteString(f, sb.String())
	closeErr := f.Close()

	err = errors.Join(err, closeErr)
	if err != nil {
		removeQuietly(f.Name())
		return "", fmt.Errorf("write input file list: %w", err)
	}

	return f.Name(), nil
}

func (m *Merger) tempFile(pattern string) (string, error) {
	f, err := m.createTemp(pattern)
	if err != nil {
		return "", err
	}

	err = f.Close()
	if err != nil {
		removeQuietly(f.Name())
		return "", fmt.Errorf("close temporary file: %w", err)
	}

	return f.Name(), nil
}

func (m *Merger) createTemp(pattern string) (*os.File, error) {
	f, err := os.CreateTemp(m.TempDir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temporary file: %w", err)
	}

	return f, nil
}

func (m *Merger) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}

	return slog.Default()
}

// HashFile returns the hex BLAKE3-256 hash of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // Path of a merged profile.
	if err != nil {
		return "", fmt.Errorf("open profile: %w", err)
	}
	defer f.Close() //nolint:errcheck // Read-only.

	h := blake3.New(32, nil)

	_, err = io.Copy(h, f)
	if err != nil {
		return "", fmt.Errorf("hash profile: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// moveFile moves src to dest and returns the size of dest. When src and
// dest are on different file systems, src is copied next to dest first so
// that dest is never observed partially written.
func moveFile(src, dest string) (int64, error) {
	err := os.Rename(src, dest)
	if err != nil {
		err = copyThenRename(src, dest)
		if err != nil {
			return 0, err
		}

		removeQuietly(src)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return 0, fmt.Errorf("stat merged profile: %w", err)
	}

	return info.Size(), nil
}

func copyThenRename(src, dest string) error {
	in, err := os.Open(src) //nolint:gosec // Temporary file created by cargo-pgo.
	if err != nil {
		return fmt.Errorf("move merged profile: %w", err)
	}
	defer in.Close() //nolint:errcheck // Read-only.

	out, err := os.CreateTemp(filepath.Dir(dest), ".tmp-"+filepath.Base(dest)+"-*")
	if err != nil {
		return fmt.Errorf("move merged profile: %w", err)
	}

	_, err = io.Copy(out, in)
	err = errors.Join(err, out.Close())

	if err == nil {
		err = os.Rename(out.Name(), dest)
	}

	if err != nil {
		removeQuietly(out.Name())
		return fmt.Errorf("move merged profile: %w", err)
	}

	return nil
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}
