package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
)

// Shard is a raw profile file written by one run of an instrumented program.
type Shard struct {
	Path string
	Size int64
}

// Stats summarizes a set of shards.
type Stats struct {
	Count int
	Bytes int64
}

// StatsOf returns the number and total size of shards.
func StatsOf(shards []Shard) Stats {
	s := Stats{Count: len(shards)}
	for _, sh := range shards {
		s.Bytes += sh.Size
	}

	return s
}

// String returns e.g. "3 files, 1.2 MiB".
func (s Stats) String() string {
	noun := "files"
	if s.Count == 1 {
		noun = "file"
	}

	return fmt.Sprintf("%d %s, %s", s.Count, noun, humanize.IBytes(uint64(max(s.Bytes, 0))))
}

// Discover recursively finds shards of kind k below dir, sorted by path.
//
// A missing dir yields no shards. Entries that cannot be read are skipped, and
// so are symbolic links, which are never followed.
func Discover(logger *slog.Logger, dir string, k Kind) ([]Shard, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("stat profile directory: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("profile path %s is not a directory", dir)
	}

	logger.Debug("locating profiles",
		slog.String("dir", dir),
		slog.String("extension", k.Extension()),
	)

	// Without WithFailOnIOErrors, unreadable directories are skipped.
	matches, err := doublestar.Glob(os.DirFS(dir), "**/*"+k.Extension(),
		doublestar.WithFilesOnly(), doublestar.WithNoFollow())
	if err != nil {
		return nil, fmt.Errorf("find %s profiles: %w", k, err)
	}

	slices.Sort(matches)

	shards := make([]Shard, 0, len(matches))
	for _, m := range matches {
		path := filepath.Join(dir, filepath.FromSlash(m))

		fi, err := os.Lstat(path)
		if err != nil {
			logger.Debug("skipping unreadable profile", slog.String("path", path), slog.Any("err", err))
			continue
		}

		if !fi.Mode().IsRegular() {
			logger.Debug("skipping profile that is not a regular file", slog.String("path", path))
			continue
		}

		shards = append(shards, Shard{Path: path, Size: fi.Size()})
	}

	return shards, nil
}
