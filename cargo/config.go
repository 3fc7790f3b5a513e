package cargo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// configFile is the subset of a cargo configuration file that affects
// compiler flags.
type configFile struct {
	Target map[string]configRustFlags `toml:"target"`
	Build  configRustFlags            `toml:"build"`
}

type configRustFlags struct {
	// RustFlags is either a string or an array of strings.
	RustFlags any `toml:"rustflags"`
}

// ConfigRustFlags returns the rustflags cargo would read from configuration
// files for triple, when neither [EnvRustFlags] nor [EnvEncodedRustFlags] is
// set.
//
// Files are searched the way cargo does: .cargo/config.toml (or the legacy
// .cargo/config) in dir and each of its parents, then in cargoHome. Arrays
// are joined with higher-precedence files last. target.<triple>.rustflags
// takes precedence over build.rustflags.
func ConfigRustFlags(dir, cargoHome, triple string) ([]string, error) {
	paths := configPaths(dir, cargoHome)

	var targetFlags, buildFlags []string

	for _, path := range paths {
		cfg, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}

		if t, ok := cfg.Target[triple]; ok {
			flags, err := flagList(t.RustFlags)
			if err != nil {
				return nil, fmt.Errorf("%s: target.%s.rustflags: %w", path, triple, err)
			}

			targetFlags = append(targetFlags, flags...)
		}

		flags, err := flagList(cfg.Build.RustFlags)
		if err != nil {
			return nil, fmt.Errorf("%s: build.rustflags: %w", path, err)
		}

		buildFlags = append(buildFlags, flags...)
	}

	if len(targetFlags) > 0 {
		return targetFlags, nil
	}

	return buildFlags, nil
}

// configPaths returns existing configuration files, lowest precedence first.
func configPaths(dir, cargoHome string) []string {
	var (
		paths []string
		seen  = map[string]bool{}
	)

	add := func(cargoDir string) {
		for _, name := range []string{"config.toml", "config"} {
			p := filepath.Join(cargoDir, name)

			info, err := os.Stat(p)
			if err != nil || info.IsDir() {
				continue
			}

			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}

			return
		}
	}

	// Innermost first, reversed below.
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err == nil {
			for d := abs; ; d = filepath.Dir(d) {
				add(filepath.Join(d, ".cargo"))

				if filepath.Dir(d) == d {
					break
				}
			}
		}
	}

	if cargoHome != "" {
		add(cargoHome)
	}

	slices.Reverse(paths)

	return paths
}

func readConfigFile(path string) (*configFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Cargo configuration path.
	if errors.Is(err, fs.ErrNotExist) {
		return &configFile{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read cargo config: %w", err)
	}

	var cfg configFile

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse cargo config %s: %w", path, err)
	}

	return &cfg, nil
}

func flagList(v any) ([]string, error) {
	switch flags := v.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.Fields(flags), nil
	case []any:
		out := make([]string, 0, len(flags))
		for _, f := range flags {
			s, ok := f.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", f)
			}

			out = append(out, s)
		}

		return out, nil
	}

	return nil, fmt.Errorf("expected string or array, got %T", v)
}
