package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.jacobcolvin.com/cargo-pgo/cargo"
	"go.jacobcolvin.com/cargo-pgo/config"
	"go.jacobcolvin.com/cargo-pgo/fdo"
	"go.jacobcolvin.com/cargo-pgo/log"
	"go.jacobcolvin.com/cargo-pgo/profile"
)

func TestBuildRequest(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		fixed cargo.Command
		want  fdo.BuildRequest
		args  []string
		err   error
	}{
		"no args": {
			want: fdo.BuildRequest{Command: cargo.CommandBuild},
		},
		"explicit command": {
			args: []string{"bench", "--bench", "parse"},
			want: fdo.BuildRequest{Command: cargo.CommandBench, CargoArgs: []string{"--bench", "parse"}},
		},
		"flags only": {
			args: []string{"--bin", "app"},
			want: fdo.BuildRequest{Command: cargo.CommandBuild, CargoArgs: []string{"--bin", "app"}},
		},
		"fixed command": {
			fixed: cargo.CommandRun,
			args:  []string{"--", "input.txt"},
			want:  fdo.BuildRequest{Command: cargo.CommandRun, CargoArgs: []string{"--", "input.txt"}},
		},
		"unknown command": {
			args: []string{"check"},
			err:  cargo.ErrUnknownCommand,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := buildRequest(tc.args, tc.fixed)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSplitFlags(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		path     []string
		args     []string
		want     []string
		keep     bool
		withPGO  bool
		boltArgs string
	}{
		"cargo args pass through": {
			path: []string{"build"},
			args: []string{"--bin", "app", "--features", "simd"},
			want: []string{"--bin", "app", "--features", "simd"},
		},
		"own flags are removed": {
			path: []string{"instrument"},
			args: []string{"--keep-profiles", "test", "--log-level", "debug", "-p", "core"},
			want: []string{"test", "-p", "core"},
			keep: true,
		},
		"separator ends own flags": {
			path: []string{"run"},
			args: []string{"--release", "--", "--keep-profiles"},
			want: []string{"--release", "--", "--keep-profiles"},
		},
		"bolt args take hyphen values": {
			path:     []string{"bolt", "optimize"},
			args:     []string{"--with-pgo", "--bolt-args", "-lite=0 -icf=1", "--bin", "app"},
			want:     []string{"--bin", "app"},
			withPGO:  true,
			boltArgs: "-lite=0 -icf=1",
		},
		"inline value": {
			path:     []string{"bolt", "build"},
			args:     []string{"--bolt-args=", "--profiles-dir=/tmp/p"},
			want:     nil,
			boltArgs: "",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer

			root := newRootCommand(strings.NewReader(""), &out, &out)

			cmd, _, err := root.Find(tc.path)
			require.NoError(t, err)

			cmd.InitDefaultHelpFlag()

			got, help, err := splitFlags(cmd, tc.args)
			require.NoError(t, err)
			assert.False(t, help)
			assert.Equal(t, tc.want, got)

			keep, err := cmd.Flags().GetBool("keep-profiles")
			if err == nil {
				assert.Equal(t, tc.keep, keep)
			}

			if cmd.Flags().Lookup(flagBoltArgs) != nil {
				withPGO, err := cmd.Flags().GetBool(flagWithPGO)
				require.NoError(t, err)
				assert.Equal(t, tc.withPGO, withPGO)

				boltArgs, err := cmd.Flags().GetString(flagBoltArgs)
				require.NoError(t, err)
				assert.Equal(t, tc.boltArgs, boltArgs)
			}
		})
	}
}

func TestSplitFlagsHelp(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	root := newRootCommand(strings.NewReader(""), &out, &out)

	cmd, _, err := root.Find([]string{"optimize"})
	require.NoError(t, err)

	cmd.InitDefaultHelpFlag()

	_, help, err := splitFlags(cmd, []string{"--bin", "app", "--help"})
	require.NoError(t, err)
	assert.True(t, help)
	assert.Contains(t, out.String(), "optimize [build|test|run|bench]")
}

func TestRunConfigSchema(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	code := run([]string{"pgo", "config", "schema"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var doc map[string]any

	require.NoError(t, json.Unmarshal(stdout.Bytes(), &doc))
	assert.Equal(t, "cargo-pgo project configuration", doc["title"])
}

func TestRunVersion(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	code := run([]string{"--version"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "cargo-pgo version ")
	assert.Contains(t, stdout.String(), "revision")
}

func TestRunUnknownCommand(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	code := run([]string{"pgo", "instrument", "check"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Error: ")
}

//nolint:paralleltest // Sets the process environment.
func TestOrchestratorEnvironSnapshot(t *testing.T) {
	t.Setenv("CARGO", "/snapshot/cargo")
	t.Setenv(log.EnvLevel, "")
	t.Setenv(log.EnvFormat, "")

	a := &app{
		stderr:  &bytes.Buffer{},
		log:     log.NewConfig(),
		profile: profile.NewConfig(),
		project: config.NewConfig(),
	}

	flags := pflag.NewFlagSet("cargo-pgo", pflag.ContinueOnError)
	a.log.RegisterFlags(flags)
	a.profile.RegisterFlags(flags)
	a.project.RegisterFlags(flags)

	orch, _, err := a.orchestrator()
	require.NoError(t, err)

	t.Setenv("CARGO", "/later/cargo")

	assert.Contains(t, orch.Environ, "CARGO=/snapshot/cargo")
	assert.Equal(t, "/snapshot/cargo", orch.Tools.Getenv("CARGO"))
}
