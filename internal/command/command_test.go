package command_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.jacobcolvin.com/cargo-pgo/internal/command"
	"go.jacobcolvin.com/cargo-pgo/internal/faketool"
)

func TestString(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		name string
		want string
		args []string
	}{
		"plain": {
			name: "llvm-profdata",
			args: []string{"merge", "-o", "/tmp/out.profdata"},
			want: "llvm-profdata merge -o /tmp/out.profdata",
		},
		"quoted": {
			name: "cargo",
			args: []string{"--config", "build.rustflags=['-Cx']", ""},
			want: `cargo --config "build.rustflags=['-Cx']" ""`,
		},
		"no args": {
			name: "rustc",
			want: "rustc",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, command.String(tc.name, tc.args))
		})
	}
}

//nolint:paralleltest // Executes fake tools.
func TestRun(t *testing.T) {
	dir := t.TempDir()
	tool := faketool.Write(t, dir, "tool", `printf '%s|' "$@"; printf 'warn' >&2`)

	out, err := command.Run(t.Context(), command.Spec{Name: tool, Args: []string{"a", "b c"}})
	require.NoError(t, err)
	assert.Equal(t, "a|b c|", out.Stdout)
	assert.Equal(t, "warn", out.Stderr)
	assert.Equal(t, 0, out.ExitCode)
}

//nolint:paralleltest // Executes fake tools.
func TestRunStdoutWriter(t *testing.T) {
	dir := t.TempDir()
	tool := faketool.Write(t, dir, "tool", `pwd`)

	var buf bytes.Buffer

	out, err := command.Run(t.Context(), command.Spec{Name: tool, Dir: dir, Stdout: &buf})
	require.NoError(t, err)
	assert.Empty(t, out.Stdout)

	got, err := filepath.EvalSymlinks(string(bytes.TrimSpace(buf.Bytes())))
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

//nolint:paralleltest // Executes fake tools.
func TestRunFailure(t *testing.T) {
	dir := t.TempDir()
	tool := faketool.Write(t, dir, "tool", "echo 'error: bad input' >&2\nexit 3")

	out, err := command.Run(t.Context(), command.Spec{Name: tool})
	require.ErrorIs(t, err, command.ErrFailed)
	assert.Contains(t, err.Error(), "exit code 3")
	assert.Contains(t, err.Error(), "error: bad input")
	assert.Equal(t, 3, out.ExitCode)
}

func TestRunMissing(t *testing.T) {
	t.Parallel()

	_, err := command.Run(t.Context(), command.Spec{Name: filepath.Join(t.TempDir(), "nope")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, command.ErrFailed)
}
