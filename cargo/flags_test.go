package cargo_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.jacobcolvin.com/cargo-pgo/cargo"
)

func TestCompose(t *testing.T) {
	t.Parallel()

	generate := []string{"-Cprofile-generate=/tmp/pgo"}

	tcs := map[string]struct {
		composer cargo.Composer
		env      map[string]string
		want     cargo.Composition
		err      error
	}{
		"appends to rustflags": {
			composer: cargo.Composer{SupportsConfig: true},
			env:      map[string]string{cargo.EnvRustFlags: "-Ctarget-cpu=native"},
			want: cargo.Composition{
				Env: map[string]string{
					cargo.EnvRustFlags: "-Ctarget-cpu=native -Cprofile-generate=/tmp/pgo",
				},
			},
		},
		"empty rustflags": {
			composer: cargo.Composer{SupportsConfig: true},
			env:      map[string]string{cargo.EnvRustFlags: ""},
			want: cargo.Composition{
				Env: map[string]string{cargo.EnvRustFlags: "-Cprofile-generate=/tmp/pgo"},
			},
		},
		"encoded rustflags take precedence": {
			composer: cargo.Composer{},
			env: map[string]string{
				cargo.EnvRustFlags:        "-Cignored",
				cargo.EnvEncodedRustFlags: "-Ctarget-cpu=native\x1f-Cdebuginfo=1",
			},
			want: cargo.Composition{
				Env: map[string]string{
					cargo.EnvEncodedRustFlags: "-Ctarget-cpu=native\x1f-Cdebuginfo=1\x1f-Cprofile-generate=/tmp/pgo",
				},
			},
		},
		"auto uses config": {
			composer: cargo.Composer{SupportsConfig: true},
			want: cargo.Composition{
				Env:  map[string]string{},
				Args: []string{"--config", "build.rustflags=['-Cprofile-generate=/tmp/pgo']"},
			},
		},
		"auto falls back to env": {
			composer: cargo.Composer{ConfigFlags: []string{"-Clink-arg=-fuse-ld=lld"}},
			want: cargo.Composition{
				Env: map[string]string{
					cargo.EnvRustFlags: "-Clink-arg=-fuse-ld=lld -Cprofile-generate=/tmp/pgo",
				},
			},
		},
		"forced env": {
			composer: cargo.Composer{Channel: cargo.ChannelEnv, SupportsConfig: true},
			want: cargo.Composition{
				Env: map[string]string{cargo.EnvRustFlags: "-Cprofile-generate=/tmp/pgo"},
			},
		},
		"forced config without support": {
			composer: cargo.Composer{Channel: cargo.ChannelConfig},
			err:      cargo.ErrConfigUnsupported,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := tc.composer.Compose(generate, tc.env)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestComposeDoesNotModifyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{cargo.EnvRustFlags: "-Ctarget-cpu=native"}

	_, err := cargo.Composer{}.Compose([]string{"-Cprofile-use=/tmp/a.profdata"}, env)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{cargo.EnvRustFlags: "-Ctarget-cpu=native"}, env)
}

func TestConfigValue(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		flags []string
		want  string
	}{
		"empty": {
			want: "build.rustflags=[]",
		},
		"several": {
			flags: []string{"-Cprofile-use=/a/b.profdata", "-Cllvm-args=-pgo-warn-missing-function"},
			want:  "build.rustflags=['-Cprofile-use=/a/b.profdata', '-Cllvm-args=-pgo-warn-missing-function']",
		},
		"single quote": {
			flags: []string{`-Cprofile-generate=/tmp/it's`},
			want:  `build.rustflags=["-Cprofile-generate=/tmp/it's"]`,
		},
		"backslash in basic string": {
			flags: []string{`C:\it's`},
			want:  `build.rustflags=["C:\\it's"]`,
		},
		"control characters": {
			flags: []string{"-Cllvm-args=a\x1bb\nc"},
			want:  `build.rustflags=["-Cllvm-args=a\u001Bb\nc"]`,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := cargo.ConfigValue(tc.flags)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseChannel(t *testing.T) {
	t.Parallel()

	ch, err := cargo.ParseChannel("")
	require.NoError(t, err)
	assert.Equal(t, cargo.ChannelAuto, ch)

	ch, err = cargo.ParseChannel("env")
	require.NoError(t, err)
	assert.Equal(t, cargo.ChannelEnv, ch)

	_, err = cargo.ParseChannel("file")
	require.Error(t, err)
}

func TestConfigRustFlags(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	project := filepath.Join(root, "project")
	home := filepath.Join(root, "home")

	writeFile(t, filepath.Join(root, ".cargo", "config.toml"), `
[build]
rustflags = "-Cdebuginfo=1"
`)
	writeFile(t, filepath.Join(project, ".cargo", "config.toml"), `
[build]
rustflags = ["-Ctarget-cpu=native"]
`)
	writeFile(t, filepath.Join(home, "config.toml"), `
[target.x86_64-unknown-linux-gnu]
rustflags = ["-Clink-arg=-fuse-ld=lld"]
`)

	flags, err := cargo.ConfigRustFlags(project, home, "aarch64-unknown-linux-gnu")
	require.NoError(t, err)
	assert.Equal(t, []string{"-Cdebuginfo=1", "-Ctarget-cpu=native"}, flags)

	flags, err = cargo.ConfigRustFlags(project, home, "x86_64-unknown-linux-gnu")
	require.NoError(t, err)
	assert.Equal(t, []string{"-Clink-arg=-fuse-ld=lld"}, flags)
}

func TestConfigRustFlagsInvalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".cargo", "config.toml"), "[build]\nrustflags = 3\n")

	_, err := cargo.ConfigRustFlags(dir, "", "x86_64-unknown-linux-gnu")
	require.ErrorContains(t, err, "build.rustflags")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
