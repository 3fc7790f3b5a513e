package cargo_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.jacobcolvin.com/cargo-pgo/cargo"
	"go.jacobcolvin.com/cargo-pgo/internal/faketool"
)

func TestRootPackage(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		md   cargo.Metadata
		want string
		ok   bool
	}{
		"root manifest": {
			md: cargo.Metadata{
				WorkspaceRoot: "/w",
				Packages: []cargo.MetadataPackage{
					{Name: "lib", ManifestPath: "/w/crates/lib/Cargo.toml"},
					{Name: "app", ManifestPath: "/w/Cargo.toml"},
				},
			},
			want: "app",
			ok:   true,
		},
		"single member of virtual workspace": {
			md: cargo.Metadata{
				WorkspaceRoot: "/w",
				Packages:      []cargo.MetadataPackage{{Name: "only", ManifestPath: "/w/only/Cargo.toml"}},
			},
			want: "only",
			ok:   true,
		},
		"virtual workspace": {
			md: cargo.Metadata{
				WorkspaceRoot: "/w",
				Packages: []cargo.MetadataPackage{
					{Name: "a", ManifestPath: "/w/a/Cargo.toml"},
					{Name: "b", ManifestPath: "/w/b/Cargo.toml"},
				},
			},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			pkg, ok := tc.md.RootPackage()
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, pkg.Name)
		})
	}
}

//nolint:paralleltest // Executes fake tools.
func TestLoadMetadata(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	fake := faketool.Write(t, dir, "cargo",
		`printf '%s\n' "$@" > `+argsFile+"\n"+
			faketool.Emit(0, `{"target_directory":"/w/target","workspace_root":"/w","packages":[]}`))

	md, err := cargo.LoadMetadata(t.Context(), nil, fake, dir, "/w/Cargo.toml", nil)
	require.NoError(t, err)
	assert.Equal(t, "/w/target", md.TargetDirectory)
	assert.Equal(t, "/w", md.WorkspaceRoot)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "metadata\n--format-version\n1\n--no-deps\n--manifest-path\n/w/Cargo.toml\n", string(args))
}

//nolint:paralleltest // Executes fake tools.
func TestLoadMetadataErrors(t *testing.T) {
	dir := t.TempDir()

	broken := faketool.Write(t, dir, "broken", faketool.Emit(0, "not json"))
	_, err := cargo.LoadMetadata(t.Context(), nil, broken, dir, "", nil)
	require.ErrorContains(t, err, "decode cargo metadata")

	empty := faketool.Write(t, dir, "empty", faketool.Emit(0, `{"workspace_root":"/w"}`))
	_, err = cargo.LoadMetadata(t.Context(), nil, empty, dir, "", nil)
	require.ErrorContains(t, err, "missing target_directory")

	failing := faketool.Write(t, dir, "failing", "echo 'error: could not find Cargo.toml' >&2\nexit 101")
	_, err = cargo.LoadMetadata(t.Context(), nil, failing, dir, "", nil)
	require.ErrorContains(t, err, "could not find Cargo.toml")
}
