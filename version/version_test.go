package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "v0.3.0 (revision abc, go1.25.0 linux/amd64)",
		format("v0.3.0", "abc", "go1.25.0", "linux/amd64"))
	assert.Equal(t, "devel (revision unknown, go1.25.0 darwin/arm64)",
		format("", "unknown", "go1.25.0", "darwin/arm64"))
}

func TestReadRevision(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		info *debug.BuildInfo
		want string
	}{
		"no build info": {
			want: "unknown",
		},
		"clean": {
			info: &debug.BuildInfo{Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "1a2b3c"},
				{Key: "vcs.modified", Value: "false"},
			}},
			want: "1a2b3c",
		},
		"dirty": {
			info: &debug.BuildInfo{Settings: []debug.BuildSetting{
				{Key: "vcs.modified", Value: "true"},
				{Key: "vcs.revision", Value: "1a2b3c"},
			}},
			want: "1a2b3c-dirty",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := readRevision(func() (*debug.BuildInfo, bool) {
				return tc.info, tc.info != nil
			})
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestModuleVersion(t *testing.T) {
	t.Parallel()

	read := func(v string) func() (*debug.BuildInfo, bool) {
		return func() (*debug.BuildInfo, bool) {
			return &debug.BuildInfo{Main: debug.Module{Version: v}}, true
		}
	}

	assert.Equal(t, "v1.2.3", moduleVersion(read("v1.2.3")))
	assert.Empty(t, moduleVersion(read("(devel)")))
}
