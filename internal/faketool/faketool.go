// Package faketool writes stand-in executables for tests, so code that runs
// cargo, rustc or the LLVM tools can be exercised without a toolchain.
//
// Tests that execute fake tools should not call [testing.T.Parallel]: a
// concurrent fork can hold the script open for writing and make exec fail
// with ETXTBSY.
package faketool

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// Write creates an executable POSIX shell script named name in dir and
// returns its path. body is the script without the interpreter line.
func Write(t *testing.T, dir, name, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}

	path := filepath.Join(dir, name)

	err := os.MkdirAll(dir, 0o755)
	require.NoError(t, err)

	err = os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755) //nolint:gosec // Must be executable.
	require.NoError(t, err)

	return path
}

// Emit returns a script body that prints lines to stdout, one per line, and
// exits with code.
func Emit(code int, lines ...string) string {
	body := "cat <<'__EOF__'\n"
	for _, l := range lines {
		body += l + "\n"
	}

	body += "__EOF__\n"
	body += "exit " + strconv.Itoa(code)

	return body
}
