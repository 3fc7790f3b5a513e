package console_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"go.jacobcolvin.com/cargo-pgo/console"
	"go.jacobcolvin.com/cargo-pgo/stringtest"
)

func TestPrinterPlain(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	p := console.New(&buf)
	p.Found("llvm-profdata", "found at %s", p.Path("/usr/bin/llvm-profdata"))
	p.Missing("llvm-bolt", "could not be found (%s)", "build LLVM with BOLT")

	assert.Equal(t, stringtest.JoinLF(
		"[llvm-profdata]: found at /usr/bin/llvm-profdata",
		"[llvm-bolt]: could not be found (build LLVM with BOLT)",
		"",
	), buf.String())
}

func TestPrinterColor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	p := console.NewWithColor(&buf, true)
	p.Found("rustc", "%s is recent enough", p.Accent("1.75.0"))

	out := buf.String()
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, out, "rustc")
	assert.Contains(t, out, "1.75.0")
}
