// Package stringtest builds and splits multi-line strings in tests, such as
// relayed build output or argument lists written by fake tools.
package stringtest

import "strings"

// JoinLF joins lines with LF line endings. Pass a trailing "" to end the
// result with a newline.
//
// Example:
//
//	want := stringtest.JoinLF(
//		"[llvm-bolt]: found",
//		"[merge-fdata]: found",
//		"",
//	) // -> "[llvm-bolt]: found\n[merge-fdata]: found\n"
func JoinLF(lines ...string) string {
	return strings.Join(lines, "\n")
}

// Lines splits s into LF-terminated lines. A final newline does not yield an
// empty line, and an empty s yields no lines.
func Lines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}

	return strings.Split(s, "\n")
}
