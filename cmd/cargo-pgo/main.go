// Command cargo-pgo builds Rust projects with profile-guided optimization
// (PGO) and BOLT.
//
// It is a cargo subcommand: cargo runs it as `cargo-pgo pgo <args>`, and the
// leading "pgo" is ignored. Arguments after the cargo command are forwarded
// to cargo.
//
// # Usage
//
//	cargo pgo info
//	cargo pgo instrument [build|test|run|bench] [cargo args...]
//	cargo pgo build|test|run|bench [cargo args...]
//	cargo pgo optimize [build|test|run|bench] [cargo args...]
//	cargo pgo bolt build [--with-pgo] [--bolt-args ARGS] [cargo args...]
//	cargo pgo bolt optimize [--with-pgo] [--bolt-args ARGS] [cargo args...]
//	cargo pgo clean
//	cargo pgo config schema
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "pgo" {
		args = args[1:]
	}

	rootCmd := newRootCommand(stdin, stdout, stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}
