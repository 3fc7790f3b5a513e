package fdo

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/iter"

	"go.jacobcolvin.com/cargo-pgo/console"
	"go.jacobcolvin.com/cargo-pgo/toolchain"
)

// ErrRequirementsNotMet is returned by [Orchestrator.Info] when a tool is
// missing or too old.
var ErrRequirementsNotMet = errors.New("some requirements are not satisfied")

type probe struct {
	err  error
	path string
	tool toolchain.Tool
}

// Info reports whether rustc is recent enough and where the LLVM tools are.
// Tools are probed concurrently; lines are printed in a fixed order.
func (o *Orchestrator) Info(ctx context.Context) error {
	p := console.New(o.Stdout)
	ok := true

	info, err := o.Tools.Rustc(ctx)
	switch {
	case err != nil:
		ok = false

		p.Missing("rustc", "cannot determine version: %v", err)
	case info.CheckMinimum() != nil:
		ok = false

		p.Missing("rustc", "%s is too old, at least %s is required",
			p.Accent(info.Release), p.Accent(toolchain.MinimumRustc[1:]))
	default:
		p.Found("rustc", "%s is recent enough (host %s)", p.Accent(info.Release), p.Accent(info.Host))
	}

	tools := []toolchain.Tool{toolchain.Profdata, toolchain.Bolt, toolchain.MergeFdata}

	probes := iter.Map(tools, func(t *toolchain.Tool) probe {
		path, err := o.Tools.Find(ctx, *t)
		return probe{tool: *t, path: path, err: err}
	})

	for _, pr := range probes {
		if pr.err != nil {
			ok = false

			p.Missing(string(pr.tool), "could not be found. %s", pr.tool.InstallHint())

			continue
		}

		p.Found(string(pr.tool), "found at %s", p.Path(pr.path))
	}

	if !ok {
		return fmt.Errorf("%w: see the report above", ErrRequirementsNotMet)
	}

	return nil
}
