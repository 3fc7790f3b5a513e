package fdo

import (
	"context"
	"fmt"
	"log/slog"

	"go.jacobcolvin.com/cargo-pgo/cargo"
	"go.jacobcolvin.com/cargo-pgo/profile"
	"go.jacobcolvin.com/cargo-pgo/toolchain"
)

// InstrumentRequest configures [Orchestrator.Instrument].
type InstrumentRequest struct {
	BuildRequest
	// KeepProfiles keeps shards of earlier runs instead of clearing the
	// profile directory first.
	KeepProfiles bool
}

// OptimizeRequest configures [Orchestrator.Optimize].
type OptimizeRequest struct {
	BuildRequest
}

// Instrument builds the project with PGO instrumentation. Running the
// produced binaries writes .profraw shards into the profile directory of
// the build's namespace.
func (o *Orchestrator) Instrument(ctx context.Context, req InstrumentRequest) error {
	s, err := o.prepare(ctx, req.BuildRequest)
	if err != nil {
		return err
	}

	ns := o.namespace(ctx, s)

	var dir string
	if req.KeepProfiles {
		dir, err = s.layout.Ensure(profile.KindPGO, ns)
	} else {
		dir, err = s.layout.Reset(profile.KindPGO, ns)
	}

	if err != nil {
		return err
	}

	logger := o.logger()
	logger.Info("PGO profile directory", slog.String("path", dir), slog.Bool("kept", req.KeepProfiles))

	r := o.newRouter(StageInstrument, func(a cargo.Artifact) error {
		logger.Info(fmt.Sprintf("%s %s built successfully", capitalize(a.Kind.String()), a.Target),
			slog.String("path", a.Executable))

		return nil
	})

	err = o.build(ctx, s, pgoGenerateFlags(dir), r)
	if err != nil {
		return err
	}

	logger.Info(fmt.Sprintf("run the instrumented binaries on a representative workload, then use `cargo pgo optimize %s`",
		s.command))

	return nil
}

// Optimize merges the namespace's PGO shards and rebuilds the project with
// the merged profile. It fails before starting cargo when there are no
// shards.
func (o *Orchestrator) Optimize(ctx context.Context, req OptimizeRequest) error {
	s, err := o.prepare(ctx, req.BuildRequest)
	if err != nil {
		return err
	}

	merged, err := o.mergePGO(ctx, s)
	if err != nil {
		return err
	}

	logger := o.logger()

	r := o.newRouter(StageOptimize, func(a cargo.Artifact) error {
		logger.Info(fmt.Sprintf("%s %s successfully optimized with PGO", capitalize(a.Kind.String()), a.Target),
			slog.String("path", a.Executable))

		return nil
	})

	return o.build(ctx, s, pgoUseFlags(merged.Path), r)
}

// mergePGO merges the shards of the session's namespace.
func (o *Orchestrator) mergePGO(ctx context.Context, s *session) (*profile.Merged, error) {
	ns := o.namespace(ctx, s)

	dir, err := s.layout.TargetDir(profile.KindPGO, ns)
	if err != nil {
		return nil, err
	}

	profdata, err := o.Tools.Find(ctx, toolchain.Profdata)
	if err != nil {
		return nil, err
	}

	m := &profile.Merger{
		Logger:   o.logger(),
		Profdata: profdata,
		TempDir:  o.TempDir,
	}

	return m.MergePGO(ctx, dir, ns)
}

func pgoGenerateFlags(dir string) []string {
	return []string{"-Cprofile-generate=" + dir}
}

func pgoUseFlags(path string) []string {
	return []string{
		"-Cprofile-use=" + path,
		"-Cllvm-args=-pgo-warn-missing-function",
	}
}
