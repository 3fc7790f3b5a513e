package fdo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.jacobcolvin.com/cargo-pgo/bolt"
	"go.jacobcolvin.com/cargo-pgo/cargo"
	"go.jacobcolvin.com/cargo-pgo/profile"
	"go.jacobcolvin.com/cargo-pgo/toolchain"
)

// BoltRequest configures [Orchestrator.BoltInstrument] and
// [Orchestrator.BoltOptimize].
type BoltRequest struct {
	BuildRequest
	// Bolt overrides the llvm-bolt flags.
	Bolt bolt.Options
	// WithPGO also applies the merged PGO profile of the namespace.
	WithPGO bool
}

// boltLinkFlags keep relocations in the linked binary, which llvm-bolt
// needs to rewrite it.
func boltLinkFlags() []string {
	return []string{"-Clink-args=-Wl,-q"}
}

// BoltInstrument builds the project and writes a BOLT-instrumented sibling
// of every produced executable. Each executable's shard directory is
// cleared before its first rewrite.
func (o *Orchestrator) BoltInstrument(ctx context.Context, req BoltRequest) error {
	err := req.Bolt.Validate()
	if err != nil {
		return err
	}

	s, err := o.prepare(ctx, req.BuildRequest)
	if err != nil {
		return err
	}

	boltPath, err := o.Tools.Find(ctx, toolchain.Bolt)
	if err != nil {
		return err
	}

	flags, err := o.boltFlags(ctx, s, req.WithPGO)
	if err != nil {
		return err
	}

	logger := o.logger()
	rw := &bolt.Rewriter{Logger: logger, Bolt: boltPath, Options: req.Bolt}
	cleared := map[string]bool{}

	r := o.newRouter(StageBoltInstrument, func(a cargo.Artifact) error {
		dir, err := s.layout.TargetDir(profile.KindBOLT, a.Target)
		if err != nil {
			return err
		}

		if !cleared[dir] {
			_, err = s.layout.Reset(profile.KindBOLT, a.Target)
			if err != nil {
				return err
			}

			cleared[dir] = true
		}

		out, err := rw.Instrument(ctx, a.Executable, dir)
		if err != nil {
			return err
		}

		logger.Info(fmt.Sprintf("%s %s instrumented with BOLT", capitalize(a.Kind.String()), a.Target),
			slog.String("path", out),
			slog.String("profiles", dir),
		)

		return nil
	})

	err = o.build(ctx, s, flags, r)
	if err != nil {
		return err
	}

	logger.Info("run the instrumented binaries on a representative workload, then use `cargo pgo bolt optimize`")

	return nil
}

// BoltOptimize builds the project and writes a BOLT-optimized sibling of
// every produced executable, using the merged shards of the executable's
// target. Targets without shards are optimized without profile data.
func (o *Orchestrator) BoltOptimize(ctx context.Context, req BoltRequest) error {
	err := req.Bolt.Validate()
	if err != nil {
		return err
	}

	s, err := o.prepare(ctx, req.BuildRequest)
	if err != nil {
		return err
	}

	boltPath, err := o.Tools.Find(ctx, toolchain.Bolt)
	if err != nil {
		return err
	}

	mergeFdata, err := o.Tools.Find(ctx, toolchain.MergeFdata)
	if err != nil {
		return err
	}

	flags, err := o.boltFlags(ctx, s, req.WithPGO)
	if err != nil {
		return err
	}

	logger := o.logger()
	rw := &bolt.Rewriter{Logger: logger, Bolt: boltPath, Options: req.Bolt}
	m := &profile.Merger{Logger: logger, MergeFdata: mergeFdata, TempDir: o.TempDir}

	r := o.newRouter(StageBoltOptimize, func(a cargo.Artifact) error {
		dir, err := s.layout.TargetDir(profile.KindBOLT, a.Target)
		if err != nil {
			return err
		}

		var data string

		merged, err := m.MergeBOLT(ctx, dir, a.Target)
		switch {
		case errors.Is(err, profile.ErrNoProfiles):
			logger.Warn(fmt.Sprintf("no BOLT profiles found for %s, optimizing without profile data", a.Target),
				slog.String("dir", dir))
		case err != nil:
			return err
		default:
			data = merged.Path
		}

		out, err := rw.Optimize(ctx, a.Executable, data)
		if err != nil {
			return err
		}

		logger.Info(fmt.Sprintf("%s %s successfully optimized with BOLT", capitalize(a.Kind.String()), a.Target),
			slog.String("path", out))

		return nil
	})

	return o.build(ctx, s, flags, r)
}

// boltFlags returns the compiler flags of a BOLT build, merging the PGO
// profile first when withPGO is set.
func (o *Orchestrator) boltFlags(ctx context.Context, s *session, withPGO bool) ([]string, error) {
	flags := boltLinkFlags()
	if !withPGO {
		return flags, nil
	}

	merged, err := o.mergePGO(ctx, s)
	if err != nil {
		return nil, err
	}

	return append(flags, pgoUseFlags(merged.Path)...), nil
}
