package fdo

import (
	"context"
	"log/slog"

	"go.jacobcolvin.com/cargo-pgo/cargo"
	"go.jacobcolvin.com/cargo-pgo/toolchain"
)

// CleanRequest configures [Orchestrator.Clean].
type CleanRequest struct {
	// CargoArgs may carry --target-dir or --manifest-path to locate the
	// build directory.
	CargoArgs []string
}

// Clean removes all PGO and BOLT profiles. Missing directories are not an
// error.
func (o *Orchestrator) Clean(ctx context.Context, req CleanRequest) error {
	s := &session{
		args: cargo.ParseArgs(req.CargoArgs),
		env:  envMap(o.environ()),
	}

	var err error

	s.workDir, err = o.workDir()
	if err != nil {
		return err
	}

	if o.ProfilesDir == "" && s.args.TargetDir == "" {
		s.cargo, err = o.Tools.Find(ctx, toolchain.Cargo)
		if err != nil {
			return err
		}
	}

	layout, err := o.layout(ctx, s)
	if err != nil {
		return err
	}

	removed, err := layout.Clean()
	for _, dir := range removed {
		o.logger().Info("removed profiles", slog.String("path", dir))
	}

	if err != nil {
		return err
	}

	if len(removed) == 0 {
		o.logger().Info("no profiles to remove", slog.String("root", layout.Root))
	}

	return nil
}
