package cargo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"go.jacobcolvin.com/cargo-pgo/internal/command"
)

// Metadata is the subset of `cargo metadata` output used by cargo-pgo.
type Metadata struct {
	TargetDirectory string            `json:"target_directory"`
	WorkspaceRoot   string            `json:"workspace_root"`
	Packages        []MetadataPackage `json:"packages"`
}

// MetadataPackage is a workspace member.
type MetadataPackage struct {
	Name         string `json:"name"`
	ManifestPath string `json:"manifest_path"`
}

// RootPackage returns the package whose manifest lives in the workspace root,
// if there is one. Virtual workspaces have no root package.
func (m *Metadata) RootPackage() (MetadataPackage, bool) {
	root := filepath.Join(m.WorkspaceRoot, "Cargo.toml")
	for _, p := range m.Packages {
		if filepath.Clean(p.ManifestPath) == root {
			return p, true
		}
	}

	if len(m.Packages) == 1 {
		return m.Packages[0], true
	}

	return MetadataPackage{}, false
}

// LoadMetadata runs `cargo metadata` for the workspace containing dir, or
// for manifestPath when it is not empty.
func LoadMetadata(
	ctx context.Context,
	logger *slog.Logger,
	cargoPath, dir, manifestPath string,
	environ []string,
) (*Metadata, error) {
	args := []string{"metadata", "--format-version", "1", "--no-deps"}
	if manifestPath != "" {
		args = append(args, "--manifest-path", manifestPath)
	}

	out, err := command.Run(ctx, command.Spec{
		Logger: logger,
		Name:   cargoPath,
		Args:   args,
		Env:    environ,
		Dir:    dir,
	})
	if err != nil {
		return nil, fmt.Errorf("cargo metadata: %w", err)
	}

	var md Metadata

	err = json.Unmarshal([]byte(out.Stdout), &md)
	if err != nil {
		return nil, fmt.Errorf("decode cargo metadata: %w", err)
	}

	if md.TargetDirectory == "" {
		return nil, errors.New("cargo metadata: missing target_directory")
	}

	return &md, nil
}
