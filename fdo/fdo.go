// Package fdo drives feedback-directed optimization of cargo projects.
//
// An [Orchestrator] sequences the other packages for each stage of the
// workflow:
//
//	Idle -> Instrumenting -> (user runs the workload) -> Optimizing -> Done
//
// with an optional BOLT track (BoltInstrumenting -> BoltOptimizing) that can
// start from a PGO-optimized build. Nothing is remembered between runs: each
// operation derives the profile layout from the cargo target directory (or
// the configured override) and scans the file system again.
package fdo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.jacobcolvin.com/cargo-pgo/cargo"
	"go.jacobcolvin.com/cargo-pgo/profile"
	"go.jacobcolvin.com/cargo-pgo/router"
	"go.jacobcolvin.com/cargo-pgo/toolchain"
)

// DefaultNamespace names the PGO profile directory when a build selects no
// single target and the workspace has no root package.
const DefaultNamespace = "workspace"

// Stage is a step of the optimization workflow.
type Stage string

const (
	StageInstrument     Stage = "PGO instrumentation"
	StageOptimize       Stage = "PGO optimized"
	StageBoltInstrument Stage = "BOLT instrumentation"
	StageBoltOptimize   Stage = "BOLT optimized"
)

// Orchestrator runs the optimization stages. Its fields are read only; one
// value may serve several operations.
type Orchestrator struct {
	// Tools resolves external programs.
	Tools *toolchain.Locator
	// Stdout receives relayed build output and reports.
	Stdout io.Writer
	// Stderr receives cargo's stderr.
	Stderr io.Writer
	// Stdin is passed to cargo, e.g. for `cargo run`.
	Stdin  io.Reader
	Logger *slog.Logger
	// WorkDir is where cargo runs. Empty means the current directory.
	WorkDir string
	// ProfilesDir overrides the profile root.
	ProfilesDir string
	// Channel selects how compiler flags reach cargo.
	Channel cargo.Channel
	// Environ is the environment snapshot passed to cargo. Nil means
	// [os.Environ]. RUSTFLAGS, CARGO_ENCODED_RUSTFLAGS and CARGO_HOME are
	// read from it, never from the process.
	Environ []string
	// TempDir holds merged profiles while they are written.
	TempDir string
}

// BuildRequest selects the cargo command and its arguments.
type BuildRequest struct {
	// Command defaults to [cargo.CommandBuild].
	Command cargo.Command
	// CargoArgs are passed to cargo after filtering with [cargo.ParseArgs].
	CargoArgs []string
}

// session holds what one operation learns about the project.
type session struct {
	rustc    *toolchain.RustcInfo
	metadata *cargo.Metadata
	mdErr    error
	env      map[string]string
	cargo    string
	workDir  string
	layout   profile.Layout
	args     cargo.Args
	command  cargo.Command
	mdLoaded bool
}

func (o *Orchestrator) prepare(ctx context.Context, req BuildRequest) (*session, error) {
	s := &session{
		command: req.Command,
		args:    cargo.ParseArgs(req.CargoArgs),
		env:     envMap(o.environ()),
	}

	if s.command == "" {
		s.command = cargo.CommandBuild
	}

	for _, flag := range s.args.Stripped {
		o.logger().Warn(fmt.Sprintf("%s is set by cargo-pgo and was removed from the cargo arguments", flag))
	}

	var err error

	s.workDir, err = o.workDir()
	if err != nil {
		return nil, err
	}

	s.cargo, err = o.Tools.Find(ctx, toolchain.Cargo)
	if err != nil {
		return nil, err
	}

	s.rustc, err = o.Tools.Rustc(ctx)
	if err != nil {
		return nil, err
	}

	err = s.rustc.CheckMinimum()
	if err != nil {
		return nil, err
	}

	s.layout, err = o.layout(ctx, s)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// layout derives the profile root from the override, --target-dir, or
// cargo metadata, in that order.
func (o *Orchestrator) layout(ctx context.Context, s *session) (profile.Layout, error) {
	if o.ProfilesDir != "" {
		return profile.NewLayout("", absFrom(s.workDir, o.ProfilesDir)), nil
	}

	if s.args.TargetDir != "" {
		return profile.NewLayout(absFrom(s.workDir, s.args.TargetDir), ""), nil
	}

	md, err := o.loadMetadata(ctx, s)
	if err != nil {
		return profile.Layout{}, err
	}

	return profile.NewLayout(md.TargetDirectory, ""), nil
}

func (o *Orchestrator) loadMetadata(ctx context.Context, s *session) (*cargo.Metadata, error) {
	if !s.mdLoaded {
		s.metadata, s.mdErr = cargo.LoadMetadata(ctx, o.logger(), s.cargo, s.workDir, s.args.ManifestPath, o.environ())
		s.mdLoaded = true
	}

	return s.metadata, s.mdErr
}

// namespace returns the PGO profile namespace of the build: the single
// selected target, else the root package, else [DefaultNamespace].
func (o *Orchestrator) namespace(ctx context.Context, s *session) string {
	if len(s.args.Selected) == 1 {
		return s.args.Selected[0]
	}

	md, err := o.loadMetadata(ctx, s)
	if err != nil {
		o.logger().Debug("cannot determine root package", slog.Any("err", err))
		return DefaultNamespace
	}

	if pkg, ok := md.RootPackage(); ok && len(s.args.Selected) == 0 {
		return pkg.Name
	}

	return DefaultNamespace
}

// triple is the target the build compiles for.
func (s *session) triple() string {
	if s.args.HasTarget {
		return s.args.Target
	}

	return s.rustc.Host
}

// compose merges flags into the user's compiler flags.
func (o *Orchestrator) compose(s *session, flags []string) (cargo.Composition, error) {
	c := cargo.Composer{
		Channel:        o.Channel,
		SupportsConfig: s.rustc.SupportsConfig(),
	}

	_, hasEncoded := s.env[cargo.EnvEncodedRustFlags]
	_, hasPlain := s.env[cargo.EnvRustFlags]

	viaEnv := c.Channel == cargo.ChannelEnv || (c.Channel != cargo.ChannelConfig && !c.SupportsConfig)
	if viaEnv && !hasEncoded && !hasPlain {
		configFlags, err := cargo.ConfigRustFlags(s.workDir, s.cargoHome(), s.triple())
		if err != nil {
			return cargo.Composition{}, err
		}

		c.ConfigFlags = configFlags
	}

	comp, err := c.Compose(flags, s.env)
	if err != nil {
		return cargo.Composition{}, err
	}

	o.logger().Debug("composed compiler flags",
		slog.Any("env", comp.Env),
		slog.Any("args", comp.Args),
	)

	return comp, nil
}

func (s *session) cargoHome() string {
	if home := s.env["CARGO_HOME"]; home != "" {
		return home
	}

	if home := s.env["HOME"]; home != "" {
		return filepath.Join(home, ".cargo")
	}

	return ""
}

// build runs cargo and routes its events through r. Every event is consumed
// before the exit status is checked.
func (o *Orchestrator) build(
	ctx context.Context,
	s *session,
	flags []string,
	r *router.Router,
) error {
	comp, err := o.compose(s, flags)
	if err != nil {
		return err
	}

	runner := &cargo.Runner{
		Stdin:   o.Stdin,
		Stderr:  o.Stderr,
		Logger:  o.logger(),
		Cargo:   s.cargo,
		Dir:     s.workDir,
		Environ: o.environ(),
	}

	b, err := runner.Start(ctx, cargo.Invocation{
		Composition:   comp,
		Command:       s.command,
		DefaultTarget: s.rustc.Host,
		Args:          s.args,
	})
	if err != nil {
		return err
	}

	routeErr := r.Drain(b)
	waitErr := b.Wait()

	r.Report()

	if routeErr != nil {
		return routeErr
	}

	return waitErr
}

// newRouter returns a router that relays output to o.Stdout and logs the
// end of the build for stage.
func (o *Orchestrator) newRouter(stage Stage, onArtifact func(cargo.Artifact) error) *router.Router {
	logger := o.logger()

	return &router.Router{
		Stdout:     o.Stdout,
		Logger:     logger,
		OnArtifact: onArtifact,
		OnFinished: func(success bool) {
			if success {
				logger.Info(fmt.Sprintf("%s build finished successfully", stage))
			} else {
				logger.Error(fmt.Sprintf("%s build has failed", stage))
			}
		},
	}
}

func (o *Orchestrator) workDir() (string, error) {
	if o.WorkDir != "" {
		return filepath.Abs(o.WorkDir)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	return wd, nil
}

func (o *Orchestrator) environ() []string {
	if o.Environ != nil {
		return o.Environ
	}

	return os.Environ()
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}

	return slog.Default()
}

func envMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k != "" {
			m[k] = v
		}
	}

	return m
}

func absFrom(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(base, path)
}

// capitalize upper-cases the first letter of an ASCII label.
func capitalize(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}
