package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"go.jacobcolvin.com/cargo-pgo/cargo"
	"go.jacobcolvin.com/cargo-pgo/config"
	"go.jacobcolvin.com/cargo-pgo/fdo"
	"go.jacobcolvin.com/cargo-pgo/log"
	"go.jacobcolvin.com/cargo-pgo/profile"
	"go.jacobcolvin.com/cargo-pgo/toolchain"
	"go.jacobcolvin.com/cargo-pgo/version"
)

const (
	flagWithPGO  = "with-pgo"
	flagBoltArgs = "bolt-args"
)

// app holds the configuration shared by all commands.
type app struct {
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	log     *log.Config
	profile *profile.Config
	project *config.Config

	withPGO  bool
	boltArgs string
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		log:     log.NewConfig(),
		profile: profile.NewConfig(),
		project: config.NewConfig(),
	}

	rootCmd := &cobra.Command{
		Use:   "cargo-pgo",
		Short: "Build Rust binaries with PGO and BOLT",
		Long: `cargo-pgo builds cargo projects with profile-guided optimization (PGO) and
the BOLT post-link optimizer.

Build instrumented binaries with "instrument", run them on a representative
workload, then rebuild with the gathered profiles using "optimize". The
"bolt" commands do the same with llvm-bolt, optionally on top of PGO.`,
		Version:       version.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	a.log.RegisterFlags(pf)
	a.profile.RegisterFlags(pf)
	a.project.RegisterFlags(pf)

	completionErr := errors.Join(
		a.log.RegisterCompletions(rootCmd),
		a.profile.RegisterCompletions(rootCmd),
		a.project.RegisterCompletions(rootCmd),
	)
	if completionErr != nil {
		fmt.Fprintf(stderr, "register completions: %v\n", completionErr)
	}

	rootCmd.AddCommand(
		a.infoCommand(),
		a.instrumentCommand(),
		a.optimizeCommand(),
		a.boltCommand(),
		a.cleanCommand(),
		a.configCommand(),
	)

	for _, c := range cargo.Commands() {
		rootCmd.AddCommand(a.shortcutCommand(c))
	}

	return rootCmd
}

func (a *app) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Check that the required tools are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orch, _, err := a.orchestrator()
			if err != nil {
				return err
			}

			return orch.Info(cmd.Context())
		},
	}
}

func (a *app) instrumentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instrument [build|test|run|bench] [cargo args...]",
		Short: "Build PGO-instrumented binaries",
		Long: `Build the project with PGO instrumentation. Running the produced binaries
writes .profraw profiles into <target-dir>/pgo-profiles/<target>. Existing
profiles are removed first unless --keep-profiles is given.`,
		DisableFlagParsing: true,
	}

	a.profile.RegisterInstrumentFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return a.runInstrument(cmd, args, "")
	}

	return cmd
}

// shortcutCommand returns "build", "test", "run" or "bench", which are
// short for "instrument <command>".
func (a *app) shortcutCommand(c cargo.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:                string(c) + " [cargo args...]",
		Short:              fmt.Sprintf("Run `cargo %s` with PGO instrumentation", c),
		DisableFlagParsing: true,
	}

	a.profile.RegisterInstrumentFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return a.runInstrument(cmd, args, c)
	}

	return cmd
}

func (a *app) runInstrument(cmd *cobra.Command, args []string, fixed cargo.Command) error {
	cargoArgs, help, err := splitFlags(cmd, args)
	if err != nil || help {
		return err
	}

	req, err := buildRequest(cargoArgs, fixed)
	if err != nil {
		return err
	}

	orch, _, err := a.orchestrator()
	if err != nil {
		return err
	}

	return orch.Instrument(cmd.Context(), fdo.InstrumentRequest{
		BuildRequest: req,
		KeepProfiles: a.profile.KeepProfiles,
	})
}

func (a *app) optimizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "optimize [build|test|run|bench] [cargo args...]",
		Short: "Build binaries optimized with the gathered PGO profiles",
		Long: `Merge the profiles gathered by instrumented runs and rebuild the project
with them. Functions that had no profile data are reported at the end.`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cargoArgs, help, err := splitFlags(cmd, args)
			if err != nil || help {
				return err
			}

			req, err := buildRequest(cargoArgs, "")
			if err != nil {
				return err
			}

			orch, _, err := a.orchestrator()
			if err != nil {
				return err
			}

			return orch.Optimize(cmd.Context(), fdo.OptimizeRequest{BuildRequest: req})
		},
	}
}

func (a *app) boltCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bolt",
		Short: "Optimize binaries with BOLT",
	}

	instrument := &cobra.Command{
		Use:   "build [cargo args...]",
		Short: "Build BOLT-instrumented binaries",
		Long: `Build the project and write a BOLT-instrumented copy of every executable
next to it, named <name>-bolt-instrumented. Running the copies writes .fdata
profiles into <target-dir>/bolt-profiles/<target>.`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBolt(cmd, args, false)
		},
	}

	optimize := &cobra.Command{
		Use:   "optimize [cargo args...]",
		Short: "Build binaries optimized with the gathered BOLT profiles",
		Long: `Build the project and write a BOLT-optimized copy of every executable next
to it, named <name>-bolt-optimized.`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBolt(cmd, args, true)
		},
	}

	for _, c := range []*cobra.Command{instrument, optimize} {
		c.Flags().BoolVar(&a.withPGO, flagWithPGO, false,
			"also apply the merged PGO profile")
		c.Flags().StringVar(&a.boltArgs, flagBoltArgs, "",
			`replace the default llvm-bolt flags (use "" for none)`)
	}

	cmd.AddCommand(instrument, optimize)

	return cmd
}

func (a *app) runBolt(cmd *cobra.Command, args []string, optimize bool) error {
	cargoArgs, help, err := splitFlags(cmd, args)
	if err != nil || help {
		return err
	}

	orch, settings, err := a.orchestrator()
	if err != nil {
		return err
	}

	req := fdo.BoltRequest{
		BuildRequest: fdo.BuildRequest{Command: cargo.CommandBuild, CargoArgs: cargoArgs},
		Bolt:         settings.Bolt,
		WithPGO:      a.withPGO,
	}

	if cmd.Flags().Changed(flagBoltArgs) {
		override := a.boltArgs
		if optimize {
			req.Bolt.OptimizeArgs = &override
		} else {
			req.Bolt.InstrumentArgs = &override
		}
	}

	if optimize {
		return orch.BoltOptimize(cmd.Context(), req)
	}

	return orch.BoltInstrument(cmd.Context(), req)
}

func (a *app) cleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:                "clean [cargo args...]",
		Short:              "Remove all PGO and BOLT profiles",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cargoArgs, help, err := splitFlags(cmd, args)
			if err != nil || help {
				return err
			}

			orch, _, err := a.orchestrator()
			if err != nil {
				return err
			}

			return orch.Clean(cmd.Context(), fdo.CleanRequest{CargoArgs: cargoArgs})
		},
	}
}

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the project configuration format",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of " + config.FileName,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := config.Schema()
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(s, "", "  ")
			if err != nil {
				return fmt.Errorf("encode schema: %w", err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", out)

			return err
		},
	})

	return cmd
}

// orchestrator applies the log, profile and project configuration.
func (a *app) orchestrator() (*fdo.Orchestrator, *config.Settings, error) {
	logger, err := a.log.Logger(a.stderr)
	if err != nil {
		return nil, nil, err
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("get working directory: %w", err)
	}

	settings, err := a.project.Load(wd)
	if err != nil {
		return nil, nil, err
	}

	if settings.Source != "" {
		logger.Debug("loaded project configuration", slog.String("path", settings.Source))
	}

	profilesDir := a.profile.ProfilesDir
	if profilesDir == "" {
		profilesDir = settings.ProfilesDir
	}

	environ := os.Environ()

	orch := &fdo.Orchestrator{
		Tools: &toolchain.Locator{
			Overrides: settings.Tools,
			Getenv:    toolchain.EnvLookup(environ),
			Logger:    logger,
		},
		Stdin:       a.stdin,
		Stdout:      a.stdout,
		Stderr:      a.stderr,
		Logger:      logger,
		WorkDir:     wd,
		ProfilesDir: profilesDir,
		Channel:     settings.Channel,
		Environ:     environ,
	}

	return orch, settings, nil
}

// buildRequest picks the cargo command from the first argument unless fixed
// is set. Without a command, `cargo build` is used.
func buildRequest(args []string, fixed cargo.Command) (fdo.BuildRequest, error) {
	if fixed != "" {
		return fdo.BuildRequest{Command: fixed, CargoArgs: args}, nil
	}

	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return fdo.BuildRequest{Command: cargo.CommandBuild, CargoArgs: args}, nil
	}

	c, err := cargo.ParseCommand(args[0])
	if err != nil {
		return fdo.BuildRequest{}, err
	}

	return fdo.BuildRequest{Command: c, CargoArgs: args[1:]}, nil
}

// splitFlags separates the flags cargo-pgo knows about from the arguments
// forwarded to cargo, for commands with flag parsing disabled. Everything
// from "--" onwards belongs to cargo. It reports whether help was requested
// and has been printed.
func splitFlags(cmd *cobra.Command, args []string) ([]string, bool, error) {
	// Merges the persistent flags of the parents into cmd.Flags().
	cmd.InheritedFlags()

	flags := cmd.Flags()

	var own, rest []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			rest = append(rest, args[i:]...)
			break
		}

		f, inline := lookupFlag(flags, arg)
		if f == nil {
			rest = append(rest, arg)
			continue
		}

		own = append(own, arg)

		if !inline && f.NoOptDefVal == "" && i+1 < len(args) {
			own = append(own, args[i+1])
			i++
		}
	}

	err := flags.Parse(own)
	if err != nil {
		return nil, false, err
	}

	help, err := flags.GetBool("help")
	if err == nil && help {
		return nil, true, cmd.Help()
	}

	return rest, false, nil
}

// lookupFlag returns the flag named by arg and whether arg carries its value
// inline ("--name=value").
func lookupFlag(flags *pflag.FlagSet, arg string) (*pflag.Flag, bool) {
	switch {
	case strings.HasPrefix(arg, "--"):
		name, _, inline := strings.Cut(arg[2:], "=")
		return flags.Lookup(name), inline

	case len(arg) == 2 && arg[0] == '-':
		return flags.ShorthandLookup(arg[1:]), false
	}

	return nil, false
}
