package profile

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Flags holds CLI flag names for profile storage configuration.
type Flags struct {
	ProfilesDir  string
	KeepProfiles string
}

// NewConfig creates a new [Config] embedding these flag names.
func (f Flags) NewConfig() *Config {
	return &Config{
		Flags: f,
	}
}

// Config holds profile storage configuration. A zero-value Config stores
// profiles in the cargo target directory and clears stale shards before
// instrumented builds.
//
// Create instances with [NewConfig] and register CLI flags with
// [Config.RegisterFlags].
type Config struct {
	Flags Flags

	// ProfilesDir overrides the profile root (empty = cargo target directory).
	ProfilesDir string
	// KeepProfiles keeps existing shards when instrumenting.
	KeepProfiles bool
}

// NewConfig creates a new [Config] with default flag names.
func NewConfig() *Config {
	f := Flags{
		ProfilesDir:  "profiles-dir",
		KeepProfiles: "keep-profiles",
	}

	return f.NewConfig()
}

// RegisterFlags adds the --profiles-dir flag to flags. It is meant for the
// persistent flags of the root command.
func (c *Config) RegisterFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.ProfilesDir, c.Flags.ProfilesDir, "",
		"directory holding pgo-profiles and bolt-profiles (default: cargo target directory)")
}

// RegisterInstrumentFlags adds the --keep-profiles flag to flags.
func (c *Config) RegisterInstrumentFlags(flags *pflag.FlagSet) {
	flags.BoolVar(&c.KeepProfiles, c.Flags.KeepProfiles, false,
		"do not remove profiles gathered by earlier instrumented runs")
}

// RegisterCompletions registers shell completions for profile flags on cmd.
func (c *Config) RegisterCompletions(cmd *cobra.Command) error {
	err := cmd.RegisterFlagCompletionFunc(c.Flags.ProfilesDir,
		func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveFilterDirs
		})
	if err != nil {
		return fmt.Errorf("registering %s completion: %w", c.Flags.ProfilesDir, err)
	}

	return nil
}
