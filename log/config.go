package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Environment variables that provide defaults for the log flags. Flags given
// on the command line take precedence.
const (
	EnvLevel  = "CARGO_PGO_LOG"
	EnvFormat = "CARGO_PGO_LOG_FORMAT"
)

// Flags names the CLI flags registered by [Config.RegisterFlags].
type Flags struct {
	Level  string
	Format string
}

// NewConfig creates a [Config] using these flag names.
func (f Flags) NewConfig() *Config {
	return &Config{Flags: f, Getenv: os.Getenv}
}

// Config holds the log level and format selected on the command line.
//
// Create instances with [NewConfig]. Flag defaults are read from [EnvLevel]
// and [EnvFormat] through Getenv when [Config.RegisterFlags] is called.
type Config struct {
	// Getenv looks up environment defaults. Nil disables them.
	Getenv func(string) string

	Level  string
	Format string
	Flags  Flags
}

// NewConfig returns a [Config] registering --log-level and --log-format.
func NewConfig() *Config {
	return Flags{Level: "log-level", Format: "log-format"}.NewConfig()
}

// RegisterFlags adds the log flags to flags.
func (c *Config) RegisterFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.Level, c.Flags.Level, c.fromEnv(EnvLevel, string(LevelInfo)),
		fmt.Sprintf("log level, one of: %s (env %s)",
			strings.Join(GetAllLevelStrings(), ", "), EnvLevel))
	flags.StringVar(&c.Format, c.Flags.Format, c.fromEnv(EnvFormat, string(FormatText)),
		fmt.Sprintf("log format, one of: %s (env %s)",
			strings.Join(GetAllFormatStrings(), ", "), EnvFormat))
}

func (c *Config) fromEnv(key, fallback string) string {
	if c.Getenv == nil {
		return fallback
	}

	if v := strings.TrimSpace(c.Getenv(key)); v != "" {
		return v
	}

	return fallback
}

// RegisterCompletions completes level and format names for the log flags.
func (c *Config) RegisterCompletions(cmd *cobra.Command) error {
	completions := map[string][]string{
		c.Flags.Level:  GetAllLevelStrings(),
		c.Flags.Format: GetAllFormatStrings(),
	}

	for name, values := range completions {
		err := cmd.RegisterFlagCompletionFunc(name,
			cobra.FixedCompletions(values, cobra.ShellCompDirectiveNoFileComp))
		if err != nil {
			return fmt.Errorf("register %s completion: %w", name, err)
		}
	}

	return nil
}

// NewHandler returns a handler writing to w with the configured level and
// format, see [NewHandlerFromStrings].
func (c *Config) NewHandler(w io.Writer) (slog.Handler, error) {
	return NewHandlerFromStrings(w, c.Level, c.Format)
}

// Logger is like [Config.NewHandler] but returns a ready [*slog.Logger].
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	h, err := c.NewHandler(w)
	if err != nil {
		return nil, err
	}

	return slog.New(h), nil
}
