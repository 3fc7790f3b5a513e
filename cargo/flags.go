package cargo

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	// EnvRustFlags is the space-separated compiler flags variable.
	EnvRustFlags = "RUSTFLAGS"
	// EnvEncodedRustFlags is the 0x1f-separated compiler flags variable.
	// Cargo prefers it over [EnvRustFlags] when both are set.
	EnvEncodedRustFlags = "CARGO_ENCODED_RUSTFLAGS"

	encodedSeparator = "\x1f"
)

// ErrConfigUnsupported is returned when the config channel is forced on a
// toolchain whose cargo has no --config flag.
var ErrConfigUnsupported = errors.New("cargo does not support --config")

// Channel selects how composed compiler flags reach cargo.
type Channel string

const (
	// ChannelAuto uses --config when cargo supports it and falls back to
	// the environment otherwise.
	ChannelAuto Channel = "auto"
	// ChannelEnv always passes flags through RUSTFLAGS.
	ChannelEnv Channel = "env"
	// ChannelConfig always passes flags through --config build.rustflags.
	ChannelConfig Channel = "config"
)

// Channels returns all accepted channel names.
func Channels() []string {
	return []string{string(ChannelAuto), string(ChannelEnv), string(ChannelConfig)}
}

// ParseChannel parses a channel name. The empty string means [ChannelAuto].
func ParseChannel(s string) (Channel, error) {
	if s == "" {
		return ChannelAuto, nil
	}

	if !slices.Contains(Channels(), s) {
		return "", fmt.Errorf("unknown flags channel %q, expected one of: %s",
			s, strings.Join(Channels(), ", "))
	}

	return Channel(s), nil
}

// Composer merges the compiler flags cargo-pgo needs into the user's own
// flags without replacing them.
type Composer struct {
	// Channel selects the delivery mechanism.
	Channel Channel
	// ConfigFlags are the rustflags found in cargo configuration files. They
	// are carried over when flags have to be delivered through RUSTFLAGS,
	// which would otherwise make cargo ignore them.
	ConfigFlags []string
	// SupportsConfig reports whether cargo accepts --config (1.63+).
	SupportsConfig bool
}

// Composition is the result of [Composer.Compose].
type Composition struct {
	// Env holds variables to set on the cargo process.
	Env map[string]string
	// Args holds cargo arguments that must precede the user's arguments.
	Args []string
}

// Compose returns how flags must be passed to cargo, given the current
// values of the flag variables in env. env is not modified.
//
// A variable the user already set is appended to, so their flags survive.
// Otherwise flags go through --config build.rustflags, which cargo merges
// with the arrays from configuration files.
func (c Composer) Compose(flags []string, env map[string]string) (Composition, error) {
	out := Composition{Env: map[string]string{}}

	if existing, ok := env[EnvEncodedRustFlags]; ok {
		out.Env[EnvEncodedRustFlags] = joinNonEmpty(encodedSeparator, existing, strings.Join(flags, encodedSeparator))
		return out, nil
	}

	if existing, ok := env[EnvRustFlags]; ok {
		out.Env[EnvRustFlags] = joinNonEmpty(" ", existing, strings.Join(flags, " "))
		return out, nil
	}

	channel := c.Channel
	if channel == "" {
		channel = ChannelAuto
	}

	useConfig := channel == ChannelConfig || (channel == ChannelAuto && c.SupportsConfig)
	if useConfig {
		if !c.SupportsConfig {
			return Composition{}, ErrConfigUnsupported
		}

		value, err := ConfigValue(flags)
		if err != nil {
			return Composition{}, err
		}

		out.Args = []string{"--config", value}

		return out, nil
	}

	all := make([]string, 0, len(c.ConfigFlags)+len(flags))
	all = append(all, c.ConfigFlags...)
	all = append(all, flags...)
	out.Env[EnvRustFlags] = strings.Join(all, " ")

	return out, nil
}

// ConfigValue renders flags as a cargo --config value for build.rustflags.
func ConfigValue(flags []string) (string, error) {
	if flags == nil {
		flags = []string{}
	}

	doc, err := toml.Marshal(struct {
		V []string `toml:"v"`
	}{V: flags})
	if err != nil {
		return "", fmt.Errorf("encode rustflags: %w", err)
	}

	array := strings.TrimSuffix(strings.TrimPrefix(string(doc), "v = "), "\n")

	return "build.rustflags=" + array, nil
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}

	return strings.Join(out, sep)
}
