// Package config loads the optional cargo-pgo.yaml project file and merges
// it with command line flags.
//
// Precedence is: command line flag, then project file, then built-in
// default. The file is validated against a JSON Schema derived from [File]
// before any value is used, so unknown keys and wrong types are reported
// before cargo-pgo starts any process.
//
// Example file:
//
//	profiles-dir: /tmp/profiles
//	flags-channel: env
//	bolt:
//	  optimize-args: "-lite=0 -icf=1"
//	tools:
//	  llvm-bolt: /opt/llvm/bin/llvm-bolt
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"go.jacobcolvin.com/cargo-pgo/bolt"
	"go.jacobcolvin.com/cargo-pgo/cargo"
	"go.jacobcolvin.com/cargo-pgo/toolchain"
)

// FileName is the project file looked up when --config-file is not given.
const FileName = "cargo-pgo.yaml"

var (
	// ErrInvalidConfig indicates a project file that does not match the
	// schema.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrReadConfig indicates a project file that cannot be read.
	ErrReadConfig = errors.New("read configuration")
)

// File is the content of a project file.
type File struct {
	ProfilesDir  string `json:"profiles-dir,omitempty"  jsonschema:"directory holding pgo-profiles and bolt-profiles"`
	FlagsChannel string `json:"flags-channel,omitempty" jsonschema:"how compiler flags are passed to cargo"`
	Bolt         *Bolt  `json:"bolt,omitempty"`
	Tools        *Tools `json:"tools,omitempty"`
}

// Bolt holds llvm-bolt flag overrides. A null or missing key keeps the
// defaults; an empty string passes no flags at all.
type Bolt struct {
	InstrumentArgs *string `json:"instrument-args,omitempty" jsonschema:"replaces the default llvm-bolt instrumentation flags"`
	OptimizeArgs   *string `json:"optimize-args,omitempty"   jsonschema:"replaces the default llvm-bolt optimization flags"`
}

// Tools holds explicit tool paths.
type Tools struct {
	Cargo        string `json:"cargo,omitempty"`
	Rustc        string `json:"rustc,omitempty"`
	LLVMProfdata string `json:"llvm-profdata,omitempty"`
	LLVMBolt     string `json:"llvm-bolt,omitempty"`
	MergeFdata   string `json:"merge-fdata,omitempty"`
}

// Overrides returns the configured tool paths for [toolchain.Locator].
func (t *Tools) Overrides() map[toolchain.Tool]string {
	out := map[toolchain.Tool]string{}
	if t == nil {
		return out
	}

	for tool, path := range map[toolchain.Tool]string{
		toolchain.Cargo:      t.Cargo,
		toolchain.Rustc:      t.Rustc,
		toolchain.Profdata:   t.LLVMProfdata,
		toolchain.Bolt:       t.LLVMBolt,
		toolchain.MergeFdata: t.MergeFdata,
	} {
		if path != "" {
			out[tool] = path
		}
	}

	return out
}

// Settings are the effective settings after applying precedence.
type Settings struct {
	Tools       map[toolchain.Tool]string
	Bolt        bolt.Options
	ProfilesDir string
	Channel     cargo.Channel
	// Source is the project file the settings were read from, if any.
	Source string
}

// Schema returns the JSON Schema of [File].
func Schema() (*jsonschema.Schema, error) {
	s, err := jsonschema.For[File](nil)
	if err != nil {
		return nil, fmt.Errorf("generate schema: %w", err)
	}

	s.Title = "cargo-pgo project configuration"

	closeObjects(s)

	if p, ok := s.Properties["flags-channel"]; ok {
		p.Enum = make([]any, 0, len(cargo.Channels()))
		for _, ch := range cargo.Channels() {
			p.Enum = append(p.Enum, ch)
		}
	}

	return s, nil
}

// closeObjects rejects unknown keys in s and every nested object.
func closeObjects(s *jsonschema.Schema) {
	if len(s.Properties) == 0 {
		return
	}

	s.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}

	for _, p := range s.Properties {
		closeObjects(p)
	}
}

// Parse decodes and validates a project file. Empty input yields an empty
// [File].
func Parse(data []byte) (*File, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &File{}, nil
	}

	raw, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var instance any

	err = json.Unmarshal(raw, &instance)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if instance == nil {
		return &File{}, nil
	}

	schema, err := Schema()
	if err != nil {
		return nil, err
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}

	err = resolved.Validate(instance)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var f File

	err = json.Unmarshal(raw, &f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return &f, nil
}

// Find returns the nearest project file in dir or its parents, or an empty
// string when there is none.
func Find(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for d := abs; ; d = filepath.Dir(d) {
		p := filepath.Join(d, FileName)

		info, err := os.Stat(p)
		if err == nil && !info.IsDir() {
			return p
		}

		if filepath.Dir(d) == d {
			return ""
		}
	}
}

// Flags holds CLI flag names for project configuration.
type Flags struct {
	ConfigFile   string
	FlagsChannel string
}

// NewConfig creates a new [Config] embedding these flag names.
func (f Flags) NewConfig() *Config {
	return &Config{
		Flags: f,
	}
}

// Config holds the command line side of the project configuration.
//
// Create instances with [NewConfig] and register CLI flags with
// [Config.RegisterFlags].
type Config struct {
	Flags Flags

	// ConfigFile is an explicit project file path.
	ConfigFile string
	// FlagsChannel is the --flags-channel value.
	FlagsChannel string

	flags *pflag.FlagSet
}

// NewConfig creates a new [Config] with default flag names.
func NewConfig() *Config {
	f := Flags{
		ConfigFile:   "config-file",
		FlagsChannel: "flags-channel",
	}

	return f.NewConfig()
}

// RegisterFlags adds configuration flags to the given [*pflag.FlagSet].
func (c *Config) RegisterFlags(flags *pflag.FlagSet) {
	c.flags = flags

	flags.StringVar(&c.ConfigFile, c.Flags.ConfigFile, "",
		"project configuration file (default: nearest "+FileName+")")
	flags.StringVar(&c.FlagsChannel, c.Flags.FlagsChannel, string(cargo.ChannelAuto),
		fmt.Sprintf("how compiler flags reach cargo (%s)", strings.Join(cargo.Channels(), ", ")))
}

// RegisterCompletions registers shell completions for configuration flags
// on cmd.
func (c *Config) RegisterCompletions(cmd *cobra.Command) error {
	err := cmd.RegisterFlagCompletionFunc(c.Flags.ConfigFile,
		func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			return []string{"yaml", "yml"}, cobra.ShellCompDirectiveFilterFileExt
		})
	if err != nil {
		return fmt.Errorf("registering %s completion: %w", c.Flags.ConfigFile, err)
	}

	err = cmd.RegisterFlagCompletionFunc(c.Flags.FlagsChannel,
		func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			return cargo.Channels(), cobra.ShellCompDirectiveNoFileComp
		})
	if err != nil {
		return fmt.Errorf("registering %s completion: %w", c.Flags.FlagsChannel, err)
	}

	return nil
}

// Load reads the project file (explicit or found from dir) and applies
// command line overrides.
func (c *Config) Load(dir string) (*Settings, error) {
	path := c.ConfigFile
	if path == "" {
		path = Find(dir)
	}

	f := &File{}

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // User-provided configuration path.
		if errors.Is(err, fs.ErrNotExist) && c.ConfigFile == "" {
			data = nil
		} else if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReadConfig, err)
		}

		f, err = Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	channel := f.FlagsChannel
	if c.changed(c.Flags.FlagsChannel) || channel == "" {
		channel = c.FlagsChannel
	}

	ch, err := cargo.ParseChannel(channel)
	if err != nil {
		return nil, err
	}

	s := &Settings{
		Tools:       f.Tools.Overrides(),
		ProfilesDir: f.ProfilesDir,
		Channel:     ch,
		Source:      path,
	}

	if f.Bolt != nil {
		s.Bolt = bolt.Options{InstrumentArgs: f.Bolt.InstrumentArgs, OptimizeArgs: f.Bolt.OptimizeArgs}
	}

	// Relative to the file, not the working directory.
	if s.ProfilesDir != "" && path != "" && !filepath.IsAbs(s.ProfilesDir) {
		s.ProfilesDir = filepath.Join(filepath.Dir(path), s.ProfilesDir)
	}

	return s, nil
}

func (c *Config) changed(name string) bool {
	if c.flags == nil {
		return false
	}

	f := c.flags.Lookup(name)

	return f != nil && f.Changed
}
