package log_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.jacobcolvin.com/cargo-pgo/log"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input string
		want  log.Level
		err   bool
	}{
		"error":       {input: "error", want: log.LevelError},
		"warn":        {input: "warn", want: log.LevelWarn},
		"warning":     {input: "warning", want: log.LevelWarn},
		"upper case":  {input: "INFO", want: log.LevelInfo},
		"debug":       {input: "debug", want: log.LevelDebug},
		"trace":       {input: "trace", err: true},
		"empty input": {input: "", err: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := log.ParseLevel(tc.input)
			if tc.err {
				require.ErrorIs(t, err, log.ErrUnknownLogLevel)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for _, name := range log.GetAllFormatStrings() {
		got, err := log.ParseFormat(name)
		require.NoError(t, err)
		assert.Equal(t, log.Format(name), got)
	}

	got, err := log.ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, log.FormatJSON, got)

	_, err = log.ParseFormat("yaml")
	require.ErrorIs(t, err, log.ErrUnknownLogFormat)
}

func TestNewHandlerFormats(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		check  func(t *testing.T, out []byte)
		format log.Format
	}{
		"json": {
			format: log.FormatJSON,
			check: func(t *testing.T, out []byte) {
				t.Helper()

				var entry map[string]any

				require.NoError(t, json.Unmarshal(out, &entry))
				assert.Equal(t, "merged PGO profiles", entry["msg"])
				assert.Equal(t, "WARN", entry["level"])
				assert.Equal(t, "/tmp/merged.profdata", entry["path"])
			},
		},
		"logfmt": {
			format: log.FormatLogfmt,
			check: func(t *testing.T, out []byte) {
				t.Helper()

				assert.Contains(t, string(out), "level=WARN")
				assert.Contains(t, string(out), `msg="merged PGO profiles"`)
				assert.Contains(t, string(out), "path=/tmp/merged.profdata")
			},
		},
		"text": {
			format: log.FormatText,
			check: func(t *testing.T, out []byte) {
				t.Helper()

				assert.Contains(t, string(out), "WARN")
				assert.Contains(t, string(out), "merged PGO profiles")
				assert.Contains(t, string(out), "path=/tmp/merged.profdata")
			},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			logger := slog.New(log.NewHandler(&buf, log.LevelWarn, tc.format))
			logger.Info("not shown")
			logger.Warn("merged PGO profiles", slog.String("path", "/tmp/merged.profdata"))

			assert.NotContains(t, buf.String(), "not shown")
			tc.check(t, buf.Bytes())
		})
	}
}

func TestNewHandlerFromStrings(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	h, err := log.NewHandlerFromStrings(&buf, "debug", "json")
	require.NoError(t, err)

	slog.New(h).Debug("spawned command", slog.String("cmd", "cargo build"))
	assert.Contains(t, buf.String(), `"cmd":"cargo build"`)

	_, err = log.NewHandlerFromStrings(&buf, "loud", "json")
	require.ErrorIs(t, err, log.ErrInvalidArgument)

	_, err = log.NewHandlerFromStrings(&buf, "info", "xml")
	require.ErrorIs(t, err, log.ErrInvalidArgument)
}

func TestConfig(t *testing.T) {
	t.Parallel()

	cfg := log.NewConfig()
	cfg.Getenv = nil
	cmd := &cobra.Command{Use: "cargo-pgo"}
	cfg.RegisterFlags(cmd.PersistentFlags())
	require.NoError(t, cfg.RegisterCompletions(cmd))
	assert.Equal(t, "info", cfg.Level)

	require.NoError(t, cmd.PersistentFlags().Parse([]string{"--log-level", "error", "--log-format", "logfmt"}))
	assert.Equal(t, "error", cfg.Level)
	assert.Equal(t, "logfmt", cfg.Format)

	var buf bytes.Buffer

	logger, err := cfg.Logger(&buf)
	require.NoError(t, err)

	logger.Warn("dropped")
	logger.Error("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")

	for flag, want := range map[string][]string{
		"log-level":  log.GetAllLevelStrings(),
		"log-format": log.GetAllFormatStrings(),
	} {
		fn, ok := cmd.GetFlagCompletionFunc(flag)
		require.True(t, ok, flag)

		got, directive := fn(cmd, nil, "")
		assert.Equal(t, want, got)
		assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
	}
}

func TestConfigEnvDefaults(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		log.EnvLevel:  "debug",
		log.EnvFormat: " json ",
	}

	cfg := log.NewConfig()
	cfg.Getenv = func(key string) string { return env[key] }

	cmd := &cobra.Command{Use: "cargo-pgo"}
	cfg.RegisterFlags(cmd.PersistentFlags())
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "json", cfg.Format)

	require.NoError(t, cmd.PersistentFlags().Parse([]string{"--log-level", "warn"}))
	assert.Equal(t, "warn", cfg.Level)
	assert.Equal(t, "json", cfg.Format)

	cfg.Level = "loud"
	_, err := cfg.Logger(&bytes.Buffer{})
	require.ErrorIs(t, err, log.ErrInvalidArgument)
}
