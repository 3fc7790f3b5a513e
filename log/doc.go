// Package log builds [log/slog] handlers for cargo-pgo.
//
// Three output formats are supported: [FormatText] renders short, colored
// lines meant for a terminal, [FormatLogfmt] and [FormatJSON] are meant for
// CI logs and tooling. Severity levels are [LevelError], [LevelWarn],
// [LevelInfo] and [LevelDebug]; commands spawned by cargo-pgo are logged at
// debug level.
//
// Typical usage creates a [Config], registers flags, then builds a handler
// at startup:
//
//	cfg := log.NewConfig()
//	cfg.RegisterFlags(rootCmd.PersistentFlags())
//	cfg.RegisterCompletions(rootCmd)
//
//	handler, err := cfg.NewHandler(os.Stderr)
//	slog.SetDefault(slog.New(handler))
package log
