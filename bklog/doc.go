// Package bklog provides structured logging handler construction for use
// with [log/slog].
//
// It supports two output formats ([FormatJSON] and [FormatLogfmt]) and four
// severity levels ([slog.LevelDebug] through [slog.LevelError]). Use
// [CreateHandler] to build a handler directly, or use [Config] for CLI flag
// integration via [github.com/spf13/pflag] and shell completion support via
// [github.com/spf13/cobra]:
//
//	cfg := bklog.NewConfig()
//	cfg.RegisterFlags(rootCmd.PersistentFlags())
//	cfg.RegisterCompletions(rootCmd)
//
//	handler, err := cfg.NewHandler(os.Stderr)
//	slog.SetDefault(slog.New(handler))
//
// The registry and dynschema packages never hold a package-global logger;
// callers pass a *slog.Logger into the call sites that want to log, and an
// untouched nil logger means "do not log" (see [Discard]).
package bklog
