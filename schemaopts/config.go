package schemaopts

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/blink-proto/blink/bklog"
	"github.com/blink-proto/blink/blinkerr"
)

// Flags holds CLI flag names, allowing callers to customize them while
// keeping sensible defaults via [NewConfig].
type Flags struct {
	Log    bklog.Flags
	Strict string
}

// Config bundles a Blink embedder's usual CLI-configurable knobs: the
// logging configuration and strict/permissive decode mode.
//
// Create instances with [NewConfig], register flags with
// [Config.RegisterFlags], then build a [blinkerr.Recorder] per decode call
// with [Config.NewRecorder] and a logger with [Config.NewHandler].
type Config struct {
	Log    *bklog.Config
	Strict bool
	Flags  Flags
}

// NewConfig returns a Config with the standard flag names "log-level",
// "log-format", and "strict", defaulting to permissive decoding.
func NewConfig() *Config {
	return &Config{
		Log:    bklog.NewConfig(),
		Strict: false,
		Flags:  Flags{Log: bklog.Flags{Level: "log-level", Format: "log-format"}, Strict: "strict"},
	}
}

// RegisterFlags adds logging and strict-mode flags to flags.
func (c *Config) RegisterFlags(flags *pflag.FlagSet) {
	c.Log.RegisterFlags(flags)
	flags.BoolVar(&c.Strict, c.Flags.Strict, c.Strict,
		"fail decoding on the first recoverable anomaly instead of recording it and continuing")
}

// RegisterCompletions registers shell completions for the logging flags on
// cmd. Strict is a boolean flag and needs no completion function.
func (c *Config) RegisterCompletions(cmd *cobra.Command) error {
	if err := c.Log.RegisterCompletions(cmd); err != nil {
		return fmt.Errorf("registering schemaopts completions: %w", err)
	}

	return nil
}

// NewHandler builds a [slog.Handler] from the configured log level/format.
func (c *Config) NewHandler(w io.Writer) (slog.Handler, error) {
	return c.Log.NewHandler(w)
}

// NewRecorder builds a [blinkerr.Recorder] reflecting the configured
// strict/permissive mode.
func (c *Config) NewRecorder() *blinkerr.Recorder {
	return blinkerr.NewRecorder(c.Strict)
}
