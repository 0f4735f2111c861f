package bklog_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blink-proto/blink/bklog"
)

func TestGetLevel(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input       string
		expected    slog.Level
		expectError bool
	}{
		"error level":    {input: "error", expected: slog.LevelError},
		"warn level":     {input: "warn", expected: slog.LevelWarn},
		"warning level":  {input: "warning", expected: slog.LevelWarn},
		"info level":     {input: "info", expected: slog.LevelInfo},
		"debug level":    {input: "debug", expected: slog.LevelDebug},
		"case insensitive": {input: "INFO", expected: slog.LevelInfo},
		"unknown level":  {input: "unknown", expectError: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			lvl, err := bklog.GetLevel(tc.input)
			if tc.expectError {
				require.Error(t, err)
				require.ErrorIs(t, err, bklog.ErrUnknownLogLevel)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, lvl)
		})
	}
}

func TestGetFormat(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input       string
		expected    bklog.Format
		expectError bool
	}{
		"json format":      {input: "json", expected: bklog.FormatJSON},
		"logfmt format":    {input: "logfmt", expected: bklog.FormatLogfmt},
		"case insensitive": {input: "JSON", expected: bklog.FormatJSON},
		"unknown format":   {input: "unknown", expectError: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f, err := bklog.GetFormat(tc.input)
			if tc.expectError {
				require.Error(t, err)
				require.ErrorIs(t, err, bklog.ErrUnknownLogFormat)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, f)
		})
	}
}

func TestCreateHandler(t *testing.T) {
	t.Parallel()

	t.Run("json handler", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer

		handler := bklog.CreateHandler(&buf, slog.LevelInfo, bklog.FormatJSON)
		require.NotNil(t, handler)

		logger := slog.New(handler)
		logger.Info("test message", slog.String("key", "value"))

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "test message", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("logfmt handler", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer

		handler := bklog.CreateHandler(&buf, slog.LevelInfo, bklog.FormatLogfmt)
		logger := slog.New(handler)
		logger.Info("test message", slog.String("key", "value"))

		out := buf.String()
		assert.Contains(t, out, "level=INFO")
		assert.Contains(t, out, "key=value")
	})
}

func TestCreateHandlerWithStrings(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer

		handler, err := bklog.CreateHandlerWithStrings(&buf, "info", "json")
		require.NoError(t, err)

		slog.New(handler).Info("hi")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "hi", entry["msg"])
	})

	t.Run("invalid level", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer

		_, err := bklog.CreateHandlerWithStrings(&buf, "bogus", "json")
		require.Error(t, err)
		assert.ErrorIs(t, err, bklog.ErrInvalidArgument)
	})

	t.Run("invalid format", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer

		_, err := bklog.CreateHandlerWithStrings(&buf, "info", "bogus")
		require.Error(t, err)
		assert.ErrorIs(t, err, bklog.ErrInvalidArgument)
	})
}

func TestLogLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	handler := bklog.CreateHandler(&buf, slog.LevelError, bklog.FormatJSON)
	logger := slog.New(handler)

	logger.Info("swallowed")
	assert.Empty(t, buf.String())

	logger.Error("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestRegisterCompletions(t *testing.T) {
	t.Parallel()

	cfg := bklog.NewConfig()

	cmd := &cobra.Command{Use: "test"}
	cfg.RegisterFlags(cmd.Flags())

	require.NoError(t, cfg.RegisterCompletions(cmd))

	tcs := map[string]struct {
		flag string
		want []string
	}{
		"log-level":  {flag: "log-level", want: bklog.GetAllLevelStrings()},
		"log-format": {flag: "log-format", want: bklog.GetAllFormatStrings()},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fn, ok := cmd.GetFlagCompletionFunc(tc.flag)
			require.True(t, ok)

			values, directive := fn(cmd, nil, "")
			assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
			assert.Equal(t, tc.want, values)
		})
	}
}

func TestConfigNewHandler(t *testing.T) {
	t.Parallel()

	cfg := bklog.NewConfig()
	cfg.Level = "debug"
	cfg.Format = "json"

	var buf bytes.Buffer

	handler, err := cfg.NewHandler(&buf)
	require.NoError(t, err)

	slog.New(handler).Debug("from config")
	assert.Contains(t, buf.String(), "from config")
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	// Discard must never panic and must produce no observable output.
	bklog.Discard.Error("should vanish", slog.String("k", "v"))
}
