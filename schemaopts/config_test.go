package schemaopts_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blink-proto/blink/schemaopts"
)

func TestDefaultsToPermissive(t *testing.T) {
	t.Parallel()

	cfg := schemaopts.NewConfig()
	rec := cfg.NewRecorder()

	assert.False(t, rec.Strict)
}

func TestRegisterFlagsSetsStrict(t *testing.T) {
	t.Parallel()

	cfg := schemaopts.NewConfig()

	cmd := &cobra.Command{Use: "test"}
	cfg.RegisterFlags(cmd.Flags())

	require.NoError(t, cmd.Flags().Set("strict", "true"))
	assert.True(t, cfg.NewRecorder().Strict)
}

func TestRegisterCompletions(t *testing.T) {
	t.Parallel()

	cfg := schemaopts.NewConfig()

	cmd := &cobra.Command{Use: "test"}
	cfg.RegisterFlags(cmd.Flags())

	require.NoError(t, cfg.RegisterCompletions(cmd))

	_, ok := cmd.GetFlagCompletionFunc("log-level")
	assert.True(t, ok)
}

func TestNewHandlerUsesLogConfig(t *testing.T) {
	t.Parallel()

	cfg := schemaopts.NewConfig()
	cfg.Log.Level = "debug"
	cfg.Log.Format = "json"

	var buf bytes.Buffer

	handler, err := cfg.NewHandler(&buf)
	require.NoError(t, err)

	slog.New(handler).Debug("from schemaopts")
	assert.Contains(t, buf.String(), "from schemaopts")
}
