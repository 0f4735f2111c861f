// Package schemaopts provides reusable [github.com/spf13/pflag]/
// [github.com/spf13/cobra]-registerable configuration for embedding Blink in
// a CLI tool: log level/format (delegated to [github.com/blink-proto/blink/bklog])
// plus strict/permissive decode mode.
//
// This package builds configuration, not a CLI binary; wiring it into an
// actual command-line front end is left to the embedder, per SPEC_FULL.md's
// Non-goals.
package schemaopts
