package goldenfixture

import (
	"flag"
	"os"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/require"
)

// Update controls whether a caller should rewrite its fixture table with
// freshly computed output instead of asserting against the table's
// existing contents. Callers check this flag themselves before calling
// [Save], since only they know how to recompute a case's expected field.
var Update = flag.Bool("update-golden", false, "rewrite golden fixture tables with freshly computed output")

// Load reads a YAML sequence of fixture rows from path into a slice of T.
// It fails the test via t if the file is missing, malformed, or empty.
func Load[T any](t *testing.T, path string) []T {
	t.Helper()

	raw, err := os.ReadFile(path)
	require.NoError(t, err, "reading fixture table %s", path)

	var cases []T

	require.NoError(t, yaml.Unmarshal(raw, &cases), "parsing fixture table %s", path)
	require.NotEmpty(t, cases, "fixture table %s has no cases", path)

	return cases
}

// Save marshals cases back to path. Callers gate this behind [Update] so a
// normal test run only reads the table and a deliberate -update-golden run
// regenerates it.
func Save[T any](t *testing.T, path string, cases []T) {
	t.Helper()

	out, err := yaml.Marshal(cases)
	require.NoError(t, err, "marshaling fixture table for %s", path)

	require.NoError(t, os.WriteFile(path, out, 0o644), "writing fixture table %s", path)
}
