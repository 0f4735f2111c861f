// Package registry indexes a resolved [schema.Schema] by qualified name and
// by numeric type id, and is the only mutable resource in the Blink core:
// the dynamic schema exchange component is the sole writer, via
// [Registry.ApplyUpdate]; every codec is a reader.
//
// A [Registry] follows a single-threaded mutation discipline: callers must
// serialize ApplyUpdate with any concurrent decode that reads the same
// Registry. Read-only lookups are safe to share across goroutines as long
// as no ApplyUpdate is in flight.
package registry
