// Package blinkerr defines the error taxonomy shared by every Blink codec
// and by the schema compiler and resolver.
//
// Errors fall into six kinds: ParseError, ResolveError, FramingError,
// ValueError, WeakError, and SchemaUpdateError. The first four and the last
// are always strong: they abort the enclosing call without side effects. A
// WeakError's severity is configurable by the caller's strict flag -- strict
// callers see it returned immediately, permissive callers see it recorded
// and recovered from.
//
// Every [Error] carries a locator: a byte offset for binary inputs, or a
// line/column pair for text inputs, plus an optional field path when the
// failure occurred while decoding a named field.
package blinkerr
