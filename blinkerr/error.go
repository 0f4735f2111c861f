package blinkerr

import (
	"errors"
	"fmt"
)

// Kind classifies a Blink error. The set is closed: every codec and the
// schema compiler pattern-match over it rather than relying on dynamic
// dispatch.
type Kind int

const (
	// KindParse covers malformed .blink schema text.
	KindParse Kind = iota
	// KindResolve covers unknown references, inheritance cycles, duplicate
	// type ids, and nested sequences found while resolving a schema.
	KindResolve
	// KindFraming covers truncated buffers, frame-size mismatches, invalid
	// VLC terminators, and bad Native pointers.
	KindFraming
	// KindValue covers missing required fields, fixed-size mismatches, and
	// decimal mantissa overflow.
	KindValue
	// KindWeak covers recoverable decode anomalies whose severity depends
	// on the caller's strict flag: unknown type ids, invalid UTF-8,
	// out-of-range integers, unmapped enum values, and dynamic-group
	// base-type mismatches.
	KindWeak
	// KindSchemaUpdate covers a Dynamic Schema Exchange message that would
	// violate registry invariants.
	KindSchemaUpdate
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "ParseError"
	case KindResolve:
		return "ResolveError"
	case KindFraming:
		return "FramingError"
	case KindValue:
		return "ValueError"
	case KindWeak:
		return "WeakError"
	case KindSchemaUpdate:
		return "SchemaUpdateError"
	default:
		return "UnknownError"
	}
}

// Sentinels usable with errors.Is. Every [Error] unwraps to exactly one of
// these, keyed by its Kind.
var (
	ErrParse        = errors.New("blink: parse error")
	ErrResolve      = errors.New("blink: resolve error")
	ErrFraming      = errors.New("blink: framing error")
	ErrValue        = errors.New("blink: value error")
	ErrWeak         = errors.New("blink: weak error")
	ErrSchemaUpdate = errors.New("blink: schema update error")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindParse:
		return ErrParse
	case KindResolve:
		return ErrResolve
	case KindFraming:
		return ErrFraming
	case KindValue:
		return ErrValue
	case KindWeak:
		return ErrWeak
	case KindSchemaUpdate:
		return ErrSchemaUpdate
	default:
		return errors.New("blink: error")
	}
}

// Strong reports whether errors of this kind always abort the enclosing
// call. Only KindWeak is configurable by the strict/permissive flag.
func (k Kind) Strong() bool {
	return k != KindWeak
}

// Error is the concrete error type returned by every package in this
// module. It carries enough locator information to point a caller at the
// offending byte or schema token.
type Error struct {
	Kind      Kind
	Message   string
	Offset    *int64 // byte offset, for binary inputs
	Line, Col int     // 1-based; zero means "not a text input"
	FieldPath string  // dotted field path, when known
}

// New constructs an [Error] of the given kind and message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AtOffset returns a copy of e with a byte offset locator attached.
func (e *Error) AtOffset(off int64) *Error {
	c := *e
	c.Offset = &off
	return &c
}

// AtPos returns a copy of e with a line/column locator attached.
func (e *Error) AtPos(line, col int) *Error {
	c := *e
	c.Line, c.Col = line, col
	return &c
}

// InField returns a copy of e scoped to the given field path, nesting under
// any existing path.
func (e *Error) InField(name string) *Error {
	c := *e
	if c.FieldPath == "" {
		c.FieldPath = name
	} else {
		c.FieldPath = name + "." + c.FieldPath
	}
	return &c
}

// WrapField scopes err to the given field path if err is an *Error,
// nesting under any path it already carries. A non-*Error is returned
// unchanged, since it carries no field path to nest under.
func WrapField(err error, field string) error {
	if err == nil {
		return nil
	}

	var be *Error
	if errors.As(err, &be) {
		return be.InField(field)
	}

	return err
}

func (e *Error) Error() string {
	loc := ""
	switch {
	case e.Line > 0:
		loc = fmt.Sprintf(" at %d:%d", e.Line, e.Col)
	case e.Offset != nil:
		loc = fmt.Sprintf(" at offset %d", *e.Offset)
	}

	field := ""
	if e.FieldPath != "" {
		field = fmt.Sprintf(" (field %s)", e.FieldPath)
	}

	return fmt.Sprintf("%s: %s%s%s", e.Kind, e.Message, loc, field)
}

func (e *Error) Unwrap() error {
	return sentinelFor(e.Kind)
}

// Recorder accumulates WeakErrors encountered during a decode or encode.
// When Strict is set, Weak returns the first WeakError immediately instead
// of recording it.
type Recorder struct {
	Strict bool
	Errs   []*Error
}

// NewRecorder returns a Recorder for the given strictness.
func NewRecorder(strict bool) *Recorder {
	return &Recorder{Strict: strict}
}

// Weak reports a weak error. Under strict mode it is returned immediately
// for the caller to propagate; under permissive mode it is recorded and nil
// is returned so decoding can continue.
func (r *Recorder) Weak(err *Error) error {
	if r.Strict {
		return err
	}

	r.Errs = append(r.Errs, err)

	return nil
}

// HasErrors reports whether any weak error was recorded.
func (r *Recorder) HasErrors() bool {
	return len(r.Errs) > 0
}
