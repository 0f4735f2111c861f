package value

// Kind discriminates the [Value] sum type.
type Kind int

const (
	KindAbsent Kind = iota
	KindInt
	KindUint
	KindFloat
	KindBool
	KindString
	KindBytes
	KindDecimal
	KindSequence
	KindStatic
	KindMessage
)

// DecimalValue is a Blink decimal: mantissa * 10^exponent.
type DecimalValue struct {
	Exponent int8
	Mantissa int64
}

// Value is the closed runtime value union. Every codec pattern-matches on
// Kind; the fields not meaningful for the current Kind are zero.
type Value struct {
	Kind Kind

	Int   int64
	Uint  uint64
	Float float64
	Bool  bool
	Str   string
	Bytes []byte

	Decimal DecimalValue

	Seq []Value

	Static *StaticGroupValue

	Msg *Message
}

// Absent is the value of an optional field that is not present. The
// decoders never store it in a [Fields] map; the encoders treat a field
// set to Absent the same as a field that is missing.
var Absent = Value{Kind: KindAbsent}

func Int(v int64) Value                { return Value{Kind: KindInt, Int: v} }
func Uint(v uint64) Value               { return Value{Kind: KindUint, Uint: v} }
func Float(v float64) Value             { return Value{Kind: KindFloat, Float: v} }
func Bool(v bool) Value                 { return Value{Kind: KindBool, Bool: v} }
func String(v string) Value             { return Value{Kind: KindString, Str: v} }
func Bytes(v []byte) Value              { return Value{Kind: KindBytes, Bytes: v} }
func Decimal(v DecimalValue) Value      { return Value{Kind: KindDecimal, Decimal: v} }
func Sequence(v []Value) Value          { return Value{Kind: KindSequence, Seq: v} }
func Static(v *StaticGroupValue) Value  { return Value{Kind: KindStatic, Static: v} }
func Msg(v *Message) Value              { return Value{Kind: KindMessage, Msg: v} }

// StaticGroupValue is an embedded group value with no type id of its own:
// the containing field's declared type determines how it decodes.
type StaticGroupValue struct {
	Fields *Fields
}

// NewStaticGroupValue returns an empty StaticGroupValue.
func NewStaticGroupValue() *StaticGroupValue {
	return &StaticGroupValue{Fields: NewFields()}
}

// Message is a top-level or dynamically-referenced Blink value: it carries
// its own type and an extension block.
type Message struct {
	Type      QName
	Fields    *Fields
	Extension []*Message

	// UnknownType is set by a permissive decode that could not resolve
	// Type in the registry; Type is then the raw decoded QName (possibly
	// synthesized from a bare numeric type id) rather than a validated
	// reference.
	UnknownType bool
}

// NewMessage returns an empty Message of the given type.
func NewMessage(t QName) *Message {
	return &Message{Type: t, Fields: NewFields()}
}

// QName mirrors schema.QName. Runtime values carry their own copy rather
// than a schema.QName directly so that a Message stays plain data: it is
// never invalidated by a later ApplyUpdate on the registry it was decoded
// against.
type QName struct {
	Namespace string
	Name      string
}

func (q QName) String() string {
	if q.Namespace == "" {
		return q.Name
	}

	return q.Namespace + ":" + q.Name
}

// FromSchema converts a schema.QName-shaped pair into a value.QName. Codec
// packages call this at the registry boundary; it is a free function
// rather than a method on schema.QName to keep package schema free of any
// dependency on package value.
func FromSchema(namespace, name string) QName {
	return QName{Namespace: namespace, Name: name}
}
