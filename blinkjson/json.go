package blinkjson

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/blinktime"
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/schema"
	"github.com/blink-proto/blink/value"
)

// bigThreshold is the |value| boundary (1e15) at or above which u64/i64
// values serialize as quoted strings, and decimals (by mantissa) as an
// {"exponent":e,"mantissa":m} object, instead of JSON numbers, to stay
// inside the range JavaScript's float64 number type round-trips exactly.
const bigThreshold = 1_000_000_000_000_000

// Encode renders m, whose declared type is g, as one JSON message object.
func Encode(reg *registry.Registry, g *schema.GroupDef, m *value.Message, rec *blinkerr.Recorder) ([]byte, error) {
	var b strings.Builder

	if err := writeMessageObject(&b, reg, g, m, rec); err != nil {
		return nil, err
	}

	return []byte(b.String()), nil
}

// EncodeStream renders msgs as a JSON array of message objects, each
// declared by looking its type up in reg.
func EncodeStream(reg *registry.Registry, msgs []*value.Message, rec *blinkerr.Recorder) ([]byte, error) {
	var b strings.Builder

	b.WriteByte('[')

	for i, m := range msgs {
		if i > 0 {
			b.WriteByte(',')
		}

		g, err := reg.GetByName(schema.QName{Namespace: m.Type.Namespace, Name: m.Type.Name})
		if err != nil {
			return nil, err
		}

		if err := writeMessageObject(&b, reg, g, m, rec); err != nil {
			return nil, err
		}
	}

	b.WriteByte(']')

	return []byte(b.String()), nil
}

func writeMessageObject(b *strings.Builder, reg *registry.Registry, g *schema.GroupDef, m *value.Message, rec *blinkerr.Recorder) error {
	b.WriteByte('{')
	writeJSONString(b, "$type")
	b.WriteByte(':')
	writeJSONString(b, qnameString(g.Name.Namespace, g.Name.Name))

	for _, f := range g.Fields {
		fv, ok := m.Fields.Get(f.Name)
		if !ok {
			if !f.Optional {
				return blinkerr.New(blinkerr.KindValue, "missing required field %s.%s", g.Name, f.Name).InField(f.Name)
			}

			continue
		}

		if fv.Kind == value.KindAbsent {
			continue
		}

		b.WriteByte(',')
		writeJSONString(b, f.Name)
		b.WriteByte(':')

		if err := writeValue(b, reg, f.Type, fv, rec); err != nil {
			return blinkerr.WrapField(err, f.Name)
		}
	}

	if len(m.Extension) > 0 {
		b.WriteString(`,"$extension":[`)

		for i, ext := range m.Extension {
			if i > 0 {
				b.WriteByte(',')
			}

			extG, err := reg.GetByName(schema.QName{Namespace: ext.Type.Namespace, Name: ext.Type.Name})
			if err != nil {
				return err
			}

			if err := writeMessageObject(b, reg, extG, ext, rec); err != nil {
				return err
			}
		}

		b.WriteByte(']')
	}

	b.WriteByte('}')

	return nil
}

func qnameString(ns, name string) string {
	if ns == "" {
		return name
	}

	return ns + ":" + name
}

func writeJSONString(b *strings.Builder, s string) {
	out, _ := json.Marshal(s)
	b.Write(out)
}

func writeValue(b *strings.Builder, reg *registry.Registry, t schema.Type, v value.Value, rec *blinkerr.Recorder) error {
	switch t.Tag {
	case schema.TagPrimitive:
		return writePrimitive(b, t.Primitive, v)

	case schema.TagEnumRef:
		if t.Enum != nil {
			if sym, ok := t.Enum.SymbolByValue(int32(v.Int)); ok {
				writeJSONString(b, sym)
				return nil
			}
		}

		b.WriteString(strconv.FormatInt(v.Int, 10))

		return nil

	case schema.TagString:
		writeJSONString(b, v.Str)
		return nil

	case schema.TagBinary, schema.TagFixed:
		writeBinary(b, v.Bytes)
		return nil

	case schema.TagSequence:
		b.WriteByte('[')

		for i, elem := range v.Seq {
			if i > 0 {
				b.WriteByte(',')
			}

			if err := writeValue(b, reg, *t.Elem, elem, rec); err != nil {
				return err
			}
		}

		b.WriteByte(']')

		return nil

	case schema.TagStaticGroupRef:
		return writeStaticGroup(b, reg, t.Group, v.Static, rec)

	case schema.TagDynamicGroupRef, schema.TagObject:
		return writeDynamicGroup(b, reg, t, v.Msg, rec)

	default:
		return blinkerr.New(blinkerr.KindValue, "unencodable type tag %d", t.Tag)
	}
}

func writePrimitive(b *strings.Builder, p schema.Primitive, v value.Value) error {
	switch p {
	case schema.Bool:
		if v.Bool {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}

	case schema.U8, schema.U16, schema.U32:
		b.WriteString(strconv.FormatUint(v.Uint, 10))

	case schema.U64:
		if v.Uint < bigThreshold {
			b.WriteString(strconv.FormatUint(v.Uint, 10))
		} else {
			writeJSONString(b, strconv.FormatUint(v.Uint, 10))
		}

	case schema.I8, schema.I16, schema.I32:
		b.WriteString(strconv.FormatInt(v.Int, 10))

	case schema.I64:
		if abs64(v.Int) < bigThreshold {
			b.WriteString(strconv.FormatInt(v.Int, 10))
		} else {
			writeJSONString(b, strconv.FormatInt(v.Int, 10))
		}

	case schema.F64:
		switch {
		case math.IsNaN(v.Float):
			writeJSONString(b, "NaN")
		case math.IsInf(v.Float, 1):
			writeJSONString(b, "Inf")
		case math.IsInf(v.Float, -1):
			writeJSONString(b, "-Inf")
		default:
			b.WriteString(strconv.FormatFloat(v.Float, 'g', -1, 64))
		}

	case schema.Decimal:
		if abs64(v.Decimal.Mantissa) < bigThreshold {
			b.WriteString(decimalLiteral(v.Decimal.Mantissa, v.Decimal.Exponent))
		} else {
			fmt.Fprintf(b, `{"exponent":%d,"mantissa":%d}`, v.Decimal.Exponent, v.Decimal.Mantissa)
		}

	case schema.Date:
		writeJSONString(b, blinktime.FormatDate(int32(v.Int)))

	case schema.TimeOfDayMilli:
		writeJSONString(b, blinktime.FormatTimeOfDayMilli(uint32(v.Uint)))

	case schema.TimeOfDayNano:
		writeJSONString(b, blinktime.FormatTimeOfDayNano(v.Uint))

	case schema.MilliTime:
		writeJSONString(b, blinktime.FormatMilliTime(v.Int))

	case schema.NanoTime:
		writeJSONString(b, blinktime.FormatNanoTime(v.Int))

	default:
		return blinkerr.New(blinkerr.KindValue, "unencodable primitive %s", p)
	}

	return nil
}

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-(v + 1)) + 1
	}

	return uint64(v)
}

func writeBinary(b *strings.Builder, data []byte) {
	if utf8.Valid(data) {
		writeJSONString(b, string(data))
		return
	}

	b.WriteByte('[')

	for i, c := range data {
		if i > 0 {
			b.WriteByte(',')
		}

		fmt.Fprintf(b, `"%02x"`, c)
	}

	b.WriteByte(']')
}

func writeStaticGroup(b *strings.Builder, reg *registry.Registry, g *schema.GroupDef, sg *value.StaticGroupValue, rec *blinkerr.Recorder) error {
	b.WriteByte('{')

	first := true

	for _, f := range g.Fields {
		fv, ok := sg.Fields.Get(f.Name)
		if !ok {
			if !f.Optional {
				return blinkerr.New(blinkerr.KindValue, "missing required field %s.%s", g.Name, f.Name).InField(f.Name)
			}

			continue
		}

		if fv.Kind == value.KindAbsent {
			continue
		}

		if !first {
			b.WriteByte(',')
		}

		first = false

		writeJSONString(b, f.Name)
		b.WriteByte(':')

		if err := writeValue(b, reg, f.Type, fv, rec); err != nil {
			return blinkerr.WrapField(err, f.Name)
		}
	}

	b.WriteByte('}')

	return nil
}

func writeDynamicGroup(b *strings.Builder, reg *registry.Registry, t schema.Type, m *value.Message, rec *blinkerr.Recorder) error {
	g, err := reg.GetByName(schema.QName{Namespace: m.Type.Namespace, Name: m.Type.Name})
	if err != nil {
		return err
	}

	if t.Tag == schema.TagDynamicGroupRef && t.Group != nil && !g.IsDescendantOf(t.Group) {
		werr := blinkerr.New(blinkerr.KindWeak, "W15: %s is not %s or a descendant", g.Name, t.Group.Name)
		if e := rec.Weak(werr); e != nil {
			return e
		}
	}

	return writeMessageObject(b, reg, g, m, rec)
}

// decimalLiteral renders mantissa*10^exponent as a bare JSON number literal
// without an intermediate float64 conversion, so precision matches the
// decimal's own exponent exactly.
func decimalLiteral(mantissa int64, exponent int8) string {
	neg := mantissa < 0

	m := mantissa
	if neg {
		m = -m
	}

	digits := strconv.FormatInt(m, 10)

	var out string

	switch {
	case exponent >= 0:
		out = digits + strings.Repeat("0", int(exponent))
	default:
		frac := int(-exponent)
		if len(digits) <= frac {
			digits = strings.Repeat("0", frac-len(digits)+1) + digits
		}

		point := len(digits) - frac
		out = digits[:point] + "." + digits[point:]
	}

	if neg {
		out = "-" + out
	}

	return out
}
