package blinkxml

import (
	"bytes"
	"encoding/hex"
	"encoding/xml"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/blinktime"
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/schema"
	"github.com/blink-proto/blink/value"
)

// Decode parses one XML message element. encoding/xml resolves xmlns
// declarations for us during decode, so start.Name.Space is already the
// Blink namespace URI (no prefix bookkeeping is needed on this side).
func Decode(reg *registry.Registry, data []byte, rec *blinkerr.Recorder) (*value.Message, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	start, err := nextStartElement(dec)
	if err != nil {
		return nil, blinkerr.New(blinkerr.KindParse, "invalid XML message: %s", err)
	}

	return decodeMessageElement(dec, reg, start, rec)
}

// DecodeStream parses the <stream> root element produced by EncodeStream.
func DecodeStream(reg *registry.Registry, data []byte, rec *blinkerr.Recorder) ([]*value.Message, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	if _, err := nextStartElement(dec); err != nil {
		return nil, blinkerr.New(blinkerr.KindParse, "invalid XML stream: %s", err)
	}

	var out []*value.Message

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}

		if err != nil {
			return nil, blinkerr.New(blinkerr.KindParse, "invalid XML stream: %s", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			m, err := decodeMessageElement(dec, reg, t, rec)
			if err != nil {
				return nil, err
			}

			out = append(out, m)

		case xml.EndElement:
			return out, nil
		}
	}
}

func nextStartElement(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, err
		}

		if se, ok := tok.(xml.StartElement); ok {
			return se, nil
		}
	}
}

func splitQName(s string) (ns, name string) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return "", s
	}

	return s[:idx], s[idx+1:]
}

func attrValue(start xml.StartElement, local string) string {
	for _, a := range start.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}

	return ""
}

func skipSubtree(dec *xml.Decoder) error {
	depth := 1

	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}

		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}

	return nil
}

// skipToEnd discards tokens (and any nested subtrees) up to and including
// the next EndElement at the current nesting depth.
func skipToEnd(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}

		switch tok.(type) {
		case xml.EndElement:
			return nil
		case xml.StartElement:
			if err := skipSubtree(dec); err != nil {
				return err
			}
		}
	}
}

func readElementText(dec *xml.Decoder) (string, error) {
	var b strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.EndElement:
			return b.String(), nil
		case xml.StartElement:
			if err := skipSubtree(dec); err != nil {
				return "", err
			}
		}
	}
}

func decodeMessageElement(dec *xml.Decoder, reg *registry.Registry, start xml.StartElement, rec *blinkerr.Recorder) (*value.Message, error) {
	ns, name := start.Name.Space, start.Name.Local

	g, err := reg.GetByName(schema.QName{Namespace: ns, Name: name})
	if err != nil {
		werr := blinkerr.New(blinkerr.KindWeak, "unknown type %s:%s", ns, name)
		if e := rec.Weak(werr); e != nil {
			return nil, e
		}

		if err := skipSubtree(dec); err != nil {
			return nil, blinkerr.New(blinkerr.KindParse, "%s", err)
		}

		return &value.Message{Type: value.FromSchema(ns, name), Fields: value.NewFields(), UnknownType: true}, nil
	}

	fields, extensions, err := decodeChildren(dec, reg, g, rec)
	if err != nil {
		return nil, err
	}

	return &value.Message{Type: value.FromSchema(ns, name), Fields: fields, Extension: extensions}, nil
}

func fieldByName(g *schema.GroupDef, local string) (schema.FieldDef, bool) {
	for _, f := range g.Fields {
		if f.Name == local {
			return f, true
		}
	}

	return schema.FieldDef{}, false
}

// decodeChildren reads child tokens of the element whose StartElement the
// caller already consumed, until the matching EndElement.
func decodeChildren(dec *xml.Decoder, reg *registry.Registry, g *schema.GroupDef, rec *blinkerr.Recorder) (*value.Fields, []*value.Message, error) {
	collected := map[string][]value.Value{}

	var extensions []*value.Message

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, blinkerr.New(blinkerr.KindParse, "%s", err)
		}

		switch t := tok.(type) {
		case xml.EndElement:
			fields, err := assembleFields(g, collected)
			if err != nil {
				return nil, nil, err
			}

			return fields, extensions, nil

		case xml.StartElement:
			if t.Name.Space == blinkNS && t.Name.Local == "extension" {
				inner, err := nextStartElement(dec)
				if err != nil {
					return nil, nil, blinkerr.New(blinkerr.KindParse, "%s", err)
				}

				ext, err := decodeMessageElement(dec, reg, inner, rec)
				if err != nil {
					return nil, nil, err
				}

				if err := skipToEnd(dec); err != nil {
					return nil, nil, blinkerr.New(blinkerr.KindParse, "%s", err)
				}

				if !ext.UnknownType {
					extensions = append(extensions, ext)
				}

				continue
			}

			fdef, ok := fieldByName(g, t.Name.Local)
			if !ok {
				if err := skipSubtree(dec); err != nil {
					return nil, nil, blinkerr.New(blinkerr.KindParse, "%s", err)
				}

				continue
			}

			elemType := fdef.Type
			if elemType.Tag == schema.TagSequence {
				elemType = *elemType.Elem
			}

			v, err := decodeFieldValue(dec, reg, elemType, t, rec)
			if err != nil {
				return nil, nil, blinkerr.WrapField(err, fdef.Name)
			}

			collected[fdef.Name] = append(collected[fdef.Name], v)
		}
	}
}

func assembleFields(g *schema.GroupDef, collected map[string][]value.Value) (*value.Fields, error) {
	fields := value.NewFields()

	for _, f := range g.Fields {
		vs, ok := collected[f.Name]
		if !ok {
			// An empty required sequence is written as no child elements.
			if f.Type.Tag == schema.TagSequence && !f.Optional {
				fields.Set(f.Name, value.Sequence(nil))
				continue
			}

			if !f.Optional {
				return nil, blinkerr.New(blinkerr.KindValue, "missing required field %s.%s", g.Name, f.Name).InField(f.Name)
			}

			continue
		}

		if f.Type.Tag == schema.TagSequence {
			fields.Set(f.Name, value.Sequence(vs))
		} else {
			fields.Set(f.Name, vs[0])
		}
	}

	return fields, nil
}

func decodeFieldValue(dec *xml.Decoder, reg *registry.Registry, t schema.Type, start xml.StartElement, rec *blinkerr.Recorder) (value.Value, error) {
	switch t.Tag {
	case schema.TagPrimitive:
		text, err := readElementText(dec)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindParse, "%s", err)
		}

		return parsePrimitiveText(t.Primitive, text, rec)

	case schema.TagEnumRef:
		text, err := readElementText(dec)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindParse, "%s", err)
		}

		if t.Enum != nil {
			if v, ok := t.Enum.ValueBySymbol(text); ok {
				return value.Int(int64(v)), nil
			}
		}

		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "unrecognized enum symbol %q", text)
		}

		if e := rec.Weak(blinkerr.New(blinkerr.KindWeak, "unmapped enum value %d", n)); e != nil {
			return value.Value{}, e
		}

		return value.Int(n), nil

	case schema.TagString:
		text, err := readElementText(dec)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindParse, "%s", err)
		}

		return value.String(text), nil

	case schema.TagBinary, schema.TagFixed:
		isHex := attrValue(start, "binary") == "yes"

		text, err := readElementText(dec)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindParse, "%s", err)
		}

		var b []byte

		if isHex {
			b, err = hex.DecodeString(strings.TrimSpace(strings.Join(strings.Fields(text), "")))
			if err != nil {
				return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid hex binary literal: %s", err)
			}
		} else {
			b = []byte(text)
		}

		if t.Tag == schema.TagFixed && uint64(len(b)) != t.FixedSize {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "fixed(%d) field given %d bytes", t.FixedSize, len(b))
		}

		return value.Bytes(b), nil

	case schema.TagStaticGroupRef:
		fields, _, err := decodeChildren(dec, reg, t.Group, rec)
		if err != nil {
			return value.Value{}, err
		}

		return value.Static(&value.StaticGroupValue{Fields: fields}), nil

	case schema.TagDynamicGroupRef, schema.TagObject:
		return decodeDynamicGroupField(dec, reg, t, start, rec)

	default:
		return value.Value{}, blinkerr.New(blinkerr.KindValue, "undecodable type tag %d", t.Tag)
	}
}

func decodeDynamicGroupField(dec *xml.Decoder, reg *registry.Registry, t schema.Type, start xml.StartElement, rec *blinkerr.Recorder) (value.Value, error) {
	typeAttr := attrValue(start, "type")
	if typeAttr == "" {
		return value.Value{}, blinkerr.New(blinkerr.KindParse, "dynamic group element %s missing type attribute", start.Name.Local)
	}

	ns, name := splitQName(typeAttr)

	concrete, err := reg.GetByName(schema.QName{Namespace: ns, Name: name})
	if err != nil {
		werr := blinkerr.New(blinkerr.KindWeak, "unknown type %s:%s", ns, name)
		if e := rec.Weak(werr); e != nil {
			return value.Value{}, e
		}

		if err := skipSubtree(dec); err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindParse, "%s", err)
		}

		return value.Msg(&value.Message{Type: value.FromSchema(ns, name), Fields: value.NewFields(), UnknownType: true}), nil
	}

	if t.Tag == schema.TagDynamicGroupRef && t.Group != nil && !concrete.IsDescendantOf(t.Group) {
		werr := blinkerr.New(blinkerr.KindWeak, "W15: %s is not %s or a descendant", concrete.Name, t.Group.Name)
		if e := rec.Weak(werr); e != nil {
			return value.Value{}, e
		}
	}

	fields, extensions, err := decodeChildren(dec, reg, concrete, rec)
	if err != nil {
		return value.Value{}, err
	}

	return value.Msg(&value.Message{Type: value.FromSchema(ns, name), Fields: fields, Extension: extensions}), nil
}

func parsePrimitiveText(p schema.Primitive, text string, rec *blinkerr.Recorder) (value.Value, error) {
	switch p {
	case schema.Bool:
		switch text {
		case "true":
			return value.Bool(true), nil
		case "false":
			return value.Bool(false), nil
		default:
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid bool literal %q", text)
		}

	case schema.U8, schema.U16, schema.U32, schema.U64:
		n, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid %s literal %q", p, text)
		}

		return value.Uint(n), nil

	case schema.I8, schema.I16, schema.I32, schema.I64:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid %s literal %q", p, text)
		}

		return value.Int(n), nil

	case schema.F64:
		switch text {
		case "NaN":
			return value.Float(math.NaN()), nil
		case "Inf":
			return value.Float(math.Inf(1)), nil
		case "-Inf":
			return value.Float(math.Inf(-1)), nil
		default:
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid f64 literal %q", text)
			}

			return value.Float(f), nil
		}

	case schema.Decimal:
		d, err := parseDecimalText(text)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid decimal literal %q", text)
		}

		return value.Decimal(d), nil

	case schema.Date:
		d, err := blinktime.ParseDate(text)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return value.Int(int64(d)), nil

	case schema.TimeOfDayMilli:
		ms, err := blinktime.ParseTimeOfDayMilli(text)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return value.Uint(uint64(ms)), nil

	case schema.TimeOfDayNano:
		ns, err := blinktime.ParseTimeOfDayNano(text)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return value.Uint(ns), nil

	case schema.MilliTime:
		ms, err := blinktime.ParseMilliTime(text)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return value.Int(ms), nil

	case schema.NanoTime:
		ns, err := blinktime.ParseNanoTime(text)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return value.Int(ns), nil

	default:
		return value.Value{}, blinkerr.New(blinkerr.KindValue, "undecodable primitive %s", p)
	}
}

func parseDecimalText(s string) (value.DecimalValue, error) {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	dot := strings.IndexByte(s, '.')

	var digits string

	exponent := 0

	if dot < 0 {
		digits = s
	} else {
		intPart, fracPart := s[:dot], s[dot+1:]
		digits = intPart + fracPart
		exponent = -len(fracPart)
	}

	mant, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return value.DecimalValue{}, err
	}

	if neg {
		mant = -mant
	}

	return value.DecimalValue{Exponent: int8(exponent), Mantissa: mant}, nil
}
