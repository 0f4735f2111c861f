package blinkxml

import (
	"bytes"
	"encoding/hex"
	"encoding/xml"
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

// blinkNS is the fixed namespace URI for Blink's own extension-wrapper
// elements.
const blinkNS = "http://blinkprotocol.org/ns/blink"

const blinkPrefix = "blink"

// nsAllocator assigns a stable nsN prefix to each distinct Blink
// namespace the first time it is encountered in document order, so
// encoded output is deterministic. The matching xmlns attribute is written
// on every message element (and every blink:extension element) that uses
// the prefix, since a declaration is only in scope inside the element
// that carries it and sibling messages in a stream do not share one.
type nsAllocator struct {
	next     int
	assigned map[string]string
}

func newNSAllocator() *nsAllocator {
	return &nsAllocator{assigned: map[string]string{}}
}

func (a *nsAllocator) prefix(ns string) (string, *xml.Attr) {
	if ns == "" {
		return "", nil
	}

	if p, ok := a.assigned[ns]; ok {
		return p, &xml.Attr{Name: xml.Name{Local: "xmlns:" + p}, Value: ns}
	}

	p := fmt.Sprintf("ns%d", a.next)
	a.next++
	a.assigned[ns] = p

	return p, &xml.Attr{Name: xml.Name{Local: "xmlns:" + p}, Value: ns}
}

func (a *nsAllocator) blinkAttr() *xml.Attr {
	return &xml.Attr{Name: xml.Name{Local: "xmlns:" + blinkPrefix}, Value: blinkNS}
}

func elementName(prefix, local string) string {
	if prefix == "" {
		return local
	}

	return prefix + ":" + local
}

func qnameString(ns, name string) string {
	if ns == "" {
		return name
	}

	return ns + ":" + name
}

// Encode renders m, whose declared type is g, as one XML element.
func Encode(reg *registry.Registry, g *schema.GroupDef, m *value.Message, rec *blinkerr.Recorder) ([]byte, error) {
	var buf bytes.Buffer

	enc := xml.NewEncoder(&buf)
	alloc := newNSAllocator()

	if err := writeMessageElement(enc, alloc, reg, g, m, rec); err != nil {
		return nil, err
	}

	if err := enc.Flush(); err != nil {
		return nil, blinkerr.New(blinkerr.KindValue, "%s", err)
	}

	return buf.Bytes(), nil
}

// EncodeStream renders msgs as a single root <stream> element whose
// children are the message elements, in order.
func EncodeStream(reg *registry.Registry, msgs []*value.Message, rec *blinkerr.Recorder) ([]byte, error) {
	var buf bytes.Buffer

	enc := xml.NewEncoder(&buf)
	alloc := newNSAllocator()

	root := xml.StartElement{Name: xml.Name{Local: "stream"}}
	if err := enc.EncodeToken(root); err != nil {
		return nil, blinkerr.New(blinkerr.KindValue, "%s", err)
	}

	for _, m := range msgs {
		g, err := reg.GetByName(schema.QName{Namespace: m.Type.Namespace, Name: m.Type.Name})
		if err != nil {
			return nil, err
		}

		if err := writeMessageElement(enc, alloc, reg, g, m, rec); err != nil {
			return nil, err
		}
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, blinkerr.New(blinkerr.KindValue, "%s", err)
	}

	if err := enc.Flush(); err != nil {
		return nil, blinkerr.New(blinkerr.KindValue, "%s", err)
	}

	return buf.Bytes(), nil
}

func writeMessageElement(enc *xml.Encoder, alloc *nsAllocator, reg *registry.Registry, g *schema.GroupDef, m *value.Message, rec *blinkerr.Recorder) error {
	prefix, nsAttr := alloc.prefix(g.Name.Namespace)

	start := xml.StartElement{Name: xml.Name{Local: elementName(prefix, g.Name.Name)}}
	if nsAttr != nil {
		start.Attr = append(start.Attr, *nsAttr)
	}

	if err := enc.EncodeToken(start); err != nil {
		return blinkerr.New(blinkerr.KindValue, "%s", err)
	}

	if err := writeFields(enc, alloc, reg, g.Fields, m.Fields, rec); err != nil {
		return err
	}

	for _, ext := range m.Extension {
		if err := writeExtension(enc, alloc, reg, ext, rec); err != nil {
			return err
		}
	}

	if err := enc.EncodeToken(start.End()); err != nil {
		return blinkerr.New(blinkerr.KindValue, "%s", err)
	}

	return nil
}

func writeExtension(enc *xml.Encoder, alloc *nsAllocator, reg *registry.Registry, ext *value.Message, rec *blinkerr.Recorder) error {
	extG, err := reg.GetByName(schema.QName{Namespace: ext.Type.Namespace, Name: ext.Type.Name})
	if err != nil {
		return err
	}

	wrap := xml.StartElement{Name: xml.Name{Local: elementName(blinkPrefix, "extension")}}
	if attr := alloc.blinkAttr(); attr != nil {
		wrap.Attr = append(wrap.Attr, *attr)
	}

	if err := enc.EncodeToken(wrap); err != nil {
		return blinkerr.New(blinkerr.KindValue, "%s", err)
	}

	if err := writeMessageElement(enc, alloc, reg, extG, ext, rec); err != nil {
		return err
	}

	if err := enc.EncodeToken(wrap.End()); err != nil {
		return blinkerr.New(blinkerr.KindValue, "%s", err)
	}

	return nil
}

func writeFields(enc *xml.Encoder, alloc *nsAllocator, reg *registry.Registry, defs []schema.FieldDef, fv *value.Fields, rec *blinkerr.Recorder) error {
	for _, f := range defs {
		v, ok := fv.Get(f.Name)
		if !ok {
			if !f.Optional {
				return blinkerr.New(blinkerr.KindValue, "missing required field .%s", f.Name).InField(f.Name)
			}

			continue
		}

		if v.Kind == value.KindAbsent {
			continue
		}

		if f.Type.Tag == schema.TagSequence {
			for _, item := range v.Seq {
				if err := writeFieldElement(enc, alloc, reg, f.Name, *f.Type.Elem, item, rec); err != nil {
					return blinkerr.WrapField(err, f.Name)
				}
			}

			continue
		}

		if err := writeFieldElement(enc, alloc, reg, f.Name, f.Type, v, rec); err != nil {
			return blinkerr.WrapField(err, f.Name)
		}
	}

	return nil
}

func writeFieldElement(enc *xml.Encoder, alloc *nsAllocator, reg *registry.Registry, name string, t schema.Type, v value.Value, rec *blinkerr.Recorder) error {
	switch t.Tag {
	case schema.TagPrimitive:
		text, err := renderPrimitiveText(t.Primitive, v, rec)
		if err != nil {
			return err
		}

		return writeSimpleElement(enc, name, nil, text)

	case schema.TagEnumRef:
		text := strconv.FormatInt(v.Int, 10)

		if t.Enum != nil {
			if sym, ok := t.Enum.SymbolByValue(int32(v.Int)); ok {
				text = sym
			} else if e := rec.Weak(blinkerr.New(blinkerr.KindWeak, "unmapped enum value %d", v.Int)); e != nil {
				return e
			}
		}

		return writeSimpleElement(enc, name, nil, text)

	case schema.TagString:
		return writeSimpleElement(enc, name, nil, v.Str)

	case schema.TagBinary, schema.TagFixed:
		if utf8.Valid(v.Bytes) {
			return writeSimpleElement(enc, name, nil, string(v.Bytes))
		}

		attrs := []xml.Attr{{Name: xml.Name{Local: "binary"}, Value: "yes"}}

		return writeSimpleElement(enc, name, attrs, hex.EncodeToString(v.Bytes))

	case schema.TagStaticGroupRef:
		start := xml.StartElement{Name: xml.Name{Local: name}}
		if err := enc.EncodeToken(start); err != nil {
			return blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		if err := writeFields(enc, alloc, reg, t.Group.Fields, v.Static.Fields, rec); err != nil {
			return err
		}

		if err := enc.EncodeToken(start.End()); err != nil {
			return blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return nil

	case schema.TagDynamicGroupRef, schema.TagObject:
		return writeDynamicGroupField(enc, alloc, reg, name, t, v.Msg, rec)

	default:
		return blinkerr.New(blinkerr.KindValue, "unencodable type tag %d", t.Tag)
	}
}

func writeDynamicGroupField(enc *xml.Encoder, alloc *nsAllocator, reg *registry.Registry, name string, t schema.Type, m *value.Message, rec *blinkerr.Recorder) error {
	concrete, err := reg.GetByName(schema.QName{Namespace: m.Type.Namespace, Name: m.Type.Name})
	if err != nil {
		return err
	}

	if t.Tag == schema.TagDynamicGroupRef && t.Group != nil && !concrete.IsDescendantOf(t.Group) {
		werr := blinkerr.New(blinkerr.KindWeak, "W15: %s is not %s or a descendant", concrete.Name, t.Group.Name)
		if e := rec.Weak(werr); e != nil {
			return e
		}
	}

	start := xml.StartElement{
		Name: xml.Name{Local: name},
		Attr: []xml.Attr{{Name: xml.Name{Local: "type"}, Value: qnameString(concrete.Name.Namespace, concrete.Name.Name)}},
	}

	if err := enc.EncodeToken(start); err != nil {
		return blinkerr.New(blinkerr.KindValue, "%s", err)
	}

	if err := writeFields(enc, alloc, reg, concrete.Fields, m.Fields, rec); err != nil {
		return err
	}

	for _, ext := range m.Extension {
		if err := writeExtension(enc, alloc, reg, ext, rec); err != nil {
			return err
		}
	}

	if err := enc.EncodeToken(start.End()); err != nil {
		return blinkerr.New(blinkerr.KindValue, "%s", err)
	}

	return nil
}

func writeSimpleElement(enc *xml.Encoder, name string, attrs []xml.Attr, text string) error {
	start := xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs}

	if err := enc.EncodeToken(start); err != nil {
		return blinkerr.New(blinkerr.KindValue, "%s", err)
	}

	if text != "" {
		if err := enc.EncodeToken(xml.CharData([]byte(text))); err != nil {
			return blinkerr.New(blinkerr.KindValue, "%s", err)
		}
	}

	if err := enc.EncodeToken(start.End()); err != nil {
		return blinkerr.New(blinkerr.KindValue, "%s", err)
	}

	return nil
}

func renderPrimitiveText(p schema.Primitive, v value.Value, rec *blinkerr.Recorder) (string, error) {
	switch p {
	case schema.Bool:
		if v.Bool {
			return "true", nil
		}

		return "false", nil

	case schema.U8, schema.U16, schema.U32, schema.U64:
		return strconv.FormatUint(v.Uint, 10), nil

	case schema.I8, schema.I16, schema.I32, schema.I64:
		return strconv.FormatInt(v.Int, 10), nil

	case schema.F64:
		switch {
		case math.IsNaN(v.Float):
			return "NaN", nil
		case math.IsInf(v.Float, 1):
			return "Inf", nil
		case math.IsInf(v.Float, -1):
			return "-Inf", nil
		default:
			return strconv.FormatFloat(v.Float, 'g', -1, 64), nil
		}

	case schema.Decimal:
		return decimalText(v.Decimal.Mantissa, v.Decimal.Exponent), nil

	case schema.Date:
		return blinktime.FormatDate(int32(v.Int)), nil

	case schema.TimeOfDayMilli:
		return blinktime.FormatTimeOfDayMilli(uint32(v.Uint)), nil

	case schema.TimeOfDayNano:
		return blinktime.FormatTimeOfDayNano(v.Uint), nil

	case schema.MilliTime:
		return blinktime.FormatMilliTime(v.Int), nil

	case schema.NanoTime:
		return blinktime.FormatNanoTime(v.Int), nil

	default:
		return "", blinkerr.New(blinkerr.KindValue, "unencodable primitive %s", p)
	}
}

// decimalText renders mantissa*10^exponent as plain decimal text with no
// intermediate float64 conversion.
func decimalText(mantissa int64, exponent int8) string {
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
