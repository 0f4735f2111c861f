// Package tag implements Blink's Tag codec: the human-readable
// `@Namespace:Name|field=value|...` line format built on package registry
// and package value.
package tag

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/blinktime"
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/schema"
	"github.com/blink-proto/blink/value"
)

// Encode renders m, whose declared type is g, as one Tag line with no
// trailing newline.
func Encode(reg *registry.Registry, g *schema.GroupDef, m *value.Message, rec *blinkerr.Recorder) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "@%s", qnameString(g.Name.Namespace, g.Name.Name))

	for _, f := range g.Fields {
		fv, ok := m.Fields.Get(f.Name)
		if !ok {
			if !f.Optional {
				return "", blinkerr.New(blinkerr.KindValue, "missing required field %s.%s", g.Name, f.Name).InField(f.Name)
			}

			continue
		}

		if fv.Kind == value.KindAbsent {
			continue
		}

		rendered, err := renderValue(reg, f.Type, fv, rec)
		if err != nil {
			return "", blinkerr.WrapField(err, f.Name)
		}

		fmt.Fprintf(&b, "|%s=%s", f.Name, rendered)
	}

	if len(m.Extension) > 0 {
		parts := make([]string, 0, len(m.Extension))

		for _, ext := range m.Extension {
			extG, err := reg.GetByName(schema.QName{Namespace: ext.Type.Namespace, Name: ext.Type.Name})
			if err != nil {
				return "", err
			}

			rendered, err := Encode(reg, extG, ext, rec)
			if err != nil {
				return "", err
			}

			parts = append(parts, rendered)
		}

		fmt.Fprintf(&b, "|[%s]", strings.Join(parts, ";"))
	}

	return b.String(), nil
}

func qnameString(ns, name string) string {
	if ns == "" {
		return name
	}

	return ns + ":" + name
}

func renderValue(reg *registry.Registry, t schema.Type, v value.Value, rec *blinkerr.Recorder) (string, error) {
	switch t.Tag {
	case schema.TagPrimitive:
		return renderPrimitive(t.Primitive, v)

	case schema.TagEnumRef:
		if t.Enum != nil {
			if sym, ok := t.Enum.SymbolByValue(int32(v.Int)); ok {
				return sym, nil
			}
		}

		return strconv.FormatInt(v.Int, 10), nil

	case schema.TagString:
		return escape(v.Str), nil

	case schema.TagBinary, schema.TagFixed:
		return renderHexBrackets(v.Bytes), nil

	case schema.TagSequence:
		parts := make([]string, len(v.Seq))

		for i, elem := range v.Seq {
			rendered, err := renderValue(reg, *t.Elem, elem, rec)
			if err != nil {
				return "", err
			}

			parts[i] = rendered
		}

		return "[" + strings.Join(parts, ";") + "]", nil

	case schema.TagStaticGroupRef:
		return renderStaticGroup(reg, t.Group, v.Static, rec)

	case schema.TagDynamicGroupRef, schema.TagObject:
		return renderDynamicGroup(reg, t, v.Msg, rec)

	default:
		return "", blinkerr.New(blinkerr.KindValue, "unencodable type tag %d", t.Tag)
	}
}

func renderPrimitive(p schema.Primitive, v value.Value) (string, error) {
	switch p {
	case schema.Bool:
		if v.Bool {
			return "Y", nil
		}

		return "N", nil

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
		return fmt.Sprintf("%de%d", v.Decimal.Mantissa, v.Decimal.Exponent), nil

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

func renderHexBrackets(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02x", c)
	}

	return "[" + strings.Join(parts, " ") + "]"
}

func renderStaticGroup(reg *registry.Registry, g *schema.GroupDef, sg *value.StaticGroupValue, rec *blinkerr.Recorder) (string, error) {
	parts := make([]string, 0, len(g.Fields))

	for _, f := range g.Fields {
		fv, ok := sg.Fields.Get(f.Name)
		if !ok {
			if !f.Optional {
				return "", blinkerr.New(blinkerr.KindValue, "missing required field %s.%s", g.Name, f.Name).InField(f.Name)
			}

			continue
		}

		if fv.Kind == value.KindAbsent {
			continue
		}

		rendered, err := renderValue(reg, f.Type, fv, rec)
		if err != nil {
			return "", blinkerr.WrapField(err, f.Name)
		}

		parts = append(parts, fmt.Sprintf("%s=%s", f.Name, rendered))
	}

	return "{" + strings.Join(parts, ",") + "}", nil
}

func renderDynamicGroup(reg *registry.Registry, t schema.Type, m *value.Message, rec *blinkerr.Recorder) (string, error) {
	g, err := reg.GetByName(schema.QName{Namespace: m.Type.Namespace, Name: m.Type.Name})
	if err != nil {
		return "", err
	}

	if t.Tag == schema.TagDynamicGroupRef && t.Group != nil && !g.IsDescendantOf(t.Group) {
		werr := blinkerr.New(blinkerr.KindWeak, "W15: %s is not %s or a descendant", g.Name, t.Group.Name)
		if e := rec.Weak(werr); e != nil {
			return "", e
		}
	}

	body, err := renderStaticGroup(reg, g, &value.StaticGroupValue{Fields: m.Fields}, rec)
	if err != nil {
		return "", err
	}

	return "@" + qnameString(m.Type.Namespace, m.Type.Name) + body, nil
}
