package tag

import (
	"math"
	"strconv"
	"strings"

	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/blinktime"
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/schema"
	"github.com/blink-proto/blink/value"
)

// Decode parses one Tag line into a Message.
func Decode(reg *registry.Registry, line string, rec *blinkerr.Recorder) (*value.Message, error) {
	line = strings.TrimRight(line, "\r\n")

	if !strings.HasPrefix(line, "@") {
		return nil, blinkerr.New(blinkerr.KindParse, "tag line does not start with @: %q", line)
	}

	segments := splitTopLevel(line[1:], '|')
	if len(segments) == 0 {
		return nil, blinkerr.New(blinkerr.KindParse, "empty tag line")
	}

	ns, name, err := splitQName(segments[0])
	if err != nil {
		return nil, err
	}

	g, err := reg.GetByName(schema.QName{Namespace: ns, Name: name})
	if err != nil {
		werr := blinkerr.New(blinkerr.KindWeak, "unknown type %s:%s", ns, name)
		if e := rec.Weak(werr); e != nil {
			return nil, e
		}

		return &value.Message{Type: value.FromSchema(ns, name), Fields: value.NewFields(), UnknownType: true}, nil
	}

	msg := value.NewMessage(value.FromSchema(ns, name))

	fieldByName := make(map[string]schema.FieldDef, len(g.Fields))
	for _, f := range g.Fields {
		fieldByName[f.Name] = f
	}

	rest := segments[1:]

	for i, seg := range rest {
		if strings.HasPrefix(seg, "[") && strings.HasSuffix(seg, "]") && i == len(rest)-1 {
			exts, err := decodeExtensions(reg, seg, rec)
			if err != nil {
				return nil, err
			}

			msg.Extension = exts

			continue
		}

		eq := strings.IndexByte(seg, '=')
		if eq < 0 {
			return nil, blinkerr.New(blinkerr.KindParse, "malformed field segment %q", seg)
		}

		fname, raw := seg[:eq], seg[eq+1:]

		f, ok := fieldByName[fname]
		if !ok {
			return nil, blinkerr.New(blinkerr.KindValue, "unknown field %s on %s", fname, g.Name).InField(fname)
		}

		fv, err := parseValue(reg, f.Type, raw, rec)
		if err != nil {
			return nil, blinkerr.WrapField(err, fname)
		}

		msg.Fields.Set(fname, fv)
	}

	for _, f := range g.Fields {
		if !f.Optional {
			if _, ok := msg.Fields.Get(f.Name); !ok {
				return nil, blinkerr.New(blinkerr.KindValue, "missing required field %s.%s", g.Name, f.Name).InField(f.Name)
			}
		}
	}

	return msg, nil
}

func decodeExtensions(reg *registry.Registry, seg string, rec *blinkerr.Recorder) ([]*value.Message, error) {
	inner := seg[1 : len(seg)-1]

	parts := splitTopLevel(inner, ';')

	exts := make([]*value.Message, 0, len(parts))

	for _, p := range parts {
		if p == "" {
			continue
		}

		ext, err := Decode(reg, p, rec)
		if err != nil {
			return nil, err
		}

		if !ext.UnknownType {
			exts = append(exts, ext)
		}
	}

	return exts, nil
}

func splitQName(s string) (ns, name string, err error) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return "", s, nil
	}

	return s[:idx], s[idx+1:], nil
}

func parseValue(reg *registry.Registry, t schema.Type, raw string, rec *blinkerr.Recorder) (value.Value, error) {
	switch t.Tag {
	case schema.TagPrimitive:
		return parsePrimitive(t.Primitive, raw, rec)

	case schema.TagEnumRef:
		if t.Enum != nil {
			if v, ok := t.Enum.ValueBySymbol(raw); ok {
				return value.Int(int64(v)), nil
			}
		}

		if n, err := strconv.ParseInt(raw, 10, 32); err == nil {
			if e := rec.Weak(blinkerr.New(blinkerr.KindWeak, "unmapped enum symbol %q", raw)); e != nil {
				return value.Value{}, e
			}

			return value.Int(n), nil
		}

		return value.Value{}, blinkerr.New(blinkerr.KindValue, "unrecognized enum symbol %q", raw)

	case schema.TagString:
		s, err := unescape(raw)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindParse, "%s", err)
		}

		return value.String(s), nil

	case schema.TagBinary, schema.TagFixed:
		b, err := parseHexBrackets(raw)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindParse, "%s", err)
		}

		if t.Tag == schema.TagFixed && uint64(len(b)) != t.FixedSize {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "fixed(%d) field given %d bytes", t.FixedSize, len(b))
		}

		return value.Bytes(b), nil

	case schema.TagSequence:
		if len(raw) < 2 || raw[0] != '[' || raw[len(raw)-1] != ']' {
			return value.Value{}, blinkerr.New(blinkerr.KindParse, "malformed sequence literal %q", raw)
		}

		parts := splitTopLevel(raw[1:len(raw)-1], ';')

		items := make([]value.Value, 0, len(parts))

		for _, p := range parts {
			if p == "" {
				continue
			}

			item, err := parseValue(reg, *t.Elem, p, rec)
			if err != nil {
				return value.Value{}, err
			}

			items = append(items, item)
		}

		return value.Sequence(items), nil

	case schema.TagStaticGroupRef:
		if len(raw) < 2 || raw[0] != '{' || raw[len(raw)-1] != '}' {
			return value.Value{}, blinkerr.New(blinkerr.KindParse, "malformed static group literal %q", raw)
		}

		fields, err := parseFieldBody(reg, t.Group, raw[1:len(raw)-1], rec)
		if err != nil {
			return value.Value{}, err
		}

		return value.Static(&value.StaticGroupValue{Fields: fields}), nil

	case schema.TagDynamicGroupRef, schema.TagObject:
		return parseDynamicGroupLiteral(reg, t, raw, rec)

	default:
		return value.Value{}, blinkerr.New(blinkerr.KindValue, "undecodable type tag %d", t.Tag)
	}
}

func parsePrimitive(p schema.Primitive, raw string, rec *blinkerr.Recorder) (value.Value, error) {
	switch p {
	case schema.Bool:
		switch raw {
		case "Y":
			return value.Bool(true), nil
		case "N":
			return value.Bool(false), nil
		default:
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid bool literal %q", raw)
		}

	case schema.U8, schema.U16, schema.U32, schema.U64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid %s literal %q", p, raw)
		}

		return value.Uint(n), nil

	case schema.I8, schema.I16, schema.I32, schema.I64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid %s literal %q", p, raw)
		}

		return value.Int(n), nil

	case schema.F64:
		switch raw {
		case "NaN":
			return value.Float(math.NaN()), nil
		case "Inf":
			return value.Float(math.Inf(1)), nil
		case "-Inf":
			return value.Float(math.Inf(-1)), nil
		default:
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid f64 literal %q", raw)
			}

			return value.Float(f), nil
		}

	case schema.Decimal:
		d, err := parseDecimalLiteral(raw)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return value.Decimal(d), nil

	case schema.Date:
		d, err := blinktime.ParseDate(raw)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return value.Int(int64(d)), nil

	case schema.TimeOfDayMilli:
		ms, err := blinktime.ParseTimeOfDayMilli(raw)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return value.Uint(uint64(ms)), nil

	case schema.TimeOfDayNano:
		ns, err := blinktime.ParseTimeOfDayNano(raw)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return value.Uint(ns), nil

	case schema.MilliTime:
		ms, err := blinktime.ParseMilliTime(raw)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return value.Int(ms), nil

	case schema.NanoTime:
		ns, err := blinktime.ParseNanoTime(raw)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return value.Int(ns), nil

	default:
		return value.Value{}, blinkerr.New(blinkerr.KindValue, "undecodable primitive %s", p)
	}
}

func parseFieldBody(reg *registry.Registry, g *schema.GroupDef, body string, rec *blinkerr.Recorder) (*value.Fields, error) {
	fields := value.NewFields()

	fieldByName := make(map[string]schema.FieldDef, len(g.Fields))
	for _, f := range g.Fields {
		fieldByName[f.Name] = f
	}

	for _, seg := range splitTopLevel(body, ',') {
		if seg == "" {
			continue
		}

		eq := strings.IndexByte(seg, '=')
		if eq < 0 {
			return nil, blinkerr.New(blinkerr.KindParse, "malformed field segment %q", seg)
		}

		fname, raw := seg[:eq], seg[eq+1:]

		f, ok := fieldByName[fname]
		if !ok {
			return nil, blinkerr.New(blinkerr.KindValue, "unknown field %s on %s", fname, g.Name).InField(fname)
		}

		fv, err := parseValue(reg, f.Type, raw, rec)
		if err != nil {
			return nil, blinkerr.WrapField(err, fname)
		}

		fields.Set(fname, fv)
	}

	for _, f := range g.Fields {
		if !f.Optional {
			if _, ok := fields.Get(f.Name); !ok {
				return nil, blinkerr.New(blinkerr.KindValue, "missing required field %s.%s", g.Name, f.Name).InField(f.Name)
			}
		}
	}

	return fields, nil
}

func parseDynamicGroupLiteral(reg *registry.Registry, t schema.Type, raw string, rec *blinkerr.Recorder) (value.Value, error) {
	if !strings.HasPrefix(raw, "@") {
		return value.Value{}, blinkerr.New(blinkerr.KindParse, "malformed dynamic group literal %q", raw)
	}

	brace := strings.IndexByte(raw, '{')
	if brace < 0 || raw[len(raw)-1] != '}' {
		return value.Value{}, blinkerr.New(blinkerr.KindParse, "malformed dynamic group literal %q", raw)
	}

	ns, name, err := splitQName(raw[1:brace])
	if err != nil {
		return value.Value{}, err
	}

	concrete, err := reg.GetByName(schema.QName{Namespace: ns, Name: name})
	if err != nil {
		werr := blinkerr.New(blinkerr.KindWeak, "unknown type %s:%s", ns, name)
		if e := rec.Weak(werr); e != nil {
			return value.Value{}, e
		}

		return value.Msg(&value.Message{Type: value.FromSchema(ns, name), Fields: value.NewFields(), UnknownType: true}), nil
	}

	if t.Tag == schema.TagDynamicGroupRef && t.Group != nil && !concrete.IsDescendantOf(t.Group) {
		werr := blinkerr.New(blinkerr.KindWeak, "W15: %s is not %s or a descendant", concrete.Name, t.Group.Name)
		if e := rec.Weak(werr); e != nil {
			return value.Value{}, e
		}
	}

	fields, err := parseFieldBody(reg, concrete, raw[brace+1:len(raw)-1], rec)
	if err != nil {
		return value.Value{}, err
	}

	return value.Msg(&value.Message{Type: value.FromSchema(ns, name), Fields: fields}), nil
}
