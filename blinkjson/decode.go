package blinkjson

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/blinktime"
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/schema"
	"github.com/blink-proto/blink/value"
)

// Decode parses one JSON message object.
func Decode(reg *registry.Registry, data []byte, rec *blinkerr.Recorder) (*value.Message, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, blinkerr.New(blinkerr.KindParse, "invalid JSON message object: %s", err)
	}

	return decodeMessageObject(reg, obj, rec)
}

// DecodeStream parses a JSON array of message objects.
func DecodeStream(reg *registry.Registry, data []byte, rec *blinkerr.Recorder) ([]*value.Message, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, blinkerr.New(blinkerr.KindParse, "invalid JSON message stream: %s", err)
	}

	out := make([]*value.Message, 0, len(raw))

	for _, r := range raw {
		m, err := Decode(reg, r, rec)
		if err != nil {
			return nil, err
		}

		out = append(out, m)
	}

	return out, nil
}

func decodeMessageObject(reg *registry.Registry, obj map[string]json.RawMessage, rec *blinkerr.Recorder) (*value.Message, error) {
	typeRaw, ok := obj["$type"]
	if !ok {
		return nil, blinkerr.New(blinkerr.KindParse, "message object missing $type")
	}

	var typeStr string
	if err := json.Unmarshal(typeRaw, &typeStr); err != nil {
		return nil, blinkerr.New(blinkerr.KindParse, "invalid $type: %s", err)
	}

	ns, name := splitQName(typeStr)

	g, err := reg.GetByName(schema.QName{Namespace: ns, Name: name})
	if err != nil {
		werr := blinkerr.New(blinkerr.KindWeak, "unknown type %s:%s", ns, name)
		if e := rec.Weak(werr); e != nil {
			return nil, e
		}

		return &value.Message{Type: value.FromSchema(ns, name), Fields: value.NewFields(), UnknownType: true}, nil
	}

	fields, err := decodeFields(reg, g, obj, rec)
	if err != nil {
		return nil, err
	}

	msg := &value.Message{Type: value.FromSchema(ns, name), Fields: fields}

	if extRaw, ok := obj["$extension"]; ok {
		var extArr []json.RawMessage
		if err := json.Unmarshal(extRaw, &extArr); err != nil {
			return nil, blinkerr.New(blinkerr.KindParse, "invalid $extension: %s", err)
		}

		for _, er := range extArr {
			var extObj map[string]json.RawMessage
			if err := json.Unmarshal(er, &extObj); err != nil {
				return nil, blinkerr.New(blinkerr.KindParse, "invalid $extension entry: %s", err)
			}

			ext, err := decodeMessageObject(reg, extObj, rec)
			if err != nil {
				return nil, err
			}

			if !ext.UnknownType {
				msg.Extension = append(msg.Extension, ext)
			}
		}
	}

	return msg, nil
}

func decodeFields(reg *registry.Registry, g *schema.GroupDef, obj map[string]json.RawMessage, rec *blinkerr.Recorder) (*value.Fields, error) {
	fields := value.NewFields()

	for _, f := range g.Fields {
		raw, ok := obj[f.Name]
		if !ok {
			if !f.Optional {
				return nil, blinkerr.New(blinkerr.KindValue, "missing required field %s.%s", g.Name, f.Name).InField(f.Name)
			}

			continue
		}

		fv, err := parseValue(reg, f.Type, raw, rec)
		if err != nil {
			return nil, blinkerr.WrapField(err, f.Name)
		}

		fields.Set(f.Name, fv)
	}

	return fields, nil
}

func splitQName(s string) (ns, name string) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return "", s
	}

	return s[:idx], s[idx+1:]
}

func parseValue(reg *registry.Registry, t schema.Type, raw json.RawMessage, rec *blinkerr.Recorder) (value.Value, error) {
	switch t.Tag {
	case schema.TagPrimitive:
		return parsePrimitive(t.Primitive, raw, rec)

	case schema.TagEnumRef:
		if isQuoted(raw) {
			var sym string
			if err := json.Unmarshal(raw, &sym); err != nil {
				return value.Value{}, blinkerr.New(blinkerr.KindParse, "invalid enum literal: %s", err)
			}

			if t.Enum != nil {
				if v, ok := t.Enum.ValueBySymbol(sym); ok {
					return value.Int(int64(v)), nil
				}
			}

			return value.Value{}, blinkerr.New(blinkerr.KindValue, "unrecognized enum symbol %q", sym)
		}

		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindParse, "invalid enum literal: %s", err)
		}

		if e := rec.Weak(blinkerr.New(blinkerr.KindWeak, "unmapped enum value %d", n)); e != nil {
			return value.Value{}, e
		}

		return value.Int(n), nil

	case schema.TagString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindParse, "invalid string literal: %s", err)
		}

		return value.String(s), nil

	case schema.TagBinary, schema.TagFixed:
		b, err := parseBinary(raw)
		if err != nil {
			return value.Value{}, err
		}

		if t.Tag == schema.TagFixed && uint64(len(b)) != t.FixedSize {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "fixed(%d) field given %d bytes", t.FixedSize, len(b))
		}

		return value.Bytes(b), nil

	case schema.TagSequence:
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindParse, "invalid sequence literal: %s", err)
		}

		items := make([]value.Value, 0, len(arr))

		for _, r := range arr {
			item, err := parseValue(reg, *t.Elem, r, rec)
			if err != nil {
				return value.Value{}, err
			}

			items = append(items, item)
		}

		return value.Sequence(items), nil

	case schema.TagStaticGroupRef:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindParse, "invalid static group literal: %s", err)
		}

		fields, err := decodeFields(reg, t.Group, obj, rec)
		if err != nil {
			return value.Value{}, err
		}

		return value.Static(&value.StaticGroupValue{Fields: fields}), nil

	case schema.TagDynamicGroupRef, schema.TagObject:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindParse, "invalid dynamic group literal: %s", err)
		}

		return parseDynamicGroup(reg, t, obj, rec)

	default:
		return value.Value{}, blinkerr.New(blinkerr.KindValue, "undecodable type tag %d", t.Tag)
	}
}

func parseDynamicGroup(reg *registry.Registry, t schema.Type, obj map[string]json.RawMessage, rec *blinkerr.Recorder) (value.Value, error) {
	typeRaw, ok := obj["$type"]
	if !ok {
		return value.Value{}, blinkerr.New(blinkerr.KindParse, "dynamic group literal missing $type")
	}

	var typeStr string
	if err := json.Unmarshal(typeRaw, &typeStr); err != nil {
		return value.Value{}, blinkerr.New(blinkerr.KindParse, "invalid $type: %s", err)
	}

	ns, name := splitQName(typeStr)

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

	fields, err := decodeFields(reg, concrete, obj, rec)
	if err != nil {
		return value.Value{}, err
	}

	return value.Msg(&value.Message{Type: value.FromSchema(ns, name), Fields: fields}), nil
}

func isQuoted(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return len(s) >= 2 && s[0] == '"'
}

func parsePrimitive(p schema.Primitive, raw json.RawMessage, rec *blinkerr.Recorder) (value.Value, error) {
	quoted := isQuoted(raw)

	unquote := func() (string, error) {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}

	switch p {
	case schema.Bool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid bool literal: %s", err)
		}

		return value.Bool(b), nil

	case schema.U8, schema.U16, schema.U32, schema.U64:
		s := strings.TrimSpace(string(raw))
		if quoted {
			var err error
			s, err = unquote()
			if err != nil {
				return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid %s literal: %s", p, err)
			}
		}

		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid %s literal %q", p, s)
		}

		return value.Uint(n), nil

	case schema.I8, schema.I16, schema.I32, schema.I64:
		s := strings.TrimSpace(string(raw))
		if quoted {
			var err error
			s, err = unquote()
			if err != nil {
				return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid %s literal: %s", p, err)
			}
		}

		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid %s literal %q", p, s)
		}

		return value.Int(n), nil

	case schema.F64:
		if quoted {
			s, err := unquote()
			if err != nil {
				return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid f64 literal: %s", err)
			}

			switch s {
			case "NaN":
				return value.Float(math.NaN()), nil
			case "Inf":
				return value.Float(math.Inf(1)), nil
			case "-Inf":
				return value.Float(math.Inf(-1)), nil
			default:
				return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid f64 literal %q", s)
			}
		}

		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid f64 literal: %s", err)
		}

		return value.Float(f), nil

	case schema.Decimal:
		if !quoted && len(strings.TrimSpace(string(raw))) > 0 && strings.TrimSpace(string(raw))[0] == '{' {
			var obj struct {
				Exponent int8  `json:"exponent"`
				Mantissa int64 `json:"mantissa"`
			}

			if err := json.Unmarshal(raw, &obj); err != nil {
				return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid decimal literal: %s", err)
			}

			return value.Decimal(value.DecimalValue{Exponent: obj.Exponent, Mantissa: obj.Mantissa}), nil
		}

		d, err := parseDecimalNumberLiteral(strings.TrimSpace(string(raw)))
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return value.Decimal(d), nil

	case schema.Date:
		s, err := unquote()
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid date literal: %s", err)
		}

		d, err := blinktime.ParseDate(s)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return value.Int(int64(d)), nil

	case schema.TimeOfDayMilli:
		s, err := unquote()
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid time literal: %s", err)
		}

		ms, err := blinktime.ParseTimeOfDayMilli(s)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return value.Uint(uint64(ms)), nil

	case schema.TimeOfDayNano:
		s, err := unquote()
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid time literal: %s", err)
		}

		ns, err := blinktime.ParseTimeOfDayNano(s)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return value.Uint(ns), nil

	case schema.MilliTime:
		s, err := unquote()
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid time literal: %s", err)
		}

		ms, err := blinktime.ParseMilliTime(s)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return value.Int(ms), nil

	case schema.NanoTime:
		s, err := unquote()
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "invalid time literal: %s", err)
		}

		ns, err := blinktime.ParseNanoTime(s)
		if err != nil {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "%s", err)
		}

		return value.Int(ns), nil

	default:
		return value.Value{}, blinkerr.New(blinkerr.KindValue, "undecodable primitive %s", p)
	}
}

func parseBinary(raw json.RawMessage) ([]byte, error) {
	if isQuoted(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, blinkerr.New(blinkerr.KindParse, "invalid binary literal: %s", err)
		}

		return []byte(s), nil
	}

	var hexes []string
	if err := json.Unmarshal(raw, &hexes); err != nil {
		return nil, blinkerr.New(blinkerr.KindParse, "invalid binary literal: %s", err)
	}

	var out []byte

	for _, h := range hexes {
		for _, pair := range strings.Fields(h) {
			v, err := strconv.ParseUint(pair, 16, 8)
			if err != nil {
				return nil, blinkerr.New(blinkerr.KindParse, "invalid hex byte %q", pair)
			}

			out = append(out, byte(v))
		}
	}

	return out, nil
}

func parseDecimalNumberLiteral(s string) (value.DecimalValue, error) {
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
