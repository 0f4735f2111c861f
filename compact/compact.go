package compact

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/schema"
	"github.com/blink-proto/blink/value"
	"github.com/blink-proto/blink/vlc"
)

// presenceByte and absentByte frame a nullable fixed-size or static-group
// field: they are raw bytes, not VLC integers, since their only job is to
// disambiguate "present" from "absent" before a fixed-width payload whose
// own encoding has no room for a NULL sentinel.
const (
	presenceByte = 0x01
	absentByte   = 0xC0
)

// ReservedIDLow and ReservedIDHigh bound the Dynamic Schema Exchange type
// id range (spec §4.8). This package does not special-case frames in that
// range; IsReservedTypeID lets a higher layer (package dynschema) classify
// a frame by its type id before decoding it.
const (
	ReservedIDLow  = 16000
	ReservedIDHigh = 16383
)

// IsReservedTypeID reports whether id falls in the Dynamic Schema Exchange
// range.
func IsReservedTypeID(id uint64) bool {
	return id >= ReservedIDLow && id <= ReservedIDHigh
}

// Encode renders m, whose declared type is g, as one Compact Binary frame.
func Encode(reg *registry.Registry, g *schema.GroupDef, m *value.Message, rec *blinkerr.Recorder) ([]byte, error) {
	return encodeFrame(reg, g, m, rec)
}

// Decode reads one frame from the start of data.
func Decode(reg *registry.Registry, data []byte, rec *blinkerr.Recorder) (*value.Message, int, error) {
	return DecodeAt(reg, data, 0, rec)
}

// DecodeAt reads one frame starting at offset, for callers streaming a
// concatenated sequence of frames.
func DecodeAt(reg *registry.Registry, data []byte, offset int, rec *blinkerr.Recorder) (*value.Message, int, error) {
	msg, consumed, isNull, err := decodeFrame(reg, data, offset, rec)
	if err != nil {
		return nil, 0, err
	}

	if isNull {
		return nil, consumed, blinkerr.New(blinkerr.KindFraming, "top-level frame cannot be NULL")
	}

	return msg, consumed, nil
}

func encodeFrame(reg *registry.Registry, g *schema.GroupDef, m *value.Message, rec *blinkerr.Recorder) ([]byte, error) {
	body, err := encodeBody(reg, g, m, rec)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	buf.Write(vlc.EncodeUint(uint64(len(body))))
	buf.Write(body)

	return buf.Bytes(), nil
}

func encodeBody(reg *registry.Registry, g *schema.GroupDef, m *value.Message, rec *blinkerr.Recorder) ([]byte, error) {
	if g.TypeID == nil {
		return nil, blinkerr.New(blinkerr.KindValue, "group %s has no type id, cannot be framed", g.Name)
	}

	var buf bytes.Buffer

	buf.Write(vlc.EncodeUint(*g.TypeID))

	for _, f := range g.Fields {
		fv, ok := m.Fields.Get(f.Name)
		if !ok {
			if !f.Optional {
				return nil, blinkerr.New(blinkerr.KindValue, "missing required field %s.%s", g.Name, f.Name).InField(f.Name)
			}

			fv = value.Absent
		}

		if err := encodeField(&buf, reg, f.Type, f.Optional, fv, rec); err != nil {
			return nil, blinkerr.WrapField(err, f.Name)
		}
	}

	if len(m.Extension) > 0 {
		buf.Write(vlc.EncodeUint(uint64(len(m.Extension))))

		for _, ext := range m.Extension {
			extG, err := reg.GetByName(schema.QName{Namespace: ext.Type.Namespace, Name: ext.Type.Name})
			if err != nil {
				return nil, err
			}

			frame, err := encodeFrame(reg, extG, ext, rec)
			if err != nil {
				return nil, err
			}

			buf.Write(frame)
		}
	}

	return buf.Bytes(), nil
}

// decodeFrame reads length(u32 VLC) and, unless the length is the VLC NULL
// sentinel, the frame body it bounds. isNull distinguishes an absent
// nullable frame from a present but empty one.
func decodeFrame(reg *registry.Registry, data []byte, offset int, rec *blinkerr.Recorder) (msg *value.Message, consumed int, isNull bool, err error) {
	length, n, isNull, err := vlc.DecodeUint(data, offset)
	if err != nil {
		return nil, 0, false, err
	}

	if isNull {
		return nil, n, true, nil
	}

	start := offset + n
	end := start + int(length)

	if end > len(data) {
		return nil, 0, false, blinkerr.New(blinkerr.KindFraming, "frame body truncated").AtOffset(int64(start))
	}

	body := data[start:end]

	m, bodyConsumed, derr := decodeBody(reg, body, rec)
	if derr != nil {
		return nil, 0, false, derr
	}

	if bodyConsumed != len(body) {
		return nil, 0, false, blinkerr.New(blinkerr.KindFraming, "frame body size mismatch: declared %d, consumed %d", len(body), bodyConsumed).AtOffset(int64(start))
	}

	return m, n + int(length), false, nil
}

func decodeBody(reg *registry.Registry, body []byte, rec *blinkerr.Recorder) (*value.Message, int, error) {
	typeID, n, _, err := vlc.DecodeUint(body, 0)
	if err != nil {
		return nil, 0, err
	}

	pos := n

	g, err := reg.GetByID(typeID)
	if err != nil {
		werr := blinkerr.New(blinkerr.KindWeak, "unknown type id %d", typeID)
		if e := rec.Weak(werr); e != nil {
			return nil, 0, e
		}

		return &value.Message{
			Type:        value.QName{Name: formatUint(typeID)},
			Fields:      value.NewFields(),
			UnknownType: true,
		}, len(body), nil
	}

	msg := value.NewMessage(value.FromSchema(g.Name.Namespace, g.Name.Name))

	for _, f := range g.Fields {
		fv, consumed, ferr := decodeField(body, pos, reg, f.Type, f.Optional, rec)
		if ferr != nil {
			return nil, 0, blinkerr.WrapField(ferr, f.Name)
		}

		pos += consumed

		if fv.Kind != value.KindAbsent {
			msg.Fields.Set(f.Name, fv)
		}
	}

	if pos < len(body) {
		count, n2, _, cerr := vlc.DecodeUint(body, pos)
		if cerr != nil {
			return nil, 0, cerr
		}

		pos += n2

		for i := uint64(0); i < count; i++ {
			extMsg, consumed, _, eerr := decodeFrame(reg, body, pos, rec)
			if eerr != nil {
				return nil, 0, eerr
			}

			pos += consumed

			if !extMsg.UnknownType {
				msg.Extension = append(msg.Extension, extMsg)
			}
		}
	}

	if pos != len(body) {
		return nil, 0, blinkerr.New(blinkerr.KindFraming, "frame %s has trailing bytes: declared %d, consumed %d", g.Name, len(body), pos)
	}

	return msg, pos, nil
}

func encodeField(buf *bytes.Buffer, reg *registry.Registry, t schema.Type, optional bool, v value.Value, rec *blinkerr.Recorder) error {
	switch t.Tag {
	case schema.TagPrimitive:
		return encodePrimitive(buf, t.Primitive, v, rec)

	case schema.TagString:
		return encodeBytesLike(buf, optional, v, []byte(v.Str))

	case schema.TagBinary:
		return encodeBytesLike(buf, optional, v, v.Bytes)

	case schema.TagFixed:
		return encodeFixed(buf, t, optional, v)

	case schema.TagEnumRef:
		buf.Write(vlc.EncodeInt(v.Int))
		return nil

	case schema.TagSequence:
		return encodeSequence(buf, reg, t, optional, v, rec)

	case schema.TagStaticGroupRef:
		return encodeStaticGroup(buf, reg, t, optional, v, rec)

	case schema.TagDynamicGroupRef, schema.TagObject:
		return encodeDynamicGroup(buf, reg, t, optional, v, rec)

	default:
		return blinkerr.New(blinkerr.KindValue, "unencodable type tag %d", t.Tag)
	}
}

func encodePrimitive(buf *bytes.Buffer, p schema.Primitive, v value.Value, rec *blinkerr.Recorder) error {
	switch p {
	case schema.Bool:
		if v.Bool {
			buf.Write(vlc.EncodeUint(1))
		} else {
			buf.Write(vlc.EncodeUint(0))
		}

		return nil

	case schema.F64:
		buf.Write(vlc.EncodeUint(math.Float64bits(v.Float)))
		return nil

	case schema.Decimal:
		if v.Kind == value.KindAbsent {
			buf.Write(vlc.EncodeNull())
			return nil
		}

		buf.Write(vlc.EncodeInt(int64(v.Decimal.Exponent)))
		buf.Write(vlc.EncodeInt(v.Decimal.Mantissa))

		return nil

	case schema.MilliTime, schema.NanoTime, schema.Date, schema.TimeOfDayMilli, schema.TimeOfDayNano:
		buf.Write(vlc.EncodeInt(v.Int))
		return nil

	default:
		width := p.Width()

		if p.Signed() {
			iv := v.Int

			if vlc.SignedOutOfRange(iv, width) {
				if err := rec.Weak(blinkerr.New(blinkerr.KindWeak, "%s value %d out of range", p, iv)); err != nil {
					return err
				}

				iv = clampSigned(iv, width)
			}

			buf.Write(vlc.EncodeInt(iv))

			return nil
		}

		uv := v.Uint

		if vlc.UnsignedOutOfRange(uv, width) {
			if err := rec.Weak(blinkerr.New(blinkerr.KindWeak, "%s value %d out of range", p, uv)); err != nil {
				return err
			}

			uv = clampUnsigned(uv, width)
		}

		buf.Write(vlc.EncodeUint(uv))

		return nil
	}
}

func encodeBytesLike(buf *bytes.Buffer, optional bool, v value.Value, data []byte) error {
	if optional && v.Kind == value.KindAbsent {
		buf.Write(vlc.EncodeNull())
		return nil
	}

	buf.Write(vlc.EncodeUint(uint64(len(data))))
	buf.Write(data)

	return nil
}

func encodeFixed(buf *bytes.Buffer, t schema.Type, optional bool, v value.Value) error {
	if optional {
		if v.Kind == value.KindAbsent {
			buf.WriteByte(absentByte)
			return nil
		}

		buf.WriteByte(presenceByte)
	}

	if uint64(len(v.Bytes)) != t.FixedSize {
		return blinkerr.New(blinkerr.KindValue, "fixed(%d) field given %d bytes", t.FixedSize, len(v.Bytes))
	}

	buf.Write(v.Bytes)

	return nil
}

func encodeSequence(buf *bytes.Buffer, reg *registry.Registry, t schema.Type, optional bool, v value.Value, rec *blinkerr.Recorder) error {
	if optional && v.Kind == value.KindAbsent {
		buf.Write(vlc.EncodeNull())
		return nil
	}

	buf.Write(vlc.EncodeUint(uint64(len(v.Seq))))

	for _, elem := range v.Seq {
		if err := encodeField(buf, reg, *t.Elem, false, elem, rec); err != nil {
			return err
		}
	}

	return nil
}

func encodeStaticGroup(buf *bytes.Buffer, reg *registry.Registry, t schema.Type, optional bool, v value.Value, rec *blinkerr.Recorder) error {
	if optional {
		if v.Kind == value.KindAbsent {
			buf.WriteByte(absentByte)
			return nil
		}

		buf.WriteByte(presenceByte)
	}

	sg := v.Static

	for _, f := range t.Group.Fields {
		fv, ok := sg.Fields.Get(f.Name)
		if !ok {
			if !f.Optional {
				return blinkerr.New(blinkerr.KindValue, "missing required field %s.%s", t.Group.Name, f.Name).InField(f.Name)
			}

			fv = value.Absent
		}

		if err := encodeField(buf, reg, f.Type, f.Optional, fv, rec); err != nil {
			return err
		}
	}

	return nil
}

func encodeDynamicGroup(buf *bytes.Buffer, reg *registry.Registry, t schema.Type, optional bool, v value.Value, rec *blinkerr.Recorder) error {
	if optional && v.Kind == value.KindAbsent {
		buf.Write(vlc.EncodeNull())
		return nil
	}

	msg := v.Msg

	concrete, err := reg.GetByName(schema.QName{Namespace: msg.Type.Namespace, Name: msg.Type.Name})
	if err != nil {
		return err
	}

	if t.Tag == schema.TagDynamicGroupRef && t.Group != nil && !concrete.IsDescendantOf(t.Group) {
		werr := blinkerr.New(blinkerr.KindWeak, "W15: %s is not %s or a descendant", concrete.Name, t.Group.Name)
		if e := rec.Weak(werr); e != nil {
			return e
		}
	}

	frame, err := encodeFrame(reg, concrete, msg, rec)
	if err != nil {
		return err
	}

	buf.Write(frame)

	return nil
}

func decodeField(body []byte, offset int, reg *registry.Registry, t schema.Type, optional bool, rec *blinkerr.Recorder) (value.Value, int, error) {
	switch t.Tag {
	case schema.TagPrimitive:
		return decodePrimitive(body, offset, t.Primitive, rec)

	case schema.TagString:
		return decodeStringLike(body, offset, optional, true, rec)

	case schema.TagBinary:
		return decodeStringLike(body, offset, optional, false, rec)

	case schema.TagFixed:
		return decodeFixed(body, offset, t, optional)

	case schema.TagEnumRef:
		return decodeEnum(body, offset, t, rec)

	case schema.TagSequence:
		return decodeSequence(body, offset, reg, t, optional, rec)

	case schema.TagStaticGroupRef:
		return decodeStaticGroup(body, offset, reg, t, optional, rec)

	case schema.TagDynamicGroupRef, schema.TagObject:
		return decodeDynamicGroup(body, offset, reg, t, optional, rec)

	default:
		return value.Value{}, 0, blinkerr.New(blinkerr.KindValue, "undecodable type tag %d", t.Tag)
	}
}

func decodePrimitive(body []byte, offset int, p schema.Primitive, rec *blinkerr.Recorder) (value.Value, int, error) {
	switch p {
	case schema.Bool:
		u, n, _, err := vlc.DecodeUint(body, offset)
		if err != nil {
			return value.Value{}, 0, err
		}

		return value.Bool(u != 0), n, nil

	case schema.F64:
		bits, n, _, err := vlc.DecodeUint(body, offset)
		if err != nil {
			return value.Value{}, 0, err
		}

		return value.Float(math.Float64frombits(bits)), n, nil

	case schema.Decimal:
		exp, n1, isNull, err := vlc.DecodeInt(body, offset)
		if err != nil {
			return value.Value{}, 0, err
		}

		if isNull {
			return value.Absent, n1, nil
		}

		mant, n2, _, err := vlc.DecodeInt(body, offset+n1)
		if err != nil {
			return value.Value{}, 0, err
		}

		return value.Decimal(value.DecimalValue{Exponent: int8(exp), Mantissa: mant}), n1 + n2, nil

	case schema.MilliTime, schema.NanoTime, schema.Date, schema.TimeOfDayMilli, schema.TimeOfDayNano:
		iv, n, _, err := vlc.DecodeInt(body, offset)
		if err != nil {
			return value.Value{}, 0, err
		}

		return value.Int(iv), n, nil

	default:
		width := p.Width()

		if p.Signed() {
			iv, n, _, err := vlc.DecodeInt(body, offset)
			if err != nil {
				return value.Value{}, 0, err
			}

			if vlc.SignedOutOfRange(iv, width) {
				if e := rec.Weak(blinkerr.New(blinkerr.KindWeak, "%s value %d out of range", p, iv)); e != nil {
					return value.Value{}, 0, e
				}

				iv = clampSigned(iv, width)
			}

			return value.Int(iv), n, nil
		}

		uv, n, _, err := vlc.DecodeUint(body, offset)
		if err != nil {
			return value.Value{}, 0, err
		}

		if vlc.UnsignedOutOfRange(uv, width) {
			if e := rec.Weak(blinkerr.New(blinkerr.KindWeak, "%s value %d out of range", p, uv)); e != nil {
				return value.Value{}, 0, e
			}

			uv = clampUnsigned(uv, width)
		}

		return value.Uint(uv), n, nil
	}
}

func decodeStringLike(body []byte, offset int, optional, checkUTF8 bool, rec *blinkerr.Recorder) (value.Value, int, error) {
	length, n, isNull, err := vlc.DecodeUint(body, offset)
	if err != nil {
		return value.Value{}, 0, err
	}

	if isNull {
		if !optional {
			return value.Value{}, 0, blinkerr.New(blinkerr.KindValue, "NULL given for non-nullable field")
		}

		return value.Absent, n, nil
	}

	start := offset + n
	end := start + int(length)

	if end > len(body) {
		return value.Value{}, 0, blinkerr.New(blinkerr.KindFraming, "string/binary field truncated").AtOffset(int64(start))
	}

	data := body[start:end]

	if checkUTF8 {
		s := string(data)

		if !utf8.ValidString(s) {
			if e := rec.Weak(blinkerr.New(blinkerr.KindWeak, "invalid UTF-8 in string field").AtOffset(int64(start))); e != nil {
				return value.Value{}, 0, e
			}

			s = strings.ToValidUTF8(s, string(utf8.RuneError))
		}

		return value.String(s), n + int(length), nil
	}

	out := make([]byte, len(data))
	copy(out, data)

	return value.Bytes(out), n + int(length), nil
}

func decodeFixed(body []byte, offset int, t schema.Type, optional bool) (value.Value, int, error) {
	consumed := 0

	if optional {
		if offset >= len(body) {
			return value.Value{}, 0, blinkerr.New(blinkerr.KindFraming, "fixed presence byte truncated").AtOffset(int64(offset))
		}

		presence := body[offset]
		consumed = 1

		if presence == absentByte {
			return value.Absent, consumed, nil
		}
	}

	start := offset + consumed
	end := start + int(t.FixedSize)

	if end > len(body) {
		return value.Value{}, 0, blinkerr.New(blinkerr.KindFraming, "fixed(%d) field truncated", t.FixedSize).AtOffset(int64(start))
	}

	out := make([]byte, t.FixedSize)
	copy(out, body[start:end])

	return value.Bytes(out), consumed + int(t.FixedSize), nil
}

func decodeEnum(body []byte, offset int, t schema.Type, rec *blinkerr.Recorder) (value.Value, int, error) {
	iv, n, _, err := vlc.DecodeInt(body, offset)
	if err != nil {
		return value.Value{}, 0, err
	}

	if t.Enum != nil {
		if _, ok := t.Enum.SymbolByValue(int32(iv)); !ok {
			if e := rec.Weak(blinkerr.New(blinkerr.KindWeak, "unmapped enum value %d for %s", iv, t.Enum.Name)); e != nil {
				return value.Value{}, 0, e
			}
		}
	}

	return value.Int(iv), n, nil
}

func decodeSequence(body []byte, offset int, reg *registry.Registry, t schema.Type, optional bool, rec *blinkerr.Recorder) (value.Value, int, error) {
	count, n, isNull, err := vlc.DecodeUint(body, offset)
	if err != nil {
		return value.Value{}, 0, err
	}

	if isNull {
		if !optional {
			return value.Value{}, 0, blinkerr.New(blinkerr.KindValue, "NULL given for non-nullable sequence")
		}

		return value.Absent, n, nil
	}

	pos := offset + n
	items := make([]value.Value, 0, count)

	for i := uint64(0); i < count; i++ {
		item, consumed, err := decodeField(body, pos, reg, *t.Elem, false, rec)
		if err != nil {
			return value.Value{}, 0, err
		}

		pos += consumed

		items = append(items, item)
	}

	return value.Sequence(items), pos - offset, nil
}

func decodeStaticGroup(body []byte, offset int, reg *registry.Registry, t schema.Type, optional bool, rec *blinkerr.Recorder) (value.Value, int, error) {
	consumed := 0

	if optional {
		if offset >= len(body) {
			return value.Value{}, 0, blinkerr.New(blinkerr.KindFraming, "static group presence byte truncated").AtOffset(int64(offset))
		}

		if body[offset] == absentByte {
			return value.Absent, 1, nil
		}

		consumed = 1
	}

	sg := value.NewStaticGroupValue()
	pos := offset + consumed

	for _, f := range t.Group.Fields {
		fv, c, err := decodeField(body, pos, reg, f.Type, f.Optional, rec)
		if err != nil {
			return value.Value{}, 0, blinkerr.WrapField(err, f.Name)
		}

		pos += c

		if fv.Kind != value.KindAbsent {
			sg.Fields.Set(f.Name, fv)
		}
	}

	return value.Static(sg), pos - offset, nil
}

func decodeDynamicGroup(body []byte, offset int, reg *registry.Registry, t schema.Type, optional bool, rec *blinkerr.Recorder) (value.Value, int, error) {
	msg, consumed, isNull, err := decodeFrame(reg, body, offset, rec)
	if err != nil {
		return value.Value{}, 0, err
	}

	if isNull {
		if !optional {
			return value.Value{}, 0, blinkerr.New(blinkerr.KindValue, "NULL given for non-nullable group")
		}

		return value.Absent, consumed, nil
	}

	if t.Tag == schema.TagDynamicGroupRef && t.Group != nil && !msg.UnknownType {
		concrete, err := reg.GetByName(schema.QName{Namespace: msg.Type.Namespace, Name: msg.Type.Name})
		if err == nil && !concrete.IsDescendantOf(t.Group) {
			werr := blinkerr.New(blinkerr.KindWeak, "W15: %s is not %s or a descendant", concrete.Name, t.Group.Name)
			if e := rec.Weak(werr); e != nil {
				return value.Value{}, 0, e
			}
		}
	}

	return value.Msg(msg), consumed, nil
}

func clampSigned(v int64, bits int) int64 {
	min := int64(-1) << uint(bits-1)
	max := int64(1)<<uint(bits-1) - 1

	if v < min {
		return min
	}

	if v > max {
		return max
	}

	return v
}

func clampUnsigned(v uint64, bits int) uint64 {
	max := uint64(1)<<uint(bits) - 1
	if v > max {
		return max
	}

	return v
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
