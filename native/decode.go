package native

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/schema"
	"github.com/blink-proto/blink/value"
)

const headerSize = 16

// Decode reads one Native Binary frame from the start of data and reports
// how many bytes it consumed, mirroring package compact's Decode.
func Decode(reg *registry.Registry, data []byte, rec *blinkerr.Recorder) (*value.Message, int, error) {
	return decodeFrame(reg, data, rec)
}

// decodeFrame reads the frame occupying data[0:size] and returns the
// decoded message plus the frame's declared size, so callers walking a
// concatenated extension block know where the next frame starts.
func decodeFrame(reg *registry.Registry, data []byte, rec *blinkerr.Recorder) (*value.Message, int, error) {
	if len(data) < headerSize {
		return nil, 0, blinkerr.New(blinkerr.KindFraming, "native frame shorter than header")
	}

	size := binary.LittleEndian.Uint32(data[0:4])
	typeID := binary.LittleEndian.Uint64(data[4:12])
	extOffset := binary.LittleEndian.Uint32(data[12:16])

	if int(size) > len(data) {
		return nil, 0, blinkerr.New(blinkerr.KindFraming, "native frame declares size %d, have %d bytes", size, len(data))
	}

	frame := data[:size]

	g, err := reg.GetByID(typeID)
	if err != nil {
		werr := blinkerr.New(blinkerr.KindWeak, "unknown type id %d", typeID)
		if e := rec.Weak(werr); e != nil {
			return nil, 0, e
		}

		return &value.Message{
			Type:        value.QName{Name: strconv.FormatUint(typeID, 10)},
			Fields:      value.NewFields(),
			UnknownType: true,
		}, int(size), nil
	}

	lay := computeLayout(g)

	fixedStart := headerSize
	fixedEnd := fixedStart + lay.TotalSize

	if fixedEnd > len(frame) {
		return nil, 0, blinkerr.New(blinkerr.KindFraming, "native frame %s fixed region truncated", g.Name)
	}

	varEnd := len(frame)
	if extOffset != 0 {
		if int(extOffset) > len(frame) {
			return nil, 0, blinkerr.New(blinkerr.KindFraming, "native frame %s extensionOffset out of range", g.Name)
		}

		varEnd = int(extOffset)
	}

	if fixedEnd > varEnd {
		return nil, 0, blinkerr.New(blinkerr.KindFraming, "native frame %s fixed region overlaps variable region", g.Name)
	}

	msg := value.NewMessage(value.FromSchema(g.Name.Namespace, g.Name.Name))

	for i, f := range g.Fields {
		fv, err := decodeField(frame, fixedStart+lay.Fields[i].Offset, reg, f.Type, f.Optional, fixedEnd, varEnd, rec)
		if err != nil {
			return nil, 0, blinkerr.WrapField(err, f.Name)
		}

		if fv.Kind != value.KindAbsent {
			msg.Fields.Set(f.Name, fv)
		}
	}

	if extOffset != 0 {
		pos := int(extOffset)
		for pos < len(frame) {
			extMsg, extSize, err := decodeFrame(reg, frame[pos:], rec)
			if err != nil {
				return nil, 0, err
			}

			if !extMsg.UnknownType {
				msg.Extension = append(msg.Extension, extMsg)
			}

			pos += extSize
		}
	}

	return msg, int(size), nil
}

func decodeField(frame []byte, offset int, reg *registry.Registry, t schema.Type, optional bool, fixedEnd, varEnd int, rec *blinkerr.Recorder) (value.Value, error) {
	switch t.Tag {
	case schema.TagPrimitive:
		return decodePrimitive(frame, offset, t.Primitive, optional, rec)

	case schema.TagEnumRef:
		iv := int32(binary.LittleEndian.Uint32(frame[offset : offset+4]))
		if t.Enum != nil {
			if _, ok := t.Enum.SymbolByValue(iv); !ok {
				if e := rec.Weak(blinkerr.New(blinkerr.KindWeak, "unmapped enum value %d for %s", iv, t.Enum.Name)); e != nil {
					return value.Value{}, e
				}
			}
		}

		return value.Int(int64(iv)), nil

	case schema.TagFixed:
		return decodeFixed(frame, offset, t, optional)

	case schema.TagString, schema.TagBinary:
		return decodeBytesLike(frame, offset, t, optional, fixedEnd, varEnd, rec)

	case schema.TagSequence:
		return decodeSequence(frame, offset, reg, t, optional, fixedEnd, varEnd, rec)

	case schema.TagStaticGroupRef:
		return decodeStaticGroup(frame, offset, reg, t, optional, fixedEnd, varEnd, rec)

	case schema.TagDynamicGroupRef, schema.TagObject:
		return decodeDynamicGroup(frame, offset, reg, t, optional, fixedEnd, varEnd, rec)

	default:
		return value.Value{}, blinkerr.New(blinkerr.KindValue, "undecodable type tag %d", t.Tag)
	}
}

func decodePrimitive(frame []byte, offset int, p schema.Primitive, optional bool, rec *blinkerr.Recorder) (value.Value, error) {
	if optional {
		if frame[offset] == absentByte {
			return value.Absent, nil
		}

		offset++
	}

	switch p {
	case schema.Bool:
		return value.Bool(frame[offset] != 0), nil
	case schema.U8:
		return value.Uint(uint64(frame[offset])), nil
	case schema.I8:
		return value.Int(int64(int8(frame[offset]))), nil
	case schema.U16:
		return value.Uint(uint64(binary.LittleEndian.Uint16(frame[offset : offset+2]))), nil
	case schema.I16:
		return value.Int(int64(int16(binary.LittleEndian.Uint16(frame[offset : offset+2])))), nil
	case schema.U32:
		return value.Uint(uint64(binary.LittleEndian.Uint32(frame[offset : offset+4]))), nil
	case schema.I32:
		return value.Int(int64(int32(binary.LittleEndian.Uint32(frame[offset : offset+4])))), nil
	case schema.Date:
		return value.Int(int64(int32(binary.LittleEndian.Uint32(frame[offset : offset+4])))), nil
	case schema.TimeOfDayMilli:
		return value.Uint(uint64(binary.LittleEndian.Uint32(frame[offset : offset+4]))), nil
	case schema.U64:
		return value.Uint(binary.LittleEndian.Uint64(frame[offset : offset+8])), nil
	case schema.I64, schema.MilliTime, schema.NanoTime:
		return value.Int(int64(binary.LittleEndian.Uint64(frame[offset : offset+8]))), nil
	case schema.TimeOfDayNano:
		return value.Uint(binary.LittleEndian.Uint64(frame[offset : offset+8])), nil
	case schema.F64:
		return value.Float(math.Float64frombits(binary.LittleEndian.Uint64(frame[offset : offset+8]))), nil
	case schema.Decimal:
		exp := int8(frame[offset])
		mant := int64(binary.LittleEndian.Uint64(frame[offset+1 : offset+9]))

		return value.Decimal(value.DecimalValue{Exponent: exp, Mantissa: mant}), nil
	default:
		return value.Value{}, blinkerr.New(blinkerr.KindValue, "undecodable primitive %s", p)
	}
}

func decodeFixed(frame []byte, offset int, t schema.Type, optional bool) (value.Value, error) {
	if optional {
		if frame[offset] == absentByte {
			return value.Absent, nil
		}

		offset++
	}

	out := make([]byte, t.FixedSize)
	copy(out, frame[offset:offset+int(t.FixedSize)])

	return value.Bytes(out), nil
}

func decodeBytesLike(frame []byte, offset int, t schema.Type, optional bool, fixedEnd, varEnd int, rec *blinkerr.Recorder) (value.Value, error) {
	inline := t.Max != nil && *t.Max <= inlineMaxBytes

	if inline {
		if optional {
			if frame[offset] == absentByte {
				return value.Absent, nil
			}

			offset++
		}

		n := int(frame[offset])
		data := frame[offset+1 : offset+1+n]

		return decodedBytesLikeValue(t, data, rec, offset+1)
	}

	ptr := binary.LittleEndian.Uint32(frame[offset : offset+4])
	if ptr == 0 {
		if !optional {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "NULL pointer for non-nullable field")
		}

		return value.Absent, nil
	}

	if err := checkPointer(int(ptr), 4, fixedEnd, varEnd, len(frame)); err != nil {
		return value.Value{}, err
	}

	length := binary.LittleEndian.Uint32(frame[ptr : ptr+4])
	start := int(ptr) + 4

	if err := checkPointer(start, int(length), fixedEnd, varEnd, len(frame)); err != nil {
		return value.Value{}, err
	}

	return decodedBytesLikeValue(t, frame[start:start+int(length)], rec, start)
}

func decodedBytesLikeValue(t schema.Type, data []byte, rec *blinkerr.Recorder, offset int) (value.Value, error) {
	if t.Tag == schema.TagBinary {
		out := make([]byte, len(data))
		copy(out, data)

		return value.Bytes(out), nil
	}

	s := string(data)

	if !utf8.ValidString(s) {
		if e := rec.Weak(blinkerr.New(blinkerr.KindWeak, "invalid UTF-8 in string field").AtOffset(int64(offset))); e != nil {
			return value.Value{}, e
		}

		s = strings.ToValidUTF8(s, string(utf8.RuneError))
	}

	return value.String(s), nil
}

func decodeSequence(frame []byte, offset int, reg *registry.Registry, t schema.Type, optional bool, fixedEnd, varEnd int, rec *blinkerr.Recorder) (value.Value, error) {
	ptr := binary.LittleEndian.Uint32(frame[offset : offset+4])
	if ptr == 0 {
		if !optional {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "NULL pointer for non-nullable sequence")
		}

		return value.Absent, nil
	}

	if err := checkPointer(int(ptr), 4, fixedEnd, varEnd, len(frame)); err != nil {
		return value.Value{}, err
	}

	count := binary.LittleEndian.Uint32(frame[ptr : ptr+4])
	elemSize := fieldFixedSize(*t.Elem, false)
	itemsStart := int(ptr) + 4

	if err := checkPointer(itemsStart, int(count)*elemSize, fixedEnd, varEnd, len(frame)); err != nil {
		return value.Value{}, err
	}

	items := make([]value.Value, 0, count)

	for i := uint32(0); i < count; i++ {
		itemOff := itemsStart + int(i)*elemSize

		item, err := decodeField(frame, itemOff, reg, *t.Elem, false, itemsStart+int(count)*elemSize, varEnd, rec)
		if err != nil {
			return value.Value{}, err
		}

		items = append(items, item)
	}

	return value.Sequence(items), nil
}

func decodeStaticGroup(frame []byte, offset int, reg *registry.Registry, t schema.Type, optional bool, fixedEnd, varEnd int, rec *blinkerr.Recorder) (value.Value, error) {
	if optional {
		if frame[offset] == absentByte {
			return value.Absent, nil
		}

		offset++
	}

	nested := computeLayout(t.Group)
	sg := value.NewStaticGroupValue()

	for i, f := range t.Group.Fields {
		fv, err := decodeField(frame, offset+nested.Fields[i].Offset, reg, f.Type, f.Optional, fixedEnd, varEnd, rec)
		if err != nil {
			return value.Value{}, blinkerr.WrapField(err, f.Name)
		}

		if fv.Kind != value.KindAbsent {
			sg.Fields.Set(f.Name, fv)
		}
	}

	return value.Static(sg), nil
}

func decodeDynamicGroup(frame []byte, offset int, reg *registry.Registry, t schema.Type, optional bool, fixedEnd, varEnd int, rec *blinkerr.Recorder) (value.Value, error) {
	ptr := binary.LittleEndian.Uint32(frame[offset : offset+4])
	if ptr == 0 {
		if !optional {
			return value.Value{}, blinkerr.New(blinkerr.KindValue, "NULL pointer for non-nullable group")
		}

		return value.Absent, nil
	}

	if int(ptr) < fixedEnd || int(ptr) >= varEnd {
		return value.Value{}, blinkerr.New(blinkerr.KindFraming, "dynamic group pointer %d out of range", ptr)
	}

	msg, _, err := decodeFrame(reg, frame[ptr:], rec)
	if err != nil {
		return value.Value{}, err
	}

	if t.Tag == schema.TagDynamicGroupRef && t.Group != nil && !msg.UnknownType {
		concrete, err := reg.GetByName(schema.QName{Namespace: msg.Type.Namespace, Name: msg.Type.Name})
		if err == nil && !concrete.IsDescendantOf(t.Group) {
			werr := blinkerr.New(blinkerr.KindWeak, "W15: %s is not %s or a descendant", concrete.Name, t.Group.Name)
			if e := rec.Weak(werr); e != nil {
				return value.Value{}, e
			}
		}
	}

	return value.Msg(msg), nil
}

// checkPointer enforces spec §4.6.3: variable-region pointers must fall
// within [fixed_end, size) -- fixedEnd is the end of this frame's own fixed
// region, which can never legitimately hold variable data -- and the
// referenced payload must not run past the frame.
func checkPointer(start, length, fixedEnd, varEnd, frameLen int) error {
	if start < fixedEnd || start > varEnd {
		return blinkerr.New(blinkerr.KindFraming, "pointer %d out of range", start)
	}

	if start+length > frameLen {
		return blinkerr.New(blinkerr.KindFraming, "pointer payload of length %d at %d exceeds frame", length, start)
	}

	return nil
}
