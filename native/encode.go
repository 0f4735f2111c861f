package native

import (
	"encoding/binary"
	"math"

	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/schema"
	"github.com/blink-proto/blink/value"
)

// varWriter accumulates a frame's variable-data region. base is the
// absolute frame offset of buf[0], i.e. 16 (header) + the fixed region
// size; every pointer slot written anywhere in the frame stores
// base+localOffset, never a region-relative offset.
type varWriter struct {
	buf  []byte
	base int
}

func (w *varWriter) reserve(n int) int {
	off := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)

	return off
}

func (w *varWriter) appendBytes(b []byte) (absOffset int) {
	off := len(w.buf)
	w.buf = append(w.buf, b...)

	return w.base + off
}

func (w *varWriter) writeAt(localOff int, data []byte) {
	copy(w.buf[localOff:localOff+len(data)], data)
}

// setter writes data at a field's byte offset, wherever that field's
// backing storage lives: the frame's fixed region for a top-level field, or
// a reserved slot inside a varWriter's buffer for a sequence item.
type setter func(offset int, data []byte)

// Encode renders m, whose declared type is g, as one Native Binary frame.
func Encode(reg *registry.Registry, g *schema.GroupDef, m *value.Message, rec *blinkerr.Recorder) ([]byte, error) {
	if g.TypeID == nil {
		return nil, blinkerr.New(blinkerr.KindValue, "group %s has no type id, cannot be framed", g.Name)
	}

	lay := computeLayout(g)
	fixed := make([]byte, lay.TotalSize)
	set := func(off int, data []byte) { copy(fixed[off:off+len(data)], data) }

	vw := &varWriter{base: 16 + lay.TotalSize}

	for i, f := range g.Fields {
		fv, ok := m.Fields.Get(f.Name)
		if !ok {
			if !f.Optional {
				return nil, blinkerr.New(blinkerr.KindValue, "missing required field %s.%s", g.Name, f.Name).InField(f.Name)
			}

			fv = value.Absent
		}

		if err := encodeField(set, lay.Fields[i].Offset, reg, f.Type, f.Optional, fv, vw, rec); err != nil {
			return nil, blinkerr.WrapField(err, f.Name)
		}
	}

	extOffset := 0
	var extBuf []byte

	if len(m.Extension) > 0 {
		extOffset = vw.base + len(vw.buf)

		for _, ext := range m.Extension {
			extG, err := reg.GetByName(schema.QName{Namespace: ext.Type.Namespace, Name: ext.Type.Name})
			if err != nil {
				return nil, err
			}

			frame, err := Encode(reg, extG, ext, rec)
			if err != nil {
				return nil, err
			}

			extBuf = append(extBuf, frame...)
		}
	}

	total := vw.base + len(vw.buf) + len(extBuf)

	out := make([]byte, 16, total)
	binary.LittleEndian.PutUint32(out[0:4], uint32(total))
	binary.LittleEndian.PutUint64(out[4:12], *g.TypeID)
	binary.LittleEndian.PutUint32(out[12:16], uint32(extOffset))

	out = append(out, fixed...)
	out = append(out, vw.buf...)
	out = append(out, extBuf...)

	return out, nil
}

func encodeField(set setter, offset int, reg *registry.Registry, t schema.Type, optional bool, v value.Value, vw *varWriter, rec *blinkerr.Recorder) error {
	switch t.Tag {
	case schema.TagPrimitive:
		return encodePrimitive(set, offset, t.Primitive, optional, v, rec)

	case schema.TagEnumRef:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(int32(v.Int)))
		set(offset, b[:])

		return nil

	case schema.TagFixed:
		return encodeFixed(set, offset, t, optional, v)

	case schema.TagString, schema.TagBinary:
		return encodeBytesLike(set, offset, t, optional, v, vw)

	case schema.TagSequence:
		return encodeSequence(set, offset, reg, t, optional, v, vw, rec)

	case schema.TagStaticGroupRef:
		return encodeStaticGroup(set, offset, reg, t, optional, v, vw, rec)

	case schema.TagDynamicGroupRef, schema.TagObject:
		return encodeDynamicGroup(set, offset, reg, t, optional, v, vw, rec)

	default:
		return blinkerr.New(blinkerr.KindValue, "unencodable type tag %d", t.Tag)
	}
}

func encodePrimitive(set setter, offset int, p schema.Primitive, optional bool, v value.Value, rec *blinkerr.Recorder) error {
	if optional {
		if v.Kind == value.KindAbsent {
			set(offset, []byte{absentByte})
			return nil
		}

		set(offset, []byte{presenceByte})
		offset++
	}

	switch p {
	case schema.Bool:
		b := byte(0)
		if v.Bool {
			b = 1
		}

		set(offset, []byte{b})

	case schema.U8:
		uv, err := clampOrRecord(rec, p, v.Uint)
		if err != nil {
			return err
		}

		set(offset, []byte{byte(uv)})

	case schema.I8:
		iv, err := clampOrRecordSigned(rec, p, v.Int)
		if err != nil {
			return err
		}

		set(offset, []byte{byte(int8(iv))})

	case schema.U16:
		uv, err := clampOrRecord(rec, p, v.Uint)
		if err != nil {
			return err
		}

		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(uv))
		set(offset, b[:])

	case schema.I16:
		iv, err := clampOrRecordSigned(rec, p, v.Int)
		if err != nil {
			return err
		}

		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(int16(iv)))
		set(offset, b[:])

	case schema.U32, schema.TimeOfDayMilli:
		uv, err := clampOrRecord(rec, p, v.Uint)
		if err != nil {
			return err
		}

		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(uv))
		set(offset, b[:])

	case schema.I32, schema.Date:
		iv, err := clampOrRecordSigned(rec, p, v.Int)
		if err != nil {
			return err
		}

		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(int32(iv)))
		set(offset, b[:])

	case schema.U64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v.Uint)
		set(offset, b[:])

	case schema.I64, schema.MilliTime, schema.NanoTime:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v.Int))
		set(offset, b[:])

	case schema.TimeOfDayNano:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v.Uint)
		set(offset, b[:])

	case schema.F64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.Float))
		set(offset, b[:])

	case schema.Decimal:
		var b [9]byte
		b[0] = byte(v.Decimal.Exponent)
		binary.LittleEndian.PutUint64(b[1:], uint64(v.Decimal.Mantissa))
		set(offset, b[:])

	default:
		return blinkerr.New(blinkerr.KindValue, "unencodable primitive %s", p)
	}

	return nil
}

// clampOrRecord reports a weak out-of-range error through rec (aborting in
// strict mode) and returns v clamped to the primitive's width.
func clampOrRecord(rec *blinkerr.Recorder, p schema.Primitive, v uint64) (uint64, error) {
	width := p.Width()
	if width == 0 {
		return v, nil
	}

	if max := uint64(1)<<uint(width) - 1; v > max {
		if err := rec.Weak(blinkerr.New(blinkerr.KindWeak, "%s value %d out of range", p, v)); err != nil {
			return 0, err
		}

		return max, nil
	}

	return v, nil
}

func clampOrRecordSigned(rec *blinkerr.Recorder, p schema.Primitive, v int64) (int64, error) {
	width := p.Width()
	if width == 0 {
		return v, nil
	}

	min := int64(-1) << uint(width-1)
	max := int64(1)<<uint(width-1) - 1

	switch {
	case v < min:
		if err := rec.Weak(blinkerr.New(blinkerr.KindWeak, "%s value %d out of range", p, v)); err != nil {
			return 0, err
		}

		return min, nil
	case v > max:
		if err := rec.Weak(blinkerr.New(blinkerr.KindWeak, "%s value %d out of range", p, v)); err != nil {
			return 0, err
		}

		return max, nil
	default:
		return v, nil
	}
}

func encodeFixed(set setter, offset int, t schema.Type, optional bool, v value.Value) error {
	if optional {
		if v.Kind == value.KindAbsent {
			set(offset, []byte{absentByte})
			return nil
		}

		set(offset, []byte{presenceByte})
		offset++
	}

	if uint64(len(v.Bytes)) != t.FixedSize {
		return blinkerr.New(blinkerr.KindValue, "fixed(%d) field given %d bytes", t.FixedSize, len(v.Bytes))
	}

	set(offset, v.Bytes)

	return nil
}

func encodeBytesLike(set setter, offset int, t schema.Type, optional bool, v value.Value, vw *varWriter) error {
	data := v.Bytes
	if t.Tag == schema.TagString {
		data = []byte(v.Str)
	}

	inline := t.Max != nil && *t.Max <= inlineMaxBytes

	if optional {
		if v.Kind == value.KindAbsent {
			if inline {
				set(offset, []byte{absentByte})
			} else {
				set(offset, []byte{0, 0, 0, 0})
			}

			return nil
		}

		if inline {
			set(offset, []byte{presenceByte})
			offset++
		}
	}

	if inline {
		if len(data) > int(*t.Max) {
			return blinkerr.New(blinkerr.KindValue, "inline string/binary exceeds declared max %d", *t.Max)
		}

		set(offset, []byte{byte(len(data))})
		set(offset+1, data)

		return nil
	}

	var lenB [4]byte
	binary.LittleEndian.PutUint32(lenB[:], uint32(len(data)))

	abs := vw.appendBytes(lenB[:])
	vw.appendBytes(data)

	var ptr [4]byte
	binary.LittleEndian.PutUint32(ptr[:], uint32(abs))
	set(offset, ptr[:])

	return nil
}

func encodeSequence(set setter, offset int, reg *registry.Registry, t schema.Type, optional bool, v value.Value, vw *varWriter, rec *blinkerr.Recorder) error {
	if optional && v.Kind == value.KindAbsent {
		set(offset, []byte{0, 0, 0, 0})
		return nil
	}

	elemSize := fieldFixedSize(*t.Elem, false)
	localOff := vw.reserve(4 + len(v.Seq)*elemSize)
	abs := vw.base + localOff

	var countB [4]byte
	binary.LittleEndian.PutUint32(countB[:], uint32(len(v.Seq)))
	vw.writeAt(localOff, countB[:])

	itemsLocalOff := localOff + 4

	for i, elem := range v.Seq {
		itemOff := itemsLocalOff + i*elemSize
		itemSet := func(o int, data []byte) { vw.writeAt(itemOff+o, data) }

		if err := encodeField(itemSet, 0, reg, *t.Elem, false, elem, vw, rec); err != nil {
			return err
		}
	}

	var ptr [4]byte
	binary.LittleEndian.PutUint32(ptr[:], uint32(abs))
	set(offset, ptr[:])

	return nil
}

func encodeStaticGroup(set setter, offset int, reg *registry.Registry, t schema.Type, optional bool, v value.Value, vw *varWriter, rec *blinkerr.Recorder) error {
	if optional {
		if v.Kind == value.KindAbsent {
			set(offset, []byte{absentByte})
			return nil
		}

		set(offset, []byte{presenceByte})
		offset++
	}

	nested := computeLayout(t.Group)
	sg := v.Static

	for i, f := range t.Group.Fields {
		fv, ok := sg.Fields.Get(f.Name)
		if !ok {
			if !f.Optional {
				return blinkerr.New(blinkerr.KindValue, "missing required field %s.%s", t.Group.Name, f.Name).InField(f.Name)
			}

			fv = value.Absent
		}

		fieldOff := offset + nested.Fields[i].Offset
		nestedSet := func(o int, data []byte) { set(fieldOff+o, data) }

		if err := encodeField(nestedSet, 0, reg, f.Type, f.Optional, fv, vw, rec); err != nil {
			return blinkerr.WrapField(err, f.Name)
		}
	}

	return nil
}

func encodeDynamicGroup(set setter, offset int, reg *registry.Registry, t schema.Type, optional bool, v value.Value, vw *varWriter, rec *blinkerr.Recorder) error {
	if optional && v.Kind == value.KindAbsent {
		set(offset, []byte{0, 0, 0, 0})
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

	frame, err := Encode(reg, concrete, msg, rec)
	if err != nil {
		return err
	}

	abs := vw.appendBytes(frame)

	var ptr [4]byte
	binary.LittleEndian.PutUint32(ptr[:], uint32(abs))
	set(offset, ptr[:])

	return nil
}
