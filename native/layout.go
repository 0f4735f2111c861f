package native

import "github.com/blink-proto/blink/schema"

// inlineMaxBytes is the largest declared string/binary max size that is
// stored inline in the fixed region (length byte + payload) instead of as a
// pointer into the variable-data region.
const inlineMaxBytes = 255

const pointerSize = 4 // u32 absolute frame offset

// fieldLayout is one field's fixed-region placement.
type fieldLayout struct {
	Offset int
	Size   int
}

// groupLayout is the fixed-region placement of every field of a group, in
// the group's linearized field order.
type groupLayout struct {
	Fields    []fieldLayout
	TotalSize int
}

func computeLayout(g *schema.GroupDef) groupLayout {
	lay := groupLayout{Fields: make([]fieldLayout, len(g.Fields))}

	off := 0

	for i, f := range g.Fields {
		size := fieldFixedSize(f.Type, f.Optional)
		lay.Fields[i] = fieldLayout{Offset: off, Size: size}
		off += size
	}

	lay.TotalSize = off

	return lay
}

// fieldFixedSize returns the number of bytes a field occupies in its
// containing group's fixed region.
func fieldFixedSize(t schema.Type, optional bool) int {
	switch t.Tag {
	case schema.TagPrimitive:
		size := primitiveFixedSize(t.Primitive)
		if optional {
			size++
		}

		return size

	case schema.TagEnumRef:
		size := 4
		if optional {
			size++
		}

		return size

	case schema.TagFixed:
		size := int(t.FixedSize)
		if optional {
			size++
		}

		return size

	case schema.TagString, schema.TagBinary:
		if t.Max != nil && *t.Max <= inlineMaxBytes {
			size := 1 + int(*t.Max)
			if optional {
				size++
			}

			return size
		}

		return pointerSize

	case schema.TagSequence:
		return pointerSize

	case schema.TagStaticGroupRef:
		size := computeLayout(t.Group).TotalSize
		if optional {
			size++
		}

		return size

	case schema.TagDynamicGroupRef, schema.TagObject:
		return pointerSize

	default:
		return 0
	}
}

// primitiveFixedSize returns the natural width, in bytes, of a scalar
// primitive as laid out in a Native frame's fixed region. decimal is
// exponent(i8) + mantissa(i64). date/timeOfDay widths follow Blink's
// reference encoding (date: i32 days, timeOfDayMilli: u32 ms,
// timeOfDayNano: u64 ns, milliTime/nanoTime: i64).
func primitiveFixedSize(p schema.Primitive) int {
	switch p {
	case schema.U8, schema.I8, schema.Bool:
		return 1
	case schema.U16, schema.I16:
		return 2
	case schema.U32, schema.I32, schema.Date, schema.TimeOfDayMilli:
		return 4
	case schema.U64, schema.I64, schema.F64, schema.MilliTime, schema.NanoTime, schema.TimeOfDayNano:
		return 8
	case schema.Decimal:
		return 9
	default:
		return 0
	}
}
