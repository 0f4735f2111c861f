package dynschema

import (
	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/schema"
	"github.com/blink-proto/blink/value"
)

// descriptorFields is the Go-side mirror of one TypeDescriptor static
// group's fields. buildDescriptor and resolveDescriptor convert between it
// and a real schema.Type; encode.go and decode.go flatten two of these
// (the field's own type, and, for a sequence, its element type) into or
// out of a TypeDescriptor value.
type descriptorFields struct {
	kind         string
	primitive    string
	max          uint64
	hasMax       bool
	fixedSize    uint64
	refNamespace string
	refName      string
}

// buildDescriptor converts a resolved schema.Type into its wire
// descriptor. t must not itself be a sequence; sequence element types are
// described by a second, Elem-prefixed descriptor (see toTypeDescriptorValue).
func buildDescriptor(t schema.Type) descriptorFields {
	switch t.Tag {
	case schema.TagPrimitive:
		return descriptorFields{kind: "primitive", primitive: t.Primitive.String()}

	case schema.TagString:
		d := descriptorFields{kind: "string"}
		if t.Max != nil {
			d.max, d.hasMax = *t.Max, true
		}

		return d

	case schema.TagBinary:
		d := descriptorFields{kind: "binary"}
		if t.Max != nil {
			d.max, d.hasMax = *t.Max, true
		}

		return d

	case schema.TagFixed:
		return descriptorFields{kind: "fixed", fixedSize: t.FixedSize}

	case schema.TagEnumRef:
		return descriptorFields{kind: "enum", refNamespace: t.Enum.Name.Namespace, refName: t.Enum.Name.Name}

	case schema.TagStaticGroupRef:
		return descriptorFields{kind: "staticGroup", refNamespace: t.Group.Name.Namespace, refName: t.Group.Name.Name}

	case schema.TagDynamicGroupRef:
		d := descriptorFields{kind: "dynamicGroup"}
		if t.Group != nil {
			d.refNamespace, d.refName = t.Group.Name.Namespace, t.Group.Name.Name
		}

		return d

	case schema.TagObject:
		return descriptorFields{kind: "object"}

	case schema.TagSequence:
		return descriptorFields{kind: "sequence"}

	default:
		return descriptorFields{kind: "unknown"}
	}
}

// resolveDescriptor is the inverse of buildDescriptor, resolving any named
// reference against target -- the application registry the update is
// destined for, never the self-schema registry.
func resolveDescriptor(target *registry.Registry, d descriptorFields) (schema.Type, error) {
	switch d.kind {
	case "primitive":
		p, ok := primitiveFromName(d.primitive)
		if !ok {
			return schema.Type{}, blinkerr.New(blinkerr.KindSchemaUpdate, "unknown primitive name %q", d.primitive)
		}

		return schema.Type{Tag: schema.TagPrimitive, Primitive: p}, nil

	case "string":
		t := schema.Type{Tag: schema.TagString}
		if d.hasMax {
			m := d.max
			t.Max = &m
		}

		return t, nil

	case "binary":
		t := schema.Type{Tag: schema.TagBinary}
		if d.hasMax {
			m := d.max
			t.Max = &m
		}

		return t, nil

	case "fixed":
		return schema.Type{Tag: schema.TagFixed, FixedSize: d.fixedSize}, nil

	case "enum":
		e, err := target.Enum(schema.QName{Namespace: d.refNamespace, Name: d.refName})
		if err != nil {
			return schema.Type{}, err
		}

		return schema.Type{Tag: schema.TagEnumRef, Enum: e}, nil

	case "staticGroup":
		g, err := target.GetByName(schema.QName{Namespace: d.refNamespace, Name: d.refName})
		if err != nil {
			return schema.Type{}, err
		}

		return schema.Type{Tag: schema.TagStaticGroupRef, Group: g}, nil

	case "dynamicGroup":
		if d.refName == "" {
			return schema.Type{Tag: schema.TagDynamicGroupRef}, nil
		}

		g, err := target.GetByName(schema.QName{Namespace: d.refNamespace, Name: d.refName})
		if err != nil {
			return schema.Type{}, err
		}

		return schema.Type{Tag: schema.TagDynamicGroupRef, Group: g}, nil

	case "object":
		return schema.Type{Tag: schema.TagObject}, nil

	default:
		return schema.Type{}, blinkerr.New(blinkerr.KindSchemaUpdate, "unknown type descriptor kind %q", d.kind)
	}
}

// primitiveFromName is the inverse of schema.Primitive.String, duplicated
// here since schema does not export its name table (self-schema wire text
// is the only other place primitive names appear as data rather than
// source syntax).
func primitiveFromName(name string) (schema.Primitive, bool) {
	switch name {
	case "u8":
		return schema.U8, true
	case "u16":
		return schema.U16, true
	case "u32":
		return schema.U32, true
	case "u64":
		return schema.U64, true
	case "i8":
		return schema.I8, true
	case "i16":
		return schema.I16, true
	case "i32":
		return schema.I32, true
	case "i64":
		return schema.I64, true
	case "bool":
		return schema.Bool, true
	case "f64":
		return schema.F64, true
	case "decimal":
		return schema.Decimal, true
	case "millitime":
		return schema.MilliTime, true
	case "nanotime":
		return schema.NanoTime, true
	case "date":
		return schema.Date, true
	case "timeOfDayMilli":
		return schema.TimeOfDayMilli, true
	case "timeOfDayNano":
		return schema.TimeOfDayNano, true
	default:
		return 0, false
	}
}

// toTypeDescriptorValue renders t (and, if t is a sequence, its element
// type under the Elem* fields) as a TypeDescriptor static group value.
func toTypeDescriptorValue(t schema.Type) value.Value {
	sg := value.NewStaticGroupValue()

	setDescriptorFields(sg.Fields, "", buildDescriptor(t))

	if t.Tag == schema.TagSequence {
		setDescriptorFields(sg.Fields, "Elem", buildDescriptor(*t.Elem))
	}

	return value.Static(sg)
}

func setDescriptorFields(fields *value.Fields, prefix string, d descriptorFields) {
	fields.Set(prefix+"Kind", value.String(d.kind))

	if d.primitive != "" {
		fields.Set(prefix+"Primitive", value.String(d.primitive))
	}

	if d.hasMax {
		fields.Set(prefix+"Max", value.Uint(d.max))
	}

	if d.fixedSize != 0 {
		fields.Set(prefix+"FixedSize", value.Uint(d.fixedSize))
	}

	if d.refNamespace != "" || d.refName != "" {
		fields.Set(prefix+"RefNamespace", value.String(d.refNamespace))
		fields.Set(prefix+"RefName", value.String(d.refName))
	}
}

// fromTypeDescriptorValue is the inverse of toTypeDescriptorValue,
// resolving named references against target.
func fromTypeDescriptorValue(target *registry.Registry, sg *value.StaticGroupValue) (schema.Type, error) {
	d := readDescriptorFields(sg.Fields, "")

	if d.kind != "sequence" {
		return resolveDescriptor(target, d)
	}

	ed := readDescriptorFields(sg.Fields, "Elem")

	elem, err := resolveDescriptor(target, ed)
	if err != nil {
		return schema.Type{}, err
	}

	return schema.Type{Tag: schema.TagSequence, Elem: &elem}, nil
}

func readDescriptorFields(fields *value.Fields, prefix string) descriptorFields {
	var d descriptorFields

	if v, ok := fields.Get(prefix + "Kind"); ok {
		d.kind = v.Str
	}

	if v, ok := fields.Get(prefix + "Primitive"); ok {
		d.primitive = v.Str
	}

	if v, ok := fields.Get(prefix + "Max"); ok {
		d.max, d.hasMax = v.Uint, true
	}

	if v, ok := fields.Get(prefix + "FixedSize"); ok {
		d.fixedSize = v.Uint
	}

	if v, ok := fields.Get(prefix + "RefNamespace"); ok {
		d.refNamespace = v.Str
	}

	if v, ok := fields.Get(prefix + "RefName"); ok {
		d.refName = v.Str
	}

	return d
}
