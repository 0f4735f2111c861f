package schemaexport

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/schema"
)

// JSON Schema "type" string constants, mirroring the teacher's magicschema
// package. These are plain strings, not part of the jsonschema package
// itself.
const (
	typeBoolean = "boolean"
	typeInteger = "integer"
	typeNumber  = "number"
	typeString  = "string"
	typeArray   = "array"
	typeObject  = "object"
)

// Export returns a JSON Schema document for the group named qn, with every
// group it transitively references (itself included) collected into the
// returned schema's Defs map as "#/$defs/<Namespace:Name>" entries. Enums
// are inlined at each use; typedefs were already inlined by resolution.
func Export(reg *registry.Registry, qn schema.QName) (*jsonschema.Schema, error) {
	g, err := reg.GetByName(qn)
	if err != nil {
		return nil, fmt.Errorf("schemaexport: %s: %w", qn, err)
	}

	ex := &exporter{reg: reg, defs: map[string]*jsonschema.Schema{}}

	root, err := ex.groupRef(g)
	if err != nil {
		return nil, err
	}

	root.Defs = ex.defs

	return root, nil
}

type exporter struct {
	reg  *registry.Registry
	defs map[string]*jsonschema.Schema
}

// groupRef returns the top-level schema for g: its own object schema, not a
// $ref to it. Defs is populated with g and anything it references.
func (ex *exporter) groupRef(g *schema.GroupDef) (*jsonschema.Schema, error) {
	key := g.Name.String()

	if s, ok := ex.defs[key]; ok {
		return s, nil
	}

	s := &jsonschema.Schema{Type: typeObject}
	ex.defs[key] = s // register before recursing, breaks reference cycles

	if err := ex.fillObject(s, g); err != nil {
		return nil, err
	}

	return s, nil
}

func (ex *exporter) fillObject(s *jsonschema.Schema, g *schema.GroupDef) error {
	s.Title = g.Name.String()
	s.Properties = make(map[string]*jsonschema.Schema, len(g.Fields))
	s.PropertyOrder = make([]string, 0, len(g.Fields))
	s.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}

	for _, f := range g.Fields {
		fs, err := ex.fieldType(f.Type)
		if err != nil {
			return fmt.Errorf("schemaexport: %s.%s: %w", g.Name, f.Name, err)
		}

		if desc, ok := f.Annotations["description"]; ok {
			fs.Description = desc
		}

		if f.Annotations["deprecated"] == "true" {
			fs.Deprecated = true
		}

		s.Properties[f.Name] = fs
		s.PropertyOrder = append(s.PropertyOrder, f.Name)

		if !f.Optional {
			s.Required = append(s.Required, f.Name)
		}
	}

	return nil
}

// fieldType converts a resolved Blink field type to a JSON Schema fragment.
// Group references become "$ref" pointers into Defs; every other type is
// inlined.
func (ex *exporter) fieldType(t schema.Type) (*jsonschema.Schema, error) {
	switch t.Tag {
	case schema.TagPrimitive:
		return primitiveSchema(t.Primitive), nil

	case schema.TagString:
		s := &jsonschema.Schema{Type: typeString}
		if t.Max != nil {
			max := int(*t.Max)
			s.MaxLength = &max
		}

		return s, nil

	case schema.TagBinary:
		s := &jsonschema.Schema{Type: typeString, ContentMediaType: "application/octet-stream"}
		if t.Max != nil {
			max := int(*t.Max)
			s.MaxLength = &max
		}

		return s, nil

	case schema.TagFixed:
		n := int(t.FixedSize)

		return &jsonschema.Schema{
			Type:             typeString,
			ContentMediaType: "application/octet-stream",
			MinLength:        &n,
			MaxLength:        &n,
		}, nil

	case schema.TagEnumRef:
		return ex.enumSchema(t.Enum), nil

	case schema.TagSequence:
		if t.Elem == nil {
			return nil, blinkerr.New(blinkerr.KindValue, "sequence field missing element type")
		}

		elem, err := ex.fieldType(*t.Elem)
		if err != nil {
			return nil, err
		}

		return &jsonschema.Schema{Type: typeArray, Items: elem}, nil

	case schema.TagStaticGroupRef, schema.TagDynamicGroupRef:
		if t.Group == nil {
			return nil, blinkerr.New(blinkerr.KindValue, "group reference missing target")
		}

		if _, err := ex.groupRef(t.Group); err != nil {
			return nil, err
		}

		return &jsonschema.Schema{Ref: "#/$defs/" + t.Group.Name.String()}, nil

	case schema.TagObject:
		return &jsonschema.Schema{}, nil // validates any value, Blink's untyped "object"

	default:
		return nil, blinkerr.New(blinkerr.KindValue, "unsupported type tag %v", t.Tag)
	}
}

// enumSchema renders an enum as a string enumeration of its symbol names.
// One schema is built per call site rather than cached in Defs: enums carry
// no nested references and are cheap to duplicate inline.
func (ex *exporter) enumSchema(e *schema.EnumDef) *jsonschema.Schema {
	enum := make([]any, len(e.Symbols))
	for i, sym := range e.Symbols {
		enum[i] = sym.Name
	}

	return &jsonschema.Schema{Type: typeString, Enum: enum, Title: e.Name.String()}
}

// bigThreshold mirrors blinkjson's own large-number boundary: u64/i64
// values at or beyond this magnitude render as strings, since JSON numbers
// cannot carry full 64-bit precision.
const bigThreshold = 1_000_000_000_000_000

// primitiveSchema maps a Blink primitive to a JSON Schema type. u64/i64 are
// declared as an integer|string union, matching blinkjson, which writes
// values within bigThreshold as JSON numbers and larger ones as strings.
// decimal is declared as a number|string union; blinkjson writes a decimal
// whose mantissa is at or beyond bigThreshold as an {"exponent","mantissa"}
// object, which this type does not accept.
func primitiveSchema(p schema.Primitive) *jsonschema.Schema {
	switch p {
	case schema.U8, schema.U16, schema.U32, schema.I8, schema.I16, schema.I32:
		return &jsonschema.Schema{Type: typeInteger}

	case schema.U64, schema.I64:
		return &jsonschema.Schema{Types: []string{typeInteger, typeString}}

	case schema.F64:
		return &jsonschema.Schema{Type: typeNumber}

	case schema.Decimal:
		return &jsonschema.Schema{Types: []string{typeNumber, typeString}}

	case schema.Bool:
		return &jsonschema.Schema{Type: typeBoolean}

	default:
		return &jsonschema.Schema{}
	}
}
