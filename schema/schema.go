package schema

import "github.com/blink-proto/blink/blinkerr"

// FieldDef is a resolved group field.
type FieldDef struct {
	Name        string
	Type        Type
	Optional    bool
	Annotations map[string]string
	Line, Col   int
}

// GroupDef is a resolved group (message type). Fields is the linearized
// field list: super.Fields followed by the group's own declared fields.
// LocalFields holds only the fields declared directly on this group.
type GroupDef struct {
	Name        QName
	TypeID      *uint64
	Super       *GroupDef
	LocalFields []FieldDef
	Fields      []FieldDef
	Annotations map[string]string
	Line, Col   int
}

// IsDescendantOf reports whether g is base or a (possibly indirect)
// subtype of base. Used by the Compact codec's polymorphism check (W15).
func (g *GroupDef) IsDescendantOf(base *GroupDef) bool {
	for cur := g; cur != nil; cur = cur.Super {
		if cur == base {
			return true
		}
	}

	return false
}

// EnumSymbol is one member of an EnumDef.
type EnumSymbol struct {
	Name  string
	Value int32
}

// EnumDef is a resolved enum type.
type EnumDef struct {
	Name      QName
	Symbols   []EnumSymbol
	Line, Col int
}

// SymbolByValue returns the symbol name for v, or false if unmapped.
func (e *EnumDef) SymbolByValue(v int32) (string, bool) {
	for _, s := range e.Symbols {
		if s.Value == v {
			return s.Name, true
		}
	}

	return "", false
}

// ValueBySymbol returns the i32 value for a symbol name, or false if
// unknown.
func (e *EnumDef) ValueBySymbol(name string) (int32, bool) {
	for _, s := range e.Symbols {
		if s.Name == name {
			return s.Value, true
		}
	}

	return 0, false
}

// TypeDef is a resolved type alias, kept for introspection even though
// every reference to it has already been inlined into the resolved Type
// graph.
type TypeDef struct {
	Name      QName
	Target    Type
	Line, Col int
}

// Schema is the frozen output of [Resolve]: resolved groups, enums, and
// typedefs, ready to build a [registry.Registry] from.
type Schema struct {
	Groups   []*GroupDef
	Enums    []*EnumDef
	TypeDefs []*TypeDef
}

// LinearizeFields computes super.Fields ++ local, rejecting duplicate
// field names. It is used by the registry's dynamic schema exchange apply
// path when a new group is declared at runtime; [Resolve] performs the same
// linearization and duplicate check inline.
func LinearizeFields(super *GroupDef, local []FieldDef) ([]FieldDef, error) {
	var inherited []FieldDef
	if super != nil {
		inherited = super.Fields
	}

	seen := make(map[string]bool, len(inherited)+len(local))
	for _, f := range inherited {
		seen[f.Name] = true
	}

	for _, f := range local {
		if seen[f.Name] {
			return nil, blinkerr.New(blinkerr.KindResolve, "duplicate field name %s", f.Name)
		}

		seen[f.Name] = true
	}

	out := make([]FieldDef, 0, len(inherited)+len(local))
	out = append(out, inherited...)
	out = append(out, local...)

	return out, nil
}
