package schema

import "github.com/blink-proto/blink/blinkerr"

// Resolve turns an untyped [AST] into a frozen [Schema]: every type
// reference gets an explicit [QName], typedefs are inlined, group
// inheritance is linearized, and annotations are merged (inline first,
// then incremental in lexical order, later values winning).
func Resolve(ast *AST) (*Schema, error) {
	r := &resolver{
		groupAST:     map[QName]astGroup{},
		enumAST:      map[QName]astEnum{},
		typedefAST:   map[QName]astTypeDef{},
		groups:       map[QName]*GroupDef{},
		enums:        map[QName]*EnumDef{},
		typedefs:     map[QName]*TypeDef{},
		typedefOrder: map[QName]Type{},
		typeDefVisit: map[QName]int{},
		groupVisit:   map[QName]int{},
	}

	for _, g := range ast.Groups {
		qn := QName{Namespace: g.Namespace, Name: g.Name}
		if _, dup := r.groupAST[qn]; dup {
			return nil, resolveErrf(g.Pos, "duplicate group %s", qn)
		}

		r.groupAST[qn] = g
		r.groups[qn] = &GroupDef{Name: qn, TypeID: g.TypeID, Line: g.Pos.Line, Col: g.Pos.Col}
		r.groupOrder = append(r.groupOrder, qn)
	}

	for _, e := range ast.Enums {
		qn := QName{Namespace: e.Namespace, Name: e.Name}
		if _, dup := r.enumAST[qn]; dup {
			return nil, resolveErrf(e.Pos, "duplicate enum %s", qn)
		}

		r.enumAST[qn] = e
		r.enumOrder = append(r.enumOrder, qn)
	}

	for _, td := range ast.TypeDefs {
		qn := QName{Namespace: td.Namespace, Name: td.Name}
		if _, dup := r.typedefAST[qn]; dup {
			return nil, resolveErrf(td.Pos, "duplicate typedef %s", qn)
		}

		r.typedefAST[qn] = td
	}

	for _, qn := range r.enumOrder {
		e, err := r.buildEnum(qn)
		if err != nil {
			return nil, err
		}

		r.enums[qn] = e
	}

	for qn := range r.typedefAST {
		if _, err := r.resolveTypedef(qn); err != nil {
			return nil, err
		}
	}

	for _, qn := range r.groupOrder {
		if _, err := r.resolveGroup(qn); err != nil {
			return nil, err
		}
	}

	typeIDs := map[uint64]QName{}

	for _, qn := range r.groupOrder {
		g := r.groups[qn]
		if g.TypeID == nil {
			continue
		}

		if owner, dup := typeIDs[*g.TypeID]; dup {
			return nil, blinkerr.New(blinkerr.KindResolve,
				"duplicate type id %d on %s (already used by %s)", *g.TypeID, qn, owner)
		}

		typeIDs[*g.TypeID] = qn
	}

	for _, inc := range ast.Incremental {
		if err := r.applyIncremental(inc); err != nil {
			return nil, err
		}
	}

	sch := &Schema{}
	for _, qn := range r.groupOrder {
		sch.Groups = append(sch.Groups, r.groups[qn])
	}

	for _, qn := range r.enumOrder {
		sch.Enums = append(sch.Enums, r.enums[qn])
	}

	for _, td := range r.typedefAST {
		qn := QName{Namespace: td.Namespace, Name: td.Name}
		sch.TypeDefs = append(sch.TypeDefs, &TypeDef{
			Name: qn, Target: r.typedefOrder[qn], Line: td.Pos.Line, Col: td.Pos.Col,
		})
	}

	return sch, nil
}

const (
	visitUnvisited = 0
	visitVisiting  = 1
	visitDone      = 2
)

type resolver struct {
	groupAST   map[QName]astGroup
	enumAST    map[QName]astEnum
	typedefAST map[QName]astTypeDef

	groups   map[QName]*GroupDef
	enums    map[QName]*EnumDef
	typedefs map[QName]*TypeDef

	typedefOrder map[QName]Type
	typeDefVisit map[QName]int
	groupVisit   map[QName]int

	groupOrder []QName
	enumOrder  []QName
}

func resolveRef(ref astQName, currentNS string) QName {
	if ref.Namespace != "" {
		return QName{Namespace: ref.Namespace, Name: ref.Name}
	}

	if currentNS != "" {
		return QName{Namespace: currentNS, Name: ref.Name}
	}

	return QName{Name: ref.Name}
}

func resolveErrf(pos astPos, format string, args ...any) error {
	return blinkerr.New(blinkerr.KindResolve, format, args...).AtPos(pos.Line, pos.Col)
}

func (r *resolver) buildEnum(qn QName) (*EnumDef, error) {
	ast := r.enumAST[qn]
	e := &EnumDef{Name: qn, Line: ast.Pos.Line, Col: ast.Pos.Col}
	seen := map[string]bool{}

	for _, s := range ast.Symbols {
		if seen[s.Name] {
			return nil, resolveErrf(ast.Pos, "duplicate enum symbol %s.%s", qn, s.Name)
		}

		seen[s.Name] = true
		e.Symbols = append(e.Symbols, EnumSymbol{Name: s.Name, Value: s.Value})
	}

	return e, nil
}

func (r *resolver) resolveTypedef(qn QName) (Type, error) {
	if t, ok := r.typedefOrder[qn]; ok {
		return t, nil
	}

	switch r.typeDefVisit[qn] {
	case visitVisiting:
		return Type{}, blinkerr.New(blinkerr.KindResolve, "cycle in typedef %s", qn)
	}

	ast, ok := r.typedefAST[qn]
	if !ok {
		return Type{}, blinkerr.New(blinkerr.KindResolve, "unknown typedef %s", qn)
	}

	r.typeDefVisit[qn] = visitVisiting

	t, err := r.resolveType(ast.Target, ast.Namespace)
	if err != nil {
		return Type{}, err
	}

	r.typeDefVisit[qn] = visitDone
	r.typedefOrder[qn] = t

	return t, nil
}

func (r *resolver) resolveGroup(qn QName) (*GroupDef, error) {
	g := r.groups[qn]

	switch r.groupVisit[qn] {
	case visitDone:
		return g, nil
	case visitVisiting:
		return nil, blinkerr.New(blinkerr.KindResolve, "inheritance cycle at %s", qn)
	}

	r.groupVisit[qn] = visitVisiting

	ast, ok := r.groupAST[qn]
	if !ok {
		return nil, blinkerr.New(blinkerr.KindResolve, "unknown group %s", qn)
	}

	var inherited []FieldDef

	if ast.Super != nil {
		superQN := resolveRef(*ast.Super, ast.Namespace)

		superDef, ok := r.groups[superQN]
		if !ok {
			return nil, resolveErrf(ast.Pos, "unknown super type %s for %s", superQN, qn)
		}

		if _, err := r.resolveGroup(superQN); err != nil {
			return nil, err
		}

		g.Super = superDef
		inherited = append(inherited, superDef.Fields...)
	}

	seen := map[string]bool{}
	for _, f := range inherited {
		seen[f.Name] = true
	}

	g.Annotations = mergeAnnotationList(nil, ast.Annotations)

	for _, af := range ast.Fields {
		if seen[af.Name] {
			return nil, resolveErrf(af.Pos, "duplicate field name %s on %s", af.Name, qn)
		}

		seen[af.Name] = true

		typ, err := r.resolveType(af.Type, ast.Namespace)
		if err != nil {
			return nil, err
		}

		if af.Type.Dynamic && typ.Tag != TagDynamicGroupRef {
			return nil, resolveErrf(af.Pos, "'*' marker on non-group field %s", af.Name)
		}

		fd := FieldDef{
			Name:        af.Name,
			Type:        typ,
			Optional:    af.Optional,
			Annotations: mergeAnnotationList(nil, af.Annotations),
			Line:        af.Pos.Line,
			Col:         af.Pos.Col,
		}

		g.LocalFields = append(g.LocalFields, fd)
	}

	g.Fields = append(append([]FieldDef{}, inherited...), g.LocalFields...)
	r.groupVisit[qn] = visitDone

	return g, nil
}

func (r *resolver) resolveType(t astType, currentNS string) (Type, error) {
	switch t.Kind {
	case astKindPrimitive:
		return Type{Tag: TagPrimitive, Primitive: t.Primitive}, nil
	case astKindString:
		return Type{Tag: TagString, Max: t.Max}, nil
	case astKindBinary:
		return Type{Tag: TagBinary, Max: t.Max}, nil
	case astKindFixed:
		if t.FixedSize < 1 {
			return Type{}, resolveErrf(t.Pos, "fixed(%d) must have size >= 1", t.FixedSize)
		}

		return Type{Tag: TagFixed, FixedSize: t.FixedSize}, nil
	case astKindObject:
		return Type{Tag: TagObject}, nil
	case astKindSequence:
		elem, err := r.resolveType(*t.Elem, currentNS)
		if err != nil {
			return Type{}, err
		}

		if elem.IsSequence() {
			return Type{}, resolveErrf(t.Pos, "nested sequences are not allowed")
		}

		return Type{Tag: TagSequence, Elem: &elem}, nil
	case astKindNamed:
		qn := resolveRef(t.Ref, currentNS)

		if e, ok := r.enums[qn]; ok {
			if t.Dynamic {
				return Type{}, resolveErrf(t.Pos, "'*' marker on non-group type %s", qn)
			}

			return Type{Tag: TagEnumRef, Enum: e}, nil
		}

		if _, ok := r.typedefAST[qn]; ok {
			return r.resolveTypedef(qn)
		}

		if grp, ok := r.groups[qn]; ok {
			if t.Dynamic {
				return Type{Tag: TagDynamicGroupRef, Group: grp}, nil
			}

			return Type{Tag: TagStaticGroupRef, Group: grp}, nil
		}

		return Type{}, resolveErrf(t.Pos, "unknown type reference %s", qn)
	default:
		return Type{}, resolveErrf(t.Pos, "unknown type kind")
	}
}

func mergeAnnotationList(base map[string]string, anns []astAnnotation) map[string]string {
	if len(anns) == 0 && base == nil {
		return nil
	}

	out := map[string]string{}

	for k, v := range base {
		out[k] = v
	}

	for _, a := range anns {
		out[a.Key] = a.Value
	}

	return out
}

func (r *resolver) applyIncremental(inc astIncremental) error {
	qn := resolveRef(inc.Target, inc.Namespace)

	g, ok := r.groups[qn]
	if !ok {
		return blinkerr.New(blinkerr.KindResolve, "annotate: unknown group %s", qn).AtPos(inc.Pos.Line, inc.Pos.Col)
	}

	if inc.Field == "" {
		if g.Annotations == nil {
			g.Annotations = map[string]string{}
		}

		g.Annotations[inc.Key] = inc.Value

		return nil
	}

	for i := range g.Fields {
		if g.Fields[i].Name == inc.Field {
			if g.Fields[i].Annotations == nil {
				g.Fields[i].Annotations = map[string]string{}
			}

			g.Fields[i].Annotations[inc.Key] = inc.Value

			// Keep LocalFields in sync when the annotated field is local.
			for j := range g.LocalFields {
				if g.LocalFields[j].Name == inc.Field {
					g.LocalFields[j].Annotations = g.Fields[i].Annotations
				}
			}

			return nil
		}
	}

	return blinkerr.New(blinkerr.KindResolve, "annotate: unknown field %s.%s", qn, inc.Field).
		AtPos(inc.Pos.Line, inc.Pos.Col)
}
