package registry

import (
	"log/slog"

	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/bklog"
	"github.com/blink-proto/blink/schema"
	"github.com/blink-proto/blink/version"
)

// Registry is an indexed, mutable view of a resolved schema.
type Registry struct {
	byName map[schema.QName]*schema.GroupDef
	byID   map[uint64]*schema.GroupDef
	enums  map[schema.QName]*schema.EnumDef
	types  map[schema.QName]*schema.TypeDef
	logger *slog.Logger
}

// SetLogger attaches l as the registry's diagnostic logger; applied
// updates are logged at Info, rejected updates at Warn. A
// freshly built Registry logs nowhere until SetLogger is called.
func (r *Registry) SetLogger(l *slog.Logger) {
	r.logger = l
}

func (r *Registry) log() *slog.Logger {
	if r.logger == nil {
		return bklog.Discard
	}

	return r.logger
}

// FromSchema builds a Registry from a resolved [schema.Schema].
func FromSchema(sch *schema.Schema) *Registry {
	r := &Registry{
		byName: map[schema.QName]*schema.GroupDef{},
		byID:   map[uint64]*schema.GroupDef{},
		enums:  map[schema.QName]*schema.EnumDef{},
		types:  map[schema.QName]*schema.TypeDef{},
	}

	for _, g := range sch.Groups {
		r.byName[g.Name] = g

		if g.TypeID != nil {
			r.byID[*g.TypeID] = g
		}
	}

	for _, e := range sch.Enums {
		r.enums[e.Name] = e
	}

	for _, td := range sch.TypeDefs {
		r.types[td.Name] = td
	}

	return r
}

// GetByName returns the group registered under qn.
func (r *Registry) GetByName(qn schema.QName) (*schema.GroupDef, error) {
	g, ok := r.byName[qn]
	if !ok {
		return nil, blinkerr.New(blinkerr.KindResolve, "unknown group %s", qn)
	}

	return g, nil
}

// GetByID returns the group registered under the given numeric type id.
func (r *Registry) GetByID(id uint64) (*schema.GroupDef, error) {
	g, ok := r.byID[id]
	if !ok {
		return nil, blinkerr.New(blinkerr.KindResolve, "unknown type id %d", id)
	}

	return g, nil
}

// Enum returns the enum registered under qn.
func (r *Registry) Enum(qn schema.QName) (*schema.EnumDef, error) {
	e, ok := r.enums[qn]
	if !ok {
		return nil, blinkerr.New(blinkerr.KindResolve, "unknown enum %s", qn)
	}

	return e, nil
}

// TypeDef returns the resolved target type of the typedef registered under
// qn.
func (r *Registry) TypeDef(qn schema.QName) (schema.Type, error) {
	td, ok := r.types[qn]
	if !ok {
		return schema.Type{}, blinkerr.New(blinkerr.KindResolve, "unknown typedef %s", qn)
	}

	return td.Target, nil
}

// Groups returns every registered group; the order is not defined. Callers
// must not mutate the returned slice's elements outside ApplyUpdate.
func (r *Registry) Groups() []*schema.GroupDef {
	out := make([]*schema.GroupDef, 0, len(r.byName))
	for _, g := range r.byName {
		out = append(out, g)
	}

	return out
}

// FieldUpdate describes one field to add to a group by a schema update.
type FieldUpdate struct {
	Name     string
	Type     schema.Type
	Optional bool
}

// GroupUpdate describes one group declared or extended by a schema update.
// A GroupUpdate with no prior entry in the registry declares a new group;
// one naming an existing group is rejected (the self-schema models group
// declaration and field declaration as separate messages, but this
// registry only ever sees a fully materialized group per update, consistent
// with "apply after the whole exchange frame decodes").
type GroupUpdate struct {
	Name   schema.QName
	TypeID *uint64
	Super  *schema.QName
	Fields []FieldUpdate
}

// AnnotationUpdate describes one incremental annotation to merge, applied
// in arrival order with later values winning, per spec.md §4.3.
type AnnotationUpdate struct {
	Target schema.QName
	Field  string // empty means the group itself
	Key    string
	Value  string
}

// TypeDefUpdate declares one named alias for a target type by a schema
// update.
type TypeDefUpdate struct {
	Name   schema.QName
	Target schema.Type
}

// Update is a batch of schema mutations produced by decoding a Dynamic
// Schema Exchange frame (see package dynschema). TypeDefs are staged and
// committed before Groups so a GroupUpdate's fields may reference a typedef
// declared in the same update.
type Update struct {
	TypeDefs    []TypeDefUpdate
	Groups      []GroupUpdate
	Annotations []AnnotationUpdate
}

// ApplyUpdate validates u against the registry's current invariants --
// unique type ids, no inheritance cycles, resolvable type references,
// unique field names after linearization -- and, only if every check
// passes, commits it atomically. A rejected update leaves the registry
// completely unchanged.
func (r *Registry) ApplyUpdate(u Update) error {
	err := r.applyUpdate(u)
	if err != nil {
		r.log().Warn("schema update rejected", "error", err,
			"groups", len(u.Groups), "typedefs", len(u.TypeDefs), "annotations", len(u.Annotations))

		return err
	}

	r.log().Info("schema update applied",
		"groups", len(u.Groups), "typedefs", len(u.TypeDefs), "annotations", len(u.Annotations),
		"go_version", version.GoVersion, "revision", version.Revision)

	return nil
}

func (r *Registry) applyUpdate(u Update) error {
	// Stage into copies so a failed validation never mutates r.
	byName := cloneGroupMap(r.byName)
	byID := cloneIDMap(r.byID)
	types := cloneTypeMap(r.types)

	for _, tu := range u.TypeDefs {
		if _, exists := types[tu.Name]; exists {
			return blinkerr.New(blinkerr.KindSchemaUpdate, "typedef %s already registered", tu.Name)
		}

		types[tu.Name] = &schema.TypeDef{Name: tu.Name, Target: tu.Target}
	}

	for _, gu := range u.Groups {
		if _, exists := byName[gu.Name]; exists {
			return blinkerr.New(blinkerr.KindSchemaUpdate, "group %s already registered", gu.Name)
		}

		var super *schema.GroupDef

		if gu.Super != nil {
			s, ok := byName[*gu.Super]
			if !ok {
				return blinkerr.New(blinkerr.KindSchemaUpdate, "unknown super type %s for %s", *gu.Super, gu.Name)
			}

			super = s
		}

		local := make([]schema.FieldDef, 0, len(gu.Fields))
		for _, fu := range gu.Fields {
			local = append(local, schema.FieldDef{Name: fu.Name, Type: fu.Type, Optional: fu.Optional})
		}

		fields, err := schema.LinearizeFields(super, local)
		if err != nil {
			return &blinkerr.Error{Kind: blinkerr.KindSchemaUpdate, Message: err.Error()}
		}

		g := &schema.GroupDef{
			Name:        gu.Name,
			TypeID:      gu.TypeID,
			Super:       super,
			LocalFields: local,
			Fields:      fields,
		}

		if g.TypeID != nil {
			if owner, dup := byID[*g.TypeID]; dup {
				return blinkerr.New(blinkerr.KindSchemaUpdate,
					"type id %d already used by %s", *g.TypeID, owner.Name)
			}

			byID[*g.TypeID] = g
		}

		byName[gu.Name] = g
	}

	for _, au := range u.Annotations {
		g, ok := byName[au.Target]
		if !ok {
			return blinkerr.New(blinkerr.KindSchemaUpdate, "annotate: unknown group %s", au.Target)
		}

		if au.Field != "" {
			found := false

			for i := range g.Fields {
				if g.Fields[i].Name == au.Field {
					found = true

					break
				}
			}

			if !found {
				return blinkerr.New(blinkerr.KindSchemaUpdate, "annotate: unknown field %s.%s", au.Target, au.Field)
			}
		}
	}

	// Validation passed: apply annotations to the staged copies and commit.
	for _, au := range u.Annotations {
		g := byName[au.Target]

		if au.Field == "" {
			if g.Annotations == nil {
				g.Annotations = map[string]string{}
			}

			g.Annotations[au.Key] = au.Value

			continue
		}

		for i := range g.Fields {
			if g.Fields[i].Name == au.Field {
				if g.Fields[i].Annotations == nil {
					g.Fields[i].Annotations = map[string]string{}
				}

				g.Fields[i].Annotations[au.Key] = au.Value
			}
		}
	}

	r.byName = byName
	r.byID = byID
	r.types = types

	return nil
}

func cloneGroupMap(m map[schema.QName]*schema.GroupDef) map[schema.QName]*schema.GroupDef {
	out := make(map[schema.QName]*schema.GroupDef, len(m)+1)
	for k, v := range m {
		out[k] = v
	}

	return out
}

func cloneTypeMap(m map[schema.QName]*schema.TypeDef) map[schema.QName]*schema.TypeDef {
	out := make(map[schema.QName]*schema.TypeDef, len(m)+1)
	for k, v := range m {
		out[k] = v
	}

	return out
}

func cloneIDMap(m map[uint64]*schema.GroupDef) map[uint64]*schema.GroupDef {
	out := make(map[uint64]*schema.GroupDef, len(m)+1)
	for k, v := range m {
		out[k] = v
	}

	return out
}
