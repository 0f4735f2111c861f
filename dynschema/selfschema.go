package dynschema

import (
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/schema"
)

// selfSchemaSource defines the wire shape of a Dynamic Schema Exchange
// frame: one SchemaUpdate message batching every declaration it carries,
// so one frame decode produces one atomic [registry.Update]. Field types a
// dynamically declared group may use are scoped to what TypeDescriptor can
// describe: primitives, string, binary, fixed, enum/static/dynamic group
// references by name, object, and one level of sequence-of-the-above (no
// nested sequences, matching the core schema's own invariant).
const selfSchemaSource = `
namespace BlinkSelfSchema

TypeDescriptor/16010 ->
	string Kind,
	string Primitive?,
	u64 Max?,
	u64 FixedSize?,
	string RefNamespace?,
	string RefName?,
	string ElemKind?,
	string ElemPrimitive?,
	u64 ElemMax?,
	u64 ElemFixedSize?,
	string ElemRefNamespace?,
	string ElemRefName?

GroupDecl/16011 ->
	string Namespace,
	string Name,
	u64 TypeId?,
	string Super?

FieldDecl/16012 ->
	string Namespace,
	string GroupName,
	string FieldName,
	bool Optional,
	TypeDescriptor Type

TypeDefDecl/16013 ->
	string Namespace,
	string Name,
	TypeDescriptor Target

AnnotationDecl/16014 ->
	string Namespace,
	string GroupName,
	string FieldName?,
	string Key,
	string Value

SchemaUpdate/16000 ->
	sequence<GroupDecl> Groups,
	sequence<FieldDecl> Fields,
	sequence<TypeDefDecl> TypeDefs,
	sequence<AnnotationDecl> Annotations
`

// UpdateTypeID is the fixed Compact Binary type id a Dynamic Schema
// Exchange frame's body is framed under.
const UpdateTypeID = 16000

var selfRegistry *registry.Registry

func init() {
	ast, err := schema.Parse(selfSchemaSource)
	if err != nil {
		panic("dynschema: self-schema does not parse: " + err.Error())
	}

	sch, err := schema.Resolve(ast)
	if err != nil {
		panic("dynschema: self-schema does not resolve: " + err.Error())
	}

	selfRegistry = registry.FromSchema(sch)
}

func selfGroup(name string) *schema.GroupDef {
	g, err := selfRegistry.GetByName(schema.QName{Namespace: "BlinkSelfSchema", Name: name})
	if err != nil {
		panic("dynschema: missing self-schema group " + name)
	}

	return g
}
