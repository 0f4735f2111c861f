// Package schemaexport converts a resolved Blink [registry.Registry] into a
// JSON Schema document ([github.com/google/jsonschema-go/jsonschema]), so a
// Blink message type can be validated or documented with ordinary JSON
// Schema tooling.
//
// Each registered group becomes a "$defs" entry; [Export] returns the schema
// for one named group with every group it transitively references (itself
// included) collected into its Defs map; enums are inlined at each use, and
// typedefs were already inlined by resolution. Dynamic-group fields are exported
// as a reference to the declared base type only — JSON Schema has no
// closed-world way to express "this base type or any registered subtype",
// so a dynamic field validates against the base shape and nothing more.
package schemaexport
