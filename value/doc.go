// Package value implements Blink's runtime value model: the tagged [Value]
// union, [Message] and [StaticGroupValue] containers, and [DecimalValue].
// Every codec in this module encodes and decodes these same types; none of
// them retain back-pointers into a [registry.Registry].
//
// Field containers ([Fields]) preserve declaration order so that encoding
// is deterministic: iterating a decoded Message's fields yields them in
// the group's linearized field order, never map-random order.
package value
