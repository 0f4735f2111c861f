// Package native implements Blink's Native Binary codec: the little-endian,
// fixed-layout, pointer-addressed wire format built on package registry and
// package value.
//
// A frame is a 16-byte header (size, typeId, extensionOffset) followed by a
// fixed-size body region and a variable-data region. Fixed-width fields sit
// at a predictable offset in the fixed region; string/binary/sequence/group
// fields too large to inline occupy a u32 absolute-offset pointer slot
// instead, with 0 meaning absent. Extensions are a run of complete nested
// Native frames placed after the variable region, addressed by the header's
// extensionOffset.
//
// Every encode/decode call walks the same [groupLayout] computed by
// computeLayout, so the byte offset of a given field is identical between
// Encode and Decode -- it is never recomputed ad hoc on either side.
package native
