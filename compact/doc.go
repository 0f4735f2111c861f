// Package compact implements Blink's Compact Binary codec: the
// variable-length, VLC-framed wire format described by the component pair
// "Compact Codec" over package vlc and package registry.
//
// A frame is:
//
//	length(u32 VLC) typeId(u64 VLC) fields... extension?
//
// length counts every byte after itself. Encode and Decode operate on one
// frame at a time; callers that stream multiple frames back to back use
// DecodeAt to advance a cursor.
//
// Reserved type ids (16000-16383) carry no special handling in this
// package: a frame at a reserved id decodes like any other frame, provided
// the caller's registry has a group registered at that id. Package
// dynschema layers the self-schema semantics on top of this package: it
// peeks each frame's type id before decoding, decodes SchemaUpdate frames
// against its own self-schema registry, and rejects frames at the other
// reserved ids.
package compact
