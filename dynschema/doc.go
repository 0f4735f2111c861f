// Package dynschema implements Dynamic Schema Exchange: a second, fixed
// Blink schema (the self-schema) whose single SchemaUpdate message type
// lives at a reserved type id in 16000-16383. A byte stream mixes ordinary
// application frames with self-schema frames; PeekTypeID lets a caller
// classify a frame before deciding which registry to decode it against,
// and DecodeStream does that classification automatically, applying every
// self-schema frame to the target registry via [registry.Registry.ApplyUpdate]
// before resuming application decoding.
package dynschema
