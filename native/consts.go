package native

// presenceByte and absentByte mark a nullable fixed-width slot (a primitive,
// fixed(N), or embedded static group) as present or absent. They are raw
// bytes, not VLC integers: Native Binary has no VLC encoding at all.
const (
	presenceByte = 0x01
	absentByte   = 0xC0
)
