// Package vlc implements Blink's stop-bit variable-length coding for
// signed and unsigned integers, plus its in-band NULL marker.
//
// Each output byte carries seven data bits and a stop bit in the high
// position: 1 on the final byte of a value, 0 on every byte before it.
// Unsigned values are encoded low-byte first; signed values are sign-
// extended two's complement under the same framing. NULL is the single
// reserved byte 0xC0 (stop bit and top data bit set, other data bits
// clear). The unsigned value 64 and the signed value -64, whose one-byte
// form would be 0xC0, are written in two bytes, so NULL is distinguishable
// from every value, zero included.
package vlc
