package vlc

import "github.com/blink-proto/blink/blinkerr"

// nullByte is the single-byte encoding of NULL: stop bit set, and the
// sign/marker bit (bit 6) set too, which keeps it disjoint from the
// encoding of zero (0x80).
const nullByte = 0xC0

// zeroByte is the single-byte encoding of the unsigned and signed value 0.
const zeroByte = 0x80

// EncodeNull returns the one-byte NULL marker.
func EncodeNull() []byte {
	return []byte{nullByte}
}

// EncodeUint encodes an unsigned integer using stop-bit VLC.
func EncodeUint(v uint64) []byte {
	if v == 0 {
		return []byte{zeroByte}
	}

	var out []byte

	for v != 0 {
		out = append(out, byte(v&0x7f))
		v >>= 7
	}

	// A lone 0x40 would become 0xC0, the NULL byte, so 64 takes two bytes.
	if len(out) == 1 && out[0] == 0x40 {
		out = append(out, 0)
	}

	out[len(out)-1] |= 0x80

	return out
}

// EncodeInt encodes a signed integer using sign-extended stop-bit VLC.
func EncodeInt(v int64) []byte {
	var out []byte

	for {
		b := byte(v & 0x7f)
		v >>= 7

		signBitSet := b&0x40 != 0
		done := (v == 0 && !signBitSet) || (v == -1 && signBitSet)

		// A lone 0x40 would become 0xC0, the NULL byte, so -64 takes two bytes.
		if done && len(out) == 0 && b == 0x40 {
			done = false
		}

		if done {
			b |= 0x80
		}

		out = append(out, b)

		if done {
			break
		}
	}

	return out
}

// DecodeUint decodes an unsigned VLC integer starting at offset in data.
// It returns the value, the number of bytes consumed, and whether the
// decoded value was NULL.
func DecodeUint(data []byte, offset int) (value uint64, consumed int, isNull bool, err error) {
	if offset >= len(data) {
		return 0, 0, false, truncated(offset)
	}

	if data[offset] == nullByte {
		return 0, 1, true, nil
	}

	i := offset
	shift := uint(0)

	for {
		if i >= len(data) {
			return 0, 0, false, truncated(offset)
		}

		b := data[i]
		i++

		if shift >= 64 {
			return 0, 0, false, blinkerr.New(blinkerr.KindFraming, "vlc: unsigned value too long").AtOffset(int64(offset))
		}

		value |= uint64(b&0x7f) << shift
		shift += 7

		if b&0x80 != 0 {
			break
		}
	}

	return value, i - offset, false, nil
}

// DecodeInt decodes a signed VLC integer starting at offset in data.
func DecodeInt(data []byte, offset int) (value int64, consumed int, isNull bool, err error) {
	if offset >= len(data) {
		return 0, 0, false, truncated(offset)
	}

	if data[offset] == nullByte {
		return 0, 1, true, nil
	}

	i := offset
	shift := uint(0)

	var b byte

	for {
		if i >= len(data) {
			return 0, 0, false, truncated(offset)
		}

		b = data[i]
		i++

		if shift >= 64 {
			return 0, 0, false, blinkerr.New(blinkerr.KindFraming, "vlc: signed value too long").AtOffset(int64(offset))
		}

		value |= int64(b&0x7f) << shift
		shift += 7

		if b&0x80 != 0 {
			break
		}
	}

	if shift < 64 && b&0x40 != 0 {
		value |= -1 << shift
	}

	return value, i - offset, false, nil
}

func truncated(offset int) error {
	return blinkerr.New(blinkerr.KindFraming, "vlc: truncated buffer").AtOffset(int64(offset))
}

// UnsignedOutOfRange reports whether v cannot be represented in an unsigned
// primitive of the given bit width.
func UnsignedOutOfRange(v uint64, bits int) bool {
	if bits >= 64 {
		return false
	}

	return v>>uint(bits) != 0
}

// SignedOutOfRange reports whether v cannot be represented in a signed
// two's-complement primitive of the given bit width.
func SignedOutOfRange(v int64, bits int) bool {
	if bits >= 64 {
		return false
	}

	min := int64(-1) << uint(bits-1)
	max := int64(1)<<uint(bits-1) - 1

	return v < min || v > max
}
