package dynschema

import (
	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/compact"
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/value"
)

// DecodeStream walks a concatenated sequence of Compact Binary frames,
// applying every SchemaUpdate frame to reg as it is encountered and
// decoding every other frame as an application message against reg's
// state at that point in the stream (spec.md's S0/S1 state machine: a
// registry mutation takes effect for all frames after it, never before).
func DecodeStream(reg *registry.Registry, data []byte, rec *blinkerr.Recorder) ([]*value.Message, error) {
	var out []*value.Message

	offset := 0

	for offset < len(data) {
		typeID, err := PeekTypeID(data, offset)
		if err != nil {
			return nil, err
		}

		if IsUpdateTypeID(typeID) {
			u, consumed, err := DecodeUpdate(reg, data, offset, rec)
			if err != nil {
				return nil, err
			}

			if err := reg.ApplyUpdate(*u); err != nil {
				return nil, blinkerr.New(blinkerr.KindSchemaUpdate, "%s", err)
			}

			offset += consumed

			continue
		}

		if compact.IsReservedTypeID(typeID) {
			return nil, blinkerr.New(blinkerr.KindFraming, "unsupported reserved type id %d", typeID)
		}

		m, consumed, err := compact.DecodeAt(reg, data, offset, rec)
		if err != nil {
			return nil, err
		}

		out = append(out, m)
		offset += consumed
	}

	return out, nil
}
