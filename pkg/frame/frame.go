// Package frame encodes sending batches for the serial link.
//
// A frame is the two-byte marker AA AA, the payload length as a
// little-endian uint32 and the payload. The payload uses the protobuf wire
// format of the Batch message in frame.proto.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/itohio/daqnode/pkg/sample"
)

// Marker starts every frame.
var Marker = [2]byte{0xAA, 0xAA}

// HeaderLength is the size of the marker plus the length field.
const HeaderLength = len(Marker) + 4

// MaxPayload bounds the payload length accepted by a Decoder.
const MaxPayload = 1 << 20

var (
	// ErrPayloadTooLarge is returned for a declared length above the limit.
	ErrPayloadTooLarge = errors.New("frame payload too large")
	// ErrMalformed is returned for a payload that does not decode.
	ErrMalformed = errors.New("malformed frame payload")
)

const (
	fieldRawCh0   protowire.Number = 1
	fieldRawCh1   protowire.Number = 2
	fieldScoreCh0 protowire.Number = 3
	fieldScoreCh1 protowire.Number = 4
)

var (
	rawFields   = [sample.NumChannels]protowire.Number{fieldRawCh0, fieldRawCh1}
	scoreFields = [sample.NumChannels]protowire.Number{fieldScoreCh0, fieldScoreCh1}
)

// MarshalPayload appends the payload encoding of b to dst.
func MarshalPayload(dst []byte, b sample.SendingBatch) []byte {
	for ch := range rawFields {
		raw := make([]byte, 0, len(b.Raw[ch])*len(sample.Code{}))
		for _, c := range b.Raw[ch] {
			raw = append(raw, c[:]...)
		}
		dst = protowire.AppendTag(dst, rawFields[ch], protowire.BytesType)
		dst = protowire.AppendBytes(dst, raw)
	}
	for ch := range scoreFields {
		packed := make([]byte, 0, len(b.Scores[ch])*4)
		for _, s := range b.Scores[ch] {
			packed = protowire.AppendFixed32(packed, math.Float32bits(s))
		}
		dst = protowire.AppendTag(dst, scoreFields[ch], protowire.BytesType)
		dst = protowire.AppendBytes(dst, packed)
	}
	return dst
}

// AppendFrame appends the complete frame for b to dst.
func AppendFrame(dst []byte, b sample.SendingBatch) []byte {
	start := len(dst)
	dst = append(dst, Marker[:]...)
	dst = append(dst, 0, 0, 0, 0)
	dst = MarshalPayload(dst, b)
	binary.LittleEndian.PutUint32(dst[start+len(Marker):], uint32(len(dst)-start-HeaderLength))
	return dst
}

// UnmarshalPayload decodes a payload. Unknown fields are skipped; unpacked
// score encodings are accepted as well.
func UnmarshalPayload(p []byte) (sample.SendingBatch, error) {
	var b sample.SendingBatch
	for len(p) > 0 {
		num, typ, n := protowire.ConsumeTag(p)
		if n < 0 {
			return b, fmt.Errorf("failed to decode tag: %w", protowire.ParseError(n))
		}
		p = p[n:]

		ch, isRaw, isScore := fieldChannel(num)
		switch {
		case isRaw && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(p)
			if n < 0 {
				return b, fmt.Errorf("failed to decode field %d: %w", num, protowire.ParseError(n))
			}
			if len(v)%len(sample.Code{}) != 0 {
				return b, fmt.Errorf("field %d: %d bytes is not a whole number of codes", num, len(v))
			}
			for i := 0; i < len(v); i += len(sample.Code{}) {
				b.Raw[ch] = append(b.Raw[ch], sample.Code{v[i], v[i+1], v[i+2]})
			}
			p = p[n:]

		case isScore && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(p)
			if n < 0 {
				return b, fmt.Errorf("failed to decode field %d: %w", num, protowire.ParseError(n))
			}
			for len(v) > 0 {
				bits, m := protowire.ConsumeFixed32(v)
				if m < 0 {
					return b, fmt.Errorf("failed to decode field %d: %w", num, protowire.ParseError(m))
				}
				b.Scores[ch] = append(b.Scores[ch], math.Float32frombits(bits))
				v = v[m:]
			}
			p = p[n:]

		case isScore && typ == protowire.Fixed32Type:
			bits, n := protowire.ConsumeFixed32(p)
			if n < 0 {
				return b, fmt.Errorf("failed to decode field %d: %w", num, protowire.ParseError(n))
			}
			b.Scores[ch] = append(b.Scores[ch], math.Float32frombits(bits))
			p = p[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, p)
			if n < 0 {
				return b, fmt.Errorf("failed to skip field %d: %w", num, protowire.ParseError(n))
			}
			p = p[n:]
		}
	}
	return b, nil
}

func fieldChannel(num protowire.Number) (ch int, raw, score bool) {
	for ch := range rawFields {
		if rawFields[ch] == num {
			return ch, true, false
		}
		if scoreFields[ch] == num {
			return ch, false, true
		}
	}
	return 0, false, false
}
