package frame

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/itohio/daqnode/pkg/sample"
)

// Frame is one decoded frame.
type Frame struct {
	Length uint32 // declared payload length
	Batch  sample.SendingBatch
}

// Decoder reads frames from a byte stream, scanning for the marker so it can
// join a stream mid-frame and recover from corruption.
type Decoder struct {
	r       *bufio.Reader
	max     uint32
	skipped uint64
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r), max: MaxPayload}
}

// SetMaxPayload changes the largest accepted payload length.
func (d *Decoder) SetMaxPayload(n uint32) {
	d.max = n
}

// Skipped returns the number of bytes discarded while searching for a marker.
func (d *Decoder) Skipped() uint64 {
	return d.skipped
}

// Next returns the next frame. A declared length above the limit yields
// ErrPayloadTooLarge and a payload that fails to decode yields ErrMalformed;
// in both cases the decoder stays usable and the following call
// resumes the marker search. Errors from the underlying reader are returned
// as is.
func (d *Decoder) Next() (Frame, error) {
	if err := d.seekMarker(); err != nil {
		return Frame{}, err
	}

	hdr, err := d.r.Peek(4)
	if err != nil {
		return Frame{}, err
	}
	length := binary.LittleEndian.Uint32(hdr)
	if length > d.max {
		// Leave the length bytes unread: they may hold the next marker.
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, length)
	}
	if _, err := d.r.Discard(4); err != nil {
		return Frame{}, err
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}

	batch, err := UnmarshalPayload(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Frame{Length: length, Batch: batch}, nil
}

func (d *Decoder) seekMarker() error {
	matched := 0
	for matched < len(Marker) {
		c, err := d.r.ReadByte()
		if err != nil {
			return err
		}
		switch {
		case c == Marker[matched]:
			matched++
		case c == Marker[0]:
			d.skipped += uint64(matched)
			matched = 1
		default:
			d.skipped += uint64(matched) + 1
			matched = 0
		}
	}
	return nil
}
