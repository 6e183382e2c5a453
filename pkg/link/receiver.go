package link

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/itohio/daqnode/pkg/frame"
	"github.com/itohio/daqnode/pkg/monitoring"
)

// DefaultBufferSize is the capacity of the receiver's frame channel.
const DefaultBufferSize = 16

// ReceiverStats is a snapshot of receiver counters.
type ReceiverStats struct {
	Frames  uint64 // frames decoded
	Corrupt uint64 // frames rejected by the decoder
	Dropped uint64 // frames discarded because the channel was full
	Skipped uint64 // bytes discarded while searching for a marker
}

// Receiver decodes frames from the host side of the link.
type Receiver struct {
	src    io.Reader
	dec    *frame.Decoder
	frames chan frame.Frame

	mu    sync.Mutex
	stats ReceiverStats
}

// NewReceiver creates a receiver reading from src. bufSize 0 uses
// DefaultBufferSize.
func NewReceiver(src io.Reader, bufSize int) *Receiver {
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}
	return &Receiver{
		src:    src,
		dec:    frame.NewDecoder(src),
		frames: make(chan frame.Frame, bufSize),
	}
}

// Frames returns the channel of decoded frames. It is closed when Run returns.
func (r *Receiver) Frames() <-chan frame.Frame {
	return r.frames
}

// Stats returns a snapshot of the receiver counters.
func (r *Receiver) Stats() ReceiverStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Run decodes frames until the source ends or ctx is cancelled. If the
// source is an io.Closer it is closed on cancellation to unblock a pending
// read. End of stream is not an error. When the channel is full the frame is
// dropped, so a slow consumer never stalls the serial line.
func (r *Receiver) Run(ctx context.Context) error {
	defer close(r.frames)

	if c, ok := r.src.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	for {
		f, err := r.dec.Next()
		skipped := r.dec.Skipped()
		r.count(func(s *ReceiverStats) { s.Skipped = skipped })

		switch {
		case err == nil:
		case errors.Is(err, frame.ErrPayloadTooLarge), errors.Is(err, frame.ErrMalformed):
			monitoring.Logf("link: %v", err)
			r.count(func(s *ReceiverStats) { s.Corrupt++ })
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		default:
			return err
		}

		select {
		case r.frames <- f:
			r.count(func(s *ReceiverStats) { s.Frames++ })
		case <-ctx.Done():
			return ctx.Err()
		default:
			monitoring.Logf("link: frame channel full, dropping frame")
			r.count(func(s *ReceiverStats) { s.Dropped++ })
		}
	}
}

func (r *Receiver) count(f func(*ReceiverStats)) {
	r.mu.Lock()
	f(&r.stats)
	r.mu.Unlock()
}
