package link

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/itohio/daqnode/pkg/frame"
	"github.com/itohio/daqnode/pkg/mailbox"
	"github.com/itohio/daqnode/pkg/monitoring"
	"github.com/itohio/daqnode/pkg/sample"
)

// DefaultRetryDelay is the pause before a failed write is retried.
const DefaultRetryDelay = 100 * time.Millisecond

// SenderStats is a snapshot of sender counters.
type SenderStats struct {
	Frames      uint64 // frames fully written
	Bytes       uint64 // bytes written
	WriteErrors uint64 // failed write attempts
}

// Sender drains the sending mailbox and writes one frame per batch.
type Sender struct {
	in         *mailbox.Mailbox[sample.SendingBatch]
	w          io.Writer
	retryDelay time.Duration
	buf        []byte

	mu    sync.Mutex
	stats SenderStats
}

// NewSender creates a sender writing to w. A non-positive retryDelay uses
// DefaultRetryDelay.
func NewSender(in *mailbox.Mailbox[sample.SendingBatch], w io.Writer, retryDelay time.Duration) *Sender {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Sender{in: in, w: w, retryDelay: retryDelay}
}

// Stats returns a snapshot of the sender counters.
func (s *Sender) Stats() SenderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run sends batches until ctx ends or the mailbox is closed and drained.
func (s *Sender) Run(ctx context.Context) error {
	for {
		batch, err := s.in.Take(ctx)
		if err != nil {
			return err
		}
		s.buf = frame.AppendFrame(s.buf[:0], batch)
		if err := s.write(ctx, s.buf); err != nil {
			return err
		}
	}
}

// write keeps writing until p is out or ctx ends. A failed write is retried
// from the first unsent byte.
func (s *Sender) write(ctx context.Context, p []byte) error {
	for len(p) > 0 {
		n, err := s.w.Write(p)
		p = p[n:]
		s.count(func(st *SenderStats) { st.Bytes += uint64(n) })
		if err == nil {
			continue
		}

		monitoring.Logf("link: write failed, %d bytes pending: %v", len(p), err)
		s.count(func(st *SenderStats) { st.WriteErrors++ })

		t := time.NewTimer(s.retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	s.count(func(st *SenderStats) { st.Frames++ })
	return nil
}

func (s *Sender) count(f func(*SenderStats)) {
	s.mu.Lock()
	f(&s.stats)
	s.mu.Unlock()
}
