// Package acquire runs the acquisition stage: it waits for the converter's
// data-ready signal, demultiplexes conversions by channel, downsamples them
// into per-interval means and publishes full windows to the processing stage.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/itohio/daqnode/pkg/ad7124"
	"github.com/itohio/daqnode/pkg/mailbox"
	"github.com/itohio/daqnode/pkg/monitoring"
	"github.com/itohio/daqnode/pkg/sample"
	"github.com/itohio/daqnode/pkg/timeutil"
)

// Reader reads one conversion frame.
type Reader interface {
	ReadConversion() (ad7124.Conversion, error)
}

// Config holds the downsampling parameters.
type Config struct {
	// Period is the time span covered by one published window.
	Period time.Duration
	// VectorSize is the number of means per channel in a window.
	VectorSize int
}

// Interval returns the aggregation interval, Period / VectorSize.
func (c Config) Interval() time.Duration {
	return c.Period / time.Duration(c.VectorSize)
}

// Validate checks that the configuration yields a positive interval.
func (c Config) Validate() error {
	if c.VectorSize < 1 {
		return fmt.Errorf("vector size must be positive, got %d", c.VectorSize)
	}
	if c.Period <= 0 {
		return fmt.Errorf("downsampling period must be positive, got %s", c.Period)
	}
	if c.Interval() <= 0 {
		return fmt.Errorf("downsampling period %s too short for vector size %d", c.Period, c.VectorSize)
	}
	return nil
}

// Stats is a snapshot of loop counters.
type Stats struct {
	Conversions    uint64 // frames read
	ReadErrors     uint64 // failed frame reads
	UnknownChannel uint64 // frames with a status tag outside the tracked channels
	Intervals      uint64 // aggregation intervals closed
	EmptyIntervals uint64 // per-channel intervals that received no conversion
	Published      uint64 // batches handed to the reading mailbox
}

// Loop is the acquisition stage.
type Loop struct {
	ready    ad7124.DataReady
	reader   Reader
	out      *mailbox.Mailbox[sample.ReadingBatch]
	clock    timeutil.Clock
	interval time.Duration
	window   *Window

	mu    sync.Mutex
	stats Stats
}

// New creates an acquisition loop publishing to out. A nil clock uses the
// real clock.
func New(ready ad7124.DataReady, reader Reader, out *mailbox.Mailbox[sample.ReadingBatch], cfg Config, clock timeutil.Clock) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Loop{
		ready:    ready,
		reader:   reader,
		out:      out,
		clock:    clock,
		interval: cfg.Interval(),
		window:   NewWindow(cfg.VectorSize),
	}, nil
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Run acquires until ctx ends or the output mailbox is closed.
func (l *Loop) Run(ctx context.Context) error {
	start := l.clock.Now()
	for {
		if err := l.ready.Wait(ctx); err != nil {
			return err
		}
		l.read()

		if l.clock.Since(start) < l.interval {
			continue
		}
		start = l.clock.Now()

		if err := l.rotate(ctx); err != nil {
			return err
		}
	}
}

func (l *Loop) read() {
	conv, err := l.reader.ReadConversion()
	if err != nil {
		monitoring.Logf("acquire: %v", err)
		l.count(func(s *Stats) { s.ReadErrors++ })
		return
	}

	ch := conv.Channel()
	if !l.window.Add(ch, conv.Code) {
		l.count(func(s *Stats) {
			s.Conversions++
			s.UnknownChannel++
		})
		return
	}
	l.count(func(s *Stats) { s.Conversions++ })
}

func (l *Loop) rotate(ctx context.Context) error {
	var empty uint64
	for ch := 0; ch < sample.NumChannels; ch++ {
		if l.window.Count(ch) == 0 {
			empty++
		}
	}

	batch, ok := l.window.Rotate()
	l.count(func(s *Stats) {
		s.Intervals++
		s.EmptyIntervals += empty
	})
	if !ok {
		return nil
	}

	if err := l.out.Put(ctx, batch); err != nil {
		l.out.Drop()
		if errors.Is(err, mailbox.ErrClosed) {
			monitoring.Logf("acquire: dropping batch: %v", err)
		}
		return err
	}
	l.count(func(s *Stats) { s.Published++ })
	return nil
}

func (l *Loop) count(f func(*Stats)) {
	l.mu.Lock()
	f(&l.stats)
	l.mu.Unlock()
}
