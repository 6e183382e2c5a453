package acquire

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/daqnode/pkg/ad7124"
	"github.com/itohio/daqnode/pkg/mailbox"
	"github.com/itohio/daqnode/pkg/monitoring"
	"github.com/itohio/daqnode/pkg/sample"
	"github.com/itohio/daqnode/pkg/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

// event is one data-ready pulse: the clock advances by wait before the
// conversion becomes readable.
type event struct {
	wait time.Duration
	conv ad7124.Conversion
	err  error
}

// script replays events, then blocks until the context ends.
type script struct {
	clock *timeutil.MockClock

	mu     sync.Mutex
	events []event
	i      int
}

func (s *script) Wait(ctx context.Context) error {
	s.mu.Lock()
	if s.i >= len(s.events) {
		s.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	wait := s.events[s.i].wait
	s.mu.Unlock()
	s.clock.Advance(wait)
	return nil
}

func (s *script) ReadConversion() (ad7124.Conversion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.events[s.i]
	s.i++
	return e.conv, e.err
}

func conv(ch byte, c sample.Code) ad7124.Conversion {
	return ad7124.Conversion{Code: c, Status: ch}
}

func startLoop(t *testing.T, events []event, cfg Config) (*Loop, *mailbox.Mailbox[sample.ReadingBatch], context.CancelFunc, <-chan error) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := &script{clock: clock, events: events}
	out := mailbox.New[sample.ReadingBatch]()

	loop, err := New(src, src, out, cfg, clock)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	return loop, out, cancel, done
}

func take(t *testing.T, out *mailbox.Mailbox[sample.ReadingBatch]) sample.ReadingBatch {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	batch, err := out.Take(ctx)
	require.NoError(t, err)
	return batch
}

func stop(t *testing.T, cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}

func TestLoop_ThreeIntervalScenario(t *testing.T) {
	cfg := Config{Period: 3 * time.Millisecond, VectorSize: 3}
	var events []event
	for _, c := range []sample.Code{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}} {
		events = append(events,
			event{conv: conv(0, c)},
			event{wait: time.Millisecond, conv: conv(1, sample.Code{0xAA})},
		)
	}

	loop, out, cancel, done := startLoop(t, events, cfg)
	batch := take(t, out)
	stop(t, cancel, done)

	assert.Equal(t, []sample.Code{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}, batch.Channels[0])
	assert.Equal(t, []sample.Code{{0xAA}, {0xAA}, {0xAA}}, batch.Channels[1])

	stats := loop.Stats()
	assert.Equal(t, uint64(6), stats.Conversions)
	assert.Equal(t, uint64(3), stats.Intervals)
	assert.Equal(t, uint64(1), stats.Published)
	assert.Zero(t, stats.EmptyIntervals)
}

func TestLoop_DownsamplesWithinInterval(t *testing.T) {
	cfg := Config{Period: 2 * time.Millisecond, VectorSize: 1}
	events := []event{
		{conv: conv(0, sample.Code{10})},
		{conv: conv(0, sample.Code{20})},
		{conv: conv(1, sample.Code{0, 1})},
		{conv: conv(0, sample.Code{30})},
		{wait: 2 * time.Millisecond, conv: conv(1, sample.Code{0, 3})},
	}

	_, out, cancel, done := startLoop(t, events, cfg)
	batch := take(t, out)
	stop(t, cancel, done)

	assert.Equal(t, []sample.Code{{20}}, batch.Channels[0])
	assert.Equal(t, []sample.Code{{0, 2}}, batch.Channels[1])
}

func TestLoop_UnknownChannelAndErrors(t *testing.T) {
	cfg := Config{Period: time.Millisecond, VectorSize: 1}
	events := []event{
		{conv: conv(0, sample.Code{5})},
		{conv: conv(2, sample.Code{0xFF})},
		{conv: conv(0x0F, sample.Code{0xFF})},
		{err: errors.New("spi timeout")},
		{wait: time.Millisecond, conv: conv(0, sample.Code{7})},
	}

	loop, out, cancel, done := startLoop(t, events, cfg)
	batch := take(t, out)
	stop(t, cancel, done)

	assert.Equal(t, []sample.Code{{6}}, batch.Channels[0])
	// Channel 1 saw nothing: the zero code is published.
	assert.Equal(t, []sample.Code{{}}, batch.Channels[1])

	stats := loop.Stats()
	assert.Equal(t, uint64(2), stats.UnknownChannel)
	assert.Equal(t, uint64(1), stats.ReadErrors)
	assert.Equal(t, uint64(1), stats.EmptyIntervals)
}

func TestLoop_Backpressure(t *testing.T) {
	cfg := Config{Period: time.Millisecond, VectorSize: 1}
	var events []event
	for i := byte(1); i <= 3; i++ {
		events = append(events, event{wait: time.Millisecond, conv: conv(0, sample.Code{i})})
	}

	loop, out, cancel, done := startLoop(t, events, cfg)

	// The first batch sits in the mailbox; the loop must block on the second.
	require.Eventually(t, func() bool { return loop.Stats().Intervals == 2 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, uint64(1), loop.Stats().Published)

	assert.Equal(t, []sample.Code{{1}}, take(t, out).Channels[0])
	assert.Equal(t, []sample.Code{{2}}, take(t, out).Channels[0])
	assert.Equal(t, []sample.Code{{3}}, take(t, out).Channels[0])
	stop(t, cancel, done)
}

func TestLoop_ClosedMailboxStops(t *testing.T) {
	cfg := Config{Period: time.Millisecond, VectorSize: 1}
	events := []event{{wait: time.Millisecond, conv: conv(0, sample.Code{1})}}

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := &script{clock: clock, events: events}
	out := mailbox.New[sample.ReadingBatch]()
	out.Close()

	loop, err := New(src, src, out, cfg, clock)
	require.NoError(t, err)
	assert.ErrorIs(t, loop.Run(context.Background()), mailbox.ErrClosed)
	assert.Equal(t, uint64(1), out.Stats().Dropped)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Period: time.Second, VectorSize: 64}, false},
		{"zero vector", Config{Period: time.Second}, true},
		{"zero period", Config{VectorSize: 4}, true},
		{"interval underflow", Config{Period: 3, VectorSize: 4}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.Equal(t, 250*time.Millisecond, Config{Period: time.Second, VectorSize: 4}.Interval())
}
