// Package process runs the processing stage: it converts downsampled codes to
// millivolts, normalizes them, runs the model on every channel and hands raw
// codes plus scores to the sending stage.
package process

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/itohio/daqnode/pkg/mailbox"
	"github.com/itohio/daqnode/pkg/model"
	"github.com/itohio/daqnode/pkg/monitoring"
	"github.com/itohio/daqnode/pkg/sample"
	"github.com/itohio/daqnode/pkg/stats"
)

// Mode selects how millivolt vectors are normalized before inference.
type Mode string

const (
	// ModeFixed maps the configured [Min, Max] onto [0, Scale].
	ModeFixed Mode = "fixed"
	// ModeAdaptive maps the per-channel sliding [min, max] onto [0, Scale].
	ModeAdaptive Mode = "adaptive"
	// ModeZScore standardizes each vector and multiplies by Scale.
	ModeZScore Mode = "zscore"
)

// Normalization configures the normalizer.
type Normalization struct {
	Mode   Mode    `yaml:"mode"`
	Min    float32 `yaml:"min"`
	Max    float32 `yaml:"max"`
	Scale  float32 `yaml:"scale"`
	Window int     `yaml:"window"` // adaptive mode history, in values
}

// DefaultNormalization is a fixed ±0.2 mV range onto [0, 1].
func DefaultNormalization() Normalization {
	return Normalization{
		Mode:   ModeFixed,
		Min:    -0.2,
		Max:    0.2,
		Scale:  1,
		Window: 1024,
	}
}

// Validate checks the mode and its parameters.
func (n Normalization) Validate() error {
	switch n.Mode {
	case ModeFixed:
		if n.Max < n.Min {
			return fmt.Errorf("normalization max %g below min %g", n.Max, n.Min)
		}
	case ModeAdaptive:
		if n.Window < 1 {
			return fmt.Errorf("adaptive normalization window must be positive, got %d", n.Window)
		}
	case ModeZScore:
	default:
		return fmt.Errorf("unknown normalization mode %q", n.Mode)
	}
	return nil
}

// Config holds the processing parameters.
type Config struct {
	Conversion    sample.Conversion
	Normalization Normalization
}

// Stats is a snapshot of stage counters.
type Stats struct {
	Processed   uint64 // batches taken from the reading mailbox
	ModelErrors uint64 // batches dropped because inference failed
	Published   uint64 // batches handed to the sending mailbox
}

// Stage is the processing stage.
type Stage struct {
	cfg    Config
	model  model.Model
	in     *mailbox.Mailbox[sample.ReadingBatch]
	out    *mailbox.Mailbox[sample.SendingBatch]
	bounds [sample.NumChannels]*stats.OnlineMinMax

	mu    sync.Mutex
	stats Stats
}

// New creates a processing stage between in and out.
func New(m model.Model, in *mailbox.Mailbox[sample.ReadingBatch], out *mailbox.Mailbox[sample.SendingBatch], cfg Config) (*Stage, error) {
	if m == nil {
		return nil, errors.New("model is required")
	}
	if err := cfg.Normalization.Validate(); err != nil {
		return nil, err
	}
	s := &Stage{cfg: cfg, model: m, in: in, out: out}
	if cfg.Normalization.Mode == ModeAdaptive {
		for ch := range s.bounds {
			s.bounds[ch] = stats.NewOnlineMinMax(cfg.Normalization.Window)
		}
	}
	return s, nil
}

// Stats returns a snapshot of the stage counters.
func (s *Stage) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Process turns one reading batch into a sending batch. In adaptive mode it
// also advances the per-channel bounds, so Process is not safe for
// concurrent use.
func (s *Stage) Process(batch sample.ReadingBatch) (sample.SendingBatch, error) {
	var out sample.SendingBatch
	for ch, codes := range batch.Channels {
		mv := sample.ToMillivolts(codes, s.cfg.Conversion)
		scores, err := s.model.Predict(s.normalize(ch, mv))
		if err != nil {
			return sample.SendingBatch{}, fmt.Errorf("failed to run model on channel %d: %w", ch, err)
		}
		out.Raw[ch] = codes
		out.Scores[ch] = scores
	}
	return out, nil
}

func (s *Stage) normalize(ch int, mv []float32) []float32 {
	n := s.cfg.Normalization
	switch n.Mode {
	case ModeAdaptive:
		b := s.bounds[ch]
		b.Update(mv)
		if b.Len() == 0 {
			return make([]float32, len(mv))
		}
		return sample.MinMaxNormalize(mv, b.Min(), b.Max(), n.Scale)
	case ModeZScore:
		return sample.ZScoreNormalize(mv, n.Scale)
	default:
		return sample.MinMaxNormalize(mv, n.Min, n.Max, n.Scale)
	}
}

// Run processes batches until ctx ends or a mailbox is closed.
func (s *Stage) Run(ctx context.Context) error {
	for {
		batch, err := s.in.Take(ctx)
		if err != nil {
			return err
		}
		s.count(func(st *Stats) { st.Processed++ })

		out, err := s.Process(batch)
		if err != nil {
			monitoring.Logf("process: dropping batch: %v", err)
			s.count(func(st *Stats) { st.ModelErrors++ })
			continue
		}

		if err := s.out.Put(ctx, out); err != nil {
			s.out.Drop()
			if errors.Is(err, mailbox.ErrClosed) {
				monitoring.Logf("process: dropping batch: %v", err)
			}
			return err
		}
		s.count(func(st *Stats) { st.Published++ })
	}
}

func (s *Stage) count(f func(*Stats)) {
	s.mu.Lock()
	f(&s.stats)
	s.mu.Unlock()
}
