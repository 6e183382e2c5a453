// Package output defines the host-side sinks for received batches.
package output

import (
	"time"

	"github.com/itohio/daqnode/pkg/sample"
)

// Output publishes records somewhere.
type Output interface {
	Publish(Record) error
	Close() error
}

// Channel is the host view of one channel of a received batch.
type Channel struct {
	Channel    int       `json:"channel"`
	Raw        []uint32  `json:"raw"`
	Millivolts []float32 `json:"millivolts"`
	Scores     []float32 `json:"scores"`
	Class      int       `json:"class"` // index of the highest score, -1 without scores
}

// Record is one received batch, timestamped on arrival.
type Record struct {
	Timestamp time.Time                   `json:"timestamp"`
	Channels  [sample.NumChannels]Channel `json:"channels"`
}

// NewRecord converts a received batch using conv.
func NewRecord(ts time.Time, b sample.SendingBatch, conv sample.Conversion) Record {
	r := Record{Timestamp: ts}
	for ch := range r.Channels {
		raw := make([]uint32, len(b.Raw[ch]))
		for i, c := range b.Raw[ch] {
			raw[i] = c.Value()
		}
		r.Channels[ch] = Channel{
			Channel:    ch,
			Raw:        raw,
			Millivolts: sample.ToMillivolts(b.Raw[ch], conv),
			Scores:     b.Scores[ch],
			Class:      argmax(b.Scores[ch]),
		}
	}
	return r
}

func argmax(v []float32) int {
	best := -1
	for i, x := range v {
		if best < 0 || x > v[best] {
			best = i
		}
	}
	return best
}

// Mean returns the mean of the channel's millivolt values, 0 when empty.
func (c Channel) Mean() float32 {
	if len(c.Millivolts) == 0 {
		return 0
	}
	var sum float64
	for _, v := range c.Millivolts {
		sum += float64(v)
	}
	return float32(sum / float64(len(c.Millivolts)))
}
