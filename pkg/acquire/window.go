package acquire

import (
	"github.com/itohio/daqnode/pkg/sample"
	"github.com/itohio/daqnode/pkg/stats"
)

// Window aggregates conversions into per-interval means and keeps the last
// size means of every channel in a ring.
type Window struct {
	size  int
	means [sample.NumChannels]stats.OnlineMean
	rings [sample.NumChannels][]sample.Code
	next  int
	fresh [sample.NumChannels]int
}

// NewWindow creates a window holding size means per channel. size below 1
// is treated as 1.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	w := &Window{size: size}
	for ch := range w.rings {
		w.rings[ch] = make([]sample.Code, size)
	}
	return w
}

// Size returns the number of means per channel in a published batch.
func (w *Window) Size() int {
	return w.size
}

// Add folds a conversion into the running mean of ch. It reports false for a
// channel the window does not track.
func (w *Window) Add(ch int, c sample.Code) bool {
	if ch < 0 || ch >= sample.NumChannels {
		return false
	}
	w.means[ch].Update(c)
	return true
}

// Count returns the number of conversions ch received in the current interval.
func (w *Window) Count(ch int) int {
	return w.means[ch].Count()
}

// Rotate closes the current interval: every channel's mean enters its ring
// and its accumulator restarts. An interval without conversions contributes
// the zero code. Once every channel has received size fresh means since the
// last batch, Rotate returns the batch, oldest first, and true.
func (w *Window) Rotate() (sample.ReadingBatch, bool) {
	for ch := range w.rings {
		w.rings[ch][w.next] = w.means[ch].Mean()
		w.means[ch].Reset()
		w.fresh[ch]++
	}
	w.next = (w.next + 1) % w.size

	for _, n := range w.fresh {
		if n < w.size {
			return sample.ReadingBatch{}, false
		}
	}

	var batch sample.ReadingBatch
	for ch, ring := range w.rings {
		out := make([]sample.Code, 0, w.size)
		out = append(out, ring[w.next:]...)
		out = append(out, ring[:w.next]...)
		batch.Channels[ch] = out
		w.fresh[ch] = 0
	}
	return batch, true
}
