package stats

import (
	"math"

	"github.com/chewxy/math32"
)

// OnlineMinMax tracks the minimum and maximum over a sliding window of the
// most recent observations. Storage is a fixed ring allocated once.
type OnlineMinMax struct {
	window []float32
	next   int // slot the next value is written to
	count  int // number of valid values, at most len(window)
}

// NewOnlineMinMax creates a window holding the last windowSize values.
// A non-positive size is treated as 1.
func NewOnlineMinMax(windowSize int) *OnlineMinMax {
	if windowSize <= 0 {
		windowSize = 1
	}
	return &OnlineMinMax{window: make([]float32, windowSize)}
}

// Update appends every value of batch, evicting the oldest values once the
// window is full.
func (w *OnlineMinMax) Update(batch []float32) {
	for _, v := range batch {
		w.window[w.next] = v
		w.next = (w.next + 1) % len(w.window)
		if w.count < len(w.window) {
			w.count++
		}
	}
}

// Max returns the largest value in the window, or -MaxFloat32 when the
// window is empty. Callers must check Len before using it as a bound.
func (w *OnlineMinMax) Max() float32 {
	if w.count == 0 {
		return -math.MaxFloat32
	}
	m := float32(-math.MaxFloat32)
	for _, v := range w.valid() {
		m = math32.Max(m, v)
	}
	return m
}

// Min returns the smallest value in the window, or MaxFloat32 when the
// window is empty.
func (w *OnlineMinMax) Min() float32 {
	if w.count == 0 {
		return math.MaxFloat32
	}
	m := float32(math.MaxFloat32)
	for _, v := range w.valid() {
		m = math32.Min(m, v)
	}
	return m
}

// Len returns the number of values currently in the window.
func (w *OnlineMinMax) Len() int { return w.count }

// Cap returns the window size.
func (w *OnlineMinMax) Cap() int { return len(w.window) }

// Full reports whether the window has been filled at least once.
func (w *OnlineMinMax) Full() bool { return w.count == len(w.window) }

// Reset empties the window.
func (w *OnlineMinMax) Reset() {
	w.next = 0
	w.count = 0
}

// valid returns the populated prefix while filling and the whole ring after.
// Ordering is irrelevant for min/max.
func (w *OnlineMinMax) valid() []float32 {
	if w.count < len(w.window) {
		return w.window[:w.count]
	}
	return w.window
}
