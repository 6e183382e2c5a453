package acquire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/daqnode/pkg/sample"
)

func TestWindow_PublishGating(t *testing.T) {
	for _, size := range []int{1, 2, 3, 8} {
		w := NewWindow(size)
		for round := 0; round < 3; round++ {
			for i := 0; i < size-1; i++ {
				w.Add(0, sample.Code{1})
				w.Add(1, sample.Code{2})
				_, ok := w.Rotate()
				require.False(t, ok, "size %d round %d: published after %d intervals", size, round, i+1)
			}
			w.Add(0, sample.Code{1})
			w.Add(1, sample.Code{2})
			batch, ok := w.Rotate()
			require.True(t, ok, "size %d round %d: no batch after %d intervals", size, round, size)
			assert.Len(t, batch.Channels[0], size)
			assert.Len(t, batch.Channels[1], size)
		}
	}
}

func TestWindow_OldestFirst(t *testing.T) {
	w := NewWindow(3)
	for v := byte(1); v <= 5; v++ {
		w.Add(0, sample.Code{v})
		w.Add(1, sample.Code{0, v})
		batch, ok := w.Rotate()
		if v == 3 {
			require.True(t, ok)
			assert.Equal(t, []sample.Code{{1}, {2}, {3}}, batch.Channels[0])
		}
	}
	w.Add(0, sample.Code{6})
	batch, ok := w.Rotate()
	require.True(t, ok)
	assert.Equal(t, []sample.Code{{4}, {5}, {6}}, batch.Channels[0])
	assert.Equal(t, []sample.Code{{0, 4}, {0, 5}, {}}, batch.Channels[1])
}

func TestWindow_IntervalMean(t *testing.T) {
	w := NewWindow(1)
	w.Add(0, sample.Code{1, 2, 3})
	w.Add(0, sample.Code{3, 4, 6})
	assert.Equal(t, 2, w.Count(0))
	assert.Equal(t, 0, w.Count(1))

	batch, ok := w.Rotate()
	require.True(t, ok)
	// 4.5 rounds half to even.
	assert.Equal(t, []sample.Code{{2, 3, 4}}, batch.Channels[0])
	assert.Equal(t, []sample.Code{{}}, batch.Channels[1])
	assert.Equal(t, 0, w.Count(0))
}

func TestWindow_UnknownChannel(t *testing.T) {
	w := NewWindow(2)
	assert.False(t, w.Add(sample.NumChannels, sample.Code{1}))
	assert.False(t, w.Add(-1, sample.Code{1}))
	assert.True(t, w.Add(1, sample.Code{1}))
}

func TestWindow_BatchIsIndependent(t *testing.T) {
	w := NewWindow(1)
	w.Add(0, sample.Code{9})
	batch, ok := w.Rotate()
	require.True(t, ok)

	w.Add(0, sample.Code{1})
	w.Rotate()
	assert.Equal(t, sample.Code{9}, batch.Channels[0][0])
}
