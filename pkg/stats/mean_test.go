package stats

import (
	"math/rand"
	"testing"

	"github.com/itohio/daqnode/pkg/sample"
	"github.com/stretchr/testify/assert"
)

func TestRoundToUint8(t *testing.T) {
	tests := []struct {
		in   float64
		want uint8
	}{
		{in: 0, want: 0},
		{in: 1.4, want: 1},
		{in: 1.6, want: 2},
		{in: 2.5, want: 2},
		{in: 3.5, want: 4},
		{in: 0.5, want: 0},
		{in: 254.5, want: 254},
		{in: 253.5, want: 254},
		{in: 2.4999999999999, want: 2},
		{in: 3.5000000000001, want: 4},
		{in: -0.4, want: 0},
		{in: -3, want: 0},
		{in: 255.4, want: 255},
		{in: 300, want: 255},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundToUint8(tt.in), "RoundToUint8(%v)", tt.in)
	}
}

func TestOnlineMean_Empty(t *testing.T) {
	var m OnlineMean
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, sample.Code{0, 0, 0}, m.Mean())
}

func TestOnlineMean_Single(t *testing.T) {
	var m OnlineMean
	m.Update(sample.Code{0x12, 0x34, 0x56})
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, sample.Code{0x12, 0x34, 0x56}, m.Mean())
}

func TestOnlineMean_TiesRoundToEven(t *testing.T) {
	var m OnlineMean
	m.Update(sample.Code{2, 3, 0})
	m.Update(sample.Code{3, 4, 1})
	assert.Equal(t, sample.Code{2, 4, 0}, m.Mean())
}

func TestOnlineMean_Reset(t *testing.T) {
	var m OnlineMean
	m.Update(sample.Code{200, 200, 200})
	m.Reset()
	m.Update(sample.Code{10, 20, 30})
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, sample.Code{10, 20, 30}, m.Mean())
}

func TestOnlineMean_MatchesDirectSummation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(2000)
		codes := make([]sample.Code, n)
		var m OnlineMean
		for i := range codes {
			codes[i] = sample.Code{byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(256))}
			m.Update(codes[i])
		}
		assert.Equal(t, MeanOf(codes), m.Mean(), "trial %d, n=%d", trial, n)
	}
}

func TestOnlineMean_TiesOverLongRuns(t *testing.T) {
	// Alternating 0/255 gives an exact x.5 on every even count.
	var m OnlineMean
	codes := make([]sample.Code, 0, 1000)
	for i := 0; i < 1000; i++ {
		c := sample.Code{0, 1, 254}
		if i%2 == 1 {
			c = sample.Code{255, 2, 255}
		}
		codes = append(codes, c)
		m.Update(c)
	}
	// 127.5 -> 128, 1.5 -> 2, 254.5 -> 254
	assert.Equal(t, sample.Code{128, 2, 254}, m.Mean())
	assert.Equal(t, MeanOf(codes), m.Mean())
}

func TestMeanOf(t *testing.T) {
	assert.Equal(t, sample.Code{}, MeanOf(nil))
	assert.Equal(t, sample.Code{4, 5, 6}, MeanOf([]sample.Code{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}))
	assert.Equal(t, sample.Code{2, 4, 255}, MeanOf([]sample.Code{{2, 3, 255}, {3, 4, 255}}))
}
