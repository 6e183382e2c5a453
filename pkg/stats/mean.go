// Package stats implements the bounded, allocation-free running statistics used
// to downsample converter codes and to track adaptive normalization bounds.
package stats

import (
	"math"

	"github.com/itohio/daqnode/pkg/sample"
)

// tieEpsilon is how close a fractional part must be to 0.5 to be treated as an
// exact tie. Accumulated error of the running mean stays far below it, while
// the nearest non-tie fraction k/n stays far above it for realistic n.
const tieEpsilon = 1e-9

const lanes = len(sample.Code{})

// OnlineMean is a running mean of 3-byte codes, tracked independently per
// byte lane. Updates use Welford's incremental average with Kahan
// compensation on every lane. The zero value is ready to use.
type OnlineMean struct {
	mean       [lanes]float64
	correction [lanes]float64
	count      int
}

// Update folds one code into the mean.
func (m *OnlineMean) Update(c sample.Code) {
	m.count++
	factor := 1.0 / float64(m.count)
	for i := 0; i < lanes; i++ {
		term := (float64(c[i]) - m.mean[i]) * factor
		m.mean[i] = kahanSum(m.mean[i], &m.correction[i], term)
	}
}

// Count returns how many codes have been folded in since the last reset.
func (m *OnlineMean) Count() int {
	return m.count
}

// Reset starts a new aggregation interval.
func (m *OnlineMean) Reset() {
	*m = OnlineMean{}
}

// Mean returns the per-lane mean rounded half-to-even and clamped to a byte.
// An empty accumulator yields the zero code.
func (m *OnlineMean) Mean() sample.Code {
	var out sample.Code
	for i := 0; i < lanes; i++ {
		out[i] = RoundToUint8(m.mean[i])
	}
	return out
}

func kahanSum(sum float64, correction *float64, next float64) float64 {
	y := next - *correction
	t := sum + y
	*correction = (t - sum) - y
	return t
}

// RoundToUint8 rounds x to the nearest integer, resolving exact .5 ties to
// the even neighbour (2.5 -> 2, 3.5 -> 4), and clamps the result to [0,255].
func RoundToUint8(x float64) uint8 {
	if math.IsNaN(x) {
		return 0
	}
	floor := math.Floor(x)
	var r float64
	if math.Abs(x-floor-0.5) < tieEpsilon {
		r = floor
		if math.Mod(floor, 2) != 0 {
			r = floor + 1
		}
	} else {
		r = math.Round(x)
	}
	switch {
	case r < 0:
		return 0
	case r > 255:
		return 255
	}
	return uint8(r)
}

// MeanOf computes the per-lane mean of codes by direct integer summation,
// rounding half-to-even. It is the exact reference OnlineMean converges to.
func MeanOf(codes []sample.Code) sample.Code {
	var out sample.Code
	n := uint64(len(codes))
	if n == 0 {
		return out
	}
	for i := 0; i < lanes; i++ {
		var sum uint64
		for _, c := range codes {
			sum += uint64(c[i])
		}
		q, r := sum/n, sum%n
		switch {
		case 2*r > n:
			q++
		case 2*r == n && q%2 == 1:
			q++
		}
		out[i] = uint8(min(q, 255))
	}
	return out
}
