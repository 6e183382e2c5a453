package sample

// Conversion describes how raw codes map to physical units.
type Conversion struct {
	FullScale float64 `yaml:"full_scale"` // Code count of half the bipolar span (2^23 for a 24-bit converter)
	VRef      float64 `yaml:"vref"`       // Reference voltage (V)
	Gain      float64 `yaml:"gain"`       // Programmable gain
}

// DefaultConversion matches the converter setup written by the ad7124 driver:
// bipolar coding, 2.5V reference, gain 4.
func DefaultConversion() Conversion {
	return Conversion{
		FullScale: 8388608,
		VRef:      2.5,
		Gain:      4,
	}
}

// ToMillivolts converts bipolar offset-binary codes to millivolts.
// Formula: mV = (code - FullScale) / FullScale * VRef / Gain * 1000
func ToMillivolts(codes []Code, conv Conversion) []float32 {
	out := make([]float32, len(codes))
	if conv.FullScale == 0 || conv.Gain == 0 {
		return out
	}
	for i, c := range codes {
		out[i] = float32(codeToMillivolts(c.Value(), conv))
	}
	return out
}

func codeToMillivolts(code uint32, conv Conversion) float64 {
	return (float64(code) - conv.FullScale) / conv.FullScale * conv.VRef / conv.Gain * 1000
}
