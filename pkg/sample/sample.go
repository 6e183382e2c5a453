package sample

// NumChannels is the number of analog channels the node acquires.
const NumChannels = 2

// Code is one 24-bit ADC code as transmitted by the converter, most
// significant byte first.
type Code [3]byte

// Value returns the code as an unsigned 24-bit integer.
func (c Code) Value() uint32 {
	return uint32(c[0])<<16 | uint32(c[1])<<8 | uint32(c[2])
}

// CodeFromValue packs the low 24 bits of v into a Code.
func CodeFromValue(v uint32) Code {
	return Code{byte(v >> 16), byte(v >> 8), byte(v)}
}

// ReadingBatch is the most recent window of aggregated codes for every
// channel, oldest first. Each channel slice has the configured vector size.
type ReadingBatch struct {
	Channels [NumChannels][]Code
}

// SendingBatch carries the raw window of a ReadingBatch together with the
// classification scores the model produced for each channel.
type SendingBatch struct {
	Raw    [NumChannels][]Code
	Scores [NumChannels][]float32
}
