package ad7124

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/itohio/daqnode/pkg/sample"
)

// SimConfig shapes the signal produced by Sim.
type SimConfig struct {
	Rate      time.Duration `yaml:"rate"`      // time between conversions
	Amplitude float64       `yaml:"amplitude"` // fraction of full scale, 0..1
	Frequency float64       `yaml:"frequency"` // Hz
	Noise     float64       `yaml:"noise"`     // fraction of full scale
}

// DefaultSimConfig produces a 1 Hz sine at a quarter of full scale every
// millisecond.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Rate:      time.Millisecond,
		Amplitude: 0.25,
		Frequency: 1,
		Noise:     0.001,
	}
}

// power-on register values
var simResetValues = map[byte]uint32{
	0x00: 0x00,
	0x01: 0x0000,
	0x09: 0x8001,
	0x0A: 0x0001,
	0x19: 0x0860,
	0x1A: 0x0860,
	0x21: 0x060180,
	0x22: 0x060180,
}

// Sim is a simulated converter. It implements Bus and DataReady, keeps its
// register file so written configuration reads back, and in continuous-read
// mode emits conversions that alternate between the enabled channels.
type Sim struct {
	cfg SimConfig

	mu       sync.Mutex
	regs     map[byte]uint32
	contRead bool
	n        uint64 // conversions emitted
	next     int    // channel of the next conversion
	txs      int
}

var (
	_ Bus       = (*Sim)(nil)
	_ DataReady = (*Sim)(nil)
)

// NewSim creates a simulated converter in its power-on state.
func NewSim(cfg SimConfig) *Sim {
	s := &Sim{cfg: cfg}
	s.reset()
	return s
}

func (s *Sim) reset() {
	s.regs = make(map[byte]uint32, len(simResetValues))
	for k, v := range simResetValues {
		s.regs[k] = v
	}
	s.contRead = false
	s.next = 0
}

// Transactions returns the number of bus transactions served.
func (s *Sim) Transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs
}

// Register returns the stored value of the register at addr.
func (s *Sim) Register(addr byte) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[addr]
}

// Tx serves one bus transaction.
func (s *Sim) Tx(w, r []byte) error {
	if len(r) != len(w) {
		return fmt.Errorf("sim: read buffer %d bytes, write buffer %d bytes", len(r), len(w))
	}
	if len(w) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs++

	if isReset(w) {
		s.reset()
		return nil
	}
	if s.contRead && len(w) == ConversionLength && !isRegisterAccess(w) {
		return s.convert(r)
	}

	addr := w[0] &^ ReadFlag
	reg, ok := registerByAddr(addr)
	if !ok {
		return fmt.Errorf("sim: unknown register 0x%02X", addr)
	}
	if len(w) != 1+reg.Size {
		return fmt.Errorf("sim: %s expects %d payload bytes, got %d", reg, reg.Size, len(w)-1)
	}

	if w[0]&ReadFlag != 0 {
		v := s.regs[addr]
		for i := 0; i < reg.Size; i++ {
			r[reg.Size-i] = byte(v >> (8 * i))
		}
		return nil
	}

	var v uint32
	for _, b := range w[1:] {
		v = v<<8 | uint32(b)
	}
	if reg == StatusReg {
		return nil
	}
	s.regs[addr] = v
	if reg == ControlReg {
		s.contRead = v&CtrlContRead != 0
	}
	return nil
}

// Wait blocks for one conversion period.
func (s *Sim) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.cfg.Rate <= 0 {
		return nil
	}
	t := time.NewTimer(s.cfg.Rate)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Sim) convert(r []byte) error {
	var enabled []int
	for ch := 0; ch < sample.NumChannels; ch++ {
		if s.regs[channelRegs[ch].Addr]&ChEnable != 0 {
			enabled = append(enabled, ch)
		}
	}
	if len(enabled) == 0 {
		return fmt.Errorf("sim: no channel enabled")
	}

	ch := enabled[s.next%len(enabled)]
	s.next = (s.next + 1) % len(enabled)

	t := float64(s.n) * s.cfg.Rate.Seconds()
	s.n++
	phase := float64(ch) * math.Pi / 2
	x := s.cfg.Amplitude*math.Sin(2*math.Pi*s.cfg.Frequency*t+phase) +
		s.cfg.Noise*math.Sin(1e4*t+float64(s.n))

	code := simCode(x)
	r[0], r[1], r[2] = code[0], code[1], code[2]
	r[3] = byte(ch)
	s.regs[StatusReg.Addr] = uint32(ch)
	return nil
}

// simCode maps x in [-1, 1] onto the bipolar offset-binary code range.
func simCode(x float64) sample.Code {
	const mid = 1 << 23
	v := math.Round(mid + x*(mid-1))
	v = math.Max(0, math.Min(v, 1<<24-1))
	return sample.CodeFromValue(uint32(v))
}

// isRegisterAccess reports whether w addresses a known register with a
// matching payload width. Continuous-read frames clock out all zeros.
func isRegisterAccess(w []byte) bool {
	reg, ok := registerByAddr(w[0] &^ ReadFlag)
	return ok && len(w) == 1+reg.Size
}

func isReset(w []byte) bool {
	if len(w) != ResetLength {
		return false
	}
	for _, b := range w {
		if b != 0xFF {
			return false
		}
	}
	return true
}
