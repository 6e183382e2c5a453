// Package ad7124 drives an AD7124-family sigma-delta converter over SPI.
//
// Every register access is one bus transaction: the communications byte
// (address, OR-ed with ReadFlag for reads) followed by the payload, most
// significant byte first. Configuration writes are read back and compared;
// mismatches are logged and reported but never retried.
package ad7124

import (
	"context"
	"fmt"

	"github.com/itohio/daqnode/pkg/monitoring"
	"github.com/itohio/daqnode/pkg/sample"
)

// Bus is a full-duplex serial bus. periph.io spi.Conn satisfies it.
type Bus interface {
	Tx(w, r []byte) error
}

// DataReady blocks until the converter signals a new conversion result.
type DataReady interface {
	Wait(ctx context.Context) error
}

// Conversion is one continuous-read frame.
type Conversion struct {
	Code   sample.Code
	Status byte
}

// Channel returns the channel tag carried in the status byte.
func (c Conversion) Channel() int {
	return int(c.Status & StatusChannelMask)
}

// Options configures the converter.
type Options struct {
	Setups  [sample.NumChannels]Setup
	Control Control
}

// DefaultOptions returns the default setup on both channels.
func DefaultOptions() Options {
	return Options{
		Setups: [sample.NumChannels]Setup{DefaultSetup(), DefaultSetup()},
	}
}

// Check is the outcome of reading a register back after writing it.
type Check struct {
	Register Register
	Wrote    uint32
	Read     uint32
}

// OK reports whether the read-back matched the written value.
func (c Check) OK() bool { return c.Wrote == c.Read }

// Report collects the read-back checks of one initialization.
type Report struct {
	Status byte
	Checks []Check
}

// Mismatches returns the checks whose read-back differed.
func (r Report) Mismatches() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.OK() {
			out = append(out, c)
		}
	}
	return out
}

// Driver talks to one converter.
type Driver struct {
	bus    Bus
	opts   Options
	checks []Check
}

// New creates a driver on bus.
func New(bus Bus, opts Options) *Driver {
	return &Driver{bus: bus, opts: opts}
}

// Reset clocks eight all-ones bytes to return the serial interface to a
// known state. Nothing is read back.
func (d *Driver) Reset() error {
	w := make([]byte, ResetLength)
	for i := range w {
		w[i] = 0xFF
	}
	if err := d.bus.Tx(w, make([]byte, len(w))); err != nil {
		return fmt.Errorf("failed to reset converter: %w", err)
	}
	return nil
}

// ReadStatus returns the status register.
func (d *Driver) ReadStatus() (byte, error) {
	v, err := d.ReadRegister(StatusReg)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

// ReadRegister reads r and returns its value.
func (d *Driver) ReadRegister(r Register) (uint32, error) {
	w := make([]byte, 1+r.Size)
	w[0] = r.Addr | ReadFlag
	rd := make([]byte, len(w))
	if err := d.bus.Tx(w, rd); err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", r, err)
	}
	var v uint32
	for _, b := range rd[1:] {
		v = v<<8 | uint32(b)
	}
	return v, nil
}

// WriteRegister writes v to r.
func (d *Driver) WriteRegister(r Register, v uint32) error {
	w := make([]byte, 1+r.Size)
	w[0] = r.Addr
	for i := 0; i < r.Size; i++ {
		w[r.Size-i] = byte(v >> (8 * i))
	}
	if err := d.bus.Tx(w, make([]byte, len(w))); err != nil {
		return fmt.Errorf("failed to write %s: %w", r, err)
	}
	return nil
}

// ConfigureChannels enables every logical channel flagged in enabled,
// binding channel n to setup n and its AIN pin pair.
func (d *Driver) ConfigureChannels(enabled [sample.NumChannels]bool) error {
	for ch, on := range enabled {
		if !on {
			continue
		}
		if err := d.writeVerified(ChannelReg(ch), ChannelWord(ch)); err != nil {
			return err
		}
	}
	return nil
}

// ConfigureInputRange writes the configuration register of setup ch:
// polarity, input buffering, reference and gain.
func (d *Driver) ConfigureInputRange(ch int) error {
	return d.writeVerified(ConfigReg(ch), d.opts.Setups[ch].ConfigWord())
}

// ConfigureFilter writes the filter register of setup ch.
func (d *Driver) ConfigureFilter(ch int) error {
	return d.writeVerified(FilterReg(ch), d.opts.Setups[ch].Filter&0xFFFFFF)
}

// ConfigureControl writes ADC_CTRL, which also starts continuous conversion
// and continuous read.
func (d *Driver) ConfigureControl() error {
	return d.writeVerified(ControlReg, d.opts.Control.ControlWord())
}

// Init runs the power-up sequence for the enabled channels and returns the
// read-back report.
func (d *Driver) Init(enabled [sample.NumChannels]bool) (Report, error) {
	d.checks = nil

	if err := d.Reset(); err != nil {
		return Report{}, err
	}
	status, err := d.ReadStatus()
	if err != nil {
		return Report{}, err
	}
	monitoring.Logf("ad7124: status=0x%02X (%08b)", status, status)

	if err := d.ConfigureChannels(enabled); err != nil {
		return Report{}, err
	}
	for ch, on := range enabled {
		if !on {
			continue
		}
		if err := d.ConfigureInputRange(ch); err != nil {
			return Report{}, err
		}
		if err := d.ConfigureFilter(ch); err != nil {
			return Report{}, err
		}
	}
	if err := d.ConfigureControl(); err != nil {
		return Report{}, err
	}

	report := Report{Status: status, Checks: d.checks}
	d.checks = nil
	return report, nil
}

// ReadConversion clocks one continuous-read frame.
func (d *Driver) ReadConversion() (Conversion, error) {
	w := make([]byte, ConversionLength)
	r := make([]byte, ConversionLength)
	if err := d.bus.Tx(w, r); err != nil {
		return Conversion{}, fmt.Errorf("failed to read conversion: %w", err)
	}
	return Conversion{Code: sample.Code{r[0], r[1], r[2]}, Status: r[3]}, nil
}

// writeVerified reads r, writes v and reads r again. A differing read-back
// is logged and recorded, never treated as failure.
func (d *Driver) writeVerified(r Register, v uint32) error {
	before, err := d.ReadRegister(r)
	if err != nil {
		return err
	}
	if err := d.WriteRegister(r, v); err != nil {
		return err
	}
	after, err := d.ReadRegister(r)
	if err != nil {
		return err
	}

	check := Check{Register: r, Wrote: v, Read: after}
	d.checks = append(d.checks, check)
	if check.OK() {
		monitoring.Logf("ad7124: %s 0x%0*X -> 0x%0*X", r, 2*r.Size, before, 2*r.Size, after)
	} else {
		monitoring.Logf("ad7124: %s read-back mismatch: wrote 0x%0*X, read 0x%0*X", r, 2*r.Size, v, 2*r.Size, after)
	}
	return nil
}
