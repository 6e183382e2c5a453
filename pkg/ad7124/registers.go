package ad7124

import "fmt"

// ReadFlag is OR-ed into the communications byte to request a register read.
const ReadFlag = 0x40

// ResetLength is the number of all-ones bytes that force a serial interface reset.
const ResetLength = 8

// ConversionLength is the size of one continuous-read frame: 3 data bytes
// followed by the status byte.
const ConversionLength = 4

// Register describes one addressable converter register.
type Register struct {
	Name string
	Addr byte
	Size int // payload width in bytes
}

func (r Register) String() string {
	return fmt.Sprintf("%s(0x%02X)", r.Name, r.Addr)
}

var (
	StatusReg  = Register{Name: "status", Addr: 0x00, Size: 1}
	ControlReg = Register{Name: "adc_ctrl", Addr: 0x01, Size: 2}

	channelRegs = [...]Register{
		{Name: "channel0", Addr: 0x09, Size: 2},
		{Name: "channel1", Addr: 0x0A, Size: 2},
	}
	configRegs = [...]Register{
		{Name: "config0", Addr: 0x19, Size: 2},
		{Name: "config1", Addr: 0x1A, Size: 2},
	}
	filterRegs = [...]Register{
		{Name: "filter0", Addr: 0x21, Size: 3},
		{Name: "filter1", Addr: 0x22, Size: 3},
	}
)

// ChannelReg returns the channel map register of logical channel ch.
func ChannelReg(ch int) Register { return channelRegs[ch] }

// ConfigReg returns the configuration register of setup ch.
func ConfigReg(ch int) Register { return configRegs[ch] }

// FilterReg returns the filter register of setup ch.
func FilterReg(ch int) Register { return filterRegs[ch] }

// registerByAddr looks up a known register by address.
func registerByAddr(addr byte) (Register, bool) {
	all := []Register{StatusReg, ControlReg}
	all = append(all, channelRegs[:]...)
	all = append(all, configRegs[:]...)
	all = append(all, filterRegs[:]...)
	for _, r := range all {
		if r.Addr == addr {
			return r, true
		}
	}
	return Register{}, false
}

// Control register (ADC_CTRL) bits.
const (
	CtrlContRead   = 1 << 11
	CtrlDataStatus = 1 << 10
	CtrlRefEnable  = 1 << 8
)

func ctrlPowerMode(x uint8) uint32 { return uint32(x&0x3) << 6 }
func ctrlMode(x uint8) uint32      { return uint32(x&0xF) << 2 }
func ctrlClockSel(x uint8) uint32  { return uint32(x & 0x3) }

// Channel map register bits.
const ChEnable = 1 << 15

func chSetup(x uint8) uint32 { return uint32(x&0x7) << 12 }
func chAINP(x uint8) uint32  { return uint32(x&0x1F) << 5 }
func chAINM(x uint8) uint32  { return uint32(x & 0x1F) }

// Configuration register bits.
const (
	CfgBipolar  = 1 << 11
	CfgAINBufP  = 1 << 6
	CfgAINNBufM = 1 << 5
)

func cfgRefSel(x uint8) uint32 { return uint32(x&0x3) << 3 }
func cfgPGA(x uint8) uint32    { return uint32(x & 0x7) }

// Status register: the low nibble names the channel of the last conversion.
const StatusChannelMask = 0x0F

// analogInputs lists the AIN+/AIN- pin pair wired to each logical channel.
var analogInputs = [...][2]uint8{
	{0, 1},
	{2, 3},
}

// Setup is the per-channel analog front-end configuration.
type Setup struct {
	Bipolar      bool   `yaml:"bipolar"`
	BufferInputs bool   `yaml:"buffer_inputs"`
	RefSelect    uint8  `yaml:"ref_select"` // 0 REFIN1, 1 REFIN2, 2 internal, 3 AVDD
	PGA          uint8  `yaml:"pga"`        // gain = 1 << PGA
	Filter       uint32 `yaml:"filter"`     // raw 24-bit filter register word
}

// DefaultSetup is bipolar, buffered inputs, internal 2.5V reference, gain 4
// and the sinc4 filter at its fastest output rate.
func DefaultSetup() Setup {
	return Setup{
		Bipolar:      true,
		BufferInputs: true,
		RefSelect:    2,
		PGA:          2,
		Filter:       0x000000,
	}
}

// ConfigWord encodes the configuration register value.
func (s Setup) ConfigWord() uint32 {
	var v uint32
	if s.Bipolar {
		v |= CfgBipolar
	}
	if s.BufferInputs {
		v |= CfgAINBufP | CfgAINNBufM
	}
	return v | cfgRefSel(s.RefSelect) | cfgPGA(s.PGA)
}

// Gain returns the programmable gain selected by PGA.
func (s Setup) Gain() float64 {
	return float64(uint32(1) << (s.PGA & 0x7))
}

// Control is the ADC_CTRL configuration.
type Control struct {
	PowerMode   uint8 `yaml:"power_mode"`   // 0 low, 1 mid, 2/3 full power
	Mode        uint8 `yaml:"mode"`         // 0 continuous conversion
	ClockSelect uint8 `yaml:"clock_select"` // 0 internal clock
}

// ControlWord encodes the control register value. Status-in-data, the
// internal reference and continuous read are always enabled: the
// acquisition loop depends on all three.
func (c Control) ControlWord() uint32 {
	return CtrlDataStatus | CtrlRefEnable | CtrlContRead |
		ctrlPowerMode(c.PowerMode) | ctrlMode(c.Mode) | ctrlClockSel(c.ClockSelect)
}

// ChannelWord encodes the channel map register of logical channel ch, bound
// to setup ch.
func ChannelWord(ch int) uint32 {
	pins := analogInputs[ch]
	return ChEnable | chSetup(uint8(ch)) | chAINP(pins[0]) | chAINM(pins[1])
}
