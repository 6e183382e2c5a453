package config

import (
	"fmt"
	"os"
	"time"

	"github.com/itohio/daqnode/pkg/acquire"
	"github.com/itohio/daqnode/pkg/ad7124"
	"github.com/itohio/daqnode/pkg/output/mqtt"
	"github.com/itohio/daqnode/pkg/process"
	"github.com/itohio/daqnode/pkg/sample"
	"gopkg.in/yaml.v3"
)

// Config represents the node and host configuration.
type Config struct {
	ADC           ADCConfig             `yaml:"adc"`
	Acquisition   AcquisitionConfig     `yaml:"acquisition"`
	Conversion    sample.Conversion     `yaml:"conversion"`
	Normalization process.Normalization `yaml:"normalization"`
	Model         ModelConfig           `yaml:"model"`
	Link          LinkConfig            `yaml:"link"`
	Host          HostConfig            `yaml:"host"`
	Sim           ad7124.SimConfig      `yaml:"sim"`
}

// ADCConfig contains converter wiring and register setup.
type ADCConfig struct {
	SPIPort      string                           `yaml:"spi_port"`       // empty selects the first SPI port
	ClockHz      int64                            `yaml:"clock_hz"`       // SPI clock
	DataReadyPin string                           `yaml:"data_ready_pin"` // GPIO name of the DOUT/RDY line
	Channels     []int                            `yaml:"channels"`       // enabled logical channels
	Setups       [sample.NumChannels]ad7124.Setup `yaml:"setups"`
	Control      ad7124.Control                   `yaml:"control"`
}

// AcquisitionConfig contains downsampling parameters.
type AcquisitionConfig struct {
	DownsamplingPeriod time.Duration `yaml:"downsampling_period"` // time covered by one published window
	VectorSize         int           `yaml:"vector_size"`         // means per channel in a window
}

// ModelConfig contains inference parameters.
type ModelConfig struct {
	Classes     int    `yaml:"classes"`
	WeightsFile string `yaml:"weights_file"` // empty uses a uniform model
}

// LinkConfig contains the node side of the serial link.
type LinkConfig struct {
	Port       string        `yaml:"port"`
	Baud       int           `yaml:"baud"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// HostConfig contains the host side of the serial link and its outputs.
type HostConfig struct {
	Port    string         `yaml:"port"`
	Baud    int            `yaml:"baud"`
	Outputs []OutputConfig `yaml:"outputs"`
}

// OutputConfig selects one host output.
type OutputConfig struct {
	Type string       `yaml:"type"` // console | mqtt
	MQTT *mqtt.Config `yaml:"mqtt,omitempty"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		ADC: ADCConfig{
			ClockHz:      1_000_000,
			DataReadyPin: "GPIO25",
			Channels:     []int{0, 1},
			Setups:       ad7124.DefaultOptions().Setups,
		},
		Acquisition: AcquisitionConfig{
			DownsamplingPeriod: 60 * time.Second,
			VectorSize:         60,
		},
		Conversion:    sample.DefaultConversion(),
		Normalization: process.DefaultNormalization(),
		Model: ModelConfig{
			Classes: 2,
		},
		Link: LinkConfig{
			Port:       "/dev/ttyS0",
			Baud:       115200,
			RetryDelay: 100 * time.Millisecond,
		},
		Host: HostConfig{
			Port:    "/dev/ttyACM0",
			Baud:    115200,
			Outputs: []OutputConfig{{Type: "console"}},
		},
		Sim: ad7124.DefaultSimConfig(),
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Gain follows setup 0's PGA unless the file sets it.
	cfg.Conversion.Gain = 0
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if len(c.ADC.Channels) == 0 {
		return fmt.Errorf("no ADC channel enabled")
	}
	for _, ch := range c.ADC.Channels {
		if ch < 0 || ch >= sample.NumChannels {
			return fmt.Errorf("ADC channel %d out of range [0, %d)", ch, sample.NumChannels)
		}
	}
	if err := c.AcquireConfig().Validate(); err != nil {
		return err
	}
	if err := c.Normalization.Validate(); err != nil {
		return err
	}
	if c.Model.Classes < 1 {
		return fmt.Errorf("model classes must be positive, got %d", c.Model.Classes)
	}
	for i, o := range c.Host.Outputs {
		switch o.Type {
		case "console", "mqtt":
		default:
			return fmt.Errorf("output %d: unknown type %q", i, o.Type)
		}
	}
	return nil
}

// EnabledChannels returns the channel list as a per-channel flag array.
func (c *Config) EnabledChannels() [sample.NumChannels]bool {
	var out [sample.NumChannels]bool
	for _, ch := range c.ADC.Channels {
		if ch >= 0 && ch < sample.NumChannels {
			out[ch] = true
		}
	}
	return out
}

// ADCOptions returns the driver options.
func (c *Config) ADCOptions() ad7124.Options {
	return ad7124.Options{Setups: c.ADC.Setups, Control: c.ADC.Control}
}

// AcquireConfig returns the acquisition loop parameters.
func (c *Config) AcquireConfig() acquire.Config {
	return acquire.Config{
		Period:     c.Acquisition.DownsamplingPeriod,
		VectorSize: c.Acquisition.VectorSize,
	}
}

// ProcessConfig returns the processing stage parameters.
func (c *Config) ProcessConfig() process.Config {
	return process.Config{Conversion: c.Conversion, Normalization: c.Normalization}
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.ADC.ClockHz == 0 {
		c.ADC.ClockHz = def.ADC.ClockHz
	}
	if c.ADC.DataReadyPin == "" {
		c.ADC.DataReadyPin = def.ADC.DataReadyPin
	}
	if len(c.ADC.Channels) == 0 {
		c.ADC.Channels = def.ADC.Channels
	}

	if c.Acquisition.DownsamplingPeriod == 0 {
		c.Acquisition.DownsamplingPeriod = def.Acquisition.DownsamplingPeriod
	}
	if c.Acquisition.VectorSize == 0 {
		c.Acquisition.VectorSize = def.Acquisition.VectorSize
	}

	if c.Conversion.FullScale == 0 {
		c.Conversion.FullScale = def.Conversion.FullScale
	}
	if c.Conversion.VRef == 0 {
		c.Conversion.VRef = def.Conversion.VRef
	}
	if c.Conversion.Gain == 0 {
		c.Conversion.Gain = c.ADC.Setups[0].Gain()
	}

	if c.Normalization.Mode == "" {
		c.Normalization.Mode = def.Normalization.Mode
	}
	if c.Normalization.Scale == 0 {
		c.Normalization.Scale = def.Normalization.Scale
	}
	if c.Normalization.Window == 0 {
		c.Normalization.Window = def.Normalization.Window
	}

	if c.Model.Classes == 0 {
		c.Model.Classes = def.Model.Classes
	}

	if c.Link.Port == "" {
		c.Link.Port = def.Link.Port
	}
	if c.Link.Baud == 0 {
		c.Link.Baud = def.Link.Baud
	}
	if c.Link.RetryDelay == 0 {
		c.Link.RetryDelay = def.Link.RetryDelay
	}

	if c.Host.Port == "" {
		c.Host.Port = def.Host.Port
	}
	if c.Host.Baud == 0 {
		c.Host.Baud = def.Host.Baud
	}
	if len(c.Host.Outputs) == 0 {
		c.Host.Outputs = def.Host.Outputs
	}
	for i := range c.Host.Outputs {
		if c.Host.Outputs[i].Type == "mqtt" && c.Host.Outputs[i].MQTT == nil {
			m := mqtt.DefaultConfig()
			c.Host.Outputs[i].MQTT = &m
		}
	}

	if c.Sim.Rate == 0 {
		c.Sim.Rate = def.Sim.Rate
	}
}
