package ad7124

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// DefaultPollInterval bounds every edge wait so cancellation is noticed.
const DefaultPollInterval = 50 * time.Millisecond

// PinDataReady waits for a falling edge on the converter's data-ready line.
type PinDataReady struct {
	pin   gpio.PinIO
	poll  time.Duration
	edges bool
}

// NewPinDataReady configures pin as a pulled-up input. Edge detection is
// used when the platform supports it, polling otherwise.
func NewPinDataReady(pin gpio.PinIO, poll time.Duration) (*PinDataReady, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	d := &PinDataReady{pin: pin, poll: poll, edges: true}
	if err := pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
		if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("failed to configure %s: %w", pin, err)
		}
		d.edges = false
	}
	return d, nil
}

// Wait blocks until the line has been high and then goes low, which marks a
// fresh conversion rather than one already signalled.
func (d *PinDataReady) Wait(ctx context.Context) error {
	if err := d.waitLevel(ctx, gpio.High); err != nil {
		return err
	}
	return d.waitLevel(ctx, gpio.Low)
}

func (d *PinDataReady) waitLevel(ctx context.Context, level gpio.Level) error {
	for d.pin.Read() != level {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.edges {
			d.pin.WaitForEdge(d.poll)
		} else {
			time.Sleep(d.poll / 50)
		}
	}
	return nil
}

// Periph is a converter attached through periph.io.
type Periph struct {
	Bus       spi.Conn
	DataReady *PinDataReady

	port spi.PortCloser
}

// Close releases the SPI port.
func (p *Periph) Close() error {
	return p.port.Close()
}

// OpenPeriph initializes the host drivers, opens the SPI port in mode 3 and
// the data-ready pin. An empty port name selects the first available port.
func OpenPeriph(port string, clock physic.Frequency, drdyPin string) (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	p, err := spireg.Open(port)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", port, err)
	}
	conn, err := p.Connect(clock, spi.Mode3, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to connect SPI port %q: %w", port, err)
	}

	pin := gpioreg.ByName(drdyPin)
	if pin == nil {
		p.Close()
		return nil, fmt.Errorf("failed to find data-ready pin %q", drdyPin)
	}
	drdy, err := NewPinDataReady(pin, DefaultPollInterval)
	if err != nil {
		p.Close()
		return nil, err
	}

	return &Periph{Bus: conn, DataReady: drdy, port: p}, nil
}
