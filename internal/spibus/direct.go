package spibus

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Clock rates the bus accepts, in MHz.
const (
	MinClockMHz = 1
	MaxClockMHz = 15
)

type directLane struct {
	lane *Lane
	pin  gpio.PinIO
}

// Direct drives up to MaxConnectors strips in parallel: one shared
// clock pin, one data pin per connector, every lane shifted MSB-first
// bit for bit under the common clock. Clockless families ride the
// hardware SPI port instead and are folded into the transaction via
// commit hooks.
type Direct struct {
	freq  physic.Frequency
	clk   gpio.PinIO
	lanes []directLane
	hooks []func() error
	port  spi.PortCloser
}

// NewDirect initializes the host and claims the shared clock pin. The
// clock rate is checked before any hardware is touched.
func NewDirect(clockMHz int) (*Direct, error) {
	if clockMHz < MinClockMHz || clockMHz > MaxClockMHz {
		return nil, fmt.Errorf("SPI clock %d MHz out of range [%d..%d]", clockMHz, MinClockMHz, MaxClockMHz)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	clk := gpioreg.ByName(ClockPin)
	if clk == nil {
		return nil, fmt.Errorf("clock pin %s not present", ClockPin)
	}
	if err := clk.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("clock pin %s: %w", ClockPin, err)
	}
	return &Direct{
		freq: physic.Frequency(clockMHz) * physic.MegaHertz,
		clk:  clk,
	}, nil
}

func (d *Direct) Attach(connector, size int) (*Lane, error) {
	name, err := PinForConnector(connector)
	if err != nil {
		return nil, err
	}
	for _, dl := range d.lanes {
		if dl.lane.Connector() == connector {
			return nil, fmt.Errorf("connector %d already attached", connector)
		}
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("data pin %s not present", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("data pin %s: %w", name, err)
	}
	lane := NewLane(connector, size)
	d.lanes = append(d.lanes, directLane{lane: lane, pin: pin})
	return lane, nil
}

func (d *Direct) StreamPort() (spi.Port, error) {
	if d.port != nil {
		return d.port, nil
	}
	p, err := spireg.Open("")
	if err != nil {
		return nil, fmt.Errorf("open SPI port: %w", err)
	}
	d.port = p
	return p, nil
}

func (d *Direct) OnCommit(fn func() error) {
	d.hooks = append(d.hooks, fn)
}

// Commit shifts every lane out in lockstep. Shorter lanes idle low
// once exhausted. The configured frequency is an upper bound; GPIO
// toggling never exceeds it.
func (d *Direct) Commit() error {
	longest := 0
	for _, dl := range d.lanes {
		if n := len(dl.lane.Bytes()); n > longest {
			longest = n
		}
	}
	for pos := 0; pos < longest; pos++ {
		for bit := 7; bit >= 0; bit-- {
			for _, dl := range d.lanes {
				buf := dl.lane.Bytes()
				level := gpio.Low
				if pos < len(buf) && buf[pos]&(1<<uint(bit)) != 0 {
					level = gpio.High
				}
				if err := dl.pin.Out(level); err != nil {
					return fmt.Errorf("connector %d: %w", dl.lane.Connector(), err)
				}
			}
			if err := d.clk.Out(gpio.High); err != nil {
				return fmt.Errorf("clock: %w", err)
			}
			if err := d.clk.Out(gpio.Low); err != nil {
				return fmt.Errorf("clock: %w", err)
			}
		}
	}
	for _, fn := range d.hooks {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Direct) Close() error {
	var first error
	for _, dl := range d.lanes {
		if err := dl.pin.Out(gpio.Low); err != nil && first == nil {
			first = err
		}
	}
	if err := d.clk.Out(gpio.Low); err != nil && first == nil {
		first = err
	}
	if d.port != nil {
		if err := d.port.Close(); err != nil && first == nil {
			first = err
		}
		d.port = nil
	}
	d.lanes = nil
	d.hooks = nil
	return first
}
