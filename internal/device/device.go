// Package device adapts a set of LED strips on a shared SPI bus to the
// frame-oriented output contract the pusher server drives: stage
// pixels, then flush the whole frame as one bus transaction.
package device

import (
	"fmt"
	"sync/atomic"

	"github.com/lumenworks/pixelpushd/internal/spibus"
	"github.com/lumenworks/pixelpushd/internal/strip"
)

// Color is one pixel's channel intensities, raw as received.
type Color struct {
	R, G, B uint8
}

// OutputDevice is the capability set the frame-delivery server depends
// on. It never sees a concrete chipset family.
type OutputDevice interface {
	// Topology reports strip count and pixels per strip. Constant
	// for the device's lifetime.
	Topology() (strips, pixels int)

	// SetPixel stages a color. A strip index outside the topology
	// is dropped without error so a stale or malformed sender can
	// never stall the output path.
	SetPixel(strip, pixel int, c Color)

	// Flush commits every staged pixel to the hardware as a single
	// transaction. Blocks until the frame is on the wire.
	Flush() error
}

// StripDevice owns the bus controller and a fixed, ordered set of
// strip drivers. Single-writer: SetPixel and Flush must come from one
// calling context; the device does no internal locking.
type StripDevice struct {
	bus      spibus.Bus
	strips   []strip.LEDStrip
	stripLen int

	frames  atomic.Uint64
	dropped atomic.Uint64
}

// New creates the bus controller at the given clock rate and builds a
// strip driver for connectors 1..numStrips. The clock rate is
// validated before any hardware resource is claimed.
func New(clockMHz int, factory strip.Factory, numStrips, stripLen int) (*StripDevice, error) {
	bus, err := spibus.NewDirect(clockMHz)
	if err != nil {
		return nil, err
	}
	return NewWithBus(bus, factory, numStrips, stripLen)
}

// NewWithBus builds the device on an existing bus, taking ownership of
// it. On any strip construction error the already-built strips are
// released first, then the bus, and no partially built device escapes.
func NewWithBus(bus spibus.Bus, factory strip.Factory, numStrips, stripLen int) (*StripDevice, error) {
	d := &StripDevice{
		bus:      bus,
		strips:   make([]strip.LEDStrip, 0, numStrips),
		stripLen: stripLen,
	}
	for i := 0; i < numStrips; i++ {
		s, err := factory(bus, i+1, stripLen)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("strip on connector %d: %w", i+1, err)
		}
		d.strips = append(d.strips, s)
	}
	return d, nil
}

func (d *StripDevice) Topology() (strips, pixels int) {
	return len(d.strips), d.stripLen
}

func (d *StripDevice) SetPixel(strip, pixel int, c Color) {
	if strip < 0 || strip >= len(d.strips) {
		d.dropped.Add(1)
		return
	}
	d.strips[strip].SetPixel(pixel, c.R, c.G, c.B)
}

func (d *StripDevice) Flush() error {
	if err := d.bus.Commit(); err != nil {
		return err
	}
	d.frames.Add(1)
	return nil
}

// Frames counts committed flushes.
func (d *StripDevice) Frames() uint64 { return d.frames.Load() }

// Dropped counts writes addressed to a strip outside the topology.
func (d *StripDevice) Dropped() uint64 { return d.dropped.Load() }

// Close releases the strip drivers, then the bus. Strips reference the
// bus, so teardown order is the reverse of construction.
func (d *StripDevice) Close() error {
	var first error
	for _, s := range d.strips {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	d.strips = nil
	if err := d.bus.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
