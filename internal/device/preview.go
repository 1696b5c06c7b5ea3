package device

import (
	"image"
	"image/color"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/display"
	"periph.io/x/extra/devices/screen"
)

// Preview renders strips as terminal rows instead of driving hardware.
// Useful for developing without the bus device or root. Implements the
// same OutputDevice contract as StripDevice, including the silent drop
// of out-of-range strip indices.
type Preview struct {
	drawer    display.Drawer
	img       *image.NRGBA
	numStrips int
	stripLen  int
	throttle  time.Duration
	lastDraw  time.Time

	frames  atomic.Uint64
	dropped atomic.Uint64
}

// NewPreview builds a terminal-backed device of the given topology.
func NewPreview(numStrips, stripLen int) *Preview {
	return &Preview{
		drawer:    screen.New(100),
		img:       image.NewNRGBA(image.Rect(0, 0, stripLen, numStrips)),
		numStrips: numStrips,
		stripLen:  stripLen,
		throttle:  50 * time.Millisecond, // keep terminal output readable
	}
}

func (p *Preview) Topology() (strips, pixels int) {
	return p.numStrips, p.stripLen
}

func (p *Preview) SetPixel(strip, pixel int, c Color) {
	if strip < 0 || strip >= p.numStrips {
		p.dropped.Add(1)
		return
	}
	if pixel < 0 || pixel >= p.stripLen {
		return
	}
	p.img.SetNRGBA(pixel, strip, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
}

func (p *Preview) Flush() error {
	p.frames.Add(1)
	now := time.Now()
	if p.lastDraw.Add(p.throttle).After(now) {
		return nil
	}
	p.lastDraw = now
	return p.drawer.Draw(p.drawer.Bounds(), p.img, image.Point{})
}

func (p *Preview) Frames() uint64 { return p.frames.Load() }

func (p *Preview) Dropped() uint64 { return p.dropped.Load() }

func (p *Preview) Close() error { return p.drawer.Halt() }
