package strip

import "github.com/lumenworks/pixelpushd/internal/spibus"

// APA102 framing: a 4-byte zero start frame, 4 bytes per pixel
// (brightness field at full, then B G R), and count/16+1 bytes of 0xFF
// so the clock keeps running long enough for the last pixel to latch.
type apa102 struct {
	lane  *spibus.Lane
	count int
}

// NewAPA102 attaches an APA102 chain to the given connector.
func NewAPA102(bus spibus.Bus, connector, count int) (LEDStrip, error) {
	lane, err := bus.Attach(connector, 4+4*count+count/16+1)
	if err != nil {
		return nil, err
	}
	buf := lane.Bytes()
	for i := 0; i < count; i++ {
		buf[4+4*i] = 0xFF
	}
	for i := 4 + 4*count; i < len(buf); i++ {
		buf[i] = 0xFF
	}
	return &apa102{lane: lane, count: count}, nil
}

func (s *apa102) SetPixel(pixel int, r, g, b uint8) {
	if pixel < 0 || pixel >= s.count {
		return
	}
	buf := s.lane.Bytes()
	off := 4 + 4*pixel
	buf[off+1] = b
	buf[off+2] = g
	buf[off+3] = r
}

func (s *apa102) Len() int { return s.count }

func (s *apa102) Close() error { return nil }
