package strip

import "github.com/lumenworks/pixelpushd/internal/spibus"

// LPD6803 wants a 32-bit zero header, then one 16-bit word per pixel:
// marker bit, 5 bits red, 5 bits green, 5 bits blue, big-endian on the
// wire. Two trailing zero bytes push the last word through the shift
// chain.
type lpd6803 struct {
	lane  *spibus.Lane
	count int
}

// NewLPD6803 attaches an LPD6803 chain to the given connector.
func NewLPD6803(bus spibus.Bus, connector, count int) (LEDStrip, error) {
	lane, err := bus.Attach(connector, 4+2*count+2)
	if err != nil {
		return nil, err
	}
	s := &lpd6803{lane: lane, count: count}
	for i := 0; i < count; i++ {
		s.SetPixel(i, 0, 0, 0) // marker bit must be set even for dark pixels
	}
	return s, nil
}

func (s *lpd6803) SetPixel(pixel int, r, g, b uint8) {
	if pixel < 0 || pixel >= s.count {
		return
	}
	word := uint16(0x8000) |
		uint16(r>>3)<<10 |
		uint16(g>>3)<<5 |
		uint16(b>>3)
	buf := s.lane.Bytes()
	off := 4 + 2*pixel
	buf[off] = byte(word >> 8)
	buf[off+1] = byte(word)
}

func (s *lpd6803) Len() int { return s.count }

func (s *lpd6803) Close() error { return nil }
