package strip

import "github.com/lumenworks/pixelpushd/internal/spibus"

// LPD8806 carries 7 bits per channel with the top bit always set, in
// GRB order. The chain latches on count/32+1 zero bytes, which the
// zeroed lane tail provides.
type lpd8806 struct {
	lane  *spibus.Lane
	count int
}

// NewLPD8806 attaches an LPD8806 chain to the given connector.
func NewLPD8806(bus spibus.Bus, connector, count int) (LEDStrip, error) {
	lane, err := bus.Attach(connector, 3*count+count/32+1)
	if err != nil {
		return nil, err
	}
	s := &lpd8806{lane: lane, count: count}
	for i := 0; i < count; i++ {
		s.SetPixel(i, 0, 0, 0)
	}
	return s, nil
}

func (s *lpd8806) SetPixel(pixel int, r, g, b uint8) {
	if pixel < 0 || pixel >= s.count {
		return
	}
	buf := s.lane.Bytes()
	off := 3 * pixel
	buf[off] = g>>1 | 0x80
	buf[off+1] = r>>1 | 0x80
	buf[off+2] = b>>1 | 0x80
}

func (s *lpd8806) Len() int { return s.count }

func (s *lpd8806) Close() error { return nil }
