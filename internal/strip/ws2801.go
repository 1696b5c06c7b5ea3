package strip

import "github.com/lumenworks/pixelpushd/internal/spibus"

// WS2801 takes raw RGB, 3 bytes per pixel, and latches when the clock
// idles. No framing bytes at all.
type ws2801 struct {
	lane  *spibus.Lane
	count int
}

// NewWS2801 attaches a WS2801 chain to the given connector.
func NewWS2801(bus spibus.Bus, connector, count int) (LEDStrip, error) {
	lane, err := bus.Attach(connector, 3*count)
	if err != nil {
		return nil, err
	}
	return &ws2801{lane: lane, count: count}, nil
}

func (s *ws2801) SetPixel(pixel int, r, g, b uint8) {
	if pixel < 0 || pixel >= s.count {
		return
	}
	buf := s.lane.Bytes()
	off := 3 * pixel
	buf[off] = r
	buf[off+1] = g
	buf[off+2] = b
}

func (s *ws2801) Len() int { return s.count }

func (s *ws2801) Close() error { return nil }
