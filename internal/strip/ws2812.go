package strip

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/nrzled"

	"github.com/lumenworks/pixelpushd/internal/spibus"
)

// ws2812Freq is the SPI symbol rate that yields valid WS2812 NRZ
// timing with nrzled's 3x bit expansion.
const ws2812Freq = 2500 * physic.KiloHertz

// WS2812 has no clock line, so it cannot share the bit-banged lanes.
// It rides the hardware SPI port through nrzled and joins the frame
// transaction via a bus commit hook. Only one such strip fits on the
// port, so connector 1 is the only valid slot.
type ws2812 struct {
	dev   *nrzled.Dev
	buf   []byte
	count int
}

// NewWS2812 attaches a WS2812 chain to the hardware SPI port.
func NewWS2812(bus spibus.Bus, connector, count int) (LEDStrip, error) {
	if connector != 1 {
		return nil, fmt.Errorf("WS2812 runs on the hardware SPI port only: want connector 1, got %d", connector)
	}
	port, err := bus.StreamPort()
	if err != nil {
		return nil, err
	}
	dev, err := nrzled.NewSPI(port, &nrzled.Opts{
		NumPixels: count,
		Channels:  3,
		Freq:      ws2812Freq,
	})
	if err != nil {
		return nil, fmt.Errorf("nrzled: %w", err)
	}
	s := &ws2812{dev: dev, buf: make([]byte, 3*count), count: count}
	bus.OnCommit(func() error {
		if _, err := s.dev.Write(s.buf); err != nil {
			return fmt.Errorf("ws2812 write: %w", err)
		}
		return nil
	})
	return s, nil
}

func (s *ws2812) SetPixel(pixel int, r, g, b uint8) {
	if pixel < 0 || pixel >= s.count {
		return
	}
	off := 3 * pixel
	s.buf[off] = r
	s.buf[off+1] = g
	s.buf[off+2] = b
}

func (s *ws2812) Len() int { return s.count }

func (s *ws2812) Close() error { return s.dev.Halt() }
