package strip

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/lumenworks/pixelpushd/internal/spibus"
)

type fakeBus struct {
	lanes   map[int]*spibus.Lane
	hooks   []func() error
	port    spi.Port
	commits int
}

func newFakeBus() *fakeBus {
	return &fakeBus{lanes: map[int]*spibus.Lane{}}
}

func (b *fakeBus) Attach(connector, size int) (*spibus.Lane, error) {
	l := spibus.NewLane(connector, size)
	b.lanes[connector] = l
	return l, nil
}

func (b *fakeBus) StreamPort() (spi.Port, error) { return b.port, nil }

func (b *fakeBus) OnCommit(fn func() error) { b.hooks = append(b.hooks, fn) }

func (b *fakeBus) Commit() error {
	b.commits++
	for _, fn := range b.hooks {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (b *fakeBus) Close() error { return nil }

func TestAPA102Framing(t *testing.T) {
	bus := newFakeBus()
	s, err := NewAPA102(bus, 1, 3)
	require.NoError(t, err)

	buf := bus.lanes[1].Bytes()
	// 4 start + 4*3 pixels + 3/16+1 end bytes
	assert.Len(t, buf, 17)
	assert.Equal(t, []byte{0, 0, 0, 0}, buf[:4], "start frame must stay zero")
	assert.Equal(t, byte(0xFF), buf[16], "end frame byte")

	s.SetPixel(1, 255, 0, 0)
	assert.Equal(t, []byte{0xFF, 0x00, 0x00, 0x00}, buf[4:8], "pixel 0 untouched")
	assert.Equal(t, []byte{0xFF, 0x00, 0x00, 0xFF}, buf[8:12], "pixel 1 red, BGR order")
	assert.Equal(t, []byte{0xFF, 0x00, 0x00, 0x00}, buf[12:16], "pixel 2 untouched")
}

func TestWS2801Framing(t *testing.T) {
	bus := newFakeBus()
	s, err := NewWS2801(bus, 2, 2)
	require.NoError(t, err)

	s.SetPixel(0, 1, 2, 3)
	s.SetPixel(1, 4, 5, 6)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, bus.lanes[2].Bytes())
}

func TestLPD6803Framing(t *testing.T) {
	bus := newFakeBus()
	s, err := NewLPD6803(bus, 1, 2)
	require.NoError(t, err)

	buf := bus.lanes[1].Bytes()
	assert.Len(t, buf, 4+2*2+2)
	assert.Equal(t, []byte{0x80, 0x00}, buf[4:6], "dark pixel still carries the marker bit")

	s.SetPixel(1, 255, 255, 255)
	assert.Equal(t, []byte{0xFF, 0xFF}, buf[6:8])

	s.SetPixel(0, 0xFF, 0x00, 0x00)
	assert.Equal(t, []byte{0xFC, 0x00}, buf[4:6], "5-bit red in the top field")
}

func TestLPD8806Framing(t *testing.T) {
	bus := newFakeBus()
	s, err := NewLPD8806(bus, 1, 2)
	require.NoError(t, err)

	buf := bus.lanes[1].Bytes()
	assert.Len(t, buf, 3*2+2/32+1)
	assert.Equal(t, []byte{0x80, 0x80, 0x80}, buf[:3], "dark pixel keeps the MSB set")

	s.SetPixel(0, 0xFE, 0x40, 0x02)
	assert.Equal(t, byte(0x40>>1|0x80), buf[0], "green first")
	assert.Equal(t, byte(0xFE>>1|0x80), buf[1])
	assert.Equal(t, byte(0x02>>1|0x80), buf[2])
	assert.Equal(t, byte(0x00), buf[6], "latch tail stays zero")
}

func TestOutOfRangePixelIsIgnored(t *testing.T) {
	for _, name := range []string{"APA102", "WS2801", "LPD6803", "LPD8806"} {
		t.Run(name, func(t *testing.T) {
			bus := newFakeBus()
			f, err := Resolve(name)
			require.NoError(t, err)
			s, err := f(bus, 1, 2)
			require.NoError(t, err)

			before := append([]byte{}, bus.lanes[1].Bytes()...)
			s.SetPixel(-1, 9, 9, 9)
			s.SetPixel(2, 9, 9, 9)
			s.SetPixel(100, 9, 9, 9)
			assert.Equal(t, before, bus.lanes[1].Bytes())
		})
	}
}

func TestWS2812RidesTheStreamPort(t *testing.T) {
	var out bytes.Buffer
	bus := newFakeBus()
	bus.port = spitest.NewRecordRaw(&out)

	s, err := NewWS2812(bus, 1, 4)
	require.NoError(t, err)
	require.Len(t, bus.hooks, 1, "must register a commit hook")

	s.SetPixel(0, 10, 20, 30)
	assert.Zero(t, out.Len(), "nothing on the wire before commit")

	require.NoError(t, bus.Commit())
	assert.NotZero(t, out.Len(), "commit drives the SPI port")
}

func TestWS2812RequiresConnectorOne(t *testing.T) {
	bus := newFakeBus()
	bus.port = spitest.NewRecordRaw(&bytes.Buffer{})
	_, err := NewWS2812(bus, 2, 4)
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	for _, name := range []string{"APA102", "apa102", "Ws2801", "lpd6803", "LPD8806", "ws2812"} {
		f, err := Resolve(name)
		assert.NoError(t, err, name)
		assert.NotNil(t, f, name)
	}

	_, err := Resolve("SK9822")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strip type")
}

func TestNamesSorted(t *testing.T) {
	assert.Equal(t, []string{"APA102", "LPD6803", "LPD8806", "WS2801", "WS2812"}, Names())
}
