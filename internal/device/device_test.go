package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/spi"

	"github.com/lumenworks/pixelpushd/internal/spibus"
	"github.com/lumenworks/pixelpushd/internal/strip"
)

// fakeBus records commits and close order so teardown ordering is
// checkable.
type fakeBus struct {
	lanes    map[int]*spibus.Lane
	hooks    []func() error
	commits  int
	teardown *[]string
}

func newFakeBus() *fakeBus {
	return &fakeBus{lanes: map[int]*spibus.Lane{}, teardown: &[]string{}}
}

func (b *fakeBus) Attach(connector, size int) (*spibus.Lane, error) {
	l := spibus.NewLane(connector, size)
	b.lanes[connector] = l
	return l, nil
}

func (b *fakeBus) StreamPort() (spi.Port, error) { return nil, errors.New("no stream port") }

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

func (b *fakeBus) Close() error {
	*b.teardown = append(*b.teardown, "bus")
	return nil
}

// fakeStrip records staged writes per pixel.
type fakeStrip struct {
	connector int
	writes    map[int][3]uint8
	teardown  *[]string
}

func (s *fakeStrip) SetPixel(pixel int, r, g, b uint8) {
	s.writes[pixel] = [3]uint8{r, g, b}
}

func (s *fakeStrip) Len() int { return 0 }

func (s *fakeStrip) Close() error {
	*s.teardown = append(*s.teardown, "strip")
	return nil
}

func fakeFactory(bus *fakeBus) (strip.Factory, *[]*fakeStrip) {
	built := &[]*fakeStrip{}
	f := func(_ spibus.Bus, connector, count int) (strip.LEDStrip, error) {
		s := &fakeStrip{connector: connector, writes: map[int][3]uint8{}, teardown: bus.teardown}
		*built = append(*built, s)
		return s, nil
	}
	return f, built
}

func TestTopologyConstant(t *testing.T) {
	bus := newFakeBus()
	f, _ := fakeFactory(bus)
	d, err := NewWithBus(bus, f, 8, 60)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		strips, pixels := d.Topology()
		assert.Equal(t, 8, strips)
		assert.Equal(t, 60, pixels)
	}
}

func TestConnectorsAreOneBased(t *testing.T) {
	bus := newFakeBus()
	f, built := fakeFactory(bus)
	_, err := NewWithBus(bus, f, 3, 10)
	require.NoError(t, err)

	require.Len(t, *built, 3)
	for i, s := range *built {
		assert.Equal(t, i+1, s.connector)
	}
}

func TestOutOfRangeStripIsDropped(t *testing.T) {
	bus := newFakeBus()
	f, built := fakeFactory(bus)
	d, err := NewWithBus(bus, f, 2, 4)
	require.NoError(t, err)

	d.SetPixel(-1, 0, Color{1, 2, 3})
	d.SetPixel(2, 0, Color{1, 2, 3})
	d.SetPixel(5, 0, Color{1, 2, 3})

	for _, s := range *built {
		assert.Empty(t, s.writes, "no strip buffer may change")
	}
	assert.Equal(t, uint64(3), d.Dropped())

	// A subsequent flush behaves as if the calls never happened.
	require.NoError(t, d.Flush())
	assert.Equal(t, 1, bus.commits)
}

func TestFlushCommitsAllStripsOnce(t *testing.T) {
	bus := newFakeBus()
	f, built := fakeFactory(bus)
	d, err := NewWithBus(bus, f, 4, 8)
	require.NoError(t, err)

	d.SetPixel(0, 0, Color{R: 255})
	d.SetPixel(1, 3, Color{G: 255})
	d.SetPixel(3, 7, Color{B: 255})
	assert.Equal(t, 0, bus.commits, "SetPixel never touches the bus")

	require.NoError(t, d.Flush())
	assert.Equal(t, 1, bus.commits, "one flush, one transaction")
	assert.Equal(t, [3]uint8{255, 0, 0}, (*built)[0].writes[0])
	assert.Equal(t, [3]uint8{0, 255, 0}, (*built)[1].writes[3])
	assert.Equal(t, [3]uint8{0, 0, 255}, (*built)[3].writes[7])
	assert.Equal(t, uint64(1), d.Frames())
}

// The end-to-end shape of the spec scenario: two APA102 strips of
// three pixels, one red write, one green write, one flush.
func TestAPA102EndToEnd(t *testing.T) {
	bus := newFakeBus()
	f, err := strip.Resolve("APA102")
	require.NoError(t, err)
	d, err := NewWithBus(bus, f, 2, 3)
	require.NoError(t, err)

	strips, pixels := d.Topology()
	assert.Equal(t, 2, strips)
	assert.Equal(t, 3, pixels)

	d.SetPixel(0, 1, Color{R: 255})
	d.SetPixel(1, 2, Color{G: 255})
	require.NoError(t, d.Flush())
	assert.Equal(t, 1, bus.commits)

	lane0 := bus.lanes[1].Bytes()
	assert.Equal(t, []byte{0xFF, 0x00, 0x00, 0x00}, lane0[4:8])
	assert.Equal(t, []byte{0xFF, 0x00, 0x00, 0xFF}, lane0[8:12], "strip 0 pixel 1 red")
	assert.Equal(t, []byte{0xFF, 0x00, 0x00, 0x00}, lane0[12:16])

	lane1 := bus.lanes[2].Bytes()
	assert.Equal(t, []byte{0xFF, 0x00, 0x00, 0x00}, lane1[8:12])
	assert.Equal(t, []byte{0xFF, 0x00, 0xFF, 0x00}, lane1[12:16], "strip 1 pixel 2 green")
}

func TestCloseReleasesStripsBeforeBus(t *testing.T) {
	bus := newFakeBus()
	f, _ := fakeFactory(bus)
	d, err := NewWithBus(bus, f, 2, 4)
	require.NoError(t, err)

	require.NoError(t, d.Close())
	assert.Equal(t, []string{"strip", "strip", "bus"}, *bus.teardown)
}

func TestConstructionFailureTearsDown(t *testing.T) {
	bus := newFakeBus()
	calls := 0
	f := func(_ spibus.Bus, connector, count int) (strip.LEDStrip, error) {
		calls++
		if connector == 3 {
			return nil, errors.New("boom")
		}
		return &fakeStrip{writes: map[int][3]uint8{}, teardown: bus.teardown}, nil
	}

	_, err := NewWithBus(bus, f, 4, 8)
	require.Error(t, err)
	assert.Equal(t, 3, calls, "no strip is built past the failure")
	assert.Equal(t, []string{"strip", "strip", "bus"}, *bus.teardown,
		"partial construction is rolled back, strips first")
}

func TestClockRateValidatedBeforeBusCreation(t *testing.T) {
	f, err := strip.Resolve("APA102")
	require.NoError(t, err)

	for _, mhz := range []int{0, 16, -1, 100} {
		_, err := New(mhz, f, 2, 3)
		assert.Error(t, err, "clock %d MHz", mhz)
	}
}
