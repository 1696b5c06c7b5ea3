package pusher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lumenworks/pixelpushd/internal/config"
	"github.com/lumenworks/pixelpushd/internal/device"
)

// Options mirrors the CLI surface that shapes the server's behavior.
type Options struct {
	NetworkInterface string
	UDPPacketSize    int
	Group            int
	Controller       int
	// Art-Net addressing advertised in the beacon; -1,-1 = disabled.
	ArtnetUniverse int
	ArtnetChannel  int
}

// Server advertises the output device's topology over UDP broadcast
// and translates incoming pixel datagrams into SetPixel/Flush calls.
// All device access is funneled through a single goroutine; the device
// requires a single writer.
type Server struct {
	opts Options
	dev  device.OutputDevice
	log  zerolog.Logger

	dataConn   *net.UDPConn
	beaconConn *net.UDPConn
	beacon     []byte

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Frame assembly state, owned by the process goroutine.
	curSeq  uint32
	haveSeq bool
	seen    []bool
	nSeen   int
}

// New builds a server for the given device. Nothing binds until Start.
func New(opts Options, dev device.OutputDevice) *Server {
	return &Server{
		opts: opts,
		dev:  dev,
		log:  log.With().Str("component", "pusher").Logger(),
	}
}

// Start binds the data and beacon sockets and launches the receive,
// process, and beacon goroutines. A bind failure is returned to the
// caller and is fatal; there is no retry.
func (s *Server) Start(ctx context.Context) error {
	iface, err := net.InterfaceByName(s.opts.NetworkInterface)
	if err != nil {
		return fmt.Errorf("interface %s: %w", s.opts.NetworkInterface, err)
	}
	ip, bcast, err := interfaceIPv4(iface)
	if err != nil {
		return err
	}

	s.dataConn, err = net.ListenUDP("udp4", &net.UDPAddr{Port: DataPort})
	if err != nil {
		return fmt.Errorf("bind data port %d: %w", DataPort, err)
	}
	s.beaconConn, err = net.DialUDP("udp4", nil, &net.UDPAddr{IP: bcast, Port: DiscoveryPort})
	if err != nil {
		_ = s.dataConn.Close()
		return fmt.Errorf("dial discovery broadcast %s: %w", bcast, err)
	}

	numStrips, stripLen := s.dev.Topology()
	s.seen = make([]bool, numStrips)
	s.beacon = s.buildBeacon(iface, ip, numStrips, stripLen)

	ctx, s.cancel = context.WithCancel(ctx)
	packets := make(chan []byte, 16)

	s.wg.Add(3)
	go s.readLoop(ctx, packets)
	go s.processLoop(ctx, packets, stripLen)
	go s.beaconLoop(ctx)

	s.log.Info().
		Str("iface", s.opts.NetworkInterface).
		Str("ip", ip.String()).
		Int("strips", numStrips).
		Int("pixels", stripLen).
		Int("data_port", DataPort).
		Msg("pixel pusher server started")
	return nil
}

// Stop cancels the goroutines, closes both sockets and waits for the
// loops to drain.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.dataConn != nil {
		_ = s.dataConn.Close()
	}
	if s.beaconConn != nil {
		_ = s.beaconConn.Close()
	}
	s.wg.Wait()
}

func (s *Server) buildBeacon(iface *net.Interface, ip net.IP, numStrips, stripLen int) []byte {
	h := DeviceHeader{
		DeviceType:      deviceTypePixelPusher,
		ProtocolVersion: protocolVersion,
		VendorID:        3,
		ProductID:       1,
		SoftwareRev:     122,
		LinkSpeed:       1000000000,
	}
	copy(h.MacAddress[:], iface.HardwareAddr)
	copy(h.IPAddress[:], ip.To4())

	b := PusherBody{
		StripsAttached:     uint8(numStrips),
		MaxStripsPerPacket: uint8(MaxStripsPerPacket(s.opts.UDPPacketSize, stripLen)),
		PixelsPerStrip:     uint16(stripLen),
		UpdatePeriod:       4000,
		PowerTotal:         1,
		ControllerOrdinal:  uint32(s.opts.Controller),
		GroupOrdinal:       uint32(s.opts.Group),
		ArtnetUniverse:     uint16(s.opts.ArtnetUniverse),
		ArtnetChannel:      uint16(s.opts.ArtnetChannel),
		MyPort:             DataPort,
	}
	if s.opts.ArtnetUniverse < 0 {
		b.ArtnetUniverse = 0
		b.ArtnetChannel = 0
	}
	return EncodeDiscovery(h, b)
}

func (s *Server) readLoop(ctx context.Context, packets chan<- []byte) {
	defer s.wg.Done()
	go func() {
		<-ctx.Done()
		_ = s.dataConn.Close() // unblocks ReadFromUDP below
	}()
	buf := make([]byte, config.MaxUDPPacketSize)
	for {
		n, _, err := s.dataConn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("data read failed")
			continue
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		select {
		case packets <- pkt:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) processLoop(ctx context.Context, packets <-chan []byte, stripLen int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case pkt := <-packets:
			s.handle(pkt, stripLen)
		}
	}
}

func (s *Server) handle(pkt []byte, stripLen int) {
	seq, strips, err := ParseData(pkt, stripLen)
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping malformed datagram")
		return
	}
	if s.haveSeq && seq != s.curSeq {
		s.finishFrame()
	}
	s.curSeq = seq
	s.haveSeq = true

	for _, sd := range strips {
		if sd.Strip < len(s.seen) {
			if s.seen[sd.Strip] {
				// The sender started the next frame without
				// bumping the sequence number.
				s.finishFrame()
			}
			s.seen[sd.Strip] = true
			s.nSeen++
		}
		for i := 0; i < stripLen; i++ {
			s.dev.SetPixel(sd.Strip, i, device.Color{
				R: sd.RGB[i*3],
				G: sd.RGB[i*3+1],
				B: sd.RGB[i*3+2],
			})
		}
	}
	if s.nSeen >= len(s.seen) {
		s.finishFrame()
	}
}

// finishFrame commits the staged frame. Exactly one flush per logical
// frame; an empty frame is not flushed.
func (s *Server) finishFrame() {
	if s.nSeen == 0 {
		return
	}
	if err := s.dev.Flush(); err != nil {
		s.log.Error().Err(err).Msg("flush failed")
	}
	for i := range s.seen {
		s.seen[i] = false
	}
	s.nSeen = 0
}

func (s *Server) beaconLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.beaconConn.Write(s.beacon); err != nil {
				s.log.Warn().Err(err).Msg("beacon send failed")
			}
		}
	}
}

// interfaceIPv4 picks the interface's IPv4 address and computes the
// matching broadcast address.
func interfaceIPv4(iface *net.Interface) (ip, bcast net.IP, err error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, nil, fmt.Errorf("interface %s addrs: %w", iface.Name, err)
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.To4() == nil {
			continue
		}
		ip4 := ipnet.IP.To4()
		mask := ipnet.Mask
		bcast = make(net.IP, 4)
		for i := range bcast {
			bcast[i] = ip4[i] | ^mask[i]
		}
		return ip4, bcast, nil
	}
	return nil, nil, fmt.Errorf("interface %s has no IPv4 address", iface.Name)
}
