// Package pusher implements the PixelPusher side of the bridge: a
// discovery beacon advertising the device topology and a UDP listener
// translating pixel datagrams into writes on the output device.
package pusher

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// DiscoveryPort receives the once-per-second broadcast beacon.
	DiscoveryPort = 7331
	// DataPort is where the pusher listens for pixel datagrams.
	DataPort = 9897

	deviceTypePixelPusher = 2
	protocolVersion       = 1

	// 4-byte sequence number heading every data datagram.
	seqHeaderLen = 4
)

// DeviceHeader is the leading block of a discovery packet, shared by
// all PixelPusher device types. Little-endian on the wire.
type DeviceHeader struct {
	MacAddress      [6]byte
	IPAddress       [4]byte
	DeviceType      uint8
	ProtocolVersion uint8
	VendorID        uint16
	ProductID       uint16
	HardwareRev     uint16
	SoftwareRev     uint16
	LinkSpeed       uint32
}

// PusherBody follows the device header and describes the strip
// topology plus addressing ordinals.
type PusherBody struct {
	StripsAttached     uint8
	MaxStripsPerPacket uint8
	PixelsPerStrip     uint16
	UpdatePeriod       uint32
	PowerTotal         uint32
	DeltaSequence      uint32
	ControllerOrdinal  uint32
	GroupOrdinal       uint32
	ArtnetUniverse     uint16
	ArtnetChannel      uint16
	MyPort             uint16
	Pad                [2]byte
}

// EncodeDiscovery serializes one beacon payload.
func EncodeDiscovery(h DeviceHeader, b PusherBody) []byte {
	var buf bytes.Buffer
	// Write on fixed-size structs cannot fail into a bytes.Buffer.
	_ = binary.Write(&buf, binary.LittleEndian, h)
	_ = binary.Write(&buf, binary.LittleEndian, b)
	return buf.Bytes()
}

// StripData is one strip's worth of pixels from a data datagram.
type StripData struct {
	Strip int
	RGB   []byte
}

// ParseData splits a pixel datagram into its sequence number and strip
// sections. Each section is one strip-index byte followed by
// 3*pixelsPerStrip RGB bytes; a truncated trailing section is an
// error.
func ParseData(pkt []byte, pixelsPerStrip int) (seq uint32, strips []StripData, err error) {
	if len(pkt) < seqHeaderLen {
		return 0, nil, fmt.Errorf("datagram too short: %d bytes", len(pkt))
	}
	seq = binary.LittleEndian.Uint32(pkt)
	rest := pkt[seqHeaderLen:]
	section := 1 + 3*pixelsPerStrip
	for len(rest) > 0 {
		if len(rest) < section {
			return 0, nil, fmt.Errorf("truncated strip section: %d of %d bytes", len(rest), section)
		}
		strips = append(strips, StripData{
			Strip: int(rest[0]),
			RGB:   rest[1:section],
		})
		rest = rest[section:]
	}
	return seq, strips, nil
}

// MaxStripsPerPacket computes how many strip sections fit a datagram
// of the configured payload size. At least one, at most 255.
func MaxStripsPerPacket(udpPacketSize, pixelsPerStrip int) int {
	n := (udpPacketSize - seqHeaderLen) / (1 + 3*pixelsPerStrip)
	if n < 1 {
		n = 1
	}
	if n > 255 {
		n = 255
	}
	return n
}
