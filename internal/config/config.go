// Package config holds the process configuration: built once at
// startup from flags and an optional YAML file, validated, then
// read-only.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lumenworks/pixelpushd/internal/spibus"
)

const (
	// MaxUDPPacketSize is the largest practical UDP payload with an
	// IPv4 header.
	MaxUDPPacketSize     = 65507
	DefaultUDPPacketSize = 1460
)

// Options is the full process configuration.
type Options struct {
	StripType string `yaml:"strip_type"`
	ClockMHz  int    `yaml:"clock_mhz"`
	Strips    int    `yaml:"strips"`
	StripLen  int    `yaml:"strip_len"`

	Interface  string `yaml:"interface"`
	Group      int    `yaml:"group"`
	Controller int    `yaml:"controller"`

	// Art-Net addressing; -1,-1 means disabled. Both must be set
	// together.
	ArtnetUniverse int `yaml:"artnet_universe"`
	ArtnetChannel  int `yaml:"artnet_channel"`

	UDPPacketSize int `yaml:"udp_packet_size"`
}

// Default returns the options used when neither flags nor a config
// file say otherwise.
func Default() Options {
	return Options{
		StripType:      "APA102",
		ClockMHz:       4,
		Strips:         16,
		StripLen:       144,
		Interface:      "eth0",
		Group:          0,
		Controller:     0,
		ArtnetUniverse: -1,
		ArtnetChannel:  -1,
		UDPPacketSize:  DefaultUDPPacketSize,
	}
}

// Load reads options from a YAML file. Fields absent from the file
// keep their zero value; the caller merges over Default.
func Load(path string) (*Options, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var o Options
	if err := yaml.Unmarshal(b, &o); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &o, nil
}

// Validate checks every bound before any hardware or network resource
// is constructed. First failure wins; nothing is retried.
func (o *Options) Validate() error {
	if o.ClockMHz < spibus.MinClockMHz || o.ClockMHz > spibus.MaxClockMHz {
		return fmt.Errorf("SPI clock speed %d out of range [%d..%d]", o.ClockMHz, spibus.MinClockMHz, spibus.MaxClockMHz)
	}
	if o.Strips < 1 || o.Strips > spibus.MaxConnectors {
		return fmt.Errorf("strip count %d out of range [1..%d]", o.Strips, spibus.MaxConnectors)
	}
	if o.StripLen < 1 {
		return fmt.Errorf("strip length %d must be positive", o.StripLen)
	}
	if o.UDPPacketSize < 1 || o.UDPPacketSize > MaxUDPPacketSize {
		return fmt.Errorf("UDP packet size %d out of range [1..%d]", o.UDPPacketSize, MaxUDPPacketSize)
	}
	if (o.ArtnetUniverse < 0) != (o.ArtnetChannel < 0) {
		return fmt.Errorf("artnet universe and channel must be set together")
	}
	return nil
}

// ParseArtnet parses the "-a universe,channel" argument.
func ParseArtnet(s string) (universe, channel int, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("artnet parameters must be <universe>,<channel>, got %q", s)
	}
	universe, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("artnet universe: %w", err)
	}
	channel, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("artnet channel: %w", err)
	}
	return universe, channel, nil
}
