// pixelpushd bridges PixelPusher UDP frames to LED strips on a shared
// SPI bus.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/lumenworks/pixelpushd/internal/config"
	"github.com/lumenworks/pixelpushd/internal/device"
	"github.com/lumenworks/pixelpushd/internal/monitor"
	"github.com/lumenworks/pixelpushd/internal/pusher"
	"github.com/lumenworks/pixelpushd/internal/strip"
)

type outputDevice interface {
	device.OutputDevice
	Frames() uint64
	Dropped() uint64
	Close() error
}

func main() {
	defaults := config.Default()

	var (
		stripType  = pflag.StringP("strip-type", "T", defaults.StripType, "strip chipset family")
		clockMHz   = pflag.IntP("clock-mhz", "c", defaults.ClockMHz, "SPI clock speed in MHz [1..15]")
		numStrips  = pflag.IntP("strips", "S", defaults.Strips, "number of connected LED strips")
		stripLen   = pflag.IntP("strip-len", "L", defaults.StripLen, "length of LED strips")
		ifaceName  = pflag.StringP("interface", "i", defaults.Interface, "network interface, such as eth0, wlan0")
		group      = pflag.IntP("group", "G", defaults.Group, "PixelPusher group ordinal")
		controller = pflag.IntP("controller", "C", defaults.Controller, "PixelPusher controller ordinal")
		artnet     = pflag.StringP("artnet", "a", "", "artnet addressing as <universe>,<channel>")
		udpSize    = pflag.IntP("udp-size", "u", defaults.UDPPacketSize, "max UDP data per packet")
		preview    = pflag.BoolP("preview", "P", false, "render strips to the terminal instead of hardware")
		statusAddr = pflag.String("status-addr", "", "HTTP listen address for the status endpoint (empty: disabled)")
		configPath = pflag.String("config", "", "path to an optional YAML config file")
	)
	pflag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	opts := defaults
	opts.StripType = *stripType
	opts.ClockMHz = *clockMHz
	opts.Strips = *numStrips
	opts.StripLen = *stripLen
	opts.Interface = *ifaceName
	opts.Group = *group
	opts.Controller = *controller
	opts.UDPPacketSize = *udpSize

	if *configPath != "" {
		fileOpts, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("config load failed")
		}
		mergeFile(&opts, fileOpts)
	}

	// Validation, strictly before any hardware or network resource is
	// constructed. First failure exits with status 1.
	factory, err := strip.Resolve(opts.StripType)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid strip type")
	}
	if *artnet != "" {
		universe, channel, err := config.ParseArtnet(*artnet)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid artnet addressing")
		}
		opts.ArtnetUniverse = universe
		opts.ArtnetChannel = channel
	}
	if err := opts.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if !*preview && os.Geteuid() != 0 {
		log.Fatal().Msg("must run as root to access the SPI bus device; prepend sudo")
	}

	var dev outputDevice
	if *preview {
		dev = device.NewPreview(opts.Strips, opts.StripLen)
	} else {
		d, err := device.New(opts.ClockMHz, factory, opts.Strips, opts.StripLen)
		if err != nil {
			log.Fatal().Err(err).Msg("output device construction failed")
		}
		dev = d
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := pusher.New(pusher.Options{
		NetworkInterface: opts.Interface,
		UDPPacketSize:    opts.UDPPacketSize,
		Group:            opts.Group,
		Controller:       opts.Controller,
		ArtnetUniverse:   opts.ArtnetUniverse,
		ArtnetChannel:    opts.ArtnetChannel,
	}, dev)
	if err := srv.Start(ctx); err != nil {
		_ = dev.Close()
		log.Fatal().Err(err).Msg("server startup failed")
	}

	if *statusAddr != "" {
		state := monitor.New(func() monitor.Snapshot {
			strips, pixels := dev.Topology()
			return monitor.Snapshot{
				Frames:        dev.Frames(),
				DroppedWrites: dev.Dropped(),
				Strips:        strips,
				Pixels:        pixels,
			}
		})
		go monitor.Serve(ctx, *statusAddr, state)
	}

	// Teardown is signal-driven; there is no normal fall-through exit.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-ch
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	cancel()
	srv.Stop()
	if err := dev.Close(); err != nil {
		log.Error().Err(err).Msg("device close failed")
	}
}

// mergeFile fills options the config file sets and the flags left at
// their defaults. Explicit flags win over the file.
func mergeFile(opts *config.Options, file *config.Options) {
	set := func(name string) bool { return pflag.CommandLine.Changed(name) }

	if file.StripType != "" && !set("strip-type") {
		opts.StripType = file.StripType
	}
	if file.ClockMHz != 0 && !set("clock-mhz") {
		opts.ClockMHz = file.ClockMHz
	}
	if file.Strips != 0 && !set("strips") {
		opts.Strips = file.Strips
	}
	if file.StripLen != 0 && !set("strip-len") {
		opts.StripLen = file.StripLen
	}
	if file.Interface != "" && !set("interface") {
		opts.Interface = file.Interface
	}
	if file.Group != 0 && !set("group") {
		opts.Group = file.Group
	}
	if file.Controller != 0 && !set("controller") {
		opts.Controller = file.Controller
	}
	if file.UDPPacketSize != 0 && !set("udp-size") {
		opts.UDPPacketSize = file.UDPPacketSize
	}
	if file.ArtnetUniverse != 0 || file.ArtnetChannel != 0 {
		opts.ArtnetUniverse = file.ArtnetUniverse
		opts.ArtnetChannel = file.ArtnetChannel
	}
}
