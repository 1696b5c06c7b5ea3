// Package strip implements the per-chipset wire encodings for the LED
// strip families the bus can drive, and resolves user-supplied family
// names to constructors.
package strip

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lumenworks/pixelpushd/internal/spibus"
)

// LEDStrip is one physically addressed chain of LEDs. SetPixel stages
// a color in the strip's bus lane; nothing reaches the hardware until
// the bus commits. Out-of-range pixel indices are ignored.
type LEDStrip interface {
	SetPixel(pixel int, r, g, b uint8)
	Len() int
	Close() error
}

// Factory builds a strip driver bound to a bus connector. The
// connector index is 1-based.
type Factory func(bus spibus.Bus, connector, count int) (LEDStrip, error)

var factories = map[string]Factory{
	"APA102":  NewAPA102,
	"WS2801":  NewWS2801,
	"LPD6803": NewLPD6803,
	"LPD8806": NewLPD8806,
	"WS2812":  NewWS2812,
}

// Resolve maps a chipset family name to its constructor,
// case-insensitively. Pure: no hardware is touched until the returned
// factory runs.
func Resolve(name string) (Factory, error) {
	f, ok := factories[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("unknown strip type %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return f, nil
}

// Names lists the supported family names, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
