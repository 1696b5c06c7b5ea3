package spibus

import "fmt"

// ClockPin is the shared clock line, the Pi's SCLK.
const ClockPin = "GPIO11"

// MaxConnectors is the number of data lines the connector header
// breaks out.
const MaxConnectors = 16

// connectorPins maps 1-based connector slots to BCM data pins. The
// ordering follows the breakout header left to right; it is fixed by
// the board, not configurable.
var connectorPins = [MaxConnectors]string{
	"GPIO4", "GPIO17", "GPIO18", "GPIO27",
	"GPIO22", "GPIO23", "GPIO24", "GPIO25",
	"GPIO5", "GPIO6", "GPIO12", "GPIO13",
	"GPIO16", "GPIO19", "GPIO20", "GPIO26",
}

// PinForConnector resolves a 1-based connector index to its BCM pin
// name.
func PinForConnector(connector int) (string, error) {
	if connector < 1 || connector > MaxConnectors {
		return "", fmt.Errorf("connector %d out of range [1..%d]", connector, MaxConnectors)
	}
	return connectorPins[connector-1], nil
}
