// Package spibus owns the shared serial bus that drives every attached
// LED strip. Strips stage bytes into per-connector lanes; Commit shifts
// all lanes out under a common clock so the whole frame hits the
// hardware as one transaction.
package spibus

import (
	"periph.io/x/conn/v3/spi"
)

// Lane is the staging buffer for one connector. The owning strip driver
// encodes its wire format directly into Bytes; the bus transmits the
// buffer verbatim on Commit.
type Lane struct {
	connector int
	buf       []byte
}

// NewLane allocates a zeroed staging buffer. Intended for Bus
// implementations; strip drivers receive lanes from Attach.
func NewLane(connector, size int) *Lane {
	return &Lane{connector: connector, buf: make([]byte, size)}
}

// Connector returns the 1-based connector this lane is bound to.
func (l *Lane) Connector() int { return l.connector }

// Bytes exposes the staging buffer. Writes here are invisible on the
// wire until the bus commits.
func (l *Lane) Bytes() []byte { return l.buf }

// Bus is the shared bus controller. Exactly one instance exists per
// process and it is exclusively owned by the output device that
// created it.
type Bus interface {
	// Attach reserves a clocked lane of size bytes on the given
	// 1-based connector.
	Attach(connector, size int) (*Lane, error)

	// StreamPort hands out the hardware SPI port for clockless
	// (NRZ) strip families that bypass the bit-banged lanes.
	StreamPort() (spi.Port, error)

	// OnCommit registers a hook run after the clocked lanes have
	// been shifted out, inside the same Commit transaction.
	OnCommit(fn func() error)

	// Commit transmits every staged lane, then runs commit hooks.
	// Blocks until the full transaction is on the wire.
	Commit() error

	Close() error
}
