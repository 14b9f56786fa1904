package uart

import (
	"time"

	"github.com/espruino/espruino.github.io/internal/uart/protocol"
)

// Options configures connection negotiation and response collection.
type Options struct {
	DeviceName        string        // advertised-name prefix filter; empty matches any UART device
	ChunkSize         int           // bytes per characteristic write
	PollInterval      time.Duration // silence window that ends response collection
	PollBudget        int           // max silence windows waited per response
	ReceiveBufferSize int           // capacity of the collected-output ring buffer
}

// DefaultOptions returns sensible defaults. A 250ms window polled up to ten
// times bounds response collection at 2.5s of device chatter.
func DefaultOptions() Options {
	return Options{
		ChunkSize:         protocol.DefaultChunkSize,
		PollInterval:      250 * time.Millisecond,
		PollBudget:        10,
		ReceiveBufferSize: 4096,
	}
}

// withDefaults fills unset fields.
func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = protocol.DefaultChunkSize
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.PollBudget <= 0 {
		o.PollBudget = 10
	}
	if o.ReceiveBufferSize <= 0 {
		o.ReceiveBufferSize = 4096
	}
	return o
}
