// Package uart implements the serial-style command/response layer on top of a
// Nordic UART (NUS) BLE link: connection negotiation, serialized chunked
// writes, and a session façade that pairs a command with the output it
// produced.
package uart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/espruino/espruino.github.io/internal/ble"
	"github.com/espruino/espruino.github.io/internal/uart/protocol"
)

// ErrNoDevice is returned by Connect when scanning finds no matching device.
var ErrNoDevice = errors.New("uart: no matching device found")

// ErrLinkLost is returned by Connect when the device drops the link before
// negotiation completes.
var ErrLinkLost = errors.New("uart: link lost during negotiation")

// State is the lifecycle state of a Conn.
type State int

const (
	StateNegotiating State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// writeRequest is one caller-initiated write: the chunks still to send and a
// completion callback fired exactly once, after the last chunk was accepted
// by the transport.
type writeRequest struct {
	chunks [][]byte
	done   func()
}

// Conn is one negotiated UART link. A Conn that reaches the closed state is
// terminal: Write becomes a no-op and no further events are delivered. Create
// a fresh one with Connect.
type Conn struct {
	chunkSize int

	mu       sync.Mutex
	state    State
	link     ble.Connection
	tx       ble.Characteristic
	pending  []*writeRequest
	draining bool
	onData   func([]byte)
	onClose  func()
}

// Connect scans for a device advertising the Nordic UART service, negotiates
// the link (GATT connect, notification subscription, write characteristic
// binding), and returns an open Conn. Any step failing tears the link down
// and returns an error; no partially negotiated Conn escapes.
func Connect(ctx context.Context, adapter ble.Adapter, opts Options) (*Conn, error) {
	opts = opts.withDefaults()

	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("uart: enable adapter: %w", err)
	}

	devices, err := adapter.Scan(ctx, ble.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("uart: scan: %w", err)
	}
	dev, err := pickDevice(devices, opts.DeviceName)
	if err != nil {
		return nil, err
	}

	link, err := adapter.Connect(ctx, dev.Address)
	if err != nil {
		return nil, fmt.Errorf("uart: connect to %s: %w", dev.Address, err)
	}

	c := &Conn{
		chunkSize: opts.ChunkSize,
		state:     StateNegotiating,
		link:      link,
	}
	link.OnDisconnect(c.handleDisconnect)

	notify, err := link.DiscoverCharacteristic(ble.ServiceUUID, ble.NotifyCharUUID)
	if err != nil {
		c.abortNegotiation()
		return nil, fmt.Errorf("uart: discover notify characteristic: %w", err)
	}
	if err := notify.Subscribe(c.handleNotify); err != nil {
		c.abortNegotiation()
		return nil, fmt.Errorf("uart: subscribe to notifications: %w", err)
	}
	tx, err := link.DiscoverCharacteristic(ble.ServiceUUID, ble.WriteCharUUID)
	if err != nil {
		c.abortNegotiation()
		return nil, fmt.Errorf("uart: discover write characteristic: %w", err)
	}

	c.mu.Lock()
	if c.state == StateClosed {
		// The device dropped the link mid-negotiation.
		c.mu.Unlock()
		return nil, ErrLinkLost
	}
	c.tx = tx
	c.pending = nil
	c.draining = false
	c.state = StateOpen
	c.mu.Unlock()

	slog.Debug("[uart] connection open", "device", dev.Name, "address", dev.Address)
	return c, nil
}

// pickDevice selects the device to connect to: the strongest signal among
// those whose advertised name starts with the filter (Espruino boards
// advertise as e.g. "Puck.js 1234", so a prefix match covers board families).
func pickDevice(devices []ble.Device, nameFilter string) (ble.Device, error) {
	var best ble.Device
	found := false
	for _, d := range devices {
		if nameFilter != "" && !strings.HasPrefix(d.Name, nameFilter) {
			continue
		}
		if !found || d.RSSI > best.RSSI {
			best = d
			found = true
		}
	}
	if !found {
		return ble.Device{}, ErrNoDevice
	}
	return best, nil
}

// OnData registers the handler for inbound bytes, replacing any previously
// registered one. Only one handler is active at a time.
func (c *Conn) OnData(fn func([]byte)) {
	c.mu.Lock()
	c.onData = fn
	c.mu.Unlock()
}

// OnClose registers the handler invoked once when an open connection closes,
// replacing any previously registered one.
func (c *Conn) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsOpen reports whether the connection is open.
func (c *Conn) IsOpen() bool {
	return c.State() == StateOpen
}

// Write queues payload for transmission and returns immediately. The payload
// is sent in chunks, strictly after all previously queued writes; chunks of
// distinct writes never interleave. done, if non-nil, is invoked exactly once
// after the whole payload has been accepted by the transport. On a connection
// that is not open, Write is a no-op. If the connection fails mid-transfer
// the remaining queue is discarded and no completion callbacks fire.
func (c *Conn) Write(payload []byte, done func()) {
	c.mu.Lock()
	if c.state != StateOpen || c.tx == nil {
		c.mu.Unlock()
		slog.Debug("[uart] write on closed connection dropped", "bytes", len(payload))
		return
	}
	c.pending = append(c.pending, &writeRequest{
		chunks: protocol.Split(payload, c.chunkSize),
		done:   done,
	})
	start := !c.draining
	if start {
		c.draining = true
	}
	c.mu.Unlock()

	if start {
		go c.drain()
	}
}

// drain sends queued chunks one at a time, in submission order. At most one
// drain goroutine runs per Conn.
func (c *Conn) drain() {
	for {
		c.mu.Lock()
		if c.state != StateOpen || len(c.pending) == 0 {
			c.draining = false
			c.mu.Unlock()
			return
		}
		req := c.pending[0]
		var chunk []byte
		if len(req.chunks) > 0 {
			chunk = req.chunks[0]
			req.chunks = req.chunks[1:]
		}
		tx := c.tx
		c.mu.Unlock()

		if len(chunk) > 0 {
			if err := tx.Write(chunk); err != nil {
				slog.Warn("[uart] chunk write failed, closing connection", "error", err)
				c.fail()
				return
			}
		}

		if len(req.chunks) == 0 {
			c.mu.Lock()
			if len(c.pending) > 0 && c.pending[0] == req {
				c.pending = c.pending[1:]
			}
			c.mu.Unlock()
			if req.done != nil {
				req.done()
			}
		}
	}
}

// fail force-closes the connection after a transport write error. All queued
// requests are dropped without their callbacks firing.
func (c *Conn) fail() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.draining = false
		c.mu.Unlock()
		return
	}
	wasOpen := c.state == StateOpen
	c.state = StateClosed
	c.pending = nil
	c.draining = false
	link := c.link
	c.tx = nil
	cb := c.onClose
	c.mu.Unlock()

	if link != nil {
		_ = link.Disconnect()
	}
	if wasOpen && cb != nil {
		cb()
	}
}

// Close disconnects the link and discards any queued writes. The close
// handler fires once; closing an already closed connection is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	wasOpen := c.state == StateOpen
	c.state = StateClosed
	c.pending = nil
	c.draining = false
	link := c.link
	c.tx = nil
	cb := c.onClose
	c.mu.Unlock()

	var err error
	if link != nil {
		err = link.Disconnect()
	}
	if wasOpen && cb != nil {
		cb()
	}
	return err
}

// abortNegotiation tears down a link whose negotiation failed, before any
// caller has a handle to it.
func (c *Conn) abortNegotiation() {
	c.mu.Lock()
	c.state = StateClosed
	link := c.link
	c.tx = nil
	c.mu.Unlock()
	if link != nil {
		_ = link.Disconnect()
	}
}

// handleDisconnect reacts to a transport-level disconnect: the queue is
// dropped and, if the connection was open, the close handler fires.
func (c *Conn) handleDisconnect() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	wasOpen := c.state == StateOpen
	c.state = StateClosed
	c.pending = nil
	c.tx = nil
	cb := c.onClose
	c.mu.Unlock()

	slog.Warn("[uart] device disconnected")
	if wasOpen && cb != nil {
		cb()
	}
}

// handleNotify forwards inbound notification bytes to the data handler.
func (c *Conn) handleNotify(data []byte) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	cb := c.onData
	c.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}
