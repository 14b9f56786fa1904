package uart

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/espruino/espruino.github.io/internal/ble"
	"github.com/espruino/espruino.github.io/internal/uart/protocol"
)

// Session is the convenience layer for request/response usage without manual
// connection management. It keeps at most one active Conn, negotiates one
// lazily on first use, and re-negotiates on the next call after the link
// drops. Callers are expected not to overlap Request/Eval calls; the session
// correlates a command with its output purely by inter-byte silence.
type Session struct {
	adapter ble.Adapter
	opts    Options

	mu      sync.Mutex
	conn    *Conn
	rb      *ringbuffer.RingBuffer
	gotData bool
}

// NewSession creates a session over the given adapter. No connection is made
// until the first Send, Request, or Eval call.
func NewSession(adapter ble.Adapter, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		adapter: adapter,
		opts:    opts,
		rb:      ringbuffer.New(opts.ReceiveBufferSize),
	}
}

// Send transmits data without collecting a response. It returns once the
// whole payload has been accepted by the transport, so the session can be
// closed immediately afterwards without losing queued bytes.
func (s *Session) Send(ctx context.Context, data string) error {
	conn, err := s.ensureConn(ctx)
	if err != nil {
		return err
	}
	return writeAndFlush(ctx, conn, data)
}

// Request transmits data and returns the output the device produced in
// response. The response boundary is a heuristic, not a protocol guarantee:
// collection ends at the first PollInterval window with no new inbound bytes,
// or after PollBudget windows. A write abandoned by a connection failure
// never completes; ctx is the escape hatch for that case.
func (s *Session) Request(ctx context.Context, data string) (string, error) {
	conn, err := s.ensureConn(ctx)
	if err != nil {
		return "", err
	}

	if err := writeAndFlush(ctx, conn, data); err != nil {
		return "", err
	}

	for i := 0; i < s.opts.PollBudget; i++ {
		select {
		case <-time.After(s.opts.PollInterval):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		s.mu.Lock()
		got := s.gotData
		s.gotData = false
		s.mu.Unlock()
		if !got {
			break
		}
	}

	return s.collect(), nil
}

// writeAndFlush queues data on conn and blocks until the transport has
// accepted the whole payload. A write abandoned by a connection failure never
// completes; ctx is the escape hatch for that case.
func writeAndFlush(ctx context.Context, conn *Conn, data string) error {
	flushed := make(chan struct{})
	conn.Write([]byte(data), func() { close(flushed) })

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Eval has the device evaluate expr and returns the JSON-serialized result.
func (s *Session) Eval(ctx context.Context, expr string) (string, error) {
	return s.Request(ctx, string(protocol.EvalCommand(expr)))
}

// Close disconnects the active connection, if any.
func (s *Session) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.rb.Reset()
	s.gotData = false
	s.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// ensureConn returns the active open connection, negotiating a new one if
// needed, and resets the receive buffer for the next exchange.
func (s *Session) ensureConn(ctx context.Context) (*Conn, error) {
	s.mu.Lock()
	if s.conn != nil && s.conn.IsOpen() {
		conn := s.conn
		s.rb.Reset()
		s.gotData = false
		s.mu.Unlock()
		return conn, nil
	}
	s.conn = nil
	s.rb.Reset()
	s.gotData = false
	s.mu.Unlock()

	conn, err := Connect(ctx, s.adapter, s.opts)
	if err != nil {
		return nil, err
	}
	conn.OnData(s.handleData)
	conn.OnClose(func() { s.forget(conn) })

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return conn, nil
}

// forget drops the session's reference to a closed connection so the next
// call negotiates a fresh one.
func (s *Session) forget(conn *Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
}

// handleData appends inbound bytes to the receive buffer and marks the
// poll flag. On overflow the excess is dropped; a response larger than the
// buffer means the device is streaming, not answering a command.
func (s *Session) handleData(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotData = true
	for len(data) > 0 {
		n, err := s.rb.Write(data)
		if err != nil {
			slog.Warn("[uart] receive buffer full, dropping data", "bytes", len(data))
			return
		}
		data = data[n:]
	}
}

// collect drains and returns the receive buffer contents.
func (s *Session) collect() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, s.rb.Length())
	n, _ := s.rb.Read(buf)
	s.rb.Reset()
	return string(buf[:n])
}
