package stream

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline = 5 * time.Second
	pongDeadline  = 60 * time.Second
)

// Transport is one writable stream to a viewer. A Transport is owned by
// exactly one clientWriter after registration; only that goroutine calls
// WriteEvent and WriteHeartbeat.
type Transport interface {
	// WriteEvent writes one serialized event frame.
	WriteEvent(data []byte) error
	// WriteHeartbeat writes a no-op keep-alive frame that clients ignore.
	WriteHeartbeat() error
	// Close tears the stream down. Safe to call more than once.
	Close() error
	// Done is closed when the transport has been torn down, releasing
	// any handler goroutine still parked on the request.
	Done() <-chan struct{}
}

// --- SSE ---

// SSETransport streams text/event-stream frames over a live HTTP response.
// Every write carries a deadline so a peer that stops reading surfaces as a
// write error instead of blocking the writer goroutine indefinitely.
type SSETransport struct {
	w         http.ResponseWriter
	rc        *http.ResponseController
	flusher   http.Flusher
	clock     clockwork.Clock
	done      chan struct{}
	closeOnce sync.Once
}

// NewSSETransport wraps a response writer that has already sent the
// event-stream headers. Returns an error if the writer cannot flush.
func NewSSETransport(w http.ResponseWriter, clock clockwork.Clock) (*SSETransport, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &SSETransport{
		w:       w,
		rc:      http.NewResponseController(w),
		flusher: flusher,
		clock:   clock,
		done:    make(chan struct{}),
	}, nil
}

func (t *SSETransport) WriteEvent(data []byte) error {
	_ = t.rc.SetWriteDeadline(t.clock.Now().Add(writeDeadline))
	if _, err := fmt.Fprintf(t.w, "data: %s\n\n", data); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}

func (t *SSETransport) WriteHeartbeat() error {
	_ = t.rc.SetWriteDeadline(t.clock.Now().Add(writeDeadline))
	if _, err := fmt.Fprint(t.w, ": heartbeat\n\n"); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}

func (t *SSETransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

func (t *SSETransport) Done() <-chan struct{} {
	return t.done
}

// --- WebSocket ---

// WSTransport streams events as text frames over a gorilla WebSocket
// connection; heartbeats are ping control frames.
type WSTransport struct {
	conn      *websocket.Conn
	clock     clockwork.Clock
	done      chan struct{}
	closeOnce sync.Once
}

// NewWSTransport wraps an upgraded connection. The pong handler pushes the
// read deadline forward so the read pump detects silent peers.
func NewWSTransport(conn *websocket.Conn, clock clockwork.Clock) *WSTransport {
	t := &WSTransport{
		conn:  conn,
		clock: clock,
		done:  make(chan struct{}),
	}
	_ = conn.SetReadDeadline(t.clock.Now().Add(pongDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(t.clock.Now().Add(pongDeadline))
	})
	return t
}

func (t *WSTransport) WriteEvent(data []byte) error {
	_ = t.conn.SetWriteDeadline(t.clock.Now().Add(writeDeadline))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WSTransport) WriteHeartbeat() error {
	_ = t.conn.SetWriteDeadline(t.clock.Now().Add(writeDeadline))
	return t.conn.WriteMessage(websocket.PingMessage, nil)
}

// Close tears the connection down without a close frame: it may race a
// concurrent write from the owning writer goroutine, and gorilla permits a
// concurrent Close but not a second concurrent writer.
func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
		close(t.done)
	})
	return err
}

func (t *WSTransport) Done() <-chan struct{} {
	return t.done
}
