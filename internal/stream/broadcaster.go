package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ScooterAI2025/scooter-whatsapp/internal/domain"
	"github.com/ScooterAI2025/scooter-whatsapp/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
)

// NewClientID generates an opaque connection identifier. UUIDv7 carries a
// millisecond timestamp prefix plus random entropy, so collisions across the
// process lifetime are not a practical concern.
func NewClientID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// broadcasterCmd is the command interface for the Broadcaster actor.
type broadcasterCmd interface{ isBroadcasterCmd() }

type baseBroadcasterCmd struct{}

func (baseBroadcasterCmd) isBroadcasterCmd() {}

type registerCmd struct {
	baseBroadcasterCmd
	clientID     string
	transport    Transport
	replyChannel chan registerReply
}

type registerReply struct {
	stopped <-chan struct{}
	err     error
}

type unregisterCmd struct {
	baseBroadcasterCmd
	clientID string
}

type broadcastCmd struct {
	baseBroadcasterCmd
	data []byte
}

type clientCountCmd struct {
	baseBroadcasterCmd
	replyChannel chan int
}

type stopCmd struct {
	baseBroadcasterCmd
}

// Broadcaster maintains the connection registry and delivers every persisted
// message event to all registered connections, best effort. All registry
// state is confined to the actor goroutine; the public methods only exchange
// commands with it.
type Broadcaster struct {
	cmdCh             chan broadcasterCmd
	clock             clockwork.Clock
	clients           map[string]*clientWriter
	heartbeatInterval time.Duration
	maxClients        int
	done              chan struct{}
	stopTimeout       time.Duration
}

// NewBroadcaster creates and starts a broadcaster.
// heartbeatInterval controls per-connection keep-alive frames.
// maxClients caps the registry size (prevents resource exhaustion).
func NewBroadcaster(clock clockwork.Clock, heartbeatInterval time.Duration, maxClients int) *Broadcaster {
	b := &Broadcaster{
		cmdCh:             make(chan broadcasterCmd, 256),
		clock:             clock,
		clients:           make(map[string]*clientWriter),
		heartbeatInterval: heartbeatInterval,
		maxClients:        maxClients,
		done:              make(chan struct{}),
		stopTimeout:       stopTimeout,
	}
	go b.run()
	return b
}

// Register adds a connection under the given client ID. The ID must be fresh
// (see NewClientID); registering a duplicate is rejected, as is registering
// into a full registry, and the transport is closed on every rejection.
//
// On success the returned channel is closed once the connection's writer
// goroutine has fully stopped. A handler serving the transport from inside
// ServeHTTP must wait on it before returning, since the response writer must
// not be touched after the handler exits.
func (b *Broadcaster) Register(clientID string, transport Transport) (<-chan struct{}, error) {
	replyCh := make(chan registerReply, 1)
	b.cmdCh <- registerCmd{clientID: clientID, transport: transport, replyChannel: replyCh}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply.stopped, reply.err
	case <-timer.Chan():
		return nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a connection. Unregistering an unknown ID is a no-op.
func (b *Broadcaster) Unregister(clientID string) {
	b.cmdCh <- unregisterCmd{clientID: clientID}
}

// Broadcast serializes the event once and delivers it to every registered
// connection. Fire-and-forget: a failing recipient is evicted and delivery
// to the rest continues.
func (b *Broadcaster) Broadcast(event domain.StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal broadcast event", "error", err)
		return
	}
	metrics.StreamBroadcastsTotal.Inc()
	b.cmdCh <- broadcastCmd{data: data}
}

// ClientCount returns the current registry size, for observability.
// Returns -1 if the command times out.
func (b *Broadcaster) ClientCount() int {
	replyCh := make(chan int, 1)
	b.cmdCh <- clientCountCmd{replyChannel: replyCh}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts the broadcaster down, closing all connections. Blocks until the
// actor goroutine has exited or the stop timeout is reached.
func (b *Broadcaster) Stop() {
	b.cmdCh <- stopCmd{}

	timeout := b.clock.NewTimer(b.stopTimeout)
	defer timeout.Stop()

	select {
	case <-b.done:
		slog.Info("Broadcaster stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Broadcaster stop timeout exceeded", "timeout", b.stopTimeout)
		metrics.StreamStopTimeoutsTotal.Inc()
	}
}

func (b *Broadcaster) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broadcaster panic recovered", "panic", r)
			b.closeAllClients()
		}
	}()
	defer close(b.done)

	for cmd := range b.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			b.handleRegister(c)
		case unregisterCmd:
			b.handleUnregister(c.clientID)
		case broadcastCmd:
			b.handleBroadcast(c.data)
		case clientCountCmd:
			c.replyChannel <- len(b.clients)
		case stopCmd:
			b.handleStop()
			return
		default:
			slog.Warn("Broadcaster received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (b *Broadcaster) handleRegister(c registerCmd) {
	if _, exists := b.clients[c.clientID]; exists {
		_ = c.transport.Close()
		c.replyChannel <- registerReply{err: fmt.Errorf("client %s already registered", c.clientID)}
		return
	}

	if len(b.clients) >= b.maxClients {
		slog.Warn("Rejecting client: max connections reached", "client_id", c.clientID, "max_clients", b.maxClients)
		_ = c.transport.Close()
		c.replyChannel <- registerReply{err: fmt.Errorf("max stream clients (%d) reached", b.maxClients)}
		return
	}

	cw := newClientWriter(c.clientID, c.transport, b.clock, b.heartbeatInterval, b.Unregister)
	b.clients[c.clientID] = cw

	metrics.StreamActiveConnections.Set(float64(len(b.clients)))
	slog.Info("Client connected", "client_id", c.clientID, "total_clients", len(b.clients))
	c.replyChannel <- registerReply{stopped: cw.stopped()}
}

func (b *Broadcaster) handleUnregister(clientID string) {
	cw, exists := b.clients[clientID]
	if !exists {
		return
	}

	delete(b.clients, clientID)
	cw.stop()

	metrics.StreamActiveConnections.Set(float64(len(b.clients)))
	slog.Info("Client disconnected", "client_id", clientID, "total_clients", len(b.clients))
}

func (b *Broadcaster) handleBroadcast(data []byte) {
	start := b.clock.Now()

	var dead []string
	for clientID, cw := range b.clients {
		select {
		case cw.sendChannel <- data:
		default:
			// send buffer full, client cannot keep up
			dead = append(dead, clientID)
		}
	}

	for _, clientID := range dead {
		slog.Warn("Disconnecting slow client", "client_id", clientID)
		metrics.StreamClientsEvicted.WithLabelValues("slow").Inc()
		b.handleUnregister(clientID)
	}

	metrics.StreamBroadcastDuration.Observe(b.clock.Since(start).Seconds())
}

func (b *Broadcaster) handleStop() {
	slog.Info("Broadcaster shutting down", "total_clients", len(b.clients))
	b.closeAllClients()
}

func (b *Broadcaster) closeAllClients() {
	for clientID, cw := range b.clients {
		cw.stop()
		delete(b.clients, clientID)
	}
	metrics.StreamActiveConnections.Set(0)
}
