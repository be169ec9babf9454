package stream

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ScooterAI2025/scooter-whatsapp/internal/metrics"
)

const messageBufferSize = 16

// clientWriter owns one connection's transport. It drains the send channel,
// writes a keep-alive frame every heartbeat interval, and reports the
// connection dead on the first failed write. The heartbeat ticker is the only
// mechanism that notices silently dead transports, so its interval bounds the
// worst-case staleness of the registry.
type clientWriter struct {
	clientID          string
	transport         Transport
	clock             clockwork.Clock
	heartbeatInterval time.Duration
	sendChannel       chan []byte
	doneChannel       chan struct{}
	stoppedChannel    chan struct{}
	stopOnce          sync.Once
	deadOnce          sync.Once
	wg                sync.WaitGroup
	onDead            func(clientID string)
}

func newClientWriter(clientID string, transport Transport, clock clockwork.Clock, heartbeatInterval time.Duration, onDead func(clientID string)) *clientWriter {
	cw := &clientWriter{
		clientID:          clientID,
		transport:         transport,
		clock:             clock,
		heartbeatInterval: heartbeatInterval,
		sendChannel:       make(chan []byte, messageBufferSize),
		doneChannel:       make(chan struct{}),
		stoppedChannel:    make(chan struct{}),
		onDead:            onDead,
	}
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(cw.heartbeatInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg, ok := <-cw.sendChannel:
			if !ok {
				return
			}
			if err := cw.transport.WriteEvent(msg); err != nil {
				metrics.StreamClientsEvicted.WithLabelValues("write_failure").Inc()
				cw.reportDead()
				return
			}
		case <-ticker.Chan():
			if err := cw.transport.WriteHeartbeat(); err != nil {
				metrics.StreamHeartbeatFailures.Inc()
				metrics.StreamClientsEvicted.WithLabelValues("heartbeat_failure").Inc()
				cw.reportDead()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// reportDead fires onDead at most once, off the writer goroutine so the
// resulting unregister can never deadlock against a concurrent stop().
func (cw *clientWriter) reportDead() {
	cw.deadOnce.Do(func() {
		go cw.onDead(cw.clientID)
	})
}

// stop cancels the heartbeat timer and closes the transport. It never blocks:
// a writer stuck mid-write on a stalled peer finishes (or errors on its write
// deadline) on its own goroutine, after which the stopped channel is closed.
// Idempotent.
func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.transport.Close()
		go func() {
			cw.wg.Wait()
			close(cw.stoppedChannel)
		}()
	})
}

// stopped is closed once the run goroutine has exited and no further writes
// to the transport can happen.
func (cw *clientWriter) stopped() <-chan struct{} {
	return cw.stoppedChannel
}
