package stream

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScooterAI2025/scooter-whatsapp/internal/domain"
)

// fakeTransport records frames in memory and can be told to fail.
type fakeTransport struct {
	mu             sync.Mutex
	events         [][]byte
	heartbeats     int
	failWrites     bool
	failHeartbeats bool
	blockWrites    bool
	closed         bool
	unblock        chan struct{}
	done           chan struct{}
	closeOnce      sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		unblock: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (t *fakeTransport) WriteEvent(data []byte) error {
	t.mu.Lock()
	fail := t.failWrites
	block := t.blockWrites
	t.mu.Unlock()

	if block {
		<-t.unblock
		return fmt.Errorf("transport closed")
	}
	if fail {
		return fmt.Errorf("write failed")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	t.events = append(t.events, cp)
	return nil
}

func (t *fakeTransport) WriteHeartbeat() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failHeartbeats {
		return fmt.Errorf("heartbeat failed")
	}
	t.heartbeats++
	return nil
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		close(t.unblock)
		close(t.done)
	})
	return nil
}

func (t *fakeTransport) Done() <-chan struct{} { return t.done }

func (t *fakeTransport) eventCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// stalledTransport blocks every event write until released; Close does not
// interrupt an in-flight write, mirroring a stream whose peer stopped reading.
type stalledTransport struct {
	release   chan struct{}
	done      chan struct{}
	inWrite   atomic.Bool
	closeOnce sync.Once
}

func newStalledTransport() *stalledTransport {
	return &stalledTransport{
		release: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (t *stalledTransport) WriteEvent([]byte) error {
	t.inWrite.Store(true)
	<-t.release
	return fmt.Errorf("write failed")
}

func (t *stalledTransport) WriteHeartbeat() error { return nil }

func (t *stalledTransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

func (t *stalledTransport) Done() <-chan struct{} { return t.done }

func testBroadcaster(t *testing.T) *Broadcaster {
	t.Helper()
	b := NewBroadcaster(clockwork.NewRealClock(), time.Minute, 100)
	t.Cleanup(b.Stop)
	return b
}

func mustRegister(t *testing.T, b *Broadcaster, id string, tr Transport) <-chan struct{} {
	t.Helper()
	stopped, err := b.Register(id, tr)
	require.NoError(t, err)
	return stopped
}

func testEvent() domain.StreamEvent {
	sid := "SM1"
	return domain.NewMessageEvent(&domain.Message{
		ID:         1,
		FromNumber: "whatsapp:+1555",
		ToNumber:   "whatsapp:+1999",
		Body:       "Hi",
		Direction:  domain.DirectionInbound,
		MessageSid: &sid,
		CreatedAt:  time.Now(),
	})
}

func TestRegisterUnregisterClientCount(t *testing.T) {
	b := testBroadcaster(t)

	ids := []string{NewClientID(), NewClientID(), NewClientID()}
	for _, id := range ids {
		mustRegister(t, b, id, newFakeTransport())
	}
	assert.Equal(t, 3, b.ClientCount())

	b.Unregister(ids[1])
	require.Eventually(t, func() bool { return b.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	// Unregistering an unknown id is a no-op.
	b.Unregister("nope")
	b.Unregister(ids[1])
	assert.Equal(t, 2, b.ClientCount())
}

func TestRegisterDuplicateIDRejected(t *testing.T) {
	b := testBroadcaster(t)

	id := NewClientID()
	mustRegister(t, b, id, newFakeTransport())

	dup := newFakeTransport()
	_, err := b.Register(id, dup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
	assert.True(t, dup.isClosed(), "rejected transport must be closed")
	assert.Equal(t, 1, b.ClientCount())
}

func TestRegisterMaxClients(t *testing.T) {
	b := NewBroadcaster(clockwork.NewRealClock(), time.Minute, 1)
	t.Cleanup(b.Stop)

	mustRegister(t, b, NewClientID(), newFakeTransport())

	rejected := newFakeTransport()
	_, err := b.Register(NewClientID(), rejected)
	require.Error(t, err)
	assert.True(t, rejected.isClosed(), "rejected transport must be closed")
	assert.Equal(t, 1, b.ClientCount())
}

func TestBroadcastDeliversToAllClients(t *testing.T) {
	b := testBroadcaster(t)

	transports := []*fakeTransport{newFakeTransport(), newFakeTransport(), newFakeTransport()}
	for _, tr := range transports {
		mustRegister(t, b, NewClientID(), tr)
	}

	b.Broadcast(testEvent())

	for i, tr := range transports {
		tr := tr
		require.Eventually(t, func() bool { return tr.eventCount() == 1 },
			time.Second, 10*time.Millisecond, "client %d should receive the event", i)
	}

	// Exactly once: no duplicates show up later.
	time.Sleep(50 * time.Millisecond)
	for _, tr := range transports {
		assert.Equal(t, 1, tr.eventCount())
	}
}

func TestBroadcastEvictsFailingClientAndContinues(t *testing.T) {
	b := testBroadcaster(t)

	healthyA := newFakeTransport()
	failing := newFakeTransport()
	failing.failWrites = true
	healthyC := newFakeTransport()

	mustRegister(t, b, NewClientID(), healthyA)
	mustRegister(t, b, NewClientID(), failing)
	mustRegister(t, b, NewClientID(), healthyC)

	b.Broadcast(testEvent())

	require.Eventually(t, func() bool { return healthyA.eventCount() == 1 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return healthyC.eventCount() == 1 }, time.Second, 10*time.Millisecond)

	// The failing client's write error surfaces through its writer and
	// removes it from the registry.
	require.Eventually(t, func() bool { return b.ClientCount() == 2 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, failing.isClosed, time.Second, 10*time.Millisecond)
}

func TestBroadcastEvictsSlowClient(t *testing.T) {
	b := testBroadcaster(t)

	slow := newFakeTransport()
	slow.blockWrites = true
	mustRegister(t, b, NewClientID(), slow)

	// Overflow the send buffer: the first write blocks in the transport,
	// the rest fill the channel, then one more marks the client slow.
	for i := 0; i < messageBufferSize+2; i++ {
		b.Broadcast(testEvent())
	}

	require.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, slow.isClosed, time.Second, 10*time.Millisecond)
}

func TestHeartbeatFailureReapsConnection(t *testing.T) {
	b := NewBroadcaster(clockwork.NewRealClock(), 20*time.Millisecond, 100)
	t.Cleanup(b.Stop)

	tr := newFakeTransport()
	tr.failHeartbeats = true
	mustRegister(t, b, NewClientID(), tr)

	require.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, tr.isClosed, time.Second, 10*time.Millisecond)
}

func TestStopClosesAllClients(t *testing.T) {
	b := NewBroadcaster(clockwork.NewRealClock(), time.Minute, 100)

	transports := []*fakeTransport{newFakeTransport(), newFakeTransport()}
	for _, tr := range transports {
		mustRegister(t, b, NewClientID(), tr)
	}

	b.Stop()

	for _, tr := range transports {
		assert.True(t, tr.isClosed())
	}
}

func TestRegisterStoppedSignalsAfterWriterExits(t *testing.T) {
	b := testBroadcaster(t)

	stalled := newStalledTransport()
	id := NewClientID()
	stopped := mustRegister(t, b, id, stalled)

	b.Broadcast(testEvent())
	require.Eventually(t, stalled.inWrite.Load, time.Second, 5*time.Millisecond)

	b.Unregister(id)
	require.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, 10*time.Millisecond)

	// The writer is still inside WriteEvent; the stop signal must not fire
	// until that write has returned.
	select {
	case <-stopped:
		t.Fatal("stopped fired while a write was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(stalled.release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stopped never fired after the write returned")
	}
}

func TestEvictingStalledClientKeepsServingOthers(t *testing.T) {
	b := testBroadcaster(t)

	stalled := newStalledTransport()
	healthy := newFakeTransport()
	mustRegister(t, b, NewClientID(), stalled)
	mustRegister(t, b, NewClientID(), healthy)

	// One write blocks inside the transport, the rest fill the stalled
	// client's buffer, then one more marks it slow and evicts it.
	for i := 0; i < messageBufferSize+2; i++ {
		b.Broadcast(testEvent())
	}

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	// The stalled writer is still blocked mid-write; the actor must keep
	// registering, counting, and delivering regardless.
	assert.True(t, stalled.inWrite.Load())
	mustRegister(t, b, NewClientID(), newFakeTransport())
	assert.Equal(t, 2, b.ClientCount())

	b.Broadcast(testEvent())
	require.Eventually(t, func() bool { return healthy.eventCount() == messageBufferSize+3 },
		time.Second, 10*time.Millisecond)

	close(stalled.release)
}

func TestNewClientIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewClientID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate client id %s", id)
		seen[id] = struct{}{}
	}
}
