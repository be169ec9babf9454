package stream

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterHeartbeatOnInterval(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tr := newFakeTransport()

	cw := newClientWriter("c1", tr, clk, 30*time.Second, func(string) {})
	t.Cleanup(cw.stop)

	clk.BlockUntil(1) // heartbeat ticker armed

	clk.Advance(30 * time.Second)
	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.heartbeats == 1
	}, time.Second, 5*time.Millisecond)

	clk.Advance(30 * time.Second)
	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.heartbeats == 2
	}, time.Second, 5*time.Millisecond)
}

func TestWriterHeartbeatFailureReportsDeadExactlyOnce(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tr := newFakeTransport()
	tr.failHeartbeats = true

	var deadCalls atomic.Int32
	cw := newClientWriter("c1", tr, clk, 30*time.Second, func(clientID string) {
		assert.Equal(t, "c1", clientID)
		deadCalls.Add(1)
	})

	clk.BlockUntil(1)
	clk.Advance(30 * time.Second)

	require.Eventually(t, func() bool { return deadCalls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// The writer exited after the first failure; further time passing must
	// not produce additional reports.
	clk.Advance(5 * time.Minute)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), deadCalls.Load())

	cw.stop()
	cw.stop() // double-stop is safe
}

func TestWriterWriteFailureReportsDead(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tr := newFakeTransport()
	tr.failWrites = true

	var deadCalls atomic.Int32
	cw := newClientWriter("c1", tr, clk, time.Minute, func(string) { deadCalls.Add(1) })
	t.Cleanup(cw.stop)

	cw.sendChannel <- []byte(`{"type":"new_message"}`)

	require.Eventually(t, func() bool { return deadCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWriterDrainsSendChannel(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tr := newFakeTransport()

	cw := newClientWriter("c1", tr, clk, time.Minute, func(string) {})
	t.Cleanup(cw.stop)

	cw.sendChannel <- []byte(`one`)
	cw.sendChannel <- []byte(`two`)

	require.Eventually(t, func() bool { return tr.eventCount() == 2 }, time.Second, 5*time.Millisecond)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, "one", string(tr.events[0]))
	assert.Equal(t, "two", string(tr.events[1]))
}
