package conn

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/raskfs/rask/pkg/proto"
	"github.com/raskfs/rask/pkg/queue"
	"github.com/stretchr/testify/require"
)

// pipePair returns both ends of a net.Pipe; each end is a net.Conn with
// the deadline methods Conn calls.
func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	return a, b
}

func TestRunReceivesFrameAndInvokesHandler(t *testing.T) {
	a, b := pipePair(t)
	defer a.Close()
	defer b.Close()

	c := New(a, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan proto.Opcode, 1)
	go func() {
		_ = c.Run(ctx, func(_ *Conn, f proto.Frame) error {
			received <- f.Opcode
			return nil
		})
	}()

	require.NoError(t, proto.WriteFrame(b, proto.OpFileHash, []byte{1, 2, 3}))

	select {
	case op := <-received:
		require.Equal(t, proto.OpFileHash, op)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestEnqueueWritesToPeer(t *testing.T) {
	a, b := pipePair(t)
	defer a.Close()
	defer b.Close()

	c := New(a, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx, nil) }()

	queued, err := c.Enqueue(func() ([]byte, error) {
		return proto.Encode(proto.OpTenant, []byte("x"))
	})
	require.NoError(t, err)
	require.True(t, queued)

	br := bufio.NewReader(b)
	f, err := proto.ReadFrame(br)
	require.NoError(t, err)
	if f.Opcode == proto.OpVersion {
		// Run enqueues its own VERSION at start; whether that lands before
		// or after this Enqueue depends on goroutine scheduling.
		f, err = proto.ReadFrame(br)
		require.NoError(t, err)
	}
	require.Equal(t, proto.OpTenant, f.Opcode)
}

func TestRunSendsVersionImmediatelyWithoutWaitingForHeartbeat(t *testing.T) {
	a, b := pipePair(t)
	defer a.Close()
	defer b.Close()

	c := New(a, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx, nil) }()

	br := bufio.NewReader(b)
	deadline := time.Now().Add(500 * time.Millisecond)
	_ = b.SetReadDeadline(deadline)
	f, err := proto.ReadFrame(br)
	require.NoError(t, err, "VERSION must be enqueued at Run start, not on the first heartbeat tick")
	require.Equal(t, proto.OpVersion, f.Opcode)
}

func TestEnqueueAfterCloseFails(t *testing.T) {
	a, _ := pipePair(t)
	defer a.Close()

	c := New(a, nil, nil)
	require.NoError(t, c.Close())
	queued, err := c.Enqueue(func() ([]byte, error) { return nil, nil })
	require.False(t, queued)
	require.ErrorIs(t, err, ErrClosed)
}

func TestReadLoopUpdatesReceivedTimestampOnNonVersionFrame(t *testing.T) {
	a, b := pipePair(t)
	defer a.Close()
	defer b.Close()

	c := New(a, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx, nil) }()

	require.Zero(t, c.lastReceivedUnixNano.Load())
	require.NoError(t, proto.WriteFrame(b, proto.OpFileHash, []byte{1}))
	require.Eventually(t, func() bool { return c.lastReceivedUnixNano.Load() != 0 }, time.Second, time.Millisecond)
}

func TestReadLoopIgnoresVersionFrameForReceivedTimestamp(t *testing.T) {
	a, b := pipePair(t)
	defer a.Close()
	defer b.Close()

	c := New(a, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx, nil) }()

	require.NoError(t, proto.WriteFrame(b, proto.OpVersion, proto.Version{Version: 1}.Encode()))
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, c.lastReceivedUnixNano.Load(), "a received VERSION must not defer our own heartbeat send")
}

func TestRecordPeerVersionStampsIdentityOnce(t *testing.T) {
	a, b := pipePair(t)
	defer a.Close()
	defer b.Close()

	c := New(a, nil, nil)
	require.Zero(t, c.PeerIdentity())

	c.RecordPeerVersion(1)
	require.EqualValues(t, 1, c.PeerVersion())
	first := c.PeerIdentity()
	require.NotZero(t, first)

	c.RecordPeerVersion(2)
	require.EqualValues(t, 2, c.PeerVersion())
	require.Equal(t, first, c.PeerIdentity(), "identity is stamped once, not re-derived per VERSION")
}

func TestEnqueueReturnsFalseOnSpillWithoutError(t *testing.T) {
	a, b := pipePair(t)
	defer a.Close()
	defer b.Close()

	c := New(a, nil, nil)
	noop := func() ([]byte, error) { return nil, nil }
	for i := 0; i < queue.Capacity; i++ {
		queued, err := c.Enqueue(noop)
		require.NoError(t, err)
		require.True(t, queued)
	}

	queued, err := c.Enqueue(noop)
	require.NoError(t, err, "a spill is not a connection error")
	require.False(t, queued)
}
