package gree

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTestStream(t *testing.T, port int) *DatagramStream {
	t.Helper()

	s, err := newPeerStream(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStream_PointToPointSendRecv(t *testing.T) {
	port := startRawResponder(t, func(req []byte) []byte {
		assert.JSONEq(t, `{"t":"scan"}`, string(req))
		return []byte(`{"t":"pack","pack":"abc"}`)
	})

	s := dialTestStream(t, port)
	require.NoError(t, s.Send([]byte(`{"t":"scan"}`), nil))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	data, sender, err := s.Recv(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"pack","pack":"abc"}`, string(data))
	assert.Equal(t, port, sender.Port)
}

func TestStream_RecvFIFO(t *testing.T) {
	port := startRawResponder(t, func(req []byte) []byte {
		return req
	})

	s := dialTestStream(t, port)
	require.NoError(t, s.Send([]byte(`first`), nil))
	require.NoError(t, s.Send([]byte(`second`), nil))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	data, _, err := s.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	data, _, err = s.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestStream_RecvTimeout(t *testing.T) {
	port := startSilentSocket(t)
	s := dialTestStream(t, port)
	require.NoError(t, s.Send([]byte(`{"t":"scan"}`), nil))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, _, err := s.Recv(ctx)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestStream_TransportErrorSurfacesOnRecv(t *testing.T) {
	// Reserve a loopback port, then free it so nothing listens there;
	// sending raises ICMP port-unreachable on the connected socket.
	probe, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	port := probe.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, probe.Close())

	s := dialTestStream(t, port)
	require.NoError(t, s.Send([]byte(`{"t":"scan"}`), nil))

	// The error is queued even though nobody is waiting yet; the next
	// Recv must still see it.
	time.Sleep(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err = s.Recv(ctx)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestStream_LateResponseStaysQueued(t *testing.T) {
	port := startRawResponder(t, func(req []byte) []byte {
		time.Sleep(300 * time.Millisecond)
		return []byte(`late`)
	})

	s := dialTestStream(t, port)
	require.NoError(t, s.Send([]byte(`hello`), nil))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	_, _, err := s.Recv(ctx)
	cancel()
	assert.ErrorIs(t, err, ErrTimeout)

	// The timeout cancelled only that Recv; the late reply lands in
	// the queue and the next Recv consumes it.
	ctx, cancel = context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	data, _, err := s.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", string(data))
}

func TestStream_CloseUnblocksPendingRecv(t *testing.T) {
	port := startSilentSocket(t)
	s := dialTestStream(t, port)

	errCh := make(chan error, 1)
	go func() {
		_, _, err := s.Recv(context.Background())
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	port := startSilentSocket(t)
	s := dialTestStream(t, port)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestStream_DrainsQueuedDataAfterClose(t *testing.T) {
	port := startRawResponder(t, func(req []byte) []byte {
		return []byte(`queued`)
	})

	s := dialTestStream(t, port)
	require.NoError(t, s.Send([]byte(`hello`), nil))

	// Give the reader goroutine time to queue the reply, then close.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, s.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	data, _, err := s.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "queued", string(data))

	_, _, err = s.Recv(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStream_SendAfterClose(t *testing.T) {
	port := startSilentSocket(t)
	s := dialTestStream(t, port)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Send([]byte(`x`), nil), ErrClosed)
}

func TestStream_BroadcastRequiresDestination(t *testing.T) {
	s, err := newBroadcastStream(zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	assert.ErrorIs(t, s.Send([]byte(`x`), nil), ErrTransport)
}

func TestStream_ConnectedRejectsDestination(t *testing.T) {
	port := startSilentSocket(t)
	s := dialTestStream(t, port)

	dest := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
	assert.ErrorIs(t, s.Send([]byte(`x`), dest), ErrTransport)
}

func TestStream_BroadcastRecvReportsSender(t *testing.T) {
	responderPort := startRawResponder(t, func(req []byte) []byte {
		var env packet
		if err := json.Unmarshal(req, &env); err != nil {
			return nil
		}
		assert.Equal(t, typeScan, env.T)
		return []byte(`{"t":"pack"}`)
	})

	s, err := newBroadcastStream(zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	dest := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: responderPort}
	require.NoError(t, s.Send([]byte(`{"t":"scan"}`), dest))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, sender, err := s.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, responderPort, sender.Port)
	assert.True(t, sender.IP.IsLoopback())
}
