package gree

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// maxDatagramSize bounds a single receive. Real payloads are a few
// hundred bytes of JSON.
const maxDatagramSize = 2048

type datagram struct {
	payload []byte
	addr    *net.UDPAddr
}

// DatagramStream presents one UDP socket as an ordered, consumable
// sequence of datagrams. A reader goroutine feeds arriving datagrams
// into a FIFO queue drained by Recv; transport errors travel on a
// separate queue so one surfacing between Recv calls is not lost.
//
// A stream owns its socket exclusively. In broadcast mode it is
// unconnected and Send requires a destination; in point-to-point mode
// it is connected to one peer and Send must omit it.
type DatagramStream struct {
	conn      *net.UDPConn
	broadcast bool
	recvq     chan datagram
	errq      chan error
	closeCh   chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger
}

// newPeerStream opens a point-to-point stream connected to raddr.
func newPeerStream(raddr *net.UDPAddr, logger zerolog.Logger) (*DatagramStream, error) {
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return newStream(conn, false, logger), nil
}

// newBroadcastStream opens a broadcast-mode stream bound to an
// ephemeral local port.
func newBroadcastStream(logger zerolog.Logger) (*DatagramStream, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return newStream(conn, true, logger), nil
}

func newStream(conn *net.UDPConn, broadcast bool, logger zerolog.Logger) *DatagramStream {
	s := &DatagramStream{
		conn:      conn,
		broadcast: broadcast,
		recvq:     make(chan datagram, 64),
		errq:      make(chan error, 1),
		closeCh:   make(chan struct{}),
		logger:    logger,
	}
	go s.readLoop()
	return s
}

func (s *DatagramStream) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Keep the first unconsumed error; later ones carry no
			// extra information for a single in-flight exchange.
			select {
			case s.errq <- err:
			default:
			}
			s.logger.Debug().Err(err).Msg("transport error")
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		select {
		case s.recvq <- datagram{payload: payload, addr: addr}:
		case <-s.closeCh:
			return
		}
	}
}

// Send writes one datagram. dest is required for a broadcast stream and
// must be nil for a connected stream.
func (s *DatagramStream) Send(payload []byte, dest *net.UDPAddr) error {
	select {
	case <-s.closeCh:
		return ErrClosed
	default:
	}

	var err error
	switch {
	case s.broadcast && dest == nil:
		return fmt.Errorf("%w: broadcast send requires a destination", ErrTransport)
	case !s.broadcast && dest != nil:
		return fmt.Errorf("%w: stream is connected, destination must be omitted", ErrTransport)
	case s.broadcast:
		_, err = s.conn.WriteToUDP(payload, dest)
	default:
		_, err = s.conn.Write(payload)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	s.logger.Debug().Int("bytes", len(payload)).Msg("datagram sent")
	return nil
}

// Recv returns the next datagram in arrival order. It blocks until one
// arrives, a transport error is reported, the context expires
// (ErrTimeout for a deadline) or the stream is closed (ErrClosed).
// Datagrams queued before Close are still drained; a datagram is
// delivered whole or not at all.
func (s *DatagramStream) Recv(ctx context.Context) ([]byte, *net.UDPAddr, error) {
	// Drain queued data before reporting errors or close.
	select {
	case d := <-s.recvq:
		return d.payload, d.addr, nil
	default:
	}

	select {
	case d := <-s.recvq:
		return d.payload, d.addr, nil
	case err := <-s.errq:
		return nil, nil, fmt.Errorf("%w: %w", ErrTransport, err)
	case <-s.closeCh:
		return nil, nil, ErrClosed
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, ErrTimeout
		}
		return nil, nil, ctx.Err()
	}
}

// Close releases the socket and unblocks any pending Recv. It is
// idempotent.
func (s *DatagramStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.conn.Close()
		s.logger.Debug().Msg("stream closed")
	})
	return nil
}

// LocalAddr reports the socket's bound address.
func (s *DatagramStream) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}
