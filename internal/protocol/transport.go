package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// ErrTimeout is returned when an opt-in read timeout expires.
var ErrTimeout = errors.New("receive timed out")

// Transport carries one message per datagram. ReadFrom blocks until a
// datagram arrives, the context is cancelled, or a configured timeout fires.
type Transport interface {
	ReadFrom(ctx context.Context) ([]byte, net.Addr, error)
	WriteTo(ctx context.Context, p []byte, addr net.Addr) error
	LocalAddr() net.Addr
	Close() error
}

// UDPTransport is a Transport over a single UDP socket.
type UDPTransport struct {
	conn        *net.UDPConn
	buf         []byte
	readTimeout time.Duration
}

// Option configures a UDPTransport.
type Option func(*UDPTransport)

// WithReadTimeout bounds each ReadFrom. Zero, the default, blocks until a
// datagram arrives or the context is cancelled.
func WithReadTimeout(d time.Duration) Option {
	return func(t *UDPTransport) {
		t.readTimeout = d
	}
}

// ListenUDP binds addr ("127.0.0.1:0" picks a free port).
func ListenUDP(addr string, opts ...Option) (*UDPTransport, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	t := &UDPTransport{conn: conn, buf: make([]byte, MaxDatagram)}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *UDPTransport) ReadFrom(ctx context.Context) ([]byte, net.Addr, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var deadline time.Time
	if t.readTimeout > 0 {
		deadline = time.Now().Add(t.readTimeout)
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	n, addr, err := t.conn.ReadFromUDP(t.buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w after %s", ErrTimeout, t.readTimeout)
		}
		return nil, nil, err
	}

	p := make([]byte, n)
	copy(p, t.buf[:n])
	return p, addr, nil
}

func (t *UDPTransport) WriteTo(ctx context.Context, p []byte, addr net.Addr) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(p) > MaxDatagram {
		return fmt.Errorf("datagram of %d bytes exceeds %d", len(p), MaxDatagram)
	}
	if _, err := t.conn.WriteTo(p, addr); err != nil {
		return fmt.Errorf("write to %s: %w", addr, err)
	}
	return nil
}

func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
