package replication

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/dd0wney/cluso-replicator/pkg/protocol"
)

// maxResponseSize bounds how much of a peer's text response is read
const maxResponseSize = 4 << 20

// Sender delivers packets to peers. Transport is the TCP implementation; tests
// substitute recorders.
type Sender interface {
	// Deliver connects, writes pkt and closes without waiting for a response.
	Deliver(ctx context.Context, addr string, pkt protocol.Packet) error
	// Exchange connects, writes pkt and returns the peer's full text response.
	Exchange(ctx context.Context, addr string, pkt protocol.Packet) (string, error)
}

// Transport opens one short-lived TCP connection per packet.
//
// A dial failure is reported as ErrPeerUnreachable. Anything that fails once the
// connection exists is reported as ErrPeerIO, so callers that only care whether
// the peer accepted a connection can tell the two apart.
type Transport struct {
	DialTimeout time.Duration // connect timeout per peer
	IOTimeout   time.Duration // bound on writing the packet and reading the response
}

// NewTransport creates a transport with the given timeouts
func NewTransport(dialTimeout, ioTimeout time.Duration) *Transport {
	return &Transport{DialTimeout: dialTimeout, IOTimeout: ioTimeout}
}

func (t *Transport) dial(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: t.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPeerUnreachable, addr, err)
	}

	deadline := time.Now().Add(t.IOTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrPeerIO, addr, err)
	}
	return conn, nil
}

// Deliver implements Sender
func (t *Transport) Deliver(ctx context.Context, addr string, pkt protocol.Packet) error {
	conn, err := t.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := protocol.WritePacket(conn, pkt); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPeerIO, addr, err)
	}
	return nil
}

// Exchange implements Sender
func (t *Transport) Exchange(ctx context.Context, addr string, pkt protocol.Packet) (string, error) {
	conn, err := t.dial(ctx, addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := protocol.WritePacket(conn, pkt); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrPeerIO, addr, err)
	}

	resp, err := io.ReadAll(io.LimitReader(conn, maxResponseSize))
	if err != nil {
		return string(resp), fmt.Errorf("%w: %s: %w", ErrPeerIO, addr, err)
	}
	return string(resp), nil
}
