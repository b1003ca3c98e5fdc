package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/capture"
)

// DefaultConnectTimeout bounds connection establishment when the caller's
// context has no deadline.
const DefaultConnectTimeout = 10 * time.Second

// ErrConnectionClosed indicates the connection is closed, either locally via
// Close or because the peer ended the stream.
var ErrConnectionClosed = errors.New("transport: connection closed")

// Config holds transport settings.
type Config struct {
	// ConnectTimeout bounds Dial when the context has no deadline.
	// Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// ReadTimeout bounds a single blocking read. Zero disables read
	// deadlines; liveness is then the keepalive's job.
	ReadTimeout time.Duration

	// MaxLineBytes bounds a single line. Zero means DefaultMaxLineBytes.
	MaxLineBytes int

	// MaxBlockLines bounds the lines in one block. Zero means
	// DefaultMaxBlockLines.
	MaxBlockLines int

	// TLS enables TLS when non-nil (manager port with tlsenable set).
	TLS *tls.Config
}

// DefaultConfig returns a Config with default settings.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: DefaultConnectTimeout,
		MaxLineBytes:   DefaultMaxLineBytes,
		MaxBlockLines:  DefaultMaxBlockLines,
	}
}

// Dial connects to the manager port at address ("host:port") and wraps the
// connection for framed reads and writes.
//
// The config's ConnectTimeout applies only when ctx carries no deadline of
// its own.
func Dial(ctx context.Context, address string, config Config) (*Conn, error) {
	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	if config.TLS != nil {
		tlsCfg := config.TLS
		if tlsCfg.ServerName == "" {
			// tls.Client does not infer the server name from the address
			// the way tls.Dial does.
			host, _, splitErr := net.SplitHostPort(address)
			if splitErr != nil {
				host = address
			}
			tlsCfg = tlsCfg.Clone()
			tlsCfg.ServerName = host
		}
		tlsConn := tls.Client(netConn, tlsCfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			netConn.Close()
			return nil, fmt.Errorf("tls handshake %s: %w", address, err)
		}
		netConn = tlsConn
	}

	return NewConn(netConn, config), nil
}

// Conn is a framed connection to a manager port.
type Conn struct {
	conn   net.Conn
	framer *Framer

	readTimeout time.Duration

	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewConn wraps an established network connection. Callers that dial on
// their own, and tests built on net.Pipe, use this directly.
func NewConn(netConn net.Conn, config Config) *Conn {
	framer := NewFramer(netConn)
	framer.SetLimits(config.MaxLineBytes, config.MaxBlockLines)
	return &Conn{
		conn:        netConn,
		framer:      framer,
		readTimeout: config.ReadTimeout,
		closeCh:     make(chan struct{}),
	}
}

// SetCapture attaches a capture logger recording raw frames in both
// directions. Call before the first read or write.
func (c *Conn) SetCapture(logger capture.Logger, connID string) {
	remote := ""
	if addr := c.conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	c.framer.SetCapture(logger, connID, remote)
}

// ReadBanner consumes the greeting line the switch sends before the first
// block.
func (c *Conn) ReadBanner() (string, error) {
	if err := c.armReadDeadline(); err != nil {
		return "", err
	}
	banner, err := c.framer.ReadBanner()
	if err != nil {
		return "", c.readErr(err)
	}
	return banner, nil
}

// ReadBlock returns the next block's lines. End of stream and reads after
// Close both return ErrConnectionClosed.
func (c *Conn) ReadBlock() ([]string, error) {
	if err := c.armReadDeadline(); err != nil {
		return nil, err
	}
	lines, err := c.framer.ReadBlock()
	if err != nil {
		return nil, c.readErr(err)
	}
	return lines, nil
}

// Send writes one encoded block. Safe for concurrent use.
func (c *Conn) Send(data []byte) error {
	if c.isClosed() {
		return ErrConnectionClosed
	}
	if err := c.framer.WriteFrame(data); err != nil {
		if c.isClosed() || errors.Is(err, net.ErrClosed) {
			return ErrConnectionClosed
		}
		return err
	}
	return nil
}

// Close closes the connection. It is safe to call multiple times.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// Done returns a channel closed when the connection has been closed locally.
func (c *Conn) Done() <-chan struct{} {
	return c.closeCh
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

func (c *Conn) isClosed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

func (c *Conn) armReadDeadline() error {
	if c.isClosed() {
		return ErrConnectionClosed
	}
	if c.readTimeout <= 0 {
		return nil
	}
	return c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
}

// readErr maps stream-end conditions onto ErrConnectionClosed so callers
// see a single error for every way a connection dies.
func (c *Conn) readErr(err error) error {
	if c.isClosed() {
		return ErrConnectionClosed
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return ErrConnectionClosed
	}
	return err
}
