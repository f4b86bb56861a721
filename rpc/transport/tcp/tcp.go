package tcp

import (
	"fmt"
	"net"
	"time"

	"github.com/pubkey/storagebench/rpc/transport"
	"github.com/pubkey/storagebench/rpc/transport/base"
)

const (
	defaultBufferSize = 512 * 1024 // 512 KB
)

// Options holds the socket settings applied to every TCP connection
type Options struct {
	NoDelay         bool // Disable Nagle's algorithm
	ReadBufferSize  int  // Socket read buffer, 0 keeps the OS default
	WriteBufferSize int  // Socket write buffer, 0 keeps the OS default
	KeepAliveSec    int  // Keep-alive period, 0 disables keep-alive
	LingerSec       int  // SO_LINGER, negative keeps the OS default
}

// DefaultOptions returns the settings used by Listen and Dial
func DefaultOptions() Options {
	return Options{
		NoDelay:         true,
		ReadBufferSize:  defaultBufferSize,
		WriteBufferSize: defaultBufferSize,
		KeepAliveSec:    30,
		LingerSec:       -1,
	}
}

// Listen creates a TCP listener on address (e.g. "localhost:8080" or "127.0.0.1:0")
func Listen(address string) (transport.IListener, error) {
	return ListenWithOptions(address, DefaultOptions())
}

// ListenWithOptions is Listen with custom socket settings
func ListenWithOptions(address string, opts Options) (transport.IListener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %v", err)
	}
	return base.NewListener("tcp", l, upgrader(opts), defaultBufferSize), nil
}

// Dial connects to a worker listening on address
func Dial(address string) (transport.IConn, error) {
	return DialWithOptions(address, DefaultOptions())
}

// DialWithOptions is Dial with custom socket settings
func DialWithOptions(address string, opts Options) (transport.IConn, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	return base.WrapConn(conn, upgrader(opts), defaultBufferSize), nil
}

// upgrader returns the function applying opts to a TCP connection
func upgrader(opts Options) base.UpgradeFunc {
	return func(conn net.Conn) error {
		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			return nil // Not a TCP connection, nothing to upgrade
		}

		if err := tcpConn.SetNoDelay(opts.NoDelay); err != nil {
			return err
		}

		// Set socket write buffer size if configured
		if opts.WriteBufferSize > 0 {
			if err := tcpConn.SetWriteBuffer(opts.WriteBufferSize); err != nil {
				return err
			}
		}

		// Set socket read buffer size if configured
		if opts.ReadBufferSize > 0 {
			if err := tcpConn.SetReadBuffer(opts.ReadBufferSize); err != nil {
				return err
			}
		}

		if opts.KeepAliveSec > 0 {
			if err := tcpConn.SetKeepAlive(true); err != nil {
				return err
			}
			if err := tcpConn.SetKeepAlivePeriod(time.Duration(opts.KeepAliveSec) * time.Second); err != nil {
				return err
			}
		}

		if opts.LingerSec >= 0 {
			if err := tcpConn.SetLinger(opts.LingerSec); err != nil {
				return err
			}
		}
		return nil
	}
}
