package base

import (
	"net"

	"github.com/pubkey/storagebench/rpc/transport"
)

// UpgradeFunc applies protocol specific settings to an accepted or dialed connection
type UpgradeFunc func(conn net.Conn) error

// listener implements transport.IListener for socket transports
type listener struct {
	inner      net.Listener
	name       string
	upgrade    UpgradeFunc
	bufferSize int
}

// NewListener wraps a socket listener. upgrade may be nil. A failing upgrade is
// logged and the connection is used as is.
func NewListener(name string, inner net.Listener, upgrade UpgradeFunc, bufferSize int) transport.IListener {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &listener{
		inner:      inner,
		name:       name,
		upgrade:    upgrade,
		bufferSize: bufferSize,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IListener)
// --------------------------------------------------------------------------

func (l *listener) Accept() (transport.IConn, error) {
	conn, err := l.inner.Accept()
	if err != nil {
		return nil, err
	}
	Logger.Debugf("Accepted %s connection from %s", l.name, conn.RemoteAddr())
	return WrapConn(conn, l.upgrade, l.bufferSize), nil
}

func (l *listener) Close() error {
	return l.inner.Close()
}

func (l *listener) Addr() string {
	return l.inner.Addr().String()
}

// WrapConn upgrades a socket connection and frames it
func WrapConn(conn net.Conn, upgrade UpgradeFunc, bufferSize int) transport.IConn {
	if upgrade != nil {
		if err := upgrade(conn); err != nil {
			Logger.Warningf("Failed to upgrade connection to %s: %v", conn.RemoteAddr(), err)
		}
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return NewStreamConnSize(conn, bufferSize)
}
