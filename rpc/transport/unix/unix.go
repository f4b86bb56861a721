package unix

import (
	"fmt"
	"net"
	"os"

	"github.com/pubkey/storagebench/rpc/transport"
	"github.com/pubkey/storagebench/rpc/transport/base"
)

const (
	defaultBufferSize = 64 * 1024 // 64 KB
)

// Listen creates a Unix socket listener at socketPath. A stale socket file is removed first.
func Listen(socketPath string) (transport.IListener, error) {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %v", err)
	}

	// Create Unix socket listener
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Unix socket: %v", err)
	}

	return base.NewListener("unix", l, nil, defaultBufferSize), nil
}

// Dial connects to a worker listening on socketPath
func Dial(socketPath string) (transport.IConn, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return base.WrapConn(conn, nil, defaultBufferSize), nil
}
