package base

import (
	"bufio"
	"io"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/pubkey/storagebench/rpc/transport"
)

var Logger = logger.GetLogger("transport/rpc")

// defaultBufferSize is the read buffer of a stream connection
const defaultBufferSize = 64 * 1024 // 64 KB

// streamConn implements transport.IConn on top of a byte stream
type streamConn struct {
	rwc    io.ReadWriteCloser
	reader *bufio.Reader

	readHeader [headerSize]byte

	writeMu     sync.Mutex // Protects the write side of the stream
	writeHeader [headerSize]byte

	closeOnce sync.Once
	closeErr  error
}

// NewStreamConn creates a framed connection on top of a byte stream (socket,
// pipe pair, stdin/stdout). Closing the connection closes rwc.
func NewStreamConn(rwc io.ReadWriteCloser) transport.IConn {
	return NewStreamConnSize(rwc, defaultBufferSize)
}

// NewStreamConnSize is NewStreamConn with a custom read buffer size
func NewStreamConnSize(rwc io.ReadWriteCloser, bufferSize int) transport.IConn {
	return &streamConn{
		rwc:    rwc,
		reader: bufio.NewReaderSize(rwc, bufferSize),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IConn)
// --------------------------------------------------------------------------

func (c *streamConn) WriteFrame(shardID, corrID uint64, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.rwc, c.writeHeader[:], shardID, corrID, payload)
}

func (c *streamConn) ReadFrame() (uint64, uint64, []byte, error) {
	return readFrame(c.reader, c.readHeader[:])
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.rwc.Close()
	})
	return c.closeErr
}
