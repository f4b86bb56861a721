package inproc

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/pubkey/storagebench/lib/db/util"
	"github.com/pubkey/storagebench/rpc/transport"
)

// frame is one message in a mailbox
type frame struct {
	shardID uint64
	corrID  uint64
	payload []byte
}

// conn is one end of a pipe
type conn struct {
	in     *util.Mailbox[frame] // frames for this end
	peer   *util.Mailbox[frame] // frames for the other end
	closed atomic.Bool
	once   *sync.Once
}

// Pipe creates a connected pair of in-process connections. Closing either end
// closes both: the reader of each end receives the frames already queued and
// then io.EOF.
func Pipe() (transport.IConn, transport.IConn) {
	a := util.NewMailbox[frame]()
	b := util.NewMailbox[frame]()
	once := &sync.Once{}
	return &conn{in: a, peer: b, once: once}, &conn{in: b, peer: a, once: once}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IConn)
// --------------------------------------------------------------------------

func (c *conn) WriteFrame(shardID, corrID uint64, payload []byte) error {
	if c.closed.Load() {
		return io.ErrClosedPipe
	}
	data := make([]byte, len(payload))
	copy(data, payload)

	if err := c.peer.Push(frame{shardID: shardID, corrID: corrID, payload: data}); err != nil {
		return io.ErrClosedPipe
	}
	return nil
}

func (c *conn) ReadFrame() (uint64, uint64, []byte, error) {
	if c.closed.Load() {
		return 0, 0, nil, io.EOF
	}
	f, ok := <-c.in.Recv()
	if !ok {
		return 0, 0, nil, io.EOF
	}
	return f.shardID, f.corrID, f.payload, nil
}

func (c *conn) Close() error {
	c.closed.Store(true)
	c.once.Do(func() {
		c.in.Close()
		c.peer.Close()
	})
	// frames nobody reads anymore would block the mailbox pump
	go drain(c.in)
	return nil
}

func drain(m *util.Mailbox[frame]) {
	for range m.Recv() {
	}
}
