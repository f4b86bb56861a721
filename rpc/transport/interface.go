package transport

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// IConn is a framed, bidirectional channel between a proxy and a worker.
//
// Every frame carries a shard id and a correlation id next to the payload, the
// transport never looks into the payload. WriteFrame may be called concurrently,
// frames are never interleaved. ReadFrame must only be called by one goroutine.
// After the peer closed the channel ReadFrame returns io.EOF.
type IConn interface {
	// WriteFrame sends one frame. The payload may be reused after the call returns.
	WriteFrame(shardID, corrID uint64, payload []byte) error
	// ReadFrame blocks until the next frame arrives. The returned payload is owned by the caller.
	ReadFrame() (shardID, corrID uint64, payload []byte, err error)
	// Close closes the channel, a blocked ReadFrame of the peer returns io.EOF
	Close() error
}

// --------------------------------------------------------------------------
// Listener
// --------------------------------------------------------------------------

// IListener accepts connections of a long-running worker server
type IListener interface {
	// Accept blocks until the next proxy connects
	Accept() (IConn, error)
	// Close stops listening, a blocked Accept returns an error
	Close() error
	// Addr returns the address proxies dial
	Addr() string
}
